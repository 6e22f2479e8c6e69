package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	CodeStreamDialFailed:        "Failed to open stream connection",
	CodeStreamHandshakeFailed:   "Stream subscription handshake failed",
	CodeStreamHeartbeatTimeout:  "Stream heartbeat timed out",
	CodeStreamReconnectExceeded: "Stream reconnect attempts exhausted",
	CodeStreamClosed:            "Stream client is closed",
	CodeStreamNotConnected:      "Stream is not connected",
	CodeStreamSendError:         "Failed to send stream message",

	CodeMalformedPayload:     "Malformed venue payload",
	CodeInvalidPrice:         "Price must be positive",
	CodeSubscriptionRejected: "Venue rejected the subscription",
	CodeUnknownInstrument:    "Instrument is not configured for this venue",
	CodeUnknownVenue:         "Venue is not configured",
	CodeFeedClosed:           "Price feed is closed",

	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeContractCallFailed:       "Smart contract call failed",
	CodePoolNotFound:             "Pool not found",
	CodeCircuitOpen:              "Circuit breaker is open",

	CodeInvalidThreshold:  "Invalid detection threshold",
	CodeEngineRunning:     "Engine is already running",
	CodeSinkPublishFailed: "Failed to publish opportunity",
}
