package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Stream client errors
const (
	CodeStreamDialFailed        Code = "STREAM_DIAL_FAILED"
	CodeStreamHandshakeFailed   Code = "STREAM_HANDSHAKE_FAILED"
	CodeStreamHeartbeatTimeout  Code = "STREAM_HEARTBEAT_TIMEOUT"
	CodeStreamReconnectExceeded Code = "STREAM_RECONNECT_EXCEEDED"
	CodeStreamClosed            Code = "STREAM_CLOSED"
	CodeStreamNotConnected      Code = "STREAM_NOT_CONNECTED"
	CodeStreamSendError         Code = "STREAM_SEND_ERROR"
)

// Price feed errors
const (
	CodeMalformedPayload     Code = "MALFORMED_PAYLOAD"
	CodeInvalidPrice         Code = "INVALID_PRICE"
	CodeSubscriptionRejected Code = "SUBSCRIPTION_REJECTED"
	CodeUnknownInstrument    Code = "UNKNOWN_INSTRUMENT"
	CodeUnknownVenue         Code = "UNKNOWN_VENUE"
	CodeFeedClosed           Code = "FEED_CLOSED"
)

// Blockchain errors
const (
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"
	CodePoolNotFound             Code = "POOL_NOT_FOUND"
	CodeCircuitOpen              Code = "CIRCUIT_OPEN"
)

// Detection and reporting errors
const (
	CodeInvalidThreshold  Code = "INVALID_THRESHOLD"
	CodeEngineRunning     Code = "ENGINE_ALREADY_RUNNING"
	CodeSinkPublishFailed Code = "SINK_PUBLISH_FAILED"
)
