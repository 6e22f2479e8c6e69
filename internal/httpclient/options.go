package httpclient

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
)

type clientOptions struct {
	meterProvider metric.MeterProvider
	name          string
	transport     http.RoundTripper
	timeout       time.Duration
	headers       map[string]string
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *clientOptions) { o.meterProvider = mp }
}

// WithProviderName tags spans and metrics with the remote's name.
func WithProviderName(name string) ClientOption {
	return func(o *clientOptions) { o.name = name }
}

// WithRoundTripper replaces the pooled transport. It is still wrapped by otelhttp.
func WithRoundTripper(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.transport = rt }
}

// WithRequestTimeout bounds each request end to end.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = timeout }
}

// WithHeaders sets headers sent on every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *clientOptions) { o.headers = headers }
}

type requestOptions struct {
	statusHandler StatusHandler
	labels        []*Label
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

// StatusHandler inspects a completed response. A non-nil error fails the call.
type StatusHandler func(statusCode int, body []byte) error

// WithResponseErrorHandler installs h for the request. Without one, any
// status >= 400 is returned as a *StatusError.
func WithResponseErrorHandler(h StatusHandler) RequestOption {
	return func(o *requestOptions) { o.statusHandler = h }
}

// Label is an extra metric attribute.
type Label struct {
	Key   string
	Value string
}

// NewLabel creates a Label.
func NewLabel(key, value string) *Label {
	return &Label{Key: key, Value: value}
}

// WithLabels attaches labels to the request counter.
func WithLabels(labels ...*Label) RequestOption {
	return func(o *requestOptions) { o.labels = append(o.labels, labels...) }
}
