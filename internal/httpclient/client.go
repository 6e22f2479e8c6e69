// Package httpclient is a small outbound HTTP client instrumented with
// otelhttp spans and a request counter. Sinks use it to push JSON.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultKeepAlive    = 10 * time.Second
	defaultIdleTimeout  = 2 * time.Minute
	maxConnsPerHost     = 5
	instrumentationName = "github.com/fd1az/arbitrage-detector/internal/httpclient"
)

// Client builds instrumented requests.
type Client interface {
	NewRequestWithOptions(opts ...RequestOption) Request
}

// Request is a single-use request builder.
type Request interface {
	SetHeader(key, value string) Request
	SetBody(body any) Request
	Get(ctx context.Context, url string) (*Response, error)
	Post(ctx context.Context, url string) (*Response, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError is returned for status >= 400 when no StatusHandler is set.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

type instrumentedClient struct {
	http     *http.Client
	name     string
	headers  map[string]string
	tracer   trace.Tracer
	requests metric.Int64Counter
}

// NewInstrumentedClient creates a Client whose transport is wrapped in otelhttp.
func NewInstrumentedClient(opts ...ClientOption) (Client, error) {
	o := &clientOptions{timeout: defaultTimeout, name: "default"}
	for _, opt := range opts {
		opt(o)
	}

	transport := o.transport
	if transport == nil {
		transport = &http.Transport{
			DialContext:     (&net.Dialer{KeepAlive: defaultKeepAlive}).DialContext,
			MaxConnsPerHost: maxConnsPerHost,
			IdleConnTimeout: defaultIdleTimeout,
		}
	}
	transport = otelhttp.NewTransport(transport,
		otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
			return otelhttptrace.NewClientTrace(ctx)
		}),
	)

	mp := o.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	requests, err := mp.Meter(instrumentationName).Int64Counter(
		"http_client_requests_total",
		metric.WithDescription("Outbound HTTP requests by provider and outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &instrumentedClient{
		http:     &http.Client{Timeout: o.timeout, Transport: transport},
		name:     o.name,
		headers:  o.headers,
		tracer:   otel.Tracer(instrumentationName),
		requests: requests,
	}, nil
}

func (c *instrumentedClient) NewRequestWithOptions(opts ...RequestOption) Request {
	o := &requestOptions{}
	for _, opt := range opts {
		opt(o)
	}
	headers := make(map[string]string, len(c.headers))
	maps.Copy(headers, c.headers)
	return &request{client: c, headers: headers, opts: o}
}

type request struct {
	client  *instrumentedClient
	headers map[string]string
	body    any
	opts    *requestOptions
}

func (r *request) SetHeader(key, value string) Request {
	r.headers[key] = value
	return r
}

func (r *request) SetBody(body any) Request {
	r.body = body
	return r
}

func (r *request) Get(ctx context.Context, url string) (*Response, error) {
	return r.do(ctx, http.MethodGet, url)
}

func (r *request) Post(ctx context.Context, url string) (*Response, error) {
	return r.do(ctx, http.MethodPost, url)
}

func (r *request) do(ctx context.Context, method, url string) (*Response, error) {
	ctx, span := r.client.tracer.Start(ctx, "httpclient."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider", r.client.name)),
	)
	defer span.End()

	body, err := r.encodeBody()
	if err != nil {
		return nil, r.fail(ctx, span, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, r.fail(ctx, span, err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			span.SetAttributes(attribute.Bool("request.timeout", true))
		}
		return nil, r.fail(ctx, span, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, r.fail(ctx, span, fmt.Errorf("read body: %w", err))
	}
	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	check := r.opts.statusHandler
	if check == nil {
		check = defaultStatusCheck
	}
	if err := check(resp.StatusCode, data); err != nil {
		return out, r.fail(ctx, span, err)
	}

	r.count(ctx, true)
	return out, nil
}

func (r *request) encodeBody() (io.Reader, error) {
	switch b := r.body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return bytes.NewReader([]byte(b)), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		if _, ok := r.headers["Content-Type"]; !ok {
			r.headers["Content-Type"] = "application/json"
		}
		return bytes.NewReader(data), nil
	}
}

func (r *request) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.count(ctx, false)
	return err
}

func (r *request) count(ctx context.Context, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", r.client.name),
		attribute.Bool("success", success),
	}
	for _, l := range r.opts.labels {
		attrs = append(attrs, attribute.String(l.Key, l.Value))
	}
	r.client.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func defaultStatusCheck(status int, body []byte) error {
	if status >= http.StatusBadRequest {
		return &StatusError{StatusCode: status, Body: body}
	}
	return nil
}
