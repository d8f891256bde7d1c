package providers

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig configures the client shared by the transports.
type HTTPConfig struct {
	// Timeout bounds a whole request including reading the body. Default: 180s
	Timeout time.Duration

	// ConnectTimeout bounds dialing and the TLS handshake. Default: 30s
	ConnectTimeout time.Duration

	// RequestsPerMinute throttles outgoing requests; zero disables it.
	RequestsPerMinute int

	// Headers are added to every request, e.g. HTTP-Referer and X-Title.
	Headers map[string]string
}

// NewHTTPClient builds the client used by the transports.
func NewHTTPClient(config HTTPConfig) *http.Client {
	if config.Timeout <= 0 {
		config.Timeout = 180 * time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout, KeepAlive: 30 * time.Second}
	var rt http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: config.ConnectTimeout,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
	}
	rt = &envelopeTransport{next: rt}
	if len(config.Headers) > 0 {
		rt = &headerTransport{headers: config.Headers, next: rt}
	}
	if config.RequestsPerMinute > 0 {
		limit := rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
		rt = &rateLimitTransport{limiter: rate.NewLimiter(limit, 1), next: rt}
	}
	return &http.Client{Timeout: config.Timeout, Transport: rt}
}

type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(req)
}

type rateLimitTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// envelopeTransport turns a successful response whose JSON body carries a
// top-level "error" member into a 422, so SDKs surface it as an API error
// instead of an empty completion.
type envelopeTransport struct {
	next http.RoundTripper
}

func (t *envelopeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, err
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if hasErrorEnvelope(body) {
		resp.StatusCode = http.StatusUnprocessableEntity
		resp.Status = "422 Unprocessable Entity"
	}
	return resp, nil
}

func hasErrorEnvelope(body []byte) bool {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	raw := bytes.TrimSpace(envelope.Error)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}
