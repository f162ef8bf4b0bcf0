package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a breaker. 5xx responses count as
// breaker failures; 4xx do not trip the breaker.
type HTTPWrapper struct {
	client  *http.Client
	breaker *Breaker
	name    string
	service string
}

// NewHTTPWrapper creates an HTTP wrapper with breaker and metrics.
func NewHTTPWrapper(client *http.Client, name, service string, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	b := New(name, instrument(name, service, HTTPConfig()), logger)
	return &HTTPWrapper{client: client, breaker: b, name: name, service: service}
}

// Do executes an HTTP request through the breaker. When the breaker rejects
// the failure classification, the original response is still returned so the
// caller can inspect the status code.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.breaker.Execute(req.Context(), func() error {
		var doErr error
		resp, doErr = hw.client.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			return &statusError{code: resp.StatusCode}
		}
		return nil
	})

	recordRequest(hw.name, hw.service, err == nil)

	// Server errors fed the breaker but the caller still gets the response.
	if _, ok := err.(*statusError); ok {
		return resp, nil
	}
	return resp, err
}

// Breaker exposes the underlying breaker for health reporting.
func (hw *HTTPWrapper) Breaker() *Breaker { return hw.breaker }

// statusError marks 5xx responses for breaker accounting
type statusError struct{ code int }

func (e *statusError) Error() string { return http.StatusText(e.code) }
