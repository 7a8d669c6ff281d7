package oauthclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TokenRequest describes a single token-endpoint call the flow or refresh
// scheduler wants performed. It carries everything needed to build an
// http.Request without exposing net/http to callers that bring their own
// transport.
type TokenRequest struct {
	Method  string
	URL     *url.URL
	Headers map[string]string
	Body    []byte
}

// NetworkCompletion is invoked exactly once with either a decoded JSON
// object or an error, delivered on whatever goroutine the Networking
// implementation chooses — the Client synchronizes internally, so no
// particular goroutine is required.
type NetworkCompletion func(result map[string]any, err error)

// Networking is the transport port. PerformTokenRequest must not block the
// caller; it completes asynchronously via completion.
type Networking interface {
	PerformTokenRequest(req TokenRequest, completion NetworkCompletion)
}

// HTTPNetworking performs token requests over a real HTTP connection.
type HTTPNetworking struct {
	client *http.Client
}

// NewHTTPNetworking returns a Networking backed by client. A nil client
// gets a default 30-second timeout, matching the rest of the ecosystem's
// token-endpoint clients.
func NewHTTPNetworking(client *http.Client) *HTTPNetworking {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPNetworking{client: client}
}

func (n *HTTPNetworking) PerformTokenRequest(req TokenRequest, completion NetworkCompletion) {
	go func() {
		httpReq, err := http.NewRequest(req.Method, req.URL.String(), bytes.NewReader(req.Body))
		if err != nil {
			completion(nil, fmt.Errorf("build token request: %w", err))
			return
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := n.client.Do(httpReq)
		if err != nil {
			completion(nil, fmt.Errorf("token request failed: %w", err))
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			completion(nil, fmt.Errorf("read token response: %w", err))
			return
		}

		// Both success (200) and OAuth error (400) responses carry a JSON
		// body the caller needs to inspect; anything else is a transport
		// or server failure the caller can't meaningfully interpret as an
		// OAuth result.
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
			completion(nil, fmt.Errorf("token endpoint returned %s", resp.Status))
			return
		}

		var decoded map[string]any
		if err := json.Unmarshal(body, &decoded); err != nil {
			completion(nil, fmt.Errorf("decode token response: %w", err))
			return
		}

		completion(decoded, nil)
	}()
}
