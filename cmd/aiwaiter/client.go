// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// defaultHTTPClient is the HTTP client used by commands that talk to a running
// server. A waiter turn can run three model calls, hence the long timeout.
var defaultHTTPClient = &http.Client{
	Timeout: 2 * time.Minute,
}

// apiError is the error body returned by the server.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
	Details []struct {
		Message  string `json:"message"`
		Location string `json:"location"`
	} `json:"details,omitempty"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	for _, d := range e.Details {
		msg += fmt.Sprintf("\n  %s: %s", d.Location, d.Message)
	}
	return msg
}

// serverClient provides HTTP access to a running aiwaiter server.
type serverClient struct {
	baseURL string
	http    *http.Client
}

// newServerClient creates a client targeting addr, a host:port or a full URL.
func newServerClient(addr string) *serverClient {
	base := strings.TrimSuffix(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &serverClient{baseURL: base, http: defaultHTTPClient}
}

func (c *serverClient) getJSON(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

func (c *serverClient) postJSON(ctx context.Context, path string, body, dest any) error {
	return c.do(ctx, http.MethodPost, path, body, dest)
}

func (c *serverClient) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeCLIInputInvalid, "encoding request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeCLIRequestFailure, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return apperr.Errorf(apperr.CodeCLIServerNotRunning, "server at %s is not running (connection refused)", c.baseURL)
		}
		return apperr.Wrap(err, apperr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = string(bytes.TrimSpace(raw))
		}
		return apperr.Wrap(apiErr, apperr.CodeCLIResponseInvalid, "request rejected")
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return apperr.Wrap(err, apperr.CodeCLIResponseInvalid, "decoding response")
	}
	return nil
}

// isDialError reports whether err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

// serverAPIError extracts the server's error body from err.
func serverAPIError(err error) (*apiError, bool) {
	var apiErr *apiError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
