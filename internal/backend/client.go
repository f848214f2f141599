// Package backend is the HTTP client for the GiG Geni REST API, which owns
// competitions, questions, participants and scoring.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gig-geni-service/internal/auth"
	"gig-geni-service/internal/domain"
	"gig-geni-service/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxBodyBytes = 4 << 20

// TokenStore holds access/refresh pairs by credential key.
type TokenStore interface {
	Get(ctx context.Context, key string) (domain.TokenPair, error)
	Put(ctx context.Context, key string, pair domain.TokenPair) error
	Delete(ctx context.Context, key string) error
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Endpoint, e.Status, e.Message)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client calls the backend with the token pair named by the request context
// (see auth.ContextWithCredential). Calls without one go out anonymously.
type Client struct {
	baseURL   string
	http      *http.Client
	tokens    TokenStore
	logger    *zap.Logger
	metrics   *metrics.Recorder
	refreshes singleflight.Group
}

func NewClient(baseURL string, httpClient *http.Client, tokens TokenStore, logger *zap.Logger, m *metrics.Recorder) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		logger:  logger,
		metrics: m,
	}
}

// do sends one request. A 401 triggers a single token refresh and one retry;
// if the refresh fails the user's tokens are dropped.
func (c *Client) do(ctx context.Context, endpoint, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", endpoint, err)
		}
	}

	key, hasUser := auth.CredentialFromContext(ctx)
	var pair domain.TokenPair
	if hasUser {
		var err error
		if pair, err = c.tokens.Get(ctx, key); err != nil {
			return nil, domain.ErrUnauthenticated
		}
	}

	status, raw, err := c.send(ctx, endpoint, method, path, payload, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized && hasUser {
		fresh, err := c.refresh(ctx, key, pair)
		if err != nil {
			return nil, err
		}
		status, raw, err = c.send(ctx, endpoint, method, path, payload, fresh.AccessToken)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			c.clear(ctx, key)
			return nil, domain.ErrUnauthenticated
		}
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{Endpoint: endpoint, Status: status, Message: errorMessage(raw)}
	}
	return raw, nil
}

func (c *Client) send(ctx context.Context, endpoint, method, path string, payload []byte, accessToken string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.BackendRequest(endpoint, 0)
		return 0, nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.BackendRequest(endpoint, resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s: read response: %w", endpoint, err)
	}
	c.logger.Debug("backend request",
		zap.String("endpoint", endpoint),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)),
	)
	return resp.StatusCode, raw, nil
}

// refresh swaps the pair under key once; concurrent 401s for the same pair share it.
func (c *Client) refresh(ctx context.Context, key string, stale domain.TokenPair) (domain.TokenPair, error) {
	userID, _ := auth.UserFromContext(ctx)
	result, err, _ := c.refreshes.Do(key, func() (interface{}, error) {
		// Another caller may have refreshed while our request was in flight.
		if current, err := c.tokens.Get(ctx, key); err == nil && current.AccessToken != stale.AccessToken {
			return current, nil
		}
		if stale.RefreshToken == "" {
			c.metrics.TokenRefresh(false)
			c.clear(ctx, key)
			return domain.TokenPair{}, domain.ErrUnauthenticated
		}

		status, raw, err := c.send(ctx, "auth.refresh", http.MethodPost, "/auth/refresh", mustJSON(map[string]string{"token": stale.RefreshToken}), "")
		var fresh domain.TokenPair
		if err == nil && status >= 200 && status < 300 {
			err = decodeData(raw, &fresh)
		}
		if err != nil || status < 200 || status >= 300 || fresh.AccessToken == "" {
			c.metrics.TokenRefresh(false)
			c.logger.Warn("token refresh failed", zap.String("user", userID), zap.Int("status", status), zap.Error(err))
			c.clear(ctx, key)
			return domain.TokenPair{}, domain.ErrUnauthenticated
		}
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = stale.RefreshToken
		}
		if err := c.tokens.Put(ctx, key, fresh); err != nil {
			c.logger.Warn("store refreshed tokens", zap.String("user", userID), zap.Error(err))
		}
		c.metrics.TokenRefresh(true)
		return fresh, nil
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	return result.(domain.TokenPair), nil
}

func (c *Client) clear(ctx context.Context, key string) {
	if err := c.tokens.Delete(ctx, key); err != nil {
		userID, _ := auth.UserFromContext(ctx)
		c.logger.Warn("clear tokens", zap.String("user", userID), zap.Error(err))
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// decodeData accepts both bare payloads and {"data": ...} envelopes.
func decodeData(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
