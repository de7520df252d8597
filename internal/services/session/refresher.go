package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/devfolio/dashboard/internal/tokenstore"
)

// RefreshPath is the token-refresh endpoint relative to the API base URL
const RefreshPath = "/auth/token/refresh/"

// Refresher exchanges a refresh token for a rotated pair
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (tokenstore.Pair, error)
}

// HTTPRefresher calls the backend refresh endpoint. Its client must not be
// the authenticated transport.
type HTTPRefresher struct {
	client   *http.Client
	endpoint string
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func NewHTTPRefresher(client *http.Client, baseURL string) *HTTPRefresher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPRefresher{
		client:   client,
		endpoint: strings.TrimRight(baseURL, "/") + RefreshPath,
	}
}

func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (tokenstore.Pair, error) {
	body, err := json.Marshal(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return tokenstore.Pair{}, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return tokenstore.Pair{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return tokenstore.Pair{}, fmt.Errorf("%w: %v", ErrRefreshRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return tokenstore.Pair{}, fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	}

	var decoded refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return tokenstore.Pair{}, fmt.Errorf("%w: %v", ErrMalformedRefreshResponse, err)
	}

	// The backend rotates both tokens on every refresh
	if decoded.Access == "" || decoded.Refresh == "" {
		return tokenstore.Pair{}, ErrMalformedRefreshResponse
	}

	return tokenstore.Pair{Access: decoded.Access, Refresh: decoded.Refresh}, nil
}
