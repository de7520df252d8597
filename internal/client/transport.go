package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devfolio/dashboard/internal/config"
	"github.com/devfolio/dashboard/internal/jwtclaims"
	"github.com/devfolio/dashboard/internal/services/session"
	"github.com/rs/zerolog/log"
)

// SessionManager is the part of the session lifecycle the transport drives
type SessionManager interface {
	Refresh(ctx context.Context) (string, error)
	Expire(ctx context.Context, cause error)
}

// TokenSource reads the current access token
type TokenSource interface {
	GetAccess(ctx context.Context) (string, bool)
}

type contextKey int

const withoutRenewalKey contextKey = iota

// WithoutRenewal marks requests that must go out with the stored access token
// as is. They never trigger a refresh, are not retried, and a rejected
// credential does not expire the session.
func WithoutRenewal(ctx context.Context) context.Context {
	return context.WithValue(ctx, withoutRenewalKey, true)
}

func renewalDisabled(ctx context.Context) bool {
	disabled, _ := ctx.Value(withoutRenewalKey).(bool)
	return disabled
}

// Transport attaches the bearer token to every outbound request and recovers
// once from a rejected credential by refreshing and replaying the request.
type Transport struct {
	base         http.RoundTripper
	session      SessionManager
	tokens       TokenSource
	buffer       time.Duration
	exemptPaths  []string
	authStatuses map[int]bool
	now          func() time.Time
}

type TransportOption func(*Transport)

// WithBase sets the round tripper that actually sends requests
func WithBase(base http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.base = base
	}
}

// WithExemptPaths replaces the endpoints that skip token handling
func WithExemptPaths(paths ...string) TransportOption {
	return func(t *Transport) {
		t.exemptPaths = paths
	}
}

// WithAuthStatuses replaces the status codes treated as a rejected credential
func WithAuthStatuses(codes ...int) TransportOption {
	return func(t *Transport) {
		t.authStatuses = make(map[int]bool, len(codes))
		for _, code := range codes {
			t.authStatuses[code] = true
		}
	}
}

// WithExpiryBuffer sets how close to expiry a token is refreshed before sending
func WithExpiryBuffer(buffer time.Duration) TransportOption {
	return func(t *Transport) {
		t.buffer = buffer
	}
}

// WithTransportClock replaces the time source used for expiry checks
func WithTransportClock(now func() time.Time) TransportOption {
	return func(t *Transport) {
		t.now = now
	}
}

func NewTransport(sessionManager SessionManager, tokens TokenSource, opts ...TransportOption) *Transport {
	t := &Transport{
		base:        http.DefaultTransport,
		session:     sessionManager,
		tokens:      tokens,
		buffer:      config.DefaultSessionConfig.ExpiryBuffer,
		exemptPaths: config.DefaultAuthExemptPaths,
		now:         time.Now,
	}
	WithAuthStatuses(http.StatusUnauthorized, http.StatusForbidden)(t)

	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.isExempt(req.URL.Path) {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()

	if renewalDisabled(ctx) {
		token, _ := t.tokens.GetAccess(ctx)
		return t.base.RoundTrip(withBearer(req, token))
	}

	token, err := t.outbound(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(withBearer(req, token))
	if err != nil {
		return nil, err
	}

	if !t.authStatuses[resp.StatusCode] {
		return resp, nil
	}

	log.Warn().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Msg("Credential rejected by backend")

	if !replayable(req) {
		// A streamed body cannot be sent twice; hand the rejection back as is
		return resp, nil
	}

	return t.inbound(req, resp, token)
}

// outbound returns the token to attach, refreshing first when it is due
func (t *Transport) outbound(ctx context.Context) (string, error) {
	token, ok := t.tokens.GetAccess(ctx)
	if !ok {
		return "", nil
	}
	if !jwtclaims.IsExpiring(token, t.buffer, t.now()) {
		return token, nil
	}

	fresh, err := t.session.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		t.session.Expire(context.WithoutCancel(ctx), err)
		return "", &session.SessionExpiredError{Cause: err}
	}
	return fresh, nil
}

// inbound refreshes once and replays req. It never retries more than once.
func (t *Transport) inbound(req *http.Request, resp *http.Response, sent string) (*http.Response, error) {
	ctx := req.Context()
	status := resp.StatusCode
	drain(resp)

	token, err := t.nextToken(ctx, sent)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		t.session.Expire(context.WithoutCancel(ctx), err)
		return nil, &session.SessionExpiredError{StatusCode: status, Cause: err}
	}

	retry, err := rewind(req, token)
	if err != nil {
		return nil, err
	}

	retryResp, err := t.base.RoundTrip(retry)
	if err != nil {
		return nil, err
	}

	if t.authStatuses[retryResp.StatusCode] {
		drain(retryResp)
		cause := fmt.Errorf("credential rejected after refresh: status %d", retryResp.StatusCode)
		t.session.Expire(context.WithoutCancel(ctx), cause)
		return nil, &session.SessionExpiredError{StatusCode: retryResp.StatusCode, Cause: cause}
	}

	return retryResp, nil
}

// nextToken skips the refresh when another caller already rotated the pair
// after this request was sent
func (t *Transport) nextToken(ctx context.Context, sent string) (string, error) {
	if current, ok := t.tokens.GetAccess(ctx); ok && current != sent && !jwtclaims.IsExpiring(current, t.buffer, t.now()) {
		return current, nil
	}
	return t.session.Refresh(ctx)
}

func (t *Transport) isExempt(path string) bool {
	for _, p := range t.exemptPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func withBearer(req *http.Request, token string) *http.Request {
	r := req.Clone(req.Context())
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func rewind(req *http.Request, token string) (*http.Request, error) {
	r := withBearer(req, token)
	if req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		r.Body = body
	}
	return r, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
