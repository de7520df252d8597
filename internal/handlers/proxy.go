package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/devfolio/dashboard/internal/client"
	"github.com/devfolio/dashboard/internal/services/session"
	"github.com/devfolio/dashboard/pkg/httpext"
	"github.com/rs/zerolog/log"
)

const maxProxyBody = 10 << 20

// APIProxy forwards dashboard API calls to the backend through the
// authenticated transport, which attaches and renews credentials
type APIProxy struct {
	proxy *httputil.ReverseProxy
}

func NewAPIProxy(baseURL string, transport http.RoundTripper) (*APIProxy, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme and host required", baseURL)
	}

	p := &APIProxy{}
	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			// Credentials come from the token store, never from the browser
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			writeServiceError(w, r, proxyError(err))
		},
	}
	return p, nil
}

// proxyError classifies a failed round trip. Anything that is not a session
// expiry or a context error means the backend could not be reached.
func proxyError(err error) error {
	var networkErr *client.NetworkError
	switch {
	case errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &networkErr):
		return err
	}
	return &client.NetworkError{Err: err}
}

func (p *APIProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := bufferBody(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpext.JsonError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to read proxied request body")
		httpext.JsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p.proxy.ServeHTTP(w, r)
}

// bufferBody makes the body replayable so a request rejected for a stale
// token can be sent again after the refresh
func bufferBody(r *http.Request) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxProxyBody))
	r.Body.Close()
	if err != nil {
		return err
	}

	r.ContentLength = int64(len(data))
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}
