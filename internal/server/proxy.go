package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/tjfontaine/lifecycle-gateway/internal/config"
)

// NewReverseProxy forwards requests for route to its upstream. The inbound
// path is kept as is and appended to the upstream's base path. Upstream
// failures are answered with 502 Bad Gateway, or 504 Gateway Timeout when
// the request deadline passed first.
func NewReverseProxy(route config.RouteConfig, logger *slog.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(route.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream %q: %w", route.Upstream, err)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			// Keep the inbound chain so SetXForwarded appends to it.
			pr.Out.Header["X-Forwarded-For"] = pr.In.Header["X-Forwarded-For"]
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status := http.StatusBadGateway
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			logger.Warn("upstream request failed",
				slog.String("route", route.Name),
				slog.String("upstream", route.Upstream),
				slog.Int("status", status),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(status)
		},
	}, nil
}
