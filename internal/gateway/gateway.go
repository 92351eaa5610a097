// internal/gateway/gateway.go
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bookswap/internal/httpx"
)

// Route maps a public prefix under /api/v1 to a backend service.
type Route struct {
	Prefix  string
	Backend string
}

// Mount proxies /api/v1/<prefix>/* to each backend with the prefix stripped.
// Unreachable backends answer 502.
func Mount(r chi.Router, routes []Route, logger *zap.Logger) error {
	for _, rt := range routes {
		target, err := url.Parse(rt.Backend)
		if err != nil {
			return fmt.Errorf("parse %s backend: %w", rt.Prefix, err)
		}

		proxy := httputil.NewSingleHostReverseProxy(target)
		name := rt.Prefix
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("backend unavailable", zap.String("backend", name), zap.String("path", r.URL.Path), zap.Error(err))
			httpx.WriteError(w, http.StatusBadGateway, name+" service unavailable")
		}

		mount := "/api/v1/" + rt.Prefix
		r.Handle(mount+"/*", http.StripPrefix(mount, proxy))
	}
	return nil
}
