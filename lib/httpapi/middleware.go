package httpapi

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// hostAuthorizationMiddleware rejects requests whose Host header is not in
// allowedHosts. An empty list or "*" allows every host.
func hostAuthorizationMiddleware(allowedHosts []string, logger *slog.Logger) func(http.Handler) http.Handler {
	allowAll := len(allowedHosts) == 0
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		if h == "*" {
			allowAll = true
		}
		allowed[strings.ToLower(h)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		if allowAll {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := strings.ToLower(r.Host)
			if _, ok := allowed[host]; !ok {
				// a bare hostname in the list admits every port
				hostname, _, err := net.SplitHostPort(host)
				if err != nil {
					hostname = host
				}
				if _, ok := allowed[hostname]; !ok {
					logger.Warn("Rejected request with unknown host", "host", r.Host)
					http.Error(w, "Invalid host header. Allowed hosts: "+strings.Join(allowedHosts, ", "), http.StatusBadRequest)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// basePathResponseWriter wraps http.ResponseWriter to intercept redirects
type basePathResponseWriter struct {
	http.ResponseWriter
	basePath string
}

func (w *basePathResponseWriter) WriteHeader(statusCode int) {
	// Intercept redirects and prepend base path to Location header
	if statusCode >= 300 && statusCode < 400 {
		if location := w.Header().Get("Location"); location != "" {
			// Only modify relative redirects
			if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
				if !strings.HasPrefix(location, w.basePath) {
					w.Header().Set("Location", w.basePath+location)
				}
			}
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// StripBasePath creates a middleware that strips the base path from incoming
// requests, for deployments behind a reverse proxy that mounts the monitor
// under a prefix.
func StripBasePath(basePath string) func(http.Handler) http.Handler {
	// Normalize base path: ensure it starts with / and doesn't end with /
	if basePath != "" {
		if !strings.HasPrefix(basePath, "/") {
			basePath = "/" + basePath
		}
		basePath = strings.TrimSuffix(basePath, "/")
	}

	return func(next http.Handler) http.Handler {
		if basePath == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == basePath {
				// the dashboard links relative to the base path, so it
				// must be served from a URL with a trailing slash
				http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
				return
			}
			if strings.HasPrefix(r.URL.Path, basePath+"/") {
				r.URL.Path = strings.TrimPrefix(r.URL.Path, basePath)
				w = &basePathResponseWriter{
					ResponseWriter: w,
					basePath:       basePath,
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
