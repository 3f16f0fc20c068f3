package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// versionRoute pins the API version of every path under prefix.
type versionRoute struct {
	prefix  string
	version int
}

func versionRoutes(families []family) []versionRoute {
	routes := []versionRoute{
		{prefix: "/api/admin/internal/material_test", version: 1},
	}
	for _, f := range families {
		routes = append(routes, versionRoute{prefix: f.path, version: f.version})
	}
	// Longest prefix first.
	sort.Slice(routes, func(i, j int) bool { return len(routes[i].prefix) > len(routes[j].prefix) })
	return routes
}

func matchRoute(routes []versionRoute, p string) (versionRoute, bool) {
	for _, r := range routes {
		if p == r.prefix || strings.HasPrefix(p, r.prefix+"/") {
			return r, true
		}
	}
	return versionRoute{}, false
}

// acceptMiddleware rejects requests whose Accept header does not name the
// version pinned for the path, then hands plain JSON media types to the API.
func acceptMiddleware(product string, routes []versionRoute) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := matchRoute(routes, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			want := fmt.Sprintf("application/vnd.%s.v%d+json", product, route.version)
			if !acceptsMediaType(r.Header.Get("Accept"), want) {
				respondStatusError(w, newAPIError(http.StatusNotFound,
					"The url you are trying to reach appears to have been removed or the API version in the Accept header is not supported.", nil))
				return
			}
			r.Header.Set("Accept", "application/json")
			if r.ContentLength > 0 || len(bodyBytes(r.Context())) > 0 {
				r.Header.Set("Content-Type", "application/json")
			}
			w.Header().Set("Content-Type", want+"; charset=utf-8")
			next.ServeHTTP(w, r)
		})
	}
}

func acceptsMediaType(accept, want string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if strings.EqualFold(mt, want) {
			return true
		}
	}
	return false
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

// bufferBody keeps the raw request body in the context so that handlers can
// decode entities from it and still pass it to huma.
func bufferBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, fmt.Sprintf("could not read the request body: %v", err), nil))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(data))
		ctx := context.WithValue(r.Context(), bodyBytesKey{}, data)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
