// Package server is an in-memory implementation of the configuration admin
// API, used for local development and as the peer of the client tests.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DefaultProduct is the vendor segment expected in Accept headers.
const DefaultProduct = "go.cd"

// Config for the HTTP API handler.
type Config struct {
	Store   *Store
	Product string
	Auth    AuthConfig
	Logger  *zap.Logger
}

type bodyBytesKey struct{}

// apiError is the error body of every failed request: {message, data}.
type apiError struct {
	status  int
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string, data any) huma.StatusError {
	return &apiError{status: status, Message: message, Data: data}
}

// New returns an HTTP handler exposing the admin API over cfg.Store.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store == nil {
		cfg.Store = NewStore()
	}
	if cfg.Product == "" {
		cfg.Product = DefaultProduct
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, nil)
	}

	families := defaultFamilies()
	router := chi.NewRouter()
	router.Use(requestLogger(cfg.Logger))
	router.Use(bufferBody)
	router.Use(newAuthMiddleware(cfg.Auth, cfg.Logger))
	router.Use(acceptMiddleware(cfg.Product, versionRoutes(families)))

	hcfg := huma.DefaultConfig("Configuration Admin API", "1.0.0")
	hcfg.OpenAPIPath = "/api/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)

	registerHealth(api)
	for _, f := range families {
		registerFamily(api, cfg.Store, f)
	}
	registerRoleUpdate(api, cfg.Store)
	registerUserState(api, cfg.Store)
	registerMaterialTest(api)
	return router, nil
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return newAPIError(http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrStale):
		return newAPIError(http.StatusPreconditionFailed, err.Error(), nil)
	case errors.Is(err, ErrExists):
		return newAPIError(http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal error", map[string]any{"error": err.Error()})
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"health": "OK"}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}

// bodyMap decodes the request body as a JSON object.
func bodyMap(ctx context.Context) (map[string]any, huma.StatusError) {
	data := bytes.TrimSpace(bodyBytes(ctx))
	if len(data) == 0 {
		return nil, newAPIError(http.StatusBadRequest, "body required", nil)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, newAPIError(http.StatusBadRequest, fmt.Sprintf("Error parsing the request body: %v", err), nil)
	}
	return m, nil
}

func decodeBody(ctx context.Context, v any) huma.StatusError {
	data := bytes.TrimSpace(bodyBytes(ctx))
	if len(data) == 0 {
		return newAPIError(http.StatusBadRequest, "body required", nil)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newAPIError(http.StatusBadRequest, fmt.Sprintf("Error parsing the request body: %v", err), nil)
	}
	return nil
}

func rawToMap(raw json.RawMessage) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
