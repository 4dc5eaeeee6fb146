package kit

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// HTTPDecoder extracts the typed request from an HTTP request.
type HTTPDecoder func(*http.Request) (any, error)

// StatusFunc maps an endpoint error to an HTTP status.
type StatusFunc func(error) int

// HTTPHandler serves an Endpoint as JSON. Decode errors are 400s; endpoint
// errors go through status, defaulting to 500.
func HTTPHandler(endpoint Endpoint, decode HTTPDecoder, status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := WithTransport(r.Context(), "http")
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = WithRequestID(ctx, id)
		}

		var req any
		if decode != nil {
			var err error
			if req, err = decode(r); err != nil {
				WriteError(w, http.StatusBadRequest, err)
				return
			}
		}

		resp, err := endpoint(ctx, req)
		if err != nil {
			code := http.StatusInternalServerError
			if status != nil {
				code = status(err)
			}
			WriteError(w, code, err)
			return
		}
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// DecodeBody decodes the JSON body into a fresh *T. An empty body decodes
// to the zero value.
func DecodeBody[T any]() HTTPDecoder {
	return func(r *http.Request) (any, error) {
		var v T
		if r.Body == nil {
			return &v, nil
		}
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return &v, nil
	}
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("kit: write response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, code int, err error) {
	WriteJSON(w, code, map[string]string{"error": err.Error()})
}
