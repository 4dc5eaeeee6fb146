package shield

import (
	"net/http"

	"github.com/hazyhaar/formpilot/idgen"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID makes sure every request carries an X-Request-ID header,
// generating one when the client sent none, and echoes it on the response.
// kit.HTTPHandler picks the header up into the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = idgen.New()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
