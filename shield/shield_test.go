package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func echoBody() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.Write([]byte(r.Header.Get(RequestIDHeader)))
	})
}

func TestLoopbackOnly(t *testing.T) {
	h := Wrap(echoBody(), Config{Exempt: []string{"/healthz"}})

	cases := []struct {
		remote string
		path   string
		want   int
	}{
		{"127.0.0.1:5000", "/fill", http.StatusOK},
		{"[::1]:5000", "/fill", http.StatusOK},
		{"192.0.2.1:1234", "/fill", http.StatusForbidden},
		{"192.0.2.1:1234", "/healthz", http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, c.path, strings.NewReader("{}"))
		req.RemoteAddr = c.remote
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s %s: status %d, want %d", c.remote, c.path, rec.Code, c.want)
		}
	}
}

func TestAllowRemote(t *testing.T) {
	h := Wrap(echoBody(), Config{AllowRemote: true})
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	h := Wrap(echoBody(), Config{AllowRemote: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("echoed id = %q", got)
	}
	if rec.Body.String() != "abc" {
		t.Errorf("handler saw %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get(RequestIDHeader)
	if id == "" || rec.Body.String() != id {
		t.Errorf("generated id %q, handler saw %q", id, rec.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := Wrap(echoBody(), Config{AllowRemote: true})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for k, v := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestMaxBody(t *testing.T) {
	h := Wrap(echoBody(), Config{AllowRemote: true, MaxBody: 8})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d, want 413", rec.Code)
	}
}
