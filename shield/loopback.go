package shield

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// LoopbackOnly rejects clients whose address is not a loopback address with
// 403. X-Forwarded-For is ignored: a proxy in front of the agent must opt in
// with Config.AllowRemote.
func LoopbackOnly(exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range exempt {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			ip := RemoteIP(r)
			if addr := net.ParseIP(ip); addr == nil || !addr.IsLoopback() {
				slog.Warn("shield: non-loopback client refused", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{"error": "loopback clients only"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RemoteIP returns the host part of r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
