package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("httpapi: write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// genericError is the user-facing message for upstream/internal
// failures; details stay in the logs.
const genericError = "something went wrong"

// validEmail accepts addr only when it parses as a bare address with a
// dotted domain.
func validEmail(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return false
	}
	at := strings.LastIndex(addr, "@")
	return at > 0 && strings.Contains(addr[at+1:], ".")
}

// clientIP returns the request origin after RealIP middleware has
// already folded forwarding headers into RemoteAddr. The value may be
// host:port or a bare IP; bare IPv6 must come through intact.
func clientIP(r *http.Request) *string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ip = strings.Trim(ip, "[]")
	if ip == "" {
		return nil
	}
	return &ip
}
