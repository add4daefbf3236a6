package abuse

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
)

// Fingerprint derives the stable abuse-tracking key from the client's origin
// IP and the participant identity. The same device reconnecting under a new
// anonymous session keeps its IP component, so scores survive reconnect
// churn without tracking more than the connection origin.
func Fingerprint(ip, participantID string) string {
	h := sha256.Sum256([]byte(ip + ":" + participantID))
	return fmt.Sprintf("%s:%x", ip, h[:8])
}

// ClientIP extracts the originating IP from a request, honoring the first
// entry of X-Forwarded-For when present (the deployment sits behind a
// reverse proxy that sets it).
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
