package requestid

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header carries the request ID in both directions
const Header = "X-Request-ID"

const maxLength = 128

// Middleware reuses a well-formed incoming X-Request-ID or generates a new one.
// The ID is stored in the request context and echoed in the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !Valid(id) {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

// Valid reports whether id is a non-empty token of letters, digits, '-' and '_'
// no longer than 128 bytes.
func Valid(id string) bool {
	if id == "" || len(id) > maxLength {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return false
		}
		return true
	}) < 0
}
