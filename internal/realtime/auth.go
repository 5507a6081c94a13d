package realtime

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/ridekit/pkg/fanout"
)

// Headers set by the authenticating proxy in front of the realtime server
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

var ErrUnauthenticated = errors.New("realtime: unauthenticated")

// Authenticator resolves the subject of an upgrade request
type Authenticator interface {
	Authenticate(r *http.Request) (fanout.Subject, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(r *http.Request) (fanout.Subject, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (fanout.Subject, error) {
	return f(r)
}

// HeaderAuthenticator trusts identity headers injected by an upstream proxy
// after it validated the access token
func HeaderAuthenticator() Authenticator {
	return AuthenticatorFunc(func(r *http.Request) (fanout.Subject, error) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			return fanout.Subject{}, ErrUnauthenticated
		}
		return fanout.Subject{
			UserID: userID,
			Admin:  strings.EqualFold(r.Header.Get(HeaderUserRole), "admin"),
		}, nil
	})
}
