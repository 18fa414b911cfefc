// Package identity resolves the authenticated user for an inbound request.
// Credential verification happens upstream (gateway or auth proxy); this
// package only reads the identity it was handed.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// DefaultHeader carries the user id set by the upstream authenticator.
const DefaultHeader = "X-User-ID"

// ErrUnauthenticated is returned when a request carries no identity.
var ErrUnauthenticated = errors.New("authentication required")

// Resolver yields the user id for a request.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver reads the user id from Header. When the header is absent
// and Fallback is set, Fallback is used instead; this is the development
// mode where every request acts as one fixed user.
type HeaderResolver struct {
	Header   string
	Fallback string
}

func (h HeaderResolver) Resolve(r *http.Request) (string, error) {
	header := h.Header
	if header == "" {
		header = DefaultHeader
	}
	if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
		return id, nil
	}
	if h.Fallback != "" {
		return h.Fallback, nil
	}
	return "", ErrUnauthenticated
}

// Fixed resolves every request to the same user id.
type Fixed string

func (f Fixed) Resolve(*http.Request) (string, error) {
	if f == "" {
		return "", ErrUnauthenticated
	}
	return string(f), nil
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the user id stored by WithUser.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Middleware resolves the caller and stores the id in the request context.
// Unresolvable requests get onError, which must write the response.
func Middleware(res Resolver, onError func(w http.ResponseWriter, r *http.Request, err error), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := res.Resolve(r)
		if err != nil {
			onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}
