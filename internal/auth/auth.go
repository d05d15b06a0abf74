// Package auth resolves API tokens to caller identities.
//
// Token issuance and identity-provider exchange live outside this service;
// the server only needs a Resolver.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidToken is returned when a token does not resolve to an identity.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller.
type Identity struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"-"`
}

// Anonymous is the identity assigned to every request when auth is disabled.
var Anonymous = Identity{UserID: "anonymous", Anonymous: true}

// Resolver maps a bearer token to an identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// StaticResolver resolves tokens from a fixed table.
type StaticResolver struct {
	entries []staticEntry
}

type staticEntry struct {
	token    []byte
	identity Identity
}

// ParseStaticTokens parses a comma-separated list of token=user[:email]
// entries. An empty spec yields an empty resolver.
func ParseStaticTokens(spec string) (*StaticResolver, error) {
	r := &StaticResolver{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		token, who, ok := strings.Cut(part, "=")
		if !ok || token == "" || who == "" {
			return nil, fmt.Errorf("invalid token entry %q: want token=user[:email]", part)
		}
		user, email, _ := strings.Cut(who, ":")
		if user == "" {
			return nil, fmt.Errorf("invalid token entry %q: empty user", part)
		}
		r.entries = append(r.entries, staticEntry{
			token:    []byte(token),
			identity: Identity{UserID: user, Email: email},
		})
	}
	return r, nil
}

// Len returns the number of configured tokens.
func (r *StaticResolver) Len() int { return len(r.entries) }

// Resolve compares token against every entry in constant time.
func (r *StaticResolver) Resolve(_ context.Context, token string) (*Identity, error) {
	var found *Identity
	for i := range r.entries {
		if subtle.ConstantTimeCompare([]byte(token), r.entries[i].token) == 1 {
			id := r.entries[i].identity
			found = &id
		}
	}
	if found == nil {
		return nil, ErrInvalidToken
	}
	return found, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header.
// When allowQuery is set it falls back to the token query parameter, for
// clients that cannot set headers (EventSource). It returns an error when
// the header uses another scheme.
func TokenFromRequest(r *http.Request, allowQuery bool) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return "", errors.New("invalid authorization scheme")
		}
		return strings.TrimPrefix(h, "Bearer "), nil
	}
	if allowQuery {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, nil
		}
	}
	return "", errors.New("missing authorization header")
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or Anonymous.
func FromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(ctxKey{}).(*Identity); ok && id != nil {
		return id
	}
	anon := Anonymous
	return &anon
}
