package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

// Decision is the vote of an authenticator.
type Decision int

const (
	// Yes means the credentials are valid and the chain stops.
	Yes Decision = iota

	// No means credentials are present but invalid. The chain stops and
	// the request is rejected.
	No

	// Abstain means the authenticator does not handle these credentials.
	Abstain
)

// Result carries the outcome of an authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set when Decision == Yes
	Err      error     // set when Decision == No
}

// Scopes granted to callers.
const (
	// ScopeAdmin allows creating, changing and removing surveys.
	ScopeAdmin = "surveys:admin"

	// ScopeRespond allows starting and editing responses.
	ScopeRespond = "responses:write"

	// ScopeAll grants every scope.
	ScopeAll = "*"
)

// Identity is an authenticated caller.
type Identity struct {
	Subject     string
	ServiceTier string
	Scopes      []string
}

// Has reports whether the identity was granted scope.
func (id *Identity) Has(scope string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Scopes, ScopeAll) || slices.Contains(id.Scopes, scope)
}

// Tier returns the service tier, or "default".
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}

// Anonymous is the identity used when every authenticator abstains and the
// chain accepts by default.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default", Scopes: []string{ScopeAll}}
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain evaluates authenticators in order.
type Chain struct {
	Authenticators []Authenticator

	// Default applies when all authenticators abstain. Yes admits the
	// caller as Anonymous.
	Default Decision
}

// Authenticate runs the chain and stops on the first Yes or No.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.Default == Yes {
		return Result{Decision: Yes, Identity: Anonymous()}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken returns the token of a "Bearer" Authorization header. ok is
// false when the header is missing or uses another scheme.
func BearerToken(r *http.Request) (token string, ok bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}
