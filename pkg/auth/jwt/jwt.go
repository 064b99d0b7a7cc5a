// Package jwt authenticates callers by HMAC-signed JSON Web Tokens, as
// issued by the survey front end to respondents and administrators.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/umfrage/pkg/auth"
)

// Config holds the token validation settings.
type Config struct {
	// Secret is the shared HMAC key. Required.
	Secret []byte

	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string

	// ScopesClaim names the claim holding scopes, either a space-separated
	// string or an array. Default: "scope".
	ScopesClaim string

	// TierClaim names the claim holding the service tier. Default: "tier".
	TierClaim string

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
}

// Authenticator validates HS256/HS384/HS512 bearer tokens.
type Authenticator struct {
	cfg    Config
	parser *jwtlib.Parser
}

// New returns an Authenticator or an error if no secret is configured.
func New(cfg Config) (*Authenticator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt: secret is required")
	}
	if cfg.ScopesClaim == "" {
		cfg.ScopesClaim = "scope"
	}
	if cfg.TierClaim == "" {
		cfg.TierClaim = "tier"
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}
	return &Authenticator{cfg: cfg, parser: jwtlib.NewParser(opts...)}, nil
}

// Authenticate implements auth.Authenticator. Requests without a bearer
// token abstain. Tokens that do not look like a JWT also abstain so that
// an API key authenticator later in the chain can handle them.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, ok := auth.BearerToken(r)
	if !ok || strings.Count(token, ".") != 2 {
		return auth.Result{Decision: auth.Abstain}
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) {
		return a.cfg.Secret, nil
	})
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid token: %w", err)}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return auth.Result{Decision: auth.No, Err: errors.New("token has no subject")}
	}

	tier, _ := claims[a.cfg.TierClaim].(string)
	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     sub,
			ServiceTier: tier,
			Scopes:      scopes(claims[a.cfg.ScopesClaim]),
		},
	}
}

func scopes(v any) []string {
	switch s := v.(type) {
	case string:
		return strings.Fields(s)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
