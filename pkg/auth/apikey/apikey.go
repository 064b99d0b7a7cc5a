// Package apikey authenticates callers by static API keys. Keys are kept
// only as SHA-256 digests and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rhuss/umfrage/pkg/auth"
)

// HeaderName is the alternative to a bearer token.
const HeaderName = "X-API-Key"

// Key is a configured key and the identity it grants.
type Key struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	digest   [32]byte
	identity auth.Identity
}

// Authenticator validates API keys.
type Authenticator struct {
	entries []entry
}

// New hashes keys and returns an Authenticator. Empty keys are skipped.
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		a.entries = append(a.entries, entry{digest: sha256.Sum256([]byte(k.Key)), identity: k.Identity})
	}
	return a
}

// Authenticate implements auth.Authenticator. It abstains when the request
// carries neither a bearer token nor an X-API-Key header.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key := r.Header.Get(HeaderName)
	if key == "" {
		token, ok := auth.BearerToken(r)
		if !ok {
			return auth.Result{Decision: auth.Abstain}
		}
		key = token
	}
	if key == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(key))
	match := -1
	for i := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}
	id := a.entries[match].identity
	id.Scopes = append([]string(nil), id.Scopes...)
	return auth.Result{Decision: auth.Yes, Identity: &id}
}
