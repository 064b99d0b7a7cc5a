// Package noop provides an authenticator that admits every request as
// the anonymous caller. It is meant for local development.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/umfrage/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

// Authenticate implements auth.Authenticator.
func (Authenticator) Authenticate(context.Context, *http.Request) auth.Result {
	return auth.Result{Decision: auth.Yes, Identity: auth.Anonymous()}
}
