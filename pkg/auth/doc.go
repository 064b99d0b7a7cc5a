// Package auth authenticates API callers and checks what they may do.
//
// Authenticators form a chain with three-outcome voting: Yes (identity
// found), No (credentials present but invalid) or Abstain (credentials not
// of this kind). When every authenticator abstains the chain's default
// decision applies.
//
// Callers carry scopes. Survey administration requires ScopeAdmin;
// recording responses and uploading attachments requires ScopeRespond.
package auth
