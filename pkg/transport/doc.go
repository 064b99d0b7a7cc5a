// Package transport holds the HTTP plumbing shared by the API server:
// the middleware chain (recovery, request IDs, access logging) and the
// mapping from domain errors to JSON error responses.
//
// Errors from the service layer are translated by WriteError:
//
//   - *api.APIError is written as is
//   - *codec.SchemaViolation becomes 400 with the violation kind as code
//   - storage.ErrNotFound becomes 404, storage.ErrConflict 409
//   - invalid survey ids and file names become 400
//   - anything else is logged and reported as 500
package transport
