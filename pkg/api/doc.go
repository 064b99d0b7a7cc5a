// Package api defines the core domain types for the umfrage response store.
//
// A survey owns a schema: an ordered list of [ResponseField] descriptors that
// decides which keys a response may carry and what type each value must have.
// Responses are stored as [ResponseRow] values with a handful of structural
// attributes and a dynamically typed value map.
//
// Core types:
//   - [ResponseField]: component code, column kind and declared [DataType]
//   - [Schema]: ordered field list, unique by value key
//   - [ResponseRow]: one stored response
//   - [StoredFile]: descriptor of an uploaded attachment
//   - [Survey]: the survey metadata record
//   - [APIError]: structured error with type, code, param, and message
//
// The package performs no I/O.
package api
