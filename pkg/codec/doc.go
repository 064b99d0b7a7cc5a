// Package codec converts between a response's semantic value map and the
// single encoded blob persisted in the response table.
//
// Encoding validates every key against the survey schema and every value
// against its field's declared data type before anything is written. The
// first offending key fails the whole call with a [*SchemaViolation].
// Decoding re-keys persisted column names back to value keys and omits
// fields the blob does not contain.
package codec
