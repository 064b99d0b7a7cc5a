// Package storage holds what the storage backends share: sentinel errors,
// the allow-listed naming of per-survey partitions, and the store
// interfaces the service layer depends on.
//
// The relational backend lives in pkg/storage/sql and the filesystem blob
// store in pkg/storage/files.
package storage
