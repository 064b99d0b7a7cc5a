// Package survey ties survey metadata, response partitions and survey
// files together. Service is the entry point for the transport layer and
// the admin CLI; Lifecycle creates and destroys the per-survey resources.
package survey
