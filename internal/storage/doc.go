// Package storage persists episode catalogs, transcript documents, and
// rendered feeds as JSON and XML files under the configured data directory.
package storage
