// Package identity derives stable vector-store identifiers for document
// chunks. Identity is a pure function of (pageID, chunk index): re-ingesting
// a page overwrites its records in place instead of accumulating duplicates,
// without any persisted counter or lookup table.
package identity

import (
	"strconv"

	"github.com/google/uuid"
)

// ChunkID returns the deterministic UUID for the chunk at index within the
// page identified by pageID. Two name-based (version 5) UUIDs are chained:
// a per-page namespace is derived from "confluence:<pageID>" under the URL
// namespace, and the final identifier is derived from "chunk:<index>" within
// that namespace. The same pair always yields the byte-identical UUID across
// runs and processes.
func ChunkID(pageID string, index int) string {
	ns := uuid.NewSHA1(uuid.NameSpaceURL, []byte("confluence:"+pageID))
	return uuid.NewSHA1(ns, []byte("chunk:"+strconv.Itoa(index))).String()
}
