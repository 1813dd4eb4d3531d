// Package sink persists harvested records, one file per record under
// one directory per set.
package sink

import (
	"net/url"
)

// Record is one unit of harvested metadata. The payload is opaque to the
// harvester and is written out exactly as received: the extracted record
// fragment in batch mode, the full GetRecord response body in identifier
// mode.
type Record struct {
	Identifier string
	Set        string
	Payload    []byte
}

// Sink persists record payloads to deterministic locations. Re-persisting
// the same identifier replaces the prior content unconditionally.
type Sink interface {
	Persist(record Record) error
	Close() error
}

// SafeFileName encodes an identifier for use as a file basename.
// Identifiers are opaque server-chosen strings and may contain path
// separators; writing them verbatim would allow traversal outside the
// partition directory or collisions between distinct identifiers.
func SafeFileName(identifier string) string {
	name := url.PathEscape(identifier)
	switch name {
	case "", ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return name
}
