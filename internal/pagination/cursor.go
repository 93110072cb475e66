// Package pagination implements the opaque cursors behind note listing.
// A cursor marks the position after the last note of a served page; the
// stores use it as a keyset boundary so pages stay stable while notes are
// ingested concurrently.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// ErrInvalidCursor reports a cursor token that did not come from EncodeCursor
var ErrInvalidCursor = errors.New("invalid cursor format")

// Cursor is the decoded keyset boundary of a page
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// EncodeCursor packs the last note's id and update time into an opaque
// token. An empty id yields an empty token: there is no next page.
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor unpacks a token produced by EncodeCursor. An empty token
// decodes to a nil cursor, meaning the first page. Anything that is not a
// well-formed token is ErrInvalidCursor, never a partial cursor.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	id, stamp, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{LastID: id, Timestamp: timestamp}, nil
}
