// Package queue implements the shared work queue collectors coordinate
// through: named documents holding ticker lists, field-scoped set add and
// remove, and the todo/doing/maintain/bad_contract state machine on top.
package queue

import (
	"context"
	"errors"
	"strings"
)

// Document names a queue document.
type Document string

const (
	Todo        Document = "todo"
	Doing       Document = "doing"
	Maintain    Document = "maintain"
	BadContract Document = "bad_contract"
)

// Documents lists every queue document.
var Documents = []Document{Todo, Doing, Maintain, BadContract}

// ParseDocument validates a document name.
func ParseDocument(s string) (Document, error) {
	for _, d := range Documents {
		if string(d) == s {
			return d, nil
		}
	}
	return "", errors.New("unknown queue document " + s)
}

// ErrEmpty is returned by Claim when neither the worker slot nor todo holds
// a ticker.
var ErrEmpty = errors.New("queue empty")

// Store is the document store behind the queue. Fields are addressed by a
// dotted path ("tick", or "user.account.tick" inside doing) and hold ordered
// sets of tickers. ArrayUnion and ArrayRemove are each atomic and idempotent
// on a single field; nothing is atomic across documents.
type Store interface {
	// Read returns every non-empty field of doc, values in insertion order.
	Read(ctx context.Context, doc Document) (map[string][]string, error)

	// ArrayUnion appends values missing from the field, keeping existing order.
	ArrayUnion(ctx context.Context, doc Document, field string, values ...string) error

	// ArrayRemove removes values from the field. Absent values are ignored.
	ArrayRemove(ctx context.Context, doc Document, field string, values ...string) error

	Close() error
}

// FieldPath joins path segments into a dotted field path.
func FieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}
