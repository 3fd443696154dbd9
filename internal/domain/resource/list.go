package resource

import (
	"bytes"
	"encoding/json"

	"github.com/spacehub/core/internal/domain/shared"
)

// List is the wire envelope for collection payloads. Items stay opaque; the
// envelope is decoded only at the edges that need to edit or inspect a
// collection (optimistic predictors, the inventory ledger).
type List struct {
	Items      []json.RawMessage `json:"items"`
	Pagination Pagination        `json:"pagination"`
}

// DecodeList parses a cached collection payload. A nil payload decodes to an
// empty list so predictors can run against not-yet-fetched keys.
func DecodeList(raw json.RawMessage) (*List, error) {
	if len(raw) == 0 {
		return &List{Items: []json.RawMessage{}}, nil
	}
	var l List
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, shared.NewDomainError("MALFORMED_PAYLOAD", "Collection payload is not a valid list envelope")
	}
	if l.Items == nil {
		l.Items = []json.RawMessage{}
	}
	return &l, nil
}

// Encode renders the envelope back to a cacheable payload.
func (l *List) Encode() (json.RawMessage, error) {
	return json.Marshal(l)
}

// Append adds an item at the end and bumps the total.
func (l *List) Append(item json.RawMessage) {
	l.Items = append(l.Items, item)
	l.Pagination.Total++
}

// Prepend adds an item at the front and bumps the total. Used by optimistic
// create predictors, which surface the newest record first.
func (l *List) Prepend(item json.RawMessage) {
	l.Items = append([]json.RawMessage{item}, l.Items...)
	l.Pagination.Total++
}

// RemoveByID deletes the first item whose "id" field equals id and reports
// whether anything was removed.
func (l *List) RemoveByID(id string) bool {
	for i, item := range l.Items {
		if itemID(item) == id {
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			if l.Pagination.Total > 0 {
				l.Pagination.Total--
			}
			return true
		}
	}
	return false
}

// ReplaceByID swaps the first item whose "id" field equals id and reports
// whether a replacement happened.
func (l *List) ReplaceByID(id string, item json.RawMessage) bool {
	for i, existing := range l.Items {
		if itemID(existing) == id {
			l.Items[i] = item
			return true
		}
	}
	return false
}

// ContainsID reports whether any item carries the given "id" field.
func (l *List) ContainsID(id string) bool {
	for _, item := range l.Items {
		if itemID(item) == id {
			return true
		}
	}
	return false
}

// Len returns the number of items currently held.
func (l *List) Len() int {
	return len(l.Items)
}

func itemID(item json.RawMessage) string {
	var envelope struct {
		ID string `json:"id"`
	}
	dec := json.NewDecoder(bytes.NewReader(item))
	if err := dec.Decode(&envelope); err != nil {
		return ""
	}
	return envelope.ID
}
