package resource

import (
	"sort"
	"strings"
)

// paramID is the reserved parameter used by detail keys.
const paramID = "id"

// Param is a single filter or identity parameter of a cache key.
type Param struct {
	Name  string
	Value string
}

// Key is a structural cache key: a resource type plus a canonicalized set of
// filter/identity parameters. Keys are structural rather than opaque strings
// so that invalidation can match whole families of entries by prefix (for
// example every filtered or paginated view of one collection).
type Key struct {
	Type   Type
	Params []Param
}

// NewKey builds a key for the given resource type and filter parameters.
// Parameters are canonicalized by sorting on name so that equivalent filter
// maps always produce the same key.
func NewKey(t Type, params map[string]string) Key {
	ps := make([]Param, 0, len(params))
	for name, value := range params {
		ps = append(ps, Param{Name: name, Value: value})
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return Key{Type: t, Params: ps}
}

// ListKey builds a key identifying a filtered collection view.
func ListKey(t Type, filters map[string]string) Key {
	return NewKey(t, filters)
}

// DetailKey builds a key identifying a single resource by ID.
func DetailKey(t Type, id string) Key {
	return NewKey(t, map[string]string{paramID: id})
}

// TypeKey builds the broadest key for a resource type. It matches every
// entry of that type when used as an invalidation pattern.
func TypeKey(t Type) Key {
	return Key{Type: t}
}

// Param returns the value of the named parameter and whether it is present.
func (k Key) Param(name string) (string, bool) {
	for _, p := range k.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// ID returns the identity parameter of a detail key, or false for list keys.
func (k Key) ID() (string, bool) {
	return k.Param(paramID)
}

// IsDetail reports whether the key identifies a single resource.
func (k Key) IsDetail() bool {
	_, ok := k.ID()
	return ok
}

// Filters returns the key parameters as a map.
func (k Key) Filters() map[string]string {
	filters := make(map[string]string, len(k.Params))
	for _, p := range k.Params {
		filters[p.Name] = p.Value
	}
	return filters
}

// String renders the canonical form of the key, e.g.
// "orders?page=2&space=ab12". The canonical form is stable and unique per
// structural key and is what the store indexes entries by.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(string(k.Type))
	for i, p := range k.Params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// Matches reports whether the key matches the given pattern. A pattern
// matches when the types are equal and every pattern parameter appears in
// the key with the same value; a pattern with no parameters matches every
// key of its type. Matching is what lets "all orders for space X" invalidate
// each filtered and paginated variant without enumerating them.
func (k Key) Matches(pattern Key) bool {
	if k.Type != pattern.Type {
		return false
	}
	for _, want := range pattern.Params {
		got, ok := k.Param(want.Name)
		if !ok || got != want.Value {
			return false
		}
	}
	return true
}

// Equal reports whether two keys are structurally identical.
func (k Key) Equal(other Key) bool {
	if k.Type != other.Type || len(k.Params) != len(other.Params) {
		return false
	}
	for i := range k.Params {
		if k.Params[i] != other.Params[i] {
			return false
		}
	}
	return true
}
