package state

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Property is a typed view over one named slice of a Document.
type Property[T any] struct {
	name string
	def  func() T
}

// NewProperty registers name on m. Names are unique per Manager.
func NewProperty[T any](m *Manager, name string) (*Property[T], error) {
	if err := m.register(name); err != nil {
		return nil, err
	}
	return &Property[T]{
		name: strings.TrimSpace(name),
		def:  func() T { var zero T; return zero },
	}, nil
}

// WithDefault sets the value Get returns when the property is absent.
func (p *Property[T]) WithDefault(fn func() T) *Property[T] {
	if fn != nil {
		p.def = fn
	}
	return p
}

func (p *Property[T]) Name() string { return p.name }

// Get decodes the property, or returns the default if it was never set.
func (p *Property[T]) Get(doc *Document) (T, error) {
	raw, ok := doc.get(p.name)
	if !ok {
		return p.def(), nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("state: decode property %q: %w", p.name, err)
	}
	return v, nil
}

// Set stores v. The document is marked changed only if the encoding differs.
func (p *Property[T]) Set(doc *Document, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode property %q: %w", p.name, err)
	}
	doc.set(p.name, raw)
	return nil
}
