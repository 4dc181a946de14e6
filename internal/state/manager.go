// Package state loads and saves per-conversation state documents and exposes
// named, typed properties inside them.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"festival-bot/internal/domain"
	"festival-bot/internal/repository"
)

const DefaultNamespace = "user"

var (
	ErrDuplicateProperty = errors.New("state: duplicate property name")
	ErrEmptyProperty     = errors.New("state: property name must not be empty")
)

// Document is one loaded state document. It is not safe for concurrent use;
// each turn works on its own copy.
type Document struct {
	props   map[string]json.RawMessage
	version int64
	changed bool
}

// Version is the store version the document was loaded at (0 if new).
func (d *Document) Version() int64 { return d.version }

// Changed reports whether any property was set to a different value since load.
func (d *Document) Changed() bool { return d.changed }

func (d *Document) get(name string) (json.RawMessage, bool) {
	raw, ok := d.props[name]
	return raw, ok
}

func (d *Document) set(name string, raw json.RawMessage) {
	if prev, ok := d.props[name]; ok && bytes.Equal(prev, raw) {
		return
	}
	d.props[name] = raw
	d.changed = true
}

// Manager addresses state documents by conversation identity.
type Manager struct {
	store     repository.Store
	namespace string
	logger    *slog.Logger

	mu    sync.Mutex
	names map[string]struct{}
}

func NewManager(store repository.Store, namespace string, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("state: store must not be nil")
	}
	namespace = strings.Trim(strings.TrimSpace(namespace), "/")
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		namespace: namespace,
		logger:    logger,
		names:     make(map[string]struct{}),
	}, nil
}

// Key returns the store key for id.
func (m *Manager) Key(id domain.ConversationIdentity) string {
	return m.namespace + "/" + id.String()
}

// Load fetches the document for id. A missing document comes back empty at
// version 0 and nothing is written.
func (m *Manager) Load(ctx context.Context, id domain.ConversationIdentity) (*Document, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("state: Load: %w", err)
	}
	key := m.Key(id)
	item, found, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("state: Load %q: %w", key, err)
	}
	doc := &Document{props: make(map[string]json.RawMessage)}
	if !found {
		return doc, nil
	}
	if len(item.Data) > 0 {
		if err := json.Unmarshal(item.Data, &doc.props); err != nil {
			return nil, fmt.Errorf("state: Load %q decode: %w", key, err)
		}
		if doc.props == nil {
			doc.props = make(map[string]json.RawMessage)
		}
	}
	doc.version = item.Version
	return doc, nil
}

// Save overwrites the stored document when it changed. A concurrent writer
// surfaces as repository.ErrConflict.
func (m *Manager) Save(ctx context.Context, id domain.ConversationIdentity, doc *Document) error {
	if doc == nil {
		return errors.New("state: Save: document must not be nil")
	}
	if !doc.changed {
		return nil
	}
	key := m.Key(id)
	data, err := json.Marshal(doc.props)
	if err != nil {
		return fmt.Errorf("state: Save %q encode: %w", key, err)
	}
	version, err := m.store.Put(ctx, key, data, doc.version)
	if err != nil {
		return fmt.Errorf("state: Save %q: %w", key, err)
	}
	m.logger.DebugContext(ctx, "state saved", "key", key, "version", version)
	doc.version = version
	doc.changed = false
	return nil
}

func (m *Manager) register(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyProperty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.names[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateProperty, name)
	}
	m.names[name] = struct{}{}
	return nil
}
