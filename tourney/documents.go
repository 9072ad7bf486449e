package tourney

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

const (
	tournamentsDocument = "tournaments"
	progressDocument    = "progress"
	rewardsDocument     = "rewards"
)

// Document is a persisted key-value tree. Entries stay encoded until the owning
// component decodes them, so a single malformed entry can be skipped on load.
type Document map[string]json.RawMessage

// The DocumentStore loads and saves whole documents by name. Implementations must make
// Save atomic: a reader sees either the previous or the new document, never a torn write.
type DocumentStore interface {
	// Load returns ErrDocumentNotFound when nothing has been saved under name yet.
	Load(ctx context.Context, name string) (Document, error)

	Save(ctx context.Context, name string, doc Document) error
}

// corruptSuffix names the copy a corrupt document is moved to.
const corruptSuffix = ".corrupt"

// A DocumentQuarantiner can move an unreadable document aside, leaving its name free for a fresh one.
type DocumentQuarantiner interface {
	// Quarantine renames document name to name+".corrupt", replacing any earlier quarantined copy.
	Quarantine(ctx context.Context, name string) error
}

func encodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	return json.Marshal(doc)
}

func decodeDocument(data []byte) (Document, error) {
	doc := Document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentCorrupt, err)
	}
	return doc, nil
}

// MemoryDocumentStore keeps encoded documents in process memory.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string][]byte)}
}

func (m *MemoryDocumentStore) Load(ctx context.Context, name string) (Document, error) {
	m.mu.Lock()
	data, ok := m.docs[name]
	m.mu.Unlock()
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return decodeDocument(data)
}

func (m *MemoryDocumentStore) Save(ctx context.Context, name string, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[name] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryDocumentStore) Quarantine(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[name]
	if !ok {
		return ErrDocumentNotFound
	}
	m.docs[name+corruptSuffix] = data
	delete(m.docs, name)
	return nil
}

// Raw returns the stored bytes of a document, used by tests to corrupt entries on purpose.
func (m *MemoryDocumentStore) Raw(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[name]
	return data, ok
}

// SetRaw replaces the stored bytes of a document.
func (m *MemoryDocumentStore) SetRaw(name string, data []byte) {
	m.mu.Lock()
	m.docs[name] = data
	m.mu.Unlock()
}
