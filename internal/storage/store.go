package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/mrz1836/dappbridge/internal/fileutil"
	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

const storageFilePermissions = 0o600

// Store loads and saves the whole document. Saves replace the stored
// document wholesale; concurrent writers race and the last write wins.
type Store interface {
	Load() (*Document, error)
	Save(doc *Document) error
}

// FileStore keeps the document in a single JSON file, optionally age-encrypted.
type FileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

// NewFileStore creates a store at path. A non-empty passphrase seals the
// document on every Save and is required to load a sealed file.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the document. A missing file yields an empty document.
func (s *FileStore) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path) //nolint:gosec // G304: path comes from config
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(), nil
		}
		return nil, bridgeerr.Wrap(err, "reading storage")
	}

	if IsSealed(data) {
		if s.passphrase == "" {
			return nil, bridgeerr.ErrPassphraseRequired
		}
		data, err = Unseal(data, s.passphrase)
		if err != nil {
			return nil, bridgeerr.ErrDecryptionFailed
		}
	}

	return decode(data)
}

// Save writes doc atomically.
func (s *FileStore) Save(doc *Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if s.passphrase != "" {
		if data, err = Seal(data, s.passphrase); err != nil {
			return bridgeerr.Wrap(err, "sealing storage")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fileutil.WriteAtomic(s.path, data, storageFilePermissions); err != nil {
		return bridgeerr.Wrap(err, "writing storage")
	}
	return nil
}

// MemoryStore keeps the serialized document in memory. Every Load returns a
// fresh decode so callers never share maps.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemoryStore returns a store seeded with doc, or empty when doc is nil.
func NewMemoryStore(doc *Document) *MemoryStore {
	s := &MemoryStore{}
	if doc != nil {
		data, err := encode(doc)
		if err == nil {
			s.data = data
		}
	}
	return s
}

// Load implements Store.
func (s *MemoryStore) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return NewDocument(), nil
	}
	return decode(s.data)
}

// Save implements Store.
func (s *MemoryStore) Save(doc *Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func encode(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, bridgeerr.Wrap(err, "encoding storage")
	}
	return data, nil
}

func decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, bridgeerr.WithDetails(bridgeerr.ErrStorageCorrupted, map[string]string{"cause": err.Error()})
	}
	doc.normalize()
	return &doc, nil
}
