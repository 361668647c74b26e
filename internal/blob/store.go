// Package blob persists binary objects (preview images) in a local Badger
// store and addresses them by stable public /media/ URLs.
package blob

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	dataPrefix = "data:"
	typePrefix = "type:"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = badger.ErrKeyNotFound

// Store is a Badger-backed blob store.
type Store struct {
	db      *badger.DB
	baseURL string
}

// Open opens (or creates) the blob store at dir. baseURL is the externally
// visible prefix under which objects are served (e.g. http://127.0.0.1:4600).
func Open(dir, baseURL string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Badger's default logger is noisy on stderr.
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	return &Store{db: db, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores data under filename and returns its stable public URL.
func (s *Store) Put(filename string, data []byte, contentType string) (string, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataPrefix+filename), data); err != nil {
			return err
		}
		return txn.Set([]byte(typePrefix+filename), []byte(contentType))
	})
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", filename, err)
	}
	return s.URL(filename), nil
}

// Get returns the object's bytes and content type.
func (s *Store) Get(filename string) (data []byte, contentType string, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataPrefix + filename))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		if item, err = txn.Get([]byte(typePrefix + filename)); err == nil {
			ct, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			contentType = string(ct)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// DeleteMany removes objects by filename. Missing filenames are ignored.
func (s *Store) DeleteMany(filenames []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, f := range filenames {
			if err := txn.Delete([]byte(dataPrefix + f)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Delete([]byte(typePrefix + f)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
}

// URL returns the public URL an object is (or would be) served at.
func (s *Store) URL(filename string) string {
	return s.baseURL + "/media/" + filename
}
