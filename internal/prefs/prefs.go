// Package prefs stores small device preferences in a bbolt file: the device
// id, the fingerprint of the last applied remote configuration, and the
// layout that configuration described.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"signage/internal/layout"
)

var bucketDevice = []byte("device")

var (
	keyDeviceID    = []byte("device_id")
	keyFingerprint = []byte("last_config_hash")
	keyLayout      = []byte("layout_json")
	keyAppliedAt   = []byte("applied_at")
)

// Applied is the snapshot written after a successful sync.
type Applied struct {
	Fingerprint string        `json:"fingerprint"`
	Layout      layout.Layout `json:"layout"`
	AppliedAt   time.Time     `json:"applied_at"`
}

// Store is a bbolt-backed preference store with an in-memory read cache.
type Store struct {
	db *bolt.DB

	mu    sync.RWMutex
	cache map[string][]byte
}

// Open opens (or creates) the preferences file.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure prefs directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open prefs db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDevice)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create prefs bucket: %w", err)
	}
	return &Store{db: db, cache: make(map[string][]byte)}, nil
}

// Close closes the preferences file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) get(key []byte) []byte {
	s.mu.RLock()
	if data, ok := s.cache[string(key)]; ok {
		s.mu.RUnlock()
		return data
	}
	s.mu.RUnlock()

	var data []byte
	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketDevice).Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})

	s.mu.Lock()
	s.cache[string(key)] = data
	s.mu.Unlock()
	return data
}

func (s *Store) update(values map[string][]byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevice)
		for key, value := range values {
			var err error
			if value == nil {
				err = b.Delete([]byte(key))
			} else {
				err = b.Put([]byte(key), value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	s.mu.Lock()
	for key, value := range values {
		s.cache[key] = value
	}
	s.mu.Unlock()
	return nil
}

// DeviceID returns the persisted device id, or "" when none was stored.
func (s *Store) DeviceID() string {
	return string(s.get(keyDeviceID))
}

// EnsureDeviceID returns the persisted device id. When none exists it stores
// preferred if non-empty, otherwise the value produced by generate.
func (s *Store) EnsureDeviceID(preferred string, generate func() string) (string, error) {
	if preferred != "" {
		if s.DeviceID() != preferred {
			if err := s.update(map[string][]byte{string(keyDeviceID): []byte(preferred)}); err != nil {
				return "", err
			}
		}
		return preferred, nil
	}
	if id := s.DeviceID(); id != "" {
		return id, nil
	}
	if generate == nil {
		return "", errors.New("no device id configured and no generator supplied")
	}
	id := generate()
	if err := s.update(map[string][]byte{string(keyDeviceID): []byte(id)}); err != nil {
		return "", err
	}
	return id, nil
}

// Fingerprint returns the fingerprint of the last applied configuration.
func (s *Store) Fingerprint() string {
	return string(s.get(keyFingerprint))
}

// Layout returns the last applied layout.
func (s *Store) Layout() (layout.Layout, bool) {
	data := s.get(keyLayout)
	if len(data) == 0 {
		return layout.Layout{}, false
	}
	var l layout.Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return layout.Layout{}, false
	}
	return l, true
}

// AppliedAt returns when the current configuration was applied.
func (s *Store) AppliedAt() (time.Time, bool) {
	data := s.get(keyAppliedAt)
	if len(data) == 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Commit stores the layout and fingerprint of a fully applied configuration
// in one bbolt transaction.
func (s *Store) Commit(applied Applied) error {
	data, err := json.Marshal(applied.Layout)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	at := applied.AppliedAt
	if at.IsZero() {
		at = time.Now()
	}
	return s.update(map[string][]byte{
		string(keyFingerprint): []byte(applied.Fingerprint),
		string(keyLayout):      data,
		string(keyAppliedAt):   []byte(at.UTC().Format(time.RFC3339Nano)),
	})
}

// Forget drops the applied configuration while keeping the device id.
func (s *Store) Forget() error {
	return s.update(map[string][]byte{
		string(keyFingerprint): nil,
		string(keyLayout):      nil,
		string(keyAppliedAt):   nil,
	})
}
