package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"deckd/internal/domain"
)

const (
	rootBucketName    = "deckd"
	serversBucketName = "servers"
	metaBucketName    = "meta"
	schemaVersionKey  = "schema_version"
	schemaVersion     = 1
)

var ErrStoreClosed = errors.New("server store is closed")

// Store persists the saved-server list. One per device; reloaded at
// startup and rewritten on every registry commit that changes it.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	options := &bolt.Options{Timeout: time.Second}
	db, err := bolt.Open(trimmed, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("open server store: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: trimmed}, nil
}

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(rootBucketName))
		if err != nil {
			return fmt.Errorf("create root bucket: %w", err)
		}
		if _, err := root.CreateBucketIfNotExists([]byte(serversBucketName)); err != nil {
			return fmt.Errorf("create servers bucket: %w", err)
		}
		meta, err := root.CreateBucketIfNotExists([]byte(metaBucketName))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if meta.Get([]byte(schemaVersionKey)) == nil {
			value := fmt.Sprintf("%d", schemaVersion)
			if err := meta.Put([]byte(schemaVersionKey), []byte(value)); err != nil {
				return fmt.Errorf("write schema version: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// List returns all saved servers, sorted for stable output.
func (s *Store) List() ([]domain.ServerConfig, error) {
	var configs []domain.ServerConfig
	err := s.view(func(tx *bolt.Tx) error {
		bucket, err := serversBucket(tx)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(key, value []byte) error {
			if value == nil {
				return nil
			}
			var config domain.ServerConfig
			if err := json.Unmarshal(value, &config); err != nil {
				return fmt.Errorf("decode server %s: %w", key, err)
			}
			configs = append(configs, config)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	domain.SortServers(configs)
	return configs, nil
}

// Put writes or replaces one saved server.
func (s *Store) Put(config domain.ServerConfig) error {
	if strings.TrimSpace(config.ID) == "" {
		return fmt.Errorf("server id is required")
	}
	return s.update(func(tx *bolt.Tx) error {
		bucket, err := serversBucket(tx)
		if err != nil {
			return err
		}
		value, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("encode server %s: %w", config.ID, err)
		}
		return bucket.Put([]byte(config.ID), value)
	})
}

// Delete removes one saved server; deleting a missing id is a no-op.
func (s *Store) Delete(id string) error {
	return s.update(func(tx *bolt.Tx) error {
		bucket, err := serversBucket(tx)
		if err != nil {
			return err
		}
		return bucket.Delete([]byte(id))
	})
}

// Replace rewrites the whole saved-server list in one transaction.
func (s *Store) Replace(configs []domain.ServerConfig) error {
	return s.update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucketName))
		if root == nil {
			return fmt.Errorf("missing root bucket")
		}
		if root.Bucket([]byte(serversBucketName)) != nil {
			if err := root.DeleteBucket([]byte(serversBucketName)); err != nil {
				return fmt.Errorf("clear servers bucket: %w", err)
			}
		}
		bucket, err := root.CreateBucket([]byte(serversBucketName))
		if err != nil {
			return fmt.Errorf("recreate servers bucket: %w", err)
		}
		for _, config := range configs {
			if strings.TrimSpace(config.ID) == "" {
				return fmt.Errorf("server id is required")
			}
			value, err := json.Marshal(config)
			if err != nil {
				return fmt.Errorf("encode server %s: %w", config.ID, err)
			}
			if err := bucket.Put([]byte(config.ID), value); err != nil {
				return fmt.Errorf("write server %s: %w", config.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

func serversBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(rootBucketName))
	if root == nil {
		return nil, fmt.Errorf("missing root bucket")
	}
	bucket := root.Bucket([]byte(serversBucketName))
	if bucket == nil {
		return nil, fmt.Errorf("missing servers bucket")
	}
	return bucket, nil
}
