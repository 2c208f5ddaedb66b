package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store keeps partitions as top level bbolt buckets in a single file.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db *bolt.DB
}

var ErrNotFound = errors.New("cache: not found")

var _ Storage = (*Store)(nil)

// Open initializes or opens a Store at the given path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Partition opens the bucket called name, creating it when missing.
func (s *Store) Partition(name string) (Partition, error) {
	if name == "" {
		return nil, errors.New("cache: empty partition name")
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	}); err != nil {
		return nil, fmt.Errorf("open partition %s: %w", name, err)
	}
	return &boltPartition{db: s.db, name: name}, nil
}

// Names returns the partition names in byte order.
func (s *Store) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// Drop deletes the bucket called name.
func (s *Store) Drop(name string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		existed = err == nil
		return err
	})
	return existed, err
}

type boltPartition struct {
	db   *bolt.DB
	name string
}

func (p *boltPartition) Name() string { return p.name }

func (p *boltPartition) Match(method, rawURL string) (*Entry, error) {
	var out *Entry
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil { // Dropped after being opened.
			return ErrNotFound
		}
		v := b.Get(Key(method, rawURL))
		if v == nil {
			return ErrNotFound
		}
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		if !e.sameIdentity(method, rawURL) { // Hash collision.
			return ErrNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (p *boltPartition) Put(e *Entry) error {
	if e == nil || e.URL == "" {
		return errors.New("cache: entry without url")
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now()
	}
	buf, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(p.name))
		if err != nil {
			return err
		}
		return b.Put(Key(e.Method, e.URL), buf)
	})
}

func (p *boltPartition) List() ([]EntryInfo, error) {
	var infos []EntryInfo
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
			infos = append(infos, e.Info())
			return nil
		})
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].URL < infos[j].URL })
	return infos, err
}
