package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket = []byte("config") // version, timestamps, ledger id, iterations
	IndexBucket  = []byte("index")  // image path -> Entry
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigIters    = []byte("iterations")
	ConfigLedgerID = []byte("ledger_id")
)

var (
	ErrNotInitialized = errors.New("ledger not initialized")
	ErrEntryNotFound  = errors.New("entry not found")
)

// Storage is the bbolt-backed ledger of images produced by hide
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a ledger database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure. Calling it on an initialized
// ledger leaves existing data alone.
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, IndexBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if config.Get(ConfigVersion) != nil {
			return nil
		}
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

func configBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	config := tx.Bucket(ConfigBucket)
	if config == nil {
		return nil, ErrNotInitialized
	}
	return config, nil
}

// SetIterations records the PBKDF2 iteration count used for sealed images
func (s *Storage) SetIterations(iterations uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config, err := configBucket(tx)
		if err != nil {
			return err
		}
		iters := make([]byte, 4)
		binary.BigEndian.PutUint32(iters, iterations)
		return config.Put(ConfigIters, iters)
	})
}

// GetIterations retrieves the recorded iteration count
func (s *Storage) GetIterations() (uint32, error) {
	var iterations uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		config, err := configBucket(tx)
		if err != nil {
			return err
		}
		iters := config.Get(ConfigIters)
		if len(iters) != 4 {
			return fmt.Errorf("iterations not found")
		}
		iterations = binary.BigEndian.Uint32(iters)
		return nil
	})
	return iterations, err
}

// UpdateModified updates the last modified timestamp
func (s *Storage) UpdateModified() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config, err := configBucket(tx)
		if err != nil {
			return err
		}
		modified, _ := time.Now().MarshalBinary()
		return config.Put(ConfigModified, modified)
	})
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	var modified time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		config, err := configBucket(tx)
		if err != nil {
			return err
		}
		data := config.Get(ConfigModified)
		if data == nil {
			return fmt.Errorf("modified time not found")
		}
		return modified.UnmarshalBinary(data)
	})
	return modified, err
}

// GetLedgerID retrieves the ledger ID from the config bucket
func (s *Storage) GetLedgerID() (string, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		config, err := configBucket(tx)
		if err != nil {
			return err
		}
		data := config.Get(ConfigLedgerID)
		if data == nil {
			return fmt.Errorf("ledger_id not found")
		}
		id = string(data)
		return nil
	})
	return id, err
}

// GetOrCreateLedgerID retrieves the ledger ID, generating one on first use
func (s *Storage) GetOrCreateLedgerID() (string, error) {
	var id string
	err := s.db.Update(func(tx *bolt.Tx) error {
		config, err := configBucket(tx)
		if err != nil {
			return err
		}
		if data := config.Get(ConfigLedgerID); data != nil {
			id = string(data)
			return nil
		}
		id = uuid.NewString()
		return config.Put(ConfigLedgerID, []byte(id))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Entry describes one image written by hide
type Entry struct {
	Image        string    `json:"image"`
	Source       string    `json:"source,omitempty"` // payload file, empty for inline messages
	Mode         string    `json:"mode"`
	PayloadSize  int64     `json:"payloadSize"`
	StreamBytes  int64     `json:"streamBytes"`
	CapacityBits uint64    `json:"capacityBits"`
	ImageHash    string    `json:"imageHash"`  // sha256 of the image file as written
	StreamHash   string    `json:"streamHash"` // sha256 of the embedded frame
	Created      time.Time `json:"created"`
}

// PutEntry stores or replaces the entry for e.Image
func (s *Storage) PutEntry(e Entry) error {
	if e.Image == "" {
		return fmt.Errorf("entry has no image path")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(IndexBucket)
		if index == nil {
			return ErrNotInitialized
		}
		return index.Put([]byte(e.Image), data)
	})
}

// GetEntry returns the entry for an image path, or ErrEntryNotFound
func (s *Storage) GetEntry(image string) (*Entry, error) {
	var entry *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(IndexBucket)
		if index == nil {
			return ErrNotInitialized
		}
		data := index.Get([]byte(image))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, image)
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	return entry, err
}

// GetEntries returns all entries ordered by image path
func (s *Storage) GetEntries() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(IndexBucket)
		if index == nil {
			return nil
		}
		return index.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt entry %s: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Image < entries[j].Image })
	return entries, err
}

// RemoveEntry deletes the entry for an image path
func (s *Storage) RemoveEntry(image string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(IndexBucket)
		if index == nil {
			return ErrNotInitialized
		}
		if index.Get([]byte(image)) == nil {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, image)
		}
		return index.Delete([]byte(image))
	})
}

// Compact rewrites the database into a fresh file, reclaiming space left
// by removed entries.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
