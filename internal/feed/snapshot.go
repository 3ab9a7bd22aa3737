package feed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Snapshot is the persisted representation of the most recently fetched
// feed for a topic. Only the previous snapshot is kept; every successful
// fetch overwrites it.
type Snapshot struct {
	Title   string          `yaml:"title"`
	Entries []SnapshotEntry `yaml:"entries"`
}

// SnapshotEntry records one feed entry. The link is the entry's stable
// identity used for diffing.
type SnapshotEntry struct {
	Title     string `yaml:"title"`
	Link      string `yaml:"link"`
	Published string `yaml:"published,omitempty"`
}

// Links returns the set of entry identities present in the snapshot.
func (s *Snapshot) Links() map[string]bool {
	links := make(map[string]bool, len(s.Entries))
	for _, e := range s.Entries {
		links[e.Link] = true
	}
	return links
}

// SnapshotStore persists one snapshot per topic as a YAML file in dir,
// named by the topic's canonical key.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates the snapshot directory if needed.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &SnapshotStore{dir: dir}, nil
}

// Load reads the snapshot for the given canonical key. It returns
// (nil, nil) when no snapshot exists yet.
func (s *SnapshotStore) Load(key string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Save overwrites the snapshot for the given canonical key.
func (s *SnapshotStore) Save(key string, snap *Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(s.path(key), data, 0o640); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) path(key string) string {
	return filepath.Join(s.dir, key+".yml")
}
