package pairing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore keeps paired devices in memory and mirrors them to a JSON file.
// An empty path keeps everything in memory.
type FileStore struct {
	path    string
	devices map[string]Device
	mu      sync.RWMutex
}

type fileContents struct {
	Paired []Device `json:"paired"`
}

// NewFileStore loads path if it exists.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		devices: make(map[string]Device),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemoryStore returns a store that never touches disk.
func NewMemoryStore() *FileStore {
	return &FileStore{devices: make(map[string]Device)}
}

func (s *FileStore) Pair(identity, displayName string) (Device, bool, error) {
	if err := validIdentity(identity); err != nil {
		return Device{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.devices[identity]; ok {
		return existing, false, nil
	}

	dev := Device{
		Identity:    identity,
		DisplayName: displayName,
		PairedAt:    time.Now().UTC(),
	}
	s.devices[identity] = dev
	if err := s.saveLocked(); err != nil {
		delete(s.devices, identity)
		return Device{}, false, err
	}

	log.Info().Str("component", "pairing").Str("identity", identity).Str("name", displayName).Msg("device paired")
	return dev, true, nil
}

func (s *FileStore) Lookup(identity string) (Device, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[identity]
	return dev, ok, nil
}

func (s *FileStore) List() ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Device, 0, len(s.devices))
	for _, dev := range s.devices {
		out = append(out, dev)
	}
	sortDevices(out)
	return out, nil
}

func (s *FileStore) Remove(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[identity]
	if !ok {
		return fmt.Errorf("pairing: device not found: %s", identity)
	}
	delete(s.devices, identity)
	if err := s.saveLocked(); err != nil {
		s.devices[identity] = dev
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("pairing: read %s: %w", s.path, err)
	}
	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return fmt.Errorf("pairing: parse %s: %w", s.path, err)
	}
	for _, dev := range contents.Paired {
		if dev.Identity == "" {
			continue
		}
		s.devices[dev.Identity] = dev
	}
	return nil
}

// saveLocked writes the store atomically. Caller must hold s.mu.
func (s *FileStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("pairing: create dir: %w", err)
	}

	contents := fileContents{Paired: make([]Device, 0, len(s.devices))}
	for _, dev := range s.devices {
		contents.Paired = append(contents.Paired, dev)
	}
	sortDevices(contents.Paired)

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("pairing: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("pairing: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("pairing: replace: %w", err)
	}
	return nil
}

func sortDevices(devs []Device) {
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].PairedAt.Equal(devs[j].PairedAt) {
			return devs[i].Identity < devs[j].Identity
		}
		return devs[i].PairedAt.Before(devs[j].PairedAt)
	})
}
