// Package deviceid provides the persistent installation identity that is
// announced as originId and sent as the handshake identity.
package deviceid

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// GetOrCreate returns the identity stored at path, creating one if it
// doesn't exist.
func GetOrCreate(path string) (string, error) {
	id, err := Get(path)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("deviceid: %w", err)
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("deviceid: %w", err)
	}
	return id, nil
}

// Get returns the stored identity, or "" if none exists yet.
func Get(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("deviceid: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
