package sdk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const sessionFileVersion = "1"

// sessionFile is the persisted shape of a Session. Runtime handles (logger, HTTP client, clock)
// are not part of it and are rebuilt by LoadSession.
type sessionFile struct {
	Version         string                `json:"version"`
	AccountID       string                `json:"account_id"`
	Secret          string                `json:"secret"`
	Transport       TransportState        `json:"transport"`
	Cache           map[string]CacheEntry `json:"cache,omitempty"`
	LastRefreshedAt time.Time             `json:"last_refreshed_at"`
	SavedAt         time.Time             `json:"saved_at"`
}

// Save writes the session to path, or to its provenance when path is empty. The file is written
// atomically with owner-only permissions because it contains the password.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		path = s.provenance
	}
	if path == "" {
		return ErrNoSessionPath
	}

	file := sessionFile{
		Version:         sessionFileVersion,
		AccountID:       s.cred.AccountID,
		Secret:          s.cred.Secret,
		Transport:       s.transport.State(),
		LastRefreshedAt: s.lastRefreshedAt,
		SavedAt:         s.now(),
	}
	if mem, ok := s.store.(*MemoryCache); ok {
		file.Cache = mem.export()
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, path, err)
	}

	s.provenance = path
	s.logger.Debug("session saved", "path", path)
	return nil
}

// LoadSession restores a session saved by Save. The restored session is not assumed to be logged
// in: the first operation probes the portal. opts apply as for NewSession.
func LoadSession(path string, opts ...Option) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("corrupted session file (invalid JSON): %w", err)
	}
	if file.Version != sessionFileVersion {
		return nil, fmt.Errorf("unsupported session file version %q", file.Version)
	}
	cred, err := NewCredential(file.AccountID, file.Secret)
	if err != nil {
		return nil, fmt.Errorf("invalid session file: %w", err)
	}

	s := NewSession(cred, opts...)
	if err := s.transport.Restore(file.Transport); err != nil {
		return nil, fmt.Errorf("invalid session file: %w", err)
	}
	if mem, ok := s.store.(*MemoryCache); ok && file.Cache != nil {
		mem.load(file.Cache)
	}
	s.lastRefreshedAt = file.LastRefreshedAt
	s.provenance = path
	return s, nil
}
