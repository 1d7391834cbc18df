// Package identity provides lightweight per-device identity for walk
// sessions. A profile holds an optional user alias and a stable device ID,
// persisted to a JSON file in the data directory.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyAlias is returned when SetAlias is called with a blank alias.
var ErrEmptyAlias = errors.New("alias must be a non-empty string")

// Profile is the persisted identity record.
type Profile struct {
	Alias     string `json:"alias,omitempty"`
	DeviceID  string `json:"deviceId"`
	CreatedAt string `json:"createdAt"`
}

// Provider exposes the device identity used when stamping sessions and
// export packages.
type Provider interface {
	Alias() string
	HasAlias() bool
	SetAlias(alias string) error
	DeviceID() string
}

// FileProvider persists the profile to a JSON file. The device ID is minted
// on first access and stable thereafter.
type FileProvider struct {
	mu      sync.Mutex
	path    string
	profile *Profile
}

// NewFileProvider creates a provider backed by profile.json under dataDir.
func NewFileProvider(dataDir string) *FileProvider {
	return &FileProvider{path: filepath.Join(dataDir, "profile.json")}
}

func (p *FileProvider) load() *Profile {
	if p.profile != nil {
		return p.profile
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil
	}
	p.profile = &prof
	return p.profile
}

func (p *FileProvider) save(prof *Profile) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(p.path, data, 0644); err != nil {
		return fmt.Errorf("saving identity profile: %w", err)
	}
	p.profile = prof
	return nil
}

// Alias returns the stored alias, or "" if none has been set.
func (p *FileProvider) Alias() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prof := p.load(); prof != nil {
		return prof.Alias
	}
	return ""
}

// HasAlias reports whether an alias has been chosen.
func (p *FileProvider) HasAlias() bool {
	return p.Alias() != ""
}

// SetAlias stores the trimmed alias, minting a device ID if needed.
func (p *FileProvider) SetAlias(alias string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return ErrEmptyAlias
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prof := p.load()
	if prof == nil {
		prof = &Profile{
			DeviceID:  uuid.NewString(),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
	}
	prof.Alias = alias
	return p.save(prof)
}

// DeviceID returns the stable device identifier, generating and persisting
// one on first call.
func (p *FileProvider) DeviceID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prof := p.load(); prof != nil && prof.DeviceID != "" {
		return prof.DeviceID
	}

	prof := p.load()
	if prof == nil {
		prof = &Profile{CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	}
	prof.DeviceID = uuid.NewString()
	// Persist so the ID survives restarts. A write failure still returns
	// a usable ID for this process.
	_ = p.save(prof)
	return prof.DeviceID
}

var _ Provider = (*FileProvider)(nil)
