package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds the current settings and publishes a new Snapshot on every update.
type Store struct {
	current *Snapshot
	path    string
	mu      sync.Mutex
}

// NewStore creates a store seeded with cfg. When path is non-empty, updates are persisted there.
func NewStore(cfg *Config, path string) *Store {
	return &Store{
		current: NewSnapshot(cfg, 1),
		path:    path,
	}
}

// Snapshot returns the current immutable settings view.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update applies fn to a copy of the current settings, validates and persists the result,
// then publishes it as the next version. Runs holding an older snapshot are unaffected.
func (s *Store) Update(fn func(*Config) error) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Config()
	if err := fn(next); err != nil {
		return nil, err
	}
	applyDefaults(next)
	if err := validateConfig(next); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if s.path != "" {
		if err := SaveConfig(s.path, next); err != nil {
			return nil, err
		}
	}

	s.current = NewSnapshot(next, s.current.Version+1)
	return s.current, nil
}

// SetActiveModel selects the active model. The model must be in the catalogue.
func (s *Store) SetActiveModel(modelID string) (*Snapshot, error) {
	return s.Update(func(c *Config) error {
		for _, m := range c.Models {
			if m.ID == modelID {
				c.ActiveModelID = modelID
				return nil
			}
		}
		return fmt.Errorf("unknown model %q", modelID)
	})
}

// SetActiveAPIKey selects the credential tried first.
func (s *Store) SetActiveAPIKey(keyID string) (*Snapshot, error) {
	return s.Update(func(c *Config) error {
		if _, ok := c.FindAPIKey(keyID); !ok {
			return fmt.Errorf("unknown api key %q", keyID)
		}
		c.ActiveAPIKeyID = keyID
		return nil
	})
}

// SetSystemInstruction replaces the user instruction prepended to worker prompts.
func (s *Store) SetSystemInstruction(instruction string) (*Snapshot, error) {
	return s.Update(func(c *Config) error {
		c.SystemInstruction = instruction
		return nil
	})
}

// AddAPIKey appends a new credential and returns it with its generated id.
func (s *Store) AddAPIKey(name, key, provider string) (Credential, *Snapshot, error) {
	if strings.TrimSpace(key) == "" {
		return Credential{}, nil, fmt.Errorf("api key must not be empty")
	}
	if provider == "" {
		provider = ProviderGoogle
	}
	cred := Credential{
		ID:        uuid.NewString(),
		Name:      name,
		Key:       key,
		Provider:  provider,
		CreatedAt: time.Now().UTC(),
	}
	snap, err := s.Update(func(c *Config) error {
		c.APIKeys = append(c.APIKeys, cred)
		if c.ActiveAPIKeyID == "" {
			c.ActiveAPIKeyID = cred.ID
		}
		return nil
	})
	if err != nil {
		return Credential{}, nil, err
	}
	return cred, snap, nil
}

// DeleteAPIKey removes a credential. Deleting the active key promotes the next one.
func (s *Store) DeleteAPIKey(keyID string) (*Snapshot, error) {
	return s.Update(func(c *Config) error {
		idx := -1
		for i, k := range c.APIKeys {
			if k.ID == keyID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("unknown api key %q", keyID)
		}
		c.APIKeys = append(c.APIKeys[:idx], c.APIKeys[idx+1:]...)
		if c.ActiveAPIKeyID == keyID {
			c.ActiveAPIKeyID = ""
		}
		return nil
	})
}

// AddModel adds a model to the catalogue.
func (s *Store) AddModel(m Model) (*Snapshot, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("model id must not be empty")
	}
	return s.Update(func(c *Config) error {
		c.Models = append(c.Models, m)
		return nil
	})
}

// DeleteModel removes a model. The active model cannot be removed.
func (s *Store) DeleteModel(modelID string) (*Snapshot, error) {
	return s.Update(func(c *Config) error {
		if c.ActiveModelID == modelID {
			return fmt.Errorf("cannot delete the active model %q", modelID)
		}
		for i, m := range c.Models {
			if m.ID == modelID {
				c.Models = append(c.Models[:i], c.Models[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("unknown model %q", modelID)
	})
}
