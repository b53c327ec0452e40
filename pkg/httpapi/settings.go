package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"aura/pkg/config"
)

// DefaultKeyName labels a key added through the google_api_key settings field.
const DefaultKeyName = "Default"

// KeyView is an API key as shown to clients, with the secret masked.
type KeyView struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	Masked    string    `json:"key"`
}

// SettingsView is the settings document returned by the settings endpoints.
//
//nolint:govet // fieldalignment: readability
type SettingsView struct {
	Version           uint64         `json:"version"`
	Provider          string         `json:"provider"`
	ActiveModelID     string         `json:"active_model_id"`
	ActiveAPIKeyID    string         `json:"active_api_key_id"`
	SystemInstruction string         `json:"system_instruction"`
	Models            []config.Model `json:"models"`
	APIKeys           []KeyView      `json:"api_keys"`
}

func newSettingsView(snap *config.Snapshot) SettingsView {
	cfg := snap.Config()
	view := SettingsView{
		Version:           snap.Version,
		Provider:          cfg.Provider,
		ActiveModelID:     cfg.ActiveModelID,
		ActiveAPIKeyID:    cfg.ActiveAPIKeyID,
		SystemInstruction: cfg.SystemInstruction,
		Models:            cfg.Models,
		APIKeys:           make([]KeyView, 0, len(cfg.APIKeys)),
	}
	if view.Models == nil {
		view.Models = []config.Model{}
	}
	for _, k := range cfg.APIKeys {
		view.APIKeys = append(view.APIKeys, KeyView{
			CreatedAt: k.CreatedAt,
			ID:        k.ID,
			Name:      k.Name,
			Provider:  k.Provider,
			Masked:    k.Masked(),
		})
	}
	return view
}

// handleGetSettings implements GET /api/v1/settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, newSettingsView(s.settings.Snapshot()))
}

type settingsUpdate struct {
	GoogleAPIKey      *string `json:"google_api_key"`
	ActiveModelID     *string `json:"active_model_id"`
	ActiveAPIKeyID    *string `json:"active_api_key_id"`
	SystemInstruction *string `json:"system_instruction"`
}

// handleUpdateSettings implements POST /api/v1/settings. Only fields present in the
// body change; the whole update is applied as one new settings version.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if !decode(w, r, &req) {
		return
	}

	snap, err := s.settings.Update(func(c *config.Config) error {
		if req.GoogleAPIKey != nil && *req.GoogleAPIKey != "" {
			cred := config.Credential{
				ID:        uuid.NewString(),
				Name:      DefaultKeyName,
				Key:       *req.GoogleAPIKey,
				Provider:  config.ProviderGoogle,
				CreatedAt: time.Now().UTC(),
			}
			c.APIKeys = append(c.APIKeys, cred)
			c.ActiveAPIKeyID = cred.ID
		}
		if req.ActiveModelID != nil {
			c.ActiveModelID = *req.ActiveModelID
		}
		if req.ActiveAPIKeyID != nil {
			if _, ok := c.FindAPIKey(*req.ActiveAPIKeyID); !ok {
				return fmt.Errorf("unknown api key %q", *req.ActiveAPIKeyID)
			}
			c.ActiveAPIKeyID = *req.ActiveAPIKeyID
		}
		if req.SystemInstruction != nil {
			c.SystemInstruction = *req.SystemInstruction
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("Settings updated to v%d (model %s)", snap.Version, snap.ActiveModel())
	s.writeJSON(w, http.StatusOK, newSettingsView(snap))
}

// handleAddKey implements POST /api/v1/settings/keys.
func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Key      string `json:"key"`
		Provider string `json:"provider"`
	}
	if !decode(w, r, &req) {
		return
	}
	_, snap, err := s.settings.AddAPIKey(req.Name, req.Key, req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newSettingsView(snap))
}

// handleDeleteKey implements DELETE /api/v1/settings/keys/{id}.
func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.settings.Snapshot().Config().FindAPIKey(id); !ok {
		writeError(w, http.StatusNotFound, "Key not found")
		return
	}
	snap, err := s.settings.DeleteAPIKey(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newSettingsView(snap))
}

// handleAddModel implements POST /api/v1/settings/models.
func (s *Server) handleAddModel(w http.ResponseWriter, r *http.Request) {
	var m config.Model
	if !decode(w, r, &m) {
		return
	}
	for _, existing := range s.settings.Snapshot().Config().Models {
		if existing.ID == m.ID {
			writeError(w, http.StatusBadRequest, "Model ID already exists")
			return
		}
	}
	snap, err := s.settings.AddModel(m)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newSettingsView(snap))
}

// handleDeleteModel implements DELETE /api/v1/settings/models/{id}.
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg := s.settings.Snapshot().Config()
	if cfg.ActiveModelID == id {
		writeError(w, http.StatusBadRequest, "Cannot delete the currently active model")
		return
	}
	found := false
	for _, m := range cfg.Models {
		if m.ID == id {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "Model not found")
		return
	}
	snap, err := s.settings.DeleteModel(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newSettingsView(snap))
}
