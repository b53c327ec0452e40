// Package config provides settings loading, validation, and versioned snapshots for the assistant backend.
//
// A Store owns the current settings. Every run captures one immutable Snapshot at start, so
// concurrent settings edits never change the model or credential lists of an in-flight run.
package config

import (
	"slices"
	"time"
)

// Provider names.
const (
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Defaults applied when the settings file leaves a field empty.
const (
	DefaultProvider              = ProviderGoogle
	DefaultActiveModel           = "gemini-2.5-flash"
	DefaultStableFallbackModel   = "gemini-2.5-flash"
	DefaultAttemptTimeoutSeconds = 60
	DefaultMaxTokens             = 2048
	DefaultServerAddr            = ":8000"
	DefaultDatabasePath          = "aura.db"
	DefaultOllamaHost            = "http://localhost:11434"
	LocalCredentialID            = "local"
)

// DefaultDeprecatedModels lists model tiers that must never be used as a fallback.
//
//nolint:gochecknoglobals // package defaults
var DefaultDeprecatedModels = []string{
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-pro",
	"gemini-2.0-flash-exp",
}

// DefaultModels is the model catalogue seeded into a fresh settings file.
//
//nolint:gochecknoglobals // package defaults
var DefaultModels = []Model{
	{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: ProviderGoogle},
	{ID: "gemini-2.5-flash-lite-preview-09-2025", Name: "Gemini 2.5 Flash Lite Preview (09-2025)", Provider: ProviderGoogle},
	{ID: "gemini-2.5-flash-lite", Name: "Gemini 2.5 Flash Lite", Provider: ProviderGoogle},
	{ID: "gemini-2.5-flash-preview-09-2025", Name: "Gemini 2.5 Flash Preview (09-2025)", Provider: ProviderGoogle},
}

// Credential is one API key the engine may try.
type Credential struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Key       string    `json:"key" yaml:"key"`
	Provider  string    `json:"provider" yaml:"provider"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Masked returns the key with all but the last four characters hidden.
func (c Credential) Masked() string {
	if len(c.Key) <= 4 {
		return "****"
	}
	return "****" + c.Key[len(c.Key)-4:]
}

// Model is a selectable model identifier.
type Model struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
}

// OrchestrationConfig holds graph-level limits.
type OrchestrationConfig struct {
	// MaxWorkerTurns bounds worker visits per run. Zero means unlimited.
	MaxWorkerTurns int `json:"max_worker_turns" yaml:"max_worker_turns"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	PrometheusURL string `json:"prometheus_url" yaml:"prometheus_url"`
}

// GoogleConfig holds OAuth client settings used by the calendar adapter.
type GoogleConfig struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	RedirectURL  string `json:"redirect_url" yaml:"redirect_url"`
}

// OllamaConfig holds local model runtime settings.
type OllamaConfig struct {
	Host string `json:"host" yaml:"host"`
}

// Config is the full settings document.
type Config struct {
	Provider              string              `json:"provider" yaml:"provider"`
	ActiveModelID         string              `json:"active_model_id" yaml:"active_model_id"`
	ActiveAPIKeyID        string              `json:"active_api_key_id" yaml:"active_api_key_id"`
	SystemInstruction     string              `json:"system_instruction" yaml:"system_instruction"`
	APIKeys               []Credential        `json:"api_keys" yaml:"api_keys"`
	Models                []Model             `json:"models" yaml:"models"`
	StableFallbackModel   string              `json:"stable_fallback_model" yaml:"stable_fallback_model"`
	DeprecatedModels      []string            `json:"deprecated_models" yaml:"deprecated_models"`
	AttemptTimeoutSeconds int                 `json:"attempt_timeout_seconds" yaml:"attempt_timeout_seconds"`
	MaxTokens             int                 `json:"max_tokens" yaml:"max_tokens"`
	Orchestration         OrchestrationConfig `json:"orchestration" yaml:"orchestration"`
	Server                ServerConfig        `json:"server" yaml:"server"`
	Database              DatabaseConfig      `json:"database" yaml:"database"`
	Metrics               MetricsConfig       `json:"metrics" yaml:"metrics"`
	Google                GoogleConfig        `json:"google" yaml:"google"`
	Ollama                OllamaConfig        `json:"ollama" yaml:"ollama"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.APIKeys = slices.Clone(c.APIKeys)
	out.Models = slices.Clone(c.Models)
	out.DeprecatedModels = slices.Clone(c.DeprecatedModels)
	return &out
}

// AttemptTimeout returns the per-attempt timeout as a duration.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSeconds) * time.Second
}

// FindAPIKey returns the credential with the given id.
func (c *Config) FindAPIKey(id string) (Credential, bool) {
	for _, k := range c.APIKeys {
		if k.ID == id {
			return k, true
		}
	}
	return Credential{}, false
}

// Snapshot is an immutable, versioned view of the settings.
type Snapshot struct {
	cfg     *Config
	Version uint64
}

// NewSnapshot wraps a copy of cfg.
func NewSnapshot(cfg *Config, version uint64) *Snapshot {
	return &Snapshot{cfg: cfg.Clone(), Version: version}
}

// Config returns a copy of the underlying settings.
func (s *Snapshot) Config() *Config {
	return s.cfg.Clone()
}

// Provider returns the configured provider name.
func (s *Snapshot) Provider() string {
	return s.cfg.Provider
}

// ActiveModel returns the active model identifier.
func (s *Snapshot) ActiveModel() string {
	return s.cfg.ActiveModelID
}

// StableFallback returns the designated stable fallback model.
func (s *Snapshot) StableFallback() string {
	return s.cfg.StableFallbackModel
}

// DeprecatedModels returns the deprecated tier list.
func (s *Snapshot) DeprecatedModels() []string {
	return slices.Clone(s.cfg.DeprecatedModels)
}

// SystemInstruction returns the user-configured instruction prepended to worker prompts.
func (s *Snapshot) SystemInstruction() string {
	return s.cfg.SystemInstruction
}

// AttemptTimeout returns the per-attempt timeout.
func (s *Snapshot) AttemptTimeout() time.Duration {
	return s.cfg.AttemptTimeout()
}

// MaxTokens returns the output token cap per call.
func (s *Snapshot) MaxTokens() int {
	return s.cfg.MaxTokens
}

// MaxWorkerTurns returns the optional worker-visit guard.
func (s *Snapshot) MaxWorkerTurns() int {
	return s.cfg.Orchestration.MaxWorkerTurns
}

// Credentials returns the credential candidates for the active provider:
// the active key first, then the remaining keys in configuration order.
// The local ollama runtime needs no key and gets a single placeholder credential.
func (s *Snapshot) Credentials() []Credential {
	provider := s.cfg.Provider
	var matching []Credential
	for _, k := range s.cfg.APIKeys {
		kp := k.Provider
		if kp == "" {
			kp = ProviderGoogle
		}
		if kp == provider && k.Key != "" {
			matching = append(matching, k)
		}
	}
	if len(matching) == 0 && provider == ProviderOllama {
		return []Credential{{ID: LocalCredentialID, Name: "local", Provider: ProviderOllama}}
	}

	ordered := make([]Credential, 0, len(matching))
	for _, k := range matching {
		if k.ID == s.cfg.ActiveAPIKeyID {
			ordered = append(ordered, k)
		}
	}
	for _, k := range matching {
		if k.ID != s.cfg.ActiveAPIKeyID {
			ordered = append(ordered, k)
		}
	}
	return ordered
}
