package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. AURA_ACTIVE_MODEL_ID or AURA_SERVER_ADDR.
const EnvPrefix = "AURA_"

// EnvCredentialID is the id of the credential synthesized from GOOGLE_API_KEY.
const EnvCredentialID = "env"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig loads and validates settings from a JSON or YAML file with environment
// variable substitution. A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh install: defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
			envVar := match[2 : len(match)-1]
			if value := os.Getenv(envVar); value != "" {
				return value
			}
			return match
		})
		if err := unmarshal(configPath, []byte(dataStr), cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in the format implied by its extension.
func SaveConfig(configPath string, cfg *Config) error {
	out := cfg.Clone()
	// Never persist the environment credential.
	kept := out.APIKeys[:0]
	for _, k := range out.APIKeys {
		if k.ID != EnvCredentialID {
			kept = append(kept, k)
		}
	}
	out.APIKeys = kept

	var (
		data []byte
		err  error
	)
	if isYAML(configPath) {
		data, err = yaml.Marshal(out)
	} else {
		data, err = json.MarshalIndent(out, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config YAML: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	v := reflect.ValueOf(cfg).Elem()
	applyEnvOverridesRecursive(v, v.Type(), EnvPrefix)

	// GOOGLE_API_KEY becomes an extra credential after the configured ones.
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		if _, exists := cfg.FindAPIKey(EnvCredentialID); !exists {
			cfg.APIKeys = append(cfg.APIKeys, Credential{
				ID:        EnvCredentialID,
				Name:      "GOOGLE_API_KEY",
				Key:       key,
				Provider:  ProviderGoogle,
				CreatedAt: time.Now().UTC(),
			})
		}
	}
}

func applyEnvOverridesRecursive(v reflect.Value, t reflect.Type, prefix string) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		jsonTag := fieldType.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		envKey := strings.ToUpper(prefix + strings.Split(jsonTag, ",")[0])

		if field.Kind() == reflect.Struct && fieldType.Type != reflect.TypeOf(time.Time{}) {
			applyEnvOverridesRecursive(field, field.Type(), envKey+"_")
			continue
		}
		if envValue := os.Getenv(envKey); envValue != "" {
			setFieldFromEnv(field, envValue)
		}
	}
}

func setFieldFromEnv(field reflect.Value, envValue string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int:
		if val, err := strconv.Atoi(envValue); err == nil {
			field.SetInt(int64(val))
		}
	case reflect.Bool:
		if val, err := strconv.ParseBool(envValue); err == nil {
			field.SetBool(val)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(envValue, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.ActiveModelID == "" {
		cfg.ActiveModelID = DefaultActiveModel
	}
	if cfg.StableFallbackModel == "" {
		cfg.StableFallbackModel = DefaultStableFallbackModel
	}
	if cfg.DeprecatedModels == nil {
		cfg.DeprecatedModels = append([]string(nil), DefaultDeprecatedModels...)
	}
	if len(cfg.Models) == 0 {
		cfg.Models = append([]Model(nil), DefaultModels...)
	}
	if cfg.AttemptTimeoutSeconds == 0 {
		cfg.AttemptTimeoutSeconds = DefaultAttemptTimeoutSeconds
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Ollama.Host == "" {
		cfg.Ollama.Host = DefaultOllamaHost
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = []Credential{}
	}
	for i := range cfg.APIKeys {
		if cfg.APIKeys[i].Provider == "" {
			cfg.APIKeys[i].Provider = ProviderGoogle
		}
	}
	for i := range cfg.Models {
		if cfg.Models[i].Provider == "" {
			cfg.Models[i].Provider = cfg.Provider
		}
		if cfg.Models[i].Name == "" {
			cfg.Models[i].Name = cfg.Models[i].ID
		}
	}
	// Fall back to the first key when the active one is unset.
	if cfg.ActiveAPIKeyID == "" && len(cfg.APIKeys) > 0 {
		cfg.ActiveAPIKeyID = cfg.APIKeys[0].ID
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Provider {
	case ProviderGoogle, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	if cfg.AttemptTimeoutSeconds < 0 {
		return fmt.Errorf("attempt_timeout_seconds must not be negative")
	}
	if cfg.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	if cfg.Orchestration.MaxWorkerTurns < 0 {
		return fmt.Errorf("orchestration.max_worker_turns must not be negative")
	}

	seenKeys := make(map[string]bool, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k.ID == "" {
			return fmt.Errorf("api key %q has no id", k.Name)
		}
		if seenKeys[k.ID] {
			return fmt.Errorf("duplicate api key id %q", k.ID)
		}
		seenKeys[k.ID] = true
	}
	if cfg.ActiveAPIKeyID != "" && !seenKeys[cfg.ActiveAPIKeyID] {
		return fmt.Errorf("active_api_key_id %q does not match any api key", cfg.ActiveAPIKeyID)
	}

	seenModels := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		if m.ID == "" {
			return fmt.Errorf("model %q has no id", m.Name)
		}
		if seenModels[m.ID] {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		seenModels[m.ID] = true
	}
	return nil
}
