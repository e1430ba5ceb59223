package config

import (
	"strings"
	"testing"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

// mapBackend is an in-memory ConfigBackend.
type mapBackend map[string]any

func (b mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (b mapBackend) SetString(key, val string) error  { b[key] = val; return nil }
func (b mapBackend) SetInt(key string, val int) error { b[key] = val; return nil }
func (b mapBackend) Delete(key string) error          { delete(b, key); return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLANWARD_ANTHROPIC_API_KEY", "test-key")

	cfg, err := loadWith(mapBackend{}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Anthropic.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Anthropic.Model = %q", cfg.Anthropic.Model)
	}
	if cfg.Email.From != "plans@planward.app" {
		t.Errorf("Email.From = %q", cfg.Email.From)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Errorf("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLANWARD_ANTHROPIC_API_KEY", "test-key")

	b := mapBackend{
		"server.port":      5000,
		"anthropic.model":  "claude-custom",
		"storage.data_dir": "/tmp/planward-test",
		"email.from":       "hello@custom.test",
		"log.level":        "debug",
	}
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Anthropic.Model != "claude-custom" {
		t.Errorf("Anthropic.Model = %q", cfg.Anthropic.Model)
	}
	if cfg.Storage.DataDir != "/tmp/planward-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Email.From != "hello@custom.test" {
		t.Errorf("Email.From = %q", cfg.Email.From)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLANWARD_ANTHROPIC_API_KEY", "test-key")
	t.Setenv("PLANWARD_SERVER_PORT", "9999")
	t.Setenv("PLANWARD_ANTHROPIC_MODEL", "claude-env")

	b := mapBackend{"server.port": 5000, "anthropic.model": "claude-file"}
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want env override 9999", cfg.Server.Port)
	}
	if cfg.Anthropic.Model != "claude-env" {
		t.Errorf("Anthropic.Model = %q, want env override", cfg.Anthropic.Model)
	}
}

func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLANWARD_ANTHROPIC_API_KEY", "env-key")

	// Secrets stored in the backend must never be read.
	b := mapBackend{"anthropic.api_key": "file-key"}
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Anthropic.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env value only", cfg.Anthropic.APIKey)
	}
}

func TestMissingRequiredField(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(mapBackend{}, mockKeychain{})
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q", err)
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{}, mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Anthropic.APIKey != "keychain-secret" {
		t.Errorf("APIKey = %q, want keychain value", cfg.Anthropic.APIKey)
	}
}

func TestSetKeyRejectsSecrets(t *testing.T) {
	err := SetKey("anthropic.api_key", "oops")
	if err == nil || !strings.Contains(err.Error(), "secret") {
		t.Errorf("SetKey on secret: err = %v", err)
	}
}

func TestValidKeysExcludeSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if strings.Contains(k, "api_key") || strings.Contains(k, "auth_token") {
			t.Errorf("secret key %q listed as settable", k)
		}
	}
}
