package config

import (
	"fmt"
	"strconv"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	data map[string]any
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]any)}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), true, nil
	}
	return s, true, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int:
		return val, true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, err
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type for %s", key)
	}
}

func (m *memBackend) SetString(key, val string) error {
	m.data[key] = val
	return nil
}

func (m *memBackend) SetInt(key string, val int) error {
	m.data[key] = val
	return nil
}

func (m *memBackend) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("Backend.BaseURL = %q, want default", cfg.Backend.BaseURL)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if !cfg.Pacing.Enabled {
		t.Error("Pacing.Enabled = false, want true by default")
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
	if cfg.Letter.OutputDir == "" {
		t.Error("Letter.OutputDir is empty")
	}
}

func TestLoadBackendValues(t *testing.T) {
	b := newMemBackend()
	b.data["backend.base_url"] = "http://10.0.0.5:8080"
	b.data["server.port"] = 9090
	b.data["pacing.enabled"] = "false"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Backend.BaseURL != "http://10.0.0.5:8080" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Pacing.Enabled {
		t.Error("Pacing.Enabled = true, want false from backend")
	}
}

func TestLoadBadBoolKeepsDefault(t *testing.T) {
	b := newMemBackend()
	b.data["pacing.enabled"] = "definitely"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if !cfg.Pacing.Enabled {
		t.Error("unparseable bool should keep the default")
	}
}

func TestEnvOverrides(t *testing.T) {
	b := newMemBackend()
	b.data["backend.base_url"] = "http://file-value:5000"

	t.Setenv("LOANASSIST_BACKEND_BASE_URL", "http://env-value:6000")
	t.Setenv("LOANASSIST_SERVER_PORT", "7000")
	t.Setenv("LOANASSIST_LOG_LEVEL", "debug")
	t.Setenv("LOANASSIST_PACING_ENABLED", "false")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Backend.BaseURL != "http://env-value:6000" {
		t.Errorf("env should win over file, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Pacing.Enabled {
		t.Error("Pacing.Enabled = true, want false from env")
	}
}

func TestEnvBadIntIgnored(t *testing.T) {
	t.Setenv("LOANASSIST_SERVER_PORT", "not-a-port")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want default 5000", cfg.Server.Port)
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend()

	if err := setKeyOn(b, "backend.base_url", "http://example.com"); err != nil {
		t.Fatalf("setKeyOn string: %v", err)
	}
	if b.data["backend.base_url"] != "http://example.com" {
		t.Errorf("stored value = %v", b.data["backend.base_url"])
	}

	if err := setKeyOn(b, "server.port", "8080"); err != nil {
		t.Fatalf("setKeyOn int: %v", err)
	}
	if b.data["server.port"] != 8080 {
		t.Errorf("stored value = %v", b.data["server.port"])
	}

	if err := setKeyOn(b, "server.port", "eighty"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyOn(b, "pacing.enabled", "maybe"); err == nil {
		t.Error("expected error for non-boolean value")
	}
	if err := setKeyOn(b, "pacing.enabled", "true"); err != nil {
		t.Fatalf("setKeyOn bool: %v", err)
	}
	if err := setKeyOn(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllCoversEveryKey(t *testing.T) {
	cfg := defaults()
	infos := ShowAll(cfg)
	if len(infos) != len(specs) {
		t.Fatalf("ShowAll returned %d entries, want %d", len(infos), len(specs))
	}
	seen := make(map[string]bool)
	for _, info := range infos {
		if info.Key == "" || info.EnvVar == "" {
			t.Errorf("incomplete entry: %+v", info)
		}
		seen[info.Key] = true
	}
	for _, k := range ValidKeys() {
		if !seen[k] {
			t.Errorf("ValidKeys lists %s but ShowAll does not", k)
		}
	}
}
