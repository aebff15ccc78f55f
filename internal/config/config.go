package config

import "path/filepath"

type Config struct {
	Backend BackendConfig
	Server  ServerConfig
	Letter  LetterConfig
	Storage StorageConfig
	Log     LogConfig
	Pacing  PacingConfig
}

// BackendConfig points the client at the loan service.
type BackendConfig struct {
	BaseURL string
}

// ServerConfig applies to the bundled reference server (`loanassist serve`).
type ServerConfig struct {
	Port int
}

// LetterConfig controls where downloaded sanction letters are written.
type LetterConfig struct {
	OutputDir string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// PacingConfig toggles the deliberate delays between dependent
// conversation steps. Disabled means instant transitions.
type PacingConfig struct {
	Enabled bool
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
		},
		Server: ServerConfig{
			Port: 5000,
		},
		Letter: LetterConfig{
			OutputDir: filepath.Join(dataDir, "letters"),
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
		Pacing: PacingConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/loanassist/config.json with environment variables
// (LOANASSIST_*) overriding file values.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
