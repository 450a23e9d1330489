package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

// Default locates the default config file: ~/.webtext.yaml if present,
// falling back to the legacy ~/.webtextrc. An empty result means no config
// file exists, which is fine; everything can come from flags and prompts.
func Default() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{".webtext.yaml", ".webtext.yml", ".webtext.json", ".webtextrc"} {
		p := filepath.Join(home, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads a config file. Structured formats decode strictly (unknown
// keys are errors); any other extension is parsed as the legacy line
// format.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return loadStructured(path, data)
	default:
		return parseLegacy(data)
	}
}

func loadStructured(path string, data []byte) (*Config, error) {
	j, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s (%s): %w", path, format, err)
	}
	return &cfg, nil
}

// coerceToJSONBytes converts YAML config to JSON bytes so we can re-use the
// strict JSON decoder (DisallowUnknownFields) for both formats.
//
// Returns (jsonBytes, format, err) where format is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

// ApplyEnv layers environment overrides on top of file values: an optional
// .env file first, then WEBTEXT_* variables. Credentials in the
// environment beat credentials in the config file.
func ApplyEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("WEBTEXT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("WEBTEXT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("WEBTEXT_CARRIER"); v != "" {
		cfg.Carrier = v
	}
}
