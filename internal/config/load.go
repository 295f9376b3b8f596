package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded when present. Variables already set in the
// process environment win over file contents.
var DefaultEnvFiles = []string{".env", ".env.local"}

type LoadOptions struct {
	// Path is an optional JSON or YAML file applied before the environment.
	Path string
	// EnvFiles replaces DefaultEnvFiles when non-nil.
	EnvFiles []string
}

// Load builds a validated Config: defaults, then the file, then dotenv files
// and the process environment.
func Load(opts LoadOptions) (*Config, error) {
	files := opts.EnvFiles
	if files == nil {
		files = DefaultEnvFiles
	}
	if _, err := LoadEnvFiles(files...); err != nil {
		return nil, err
	}

	cfg, err := Build(opts.Path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads the existing files among paths into the process
// environment and returns how many were found.
func LoadEnvFiles(paths ...string) (int, error) {
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("env file %s: %w", p, err)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return 0, fmt.Errorf("load env files: %w", err)
	}
	return len(existing), nil
}

// Build applies the file at path (if any) and the environment over Default.
// It does not validate.
func Build(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if len(bytes.TrimSpace(jb)) == 0 || string(bytes.TrimSpace(jb)) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config %s (%s): %w", path, format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("config %s: trailing data", path)
		}
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}
