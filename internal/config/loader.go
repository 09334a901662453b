package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envPrefix namespaces answerd environment variables.
const envPrefix = "ANSWERD_"

// Load loads configuration from an optional YAML file, then overrides with
// environment variables, and validates the result.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ANSWERD_LLM_API_KEY, ANSWERD_SERVER_PORT, ...)
//  2. YAML config file (configPath, skipped when empty or absent)
//  3. Hardcoded defaults
//
// Environment variables map to config keys by stripping the ANSWERD_ prefix,
// lowercasing, and splitting the first underscore into a section separator:
//
//	ANSWERD_SERVER_PORT       -> server.port
//	ANSWERD_LLM_API_KEY       -> llm.api_key
//	ANSWERD_RETRIEVAL_TOP_K   -> retrieval.top_k
//	ANSWERD_STORE_QDRANT_HOST -> store.qdrant.host
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (limit %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}

			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// transformEnvKey maps an environment variable name to a config key.
//
// The first underscore separates the section from the field; underscores in
// the field name are preserved (llm.api_key, retrieval.top_k). Nested store
// sections use a second-level section name:
//
//	ANSWERD_STORE_QDRANT_HOST -> store.qdrant.host
//	ANSWERD_STORE_CHROMEM_PATH -> store.chromem.path
func transformEnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}

	section := parts[0]
	fieldName := parts[1]

	// Nested store sections.
	if section == "store" {
		for _, sub := range []string{"qdrant", "chromem"} {
			if strings.HasPrefix(fieldName, sub+"_") {
				return section + "." + sub + "." + strings.TrimPrefix(fieldName, sub+"_")
			}
		}
	}

	return section + "." + fieldName
}
