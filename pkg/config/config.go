// Package config loads pool configuration documents from YAML files with
// ${VAR_NAME} environment variable substitution.
//
// A document maps logical data source names to pool definitions:
//
//	sources:
//	  orders:
//	    backend: pgx
//	    pool:
//	      url: postgres://app@db:5432/orders
//	      max-pool-size: "20"
//	    properties:
//	      application_name: snappydata
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NeilCooper1314/snappydata/pkg/connpool"
	"github.com/NeilCooper1314/snappydata/pkg/errors"
)

// Source defines one named data source: the backend to pool with, the
// recognized pool options, and raw backend connection properties.
type Source struct {
	// Backend is "pgx" or "sql"; empty defaults to "sql"
	Backend string `yaml:"backend" json:"backend"`
	// Pool holds recognized pool options as string values
	Pool map[string]string `yaml:"pool" json:"pool"`
	// Properties holds raw backend-specific connection properties
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// Document is the root of a pool configuration file.
type Document struct {
	Sources map[string]Source `yaml:"sources" json:"sources"`
}

// Load reads, substitutes environment variables into, and parses a pool
// configuration document.
func Load(filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	var doc Document
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(doc.Sources) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "config document defines no sources")
	}
	return &doc, nil
}

// Save writes a document back out as YAML.
func Save(filePath string, doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// PoolConfig converts a Source into a registry Config, validating the
// backend name and the recognized option set.
func (s Source) PoolConfig() (connpool.Config, error) {
	var cfg connpool.Config

	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case "pgx":
		cfg.Pgx = true
	case "sql", "":
		cfg.Pgx = false
	default:
		return connpool.Config{}, errors.New(errors.ErrorTypeConfig, "unknown pool backend").
			WithDetail("backend", s.Backend)
	}

	if len(s.Pool) > 0 {
		cfg.PoolProps = make(map[connpool.Option]string, len(s.Pool))
		for k, v := range s.Pool {
			cfg.PoolProps[connpool.Option(k)] = v
		}
	}
	if len(s.Properties) > 0 {
		cfg.ConnProps = make(map[string]string, len(s.Properties))
		for k, v := range s.Properties {
			cfg.ConnProps[k] = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return connpool.Config{}, err
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
