package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"github.com/rendis/yelptap/internal/engine/scraper"
	"github.com/rendis/yelptap/internal/model"
)

// DefaultFile is looked up in the working directory when no --config is given.
const DefaultFile = "yelptap.json5"

type Config struct {
	BaseURL           string  `json:"base_url"`
	MaxPages          int     `json:"max_pages"`
	Concurrency       int     `json:"concurrency"`
	RequestsPerSecond float64 `json:"rps"`
	Proxy             string  `json:"proxy"`
	Output            string  `json:"output"`
	DB                string  `json:"db"`
	// AllowedDomains defaults to the base URL's domain.
	AllowedDomains []string `json:"allowed_domains"`

	Telemetry Telemetry         `json:"telemetry"`
	S3        S3                `json:"s3"`
	Selectors scraper.Selectors `json:"selectors"`
}

type Telemetry struct {
	// Endpoint is an OTLP/HTTP collector URL, e.g. http://localhost:4318.
	// Tracing is off when empty.
	Endpoint    string            `json:"endpoint"`
	Headers     map[string]string `json:"headers"`
	ServiceName string            `json:"service_name"`
}

type S3 struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Prefix string `json:"prefix"`
}

func Default() Config {
	return Config{
		BaseURL:     model.DefaultBaseURL,
		MaxPages:    1,
		Concurrency: model.DefaultConcurrency,
		Output:      model.DefaultOutput,
		Telemetry:   Telemetry{ServiceName: "yelptap"},
		S3:          S3{Region: "us-east-1", Prefix: "yelptap"},
		Selectors:   scraper.DefaultSelectors(),
	}
}

// Load reads name (and its .local sibling) and fills everything left unset
// from Default. A missing file is not an error.
func Load(name string) (Config, error) {
	cfg, err := ReadConfig[Config](name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("reading config %s: %w", name, err)
	}
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return cfg, fmt.Errorf("applying config defaults: %w", err)
	}
	return cfg, nil
}

// Params converts the config into crawl parameters for q.
func (c Config) Params(q model.SearchQuery) model.SearchParams {
	p := model.SearchParams{
		Query:             q,
		BaseURL:           c.BaseURL,
		MaxPages:          c.MaxPages,
		Concurrency:       c.Concurrency,
		RequestsPerSecond: c.RequestsPerSecond,
		ProxyURL:          c.Proxy,
		Output:            c.Output,
		DBPath:            c.DB,
		AllowedDomains:    c.AllowedDomains,
	}
	p.Normalize()
	return p
}

// ReadConfig merges <name>.<ext> with <name>.local.<ext>, the local file
// taking priority. Returns os.ErrNotExist when neither exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	allNotFound := true

	dirname := filepath.Dir(name)
	ext := filepath.Ext(name)
	prefixname := strings.TrimSuffix(filepath.Base(name), ext)

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		if err := json5.Unmarshal(defaultFile, &out); err != nil {
			return out, err
		}
		allNotFound = false
	}

	localFilepath := filepath.Join(dirname, prefixname+".local"+ext)
	localFile, err := os.ReadFile(localFilepath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		var override T
		if err := json5.Unmarshal(localFile, &override); err != nil {
			return out, err
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localFilepath)
		allNotFound = false
	}

	if allNotFound {
		return out, os.ErrNotExist
	}
	return out, nil
}
