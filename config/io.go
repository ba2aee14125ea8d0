package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Load before `ferry init` has run.
var ErrNotFound = errors.New("config not found, run 'ferry init' first")

// saveMu serializes Save calls within the process.
var saveMu sync.Mutex

// Load reads config.yaml, fills defaults and validates the result. Unknown
// keys are rejected so a misspelt setting does not silently fall back to its
// default.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no default can repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Trade.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("trade.batchSize must be at least 1, got %d", c.Trade.BatchSize))
	}
	if c.Trade.Proximity < 0 {
		errs = append(errs, fmt.Errorf("trade.proximity must not be negative"))
	}
	if c.Collect.MemberTimeout < 0 {
		errs = append(errs, fmt.Errorf("collect.memberTimeout must not be negative"))
	}
	if c.Inventory.PackSlots < 1 || c.Inventory.BankSlots < 1 {
		errs = append(errs, fmt.Errorf("inventory slot counts must be positive"))
	}
	if u, err := url.Parse(c.Bridge.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("bridge.url must be a ws:// or wss:// URL, got %q", c.Bridge.URL))
	}
	return errors.Join(errs...)
}

// Save writes config.yaml through a temporary file so a crash never leaves a
// truncated config behind.
func (c *Config) Save() error {
	saveMu.Lock()
	defer saveMu.Unlock()

	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
