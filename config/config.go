// SPDX-License-Identifier: Apache-2.0

// Package config loads the optional TOML configuration file for the
// signing CLI and reconciles it against CLI flags, per the invariant that
// no setting may be given in both places at once.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config mirrors the CLI's sign flags that may alternatively be set in a
// config file.
type Config struct {
	Pubkey       string   `toml:"pubkey"`
	Secret       string   `toml:"secret"`
	KnownPubkeys []string `toml:"known_pubkeys"`
	Target       string   `toml:"target"`
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var c Config
	if _, err := toml.Decode(string(data), &c); err != nil {
		return nil, fmt.Errorf("config file format error in TOML: %w", err)
	}
	return &c, nil
}

// Conflict is returned by MergeString and MergeStrings when a setting is
// present in both the config file and the CLI flags.
type Conflict string

func (c Conflict) Error() string {
	return fmt.Sprintf("%s specified in both config and cli", string(c))
}

// MergeString reconciles a CLI flag value against a config field. An empty
// string means "not set" on either side.
func MergeString(field string, cli, fromConfig string) (string, error) {
	switch {
	case cli == "" && fromConfig == "":
		return "", nil
	case cli == "" && fromConfig != "":
		return fromConfig, nil
	case cli != "" && fromConfig == "":
		return cli, nil
	default:
		return "", Conflict(field)
	}
}

// MergeStrings reconciles a repeatable CLI flag against a config list.
func MergeStrings(field string, cli, fromConfig []string) ([]string, error) {
	switch {
	case len(cli) == 0 && len(fromConfig) == 0:
		return nil, nil
	case len(cli) == 0 && len(fromConfig) != 0:
		return fromConfig, nil
	case len(cli) != 0 && len(fromConfig) == 0:
		return cli, nil
	default:
		return nil, Conflict(field)
	}
}
