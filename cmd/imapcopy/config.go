package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// serverConfig mirrors the per-endpoint connection flags for users who
// prefer a config file over credentials on the command line.
type serverConfig struct {
	Server      string `yaml:"server"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Pass        string `yaml:"pass"`
	Encryption  string `yaml:"encryption"`
	SSLNoVerify bool   `yaml:"ssl_no_verify"`
}

type fileConfig struct {
	Source      serverConfig `yaml:"source"`
	Destination serverConfig `yaml:"destination"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &fileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig fills fields the user left unset on the command line.
// Flags always win over file values.
func applyConfig(o *copyOptions, cfg *fileConfig) {
	applyServer := func(dst *endpointOptions, src serverConfig) {
		if dst.server == "" {
			dst.server = src.Server
		}
		if dst.port == 0 {
			dst.port = src.Port
		}
		if dst.user == "" {
			dst.user = src.User
		}
		if dst.pass == "" {
			dst.pass = src.Pass
		}
		if !dst.encryptionSet && src.Encryption != "" {
			dst.encryption = src.Encryption
		}
		if src.SSLNoVerify {
			dst.sslNoVerify = true
		}
	}
	applyServer(&o.source, cfg.Source)
	applyServer(&o.destination, cfg.Destination)
}
