/*
File Name:  Config.go
Copyright:  2021 Peernet Foundation s.r.o.
Author:     Peter Kleissner
*/

package core

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the current engine library version.
const Version = "0.1"

// defaultConfigYAML is used whenever the configured file does not exist
// or is empty, the same fallback the teacher applies for its embedded
// default (here inlined since this module ships no default asset file).
const defaultConfigYAML = `ReceiveRoot: ""
DatabasePath: ""
ListenTCPPort: 8890
DiscoveryUDPPort: 8891
DiscoveryBurstWindowMs: 500
LogFile: ""
`

// Config holds every user-configurable setting (spec §6: receive_root,
// database_path, no other options besides the ports this expansion pins
// down). The session listener always binds TCP 8890 and the discovery
// sockets always bind UDP 8891: ListenTCPPort is only the session port
// advertised in discovery responses, and DiscoveryUDPPort is not read by
// the discovery endpoint.
type Config struct {
	ReceiveRoot            string `yaml:"ReceiveRoot"`
	DatabasePath           string `yaml:"DatabasePath"`
	ListenTCPPort          uint16 `yaml:"ListenTCPPort"`
	DiscoveryUDPPort       uint16 `yaml:"DiscoveryUDPPort"`
	DiscoveryBurstWindowMs int    `yaml:"DiscoveryBurstWindowMs"`
	LogFile                string `yaml:"LogFile"`
}

// DiscoveryBurstWindow returns the configured burst window as a duration.
func (c *Config) DiscoveryBurstWindow() time.Duration {
	return time.Duration(c.DiscoveryBurstWindowMs) * time.Millisecond
}

// LoadConfig reads the YAML configuration file at filename. A
// non-existent or empty file falls back to defaultConfigYAML.
// Status: 0 = unknown error checking file, 1 = error reading file,
// 2 = error parsing file, 3 = success.
func LoadConfig(filename string) (config Config, status int, err error) {
	var data []byte

	stats, statErr := os.Stat(filename)
	switch {
	case statErr != nil && os.IsNotExist(statErr):
		data = []byte(defaultConfigYAML)
	case statErr != nil:
		return config, 0, statErr
	case stats.Size() == 0:
		data = []byte(defaultConfigYAML)
	default:
		if data, err = ioutil.ReadFile(filename); err != nil {
			return config, 1, err
		}
	}

	if err = yaml.Unmarshal(data, &config); err != nil {
		return config, 2, err
	}
	if config.ListenTCPPort == 0 {
		config.ListenTCPPort = 8890
	}
	if config.DiscoveryUDPPort == 0 {
		config.DiscoveryUDPPort = 8891
	}
	if config.DiscoveryBurstWindowMs == 0 {
		config.DiscoveryBurstWindowMs = 500
	}
	if config.DatabasePath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			config.DatabasePath = filepath.Join(dir, "lanshare", "contacts.db")
		}
	}

	return config, 3, nil
}

// SaveConfig writes config back to filename as YAML.
func SaveConfig(filename string, config Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filename, data, 0644)
}
