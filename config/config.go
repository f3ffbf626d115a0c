// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vmdkops/vmdkperf/logger"
	"github.com/vmdkops/vmdkperf/pkg/buildinfo"
	"github.com/vmdkops/vmdkperf/pkg/confopt"
	"github.com/vmdkops/vmdkperf/pkg/tlscfg"
	"github.com/vmdkops/vmdkperf/vsphere/client"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

type Config struct {
	URL              string           `yaml:"url" json:"url"`
	Username         string           `yaml:"username" json:"username"`
	Password         string           `yaml:"password" json:"password"`
	CallerID         string           `yaml:"caller_id,omitempty" json:"caller_id"`
	Timeout          confopt.Duration `yaml:"timeout,omitempty" json:"timeout"`
	KeepAlive        confopt.Duration `yaml:"keep_alive,omitempty" json:"keep_alive"`
	tlscfg.TLSConfig `yaml:",inline" json:""`
	Listen           string   `yaml:"listen,omitempty" json:"listen"`
	MaxConcurrent    int      `yaml:"max_concurrent,omitempty" json:"max_concurrent"`
	Volumes          []Volume `yaml:"volumes,omitempty" json:"volumes"`
}

// Volume is a virtual disk exported in serve mode.
type Volume struct {
	VMName string `yaml:"vm_name" json:"vm_name"`
	VMUUID string `yaml:"vm_uuid" json:"vm_uuid"`
	Bus    int    `yaml:"bus" json:"bus"`
	Unit   int    `yaml:"unit" json:"unit"`
}

func Default() Config {
	return Config{
		URL:           "https://localhost/sdk",
		CallerID:      buildinfo.UserAgent(),
		Timeout:       confopt.Duration(time.Second * 20),
		Listen:        ":9767",
		MaxConcurrent: 4,
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	bs, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config '%s': %v", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("URL is not set")
	}
	if c.Username == "" || c.Password == "" {
		return errors.New("username or password not set")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	for i, v := range c.Volumes {
		if _, err := uuid.Parse(v.VMUUID); err != nil {
			return fmt.Errorf("volume %d (vm '%s'): invalid vm_uuid '%s': %v", i, v.VMName, v.VMUUID, err)
		}
		if v.Bus < 0 || v.Unit < 0 {
			return fmt.Errorf("volume %d (vm '%s'): bus and unit must not be negative", i, v.VMName)
		}
	}
	return nil
}

func (c Config) ClientConfig(log *logger.Logger) client.Config {
	return client.Config{
		URL:       c.URL,
		User:      c.Username,
		Password:  c.Password,
		TLSConfig: c.TLSConfig,
		Timeout:   c.Timeout.Duration(),
		CallerID:  c.CallerID,
		KeepAlive: c.KeepAlive.Duration(),
		Logger:    log,
	}
}
