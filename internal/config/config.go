// Copyright 2025 OpenStacks Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "herald.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// ObserverConfig is one configured event observer
type ObserverConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Events   []string `yaml:"events"`
}

type Config struct {
	DataDir         string `yaml:"dataDir"         split_words:"true"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	ShutdownTimeout string `yaml:"shutdownTimeout" split_words:"true"`
	DeliveryTimeout string `yaml:"deliveryTimeout" split_words:"true"`
	RetryInterval   string `yaml:"retryInterval"   split_words:"true"`
	// Observers come from the config file only; the env can't express them
	Observers           []ObserverConfig `yaml:"observers"           ignored:"true"`
	MaxMessageSize      uint64           `yaml:"maxMessageSize"      split_words:"true"`
	ChunkSize           int              `yaml:"chunkSize"           split_words:"true"`
	MaxDeliveryAttempts int              `yaml:"maxDeliveryAttempts" split_words:"true"`
	RPCPort             uint             `yaml:"rpcPort"             envconfig:"HERALD_RPC_PORT"`
	MetricsPort         uint             `yaml:"metricsPort"         split_words:"true"`
	Tracing             bool             `yaml:"tracing"`
	TracingStdout       bool             `yaml:"tracingStdout"       split_words:"true"`
}

var globalConfig = &Config{
	DataDir:         ".herald",
	BindAddr:        "0.0.0.0",
	RPCPort:         20443,
	MetricsPort:     9153,
	ShutdownTimeout: DefaultShutdownTimeout,
}

// LoadConfig loads the config file (explicit path, ~/.herald/herald.yaml, or
// /etc/herald/herald.yaml, first match wins) and then overlays environment
// variables
func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		// Check for config file in this path: ~/.herald/herald.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".herald", "herald.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/herald/herald.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	if err := envconfig.Process("herald", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}
