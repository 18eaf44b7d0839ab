// Copyright 2025 The fawa Authors
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

// Package config loads the server configuration from flags, environment
// and an optional config.yaml, and hot-reloads the file on change.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fawa-io/drawer/pkg/fwlog"
)

type Config struct {
	// BindTo is the control-plane HTTP listen address.
	BindTo string `mapstructure:"bindTo"`
	// DatabaseURL is the sqlite DSN. A "sqlite://" prefix is accepted.
	DatabaseURL string `mapstructure:"databaseURL"`
	// JWTSecret signs and verifies access tokens. Required.
	JWTSecret string `mapstructure:"jwtSecret"`
	// RedisAddr enables the cross-instance control-bus bridge when set.
	RedisAddr string `mapstructure:"redisAddr"`
	// WebTransportAddr is the UDP listen address of the optional
	// WebTransport endpoint. Served only when cert and key are set.
	WebTransportAddr string `mapstructure:"webTransportAddr"`
	CertFile         string `mapstructure:"certFile"`
	KeyFile          string `mapstructure:"keyFile"`
	LogLevel         string `mapstructure:"logLevel"`
}

// DatabasePath strips the "sqlite://" scheme the original deployments used.
func (c Config) DatabasePath() string {
	return strings.TrimPrefix(c.DatabaseURL, "sqlite://")
}

var (
	once sync.Once

	mu sync.RWMutex

	config Config
)

func Initconfig() error {
	var initErr error
	once.Do(func() {
		initErr = LoadAndWatch()
	})
	return initErr
}

func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return config
}

func LoadAndWatch() error {
	pflag.String("bindTo", "", "Control-plane HTTP listen address (e.g., '0.0.0.0:8000')")
	pflag.String("databaseURL", "", "Sqlite DSN of the event store")
	pflag.String("redisAddr", "", "Redis address for the control-bus bridge")
	pflag.String("certFile", "", "Path to the TLS certificate file.")
	pflag.String("keyFile", "", "Path to the TLS private key file.")
	pflag.String("logLevel", "", "Log level (debug, info, warn, error)")
	pflag.Parse()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind pflags: %w", err)
	}

	// The deployment contract uses plain env names.
	for key, env := range map[string]string{
		"bindTo":      "BIND_TO",
		"databaseURL": "DATABASE_URL",
		"jwtSecret":   "JWT_SECRET",
		"redisAddr":   "REDIS_ADDR",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	viper.SetDefault("bindTo", "0.0.0.0:8000")
	viper.SetDefault("databaseURL", "drawer.db")
	viper.SetDefault("webTransportAddr", ":4433")
	viper.SetDefault("logLevel", "info")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/drawer/")

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fwlog.Infof("Config file not found.")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}

	mu.Lock()
	if err := viper.Unmarshal(&config); err != nil {
		mu.Unlock()
		return fmt.Errorf("the initial configuration cannot be decoded into the struct: %w", err)
	}
	mu.Unlock()

	viper.OnConfigChange(func(e fsnotify.Event) {
		fwlog.Infof("Config file changed: %s. Reloading...", e.Name)

		mu.Lock()
		defer mu.Unlock()

		if err := viper.Unmarshal(&config); err != nil {
			fwlog.Errorf("Error reloading the configuration: %v", err)
		} else {
			fwlog.Infof("Configuration reloaded.")
		}
	})
	viper.WatchConfig()

	return nil
}
