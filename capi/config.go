// Copyright 2025 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package capi

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of the library's own environment variables.
	EnvPrefix = "OUTLINE_SSL"
	// EnvLogLevel selects the library log level: debug, info, warn, error or off.
	EnvLogLevel = EnvPrefix + "_LOG"
	// EnvKeyLogFile names a file that receives TLS secrets in NSS key log format.
	EnvKeyLogFile = "SSLKEYLOGFILE"
)

// Configuration keys.
const (
	keyLog        = "log"
	keyKeyLogFile = "key_log_file"
)

// Config is the process-wide library configuration.
type Config struct {
	LogLevel slog.Level
	// LogOff discards all log output.
	LogOff     bool
	KeyLogFile string
}

type configValues struct {
	Log        string `mapstructure:"log"`
	KeyLogFile string `mapstructure:"key_log_file"`
}

// DefaultConfig logs errors only and writes no key log.
func DefaultConfig() Config {
	return Config{LogLevel: slog.LevelError}
}

// NewConfigSource returns a [viper.Viper] bound to the library's environment
// variables. SSLKEYLOGFILE keeps its conventional unprefixed name.
func NewConfigSource() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	// BindEnv only fails when called without a key.
	_ = v.BindEnv(keyLog)
	_ = v.BindEnv(keyKeyLogFile, EnvKeyLogFile)
	v.SetDefault(keyLog, "error")
	return v
}

// LoadConfig reads the configuration from v, typically built with
// [NewConfigSource]. On error it returns the default configuration along with
// the error.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	var values configValues
	if err := v.Unmarshal(&values); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	switch level := strings.ToLower(strings.TrimSpace(values.Log)); level {
	case "":
	case "off", "none":
		cfg.LogOff = true
	default:
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return cfg, fmt.Errorf("invalid %v=%q: %w", EnvLogLevel, level, err)
		}
	}
	cfg.KeyLogFile = values.KeyLogFile
	return cfg, nil
}
