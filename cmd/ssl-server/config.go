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

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Jigsaw-Code/outline-ssl/ssl"
	"github.com/goccy/go-yaml"
)

// ServerConfig is the YAML configuration of the echo server.
//
//	listen: 127.0.0.1:8443
//	certificate_chain: chain.pem
//	private_key: key.pem
//	versions: ["1.3", "1.2"]
//	verify: require
//	client_ca: ca.pem
//	session_cache: server
type ServerConfig struct {
	Listen           string   `yaml:"listen"`
	CertificateChain string   `yaml:"certificate_chain"`
	PrivateKey       string   `yaml:"private_key"`
	Versions         []string `yaml:"versions,omitempty"`
	// Verify is none (the default), peer or require.
	Verify       string `yaml:"verify,omitempty"`
	ClientCA     string `yaml:"client_ca,omitempty"`
	SessionCache string `yaml:"session_cache,omitempty"`
}

func parseConfig(data []byte) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8443"
	}
	if cfg.CertificateChain == "" || cfg.PrivateKey == "" {
		return nil, errors.New("certificate_chain and private_key are required")
	}
	return &cfg, nil
}

func (cfg *ServerConfig) method() (*ssl.Method, error) {
	if len(cfg.Versions) == 0 {
		return ssl.MethodTLS(), nil
	}
	versions := make([]ssl.Version, 0, len(cfg.Versions))
	for _, v := range cfg.Versions {
		switch v {
		case "1.2":
			versions = append(versions, ssl.VersionTLS12)
		case "1.3":
			versions = append(versions, ssl.VersionTLS13)
		default:
			return nil, fmt.Errorf("unsupported version %q", v)
		}
	}
	return ssl.NewMethod(versions...)
}

func (cfg *ServerConfig) verifyMode() (ssl.VerifyMode, error) {
	switch cfg.Verify {
	case "", "none":
		return ssl.VerifyNone, nil
	case "peer":
		return ssl.VerifyPeer, nil
	case "require":
		return ssl.VerifyPeer | ssl.VerifyFailIfNoPeerCert, nil
	}
	return 0, fmt.Errorf("unsupported verify mode %q", cfg.Verify)
}

func (cfg *ServerConfig) cacheMode() (ssl.SessionCacheMode, error) {
	switch cfg.SessionCache {
	case "", "server":
		return ssl.SessionCacheServer, nil
	case "off":
		return ssl.SessionCacheOff, nil
	case "client":
		return ssl.SessionCacheClient, nil
	case "both":
		return ssl.SessionCacheBoth, nil
	}
	return 0, fmt.Errorf("unsupported session cache mode %q", cfg.SessionCache)
}

// newContext builds the server context described by cfg.
func (cfg *ServerConfig) newContext(logger *slog.Logger) (*ssl.Context, error) {
	m, err := cfg.method()
	if err != nil {
		return nil, err
	}
	verify, err := cfg.verifyMode()
	if err != nil {
		return nil, err
	}
	cache, err := cfg.cacheMode()
	if err != nil {
		return nil, err
	}
	ctx, err := ssl.NewContext(m, ssl.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := ctx.UseCertificateChainFile(cfg.CertificateChain); err != nil {
		return nil, fmt.Errorf("failed to load certificate chain: %w", err)
	}
	if err := ctx.UsePrivateKeyFile(cfg.PrivateKey); err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	if err := ctx.CheckPrivateKey(); err != nil {
		return nil, err
	}
	if cfg.ClientCA != "" {
		if err := ctx.LoadVerifyLocationsFile(cfg.ClientCA); err != nil {
			return nil, fmt.Errorf("failed to load client CA: %w", err)
		}
	}
	if err := ctx.SetVerify(verify); err != nil {
		return nil, err
	}
	if _, err := ctx.SetSessionCacheMode(cache); err != nil {
		return nil, err
	}
	return ctx, nil
}
