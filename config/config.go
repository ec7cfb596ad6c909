// Package config provides the public configuration API.
//
// It re-exports the internal configuration types and loader so embedders
// can configure the runtime without importing internal packages.
package config

import internalconfig "github.com/modelbridge/rtcore/internal/config"

type Config = internalconfig.Config

type RetryConfig = internalconfig.RetryConfig

type StreamingConfig = internalconfig.StreamingConfig

func Load(path string) (*Config, error) { return internalconfig.Load(path) }
