package main

import (
	"time"

	"github.com/loykin/ranktime/internal/config"
)

// Flag structs decouple cobra from logic for testing.

type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

type StatsFlags struct {
	File   string
	Format string
	Ranks  []string
	NoSort bool
	Strict bool
}

type InspectFlags struct {
	File   string
	Rank   string
	NoSort bool
	Strict bool
}

type ExportFlags struct {
	File    string
	DSN     string
	Strict  bool
	Timeout time.Duration
}

type ServeFlags struct {
	Preload        string
	Listen         string
	BasePath       string
	Engine         string
	MetricsEnabled bool
	MetricsListen  string
	Strict         bool
	TLS            config.TLSConfig
}

type PushFlags struct {
	File     string
	APIUrl   string
	Strict   bool
	Timeout  time.Duration
	CACert   string
	Insecure bool
}
