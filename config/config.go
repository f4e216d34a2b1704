package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the environment-sourced configuration for the nostrctl
// CLI and anything else in this module that wants a relay set and a
// signing key without hand-rolling its own flag parsing.
type Config struct {
	NostrRelays     []string `env:"NOSTR_RELAYS" envSeparator:";"`
	NostrPrivateKey string   `env:"NOSTR_PRIVATE_KEY"`
	ProxyURL        string   `env:"NOSTR_PROXY_URL"`
	SendTimeoutSec  int      `env:"NOSTR_SEND_TIMEOUT_SEC" envDefault:"10"`
}

// DefaultRelays is used when NOSTR_RELAYS is unset, so the CLI has
// somewhere to connect to out of the box.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
}

// load the and marshal Configuration from .env file from the UserHomeDir
// if this file was not found, fallback to a .env file in the current
// directory, and then to the os environment variables
func LoadConfig[T any]() (*T, error) {
	// load current users home directory as a string
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Error("error loading home directory", "err", err)
	}
	// check if .env file exist in the home directory
	// if it does, load the configuration from it
	// else fallback to the os environment variables
	if _, err := os.Stat(homeDir + "/.env"); err == nil {
		// load configuration from .env file
		return loadFromEnv[T](homeDir + "/.env")
	} else if _, err := os.Stat(".env"); err == nil {
		// load configuration from .env file in current directory
		return loadFromEnv[T]("")
	} else {
		// load configuration from os environment variables
		return loadFromEnv[T]("")
	}
}

// loadFromEnv loads .env variables from path into the process
// environment (falling back to a bare godotenv.Load, which looks for
// ./.env, when path is empty) before parsing T out of the environment.
// A missing .env file is not an error: env.ParseAs still succeeds
// against whatever the os environment already has set.
func loadFromEnv[T any](path string) (*T, error) {
	var loadErr error
	if path != "" {
		loadErr = godotenv.Load(path)
	} else {
		loadErr = godotenv.Load()
	}
	if loadErr != nil {
		slog.Debug("no .env file loaded, using process environment", "err", loadErr)
	}

	cfg, err := env.ParseAs[T]()
	if err != nil {
		fmt.Printf("%+v\n", err)
	}
	return &cfg, nil
}
