// Package config loads runtime settings for both binaries: defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// RelayURL is the rendezvous daemon websocket endpoint.
	RelayURL string `yaml:"relay_url"`
	// ListenAddr is the relayd bind address.
	ListenAddr string `yaml:"listen_addr"`
	// ICEServers is handed to the transport as an opaque NAT-traversal list.
	ICEServers []string `yaml:"ice_servers"`
	// JoinTimeout bounds how long a guest waits for the host's welcome.
	JoinTimeout time.Duration `yaml:"join_timeout"`
	// PrefsPath is where the local profile database lives.
	PrefsPath string `yaml:"prefs_path"`
}

func defaults() Config {
	return Config{
		RelayURL:    "ws://localhost:9000/ws",
		ListenAddr:  ":9000",
		ICEServers:  []string{"stun:stun.l.google.com:19302"},
		JoinTimeout: 12 * time.Second,
		PrefsPath:   "racetype.db",
	}
}

// Load merges defaults, the YAML file at path (skipped when path is empty or
// missing), and RACETYPE_* environment variables, strongest last.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.RelayURL = getEnv("RACETYPE_RELAY_URL", cfg.RelayURL)
	cfg.ListenAddr = getEnv("RACETYPE_LISTEN_ADDR", cfg.ListenAddr)
	cfg.PrefsPath = getEnv("RACETYPE_PREFS_PATH", cfg.PrefsPath)
	if v := os.Getenv("RACETYPE_ICE_SERVERS"); v != "" {
		cfg.ICEServers = splitList(v)
	}
	cfg.JoinTimeout = getEnvAsSeconds("RACETYPE_JOIN_TIMEOUT_SEC", cfg.JoinTimeout)
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
