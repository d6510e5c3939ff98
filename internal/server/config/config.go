package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

const (
	defaultListenAddr   = "0.0.0.0:3030"
	defaultShell        = "/bin/bash"
	defaultLLMURL       = "http://127.0.0.1:11434"
	defaultLLMModel     = "deepseek-coder:6.7b-instruct"
	defaultDBPath       = ":memory:"
	defaultHistoryDepth = 3
)

// ServerConfig captures the runtime configuration required by the daemon.
type ServerConfig struct {
	ListenAddr   string
	Shell        string
	LLMURL       string
	LLMModel     string
	DatabasePath string
	AllowCIDRs   []*net.IPNet
	HistoryDepth int
}

// FromEnv loads server configuration from environment variables, applying
// defaults when unset.
func FromEnv() (ServerConfig, error) {
	cfg := ServerConfig{
		ListenAddr:   getenv("VOLTERM_LISTEN", defaultListenAddr),
		Shell:        getenv("VOLTERM_SHELL", defaultShell),
		LLMURL:       strings.TrimRight(getenv("VOLTERM_LLM_URL", defaultLLMURL), "/"),
		LLMModel:     getenv("VOLTERM_LLM_MODEL", defaultLLMModel),
		DatabasePath: getenv("VOLTERM_DB_PATH", defaultDBPath),
		HistoryDepth: defaultHistoryDepth,
	}

	listenAddr := strings.TrimSpace(cfg.ListenAddr)
	if listenAddr == "" {
		return ServerConfig{}, fmt.Errorf("config: listen address required")
	}
	if _, _, err := net.SplitHostPort(listenAddr); err != nil {
		return ServerConfig{}, fmt.Errorf("config: invalid listen address %q: %w", listenAddr, err)
	}
	cfg.ListenAddr = listenAddr

	if raw := getenv("VOLTERM_HISTORY_DEPTH", ""); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil || depth < 0 {
			return ServerConfig{}, fmt.Errorf("config: invalid history depth %q", raw)
		}
		cfg.HistoryDepth = depth
	}

	cidrs, err := parseCIDRs(getenv("VOLTERM_API_ALLOW_CIDR", ""))
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.AllowCIDRs = cidrs
	return cfg, nil
}

// parseCIDRs reads a comma separated allow-list. Empty means unrestricted.
func parseCIDRs(raw string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		_, network, err := net.ParseCIDR(part)
		if err != nil {
			return nil, fmt.Errorf("config: invalid allow cidr %q: %w", part, err)
		}
		out = append(out, network)
	}
	return out, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
