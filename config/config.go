// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the node's environment-level configuration. Protocol
// parameters live in core.Params; this covers process wiring.
type Config struct {
	RPCAddr     string
	DBPath      string
	AdminKey    string
	ParamsPath  string
	GenesisPath string
	LogLevel    string
	AutoSettle  bool
}

// MinAdminKeyLen rejects weak admin secrets outright.
const MinAdminKeyLen = 32

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RPCAddr:     getEnv("RC_RPC_ADDR", "0.0.0.0:8088"),
		DBPath:      getEnv("RC_DB_PATH", "./rustchain.db"),
		ParamsPath:  getEnv("RC_PARAMS_PATH", ""),
		GenesisPath: getEnv("RC_GENESIS_PATH", ""),
		LogLevel:    getEnv("RC_LOG_LEVEL", "info"),
		AutoSettle:  getEnvBool("RC_AUTO_SETTLE", true),
	}

	adminKey := cleanEnvValue(os.Getenv("RC_ADMIN_KEY"))
	if adminKey == "" {
		return nil, fmt.Errorf("RC_ADMIN_KEY is required")
	}
	if len(adminKey) < MinAdminKeyLen {
		return nil, fmt.Errorf("RC_ADMIN_KEY must be at least %d characters", MinAdminKeyLen)
	}
	cfg.AdminKey = adminKey

	return cfg, nil
}

func (c *Config) Print() {
	fmt.Println("=== Configuration ===")
	fmt.Printf("  RPC Addr:    %s\n", c.RPCAddr)
	fmt.Printf("  DB Path:     %s\n", c.DBPath)
	fmt.Printf("  Log Level:   %s\n", c.LogLevel)
	fmt.Printf("  Auto Settle: %v\n", c.AutoSettle)
	if c.ParamsPath != "" {
		fmt.Printf("  Params Path: %s\n", c.ParamsPath)
	}
	if c.GenesisPath != "" {
		fmt.Printf("  Genesis:     %s\n", c.GenesisPath)
	}
	fmt.Println("=====================")
}

func getEnv(key, defaultVal string) string {
	if val := cleanEnvValue(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := cleanEnvValue(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func cleanEnvValue(val string) string {
	val = strings.TrimSpace(val)
	if idx := strings.Index(val, "#"); idx != -1 {
		val = strings.TrimSpace(val[:idx])
	}
	return val
}
