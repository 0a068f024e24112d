// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved environment-variable configuration for one
// mangavault process: the storage groups, daemon tuning, load-balancing
// strategy, and HTTP/worker settings.
type Config struct {
	Groups           []GroupConfig
	AutoSwitchGroup  bool
	Group2PathPrefix string
	Strategy         Strategy
	Daemon           DaemonConfig
	ServeHTTPEnabled bool
	RemoteCacheDir   string
	LogLevel         Level
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvGB(key string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return int64(n * (1 << 30))
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadConfig reads every documented environment variable, validating
// ranges the spec calls out (ports >= 1024, startup window 3-60s) and
// falling back to the process defaults otherwise.
func LoadConfig() (*Config, error) {
	primary := strings.TrimSpace(os.Getenv("PRIMARY_REMOTE"))
	if primary == "" {
		return nil, fmt.Errorf("PRIMARY_REMOTE is required")
	}

	cfg := &Config{
		AutoSwitchGroup:  getenvBool("AUTO_SWITCH_GROUP", false),
		Group2PathPrefix: getenv("GROUP2_PATH_PREFIX", "@"),
		Strategy:         Strategy(getenv("LOAD_BALANCING_STRATEGY", string(RoundRobin))),
		ServeHTTPEnabled: getenvBool("SERVE_HTTP_ENABLED", true),
		RemoteCacheDir:   getenv("REMOTE_CACHE_DIR", os.TempDir()),
		LogLevel:         ParseLevel(getenv("LOG_LEVEL", "info")),
	}

	cfg.Groups = append(cfg.Groups, GroupConfig{
		N:          1,
		Primary:    primary,
		Backups:    splitCSV(os.Getenv("BACKUP_REMOTES")),
		QuotaBytes: getenvGB("GROUP1_QUOTA_GB"),
	})

	if nextPrimary := strings.TrimSpace(os.Getenv("NEXT_PRIMARY_REMOTE")); nextPrimary != "" {
		cfg.Groups = append(cfg.Groups, GroupConfig{
			N:          2,
			Primary:    nextPrimary,
			Backups:    splitCSV(os.Getenv("NEXT_BACKUP_REMOTES")),
			QuotaBytes: getenvGB("GROUP2_QUOTA_GB"),
		})
	}

	for n := 3; ; n++ {
		p := strings.TrimSpace(os.Getenv(fmt.Sprintf("GROUP_%d_PRIMARY", n)))
		if p == "" {
			break
		}
		cfg.Groups = append(cfg.Groups, GroupConfig{
			N:          n,
			Primary:    p,
			Backups:    splitCSV(os.Getenv(fmt.Sprintf("GROUP_%d_BACKUPS", n))),
			QuotaBytes: getenvGB(fmt.Sprintf("GROUP_%d_QUOTA_GB", n)),
		})
	}

	if err := validateStrategy(cfg.Strategy); err != nil {
		return nil, err
	}

	daemonCfg, err := loadDaemonConfig()
	if err != nil {
		return nil, err
	}
	cfg.Daemon = daemonCfg

	if err := validateWritableDir(cfg.RemoteCacheDir); err != nil {
		return nil, fmt.Errorf("REMOTE_CACHE_DIR: %w", err)
	}

	return cfg, nil
}

func validateStrategy(s Strategy) error {
	switch s {
	case RoundRobin, Weighted, Random, LeastUsed:
		return nil
	default:
		return fmt.Errorf("LOAD_BALANCING_STRATEGY %q is not one of round_robin|weighted|random|least_used", s)
	}
}

func loadDaemonConfig() (DaemonConfig, error) {
	d := DefaultDaemonConfig()
	d.Host = getenv("SERVE_HTTP_HOST", d.Host)
	d.BasePort = getenvInt("SERVE_HTTP_PORT_START", d.BasePort)
	if d.BasePort < 1024 {
		return d, fmt.Errorf("SERVE_HTTP_PORT_START must be >= 1024, got %d", d.BasePort)
	}
	d.VFSCacheMode = getenv("SERVE_HTTP_VFS_CACHE_MODE", d.VFSCacheMode)
	d.BufferSize = getenv("SERVE_HTTP_BUFFER_SIZE", d.BufferSize)
	d.VFSCacheMaxSize = getenv("SERVE_HTTP_VFS_CACHE_MAX_SIZE", d.VFSCacheMaxSize)
	d.VFSCacheMaxAge = getenv("SERVE_HTTP_VFS_CACHE_MAX_AGE", d.VFSCacheMaxAge)
	d.ReadOnly = getenvBool("SERVE_HTTP_READ_ONLY", d.ReadOnly)
	d.NoChecksum = getenvBool("SERVE_HTTP_NO_CHECKSUM", d.NoChecksum)
	d.Auth = getenv("SERVE_HTTP_AUTH", "")
	d.AutoRestart = getenvBool("SERVE_HTTP_AUTO_RESTART", true)
	d.MaxRestartAttempt = getenvInt("SERVE_HTTP_MAX_RESTART_ATTEMPTS", 5)
	d.WorkerIndex = getenvInt("WORKER_INDEX", 0)
	d.SlotsPerWorker = getenvInt("WORKER_PORT_SLOTS", d.SlotsPerWorker)

	startupSecs := getenvInt("SERVE_HTTP_STARTUP_TIMEOUT", int(d.StartupTimeout.Seconds()))
	if startupSecs < 3 || startupSecs > 60 {
		return d, fmt.Errorf("SERVE_HTTP_STARTUP_TIMEOUT must be within 3-60s, got %d", startupSecs)
	}
	d.StartupTimeout = time.Duration(startupSecs) * time.Second

	return d, nil
}

// validateWritableDir confirms dir exists and is writable by creating and
// removing a unique probe file, rather than trusting file-mode bits alone.
func validateWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
