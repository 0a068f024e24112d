// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import "testing"

func TestLoadConfigRequiresPrimaryRemote(t *testing.T) {
	t.Setenv("PRIMARY_REMOTE", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when PRIMARY_REMOTE is unset")
	}
}

func TestLoadConfigScansNumberedGroupsUntilGap(t *testing.T) {
	t.Setenv("PRIMARY_REMOTE", "gdrive1")
	t.Setenv("GROUP_3_PRIMARY", "gdrive3")
	t.Setenv("GROUP_4_PRIMARY", "gdrive4")
	// GROUP_5_PRIMARY intentionally unset: scanning must stop at 5.
	t.Setenv("GROUP_6_PRIMARY", "gdrive6")
	t.Setenv("SERVE_HTTP_PORT_START", "19000")
	t.Setenv("SERVE_HTTP_STARTUP_TIMEOUT", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Groups) != 3 {
		t.Fatalf("len(Groups) = %d, want 3 (group 1, 3, 4 - gap at 5 stops scanning)", len(cfg.Groups))
	}
	if cfg.Groups[0].N != 1 || cfg.Groups[1].N != 3 || cfg.Groups[2].N != 4 {
		t.Errorf("group numbers = %d, %d, %d", cfg.Groups[0].N, cfg.Groups[1].N, cfg.Groups[2].N)
	}
}

func TestLoadConfigRejectsBadStrategy(t *testing.T) {
	t.Setenv("PRIMARY_REMOTE", "gdrive1")
	t.Setenv("LOAD_BALANCING_STRATEGY", "fastest")
	t.Setenv("SERVE_HTTP_PORT_START", "19000")
	t.Setenv("SERVE_HTTP_STARTUP_TIMEOUT", "10")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for an unrecognized strategy")
	}
}

func TestLoadConfigRejectsLowPort(t *testing.T) {
	t.Setenv("PRIMARY_REMOTE", "gdrive1")
	t.Setenv("SERVE_HTTP_PORT_START", "80")
	t.Setenv("SERVE_HTTP_STARTUP_TIMEOUT", "10")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for a port below 1024")
	}
}

func TestLoadConfigRejectsStartupTimeoutOutOfRange(t *testing.T) {
	t.Setenv("PRIMARY_REMOTE", "gdrive1")
	t.Setenv("SERVE_HTTP_PORT_START", "19000")
	t.Setenv("SERVE_HTTP_STARTUP_TIMEOUT", "90")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for a startup timeout above 60s")
	}
}

func TestGetenvGBParsesFractional(t *testing.T) {
	t.Setenv("GROUP1_QUOTA_GB", "2.5")
	got := getenvGB("GROUP1_QUOTA_GB")
	want := int64(2.5 * (1 << 30))
	if got != want {
		t.Errorf("getenvGB() = %d, want %d", got, want)
	}
}
