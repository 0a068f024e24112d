// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// serveFileConfig is the shape of the optional config file: defaults for
// `serve`'s flags. Storage groups and daemon tuning stay exclusively
// environment-variable driven (see vault.LoadConfig) — this file only
// ever covers flag-level defaults, never group topology.
type serveFileConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	Port           int      `json:"port" yaml:"port"`
	BaseFolder     string   `json:"base-folder" yaml:"base-folder"`
	AllowedOrigins []string `json:"allowed-origins" yaml:"allowed-origins"`
	Thumbnails     bool     `json:"thumbnails" yaml:"thumbnails"`
	LogLevel       string   `json:"log-level" yaml:"log-level"`
}

// DefaultServeConfig returns the built-in defaults written by `config init`.
func DefaultServeConfig() serveFileConfig {
	return serveFileConfig{
		Addr:       "0.0.0.0",
		Port:       8080,
		BaseFolder: "manga",
		Thumbnails: true,
		LogLevel:   "info",
	}
}

func configFilePath(ext string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mangavault"+ext), nil
}

// loadServeFileConfig reads whichever of mangavault.yaml / mangavault.json
// exists, preferring YAML. A missing file is not an error: the caller
// falls back to its own built-in flag defaults.
func loadServeFileConfig() (serveFileConfig, bool, error) {
	cfg := DefaultServeConfig()

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path, err := configFilePath(ext)
		if err != nil {
			return cfg, false, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cfg, false, fmt.Errorf("read %s: %w", path, err)
		}
		if ext == ".json" {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, false, fmt.Errorf("parse %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, false, fmt.Errorf("parse %s: %w", path, err)
			}
		}
		return cfg, true, nil
	}
	return cfg, false, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the serve command's default flag values",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		useYAML bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default serve config file",
		Long: `Creates a default configuration file at ~/.config/mangavault.yaml (or .json).

This file only sets default values for 'serve' flags (addr, port,
base-folder, allowed-origins, thumbnails, log-level). CLI flags always
override file values. Storage group topology is never read from this
file — it is always environment-variable driven; see the GROUP_n_*
variables documented by 'mangavault serve --help'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ext := ".yaml"
			if !useYAML {
				ext = ".json"
			}
			path, err := configFilePath(ext)
			if err != nil {
				return err
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nuse --force to overwrite", path)
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			cfg := DefaultServeConfig()
			var data []byte
			if useYAML {
				data, err = yaml.Marshal(cfg)
			} else {
				data, err = json.MarshalIndent(cfg, "", "  ")
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			fmt.Printf("created config file: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&useYAML, "yaml", true, "Write YAML instead of JSON")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the serve defaults currently in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, found, err := loadServeFileConfig()
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("no config file found, built-in defaults are in effect:")
			}
			data, _ := yaml.Marshal(cfg)
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path mangavault looks for",
		Run: func(cmd *cobra.Command, args []string) {
			path, err := configFilePath(".yaml")
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return
			}
			fmt.Println(path)
		},
	}
}
