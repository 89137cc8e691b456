// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the file-backed CLI configuration, merged under any
// explicit flags.
type Config struct {
	StoreRoot       string `yaml:"store_root"`
	GitDirRoot      string `yaml:"git_dir_root"`
	OverridesPath   string `yaml:"overrides_path"`
	LogLevel        string `yaml:"log_level"`
	LogDir          string `yaml:"log_dir"`
	MetricsExporter string `yaml:"metrics_exporter"`
}

var config Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if configPath != defaultConfigPath {
				log.Fatalf("Error reading %s: %v", configPath, err)
			}
			// The default config file is optional; flags stand alone.
			return
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
	}
}
