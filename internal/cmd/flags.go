package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

const (
	configPathFlagName  = "config"
	configPathFlagShort = "c"
	configPathFlagUsage = "Path to a YAML configuration file. Values in the file override environment variables."
)

// flags collects the CLI options shared by the run and schedule commands.
type flags struct {
	configPath string
}

// addFlags registers the CLI flags on cmd.
func (f *flags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, configPathFlagName, configPathFlagShort, "", configPathFlagUsage)
}

// toOptions builds an options instance from the parsed flags.
func (f *flags) toOptions() (*options, error) {
	configPath := ""
	if f.configPath != "" {
		configPath = filepath.Clean(f.configPath)
	}

	return &options{
		configPath:     configPath,
		storageFactory: storageFactory,
	}, nil
}
