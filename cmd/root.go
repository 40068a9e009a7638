package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/DJA-prog/Serial-Gui/pkg/config"
)

var (
	// Root command flags
	verbose   bool
	configDir string

	// Root command
	rootCmd = &cobra.Command{
		Use:               "serial-gui",
		Short:             "A serial port monitor with YAML-scripted macros",
		Version:           "1.0.0",
		Run:               runRoot,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default: per-user config dir)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(macrosCmd)
	rootCmd.AddCommand(runCmd)
}

func runRoot(cmd *cobra.Command, args []string) {
	cmd.Help()
}

// configManager opens the configuration directory, honoring the
// --config-dir override
func configManager() (*config.FileManager, error) {
	dir := configDir
	if dir == "" {
		var err error
		dir, err = config.DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	return config.NewFileManager(dir), nil
}

// fileLogger returns a logger writing to a file in the config
// directory. The screen owns the terminal during a session, so logs
// cannot go to stderr.
func fileLogger(manager *config.FileManager) (pslog.Logger, func(), error) {
	if err := manager.Initialize(); err != nil {
		return nil, nil, err
	}

	path := filepath.Join(manager.Dir(), "serial-gui.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := pslog.InfoLevel
	if verbose {
		level = pslog.DebugLevel
	}
	logger := pslog.NewWithOptions(file, pslog.Options{
		Mode:     pslog.ModeStructured,
		MinLevel: level,
	})
	return logger, func() { file.Close() }, nil
}
