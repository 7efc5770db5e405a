// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"visualizer/internal/config"
	"visualizer/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected on the command line.
const (
	CommandServe   = "serve"
	CommandPlay    = "play"
	CommandAnalyze = "analyze"
	CommandDevices = "devices"
)

// Request is a parsed command line. Config is nil when cobra handled the
// invocation itself (--help, --version).
type Request struct {
	Config      *config.Config
	Source      string  // play, analyze
	At          float64 // analyze: position in seconds
	Interactive bool    // devices
}

type flags struct {
	configPath string
	verbose    bool
	primary    bool
	driver     string
	backend    string
	broker     string
}

// ParseArgs parses args, loads the configuration and applies flag
// overrides on top of it.
func ParseArgs(args []string) (*Request, error) {
	buildInfo := build.GetBuildFlags()
	req := &Request{}
	var f flags

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Long:          buildInfo.Description + ".\n\nWithout a subcommand the visualizer serves play/stop commands from the message bus.",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			req.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Config.Command = CommandServe
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Play command
	playCmd := &cobra.Command{
		Use:   "play <path-or-url>",
		Short: "Play one track and drive the lights, then exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Config.Command = CommandPlay
			req.Source = args[0]
			return nil
		},
	}
	rootCmd.AddCommand(playCmd)

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze <path-or-url>",
		Short: "Print the mean level of every bar at one position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.At < 0 {
				return fmt.Errorf("--at must not be negative, got %g", req.At)
			}
			req.Config.Command = CommandAnalyze
			req.Source = args[0]
			return nil
		},
	}
	analyzeCmd.Flags().Float64Var(&req.At, "at", 0, "Position in seconds")
	rootCmd.AddCommand(analyzeCmd)

	// Devices command
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio output devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Config.Command = CommandDevices
			return nil
		},
	}
	devicesCmd.Flags().BoolVarP(&req.Interactive, "interactive", "i", false, "Pick a device in a terminal UI")
	rootCmd.AddCommand(devicesCmd)

	// Configuration
	rootCmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "",
		"Path to the YAML configuration (default: ./config.yaml if present)")

	// Overrides
	rootCmd.PersistentFlags().StringVarP(&f.driver, "driver", "d", config.DefaultDriver,
		"Lights driver: log, websocket, udp or terminal")
	rootCmd.PersistentFlags().StringVarP(&f.backend, "backend", "b", config.DefaultBackend,
		"Audio backend: portaudio, oto or headless")
	rootCmd.PersistentFlags().StringVar(&f.broker, "broker", config.DefaultBroker,
		"MQTT broker URL (empty disables the bus)")
	rootCmd.PersistentFlags().BoolVarP(&f.primary, "primary", "p", false,
		"Mirror play commands to the companion node and mute local audio")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return req, nil
}

// loadConfig reads the configuration file and applies the flags the user
// actually set, so file values are not overwritten by flag defaults.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("driver") {
		cfg.Lights.Driver = f.driver
	}
	if changed("backend") {
		cfg.Audio.Backend = f.backend
	}
	if changed("broker") {
		cfg.Bus.Broker = f.broker
	}
	if changed("primary") {
		cfg.Bus.Primary = f.primary
	}
	if f.verbose {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
