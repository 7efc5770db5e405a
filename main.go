// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"visualizer/cmd"
	"visualizer/internal/audio"
	"visualizer/internal/config"
	"visualizer/internal/log"
	"visualizer/pkg/build"
)

// main is the entry point for the visualizer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Configure logging
//   - Initialize PortAudio when a command needs it
//
// 2. Concurrent Phase (Hot Path):
//   - Serve bus commands, or play a single track
//   - The sync loop polls the player and writes the lights
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop the active session and turn the lights off
//   - Clean up resources
func main() {
	// Runs after every other deferred cleanup.
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	// ==================== STARTUP PHASE (Cold Path) ====================

	// Initialize build information including version, commit hash, and build time
	if err := build.Initialize(); err != nil {
		log.Fatalf("%v", err)
	}

	// Parse command line arguments and build configuration
	req, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	// --help and --version are handled by the CLI itself
	if req.Config == nil {
		return
	}
	cfg := req.Config

	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		log.Warnf("unknown log level '%s', using %s", cfg.LogLevel, level)
	}
	if cfg.Debug {
		level = log.LevelDebug
	}
	log.SetLevel(level)

	// Initialize PortAudio subsystem
	if cfg.Audio.Backend == config.BackendPortAudio || cfg.Command == cmd.CommandDevices {
		if err := audio.Initialize(); err != nil {
			log.Fatalf("%v", err)
		}
		defer audio.Terminate()
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debugf("%s %s (%s, built %s)", build.GetBuildFlags().Name, build.GetBuildFlags().Version,
		build.GetBuildFlags().Commit, build.GetBuildFlags().Time)

	// Blocks until the command completes or a termination signal is received
	err = cmd.Execute(ctx, req)

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	// Sessions, drivers and players are closed by the command; PortAudio
	// and the signal handler are released by the deferred calls above.
	if err != nil {
		log.Errorf("%s: %v", cfg.Command, err)
		exitCode = 1
	}
}
