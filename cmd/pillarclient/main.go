// ABOUTME: Entry point for the pillarclient command line tool
// ABOUTME: Runs collection operations, the gRPC message bus, simulated pillars and a demo

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/pillarclient/internal/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
       _ _ _            _ _            _
 _ __ (_) | | __ _ _ __| (_) ___ _ __ | |_
| '_ \| | | |/ _' | '__| | |/ _ \ '_ \| __|
| |_) | | | | (_| | |  | | |  __/ | | | |_
| .__/|_|_|_|\__,_|_|  |_|_|\___|_| |_|\__|
|_|
`

// getConfigPath returns the path to the config file.
// Priority: PILLARCLIENT_CONFIG env var > XDG_CONFIG_HOME/pillarclient/config.yaml > ~/.config/pillarclient/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PILLARCLIENT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "pillarclient", "config.yaml")
}

// loadConfig loads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) && os.Getenv("PILLARCLIENT_CONFIG") == "" {
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "bus":
		err = runBus(ctx)
	case "pillar":
		err = runPillar(ctx, args)
	case "put", "get", "delete", "replace", "checksums", "list", "status":
		err = runOperation(ctx, cmd, args)
	case "history":
		err = runHistory(ctx, args)
	case "demo":
		err = runDemo(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: pillarclient <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  bus                                  Run the gRPC message bus")
	fmt.Println("  pillar [--id ID]                     Run simulated pillars on the bus")
	fmt.Println("  put --file-id ID --address URL [--size N] [--checksum SUM]")
	fmt.Println("  get --file-id ID --address URL [--from PILLAR]")
	fmt.Println("  delete --file-id ID [--checksum SUM]")
	fmt.Println("  replace --file-id ID --checksum OLD --new-checksum NEW --address URL [--size N]")
	fmt.Println("  checksums [--file-id ID] [--algorithm ALG] [--salt SALT]")
	fmt.Println("  list [--file-id ID]                  List files on every pillar")
	fmt.Println("  status                               Ask every pillar for its status")
	fmt.Println("  history [--conversation ID] [--limit N]  Show recorded operations")
	fmt.Println("  demo                                 Run operations against in-process pillars")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  PILLARCLIENT_CONFIG      Config file (default: ~/.config/pillarclient/config.yaml)")
	fmt.Println()
}

// parseArgs splits --key value pairs from positional arguments.
func parseArgs(args []string) (map[string]string, []string, error) {
	flags := make(map[string]string)
	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if len(arg) > 2 && arg[:2] == "--" {
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("missing value for %s", arg)
			}
			flags[arg[2:]] = args[i+1]
			i++
			continue
		}
		positional = append(positional, arg)
	}
	return flags, positional, nil
}
