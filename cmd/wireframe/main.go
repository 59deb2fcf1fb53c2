package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dray-io/wireframe/internal/config"
	"github.com/dray-io/wireframe/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("wireframe version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "serve":
		runServe(os.Args[2:])
	case "pipe":
		runPipe(os.Args[2:])
	case "version":
		fmt.Printf("wireframe version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: wireframe <command> [options]

Commands:
  serve       Start a framed TCP server (kafka, length, line or compressed)
  pipe        Split stdin into chunks while printing a periodic message
  version     Print version information

Run 'wireframe <command> --help' for more information on a command.`)
}

// loadConfig loads the configuration from path, or from the default
// locations when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
}

// exitOnConfigError prints err and exits when loading or validation failed.
func exitOnConfigError(fs *flag.FlagSet, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: invalid configuration: %v\n", fs.Name(), err)
	os.Exit(1)
}
