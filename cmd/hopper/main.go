package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/hopper/internal/config"
	"github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/internal/version"
)

// loadConfigWithOverrides loads configuration for --root (or the working
// directory) and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root != "" {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		root = absRoot
	}

	cfg, err := config.LoadWithRoot(c.String("config"), root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if socket := c.String("socket"); socket != "" {
		cfg.Server.Socket = socket
	}
	if instance := c.String("instance"); instance != "" {
		cfg.Server.Instance = instance
	}
	if c.Bool("debug") {
		cfg.DebugLogging = true
	}
	debug.SetEnabled(cfg.DebugLogging)
	if cfg.DebugLogging && debug.Output() == nil {
		debug.SetOutput(os.Stderr)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// projectRoot returns the root a query runs against: --root, then the
// configured project root, then the working directory.
func projectRoot(c *cli.Context, cfg *config.Config) string {
	if root := c.String("root"); root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			return abs
		}
		return root
	}
	if cfg.Project.Root != "" {
		return cfg.Project.Root
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func newApp() *cli.App {
	jsonFlag := &cli.BoolFlag{
		Name:    "json",
		Aliases: []string{"j"},
		Usage:   "Output as JSON",
	}
	relativeFlag := &cli.BoolFlag{
		Name:  "relative",
		Usage: "Print paths relative to the project root",
	}

	return &cli.App{
		Name:                   "hopper",
		Usage:                  "Jump to project files by the initials of their names",
		Version:                version.FullInfo(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: <root>/" + config.ConfigFileName + ")",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (default: working directory)",
			},
			&cli.StringFlag{
				Name:  "socket",
				Usage: "Daemon socket path (overrides config)",
			},
			&cli.StringFlag{
				Name:  "instance",
				Usage: "Daemon instance name (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Run the index daemon in the foreground",
				Action: serverCommand,
			},
			{
				Name:  "shutdown",
				Usage: "Stop the running daemon",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Do not wait for in-flight requests"},
				},
				Action: shutdownCommand,
			},
			{
				Name:    "status",
				Aliases: []string{"st"},
				Usage:   "Show indexed projects and daemon state",
				Flags:   []cli.Flag{jsonFlag},
				Action:  statusCommand,
			},
			{
				Name:   "refresh",
				Usage:  "Rescan the project root",
				Action: refreshCommand,
			},
			{
				Name:      "first",
				Aliases:   []string{"f"},
				Usage:     "Print the best file for KEY",
				ArgsUsage: "KEY",
				Flags:     []cli.Flag{jsonFlag, relativeFlag},
				Action:    firstCommand,
			},
			{
				Name:      "next",
				Aliases:   []string{"n"},
				Usage:     "Print the alternate of PATH (the next file with the same key)",
				ArgsUsage: "PATH",
				Flags:     []cli.Flag{jsonFlag, relativeFlag},
				Action:    nextCommand,
			},
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "List one page of files for KEY without waiting for indexing",
				ArgsUsage: "KEY",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Matches to skip"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum matches", Value: 20},
					jsonFlag,
					relativeFlag,
				},
				Action: searchCommand,
			},
			{
				Name:      "files",
				Usage:     "List every keyed file under the given roots (default: the project root)",
				ArgsUsage: "[ROOT...]",
				Flags:     []cli.Flag{jsonFlag, relativeFlag},
				Action:    filesCommand,
			},
			{
				Name:      "byname",
				Usage:     "List every file named exactly NAME",
				ArgsUsage: "NAME",
				Flags:     []cli.Flag{jsonFlag, relativeFlag},
				Action:    byNameCommand,
			},
			{
				Name:      "opened",
				Usage:     "Report that PATH was opened so it ranks first",
				ArgsUsage: "PATH",
				Action:    openedCommand,
			},
			{
				Name:  "profile",
				Usage: "Time each configured listing strategy against the project root",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "rounds", Usage: "Runs per strategy", Value: 3},
					jsonFlag,
				},
				Action: profileCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Start MCP (Model Context Protocol) server with stdio transport",
				Action: mcpCommand,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "hopper: %v\n", err)
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}
