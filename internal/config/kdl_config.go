package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from the .hopper.kdl file in projectRoot.
// It returns nil, nil when no file exists.
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, ConfigFileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadKDLFile(kdlPath, projectRoot)
}

// LoadKDLFile parses the config file at path. projectRoot becomes the project
// root unless the file names one; relative roots resolve against the file's directory.
func LoadKDLFile(path, projectRoot string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if cfg.Project.Root != "" {
		root := cfg.Project.Root
		if !filepath.IsAbs(root) {
			root = filepath.Join(filepath.Dir(path), root)
		}
		cfg.Project.Root = filepath.Clean(root)
	} else {
		cfg.Project.Root = absOrSelf(projectRoot)
	}

	return cfg, nil
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// parseKDL reads a .hopper.kdl document on top of the defaults.
//
//	search {
//	    preference_order "rg" "git" "native"
//	    follow_links false
//	    ignore_dirs ".git" "node_modules"
//	}
//	wait { timeout_ms 5000; poll_interval_ms 50 }
//	watch { enabled true; debounce_ms 300 }
//	server { instance "work" }
//	debug_logging true
func parseKDL(content string) (*Config, error) {
	cfg := Default("")

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
			}
		case "search":
			parseSearchSection(cfg, n)
		case "wait":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Wait.TimeoutMs = v
					}
				case "poll_interval_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Wait.PollIntervalMs = v
					}
				}
			}
		case "watch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Watch.Enabled = b
					}
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				}
			}
		case "server":
			for _, cn := range n.Children {
				assignSimpleString(cn, "socket", func(v string) { cfg.Server.Socket = v })
				assignSimpleString(cn, "instance", func(v string) { cfg.Server.Instance = v })
			}
		case "debug_logging":
			if b, ok := firstBoolArg(n); ok {
				cfg.DebugLogging = b
			}
		default:
			log.Printf("WARNING: unknown node '%s' in %s", nodeName(n), ConfigFileName)
		}
	}

	return cfg, nil
}

func parseSearchSection(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "preference_order":
			if order := collectStringArgs(cn); len(order) > 0 {
				cfg.Search.PreferenceOrder = order
			}
		case "follow_links":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Search.FollowLinks = b
			}
		case "show_hidden":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Search.ShowHidden = b
			}
		case "custom_command":
			assignSimpleString(cn, "custom_command", func(v string) { cfg.Search.CustomCommand = v })
		case "recurse_submodules":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Search.RecurseSubmodules = b
			}
		case "respect_gitignore":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Search.RespectGitignore = b
			}
		case "encoding":
			assignSimpleString(cn, "encoding", func(v string) { cfg.Search.Encoding = v })
		case "ignore_dirs":
			// A present block replaces the defaults
			cfg.Search.IgnoreDirs = collectStringArgs(cn)
		case "ignore_files":
			cfg.Search.IgnoreFiles = collectStringArgs(cn)
		}
	}
}

// Helper functions over the kdl-go document model
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}
func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		log.Printf("WARNING: invalid integer value for '%s' in %s, got %T", nodeName(n), ConfigFileName, n.Arguments[0].Value)
		return 0, false
	}
}
func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}
func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	// Inline form: ignore_dirs "a" "b"
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block form: ignore_dirs { "a"; "b" }, where each child node is named by the string
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}
func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
