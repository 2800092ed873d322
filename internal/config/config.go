package config

import (
	"os"
	"time"
)

// ConfigFileName is looked up in the project directory and in the home directory.
const ConfigFileName = ".hopper.kdl"

// Strategy names accepted in search.preference_order.
const (
	StrategyRg     = "rg"
	StrategyHg     = "hg"
	StrategyGit    = "git"
	StrategyPt     = "pt"
	StrategyFind   = "find"
	StrategyAg     = "ag"
	StrategyNative = "native"
	StrategyCustom = "custom"
)

// KnownStrategies lists every strategy name the enumerator understands.
var KnownStrategies = []string{
	StrategyRg, StrategyHg, StrategyGit, StrategyPt,
	StrategyFind, StrategyAg, StrategyNative, StrategyCustom,
}

const (
	DefaultWaitTimeoutMs      = 5000
	DefaultWaitPollIntervalMs = 50
	DefaultWatchDebounceMs    = 300
)

type Config struct {
	Version      int
	Project      Project
	Search       Search
	Wait         Wait
	Watch        Watch
	Server       Server
	DebugLogging bool
}

type Project struct {
	Root string
}

type Search struct {
	PreferenceOrder   []string // Strategies tried in order until one produces a listing
	FollowLinks       bool
	ShowHidden        bool
	CustomCommand     string // Shell command; %s is replaced with the quoted root
	RecurseSubmodules bool   // git strategy only
	RespectGitignore  bool   // native strategy only; external tools apply their own ignore files
	Encoding          string // Encoding of external tool output, empty means UTF-8
	IgnoreDirs        []string
	IgnoreFiles       []string
}

// Wait bounds how long queries block on a project that is still updating.
type Wait struct {
	TimeoutMs      int
	PollIntervalMs int
}

// Timeout returns the wait threshold.
func (w Wait) Timeout() time.Duration {
	return time.Duration(w.TimeoutMs) * time.Millisecond
}

// PollInterval returns the delay between two checks of the updating flag.
func (w Wait) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMs) * time.Millisecond
}

type Watch struct {
	Enabled    bool // Rescan a project when files under it are created, removed or renamed
	DebounceMs int
}

// Debounce returns the quiet period before a watched change triggers a refresh.
func (w Watch) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

type Server struct {
	Socket   string // Explicit socket path; empty derives one from user and instance
	Instance string // Distinguishes several daemons run by the same user
}

// Default returns the configuration used when no .hopper.kdl exists.
func Default(root string) *Config {
	return &Config{
		Version: 1,
		Project: Project{Root: root},
		Search: Search{
			PreferenceOrder: []string{
				StrategyRg, StrategyGit, StrategyHg, StrategyAg,
				StrategyPt, StrategyFind, StrategyNative,
			},
			RespectGitignore: true,
			IgnoreDirs:       defaultIgnoreDirs(),
			IgnoreFiles:      defaultIgnoreFiles(),
		},
		Wait: Wait{
			TimeoutMs:      DefaultWaitTimeoutMs,
			PollIntervalMs: DefaultWaitPollIntervalMs,
		},
		Watch: Watch{
			Enabled:    false,
			DebounceMs: DefaultWatchDebounceMs,
		},
	}
}

func defaultIgnoreDirs() []string {
	return []string{
		".git",
		".hg",
		".svn",
		"node_modules",
		"__pycache__",
		".mypy_cache",
		".pytest_cache",
		".idea",
		".vscode",
	}
}

func defaultIgnoreFiles() []string {
	return []string{
		"*.pyc",
		"*.pyo",
		"*.o",
		"*.so",
		"*.swp",
		"*.swo",
		"*~",
		".DS_Store",
		"Thumbs.db",
	}
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot loads ~/.hopper.kdl as a base and rootDir/.hopper.kdl on top.
// path, when set, names an explicit config file that replaces the project file.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	// Step 1: Load global base config from ~/.hopper.kdl (if exists)
	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	// Step 2: Load project-specific config
	var projectConfig *Config
	var err error
	if path != "" {
		projectConfig, err = LoadKDLFile(path, searchDir)
	} else {
		projectConfig, err = LoadKDL(searchDir)
	}
	if err != nil {
		return nil, err
	}

	// Step 3: Merge configs (project overrides base, but ignore lists are combined)
	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		cfg = baseConfig
		cfg.Project.Root = absOrSelf(searchDir)
	default:
		cfg = Default(absOrSelf(searchDir))
	}

	cfg.EnrichIgnoresWithBuildArtifacts()
	return cfg, nil
}

// mergeConfigs merges a base config with a project config.
// Project settings win; base ignore patterns are preserved.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	merged.Search.IgnoreDirs = DeduplicatePatterns(append(append([]string{}, base.Search.IgnoreDirs...), project.Search.IgnoreDirs...))
	merged.Search.IgnoreFiles = DeduplicatePatterns(append(append([]string{}, base.Search.IgnoreFiles...), project.Search.IgnoreFiles...))

	if project.Search.CustomCommand == "" {
		merged.Search.CustomCommand = base.Search.CustomCommand
	}
	if project.Server.Instance == "" {
		merged.Server.Instance = base.Server.Instance
	}
	if project.Server.Socket == "" {
		merged.Server.Socket = base.Server.Socket
	}
	merged.DebugLogging = base.DebugLogging || project.DebugLogging

	return &merged
}

// EnrichIgnoresWithBuildArtifacts adds build output directories declared by
// language tooling under the project root to the ignored directory names.
func (c *Config) EnrichIgnoresWithBuildArtifacts() {
	if c.Project.Root == "" {
		return
	}

	detected := NewBuildArtifactDetector(c.Project.Root).DetectOutputDirectories()
	if len(detected) > 0 {
		c.Search.IgnoreDirs = DeduplicatePatterns(append(c.Search.IgnoreDirs, detected...))
	}
}

// HasStrategy reports whether name appears in the preference order.
func (s Search) HasStrategy(name string) bool {
	for _, n := range s.PreferenceOrder {
		if n == name {
			return true
		}
	}
	return false
}
