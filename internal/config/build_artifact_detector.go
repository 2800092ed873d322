// Build artifact detection from language-specific configuration files.
// Reads package.json, tsconfig.json, Cargo.toml, pyproject.toml and pom.xml
// to find output directories that should never be indexed.
package config

import (
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// BuildArtifactDetector finds language-specific build output directories
type BuildArtifactDetector struct {
	projectRoot string
}

// NewBuildArtifactDetector creates a new build artifact detector
func NewBuildArtifactDetector(projectRoot string) *BuildArtifactDetector {
	return &BuildArtifactDetector{projectRoot: projectRoot}
}

// DetectOutputDirectories returns directory names to add to search.ignore_dirs.
// Only declared outputs are reported; conventional ones (target, build) are
// left to the user's ignore list.
func (bad *BuildArtifactDetector) DetectOutputDirectories() []string {
	var dirs []string

	dirs = append(dirs, bad.detectJavaScriptOutputs()...)
	dirs = append(dirs, bad.detectRustOutputs()...)
	dirs = append(dirs, bad.detectPythonOutputs()...)
	dirs = append(dirs, bad.detectMavenOutputs()...)

	return DeduplicatePatterns(dirs)
}

// detectJavaScriptOutputs finds JS/TS build outputs
func (bad *BuildArtifactDetector) detectJavaScriptOutputs() []string {
	var dirs []string

	if data, err := os.ReadFile(filepath.Join(bad.projectRoot, "package.json")); err == nil {
		var pkg struct {
			Scripts map[string]string `json:"scripts"`
			Build   struct {
				OutDir string `json:"outDir"`
			} `json:"build"`
		}
		if json.Unmarshal(data, &pkg) == nil {
			for _, script := range pkg.Scripts {
				parts := strings.Fields(script)
				for i, part := range parts {
					if (part == "--outDir" || part == "-outDir") && i+1 < len(parts) {
						dirs = appendDirName(dirs, strings.Trim(parts[i+1], "\"'"))
					}
				}
			}
			dirs = appendDirName(dirs, pkg.Build.OutDir)
		}
	}

	if data, err := os.ReadFile(filepath.Join(bad.projectRoot, "tsconfig.json")); err == nil {
		var tsconfig struct {
			CompilerOptions struct {
				OutDir string `json:"outDir"`
			} `json:"compilerOptions"`
		}
		if json.Unmarshal(data, &tsconfig) == nil {
			dirs = appendDirName(dirs, tsconfig.CompilerOptions.OutDir)
		}
	}

	return dirs
}

// detectRustOutputs reads target-dir from Cargo.toml and .cargo/config.toml
func (bad *BuildArtifactDetector) detectRustOutputs() []string {
	var dirs []string

	if data, err := os.ReadFile(filepath.Join(bad.projectRoot, "Cargo.toml")); err == nil {
		var cargo struct {
			Profile map[string]struct {
				TargetDir string `toml:"target-dir"`
			} `toml:"profile"`
		}
		if toml.Unmarshal(data, &cargo) == nil {
			for _, profile := range cargo.Profile {
				dirs = appendDirName(dirs, profile.TargetDir)
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(bad.projectRoot, ".cargo", "config.toml")); err == nil {
		var cargoConfig struct {
			Build struct {
				TargetDir string `toml:"target-dir"`
			} `toml:"build"`
		}
		if toml.Unmarshal(data, &cargoConfig) == nil {
			dirs = appendDirName(dirs, cargoConfig.Build.TargetDir)
		}
	}

	return dirs
}

// detectPythonOutputs finds Python build outputs in pyproject.toml
func (bad *BuildArtifactDetector) detectPythonOutputs() []string {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, "pyproject.toml"))
	if err != nil {
		return nil
	}

	var pyproject struct {
		Tool struct {
			Poetry struct {
				Build struct {
					TargetDir string `toml:"target-dir"`
				} `toml:"build"`
			} `toml:"poetry"`
			Hatch struct {
				Build struct {
					Directory string `toml:"directory"`
				} `toml:"build"`
			} `toml:"hatch"`
		} `toml:"tool"`
	}
	if toml.Unmarshal(data, &pyproject) != nil {
		return nil
	}

	var dirs []string
	dirs = appendDirName(dirs, pyproject.Tool.Poetry.Build.TargetDir)
	dirs = appendDirName(dirs, pyproject.Tool.Hatch.Build.Directory)
	return dirs
}

// detectMavenOutputs reads <build><directory> from pom.xml
func (bad *BuildArtifactDetector) detectMavenOutputs() []string {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, "pom.xml"))
	if err != nil {
		return nil
	}

	var pom struct {
		Build struct {
			Directory string `xml:"directory"`
		} `xml:"build"`
	}
	if xml.Unmarshal(data, &pom) != nil {
		return nil
	}
	// Maven property references are not resolved
	if strings.Contains(pom.Build.Directory, "${") {
		return nil
	}
	return appendDirName(nil, pom.Build.Directory)
}

// appendDirName appends the top-level directory of a project-relative output
// path. Ignore patterns match single directory names, so "out/js" contributes "out".
// Paths outside the project are skipped.
func appendDirName(dirs []string, declared string) []string {
	declared = strings.TrimSpace(declared)
	if declared == "" || filepath.IsAbs(declared) {
		return dirs
	}
	clean := filepath.ToSlash(filepath.Clean(declared))
	name, _, _ := strings.Cut(clean, "/")
	if name == "." || name == ".." || name == "" {
		return dirs
	}
	return append(dirs, name)
}

// DeduplicatePatterns removes duplicate patterns, keeping first occurrences in order
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, pattern := range patterns {
		if !seen[pattern] {
			seen[pattern] = true
			result = append(result, pattern)
		}
	}

	return result
}
