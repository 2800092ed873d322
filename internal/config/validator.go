package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/encoding/htmlindex"

	hoppererrors "github.com/standardbeagle/hopper/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults
// Returns an error if validation fails
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	v.setSmartDefaults(cfg)

	if err := v.validateSearchConfig(&cfg.Search); err != nil {
		return err
	}

	if err := v.validateWaitConfig(&cfg.Wait); err != nil {
		return err
	}

	if cfg.Watch.DebounceMs < 0 {
		return hoppererrors.NewConfigError("watch.debounce_ms", strconv.Itoa(cfg.Watch.DebounceMs),
			errors.New("cannot be negative"))
	}

	return nil
}

// validateSearchConfig validates the enumerator settings
func (v *Validator) validateSearchConfig(search *Search) error {
	known := make(map[string]bool, len(KnownStrategies))
	for _, name := range KnownStrategies {
		known[name] = true
	}
	for _, name := range search.PreferenceOrder {
		if !known[name] {
			return hoppererrors.NewConfigError("search.preference_order", name,
				fmt.Errorf("unknown strategy, expected one of %s", strings.Join(KnownStrategies, ", ")))
		}
	}

	if search.HasStrategy(StrategyCustom) && search.CustomCommand == "" {
		return hoppererrors.NewConfigError("search.custom_command", "",
			errors.New("required when \"custom\" is in preference_order"))
	}
	if strings.Count(search.CustomCommand, "%s") > 1 {
		return hoppererrors.NewConfigError("search.custom_command", search.CustomCommand,
			errors.New("at most one %s placeholder is allowed"))
	}

	if search.Encoding != "" {
		if _, err := htmlindex.Get(search.Encoding); err != nil {
			return hoppererrors.NewConfigError("search.encoding", search.Encoding, err)
		}
	}

	for _, p := range search.IgnoreDirs {
		if !doublestar.ValidatePattern(p) {
			return hoppererrors.NewConfigError("search.ignore_dirs", p, doublestar.ErrBadPattern)
		}
	}
	for _, p := range search.IgnoreFiles {
		if !doublestar.ValidatePattern(p) {
			return hoppererrors.NewConfigError("search.ignore_files", p, doublestar.ErrBadPattern)
		}
	}

	return nil
}

// validateWaitConfig validates the bounded wait settings
func (v *Validator) validateWaitConfig(wait *Wait) error {
	if wait.TimeoutMs <= 0 {
		return hoppererrors.NewConfigError("wait.timeout_ms", strconv.Itoa(wait.TimeoutMs),
			errors.New("must be positive"))
	}
	if wait.PollIntervalMs <= 0 {
		return hoppererrors.NewConfigError("wait.poll_interval_ms", strconv.Itoa(wait.PollIntervalMs),
			errors.New("must be positive"))
	}
	if wait.PollIntervalMs > wait.TimeoutMs {
		return hoppererrors.NewConfigError("wait.poll_interval_ms", strconv.Itoa(wait.PollIntervalMs),
			fmt.Errorf("must not exceed timeout_ms (%d)", wait.TimeoutMs))
	}
	return nil
}

// setSmartDefaults fills settings left empty by a partial config
func (v *Validator) setSmartDefaults(cfg *Config) {
	if len(cfg.Search.PreferenceOrder) == 0 {
		cfg.Search.PreferenceOrder = Default("").Search.PreferenceOrder
	}

	if cfg.Wait.TimeoutMs == 0 {
		cfg.Wait.TimeoutMs = DefaultWaitTimeoutMs
	}

	if cfg.Wait.PollIntervalMs == 0 {
		cfg.Wait.PollIntervalMs = DefaultWaitPollIntervalMs
	}

	if cfg.Watch.Enabled && cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = DefaultWatchDebounceMs
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
