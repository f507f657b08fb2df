// Package config loads a declarative supervision-tree description from
// YAML/TOML/JSON, for callers who would rather describe a tree data-first
// than build it in Go.
//
// The loader only ever produces ChildSpec-shaped data: a ChildConfig names a
// behavior by string and carries its config as a map, but the actual
// process.Behavior constructor closure is supplied by the caller's
// behaviorreg.Registry at translation time — config cannot serialize code.
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/noex/internal/behaviorreg"
	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/supervisor"
)

// RestartIntensityConfig mirrors supervisor.RestartIntensity for declarative
// loading.
type RestartIntensityConfig struct {
	MaxRestarts int   `mapstructure:"max_restarts"`
	WithinMs    int64 `mapstructure:"within_ms"`
}

// ChildConfig describes one supervised child: which behavior constructor to
// look up in a behaviorreg.Registry, what config to hand it, and its restart
// policy.
type ChildConfig struct {
	ID                string         `mapstructure:"id"`
	Behavior          string         `mapstructure:"behavior"`
	Config            map[string]any `mapstructure:"config"`
	Restart           string         `mapstructure:"restart"`
	ShutdownTimeoutMs int64          `mapstructure:"shutdown_timeout_ms"`
}

// RegistryConfig describes one named Registry to create alongside the tree.
type RegistryConfig struct {
	Name string `mapstructure:"name"`
	Mode string `mapstructure:"mode"` // "unique" or "duplicate"
}

// SupervisorConfig is the top-level declarative supervision-tree
// description.
type SupervisorConfig struct {
	ID               string                 `mapstructure:"id"`
	Strategy         string                 `mapstructure:"strategy"` // one_for_one, one_for_all, rest_for_one
	RestartIntensity RestartIntensityConfig `mapstructure:"restart_intensity"`
	Children         []ChildConfig          `mapstructure:"children"`
	Registries       []RegistryConfig       `mapstructure:"registries"`
}

// Load reads a SupervisorConfig from path, inferring format from its
// extension (yaml, yml, toml, json — anything viper supports).
func Load(path string) (*SupervisorConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg SupervisorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return &cfg, nil
}

func parseStrategy(s string) (supervisor.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "one_for_one":
		return supervisor.OneForOne, nil
	case "one_for_all":
		return supervisor.OneForAll, nil
	case "rest_for_one":
		return supervisor.RestForOne, nil
	default:
		return 0, fmt.Errorf("config: unknown strategy %q", s)
	}
}

func parseRestart(s string) (supervisor.RestartKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permanent":
		return supervisor.Permanent, nil
	case "transient":
		return supervisor.Transient, nil
	case "temporary":
		return supervisor.Temporary, nil
	default:
		return 0, fmt.Errorf("config: unknown restart kind %q", s)
	}
}

// ToSpec translates a SupervisorConfig into a supervisor.Spec, resolving
// each child's named behavior against reg. The Start closure built here
// captures the child's config map by value, so every restart re-runs the
// same behaviorreg.Constructor against the same declarative config.
func (c *SupervisorConfig) ToSpec(reg *behaviorreg.Registry) (supervisor.Spec, error) {
	strategy, err := parseStrategy(c.Strategy)
	if err != nil {
		return supervisor.Spec{}, err
	}

	children := make([]supervisor.ChildSpec, 0, len(c.Children))
	for _, cc := range c.Children {
		cc := cc
		if strings.TrimSpace(cc.ID) == "" {
			return supervisor.Spec{}, fmt.Errorf("config: child requires id")
		}
		if strings.TrimSpace(cc.Behavior) == "" {
			return supervisor.Spec{}, fmt.Errorf("config: child %q requires behavior", cc.ID)
		}
		restart, err := parseRestart(cc.Restart)
		if err != nil {
			return supervisor.Spec{}, fmt.Errorf("config: child %q: %w", cc.ID, err)
		}

		children = append(children, supervisor.ChildSpec{
			ID: cc.ID,
			Start: func() (process.Behavior, any, []process.StartOption) {
				behavior, err := reg.Lookup(cc.Behavior, cc.Config)
				if err != nil {
					// Surface a lookup failure through the normal Init-failure
					// path (process.Start calling Init) rather than panicking
					// inside a supervisor's restart loop.
					return failingBehavior{err: err}, nil, nil
				}
				return behavior, cc.Config, nil
			},
			Restart:           restart,
			ShutdownTimeoutMs: cc.ShutdownTimeoutMs,
		})
	}

	return supervisor.Spec{
		ID:       c.ID,
		Strategy: strategy,
		Children: children,
		RestartIntensity: supervisor.RestartIntensity{
			MaxRestarts: c.RestartIntensity.MaxRestarts,
			WithinMs:    c.RestartIntensity.WithinMs,
		},
	}, nil
}

type failingBehavior struct{ err error }

func (f failingBehavior) Init(context.Context, any) (any, error) { return nil, f.err }
func (f failingBehavior) HandleCall(context.Context, any, any) (any, any, error) {
	return process.NoReply, nil, nil
}
func (f failingBehavior) HandleCast(context.Context, any, any) (any, error) { return nil, nil }
func (f failingBehavior) HandleInfo(context.Context, any, any) (any, error) { return nil, nil }
func (f failingBehavior) Terminate(context.Context, process.TerminateReason, any) error { return nil }
