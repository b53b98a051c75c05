package engine

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/detect"
)

// ConfigSource looks up stored per-check configuration for one scope.
// communityID "" addresses the global record. A nil result with nil error
// means no record exists at that scope.
type ConfigSource interface {
	GetCheckConfig(ctx context.Context, check detect.CheckName, communityID string) (*detect.EffectiveConfig, error)
}

// ScopeResolver merges the global default with an optional per-community
// override. Resolution never blends fields across levels: the override is
// returned verbatim, or the global record is, never a mix.
type ScopeResolver struct {
	Source ConfigSource
}

func NewScopeResolver(source ConfigSource) *ScopeResolver {
	return &ScopeResolver{Source: source}
}

// Resolve returns the effective config for a check in a community. An
// override with UseGlobal set reads through to the global record; its other
// fields are ignored entirely. With neither record present the check is
// disabled (fail closed).
func (r *ScopeResolver) Resolve(ctx context.Context, check detect.CheckName, communityID string) (detect.EffectiveConfig, error) {
	if communityID != "" {
		override, err := r.Source.GetCheckConfig(ctx, check, communityID)
		if err != nil {
			return detect.EffectiveConfig{}, fmt.Errorf("resolving %s override for community %s: %w", check, communityID, err)
		}
		if override != nil && !override.UseGlobal {
			cfg := *override
			cfg.UseGlobal = false
			return cfg, nil
		}
	}
	global, err := r.Source.GetCheckConfig(ctx, check, "")
	if err != nil {
		return detect.EffectiveConfig{}, fmt.Errorf("resolving global %s config: %w", check, err)
	}
	if global == nil {
		// no config at either scope: disabled
		return detect.EffectiveConfig{}, nil
	}
	cfg := *global
	cfg.UseGlobal = false
	return cfg, nil
}
