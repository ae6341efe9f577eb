package scan

import (
	"github.com/your-org/mpr/internal/config"
	"github.com/your-org/mpr/internal/matching"
)

// OptionsFromConfig builds orchestrator options from service config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Buckets:                 cfg.MinIO.Buckets,
		ImagePolicy:             matching.PolicyFromConfig(cfg.Matching, cfg.Matching.ImageMode),
		SweepPolicy:             matching.PolicyFromConfig(cfg.Matching, cfg.Matching.SweepMode),
		SuppressAfterRejections: cfg.Review.SuppressAfterRejections,
		RejectionCooldown:       cfg.Review.RejectionCooldown,
	}
}
