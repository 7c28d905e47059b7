package pipeline

import (
	"artifact-compiler/internal/common/config"
	"artifact-compiler/internal/common/logger"
	"artifact-compiler/internal/compiler/extractor"
	"artifact-compiler/internal/compiler/retry"
)

// RetryConfig maps the compiler section onto the backoff policy.
func RetryConfig(cfg config.CompilerConfig) retry.Config {
	return retry.Config{
		MaxRetries:      cfg.MaxRetries,
		BaseDelay:       cfg.BaseDelay(),
		Multiplier:      cfg.Multiplier,
		MaxDelay:        cfg.MaxDelay(),
		RetryRateLimits: cfg.RetryRateLimits,
	}
}

// OptionsFromConfig returns the logger, extractor and retry options for cfg.
// Reporter and observability are wired by the caller.
func OptionsFromConfig(cfg config.CompilerConfig, log logger.Logger) []Option {
	return []Option{
		WithLogger(log),
		WithExtractorOptions(extractor.Options{
			AllowArray:           cfg.AllowArrayRoot,
			ExplanatoryThreshold: cfg.ExplanatoryThreshold,
		}),
		WithRetry(retry.New(RetryConfig(cfg), log)),
	}
}
