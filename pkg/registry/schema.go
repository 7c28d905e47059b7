// pkg/registry/schema.go
package registry

import "artifact-compiler/internal/models"

// PassRegistry lists the compiler passes a project runs through.
type PassRegistry struct {
	Version string `yaml:"version"`
	Passes  []Pass `yaml:"passes"`
}

// Pass is one model invocation that must yield one artifact.
type Pass struct {
	ID           string              `yaml:"id"`
	DisplayName  string              `yaml:"display_name"`
	Description  string              `yaml:"description"`
	ArtifactKind models.ArtifactKind `yaml:"artifact_kind"`
	DependsOn    []string            `yaml:"depends_on"`
	// MaxRetries overrides the compiler default when set.
	MaxRetries *int   `yaml:"max_retries"`
	System     string `yaml:"system_prompt"`
}
