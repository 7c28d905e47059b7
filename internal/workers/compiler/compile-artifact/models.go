package compileartifact

import (
	"fmt"
	"strings"
)

// Input is the job payload. Exactly one of RawResponse and Prompt is set:
// a raw response is compiled once, a prompt is sent to the model under the
// retry policy.
type Input struct {
	Phase       string `json:"phase"`
	ArtifactID  string `json:"artifactId,omitempty"`
	RawResponse string `json:"rawResponse,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
}

func (in *Input) validate() error {
	if strings.TrimSpace(in.Phase) == "" {
		return fmt.Errorf("phase is required")
	}
	hasRaw := in.RawResponse != ""
	hasPrompt := strings.TrimSpace(in.Prompt) != ""
	if hasRaw == hasPrompt {
		return fmt.Errorf("exactly one of rawResponse and prompt is required")
	}
	return nil
}

type Output struct {
	ArtifactID   string      `json:"artifactId"`
	ArtifactKind string      `json:"artifactKind"`
	Phase        string      `json:"phase"`
	Artifact     interface{} `json:"artifact"`
	Attempts     int         `json:"attempts"`
}

// Variables returns the process variables set on job completion.
func (o *Output) Variables() map[string]interface{} {
	return map[string]interface{}{
		"artifactId":       o.ArtifactID,
		"artifactKind":     o.ArtifactKind,
		"phase":            o.Phase,
		"artifact":         o.Artifact,
		"compileAttempts":  o.Attempts,
		"artifactCompiled": true,
	}
}
