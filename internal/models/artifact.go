// internal/models/artifact.go
package models

import "strings"

// ArtifactKind names the artifact a compiler pass produces. It also selects
// the schema file <kind>.schema.json.
type ArtifactKind string

const (
	ArtifactProjectPlan        ArtifactKind = "project_plan"
	ArtifactRequirements       ArtifactKind = "requirements"
	ArtifactDomainModel        ArtifactKind = "domain_model"
	ArtifactArchitecture       ArtifactKind = "architecture"
	ArtifactInterfaceContracts ArtifactKind = "interface_contracts"
	ArtifactTestPlan           ArtifactKind = "test_plan"
)

// SchemaFile returns the schema file name for the kind.
func (k ArtifactKind) SchemaFile() string {
	return string(k) + ".schema.json"
}

// Valid reports whether k can name a schema file.
func (k ArtifactKind) Valid() bool {
	s := string(k)
	return s != "" && !strings.ContainsAny(s, `/\`) && !strings.HasPrefix(s, ".")
}

// Artifact is a compiled, schema-conforming payload. Payload is the decoded
// JSON value, an object unless array roots were enabled.
type Artifact struct {
	ID       string       `json:"id"`
	Kind     ArtifactKind `json:"kind"`
	Phase    string       `json:"phase,omitempty"`
	Payload  interface{}  `json:"payload"`
	Document string       `json:"-"`
	Attempts int          `json:"attempts"`
}
