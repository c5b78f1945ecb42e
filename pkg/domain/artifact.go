package domain

import "strings"

// ArtifactKind classifies a generated program unit.
type ArtifactKind string

const (
	ArtifactProgram      ArtifactKind = "program"
	ArtifactMethod       ArtifactKind = "method"
	ArtifactProperty     ArtifactKind = "property"
	ArtifactVariableList ArtifactKind = "gvl"
	ArtifactDataType     ArtifactKind = "dut"
)

// GeneratedArtifact is one named unit of Structured Text produced by the
// graph compiler and consumed by the automation bridge.
type GeneratedArtifact struct {
	Name string       `json:"name" yaml:"name"`
	Kind ArtifactKind `json:"kind" yaml:"kind"`

	// Owner names the POU a method or property accessor belongs to.
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty"`

	Declaration    string   `json:"declaration" yaml:"declaration"`
	Implementation string   `json:"implementation,omitempty" yaml:"implementation,omitempty"`
	Libraries      []string `json:"libraries,omitempty" yaml:"libraries,omitempty"`
}

// Text joins declaration and implementation into a single source text.
func (a GeneratedArtifact) Text() string {
	if a.Implementation == "" {
		return a.Declaration
	}
	return strings.TrimRight(a.Declaration, "\n") + "\n\n" + a.Implementation
}
