package compiler

import (
	"path"

	"github.com/aretw0/flowforge/pkg/domain"
	"gopkg.in/yaml.v3"
)

// SourceDir is the directory, relative to the project workspace, that holds
// the generated sources.
const SourceDir = "plc"

// ManifestFile lists the libraries the generated code references.
const ManifestFile = "libraries.yaml"

// Manifest is the library reference manifest committed next to the sources.
type Manifest struct {
	Flow      string   `yaml:"flow"`
	Libraries []string `yaml:"libraries"`
}

// ArtifactPath returns the location of an artifact below SourceDir.
func ArtifactPath(a domain.GeneratedArtifact) string {
	switch a.Kind {
	case domain.ArtifactVariableList:
		return path.Join("GVLs", a.Name+".st")
	case domain.ArtifactDataType:
		return path.Join("DUTs", a.Name+".st")
	case domain.ArtifactMethod, domain.ArtifactProperty:
		return path.Join("POUs", a.Owner, a.Name+".st")
	}
	return path.Join("POUs", a.Name+".st")
}

// Files renders the result as a set of files keyed by slash-separated path
// relative to the workspace.
func (r *Result) Files(flowName string) (map[string][]byte, error) {
	files := make(map[string][]byte, len(r.Artifacts)+1)
	for _, a := range r.Artifacts {
		files[path.Join(SourceDir, ArtifactPath(a))] = []byte(a.Text())
	}
	libs := r.Libraries
	if libs == nil {
		libs = []string{}
	}
	manifest, err := yaml.Marshal(Manifest{Flow: flowName, Libraries: libs})
	if err != nil {
		return nil, err
	}
	files[path.Join(SourceDir, ManifestFile)] = manifest
	return files, nil
}
