package automation

import (
	"fmt"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Placement is where units of one artifact kind go in the project tree.
type Placement struct {
	Path    string `yaml:"path" json:"path"`
	SubType int    `yaml:"sub_type" json:"subType"`
}

// Layout maps artifact kinds onto the project tree of the vendor tool.
type Layout map[domain.ArtifactKind]Placement

// DefaultLayout is the tree of a PLC project created from the standard
// template.
func DefaultLayout() Layout {
	return Layout{
		domain.ArtifactProgram:      {Path: "TIPC^PLC Project^POUs", SubType: 604},
		domain.ArtifactMethod:       {Path: "TIPC^PLC Project^POUs", SubType: 609},
		domain.ArtifactProperty:     {Path: "TIPC^PLC Project^POUs", SubType: 611},
		domain.ArtifactVariableList: {Path: "TIPC^PLC Project^GVLs", SubType: 615},
		domain.ArtifactDataType:     {Path: "TIPC^PLC Project^DUTs", SubType: 606},
	}
}

// Merge returns l with the entries of override replacing its own.
func (l Layout) Merge(override Layout) Layout {
	out := make(Layout, len(l)+len(override))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Unit places an artifact. Methods and property accessors go below the
// POU that owns them.
func (l Layout) Unit(a domain.GeneratedArtifact) (ports.UnitSpec, error) {
	p, ok := l[a.Kind]
	if !ok {
		return ports.UnitSpec{}, fmt.Errorf("no tree placement for %s artifact %s", a.Kind, a.Name)
	}
	parent := p.Path
	if a.Owner != "" {
		parent += "^" + a.Owner
	}
	return ports.UnitSpec{
		ParentPath:     parent,
		Name:           a.Name,
		SubType:        p.SubType,
		Declaration:    a.Declaration,
		Implementation: a.Implementation,
	}, nil
}

// kindRank orders units so that everything a unit refers to exists before it.
var kindRank = map[domain.ArtifactKind]int{
	domain.ArtifactDataType:     0,
	domain.ArtifactVariableList: 1,
	domain.ArtifactProgram:      2,
	domain.ArtifactMethod:       3,
	domain.ArtifactProperty:     3,
}
