package flow

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/flowforge/pkg/domain"
)

type rawNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Position   Position       `json:"position"`
	Parameters map[string]any `json:"parameters"`
}

type rawDocument struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Nodes       []rawNode         `json:"nodes"`
	Connections []Connection      `json:"connections"`
	Metadata    map[string]string `json:"metadata"`
}

// Parse decodes a flow document as saved by the editor.
//
// Malformed JSON is returned as a plain error. Parameter problems are
// collected per node and returned together as a *domain.ValidationError.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode flow document: %w", err)
	}

	doc := &Document{
		Name:        raw.Name,
		Version:     raw.Version,
		Nodes:       make([]Node, 0, len(raw.Nodes)),
		Connections: raw.Connections,
		Metadata:    raw.Metadata,
	}

	var errs []error
	for _, rn := range raw.Nodes {
		kind := Kind(rn.Type)
		params, err := DecodeParams(kind, rn.Parameters)
		if err != nil {
			errs = append(errs, &domain.GraphFault{
				Nodes:  []string{rn.ID},
				Reason: fmt.Sprintf("invalid %s parameters: %v", rn.Type, err),
			})
			continue
		}
		doc.Nodes = append(doc.Nodes, Node{
			ID:       rn.ID,
			Kind:     kind,
			Position: rn.Position,
			Params:   params,
		})
	}
	if len(errs) > 0 {
		return nil, &domain.ValidationError{Errors: errs}
	}
	return doc, nil
}
