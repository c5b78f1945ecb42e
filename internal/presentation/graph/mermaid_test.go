package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/flowforge/internal/presentation/graph"
	"github.com/aretw0/flowforge/pkg/flow"
	"github.com/stretchr/testify/assert"
)

func conn(from, fromPort, to, toPort string) flow.Connection {
	return flow.Connection{
		From: flow.Endpoint{NodeID: from, PortName: fromPort},
		To:   flow.Endpoint{NodeID: to, PortName: toPort},
	}
}

func sample() *flow.Document {
	return &flow.Document{
		Nodes: []flow.Node{
			{ID: "entry", Kind: flow.KindEntry},
			{ID: "start-btn", Kind: flow.KindInput},
			{ID: "gate", Kind: flow.KindIf},
			{ID: "t1", Kind: flow.KindTimer},
			{ID: "orphan", Kind: flow.KindTimer},
		},
		Connections: []flow.Connection{
			conn("entry", flow.PortENO, "gate", flow.PortEN),
			conn("start-btn", "OUT", "gate", "COND"),
			conn("gate", flow.PortTrue, "t1", flow.PortEN),
		},
	}
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(sample(), nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	for _, want := range []string{
		`entry(("entry<br/>entry"))`,
		`gate{"gate<br/>if"}`,
		`start_btn[/"start-btn<br/>input"/]`,
		`t1["t1<br/>timer"]`,
		"entry --> gate",
		`gate -- "TRUE" --> t1`,
		`start_btn -. "OUT → COND" .-> gate`,
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(sample(), &graph.Overlay{
		Order:   map[string]int{"gate": 1, "t1": 2},
		Entries: []string{"entry"},
	})

	assert.Contains(t, out, `gate{"#1 gate<br/>if"}`)
	assert.Contains(t, out, `t1["#2 t1<br/>timer"]`)
	assert.Contains(t, out, "class entry entry;")
	assert.Contains(t, out, "class orphan unreached;")
	assert.NotContains(t, out, "class start_btn unreached;")
	assert.NotContains(t, out, "class t1 unreached;")
}
