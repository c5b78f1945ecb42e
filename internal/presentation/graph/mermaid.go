package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/flowforge/pkg/flow"
)

// Overlay carries compile results to draw on top of the graph.
type Overlay struct {
	// Order maps node id to its execution number. Nodes that are neither
	// numbered nor entries are drawn as unreached.
	Order map[string]int
	// Entries lists the entry node ids.
	Entries []string
}

// GenerateMermaid renders a flow document as a Mermaid flowchart.
//
// Entries are circles, branching nodes are rhombi and nodes without an
// execution input are parallelograms. Execution connections are solid,
// data connections dotted.
func GenerateMermaid(doc *flow.Document, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, n := range doc.Nodes {
		opener, closer := shape(n)
		label := fmt.Sprintf("%s<br/>%s", n.ID, n.Kind)
		if overlay != nil {
			if num, ok := overlay.Order[n.ID]; ok {
				label = fmt.Sprintf("#%d %s", num, label)
			}
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(n.ID), opener, escape(label), closer)
	}

	for _, c := range doc.Connections {
		from, to := sanitizeMermaidID(c.From.NodeID), sanitizeMermaidID(c.To.NodeID)
		switch {
		case c.From.PortName == flow.PortENO:
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
		case c.From.PortName == flow.PortTrue || c.From.PortName == flow.PortDo:
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, c.From.PortName, to)
		default:
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", from, escape(c.From.PortName+" → "+c.To.PortName), to)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef entry fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef unreached fill:#eeeeee,stroke:#9e9e9e,stroke-dasharray:4 2,color:#616161;\n")
		entries := make(map[string]bool, len(overlay.Entries))
		for _, id := range overlay.Entries {
			entries[id] = true
			fmt.Fprintf(&sb, "    class %s entry;\n", sanitizeMermaidID(id))
		}
		for _, n := range doc.Nodes {
			if _, ok := overlay.Order[n.ID]; !ok && !entries[n.ID] && hasExec(n) {
				fmt.Fprintf(&sb, "    class %s unreached;\n", sanitizeMermaidID(n.ID))
			}
		}
	}
	return sb.String()
}

func shape(n flow.Node) (string, string) {
	switch n.Kind {
	case flow.KindEntry, flow.KindMethodEntry, flow.KindPropertyEntry:
		return "((", "))"
	case flow.KindIf, flow.KindFor:
		return "{", "}"
	case flow.KindMethodCall:
		return "[[", "]]"
	}
	if !hasExec(n) {
		return "[/", "/]"
	}
	return "[", "]"
}

var catalog = flow.DefaultCatalog()

// hasExec reports whether n takes part in execution order.
func hasExec(n flow.Node) bool {
	if catalog.IsEntry(n.Kind) {
		return true
	}
	_, ok := catalog.Port(n, flow.PortEN)
	return ok
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
