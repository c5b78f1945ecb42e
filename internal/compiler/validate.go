package compiler

import (
	"fmt"
	"strings"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/flow"
)

// Validate checks the structure of doc and returns every fault found as a
// *domain.ValidationError.
//
// Checks run in phases and stop after the first phase that reports faults:
// node identity and known kinds, then execution cycles, then port wiring.
// Cycles are looked for before ports so that a loop closing onto a port that
// does not exist is still reported as the loop it is. Joins are checked last,
// once every chain can be ordered.
func (c *Compiler) Validate(doc *flow.Document) error {
	phases := []func(*flow.Document, *flow.Index) []error{
		c.checkNodes,
		c.checkCycles,
		c.checkPorts,
		c.checkEntries,
		c.checkJoins,
	}
	idx := flow.NewIndex(doc)
	for _, phase := range phases {
		if errs := phase(doc, idx); len(errs) > 0 {
			return &domain.ValidationError{Errors: errs}
		}
	}
	return nil
}

func (c *Compiler) checkNodes(doc *flow.Document, idx *flow.Index) []error {
	var errs []error
	seen := make(map[string]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if n.ID == "" {
			errs = append(errs, &domain.GraphFault{Nodes: []string{""}, Reason: "node without id"})
			continue
		}
		if seen[n.ID] {
			errs = append(errs, &domain.GraphFault{Nodes: []string{n.ID}, Reason: "duplicate node id"})
		}
		seen[n.ID] = true
		if !c.catalog.Known(n.Kind) {
			errs = append(errs, &domain.UnknownNodeKind{NodeID: n.ID, Kind: string(n.Kind)})
		}
	}
	for _, conn := range doc.Connections {
		_, fromOK := idx.Node(conn.From.NodeID)
		_, toOK := idx.Node(conn.To.NodeID)
		if fromOK && toOK {
			continue
		}
		missing := conn.From.NodeID
		if fromOK {
			missing = conn.To.NodeID
		}
		errs = append(errs, &domain.DanglingConnection{
			FromNode: conn.From.NodeID,
			FromPort: conn.From.PortName,
			ToNode:   conn.To.NodeID,
			ToPort:   conn.To.PortName,
			Reason:   fmt.Sprintf("node %q does not exist", missing),
		})
	}
	return errs
}

// isExecConnection classifies a connection by port names only, so it works
// before ports have been checked against the catalog.
func isExecConnection(conn flow.Connection) bool {
	if conn.To.PortName == flow.PortEN {
		return true
	}
	switch conn.From.PortName {
	case flow.PortENO, flow.PortTrue, flow.PortDo:
		return true
	}
	return false
}

// execSuccessors returns the execution connections leaving a node: the
// continuation first, then branch ports, then anything else wired into an EN
// input, each group in document order.
func execSuccessors(doc *flow.Document, id string) []flow.Connection {
	rank := func(port string) int {
		switch port {
		case flow.PortENO:
			return 0
		case flow.PortTrue:
			return 1
		case flow.PortDo:
			return 2
		}
		return 3
	}
	var groups [4][]flow.Connection
	for _, conn := range doc.Connections {
		if conn.From.NodeID == id && isExecConnection(conn) {
			r := rank(conn.From.PortName)
			groups[r] = append(groups[r], conn)
		}
	}
	var out []flow.Connection
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// checkCycles walks execution connections depth-first from every entry and
// reports each connection that closes a loop.
func (c *Compiler) checkCycles(doc *flow.Document, _ *flow.Index) []error {
	const (
		white = iota
		grey
		black
	)
	var errs []error
	reported := make(map[flow.Connection]bool)

	for _, entry := range doc.Nodes {
		if !c.catalog.IsEntry(entry.Kind) {
			continue
		}
		color := make(map[string]int)
		var visit func(id string)
		visit = func(id string) {
			color[id] = grey
			for _, conn := range execSuccessors(doc, id) {
				next := conn.To.NodeID
				switch color[next] {
				case white:
					visit(next)
				case grey:
					if !reported[conn] {
						reported[conn] = true
						errs = append(errs, &domain.CycleDetected{Entry: next, Closing: id})
					}
				}
			}
			color[id] = black
		}
		visit(entry.ID)
	}
	return errs
}

func (c *Compiler) checkPorts(doc *flow.Document, idx *flow.Index) []error {
	var errs []error
	driven := make(map[flow.Endpoint]int)
	for _, conn := range doc.Connections {
		from, _ := idx.Node(conn.From.NodeID)
		to, _ := idx.Node(conn.To.NodeID)
		dangling := func(reason string) {
			errs = append(errs, &domain.DanglingConnection{
				FromNode: conn.From.NodeID,
				FromPort: conn.From.PortName,
				ToNode:   conn.To.NodeID,
				ToPort:   conn.To.PortName,
				Reason:   reason,
			})
		}

		src, ok := c.catalog.Port(from, conn.From.PortName)
		if !ok || src.Dir != flow.Out {
			dangling(fmt.Sprintf("%s has no output port %q", from.Kind, conn.From.PortName))
			continue
		}
		dst, ok := c.catalog.Port(to, conn.To.PortName)
		if !ok || dst.Dir != flow.In {
			dangling(fmt.Sprintf("%s has no input port %q", to.Kind, conn.To.PortName))
			continue
		}
		if src.IsExec() != dst.IsExec() || !flow.Compatible(src.Type, dst.Type) {
			errs = append(errs, &domain.PortTypeMismatch{
				FromNode: conn.From.NodeID,
				FromPort: conn.From.PortName,
				FromType: string(src.Type),
				ToNode:   conn.To.NodeID,
				ToPort:   conn.To.PortName,
				ToType:   string(dst.Type),
			})
			continue
		}
		// Execution inputs may be reached from several places; a data input
		// has exactly one driver.
		if !dst.IsExec() {
			if driven[conn.To] == 1 {
				errs = append(errs, &domain.GraphFault{
					Nodes:  []string{conn.To.NodeID},
					Reason: fmt.Sprintf("input %s is driven by more than one connection", conn.To.PortName),
				})
			}
			driven[conn.To]++
		}
	}
	return errs
}

// checkEntries rejects two entries that would generate the same POU.
func (c *Compiler) checkEntries(doc *flow.Document, _ *flow.Index) []error {
	var errs []error
	owners := make(map[string]string)
	for _, n := range doc.Nodes {
		if !c.catalog.IsEntry(n.Kind) {
			continue
		}
		key := strings.ToUpper(entryKey(n))
		if prev, ok := owners[key]; ok {
			errs = append(errs, &domain.GraphFault{
				Nodes:  []string{prev, n.ID},
				Reason: fmt.Sprintf("%s %q is defined twice", n.Kind, entryKey(n)),
			})
			continue
		}
		owners[key] = n.ID
	}
	return errs
}

func entryKey(n flow.Node) string {
	switch p := n.Params.(type) {
	case flow.EntryParams:
		return p.Name
	case flow.MethodEntryParams:
		return ownerOf(p.Owner) + "." + p.Name
	case flow.PropertyEntryParams:
		return ownerOf(p.Owner) + "." + p.Name + "." + p.Accessor
	}
	return n.ID
}

func ownerOf(owner string) string {
	if owner == "" {
		return defaultProgram
	}
	return owner
}

// checkJoins rejects a node whose execution inputs come from different
// blocks of one chain, such as the TRUE port of an IF and the continuation
// after it. Such a node has no single place in the generated code.
func (c *Compiler) checkJoins(doc *flow.Document, _ *flow.Index) []error {
	var errs []error
	reported := make(map[string]bool)
	for _, entry := range doc.Nodes {
		if !c.catalog.IsEntry(entry.Kind) {
			continue
		}
		chain := orderChain(doc, entry)
		blockOf := map[string]string{entry.ID: ""}
		for _, s := range chain.Steps {
			blockOf[s.NodeID] = s.Block
		}

		for _, s := range chain.Steps {
			if reported[s.NodeID] {
				continue
			}
			var (
				preds  []string
				blocks = make(map[string]bool)
			)
			for _, conn := range doc.Connections {
				if conn.To.NodeID != s.NodeID || !isExecConnection(conn) {
					continue
				}
				parent, ok := blockOf[conn.From.NodeID]
				if !ok {
					continue
				}
				if conn.From.PortName != flow.PortENO {
					parent = conn.From.NodeID
				}
				preds = append(preds, conn.From.NodeID)
				blocks[parent] = true
			}
			if len(blocks) > 1 {
				reported[s.NodeID] = true
				errs = append(errs, &domain.GraphFault{
					Nodes:  append([]string{s.NodeID}, preds...),
					Reason: fmt.Sprintf("%s joins execution paths from different blocks", s.NodeID),
				})
			}
		}
	}
	return errs
}
