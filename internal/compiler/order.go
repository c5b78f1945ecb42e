package compiler

import (
	"github.com/aretw0/flowforge/pkg/flow"
)

// Step is one numbered statement of a chain.
type Step struct {
	NodeID string
	Order  int
	// Block is the branching node whose TRUE or DO port leads here. It is
	// empty for statements at the top level of the chain.
	Block string
	// Port is the branch port of Block that leads here.
	Port string
}

// Chain is the execution order rooted at one entry node. Steps are sorted by
// order number.
type Chain struct {
	Entry flow.Node
	Steps []Step
}

// Numbers returns the node to order-number map of the chain. The entry node
// itself is never numbered.
func (c Chain) Numbers() map[string]int {
	m := make(map[string]int, len(c.Steps))
	for _, s := range c.Steps {
		m[s.NodeID] = s.Order
	}
	return m
}

// Contains reports whether the node is numbered in the chain or is its entry.
func (c Chain) Contains(id string) bool {
	if c.Entry.ID == id {
		return true
	}
	for _, s := range c.Steps {
		if s.NodeID == id {
			return true
		}
	}
	return false
}

// Order computes one chain per entry node, in document order.
//
// Each chain is walked breadth-first along execution connections, following
// ENO before the branch ports. A node is numbered the first time the walk
// reaches it. Every chain keeps its own visited set, so a node reachable from
// two entries is numbered in both. Nodes no entry reaches stay unnumbered.
func (c *Compiler) Order(doc *flow.Document) []Chain {
	var chains []Chain
	for _, n := range doc.Nodes {
		if c.catalog.IsEntry(n.Kind) {
			chains = append(chains, orderChain(doc, n))
		}
	}
	return chains
}

func orderChain(doc *flow.Document, entry flow.Node) Chain {
	type pending struct {
		id    string
		block string
		port  string
	}

	chain := Chain{Entry: entry}
	visited := map[string]bool{entry.ID: true}
	var queue []pending

	enqueue := func(from string, block string) {
		for _, conn := range execSuccessors(doc, from) {
			next := pending{id: conn.To.NodeID, block: block}
			if conn.From.PortName != flow.PortENO {
				next.block = from
				next.port = conn.From.PortName
			}
			if !visited[next.id] {
				queue = append(queue, next)
			}
		}
	}

	enqueue(entry.ID, "")
	order := 1
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		chain.Steps = append(chain.Steps, Step{NodeID: cur.id, Order: order, Block: cur.block, Port: cur.port})
		order++
		enqueue(cur.id, cur.block)
	}
	return chain
}
