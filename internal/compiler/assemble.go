package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/flow"
)

const (
	dutComparison = "ST_FfComparison"
	dutIf         = "ST_FfIf"
	dutFor        = "ST_FfFor"
	dutMethodCall = "ST_FfMethodCall"
)

// DefaultDataTypes returns the members of the structures generated for
// stateless nodes, so their outputs can be read after the statement ran.
func DefaultDataTypes() map[string][]string {
	return map[string][]string{
		dutComparison: {"A : LREAL;", "B : LREAL;", "OUT : BOOL;"},
		dutIf:         {"COND : BOOL;"},
		dutFor:        {"FROM : INT;", "TO : INT;", "i : INT;"},
		dutMethodCall: {"Cycles : INT;", "Temp : INT;", "RET : BOOL;"},
	}
}

// stringSet keeps insertion order and drops duplicates.
type stringSet struct {
	seen  map[string]bool
	items []string
}

func (s *stringSet) add(v ...string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for _, x := range v {
		if !s.seen[x] {
			s.seen[x] = true
			s.items = append(s.items, x)
		}
	}
}

func (s *stringSet) sorted() []string {
	out := append([]string(nil), s.items...)
	sort.Strings(out)
	return out
}

type assembly struct {
	c      *Compiler
	idx    *flow.Index
	nodes  map[string]flow.Node
	chains []Chain

	libraries stringSet
	dataTypes stringSet
}

func (c *Compiler) assemble(doc *flow.Document, chains []Chain) (*Result, error) {
	a := &assembly{
		c:      c,
		idx:    flow.NewIndex(doc),
		nodes:  make(map[string]flow.Node, len(doc.Nodes)),
		chains: chains,
	}

	var globals stringSet
	for _, n := range doc.Nodes {
		if n.Params == nil {
			p, err := flow.DecodeParams(n.Kind, nil)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", n.ID, err)
			}
			n.Params = p
		}
		a.nodes[n.ID] = n
		tr, err := c.translators.Lookup(n.Kind)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if g, ok := tr.(GlobalTranslator); ok {
			globals.add(g.Globals(n)...)
		}
	}

	sinks := a.placeSinks(doc)

	res := &Result{Chains: chains}
	for i, chain := range chains {
		art, err := a.chainArtifact(chain, sinks[i])
		if err != nil {
			return nil, err
		}
		res.Artifacts = append(res.Artifacts, art)
	}

	res.Artifacts = append(res.Artifacts, domain.GeneratedArtifact{
		Name:        GlobalList,
		Kind:        domain.ArtifactVariableList,
		Declaration: "{attribute 'qualified_only'}\nVAR_GLOBAL\n" + indentLines(globals.items, 1) + "END_VAR\n",
	})
	for _, name := range a.dataTypes.sorted() {
		members, ok := a.c.dataTypes[name]
		if !ok {
			return nil, fmt.Errorf("data type %s has no members", name)
		}
		res.Artifacts = append(res.Artifacts, domain.GeneratedArtifact{
			Name:        name,
			Kind:        domain.ArtifactDataType,
			Declaration: "TYPE " + name + " :\nSTRUCT\n" + indentLines(members, 1) + "END_STRUCT\nEND_TYPE\n",
		})
	}
	res.Libraries = a.libraries.sorted()
	return res, nil
}

// placeSinks assigns every data-mapping sink (a node without execution input
// that consumes data) to the chain computing its value: the chain of its
// first source, or the first program chain when the source is global.
func (a *assembly) placeSinks(doc *flow.Document) map[int][]flow.Node {
	sinks := make(map[int][]flow.Node)
	for _, n := range doc.Nodes {
		if a.inAnyChain(n.ID) || a.hasExecInput(n) {
			continue
		}
		inputs := a.idx.InputsOf(n.ID)
		if len(inputs) == 0 {
			continue
		}
		target := -1
		for i, ch := range a.chains {
			if ch.Contains(inputs[0].From.NodeID) {
				target = i
				break
			}
		}
		if target < 0 {
			target = a.programChain()
		}
		if target < 0 {
			a.c.logger.Warn("data sink has no chain to run in", "node", n.ID)
			continue
		}
		sinks[target] = append(sinks[target], a.nodes[n.ID])
	}
	return sinks
}

func (a *assembly) programChain() int {
	for i, ch := range a.chains {
		if ch.Entry.Kind == flow.KindEntry {
			return i
		}
	}
	if len(a.chains) > 0 {
		return 0
	}
	return -1
}

func (a *assembly) inAnyChain(id string) bool {
	for _, ch := range a.chains {
		if ch.Contains(id) {
			return true
		}
	}
	return false
}

func (a *assembly) hasExecInput(n flow.Node) bool {
	_, ok := a.c.catalog.Port(n, flow.PortEN)
	return ok
}

// args resolves the data inputs of n as seen from chain.
func (a *assembly) args(n flow.Node, chain Chain, pou string) (map[string]string, error) {
	args := make(map[string]string)
	for _, conn := range a.idx.InputsOf(n.ID) {
		if conn.To.PortName == flow.PortEN {
			continue
		}
		src := a.nodes[conn.From.NodeID]
		tr, err := a.c.translators.Lookup(src.Kind)
		if err != nil {
			return nil, err
		}
		if _, global := tr.(GlobalTranslator); !global && !chain.Contains(src.ID) {
			return nil, &domain.GraphFault{
				Nodes:  []string{n.ID, src.ID},
				Reason: fmt.Sprintf("%s reads %s.%s, which does not run in %s", n.ID, src.ID, conn.From.PortName, pou),
			}
		}
		args[conn.To.PortName] = tr.Output(src, conn.From.PortName)
	}
	return args, nil
}

func (a *assembly) translate(n flow.Node, chain Chain, scope Scope) (NodeTranslation, error) {
	tr, err := a.c.translators.Lookup(n.Kind)
	if err != nil {
		return NodeTranslation{}, err
	}
	args, err := a.args(n, chain, scope.POU)
	if err != nil {
		return NodeTranslation{}, err
	}
	t, err := tr.Translate(n, Input{Scope: scope, Args: args})
	if err != nil {
		return NodeTranslation{}, fmt.Errorf("node %s: %w", n.ID, err)
	}
	return t, nil
}

func (a *assembly) chainArtifact(chain Chain, sinks []flow.Node) (domain.GeneratedArtifact, error) {
	entry := a.nodes[chain.Entry.ID]
	art := chainHeader(entry)
	scope := Scope{POU: art.Name, Entry: entry}

	var decls, libs stringSet
	translations := make(map[string]NodeTranslation, len(chain.Steps))
	children := make(map[string][]Step)
	for _, step := range chain.Steps {
		t, err := a.translate(a.nodes[step.NodeID], chain, scope)
		if err != nil {
			return art, err
		}
		translations[step.NodeID] = t
		children[step.Block] = append(children[step.Block], step)
		decls.add(t.Declarations...)
		libs.add(t.Libraries...)
		a.dataTypes.add(t.DataTypes...)
	}

	var body strings.Builder
	var emit func(block string, depth int)
	emit = func(block string, depth int) {
		for _, step := range children[block] {
			t := translations[step.NodeID]
			writeLine(&body, depth, fmt.Sprintf("(* #%d %s *)", step.Order, step.NodeID))
			for _, line := range t.Body {
				writeLine(&body, depth, line)
			}
			if t.BlockOpen != "" {
				writeLine(&body, depth, t.BlockOpen)
				emit(step.NodeID, depth+1)
				writeLine(&body, depth, t.BlockClose)
			}
		}
	}
	emit("", 0)

	for _, n := range sinks {
		t, err := a.translate(n, chain, scope)
		if err != nil {
			return art, err
		}
		writeLine(&body, 0, fmt.Sprintf("(* %s *)", n.ID))
		for _, line := range t.Body {
			writeLine(&body, 0, line)
		}
		libs.add(t.Libraries...)
	}

	art.Declaration += "VAR\n" + indentLines(decls.items, 1) + "END_VAR\n"
	art.Implementation = body.String()
	art.Libraries = libs.sorted()
	a.libraries.add(libs.items...)
	return art, nil
}

// chainHeader names the artifact of a chain and writes the first lines of
// its declaration.
func chainHeader(entry flow.Node) domain.GeneratedArtifact {
	switch p := entry.Params.(type) {
	case flow.MethodEntryParams:
		return domain.GeneratedArtifact{
			Name:  p.Name,
			Kind:  domain.ArtifactMethod,
			Owner: ownerOf(p.Owner),
			Declaration: fmt.Sprintf("METHOD %s : %s\nVAR_INPUT\n", p.Name, p.ReturnType.IEC()) +
				indentLines([]string{declare("Cycles", "INT"), declare("Temp", "INT")}, 1) + "END_VAR\n",
		}
	case flow.PropertyEntryParams:
		accessor := "Get"
		if p.Accessor == "SET" {
			accessor = "Set"
		}
		return domain.GeneratedArtifact{
			Name:        p.Name + "." + accessor,
			Kind:        domain.ArtifactProperty,
			Owner:       ownerOf(p.Owner),
			Declaration: fmt.Sprintf("PROPERTY %s : %s\n", p.Name, p.DataType.IEC()),
		}
	case flow.EntryParams:
		return domain.GeneratedArtifact{
			Name:        p.Name,
			Kind:        domain.ArtifactProgram,
			Declaration: "PROGRAM " + p.Name + "\n",
		}
	}
	return domain.GeneratedArtifact{
		Name:        defaultProgram,
		Kind:        domain.ArtifactProgram,
		Declaration: "PROGRAM " + defaultProgram + "\n",
	}
}

func writeLine(sb *strings.Builder, depth int, line string) {
	sb.WriteString(strings.Repeat("\t", depth))
	sb.WriteString(line)
	sb.WriteByte('\n')
}

func indentLines(lines []string, depth int) string {
	var sb strings.Builder
	for _, l := range lines {
		writeLine(&sb, depth, l)
	}
	return sb.String()
}
