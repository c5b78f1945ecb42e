package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/flowforge/pkg/flow"
)

// ErrNoTranslator is returned when a node kind has no registered translator.
var ErrNoTranslator = errors.New("no translator registered")

// GlobalList is the name of the generated global variable list.
const GlobalList = "GVL_Flow"

const (
	defaultProgram = "MAIN"
	libStandard    = "Tc2_Standard"
)

// NodeTranslation is the Structured Text rendering of one node.
type NodeTranslation struct {
	// Declarations are local variable lines of the owning POU.
	Declarations []string
	// Body are the statements emitted at the node's position.
	Body []string
	// BlockOpen and BlockClose wrap the statements reached through the
	// node's branch port.
	BlockOpen  string
	BlockClose string
	Libraries  []string
	// DataTypes names the data type artifacts the declarations use.
	DataTypes []string
}

// Scope describes the POU a node is translated into.
type Scope struct {
	// POU is the program, method or property name.
	POU   string
	Entry flow.Node
}

// Input carries what a translator may know about a node's surroundings.
type Input struct {
	Scope Scope
	// Args maps connected data input ports to Structured Text expressions.
	Args map[string]string
}

// Arg returns the expression wired into port, or fallback when the port is
// not connected.
func (in Input) Arg(port, fallback string) string {
	if e, ok := in.Args[port]; ok {
		return e
	}
	return fallback
}

// Translator renders one node kind.
type Translator interface {
	Translate(n flow.Node, in Input) (NodeTranslation, error)
	// Output returns the expression by which other nodes read an output port.
	Output(n flow.Node, port string) string
}

// GlobalTranslator is implemented by translators whose nodes live in the
// global variable list. Their outputs are visible from every chain.
type GlobalTranslator interface {
	Translator
	Globals(n flow.Node) []string
}

// Registry maps node kinds to translators.
type Registry map[flow.Kind]Translator

// Lookup returns the translator for kind.
func (r Registry) Lookup(kind flow.Kind) (Translator, error) {
	t, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("%w for node kind %q", ErrNoTranslator, kind)
	}
	return t, nil
}

// DefaultRegistry returns translators for every kind of the default catalog.
func DefaultRegistry() Registry {
	entries := entryTranslator{}
	return Registry{
		flow.KindEntry:         entries,
		flow.KindMethodEntry:   entries,
		flow.KindPropertyEntry: entries,
		flow.KindInput:         ioTranslator{},
		flow.KindOutput:        ioTranslator{},
		flow.KindTimer:         timerTranslator{},
		flow.KindCounter:       counterTranslator{},
		flow.KindComparison:    NewComparisonTranslator(DefaultComparisonOperators()),
		flow.KindIf:            ifTranslator{},
		flow.KindFor:           forTranslator{},
		flow.KindMethodCall:    methodCallTranslator{},
		flow.KindVarRead:       variableTranslator{},
		flow.KindVarWrite:      variableTranslator{},
		flow.KindReturn:        returnTranslator{},
		flow.KindGroup:         groupTranslator{},
	}
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Ident turns a node id into a Structured Text identifier.
func Ident(id string) string {
	s := nonIdent.ReplaceAllString(id, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "n_" + s
	}
	return s
}

func timeLiteral(ms int) string { return fmt.Sprintf("T#%dMS", ms) }

func realLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func declare(name, typ string) string { return name + " : " + typ + ";" }

// entryTranslator covers program, method and property entries. Entries are
// never numbered; they only expose their parameters to the chain.
type entryTranslator struct{}

func (entryTranslator) Translate(flow.Node, Input) (NodeTranslation, error) {
	return NodeTranslation{}, nil
}

func (entryTranslator) Output(n flow.Node, port string) string {
	if p, ok := n.Params.(flow.PropertyEntryParams); ok && port == "VALUE" {
		return p.Name
	}
	return port
}

type ioTranslator struct{}

func ioVariable(n flow.Node) string {
	p := n.Params.(flow.IOParams)
	if p.Variable != "" {
		return p.Variable
	}
	return Ident(n.ID)
}

func (ioTranslator) Translate(n flow.Node, in Input) (NodeTranslation, error) {
	if n.Kind != flow.KindOutput {
		return NodeTranslation{}, nil
	}
	p := n.Params.(flow.IOParams)
	v := GlobalList + "." + ioVariable(n)
	return NodeTranslation{Body: []string{v + " := " + in.Arg("IN", p.DataType.Zero()) + ";"}}, nil
}

func (ioTranslator) Output(n flow.Node, _ string) string {
	return GlobalList + "." + ioVariable(n)
}

func (ioTranslator) Globals(n flow.Node) []string {
	p := n.Params.(flow.IOParams)
	addr := p.Address
	if addr == "" {
		addr = "%I*"
		if n.Kind == flow.KindOutput {
			addr = "%Q*"
		}
	}
	return []string{fmt.Sprintf("%s AT %s : %s;", ioVariable(n), addr, p.DataType.IEC())}
}

type timerTranslator struct{}

func (timerTranslator) Translate(n flow.Node, in Input) (NodeTranslation, error) {
	p := n.Params.(flow.TimerParams)
	id := Ident(n.ID)
	call := fmt.Sprintf("%s(IN := %s, PT := %s);", id, in.Arg("IN", "FALSE"), in.Arg("PT", timeLiteral(p.PresetMs)))
	return NodeTranslation{
		Declarations: []string{declare(id, p.TimerType)},
		Body:         []string{call},
		Libraries:    []string{libStandard},
	}, nil
}

func (timerTranslator) Output(n flow.Node, port string) string { return Ident(n.ID) + "." + port }

type counterTranslator struct{}

func (counterTranslator) Translate(n flow.Node, in Input) (NodeTranslation, error) {
	p := n.Params.(flow.CounterParams)
	id := Ident(n.ID)
	count, reset, pv := in.Arg("CU", "FALSE"), in.Arg("RESET", "FALSE"), in.Arg("PV", strconv.Itoa(p.Preset))

	var call string
	switch p.CounterType {
	case "CTD":
		call = fmt.Sprintf("%s(CD := %s, LOAD := %s, PV := %s);", id, count, reset, pv)
	case "CTUD":
		call = fmt.Sprintf("%s(CU := %s, CD := FALSE, RESET := %s, LOAD := FALSE, PV := %s);", id, count, reset, pv)
	default:
		call = fmt.Sprintf("%s(CU := %s, RESET := %s, PV := %s);", id, count, reset, pv)
	}
	return NodeTranslation{
		Declarations: []string{declare(id, p.CounterType)},
		Body:         []string{call},
		Libraries:    []string{libStandard},
	}, nil
}

func (counterTranslator) Output(n flow.Node, port string) string {
	// CTUD has separate up and down outputs; Q maps to the up side.
	if p, _ := n.Params.(flow.CounterParams); port == "Q" && p.CounterType == "CTUD" {
		return Ident(n.ID) + ".QU"
	}
	return Ident(n.ID) + "." + port
}

// DefaultComparisonOperators maps comparison node operators to Structured
// Text operators.
func DefaultComparisonOperators() map[string]string {
	return map[string]string{
		"GT": ">", "LT": "<", "EQ": "=", "GE": ">=", "LE": "<=", "NE": "<>",
	}
}

type comparisonTranslator struct {
	ops map[string]string
}

// NewComparisonTranslator renders comparison nodes with the given operator
// table.
func NewComparisonTranslator(ops map[string]string) Translator {
	return comparisonTranslator{ops: ops}
}

func (t comparisonTranslator) Translate(n flow.Node, in Input) (NodeTranslation, error) {
	p := n.Params.(flow.ComparisonParams)
	op, ok := t.ops[p.Operator]
	if !ok {
		return NodeTranslation{}, fmt.Errorf("unsupported operator %q", p.Operator)
	}
	id := Ident(n.ID)
	return NodeTranslation{
		Declarations: []string{declare(id, dutComparison)},
		Body: []string{
			fmt.Sprintf("%s.A := %s;", id, in.Arg("A", "0.0")),
			fmt.Sprintf("%s.B := %s;", id, in.Arg("B", realLiteral(p.Value))),
			fmt.Sprintf("%s.OUT := %s.A %s %s.B;", id, id, op, id),
		},
		DataTypes: []string{dutComparison},
	}, nil
}

func (comparisonTranslator) Output(n flow.Node, port string) string { return Ident(n.ID) + "." + port }

type ifTranslator struct{}

func (ifTranslator) Translate(n flow.Node, in Input) (NodeTranslation, error) {
	id := Ident(n.ID)
	return NodeTranslation{
		Declarations: []string{declare(id, dutIf)},
		Body:         []string{fmt.Sprintf("%s.COND := %s;", id, in.Arg("COND", "FALSE"))},
		BlockOpen:    fmt.Sprintf("IF %s.COND THEN", id),
		BlockClose:   "END_IF;",
		DataTypes:    []string{dutIf},
	}, nil
}

func (ifTranslator) Output(n flow.Node, port string) string { return Ident(n.ID) + "." + port }

type forTranslator struct{}

func (forTranslator) Translate(n flow.Node, in Input) (NodeTranslation, error) {
	p := n.Params.(flow.ForParams)
	id := Ident(n.ID)
	return NodeTranslation{
		Declarations: []string{declare(id, dutFor)},
		Body: []string{
			fmt.Sprintf("%s.FROM := %s;", id, in.Arg("FROM", strconv.Itoa(p.From))),
			fmt.Sprintf("%s.TO := %s;", id, in.Arg("TO", strconv.Itoa(p.To))),
		},
		BlockOpen:  fmt.Sprintf("FOR %s.i := %s.FROM TO %s.TO DO", id, id, id),
		BlockClose: "END_FOR;",
		DataTypes:  []string{dutFor},
	}, nil
}

func (forTranslator) Output(n flow.Node, port string) string { return Ident(n.ID) + "." + port }

type methodCallTranslator struct{}

func (methodCallTranslator) Translate(n flow.Node, in Input) (NodeTranslation, error) {
	p := n.Params.(flow.MethodCallParams)
	id := Ident(n.ID)
	return NodeTranslation{
		Declarations: []string{declare(id, dutMethodCall)},
		Body: []string{
			fmt.Sprintf("%s.Cycles := %s;", id, in.Arg("Cycles", strconv.Itoa(p.Cycles))),
			fmt.Sprintf("%s.Temp := %s;", id, in.Arg("Temp", strconv.Itoa(p.Temp))),
			fmt.Sprintf("%s.RET := %s(Cycles := %s.Cycles, Temp := %s.Temp);", id, p.Method, id, id),
		},
		DataTypes: []string{dutMethodCall},
	}, nil
}

func (methodCallTranslator) Output(n flow.Node, port string) string { return Ident(n.ID) + "." + port }

// variableTranslator maps varRead and varWrite onto plain globals.
type variableTranslator struct{}

func (variableTranslator) Translate(n flow.Node, in Input) (NodeTranslation, error) {
	if n.Kind != flow.KindVarWrite {
		return NodeTranslation{}, nil
	}
	p := n.Params.(flow.VariableParams)
	return NodeTranslation{
		Body: []string{fmt.Sprintf("%s.%s := %s;", GlobalList, p.Variable, in.Arg("VALUE", p.DataType.Zero()))},
	}, nil
}

func (variableTranslator) Output(n flow.Node, _ string) string {
	return GlobalList + "." + n.Params.(flow.VariableParams).Variable
}

func (variableTranslator) Globals(n flow.Node) []string {
	p := n.Params.(flow.VariableParams)
	return []string{declare(p.Variable, p.DataType.IEC())}
}

type returnTranslator struct{}

func (returnTranslator) Translate(n flow.Node, in Input) (NodeTranslation, error) {
	p := n.Params.(flow.ReturnParams)
	var body []string
	switch e := in.Scope.Entry.Params.(type) {
	case flow.MethodEntryParams:
		body = append(body, fmt.Sprintf("%s := %s;", e.Name, in.Arg("RETURN", p.ReturnType.Zero())))
	case flow.PropertyEntryParams:
		if e.Accessor == "GET" {
			body = append(body, fmt.Sprintf("%s := %s;", e.Name, in.Arg("RETURN", p.ReturnType.Zero())))
		}
	}
	return NodeTranslation{Body: append(body, "RETURN;")}, nil
}

func (returnTranslator) Output(flow.Node, string) string { return "" }

type groupTranslator struct{}

func (groupTranslator) Translate(flow.Node, Input) (NodeTranslation, error) {
	return NodeTranslation{}, nil
}

func (groupTranslator) Output(flow.Node, string) string { return "" }
