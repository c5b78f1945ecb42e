package flow

import "fmt"

// PortType is the data type carried by a port.
type PortType string

const (
	TypeExec PortType = "exec"
	TypeBool PortType = "bool"
	TypeInt  PortType = "int"
	TypeTime PortType = "time"
	TypeReal PortType = "real"
)

// ParsePortType accepts both the lower-case names and the IEC names used by
// the editor (BOOL, INT, TIME, REAL, LREAL).
func ParsePortType(s string) (PortType, error) {
	switch s {
	case "bool", "BOOL":
		return TypeBool, nil
	case "int", "INT", "DINT":
		return TypeInt, nil
	case "time", "TIME":
		return TypeTime, nil
	case "real", "REAL", "LREAL":
		return TypeReal, nil
	case "exec", "EXEC":
		return TypeExec, nil
	}
	return "", fmt.Errorf("unknown port type %q", s)
}

// IEC returns the Structured Text type name for a data port type.
func (t PortType) IEC() string {
	switch t {
	case TypeBool:
		return "BOOL"
	case TypeInt:
		return "INT"
	case TypeTime:
		return "TIME"
	case TypeReal:
		return "LREAL"
	}
	return ""
}

// Zero returns the Structured Text literal used for an unconnected input.
func (t PortType) Zero() string {
	switch t {
	case TypeBool:
		return "FALSE"
	case TypeTime:
		return "T#0MS"
	case TypeReal:
		return "0.0"
	}
	return "0"
}

// Execution-control port names.
const (
	PortEN   = "EN"
	PortENO  = "ENO"
	PortTrue = "TRUE"
	PortDo   = "DO"
)

// BranchPorts are the execution outputs that open a nested block, in the
// order they are followed after ENO.
var BranchPorts = []string{PortTrue, PortDo}

// Direction tells whether a port receives or emits connections.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// PortSpec describes one port of a node kind.
type PortSpec struct {
	Name string
	Dir  Direction
	Type PortType
}

// IsExec reports whether the port sequences execution.
func (p PortSpec) IsExec() bool { return p.Type == TypeExec }

// dynamicType marks ports whose type comes from the node's data type parameter.
const dynamicType PortType = "$"

// KindSpec describes a node kind.
type KindSpec struct {
	Kind  Kind
	Entry bool
	Ports []PortSpec
}

// Catalog maps node kinds to their port layout. It is immutable after
// construction and handed to the components that need it.
type Catalog struct {
	kinds map[Kind]KindSpec
}

// NewCatalog builds a catalog from specs.
func NewCatalog(specs ...KindSpec) *Catalog {
	c := &Catalog{kinds: make(map[Kind]KindSpec, len(specs))}
	for _, s := range specs {
		c.kinds[s.Kind] = s
	}
	return c
}

// Spec returns the spec of a kind.
func (c *Catalog) Spec(k Kind) (KindSpec, bool) {
	s, ok := c.kinds[k]
	return s, ok
}

// Known reports whether a kind is defined.
func (c *Catalog) Known(k Kind) bool {
	_, ok := c.kinds[k]
	return ok
}

// IsEntry reports whether nodes of kind k root an execution chain.
func (c *Catalog) IsEntry(k Kind) bool {
	s, ok := c.kinds[k]
	return ok && s.Entry
}

// Ports returns the resolved ports of a node.
func (c *Catalog) Ports(n Node) ([]PortSpec, bool) {
	spec, ok := c.kinds[n.Kind]
	if !ok {
		return nil, false
	}
	dt := DataTypeOf(n.Params)
	ports := make([]PortSpec, len(spec.Ports))
	for i, p := range spec.Ports {
		if p.Type == dynamicType {
			p.Type = dt
		}
		ports[i] = p
	}
	return ports, true
}

// Port resolves a single named port of a node.
func (c *Catalog) Port(n Node, name string) (PortSpec, bool) {
	ports, ok := c.Ports(n)
	if !ok {
		return PortSpec{}, false
	}
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

func in(name string, t PortType) PortSpec  { return PortSpec{Name: name, Dir: In, Type: t} }
func out(name string, t PortType) PortSpec { return PortSpec{Name: name, Dir: Out, Type: t} }

// DefaultCatalog returns the node kinds offered by the editor palette.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		KindSpec{Kind: KindEntry, Entry: true, Ports: []PortSpec{out(PortENO, TypeExec)}},
		KindSpec{Kind: KindMethodEntry, Entry: true, Ports: []PortSpec{
			out(PortENO, TypeExec), out("Cycles", TypeInt), out("Temp", TypeInt),
		}},
		KindSpec{Kind: KindPropertyEntry, Entry: true, Ports: []PortSpec{
			out(PortENO, TypeExec), out("VALUE", dynamicType),
		}},
		KindSpec{Kind: KindInput, Ports: []PortSpec{out("OUT", dynamicType)}},
		KindSpec{Kind: KindOutput, Ports: []PortSpec{in("IN", dynamicType)}},
		KindSpec{Kind: KindTimer, Ports: []PortSpec{
			in(PortEN, TypeExec), out(PortENO, TypeExec),
			in("IN", TypeBool), in("PT", TypeTime), out("Q", TypeBool), out("ET", TypeTime),
		}},
		KindSpec{Kind: KindCounter, Ports: []PortSpec{
			in(PortEN, TypeExec), out(PortENO, TypeExec),
			in("CU", TypeBool), in("RESET", TypeBool), in("PV", TypeInt), out("Q", TypeBool), out("CV", TypeInt),
		}},
		KindSpec{Kind: KindComparison, Ports: []PortSpec{
			in(PortEN, TypeExec), out(PortENO, TypeExec),
			in("A", TypeReal), in("B", TypeReal), out("OUT", TypeBool),
		}},
		KindSpec{Kind: KindIf, Ports: []PortSpec{
			in(PortEN, TypeExec), out(PortENO, TypeExec), out(PortTrue, TypeExec), in("COND", TypeBool),
		}},
		KindSpec{Kind: KindFor, Ports: []PortSpec{
			in(PortEN, TypeExec), out(PortENO, TypeExec), out(PortDo, TypeExec),
			in("FROM", TypeInt), in("TO", TypeInt), out("i", TypeInt),
		}},
		KindSpec{Kind: KindMethodCall, Ports: []PortSpec{
			in(PortEN, TypeExec), out(PortENO, TypeExec),
			in("Cycles", TypeInt), in("Temp", TypeInt), out("RET", TypeBool),
		}},
		KindSpec{Kind: KindVarRead, Ports: []PortSpec{out("VALUE", dynamicType)}},
		KindSpec{Kind: KindVarWrite, Ports: []PortSpec{in("VALUE", dynamicType)}},
		KindSpec{Kind: KindReturn, Ports: []PortSpec{in(PortEN, TypeExec), in("RETURN", dynamicType)}},
		KindSpec{Kind: KindGroup},
	)
}

// Compatible reports whether a value of type from may feed an input of type to.
// Integers widen to reals; everything else must match exactly.
func Compatible(from, to PortType) bool {
	if from == to {
		return true
	}
	return from == TypeInt && to == TypeReal
}
