package flow

// Kind names a node type as stored in the flow document.
type Kind string

const (
	KindEntry         Kind = "entry"
	KindMethodEntry   Kind = "methodEntry"
	KindPropertyEntry Kind = "propertyEntry"
	KindInput         Kind = "input"
	KindOutput        Kind = "output"
	KindTimer         Kind = "timer"
	KindCounter       Kind = "counter"
	KindComparison    Kind = "comparison"
	KindIf            Kind = "if"
	KindFor           Kind = "for"
	KindMethodCall    Kind = "methodCall"
	KindVarRead       Kind = "varRead"
	KindVarWrite      Kind = "varWrite"
	KindReturn        Kind = "return"
	KindGroup         Kind = "flowGroup"
)

// Position is the editor canvas location of a node. It has no effect on code
// generation.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one block of the graph.
type Node struct {
	ID       string
	Kind     Kind
	Position Position
	Params   Params
}

// Endpoint addresses a port of a node.
type Endpoint struct {
	NodeID   string `json:"nodeId"`
	PortName string `json:"portName"`
}

// Connection wires an output port to an input port.
type Connection struct {
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

// Document is a parsed flow graph.
type Document struct {
	Name        string
	Version     string
	Nodes       []Node
	Connections []Connection
	Metadata    map[string]string
}

// Node looks up a node by id.
func (d *Document) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Index gives constant-time access to nodes and their connections.
type Index struct {
	nodes    map[string]Node
	incoming map[Endpoint][]Connection
	outgoing map[Endpoint][]Connection
	byTarget map[string][]Connection
}

// NewIndex indexes a document. Connections pointing at unknown nodes are
// indexed as well; validation reports them.
func NewIndex(d *Document) *Index {
	idx := &Index{
		nodes:    make(map[string]Node, len(d.Nodes)),
		incoming: make(map[Endpoint][]Connection),
		outgoing: make(map[Endpoint][]Connection),
		byTarget: make(map[string][]Connection),
	}
	for _, n := range d.Nodes {
		idx.nodes[n.ID] = n
	}
	for _, c := range d.Connections {
		idx.incoming[c.To] = append(idx.incoming[c.To], c)
		idx.outgoing[c.From] = append(idx.outgoing[c.From], c)
		idx.byTarget[c.To.NodeID] = append(idx.byTarget[c.To.NodeID], c)
	}
	return idx
}

// Node looks up a node by id.
func (i *Index) Node(id string) (Node, bool) {
	n, ok := i.nodes[id]
	return n, ok
}

// Incoming returns the connections feeding the given input port.
func (i *Index) Incoming(nodeID, port string) []Connection {
	return i.incoming[Endpoint{NodeID: nodeID, PortName: port}]
}

// Outgoing returns the connections leaving the given output port.
func (i *Index) Outgoing(nodeID, port string) []Connection {
	return i.outgoing[Endpoint{NodeID: nodeID, PortName: port}]
}

// InputsOf returns every connection that ends at the node.
func (i *Index) InputsOf(nodeID string) []Connection {
	return i.byTarget[nodeID]
}
