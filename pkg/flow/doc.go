// Package flow models the node-and-wire control program drawn in the editor.
//
// A Document is a forest: every EntryPoint node (program entry, method entry,
// property accessor entry) roots one execution chain. Nodes are connected
// through typed ports. Execution-control ports (EN, ENO, TRUE, DO) sequence
// statements, all other ports carry data.
//
// Node parameters arrive as loose JSON objects. Parse decodes them into one
// typed struct per node kind, so an unrecognised kind or a malformed parameter
// is reported once, up front, instead of surfacing during code generation.
package flow
