// Package domain defines the core entities of the build and deploy engine:
// build jobs and their results, deploy records, controller states and the
// artifacts produced by the graph compiler.
//
// It has no dependencies on adapters or infrastructure. Every other package
// exchanges these types through the interfaces declared in pkg/ports.
package domain
