// Package compiler turns a flow document into IEC 61131-3 Structured Text.
//
// Compilation runs in four stages, each a pure function of the document:
// Validate rejects structural faults, Order numbers the execution chains,
// translators render each node, and assembly stitches the fragments into
// one artifact per chain plus the shared global variable list, data types
// and library manifest.
package compiler

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/flow"
)

// Compiler validates and translates flow documents. It holds no per-document
// state and is safe for concurrent use.
type Compiler struct {
	catalog     *flow.Catalog
	translators Registry
	dataTypes   map[string][]string
	logger      *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCatalog replaces the node kind catalog.
func WithCatalog(c *flow.Catalog) Option {
	return func(cc *Compiler) {
		cc.catalog = c
	}
}

// WithTranslators replaces the translator registry.
func WithTranslators(r Registry) Option {
	return func(cc *Compiler) {
		cc.translators = r
	}
}

// WithDataTypes replaces the structure members emitted for the data types
// translators reference.
func WithDataTypes(types map[string][]string) Option {
	return func(cc *Compiler) {
		cc.dataTypes = types
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cc *Compiler) {
		cc.logger = l
	}
}

// New creates a compiler with the default catalog and translators.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		catalog:     flow.DefaultCatalog(),
		translators: DefaultRegistry(),
		dataTypes:   DefaultDataTypes(),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the output of a successful compilation.
type Result struct {
	Chains    []Chain
	Artifacts []domain.GeneratedArtifact
	Libraries []string
}

// Artifact looks up an artifact by name.
func (r *Result) Artifact(name string) (domain.GeneratedArtifact, bool) {
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return domain.GeneratedArtifact{}, false
}

// Compile validates doc, orders its chains and assembles the artifacts.
// Validation faults are returned as *domain.ValidationError before any
// translation runs.
func (c *Compiler) Compile(doc *flow.Document) (*Result, error) {
	if err := c.Validate(doc); err != nil {
		return nil, err
	}
	chains := c.Order(doc)
	c.logger.Debug("execution order computed", "flow", doc.Name, "chains", len(chains))

	res, err := c.assemble(doc, chains)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", doc.Name, err)
	}
	c.logger.Debug("flow compiled", "flow", doc.Name, "artifacts", len(res.Artifacts), "libraries", res.Libraries)
	return res, nil
}
