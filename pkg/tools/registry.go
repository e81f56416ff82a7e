package tools

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/tabula/pkg/registry"
)

// Registry holds the tool definitions for one orchestrator. Definitions are
// registered once, before the run starts, and are read-only afterwards.
type Registry struct {
	*registry.BaseRegistry[Definition]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Definition]()}
}

// Register validates and stores a definition. A tool without a declared
// operation gets one inferred from its name; inference is deprecated and
// logged so tool authors migrate to explicit declarations.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", def.Name)
	}
	if def.Operation == "" {
		def.Operation = InferOperation(def.Name)
		slog.Warn("tool declared no operation, inferred from name (deprecated)",
			"tool", def.Name, "operation", def.Operation)
	}
	if !def.Operation.Valid() {
		return fmt.Errorf("tool %q has unknown operation %q", def.Name, def.Operation)
	}
	return r.BaseRegistry.Register(def.Name, def)
}

// InferOperation guesses a tool's operation from its name. Matching order is
// significant: read markers win over exec markers so that "search_tests"
// stays a read.
func InferOperation(name string) Operation {
	lower := strings.ToLower(name)
	contains := func(markers ...string) bool {
		for _, marker := range markers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("read", "list", "search"):
		return OperationRead
	case contains("delete", "remove"):
		return OperationDelete
	case contains("exec", "run", "test", "lint"):
		return OperationExec
	case contains("write", "patch", "apply", "format"):
		return OperationWrite
	default:
		// Unknown names get the most restricted treatment.
		return OperationExec
	}
}
