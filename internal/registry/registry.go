package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/lorapipe/internal/config"
)

// Module is the interface that all stage modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredStage holds the compiled Go parts of a stage kind.
type RegisteredStage struct {
	// NewInput returns a fresh pointer to the kind's input struct, or nil
	// when the kind takes no arguments.
	NewInput func() any
	// Inputs declares the kind's arguments: names, defaults, optionality.
	Inputs map[string]*config.InputDefinition
	// Fn is the stage handler. Its signature must be
	// func(ctx context.Context, rc *stage.RunContext, input *Input) (cty.Value, error).
	Fn any
}

// Registry holds all registered stage kinds for a single application
// instance.
type Registry struct {
	StageRegistry map[string]*RegisteredStage
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		StageRegistry: make(map[string]*RegisteredStage),
	}
}

// RegisterStage registers a Go handler for a stage kind.
func (r *Registry) RegisterStage(kind string, stage *RegisteredStage) {
	if _, exists := r.StageRegistry[kind]; exists {
		panic(fmt.Sprintf("stage kind '%s' already registered", kind))
	}
	slog.Debug("Registering stage kind.", "kind", kind)
	r.StageRegistry[kind] = stage
}

// Lookup returns the registered stage for a kind.
func (r *Registry) Lookup(kind string) (*RegisteredStage, bool) {
	s, ok := r.StageRegistry[kind]
	return s, ok
}
