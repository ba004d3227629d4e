package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/ctxlog"
)

// Validate performs a strict startup check of the registry against the
// loaded pipeline model: every stage instance must reference a known kind,
// stage names must be unique, and each kind's declared inputs must match the
// `lp:` tagged fields of its Go input struct in both directions.
func (r *Registry) Validate(ctx context.Context, model *config.Model) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	seen := make(map[string]struct{}, len(model.Stages))
	for _, s := range model.Stages {
		if _, ok := r.StageRegistry[s.Kind]; !ok {
			errs = append(errs, fmt.Sprintf("stage '%s': unknown stage kind '%s'", s.Name, s.Kind))
		}
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate stage name '%s'", s.Name))
		}
		seen[s.Name] = struct{}{}
	}

	for kind, stage := range r.StageRegistry {
		if stage.Fn == nil {
			errs = append(errs, fmt.Sprintf("stage kind '%s': no handler function registered", kind))
			continue
		}
		if err := validateInputParity(kind, stage); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	logger.Debug("Registry validation passed.", "kinds", len(r.StageRegistry))
	return nil
}

// validateInputParity checks that the declared input definitions and the Go
// input struct's tagged fields agree.
func validateInputParity(kind string, stage *RegisteredStage) error {
	var errs []string

	if stage.NewInput == nil || stage.NewInput() == nil {
		if len(stage.Inputs) > 0 {
			return fmt.Errorf("stage kind '%s': declares inputs, but has no input struct", kind)
		}
		return nil
	}

	inputType := reflect.TypeOf(stage.NewInput())
	if inputType.Kind() != reflect.Ptr || inputType.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("stage kind '%s': NewInput must return a pointer to a struct, got %s", kind, inputType)
	}
	inputType = inputType.Elem()

	goInputs := make(map[string]struct{})
	for i := 0; i < inputType.NumField(); i++ {
		field := inputType.Field(i)
		if !field.IsExported() {
			continue
		}
		tagName := strings.Split(field.Tag.Get("lp"), ",")[0]
		if tagName != "" && tagName != "-" {
			goInputs[tagName] = struct{}{}
		}
	}

	for name := range goInputs {
		if _, ok := stage.Inputs[name]; !ok {
			errs = append(errs, fmt.Sprintf("stage kind '%s': Go struct has field for input '%s' which is not declared", kind, name))
		}
	}
	for name := range stage.Inputs {
		if _, ok := goInputs[name]; !ok {
			errs = append(errs, fmt.Sprintf("stage kind '%s': declares input '%s' which is not found in Go struct", kind, name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "\n- "))
	}
	return nil
}
