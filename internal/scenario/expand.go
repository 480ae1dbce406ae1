package scenario

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// Expansion errors. Callers classify these as configuration errors: all of
// them are detectable before any process is started.
var (
	ErrUnknownMacro       = errors.New("unknown macro")
	ErrMacroCycle         = errors.New("macro cycle")
	ErrUnresolvedVariable = errors.New("unresolved variable")
	ErrUnknownAction      = errors.New("unknown action type")
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// ExpandOptions supplies the macro and variable environment for expansion.
// Variable precedence, lowest to highest: Globals, the scenario's own
// Variables, Overrides.
type ExpandOptions struct {
	Macros    map[string]Macro // suite-wide macros; scenario-local ones shadow these
	Globals   map[string]string
	Overrides map[string]string
}

// Expand flattens a scenario into an ordered action sequence with every
// macro reference expanded inline and every {{name}} token substituted.
// Expansion is pure: the same scenario and bindings always produce the
// same sequence.
func Expand(s *Scenario, opts ExpandOptions) ([]Action, error) {
	macros := mergeMacros(opts.Macros, s.Macros)
	if err := detectCycles(macros); err != nil {
		return nil, err
	}

	vars := make(map[string]string)
	for k, v := range opts.Globals {
		vars[k] = v
	}
	for k, v := range s.Variables {
		vars[k] = v
	}
	for k, v := range opts.Overrides {
		vars[k] = v
	}

	var actions []Action
	for i, step := range s.Steps {
		expanded, err := expandStep(step, macros, vars)
		if err != nil {
			return nil, fmt.Errorf("scenario %q step %d: %w", s.Name, i+1, err)
		}
		actions = append(actions, expanded...)
	}
	return actions, nil
}

func mergeMacros(global, local map[string]Macro) map[string]Macro {
	merged := make(map[string]Macro, len(global)+len(local))
	for name, m := range global {
		merged[name] = m
	}
	for name, m := range local {
		merged[name] = m
	}
	return merged
}

// detectCycles walks the macro reference graph with a visited set before
// any expansion happens, so a self-referencing macro fails fast instead of
// looping.
func detectCycles(macros map[string]Macro) error {
	names := make([]string, 0, len(macros))
	for name := range macros {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(macros))

	var visit func(name string, trail []string) error
	visit = func(name string, trail []string) error {
		switch state[name] {
		case done:
			return nil
		case inStack:
			return fmt.Errorf("%w: %s -> %s", ErrMacroCycle, trailString(trail), name)
		}
		state[name] = inStack
		m := macros[name]
		for _, step := range m.Steps {
			if step.Kind != KindMacro {
				continue
			}
			ref, ok := macroName(step)
			if !ok {
				continue
			}
			if _, defined := macros[ref]; !defined {
				// Undefined references surface during expansion with
				// step position context.
				continue
			}
			if err := visit(ref, append(trail, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func trailString(trail []string) string {
	out := ""
	for _, t := range trail {
		out += t + " -> "
	}
	if len(out) >= 4 {
		out = out[:len(out)-4]
	}
	return out
}

func macroName(step Step) (string, bool) {
	v, ok := step.Params["name"]
	if !ok || v == nil {
		return "", false
	}
	name := fmt.Sprintf("%v", v)
	return name, name != ""
}

func expandStep(step Step, macros map[string]Macro, vars map[string]string) ([]Action, error) {
	if step.Kind == KindMacro {
		if name, ok := macroName(step); ok {
			return expandMacro(name, step, macros, vars)
		}
		// macro steps with an inline command list pass through to the
		// translator untouched.
	}
	if !knownKinds[step.Kind] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, step.Kind)
	}
	params, err := substituteMap(step.Params, vars)
	if err != nil {
		return nil, err
	}
	return []Action{{Kind: step.Kind, Params: params}}, nil
}

func expandMacro(name string, step Step, macros map[string]Macro, vars map[string]string) ([]Action, error) {
	m, ok := macros[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMacro, name)
	}

	// Bindings inside the macro body: scenario variables, then declared
	// parameter defaults, then call-site arguments.
	bindings := make(map[string]string, len(vars)+len(m.Defaults))
	for k, v := range vars {
		bindings[k] = v
	}
	for k, v := range m.Defaults {
		bindings[k] = v
	}
	if rawArgs, ok := step.Params["arguments"]; ok {
		args, ok := rawArgs.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("macro %q: arguments must be a mapping", name)
		}
		for k, v := range args {
			bindings[k] = fmt.Sprintf("%v", v)
		}
	}

	var actions []Action
	for i, body := range m.Steps {
		expanded, err := expandStep(body, macros, bindings)
		if err != nil {
			return nil, fmt.Errorf("macro %q step %d: %w", name, i+1, err)
		}
		actions = append(actions, expanded...)
	}
	return actions, nil
}

func substituteMap(params map[string]any, vars map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		sub, err := substituteValue(v, vars)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		out[k] = sub
	}
	return out, nil
}

func substituteValue(v any, vars map[string]string) (any, error) {
	switch val := v.(type) {
	case string:
		return substituteString(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			sub, err := substituteValue(e, vars)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	case map[string]any:
		return substituteMap(val, vars)
	default:
		return v, nil
	}
}

func substituteString(s string, vars map[string]string) (string, error) {
	var missing string
	replaced := tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		if missing == "" {
			missing = name
		}
		return match
	})
	if missing != "" {
		return "", fmt.Errorf("%w: {{%s}}", ErrUnresolvedVariable, missing)
	}
	return replaced, nil
}
