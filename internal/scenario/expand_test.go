package scenario

import (
	"errors"
	"reflect"
	"testing"
)

func greetMacro() Macro {
	return Macro{
		Name:   "greet",
		Params: []string{"player"},
		Steps: []Step{
			{Kind: KindChat, Params: map[string]any{"message": "Witaj {{player}}"}},
			{Kind: KindWait, Params: map[string]any{"seconds": 0.2}},
		},
	}
}

func TestExpandSubstitutesMacroArgumentsAndVariables(t *testing.T) {
	s := &Scenario{
		Name:      "simple",
		Variables: map[string]string{"player": "Scenario"},
		Macros: map[string]Macro{
			"prepare": {Name: "prepare", Steps: []Step{
				{Kind: KindCommand, Params: map[string]any{"command": "/prep"}},
			}},
		},
		Steps: []Step{
			{Kind: KindMacro, Params: map[string]any{"name": "greet", "arguments": map[string]any{"player": "Tester"}}},
			{Kind: KindMacro, Params: map[string]any{"name": "prepare"}},
			{Kind: KindCommand, Params: map[string]any{"command": "/use {{code}}"}},
		},
	}

	actions, err := Expand(s, ExpandOptions{
		Macros:    map[string]Macro{"greet": greetMacro()},
		Globals:   map[string]string{"code": "S1"},
		Overrides: map[string]string{"code": "AUTO"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(actions) != 4 {
		t.Fatalf("expected 4 actions, got %d: %v", len(actions), actions)
	}
	if got := actions[0].Str("message", ""); got != "Witaj Tester" {
		t.Errorf("macro argument not substituted: %q", got)
	}
	if actions[1].Kind != KindWait {
		t.Errorf("expected wait action, got %q", actions[1].Kind)
	}
	if got := actions[2].Str("command", ""); got != "/prep" {
		t.Errorf("local macro not expanded: %q", got)
	}
	if got := actions[3].Str("command", ""); got != "/use AUTO" {
		t.Errorf("override should win over global: %q", got)
	}
}

func TestExpandIsDeterministic(t *testing.T) {
	s := &Scenario{
		Name:      "det",
		Variables: map[string]string{"who": "QA"},
		Steps: []Step{
			{Kind: KindMacro, Params: map[string]any{"name": "greet", "arguments": map[string]any{"player": "{{who}}"}}},
			{Kind: KindChat, Params: map[string]any{"message": "bye {{who}}"}},
		},
	}
	opts := ExpandOptions{Macros: map[string]Macro{"greet": greetMacro()}}

	first, err := Expand(s, opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Expand(s, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expansion is not deterministic:\n%v\n%v", first, second)
	}
}

func TestExpandUnknownMacro(t *testing.T) {
	s := &Scenario{
		Name:  "bad",
		Steps: []Step{{Kind: KindMacro, Params: map[string]any{"name": "nope"}}},
	}
	_, err := Expand(s, ExpandOptions{})
	if !errors.Is(err, ErrUnknownMacro) {
		t.Fatalf("expected ErrUnknownMacro, got %v", err)
	}
}

func TestExpandUnresolvedVariable(t *testing.T) {
	s := &Scenario{
		Name:  "bad",
		Steps: []Step{{Kind: KindChat, Params: map[string]any{"message": "hi {{missing}}"}}},
	}
	_, err := Expand(s, ExpandOptions{})
	if !errors.Is(err, ErrUnresolvedVariable) {
		t.Fatalf("expected ErrUnresolvedVariable, got %v", err)
	}
}

func TestExpandRejectsMacroCycle(t *testing.T) {
	s := &Scenario{
		Name: "cyclic",
		Macros: map[string]Macro{
			"a": {Name: "a", Steps: []Step{{Kind: KindMacro, Params: map[string]any{"name": "b"}}}},
			"b": {Name: "b", Steps: []Step{{Kind: KindMacro, Params: map[string]any{"name": "a"}}}},
		},
		Steps: []Step{{Kind: KindMacro, Params: map[string]any{"name": "a"}}},
	}
	_, err := Expand(s, ExpandOptions{})
	if !errors.Is(err, ErrMacroCycle) {
		t.Fatalf("expected ErrMacroCycle, got %v", err)
	}
}

func TestExpandRejectsSelfReference(t *testing.T) {
	s := &Scenario{
		Name: "self",
		Macros: map[string]Macro{
			"loop": {Name: "loop", Steps: []Step{{Kind: KindMacro, Params: map[string]any{"name": "loop"}}}},
		},
		Steps: []Step{{Kind: KindMacro, Params: map[string]any{"name": "loop"}}},
	}
	_, err := Expand(s, ExpandOptions{})
	if !errors.Is(err, ErrMacroCycle) {
		t.Fatalf("expected ErrMacroCycle, got %v", err)
	}
}

func TestExpandRejectsUnknownActionKind(t *testing.T) {
	s := &Scenario{
		Name:  "bad",
		Steps: []Step{{Kind: "explode", Params: map[string]any{}}},
	}
	_, err := Expand(s, ExpandOptions{})
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestExpandKeepsInlineCommandMacro(t *testing.T) {
	s := &Scenario{
		Name: "inline",
		Steps: []Step{
			{Kind: KindMacro, Params: map[string]any{"commands": []any{"/one", "/two"}}},
		},
	}
	actions, err := Expand(s, ExpandOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].Kind != KindMacro {
		t.Fatalf("inline macro should pass through, got %v", actions)
	}
	if got := actions[0].Strings("commands"); len(got) != 2 || got[0] != "/one" {
		t.Errorf("inline commands mangled: %v", got)
	}
}
