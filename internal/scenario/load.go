package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawMacro mirrors the on-disk macro object.
type rawMacro struct {
	Name     string            `yaml:"name"`
	Params   []string          `yaml:"parameters"`
	Defaults map[string]string `yaml:"defaults"`
	Steps    []Step            `yaml:"steps"`
}

// rawScenario mirrors the on-disk scenario document. Scenario files are
// JSON; the yaml.v3 decoder accepts JSON as a YAML subset, so one loader
// serves both representations.
type rawScenario struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Steps       []Step            `yaml:"steps"`
	Macros      []rawMacro        `yaml:"macros"`
	Variables   map[string]string `yaml:"variables"`
	Tags        []string          `yaml:"tags"`
}

// UnmarshalYAML accepts either a bare string (shorthand for a slash
// command) or a mapping with a type/action discriminator.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var cmd string
		if err := node.Decode(&cmd); err != nil {
			return err
		}
		s.Kind = KindCommand
		s.Params = map[string]any{"command": ensureLeadingSlash(cmd)}
		return nil
	}

	var fields map[string]any
	if err := node.Decode(&fields); err != nil {
		return fmt.Errorf("decode step: %w", err)
	}

	kind := ""
	if v, ok := fields["type"]; ok {
		kind = fmt.Sprintf("%v", v)
	} else if v, ok := fields["action"]; ok {
		kind = fmt.Sprintf("%v", v)
	}
	if kind == "" {
		kind = KindCommand
	}
	delete(fields, "type")
	delete(fields, "action")

	if kind == KindCommand {
		value := ""
		if v, ok := fields["value"]; ok {
			value = fmt.Sprintf("%v", v)
		} else if v, ok := fields["command"]; ok {
			value = fmt.Sprintf("%v", v)
		}
		fields["command"] = ensureLeadingSlash(value)
		delete(fields, "value")
	}

	s.Kind = kind
	s.Params = fields
	return nil
}

// MarshalYAML renders the step back into its mapping form.
func (s Step) MarshalYAML() (any, error) {
	out := map[string]any{"type": s.Kind}
	for k, v := range s.Params {
		out[k] = v
	}
	return out, nil
}

func ensureLeadingSlash(command string) string {
	command = strings.TrimSpace(command)
	if command == "" || strings.HasPrefix(command, "/") {
		return command
	}
	return "/" + command
}

// UnmarshalYAML lets scenario documents be embedded inside larger
// configuration files.
func (s *Scenario) UnmarshalYAML(node *yaml.Node) error {
	var raw rawScenario
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fromRaw(raw)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// UnmarshalYAML decodes a standalone macro definition.
func (m *Macro) UnmarshalYAML(node *yaml.Node) error {
	var raw rawMacro
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Name == "" {
		return fmt.Errorf("macro without a name")
	}
	*m = Macro(raw)
	return nil
}

// Parse decodes one scenario document.
func Parse(data []byte) (*Scenario, error) {
	var raw rawScenario
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return fromRaw(raw)
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// EncodeJSON renders the scenario as a JSON document Parse round-trips.
// Macros are emitted in name order so repeated encodes are byte-identical.
func (s *Scenario) EncodeJSON() ([]byte, error) {
	doc := map[string]any{
		"name":        s.Name,
		"description": s.Description,
		"steps":       stepMaps(s.Steps),
	}
	if len(s.Variables) > 0 {
		doc["variables"] = s.Variables
	}
	if len(s.Tags) > 0 {
		doc["tags"] = s.Tags
	}
	if len(s.Macros) > 0 {
		names := make([]string, 0, len(s.Macros))
		for name := range s.Macros {
			names = append(names, name)
		}
		sort.Strings(names)
		macros := make([]map[string]any, 0, len(names))
		for _, name := range names {
			m := s.Macros[name]
			entry := map[string]any{"name": m.Name, "steps": stepMaps(m.Steps)}
			if len(m.Params) > 0 {
				entry["parameters"] = m.Params
			}
			if len(m.Defaults) > 0 {
				entry["defaults"] = m.Defaults
			}
			macros = append(macros, entry)
		}
		doc["macros"] = macros
	}
	return json.MarshalIndent(doc, "", "  ")
}

func stepMaps(steps []Step) []map[string]any {
	out := make([]map[string]any, 0, len(steps))
	for _, st := range steps {
		entry := map[string]any{"type": st.Kind}
		for k, v := range st.Params {
			entry[k] = v
		}
		out = append(out, entry)
	}
	return out
}

func fromRaw(raw rawScenario) (*Scenario, error) {
	s := &Scenario{
		Name:        raw.Name,
		Description: raw.Description,
		Steps:       raw.Steps,
		Variables:   raw.Variables,
		Tags:        raw.Tags,
	}
	if s.Name == "" {
		s.Name = raw.Description
	}
	if s.Description == "" {
		s.Description = raw.Name
	}
	if len(raw.Macros) > 0 {
		s.Macros = make(map[string]Macro, len(raw.Macros))
		for _, m := range raw.Macros {
			if m.Name == "" {
				return nil, fmt.Errorf("scenario %q: macro without a name", s.Name)
			}
			if _, dup := s.Macros[m.Name]; dup {
				return nil, fmt.Errorf("scenario %q: duplicate macro %q", s.Name, m.Name)
			}
			s.Macros[m.Name] = Macro(m)
		}
	}
	return s, nil
}
