package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/autorp/autorp/internal/process"
	"github.com/autorp/autorp/internal/scenario"
)

const worldDoc = `
bot_variables:
  greeting: hello
  player: Lain
bot_macros:
  - name: greet
    parameters: [name]
    steps:
      - type: chat
        message: "{{greeting}} {{name}}"
bot_scenarios:
  - name: Morning Patrol
    tags: [smoke]
    steps:
      - type: macro
        name: greet
        arguments:
          name: partner
      - type: chat
        message: "report {{player}}"
      - "duty on"
      - type: wait
        seconds: 0.5
bot_automation:
  variables:
    player: Mika
  clients:
    - name: bot1
      type: dummy
      setup_steps:
        - type: macro
          name: greet
          arguments:
            name: world
  runs:
    - scenario: Morning Patrol
      clients: [bot1]
      iterations: 2
      interval: 1.5
      retries: 1
      grace_period: 0.25
      run_timeout: 30
      tags: [nightly]
      expect_server_logs:
        - pattern: "duty on"
          occurrences: 1
          timeout: 5
      assertions:
        - type: command_count
          min: 1
`

func mustPlan(t *testing.T, doc string) *Plan {
	t.Helper()
	w, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := BuildPlan(w, nil, nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	return p
}

func TestContextsExpandUpFront(t *testing.T) {
	p := mustPlan(t, worldDoc)

	contexts, err := p.Contexts()
	if err != nil {
		t.Fatalf("Contexts: %v", err)
	}
	if len(contexts) != 1 {
		t.Fatalf("contexts = %d, want 1", len(contexts))
	}

	rc := contexts[0]
	if rc.Name != "Morning Patrol" {
		t.Fatalf("name = %q", rc.Name)
	}
	if !rc.Enabled {
		t.Fatal("run should default to enabled")
	}
	if rc.Iterations != 2 || rc.MaxRetries != 1 {
		t.Fatalf("iterations/retries = %d/%d", rc.Iterations, rc.MaxRetries)
	}
	if rc.Interval != 1500*time.Millisecond {
		t.Fatalf("interval = %v", rc.Interval)
	}
	if rc.GracePeriod != 250*time.Millisecond {
		t.Fatalf("grace period = %v", rc.GracePeriod)
	}
	if rc.RunTimeout != 30*time.Second {
		t.Fatalf("run timeout = %v", rc.RunTimeout)
	}

	// Scenario tags come first, run tags after.
	if len(rc.Tags) != 2 || rc.Tags[0] != "smoke" || rc.Tags[1] != "nightly" {
		t.Fatalf("tags = %v", rc.Tags)
	}

	// Macro expanded, automation variable overriding the bot variable.
	if len(rc.Script) != 4 {
		t.Fatalf("script = %d actions, want 4", len(rc.Script))
	}
	if got := rc.Script[0].Str("message", ""); got != "hello partner" {
		t.Fatalf("first action message = %q", got)
	}
	if got := rc.Script[1].Str("message", ""); got != "report Mika" {
		t.Fatalf("second action message = %q", got)
	}
	if got := rc.Script[2].Str("command", ""); got != "/duty on" {
		t.Fatalf("third action command = %q", got)
	}

	if len(rc.ExpectServerLogs) != 1 {
		t.Fatalf("server expectations = %d", len(rc.ExpectServerLogs))
	}
	if rc.ExpectServerLogs[0].Timeout != 5*time.Second {
		t.Fatalf("expectation timeout = %v", rc.ExpectServerLogs[0].Timeout)
	}
}

func TestVariableOverridesWin(t *testing.T) {
	w, err := Parse([]byte(worldDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := BuildPlan(w, nil, map[string]string{"player": "Override"})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	contexts, err := p.Contexts()
	if err != nil {
		t.Fatalf("Contexts: %v", err)
	}
	if got := contexts[0].Script[1].Str("message", ""); got != "report Override" {
		t.Fatalf("message = %q", got)
	}
}

func TestValidationRejectsBrokenWorlds(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown scenario",
			doc: `
bot_automation:
  runs:
    - scenario: nope
`,
			want: "unknown scenario",
		},
		{
			name: "unknown client",
			doc: `
bot_scenarios:
  - name: s
    steps: ["hi"]
bot_automation:
  runs:
    - scenario: s
      clients: [ghost]
`,
			want: "unknown client",
		},
		{
			name: "duplicate client",
			doc: `
bot_automation:
  clients:
    - {name: a, type: dummy}
    - {name: a, type: dummy}
`,
			want: "duplicate client",
		},
		{
			name: "duplicate scenario",
			doc: `
bot_scenarios:
  - name: s
    steps: ["hi"]
  - name: s
    steps: ["hi"]
`,
			want: "duplicate scenario",
		},
		{
			name: "wine client without gta_directory",
			doc: `
bot_automation:
  clients:
    - {name: w, type: wine}
`,
			want: "gta_directory",
		},
		{
			name: "bad regex expectation",
			doc: `
bot_scenarios:
  - name: s
    steps: ["hi"]
bot_automation:
  runs:
    - scenario: s
      expect_server_logs:
        - pattern: "("
          match_type: regex
`,
			want: "invalid pattern",
		},
		{
			name: "negative expectation timeout",
			doc: `
bot_scenarios:
  - name: s
    steps: ["hi"]
bot_automation:
  runs:
    - scenario: s
      expect_server_logs:
        - pattern: "ready"
          timeout: -1
`,
			want: "timeout must not be negative",
		},
		{
			name: "unknown assertion type",
			doc: `
bot_scenarios:
  - name: s
    steps: ["hi"]
bot_automation:
  runs:
    - scenario: s
      assertions:
        - type: telepathy
`,
			want: "unknown assertion type",
		},
		{
			name: "negative retries",
			doc: `
bot_scenarios:
  - name: s
    steps: ["hi"]
bot_automation:
  runs:
    - scenario: s
      retries: -1
`,
			want: "negative",
		},
		{
			name: "unknown client type",
			doc: `
bot_automation:
  clients:
    - {name: x, type: hologram}
`,
			want: "unknown type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := Parse([]byte(tc.doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = BuildPlan(w, nil, nil)
			if err == nil {
				t.Fatal("BuildPlan should fail")
			}
			if !IsConfigError(err) {
				t.Fatalf("not a config error: %v", err)
			}
			if !strings.Contains(strings.ToLower(err.Error()), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestOmittedExpectationTimeoutUsesDefault(t *testing.T) {
	doc := `
bot_scenarios:
  - name: s
    steps: ["hi"]
bot_automation:
  runs:
    - scenario: s
      expect_server_logs:
        - pattern: "ready"
`
	p := mustPlan(t, doc)
	contexts, err := p.Contexts()
	if err != nil {
		t.Fatalf("Contexts: %v", err)
	}
	exp := contexts[0].ExpectServerLogs[0]
	if exp.Timeout != 0 {
		t.Fatalf("timeout = %v, want zero until defaulted", exp.Timeout)
	}
	if got := exp.EffectiveTimeout(); got != 10*time.Second {
		t.Fatalf("effective timeout = %v", got)
	}
}

func TestExpansionFailureIsConfigError(t *testing.T) {
	doc := `
bot_scenarios:
  - name: s
    steps:
      - type: macro
        name: missing
bot_automation:
  runs:
    - scenario: s
`
	p := mustPlan(t, doc)
	_, err := p.Contexts()
	if err == nil {
		t.Fatal("Contexts should fail on an unresolvable macro")
	}
	if !IsConfigError(err) {
		t.Fatalf("not a config error: %v", err)
	}
}

func TestDisabledRunStaysDisabled(t *testing.T) {
	doc := `
bot_scenarios:
  - name: s
    steps: ["hi"]
bot_automation:
  runs:
    - scenario: s
      enabled: false
`
	p := mustPlan(t, doc)
	contexts, err := p.Contexts()
	if err != nil {
		t.Fatalf("Contexts: %v", err)
	}
	if contexts[0].Enabled {
		t.Fatal("run should stay disabled")
	}
}

func TestClientsMaterializeFleet(t *testing.T) {
	gta := t.TempDir()
	doc := `
bot_variables:
  greeting: hello
bot_automation:
  clients:
    - name: bot1
      type: dummy
      setup_steps:
        - type: chat
          message: "{{greeting}}"
    - name: wine1
      type: wine
      dry_run: true
      gta_directory: ` + gta + `
`
	p := mustPlan(t, doc)
	clients, err := p.Clients(ClientOptions{})
	if err != nil {
		t.Fatalf("Clients: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("clients = %d, want 2", len(clients))
	}

	dc, ok := clients[0].(*process.DummyClient)
	if !ok {
		t.Fatalf("first client is %T", clients[0])
	}
	if len(dc.Setup) != 1 || dc.Setup[0].Str("message", "") != "hello" {
		t.Fatalf("setup actions = %v", dc.Setup)
	}

	wc, ok := clients[1].(*process.WineClient)
	if !ok {
		t.Fatalf("second client is %T", clients[1])
	}
	if wc.Name() != "wine1" {
		t.Fatalf("wine client name = %q", wc.Name())
	}
	if wc.CommandFile() != filepath.Join(gta, "bot_commands.txt") {
		t.Fatalf("command file = %q", wc.CommandFile())
	}
}

func TestLoadAcceptsJSON(t *testing.T) {
	doc := `{
  "bot_scenarios": [{"name": "s", "steps": ["/hi"]}],
  "bot_automation": {"runs": [{"scenario": "s"}]}
}`
	path := filepath.Join(t.TempDir(), "world.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := BuildPlan(w, nil, nil); err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
}

func TestExtraScenariosRegister(t *testing.T) {
	w, err := Parse([]byte(worldDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	extra := &scenario.Scenario{Name: "Disk Scenario", Steps: []scenario.Step{
		{Kind: scenario.KindChat, Params: map[string]any{"message": "hi"}},
	}}
	p, err := BuildPlan(w, []*scenario.Scenario{extra}, nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if _, ok := p.Scenario("Disk Scenario"); !ok {
		t.Fatal("extra scenario not registered")
	}
	if got := len(p.Scenarios()); got != 2 {
		t.Fatalf("scenario library = %d entries, want 2", got)
	}
}
