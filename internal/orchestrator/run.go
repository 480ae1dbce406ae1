package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autorp/autorp/internal/logmon"
	"github.com/autorp/autorp/internal/process"
	"github.com/autorp/autorp/internal/scenario"
)

const serverLogExcerptLimit = 2000

// Orchestrator runs configured scenarios against a server and a set of
// clients. Only the orchestrator starts or stops the server; clients get a
// read-only view of its log.
type Orchestrator struct {
	// Server manages the local server process. Optional when
	// ServerAddress points at an already-running instance.
	Server *process.ServerController

	// ServerAddress, when set, is used as-is and the controller is left
	// untouched.
	ServerAddress string

	// ScriptsDir receives registered scenario JSON files.
	ScriptsDir string

	clients []process.Client
}

// New assembles an orchestrator over the given clients.
func New(clients []process.Client, server *process.ServerController, scriptsDir string) *Orchestrator {
	return &Orchestrator{Server: server, ScriptsDir: scriptsDir, clients: clients}
}

// Clients returns the registered clients.
func (o *Orchestrator) Clients() []process.Client { return o.clients }

// RegisterScript persists the scenario as JSON under its slug for
// inspection and replay. Name collisions get a numeric suffix instead of
// overwriting an earlier scenario.
func (o *Orchestrator) RegisterScript(s *scenario.Scenario) (string, error) {
	if o.ScriptsDir == "" {
		return "", fmt.Errorf("orchestrator: no scripts directory configured")
	}
	if err := os.MkdirAll(o.ScriptsDir, 0o755); err != nil {
		return "", fmt.Errorf("orchestrator: create scripts dir: %w", err)
	}
	slug := scenario.Slug(s.Name)
	target := filepath.Join(o.ScriptsDir, slug+".json")
	for n := 2; ; n++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = filepath.Join(o.ScriptsDir, fmt.Sprintf("%s_%d.json", slug, n))
	}
	data, err := s.EncodeJSON()
	if err != nil {
		return "", fmt.Errorf("orchestrator: encode scenario %s: %w", s.Name, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("orchestrator: write scenario %s: %w", s.Name, err)
	}
	return target, nil
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Filter applies include/exclude token lists to the contexts. Tokens match
// scenario names, slugs, and tags, case-insensitively. Excluded runs are
// simply not scheduled.
func Filter(contexts []RunContext, only, skip []string) []RunContext {
	include := make(map[string]bool)
	for _, v := range only {
		if v = normalizeToken(v); v != "" {
			include[v] = true
		}
	}
	exclude := make(map[string]bool)
	for _, v := range skip {
		if v = normalizeToken(v); v != "" {
			exclude[v] = true
		}
	}

	var out []RunContext
	for _, rc := range contexts {
		tokens := rc.Tokens()
		if len(include) > 0 && !overlaps(tokens, include) {
			continue
		}
		if len(exclude) > 0 && overlaps(tokens, exclude) {
			continue
		}
		out = append(out, rc)
	}
	return out
}

func overlaps(tokens map[string]bool, filter map[string]bool) bool {
	for t := range tokens {
		if filter[t] {
			return true
		}
	}
	return false
}

func (o *Orchestrator) selectClients(rc RunContext) ([]process.Client, error) {
	if len(rc.Clients) == 0 {
		return o.clients, nil
	}
	byName := make(map[string]process.Client, len(o.clients))
	for _, c := range o.clients {
		byName[c.Name()] = c
	}
	out := make([]process.Client, 0, len(rc.Clients))
	for _, name := range rc.Clients {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("orchestrator: unknown client %q in run %q", name, rc.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

func (o *Orchestrator) serverAddress() string {
	if o.ServerAddress != "" {
		return o.ServerAddress
	}
	if o.Server != nil {
		return o.Server.Address()
	}
	return "127.0.0.1:7777"
}

type watchOutcome struct {
	result logmon.MatchResult
	err    error
}

// ctxOver reports whether the error came from the attempt context ending,
// whether by cancellation or by the run timeout expiring.
func ctxOver(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Run executes one attempt of the context: mark logs, launch expectation
// watchers, play the scenario on every selected client concurrently, then
// evaluate expectations and assertions. Exactly one RunResult is returned
// per call.
func (o *Orchestrator) Run(ctx context.Context, rc RunContext, iteration, attempt int) RunResult {
	result := RunResult{
		ID:        uuid.NewString(),
		Script:    rc.Name,
		Slug:      rc.Slug(),
		Tags:      rc.Tags,
		Iteration: iteration,
		Attempt:   attempt,
	}

	selected, err := o.selectClients(rc)
	if err != nil {
		result.Status = StatusFailed
		result.fail(CategoryClient, rc.Name, err.Error())
		return result
	}

	if err := waitBefore(ctx, rc.WaitBefore); err != nil {
		result.Status = StatusAborted
		result.fail(CategoryAborted, rc.Name, err.Error())
		return result
	}

	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if rc.RunTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, rc.RunTimeout)
	}
	defer cancel()

	started := time.Now()

	// Fresh marks so earlier attempts' output cannot satisfy this one.
	var serverMonitor *logmon.Monitor
	if o.Server != nil {
		serverMonitor = logmon.NewMonitor(o.Server.LogPath())
		serverMonitor.Mark()
	}
	clientMonitors := make(map[string]*logmon.ClientMonitor)
	for _, c := range selected {
		for _, m := range c.Monitors() {
			m.Mark()
			clientMonitors[c.Name()+"/"+m.Name] = m
		}
	}

	// Expectation watchers start now: every timeout clock begins at
	// run-attempt begin, independent of playback progress.
	var watchers sync.WaitGroup
	serverOutcomes := make([]watchOutcome, len(rc.ExpectServerLogs))
	for i, exp := range rc.ExpectServerLogs {
		if serverMonitor == nil {
			serverOutcomes[i] = watchOutcome{err: errors.New("no server log to watch")}
			continue
		}
		watchers.Add(1)
		go func(i int, exp logmon.Expectation) {
			defer watchers.Done()
			res, err := serverMonitor.Watch(attemptCtx, exp)
			serverOutcomes[i] = watchOutcome{result: res, err: err}
		}(i, exp)
	}
	clientOutcomes := make([]watchOutcome, len(rc.ExpectClientLogs))
	for i, exp := range rc.ExpectClientLogs {
		monitor, ok := clientMonitors[exp.Client+"/"+exp.LogName()]
		if !ok {
			clientOutcomes[i] = watchOutcome{err: fmt.Errorf("client %s has no log %q", exp.Client, exp.LogName())}
			continue
		}
		watchers.Add(1)
		go func(i int, m *logmon.ClientMonitor, exp logmon.Expectation) {
			defer watchers.Done()
			res, err := m.Watch(attemptCtx, exp)
			clientOutcomes[i] = watchOutcome{result: res, err: err}
		}(i, monitor, exp.Expectation)
	}

	// Concurrent playback, one goroutine per client. Each client owns
	// its transport so there is no cross-client synchronization.
	address := o.serverAddress()
	subject := rc.Slug()
	shotsBefore := make(map[string]int, len(selected))
	for _, c := range selected {
		shotsBefore[c.Name()] = len(c.Screenshots())
	}

	clientResults := make([]ClientResult, len(selected))
	var playbackWG sync.WaitGroup
	for i, c := range selected {
		playbackWG.Add(1)
		go func(i int, c process.Client) {
			defer playbackWG.Done()
			cr := ClientResult{Client: c.Name()}
			if err := c.Connect(attemptCtx, address); err != nil {
				cr.Error = fmt.Sprintf("connect: %v", err)
				clientResults[i] = cr
				return
			}
			defer c.Disconnect()
			log, err := c.RunScript(attemptCtx, c.Name()+":"+subject, rc.Script)
			cr.Log = log
			if err != nil {
				cr.Error = err.Error()
			}
			clientResults[i] = cr
		}(i, c)
	}
	playbackWG.Wait()
	watchers.Wait()

	result.Duration = time.Since(started)
	for i, c := range selected {
		shots := c.Screenshots()
		if n := shotsBefore[c.Name()]; n <= len(shots) {
			clientResults[i].Screenshots = shots[n:]
		}
	}
	result.ClientResults = clientResults

	aborted := attemptCtx.Err() != nil
	if aborted {
		result.Status = StatusAborted
		result.fail(CategoryAborted, rc.Name, attemptCtx.Err().Error())
	}

	for i, outcome := range serverOutcomes {
		if outcome.err != nil {
			if !aborted || !ctxOver(outcome.err) {
				result.fail(CategoryServerLog, rc.Name, outcome.err.Error())
			}
			continue
		}
		result.LogExpectations = append(result.LogExpectations, outcome.result)
		if !outcome.result.Matched && !aborted {
			exp := rc.ExpectServerLogs[i]
			result.fail(CategoryServerLog, exp.Pattern,
				fmt.Sprintf("matched %d/%d within %s", outcome.result.Count, exp.Required(), exp.EffectiveTimeout()))
		}
	}
	for i, outcome := range clientOutcomes {
		exp := rc.ExpectClientLogs[i]
		subjectName := exp.Client + "/" + exp.LogName()
		if outcome.err != nil {
			if !aborted || !ctxOver(outcome.err) {
				result.fail(CategoryClientLog, subjectName, outcome.err.Error())
			}
			continue
		}
		result.ClientLogExpectations = append(result.ClientLogExpectations, ClientExpectationResult{
			Client: exp.Client,
			Log:    exp.LogName(),
			Result: outcome.result,
		})
		if !outcome.result.Matched && !aborted {
			result.fail(CategoryClientLog, subjectName,
				fmt.Sprintf("%q matched %d/%d within %s", exp.Pattern, outcome.result.Count, exp.Required(), exp.EffectiveTimeout()))
		}
	}
	for _, cr := range clientResults {
		if cr.Error != "" && !aborted {
			result.fail(CategoryClient, cr.Client, cr.Error)
		}
	}

	result.Assertions = evaluateAssertions(rc, &result)
	for _, a := range result.Assertions {
		if !a.Passed {
			result.fail(CategoryAssertion, a.Name, a.Message)
		}
	}

	o.collectArtifacts(rc, serverMonitor, clientMonitors, &result)

	if !aborted {
		if len(result.Failures) == 0 {
			result.Status = StatusPassed
		} else {
			result.Status = StatusFailed
		}
	}
	return result
}

// collectArtifacts writes playback logs and log exports. Artifact failures
// are reported as client failures but never flip a finished run's outcome
// retroactively; they land in Failures before status is decided.
func (o *Orchestrator) collectArtifacts(rc RunContext, serverMonitor *logmon.Monitor,
	clientMonitors map[string]*logmon.ClientMonitor, result *RunResult) {

	if rc.RecordPlaybackDir != "" {
		for i, cr := range result.ClientResults {
			if cr.Log == nil {
				continue
			}
			name := fmt.Sprintf("%s_%s_i%d_a%d.jsonl", result.Slug, cr.Client, result.Iteration, result.Attempt)
			path := filepath.Join(rc.RecordPlaybackDir, name)
			if err := cr.Log.WriteJSONL(path); err != nil {
				result.fail(CategoryClient, cr.Client, fmt.Sprintf("record playback: %v", err))
				continue
			}
			result.ClientResults[i].PlaybackLogPath = path
		}
	}

	if serverMonitor != nil && (rc.CaptureServerLog || rc.ServerLogExport != "") {
		snapshot, err := serverMonitor.Snapshot()
		if err == nil {
			if rc.ServerLogExport != "" {
				if werr := writeExport(rc.ServerLogExport, snapshot); werr == nil {
					result.ServerLogPath = rc.ServerLogExport
				} else {
					result.fail(CategoryServerLog, rc.Name, fmt.Sprintf("export server log: %v", werr))
				}
			} else {
				result.ServerLogExcerpt = truncate(snapshot, serverLogExcerptLimit)
			}
		}
	}

	for _, export := range rc.ClientLogExports {
		monitor, ok := clientMonitors[export.Client+"/"+export.LogName()]
		if !ok {
			continue
		}
		var content string
		var err error
		if export.IncludeFullLog {
			var data []byte
			data, err = os.ReadFile(monitor.Path())
			content = string(data)
		} else {
			content, err = monitor.Snapshot()
		}
		if err != nil {
			continue
		}
		entry := ClientLogExportResult{Client: export.Client, Log: export.LogName()}
		if export.TargetPath != "" {
			if werr := writeExport(export.TargetPath, content); werr == nil {
				entry.Path = export.TargetPath
			} else {
				result.fail(CategoryClientLog, export.Client, fmt.Sprintf("export %s: %v", export.LogName(), werr))
				continue
			}
		} else {
			entry.Content = content
		}
		result.ClientLogExports = append(result.ClientLogExports, entry)
	}
}

func writeExport(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func waitBefore(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunSuite executes every enabled context: iterations times each, with up
// to MaxRetries extra attempts per failed run and a grace pause between
// attempts. A later successful attempt supersedes the earlier failures of
// the same run. With FailFast set, the first run that exhausts its retries
// aborts the rest of the suite; the unexecuted runs are reported as
// skipped.
func (o *Orchestrator) RunSuite(ctx context.Context, contexts []RunContext) []RunResult {
	var results []RunResult
	abort := false

	for ci, rc := range contexts {
		if !rc.Enabled {
			continue
		}
		for iteration := 0; iteration < rc.iterations(); iteration++ {
			if abort || ctx.Err() != nil {
				results = append(results, skippedResult(rc, iteration))
				continue
			}
			if iteration > 0 {
				if err := waitBefore(ctx, rc.Interval); err != nil {
					results = append(results, skippedResult(rc, iteration))
					continue
				}
			}

			var last RunResult
			for attempt := 1; attempt <= 1+rc.MaxRetries; attempt++ {
				last = o.Run(ctx, rc, iteration, attempt)
				results = append(results, last)
				if last.Passed() || ctx.Err() != nil {
					break
				}
				if attempt <= rc.MaxRetries {
					if err := waitBefore(ctx, rc.GracePeriod); err != nil {
						break
					}
				}
			}

			if !last.Passed() && rc.FailFast {
				abort = true
			}
		}
		if abort {
			for _, rest := range contexts[ci+1:] {
				if !rest.Enabled {
					continue
				}
				for iteration := 0; iteration < rest.iterations(); iteration++ {
					results = append(results, skippedResult(rest, iteration))
				}
			}
			break
		}
	}
	return results
}

func skippedResult(rc RunContext, iteration int) RunResult {
	return RunResult{
		ID:        uuid.NewString(),
		Script:    rc.Name,
		Slug:      rc.Slug(),
		Tags:      rc.Tags,
		Iteration: iteration,
		Status:    StatusSkipped,
	}
}
