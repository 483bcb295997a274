package harness

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/leo-lp/rowwatch/internal/diff"
	"github.com/leo-lp/rowwatch/internal/store"
	"github.com/leo-lp/rowwatch/internal/tracker"
)

// cycleTimeout bounds the wait for a notification cycle per step.
const cycleTimeout = 2 * time.Second

// silenceWindow is how long a step expected to be silent is given to prove
// the harness wrong.
const silenceWindow = 150 * time.Millisecond

// Result is the outcome of running one scenario.
type Result struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	Errors       []string     `json:"errors,omitempty"`
}

// Passed reports whether every step expectation held.
func (r *Result) Passed() bool {
	return len(r.Errors) == 0
}

// TraceEvent is one entry in a scenario trace. Type is "initial", "change",
// or "silent".
type TraceEvent struct {
	Type   string           `json:"type"`
	Step   int              `json:"step,omitempty"`
	Seq    int64            `json:"seq,omitempty"`
	Before []map[string]any `json:"before,omitempty"`
	After  []map[string]any `json:"after,omitempty"`
	Ops    []TraceOp        `json:"ops,omitempty"`
}

// TraceOp is the trace rendering of one edit-script operation.
type TraceOp struct {
	Op     string         `json:"op"`
	Index  int            `json:"index,omitempty"`
	From   int            `json:"from,omitempty"`
	To     int            `json:"to,omitempty"`
	Record map[string]any `json:"record,omitempty"`
}

// recorder funnels observer callbacks into channels the harness can wait on.
type recorder struct {
	cycles chan cycle
	errs   chan error
}

type cycle struct {
	before *tracker.Snapshot[tracker.Row]
	after  *tracker.Snapshot[tracker.Row]
	script []diff.Op[tracker.Row]
}

func newRecorder() *recorder {
	return &recorder{
		cycles: make(chan cycle, 32),
		errs:   make(chan error, 32),
	}
}

func (r *recorder) observer() tracker.ChangeObserver[tracker.Row] {
	return tracker.ChangeObserver[tracker.Row]{
		DidChangeScript: func(before, after *tracker.Snapshot[tracker.Row], script []diff.Op[tracker.Row]) {
			r.cycles <- cycle{before: before, after: after, script: script}
		},
	}
}

func (r *recorder) waitCycle() (cycle, bool) {
	select {
	case c := <-r.cycles:
		return c, true
	case <-time.After(cycleTimeout):
		return cycle{}, false
	}
}

func (r *recorder) expectSilence() (cycle, bool) {
	select {
	case c := <-r.cycles:
		return c, false
	case <-time.After(silenceWindow):
		return cycle{}, true
	}
}

// Run executes a scenario against a fresh in-memory database and returns the
// trace plus any expectation failures.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	for i, ddl := range scenario.Schema {
		if _, err := st.DB().ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("schema[%d]: %w", i, err)
		}
	}
	for i, stmt := range scenario.Seed {
		if _, err := st.DB().ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
	}

	req := tracker.NewRowRequest(scenario.Request.Query, scenario.Request.Args...)
	req.Aliases = scenario.Request.Aliases

	comparator := diff.Comparator[tracker.Row, string]{
		Key:   tracker.RowKey(scenario.Request.KeyColumn),
		Equal: tracker.EqualColumns(scenario.Request.TrackedColumns...),
	}

	rec := newRecorder()
	tr := tracker.New(st, st, req, comparator)
	tr.TrackChanges(rec.observer())
	tr.TrackErrors(func(last *tracker.Snapshot[tracker.Row], err error) {
		rec.errs <- err
	})
	defer tr.Stop()

	if err := tr.Start(ctx); err != nil {
		return nil, fmt.Errorf("start tracker: %w", err)
	}

	result := &Result{ScenarioName: scenario.Name}

	initial, ok := rec.waitCycle()
	if !ok {
		return nil, fmt.Errorf("timed out waiting for the initial notification")
	}
	result.Trace = append(result.Trace, renderCycle("initial", 0, initial))

	for i, step := range scenario.Steps {
		if _, err := st.Exec(ctx, step.Write, step.Args...); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}

		if step.Expect != nil && step.Expect.Silent {
			c, silent := rec.expectSilence()
			if !silent {
				result.AddError(fmt.Sprintf(
					"steps[%d]: expected silence, got a cycle with %d ops", i, len(c.script)))
				result.Trace = append(result.Trace, renderCycle("change", i+1, c))
				continue
			}
			result.Trace = append(result.Trace, TraceEvent{Type: "silent", Step: i + 1})
			continue
		}

		c, ok := rec.waitCycle()
		if !ok {
			select {
			case err := <-rec.errs:
				return nil, fmt.Errorf("steps[%d]: re-fetch failed: %w", i, err)
			default:
			}
			return nil, fmt.Errorf("steps[%d]: timed out waiting for a cycle", i)
		}
		result.Trace = append(result.Trace, renderCycle("change", i+1, c))
		checkExpectations(result, i, step.Expect, c)
	}

	return result, nil
}

// AddError records an expectation failure.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// checkExpectations validates a cycle against a step's expect clause.
func checkExpectations(result *Result, step int, expect *ExpectClause, c cycle) {
	if expect == nil {
		return
	}

	if len(expect.Names) > 0 {
		col := expect.NameColumn
		if col == "" {
			col = "name"
		}
		var got []string
		for _, row := range c.after.Records() {
			got = append(got, fmt.Sprintf("%v", row.Get(col)))
		}
		if !slices.Equal(got, expect.Names) {
			result.AddError(fmt.Sprintf(
				"steps[%d]: display order %v, want %v", step, got, expect.Names))
		}
	}

	if len(expect.Ops) > 0 {
		var got []string
		for _, op := range c.script {
			got = append(got, op.Kind.String())
		}
		if !slices.Equal(got, expect.Ops) {
			result.AddError(fmt.Sprintf(
				"steps[%d]: edit script %v, want %v", step, got, expect.Ops))
		}
	}
}

// renderCycle converts a cycle into its trace form.
func renderCycle(kind string, step int, c cycle) TraceEvent {
	ev := TraceEvent{
		Type:  kind,
		Step:  step,
		Seq:   c.after.Seq(),
		After: renderRows(c.after),
	}
	if c.before != nil {
		ev.Before = renderRows(c.before)
	}
	for _, op := range c.script {
		top := TraceOp{Op: op.Kind.String()}
		switch op.Kind {
		case diff.OpMove:
			top.From = op.From
			top.To = op.To
		default:
			top.Index = op.Index
		}
		if op.Kind == diff.OpInsert || op.Kind == diff.OpUpdate {
			top.Record = map[string]any(op.Record)
		}
		ev.Ops = append(ev.Ops, top)
	}
	return ev
}

// renderRows flattens a snapshot into plain maps for JSON serialization.
// Always returns a non-nil slice so empty snapshots render as [].
func renderRows(snap *tracker.Snapshot[tracker.Row]) []map[string]any {
	rows := snap.Records()
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any(row))
	}
	return out
}
