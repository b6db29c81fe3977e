// Package guardrails runs metric outputs through the five guardrail stages
// (dependency gating, degradation tiering, provenance labeling, temporal
// sanity and cross-metric consistency), clamps the final confidence and
// checks the result for a valid representation. Every evaluation leaves an
// audit trace.
package guardrails

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/metric-guardrails/internal/audit"
	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/resolve"
	"github.com/sells-group/metric-guardrails/internal/rules"
	"github.com/sells-group/metric-guardrails/internal/validate"
)

// Confidence bounds enforced by the final clamp.
const (
	MinConfidence = 0.0
	MaxConfidence = 90.0
)

// DefaultConcurrency bounds ApplyRun fan-out when no limit is configured.
const DefaultConcurrency = 8

// Engine evaluates metric outputs against an immutable rule set. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	rules       *rules.RuleSet
	validator   *validate.Validator
	recorder    audit.Recorder
	concurrency int
	now         func() time.Time
	newID       func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder records every trace produced by ApplyRun.
func WithRecorder(r audit.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithConcurrency bounds the number of metrics ApplyRun evaluates at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithClock overrides the trace timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides trace ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an engine bound to a loaded rule set. The rule set is
// required: Apply panics with rules.ErrNotLoaded when it is nil.
func NewEngine(rs *rules.RuleSet, opts ...Option) *Engine {
	e := &Engine{
		rules:       rs,
		concurrency: DefaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
	if rs != nil {
		e.validator = validate.New(resolve.New(rs.Priority()))
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewEngineFromBarrier creates an engine from a completed load barrier.
// Calling it before the rule store has loaded panics.
func NewEngineFromBarrier(b *rules.Barrier, opts ...Option) *Engine {
	return NewEngine(b.MustRuleSet(), opts...)
}

// RuleSet returns the rule set the engine evaluates against.
func (e *Engine) RuleSet() *rules.RuleSet {
	return e.rules
}

// Apply runs one metric output through the five stages and the final clamp.
// prior is the same metric's output from the previous run, if any; all is
// every output of the current run. The input is never mutated.
func (e *Engine) Apply(out model.MetricOutput, cov model.CoverageSummary, prior *model.MetricOutput, all []model.MetricOutput) (model.MetricOutput, model.AuditTrace) {
	if e.rules == nil {
		panic(rules.ErrNotLoaded)
	}

	ev := &evaluation{
		trace: model.AuditTrace{
			ID:                e.newID(),
			UserID:            cov.UserID,
			SubmissionID:      cov.SubmissionID,
			RunID:             cov.RunID,
			MetricID:          out.MetricID,
			CreatedAt:         e.now(),
			RulesVersion:      e.rules.Version(),
			InitialConfidence: out.Confidence(),
		},
		log: zap.L().With(
			zap.String("component", "guardrails"),
			zap.String("run_id", cov.RunID),
			zap.String("metric_id", string(out.MetricID)),
		),
	}

	cur := out.WithConfidence(out.Confidence())
	cur = e.gate(cur, cov, ev)
	cur = e.degrade(cur, cov, ev)
	cur = e.label(cur, ev)
	cur = e.checkTemporal(cur, prior, ev)
	cur = e.checkConsistency(cur, all, ev)
	cur = e.clamp(cur, ev)
	cur = e.checkRepresentation(cur, ev)

	ev.trace.FinalConfidence = cur.Confidence()
	recordEvaluation(ev.trace)
	return cur, ev.trace
}

func (e *Engine) clamp(out model.MetricOutput, ev *evaluation) model.MetricOutput {
	before := out.Confidence()
	after := math.Min(MaxConfidence, math.Max(MinConfidence, before))
	if after == before {
		ev.constraint("confidence_bounds", model.ConstraintPass, fmt.Sprintf("%.2f within [0,90]", before))
		return out
	}
	ev.constraint("confidence_bounds", model.ConstraintSoftFail, fmt.Sprintf("%.2f clamped to %.2f", before, after))
	ev.adjust(model.StageFinalClamp, before, after, "clamped to [0,90]")
	return out.WithConfidence(after)
}

func (e *Engine) checkRepresentation(out model.MetricOutput, ev *evaluation) model.MetricOutput {
	res := e.validator.Validate(out.ConfidencePercent, out.Payload)

	ev.trace.Resolution = model.ResolutionRecord{
		Mode:              res.Mode,
		RenderMode:        res.Mode.RenderMode(),
		AvailableModes:    res.Available,
		IsDefect:          res.IsDefect,
		MustForceFallback: res.MustForceFallback,
		Warnings:          res.Warnings,
	}

	next := out.Clone()
	next.RenderMode = res.Mode.RenderMode()
	if res.IsDefect {
		ev.log.Warn("guardrails: positive confidence with no valid representation",
			zap.Float64("confidence", out.Confidence()),
			zap.Strings("reasons", res.FailureReasons),
		)
	}
	return next
}

// evaluation accumulates the trace for one Apply call.
type evaluation struct {
	trace model.AuditTrace
	log   *zap.Logger
}

func (ev *evaluation) stage(name model.StageName, before, after float64, noOp bool, note string) {
	ev.trace.Stages = append(ev.trace.Stages, model.StageRecord{
		Stage:  name,
		Before: before,
		After:  after,
		NoOp:   noOp,
		Note:   note,
	})
	ev.log.Debug("guardrails: stage complete",
		zap.String("stage", string(name)),
		zap.Float64("before", before),
		zap.Float64("after", after),
		zap.Bool("no_op", noOp),
		zap.String("note", note),
	)
}

func (ev *evaluation) adjust(name model.StageName, before, after float64, reason string) {
	ev.trace.ConfidenceAdjustments = append(ev.trace.ConfidenceAdjustments, model.ConfidenceAdjustment{
		Stage:  name,
		Before: before,
		After:  after,
		Reason: reason,
	})
}

func (ev *evaluation) constraint(name string, outcome model.ConstraintOutcome, notes string) {
	ev.trace.ConstraintsApplied = append(ev.trace.ConstraintsApplied, model.ConstraintResult{
		Name:   name,
		Result: outcome,
		Notes:  notes,
	})
}

// appendFlags adds flags not already present, preserving order.
func appendFlags(existing []string, flags ...string) []string {
	out := existing
	for _, f := range flags {
		dup := false
		for _, e := range out {
			if e == f {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}
