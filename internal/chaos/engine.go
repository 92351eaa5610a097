// internal/chaos/engine.go
package chaos

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrSteadyStateInvalid = errors.New("steady state invalid - aborting experiment")

// Experiment defines a chaos engineering test.
type Experiment struct {
	Name       string
	Hypothesis string
	// SteadyState must hold before injection and is watched throughout.
	SteadyState []Metric
	// Observe is sampled during the experiment without a threshold.
	Observe    []Metric
	Method     []Action
	Rollback   []Action
	Validation []Assertion
	Duration   time.Duration
}

// Metric defines a measurable system property.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Action represents a fault injection or recovery action.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion validates experiment outcome against the last observation.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// Result captures experiment execution data.
type Result struct {
	ExperimentName   string                 `json:"experiment_name"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []MetricViolation      `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
	FailedAssertions []string               `json:"failed_assertions,omitempty"`
	MTTR             *time.Duration         `json:"mttr,omitempty"`
}

type MetricViolation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Engine orchestrates chaos experiments.
type Engine struct {
	tracer   trace.Tracer
	logger   *zap.Logger
	interval time.Duration
	pause    time.Duration

	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

// Option tunes an Engine.
type Option func(*Engine)

// WithSampleInterval sets how often metrics are sampled while observing.
func WithSampleInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithPause sets the wait between game day scenarios.
func WithPause(d time.Duration) Option {
	return func(e *Engine) { e.pause = d }
}

func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		tracer:   otel.Tracer("bookswap/chaos"),
		logger:   logger,
		interval: time.Second,
		pause:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds an experiment to the suite.
func (e *Engine) Register(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Run executes a single experiment: steady state check, injection,
// observation, rollback, then assertions.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &Result{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
		ErrorEvents:    make([]ErrorEvent, 0),
	}

	span.AddEvent("validating_steady_state")
	if violations := e.checkSteadyState(ctx, exp.SteadyState); len(violations) > 0 {
		result.Violations = violations
		result.EndTime = time.Now()
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_assertions")
	result.FailedAssertions = validate(exp.Validation, result)
	result.HypothesisHeld = len(result.FailedAssertions) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

// observe samples every metric until the experiment duration elapses. The
// final sample is always taken so short experiments still have data.
func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	observationCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var recoveryStart time.Time
	recovered := false
	sample := func() {
		for _, m := range exp.Observe {
			if v, ok := e.query(ctx, m, result); ok {
				result.observe(m.Name, v)
			}
		}
		for _, m := range exp.SteadyState {
			v, ok := e.query(ctx, m, result)
			if !ok {
				continue
			}
			result.observe(m.Name, v)
			if !m.Threshold.holds(v) {
				if recoveryStart.IsZero() {
					recoveryStart = time.Now()
				}
				result.Violations = append(result.Violations, MetricViolation{
					MetricName: m.Name,
					Expected:   m.Threshold.Value,
					Actual:     v,
					Timestamp:  time.Now(),
				})
			} else if !recoveryStart.IsZero() && !recovered {
				mttr := time.Since(recoveryStart)
				result.MTTR = &mttr
				recovered = true
			}
		}
	}

	for {
		select {
		case <-observationCtx.Done():
			sample()
			return
		case <-ticker.C:
			sample()
		}
	}
}

func (e *Engine) query(ctx context.Context, m Metric, result *Result) (float64, bool) {
	v, err := m.Query(ctx)
	if err != nil {
		result.recordError(m.Name, err)
		return 0, false
	}
	return v, true
}

func (e *Engine) checkSteadyState(ctx context.Context, metrics []Metric) []MetricViolation {
	var violations []MetricViolation
	for _, m := range metrics {
		v, err := m.Query(ctx)
		if err != nil {
			e.logger.Warn("steady state probe failed", zap.String("metric", m.Name), zap.Error(err))
			v = -1
		}
		if err != nil || !m.Threshold.holds(v) {
			violations = append(violations, MetricViolation{
				MetricName: m.Name,
				Expected:   m.Threshold.Value,
				Actual:     v,
				Timestamp:  time.Now(),
			})
		}
	}
	return violations
}

func (t Threshold) holds(v float64) bool {
	switch t.Operator {
	case ">":
		return v > t.Value
	case "<":
		return v < t.Value
	case ">=":
		return v >= t.Value
	case "<=":
		return v <= t.Value
	case "==":
		return v == t.Value
	default:
		return false
	}
}

// validate returns the messages of the assertions that did not hold.
func validate(assertions []Assertion, result *Result) []string {
	var failed []string
	for _, a := range assertions {
		points := result.Observations[a.Metric]
		if len(points) == 0 || !a.Condition(points[len(points)-1].Value) {
			failed = append(failed, a.Message)
		}
	}
	return failed
}

func (r *Result) observe(metric string, v float64) {
	r.Observations[metric] = append(r.Observations[metric], DataPoint{Timestamp: time.Now(), Value: v})
}

func (r *Result) recordError(component string, err error) {
	r.ErrorEvents = append(r.ErrorEvents, ErrorEvent{
		Timestamp: time.Now(),
		Error:     err.Error(),
		Component: component,
	})
}

// GameDay is a named series of experiments.
type GameDay struct {
	Name      string
	Date      time.Time
	Scenarios []Experiment
}

// ExecuteGameDay runs every scenario in order and reports whether all
// hypotheses held. A scenario that cannot start is logged and skipped.
func (e *Engine) ExecuteGameDay(ctx context.Context, day GameDay) bool {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", day.Name)),
	)
	defer span.End()

	e.logger.Info("starting game day", zap.String("name", day.Name), zap.Time("date", day.Date))

	allHeld := true
	for i, scenario := range day.Scenarios {
		if i > 0 && !sleep(ctx, e.pause) {
			return false
		}

		e.logger.Info("running experiment",
			zap.Int("index", i+1),
			zap.Int("of", len(day.Scenarios)),
			zap.String("name", scenario.Name),
			zap.String("hypothesis", scenario.Hypothesis),
		)

		result, err := e.Run(ctx, scenario)
		if err != nil {
			allHeld = false
			e.logger.Error("experiment failed", zap.String("name", scenario.Name), zap.Error(err))
			continue
		}
		e.report(result)
		allHeld = allHeld && result.HypothesisHeld
	}
	return allHeld
}

func (e *Engine) report(result *Result) {
	fields := []zap.Field{
		zap.String("name", result.ExperimentName),
		zap.Bool("hypothesis_held", result.HypothesisHeld),
		zap.Int("violations", len(result.Violations)),
		zap.Int("errors", len(result.ErrorEvents)),
		zap.Duration("duration", result.Duration),
	}
	if result.MTTR != nil {
		fields = append(fields, zap.Duration("mttr", *result.MTTR))
	}
	if result.HypothesisHeld {
		e.logger.Info("hypothesis held", fields...)
		return
	}
	e.logger.Warn("hypothesis violated", append(fields, zap.Strings("failed", result.FailedAssertions))...)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
