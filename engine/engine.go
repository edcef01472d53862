// Package engine wires the monitoring pipeline: validation, liveness,
// health evaluation, windowed memory, decisions, incidents, healing,
// explanation, and event publishing.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/vinayprograms/fleetkit/bus"
	"github.com/vinayprograms/fleetkit/config"
	"github.com/vinayprograms/fleetkit/decision"
	fkerrors "github.com/vinayprograms/fleetkit/errors"
	"github.com/vinayprograms/fleetkit/explain"
	"github.com/vinayprograms/fleetkit/healing"
	"github.com/vinayprograms/fleetkit/health"
	"github.com/vinayprograms/fleetkit/history"
	"github.com/vinayprograms/fleetkit/incident"
	"github.com/vinayprograms/fleetkit/liveness"
	"github.com/vinayprograms/fleetkit/logging"
	"github.com/vinayprograms/fleetkit/ratelimit"
	"github.com/vinayprograms/fleetkit/registry"
	"github.com/vinayprograms/fleetkit/report"
	"github.com/vinayprograms/fleetkit/shutdown"
	"github.com/vinayprograms/fleetkit/telemetry"
)

// DefaultCollaboratorTimeout bounds each health/healer call.
const DefaultCollaboratorTimeout = 5 * time.Second

// Options overrides the pieces built from configuration. Nil fields get
// built-in implementations.
type Options struct {
	Config *config.Config
	Logger *logging.Logger

	// Evaluator replaces the built-in rolling-baseline evaluator.
	Evaluator health.Evaluator

	// Healer replaces the built-in auto-healer.
	Healer healing.Healer

	// ExplainProvider enables LLM phrasing. Nil keeps the template.
	ExplainProvider explain.Provider

	// Bus replaces the in-memory bus.
	Bus bus.MessageBus

	// Exporter replaces the noop telemetry exporter.
	Exporter telemetry.Exporter

	// CollaboratorTimeout bounds health and healer calls.
	CollaboratorTimeout time.Duration
}

// Outcome is the result of ingesting one report.
type Outcome struct {
	Decision    decision.Decision
	Explanation string

	// Incident is set when the report moved the node's risk level.
	Incident *incident.Incident

	// Liveness carries the connection bookkeeping for this report.
	Liveness liveness.Observation
}

// Service runs the full monitoring pipeline for a fleet.
type Service struct {
	cfg     *config.Config
	log     *logging.Logger
	timeout time.Duration

	validator *report.Validator
	limiter   *ratelimit.Limiter
	reg       *registry.Registry
	tracker   *liveness.Tracker
	evaluator health.Evaluator
	decider   *decision.Engine
	incidents *incident.Tracker
	search    *incident.SearchIndex
	healer    healing.Healer
	explainer *explain.Engine
	mbus      bus.MessageBus
	publisher *bus.Publisher
	exporter  telemetry.Exporter
	coord     *shutdown.Coordinator

	// ownHealer is set when the service built the auto-healer itself and
	// is responsible for stopping it.
	ownHealer *healing.AutoHealer

	mu        sync.Mutex
	nodeLocks map[string]*sync.Mutex

	now func() time.Time
}

// New builds a service from configuration and options.
func New(opts Options) (*Service, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logging.New()
	}

	timeout := opts.CollaboratorTimeout
	if timeout <= 0 {
		timeout = DefaultCollaboratorTimeout
	}

	s := &Service{
		cfg:       cfg,
		log:       log.WithComponent("engine"),
		timeout:   timeout,
		validator: report.NewValidator(report.ValidatorConfig{MetricsStaleness: cfg.Report.MaxAge}),
		limiter:   ratelimit.New(cfg.Report.MaxPerMinute, time.Minute),
		reg:       registry.New(registry.Config{WindowCapacity: cfg.Health.WindowCapacity}),
		nodeLocks: make(map[string]*sync.Mutex),
		now:       time.Now,
	}

	tracker, err := liveness.New(s.reg, cfg.LivenessConfig(), log)
	if err != nil {
		return nil, err
	}
	s.tracker = tracker

	s.evaluator = opts.Evaluator
	if s.evaluator == nil {
		s.evaluator = health.NewRollingEvaluator(cfg.RollingConfig())
	}

	decider, err := decision.New(cfg.DecisionConfig(), log)
	if err != nil {
		return nil, err
	}
	s.decider = decider

	s.incidents = incident.New(cfg.Incident.Capacity, log)
	search, err := incident.NewSearchIndex()
	if err != nil {
		return nil, err
	}
	s.search = search

	s.healer = opts.Healer
	if s.healer == nil {
		hcfg := cfg.HealingConfig()
		hcfg.Probe = s.probe
		healer := healing.NewAutoHealer(hcfg, log)
		s.healer = healer
		s.ownHealer = healer
	}

	s.explainer = explain.New(explain.Config{
		Provider:      opts.ExplainProvider,
		Timeout:       cfg.Explain.Timeout,
		CacheCapacity: cfg.Explain.CacheCapacity,
	}, log)

	s.mbus = opts.Bus
	if s.mbus == nil {
		s.mbus = bus.NewMemoryBus(bus.Config{BufferSize: cfg.Bus.BufferSize})
	}
	s.publisher = bus.NewPublisher(s.mbus)

	s.exporter = opts.Exporter
	if s.exporter == nil {
		exporter, err := telemetry.NewExporter(cfg.Telemetry.Protocol, cfg.Telemetry.Endpoint)
		if err != nil {
			return nil, err
		}
		s.exporter = exporter
	}

	s.tracker.OnTransition(s.onTransition)

	s.coord = shutdown.NewCoordinator(0)
	s.coord.RegisterFunc("liveness-sweep", 10, func(ctx context.Context) error {
		err := s.tracker.Stop()
		if err == liveness.ErrNotStarted {
			return nil
		}
		return err
	})
	if s.ownHealer != nil {
		s.coord.RegisterFunc("healer", 20, func(ctx context.Context) error {
			s.ownHealer.Stop()
			return nil
		})
	}
	s.coord.RegisterFunc("telemetry", 30, func(ctx context.Context) error {
		return s.exporter.Close()
	})
	s.coord.RegisterFunc("search-index", 30, func(ctx context.Context) error {
		return s.search.Close()
	})
	s.coord.RegisterFunc("bus", 40, func(ctx context.Context) error {
		return s.mbus.Close()
	})

	return s, nil
}

// Start launches the liveness sweep.
func (s *Service) Start() error {
	return s.tracker.Start()
}

// Stop tears the service down in order: sweep, healer, exporters, bus.
func (s *Service) Stop(ctx context.Context) error {
	return s.coord.Shutdown(ctx)
}

// Ingest runs one report through the pipeline. The returned error is
// non-nil only for rejected reports; collaborator failures degrade the
// decision instead.
func (s *Service) Ingest(ctx context.Context, r *report.Report) (*Outcome, error) {
	now := s.now()

	if err := s.validator.Validate(r, now); err != nil {
		nodeID := ""
		if r != nil {
			nodeID = r.NodeID
		}
		s.log.ReportRejected(nodeID, err.Error())
		s.exporter.LogEvent(telemetry.EventReportRejected, map[string]interface{}{
			"node_id": nodeID,
			"reason":  err.Error(),
		})
		return nil, err
	}

	if !s.limiter.Allow(r.NodeID) {
		err := fkerrors.New(fkerrors.ErrCodeRateLimited,
			"node exceeded its report budget", fkerrors.WithNodeID(r.NodeID))
		s.log.ReportRejected(r.NodeID, err.Error())
		s.exporter.LogEvent(telemetry.EventReportRejected, map[string]interface{}{
			"node_id": r.NodeID,
			"reason":  "rate limited",
		})
		return nil, err
	}

	node, err := s.reg.GetOrCreate(r.NodeID, r.Hostname, now)
	if err != nil {
		return nil, err
	}
	s.exporter.LogEvent(telemetry.EventReportAccepted, map[string]interface{}{
		"node_id": r.NodeID,
	})

	// Per-node ingest lock keeps one node's reports in arrival order. It
	// is released before every collaborator call.
	lk := s.nodeLock(r.NodeID)

	lk.Lock()
	obs := s.tracker.Observe(node, r)
	lk.Unlock()

	if obs.Transition != nil {
		s.onTransition(*obs.Transition)
	}

	assessment, err := s.evaluate(ctx, r)
	if err != nil {
		s.log.CollaboratorError(r.NodeID, "health", err)
		d := s.decider.Degrade(r.NodeID, now, "health collaborator unavailable")
		explanation := s.explainer.Explain(ctx, d)
		s.notifyHealer(ctx, d)
		s.publishDecision(d, explanation)
		return &Outcome{Decision: d, Explanation: explanation, Liveness: obs}, nil
	}

	lk.Lock()
	node.Observe(history.Observation{
		Timestamp:    now,
		HealthScore:  assessment.HealthScore,
		RiskLevel:    assessment.RiskLevel,
		AnomalyScore: assessment.AnomalyScore,
	})
	window := node.WindowSnapshot()
	windowCap := s.windowCap()
	lk.Unlock()

	signal := s.healingSignal(ctx, r.NodeID, assessment)

	d := s.decider.Decide(decision.Input{
		NodeID:     r.NodeID,
		Window:     window,
		WindowCap:  windowCap,
		Assessment: assessment,
		CPU:        r.Metrics.CPU,
		Healing:    signal,
		Now:        now,
	})

	node.SetActivity(activityForTrend(d.Trend))

	var inc *incident.Incident
	rootCause := ""
	if assessment.RootCause != nil {
		rootCause = string(assessment.RootCause.Label)
	}
	if recorded, changed := s.incidents.Record(r.NodeID, assessment.RiskLevel, assessment.HealthScore, rootCause, now); changed {
		inc = recorded
		if err := s.search.Add(*recorded); err != nil {
			s.log.Warn("incident_index_failed", map[string]interface{}{
				"node":  r.NodeID,
				"error": err.Error(),
			})
		}
		if err := s.publisher.Incident(*recorded); err != nil {
			s.log.Warn("incident_publish_failed", map[string]interface{}{
				"node":  r.NodeID,
				"error": err.Error(),
			})
		}
		s.exporter.LogEvent(telemetry.EventIncident, map[string]interface{}{
			"node_id": recorded.NodeID,
			"from":    string(recorded.From),
			"to":      string(recorded.To),
		})
	}

	explanation := s.explainer.Explain(ctx, d)

	s.notifyHealer(ctx, d)

	s.publishDecision(d, explanation)

	return &Outcome{
		Decision:    d,
		Explanation: explanation,
		Incident:    inc,
		Liveness:    obs,
	}, nil
}

// Views returns a point-in-time copy of every node, sorted by ID.
func (s *Service) Views() []registry.NodeView {
	return s.reg.Views()
}

// History returns recent decisions across the fleet, newest first.
func (s *Service) History(limit int) []decision.Decision {
	return s.decider.History(limit)
}

// Timeline returns recent incidents, newest first.
func (s *Service) Timeline(limit int) []incident.Incident {
	return s.incidents.Timeline(limit)
}

// Incidents returns one node's incidents, newest first.
func (s *Service) Incidents(nodeID string) []incident.Incident {
	return s.incidents.ForNode(nodeID)
}

// SearchIncidents runs a text query over recorded incidents and returns
// matching incident IDs.
func (s *Service) SearchIncidents(query string, limit int) ([]string, error) {
	return s.search.Search(query, limit)
}

// Bus exposes the event bus for subscribers.
func (s *Service) Bus() bus.MessageBus {
	return s.mbus
}

// Registry exposes the node registry for read access.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

func (s *Service) nodeLock(nodeID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.nodeLocks[nodeID]
	if !ok {
		lk = &sync.Mutex{}
		s.nodeLocks[nodeID] = lk
	}
	return lk
}

func (s *Service) windowCap() int {
	if s.cfg.Health.WindowCapacity > 0 {
		return s.cfg.Health.WindowCapacity
	}
	return history.DefaultCapacity
}

func (s *Service) evaluate(ctx context.Context, r *report.Report) (health.Assessment, error) {
	ectx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	assessment, err := s.evaluator.Evaluate(ectx, r.NodeID, r.Metrics)
	if err != nil {
		return health.Assessment{}, fkerrors.Wrap(err, "health evaluation failed",
			fkerrors.WithNodeID(r.NodeID))
	}
	return assessment, nil
}

// healingSignal pre-fetches the remediation collaborator's answer so the
// decision engine never calls out itself.
func (s *Service) healingSignal(ctx context.Context, nodeID string, a health.Assessment) *decision.HealingSignal {
	if a.RootCause == nil {
		return &decision.HealingSignal{}
	}

	hctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	action, err := s.healer.Eligible(hctx, nodeID, a.RootCause.Label)
	if err != nil {
		s.log.CollaboratorError(nodeID, "healing", err)
		return &decision.HealingSignal{Err: err}
	}
	return &decision.HealingSignal{
		EligibleAction: action,
		InFlight:       s.healer.InFlight(nodeID),
	}
}

// notifyHealer forwards every decision, degraded cycles included, so the
// healer's adaptive interval tracks the full stream.
func (s *Service) notifyHealer(ctx context.Context, d decision.Decision) {
	nctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.healer.Notify(nctx, d); err != nil {
		s.log.CollaboratorError(d.NodeID, "healing", err)
	}
}

func (s *Service) publishDecision(d decision.Decision, explanation string) {
	if err := s.publisher.Decision(bus.DecisionEvent{Decision: d, Explanation: explanation}); err != nil {
		s.log.Warn("decision_publish_failed", map[string]interface{}{
			"node":  d.NodeID,
			"error": err.Error(),
		})
	}
	s.exporter.LogEvent(telemetry.EventDecision, map[string]interface{}{
		"node_id":    d.NodeID,
		"kind":       string(d.Kind),
		"trend":      string(d.Trend),
		"confidence": d.Confidence,
	})
}

func (s *Service) onTransition(e liveness.Event) {
	if err := s.publisher.Connection(bus.ConnectionEvent{NodeID: e.NodeID, State: e.State, At: e.At}); err != nil {
		s.log.Warn("connection_publish_failed", map[string]interface{}{
			"node":  e.NodeID,
			"error": err.Error(),
		})
	}
	s.exporter.LogEvent(telemetry.EventConnection, map[string]interface{}{
		"node_id": e.NodeID,
		"state":   string(e.State),
	})
}

// probe backs the auto-healer's verification loop with the node's most
// recent windowed risk level.
func (s *Service) probe(ctx context.Context, nodeID string) (health.RiskLevel, error) {
	node, err := s.reg.Get(nodeID)
	if err != nil {
		return "", err
	}
	window := node.WindowSnapshot()
	if len(window) == 0 {
		return health.RiskNormal, nil
	}
	return window[len(window)-1].RiskLevel, nil
}

func activityForTrend(t decision.Trend) registry.AgentStatus {
	switch t {
	case decision.TrendDegrading, decision.TrendCriticalDecline:
		return registry.StatusDegraded
	case decision.TrendImproving:
		return registry.StatusRecovering
	default:
		return registry.StatusActive
	}
}
