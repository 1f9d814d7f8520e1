package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"courier_mesh/internal/agent"
	"courier_mesh/internal/domain"
	"courier_mesh/internal/messaging/inproc"
)

var (
	ErrNotFound        = errors.New("agent not found")
	ErrAlreadyExists   = errors.New("agent already exists")
	ErrAlreadyInactive = errors.New("agent is already inactive")
	ErrReleasePending  = errors.New("agent release is still pending")
	ErrNotDeactivated  = errors.New("agent must be deactivated before it is destroyed")
	ErrStopped         = errors.New("coordinator is not running")
)

type Store interface {
	RecordObservation(ctx context.Context, obs domain.Observation) error
	UpsertAgent(ctx context.Context, entry domain.RegistryEntry, spec []byte) error
	SetAgentState(ctx context.Context, id string, active, releasing bool) error
	DeleteAgent(ctx context.Context, id string) error
}

type Policy interface {
	CheckWorker(spec domain.WorkerSpec) error
	CheckJob(spec domain.JobSpec) error
	MaxRouteLen() int
}

type Config struct {
	ReplanDebounce time.Duration
	StatusTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReplanDebounce <= 0 {
		c.ReplanDebounce = time.Second
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = 2 * time.Second
	}
	return c
}

// Service is the coordinator. It owns the agent registry and is the only
// component that spawns or stops Worker and Job agents. Registry state is
// touched by the inbox goroutine alone.
type Service struct {
	store  Store
	policy Policy
	cfg    Config
	logger *log.Logger

	inbox   *inproc.Bus[domain.CoordinatorMessage]
	workers *inproc.Bus[domain.WorkerMessage]
	jobs    *inproc.Bus[domain.JobMessage]

	wg sync.WaitGroup

	entries []*domain.RegistryEntry
	index   map[string]*domain.RegistryEntry

	lastReplan    time.Time
	replanPending bool
	replanTimer   *time.Timer
	now           func() time.Time
}

func New(store Store, policy Policy, cfg Config, logger *log.Logger) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:   store,
		policy:  policy,
		cfg:     cfg,
		logger:  logger,
		inbox:   inproc.New[domain.CoordinatorMessage](),
		workers: inproc.New[domain.WorkerMessage](),
		jobs:    inproc.New[domain.JobMessage](),
		index:   make(map[string]*domain.RegistryEntry),
		now:     time.Now,
	}
}

func (s *Service) Start(ctx context.Context) {
	mb := s.inbox.Register(domain.CoordinatorID)
	s.wg.Add(1)
	go s.coordinatorInboxLoop(ctx, mb)
}

// Wait blocks until the coordinator and every agent it spawned have exited.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) CreateWorker(ctx context.Context, spec domain.WorkerSpec) (string, error) {
	return s.command(ctx, func(reply chan<- domain.CommandResult) domain.CoordinatorMessage {
		return domain.CreateWorker{Spec: spec, Reply: reply}
	})
}

func (s *Service) CreateJob(ctx context.Context, spec domain.JobSpec) (string, error) {
	return s.command(ctx, func(reply chan<- domain.CommandResult) domain.CoordinatorMessage {
		return domain.CreateJob{Spec: spec, Reply: reply}
	})
}

func (s *Service) ActivateWorker(ctx context.Context, id string) error {
	_, err := s.command(ctx, func(reply chan<- domain.CommandResult) domain.CoordinatorMessage {
		return domain.ActivateWorker{ID: id, Reply: reply}
	})
	return err
}

func (s *Service) ActivateJob(ctx context.Context, id string) error {
	_, err := s.command(ctx, func(reply chan<- domain.CommandResult) domain.CoordinatorMessage {
		return domain.ActivateJob{ID: id, Reply: reply}
	})
	return err
}

// DeactivateWorker starts the release of a worker. The entry turns inactive
// once the worker has handed back every job it holds.
func (s *Service) DeactivateWorker(ctx context.Context, id string) error {
	_, err := s.command(ctx, func(reply chan<- domain.CommandResult) domain.CoordinatorMessage {
		return domain.DeactivateWorker{ID: id, Reply: reply}
	})
	return err
}

func (s *Service) DeactivateJob(ctx context.Context, id string) error {
	_, err := s.command(ctx, func(reply chan<- domain.CommandResult) domain.CoordinatorMessage {
		return domain.DeactivateJob{ID: id, Reply: reply}
	})
	return err
}

func (s *Service) DestroyWorker(ctx context.Context, id string) error {
	_, err := s.command(ctx, func(reply chan<- domain.CommandResult) domain.CoordinatorMessage {
		return domain.DestroyWorker{ID: id, Reply: reply}
	})
	return err
}

func (s *Service) DestroyJob(ctx context.Context, id string) error {
	_, err := s.command(ctx, func(reply chan<- domain.CommandResult) domain.CoordinatorMessage {
		return domain.DestroyJob{ID: id, Reply: reply}
	})
	return err
}

func (s *Service) DumpStatus(ctx context.Context) (domain.StatusReport, error) {
	reply := make(chan domain.StatusReport, 1)
	if err := s.inbox.Publish(domain.CoordinatorID, domain.DumpStatus{Reply: reply}); err != nil {
		return domain.StatusReport{}, ErrStopped
	}
	select {
	case report := <-reply:
		return report, nil
	case <-ctx.Done():
		return domain.StatusReport{}, ctx.Err()
	}
}

func (s *Service) Registry(ctx context.Context) ([]domain.RegistryEntry, error) {
	reply := make(chan []domain.RegistryEntry, 1)
	if err := s.inbox.Publish(domain.CoordinatorID, domain.ListRegistry{Reply: reply}); err != nil {
		return nil, ErrStopped
	}
	select {
	case entries := <-reply:
		return entries, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) command(ctx context.Context, build func(chan<- domain.CommandResult) domain.CoordinatorMessage) (string, error) {
	reply := make(chan domain.CommandResult, 1)
	if err := s.inbox.Publish(domain.CoordinatorID, build(reply)); err != nil {
		return "", ErrStopped
	}
	select {
	case res := <-reply:
		return res.ID, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Service) coordinatorInboxLoop(ctx context.Context, mb *inproc.Mailbox[domain.CoordinatorMessage]) {
	defer s.wg.Done()
	defer func() {
		if s.replanTimer != nil {
			s.replanTimer.Stop()
		}
		for _, msg := range s.inbox.Unregister(domain.CoordinatorID) {
			answerStopped(msg)
		}
	}()
	for {
		msg, ok := mb.Receive(ctx)
		if !ok {
			return
		}
		s.handleCoordinatorMessage(ctx, msg)
	}
}

func (s *Service) handleCoordinatorMessage(ctx context.Context, msg domain.CoordinatorMessage) {
	switch m := msg.(type) {
	case domain.CreateWorker:
		id, err := s.createWorker(ctx, m.Spec)
		reply(m.Reply, id, err)
		if err == nil {
			s.sweep(ctx, "worker "+id+" created")
		}
	case domain.CreateJob:
		id, err := s.createJob(ctx, m.Spec)
		reply(m.Reply, id, err)
		if err == nil {
			s.solicit(id, domain.RoundModeInsertion)
		}
	case domain.ActivateWorker:
		reply(m.Reply, m.ID, s.activateWorker(ctx, m.ID))
	case domain.ActivateJob:
		reply(m.Reply, m.ID, s.activateJob(ctx, m.ID))
	case domain.DeactivateWorker:
		reply(m.Reply, m.ID, s.deactivate(ctx, m.ID, domain.AgentKindWorker))
	case domain.DeactivateJob:
		reply(m.Reply, m.ID, s.deactivate(ctx, m.ID, domain.AgentKindJob))
	case domain.DestroyWorker:
		reply(m.Reply, m.ID, s.destroy(ctx, m.ID, domain.AgentKindWorker))
	case domain.DestroyJob:
		reply(m.Reply, m.ID, s.destroy(ctx, m.ID, domain.AgentKindJob))
	case domain.DumpStatus:
		s.dumpStatus(ctx, m.Reply)
	case domain.ListRegistry:
		if m.Reply != nil {
			m.Reply <- s.snapshot()
		}
	case domain.JobPlanned:
		s.logger.Printf("job %s planned on worker %s with profit %.2f", m.JobID, m.WorkerID, m.Income)
		s.record(ctx, domain.Observation{
			Kind:     domain.ObservationJobPlanned,
			JobID:    m.JobID,
			WorkerID: m.WorkerID,
			Profit:   m.Income,
			Detail:   fmt.Sprintf("job %s planned on worker %s with profit %.2f", m.JobID, m.WorkerID, m.Income),
		}, map[string]any{"income": m.Income, "total": m.Total})
	case domain.JobNotPlanned:
		s.logger.Printf("job %s not planned", m.JobID)
		s.record(ctx, domain.Observation{
			Kind:   domain.ObservationJobNotPlanned,
			JobID:  m.JobID,
			Detail: fmt.Sprintf("job %s not planned", m.JobID),
		}, nil)
	case domain.JobCommitRejected:
		s.logger.Printf("job %s commit on worker %s rejected: %s", m.JobID, m.WorkerID, m.Reason)
		s.record(ctx, domain.Observation{
			Kind:     domain.ObservationCommitRejected,
			JobID:    m.JobID,
			WorkerID: m.WorkerID,
			Detail:   m.Reason,
		}, nil)
	case domain.ReplacementRequested:
		if e := s.lookup(m.JobID, domain.AgentKindJob); e != nil && e.Active && !e.Releasing {
			s.solicit(m.JobID, domain.RoundModeReplacement)
		}
	case domain.ReplanRequested:
		s.logger.Printf("job %s evicted from worker %s, replan requested", m.JobID, m.WorkerID)
		s.requestReplan(ctx)
	case domain.ReplanTick:
		s.replanPending = false
		s.lastReplan = s.now()
		s.sweep(ctx, "deferred eviction replan")
	case domain.WorkerReleased:
		s.workerReleased(ctx, m)
	case domain.JobReleased:
		s.jobReleased(ctx, m)
	default:
		s.logger.Printf("coordinator ignored message %T", msg)
	}
}

func (s *Service) createWorker(ctx context.Context, spec domain.WorkerSpec) (string, error) {
	if strings.TrimSpace(spec.ID) == "" {
		spec.ID = uuid.NewString()
	}
	if strings.TrimSpace(spec.Name) == "" {
		spec.Name = spec.ID
	}
	if err := s.policy.CheckWorker(spec); err != nil {
		return "", err
	}
	if s.index[spec.ID] != nil || s.workers.Registered(spec.ID) {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, spec.ID)
	}

	w := agent.NewWorker(spec, s.policy.MaxRouteLen(), s.workers, s.jobs, s.inbox, s.store, s.logger)
	w.Start(ctx, &s.wg)
	s.register(ctx, domain.AgentKindWorker, spec.ID, spec.Name, mustJSON(spec))
	s.record(ctx, domain.Observation{
		Kind:     domain.ObservationWorkerCreated,
		WorkerID: spec.ID,
		Detail:   fmt.Sprintf("worker %s (%s) created", spec.ID, spec.Name),
	}, spec)
	return spec.ID, nil
}

func (s *Service) createJob(ctx context.Context, spec domain.JobSpec) (string, error) {
	if strings.TrimSpace(spec.ID) == "" {
		spec.ID = uuid.NewString()
	}
	if err := s.policy.CheckJob(spec); err != nil {
		return "", err
	}
	if s.index[spec.ID] != nil || s.jobs.Registered(spec.ID) {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, spec.ID)
	}

	j := agent.NewJob(spec, s.jobs, s.workers, s.inbox, s.logger)
	j.Start(ctx, &s.wg)
	s.register(ctx, domain.AgentKindJob, spec.ID, "", mustJSON(spec))
	s.record(ctx, domain.Observation{
		Kind:   domain.ObservationJobCreated,
		JobID:  spec.ID,
		Detail: fmt.Sprintf("job %s created", spec.ID),
	}, spec)
	return spec.ID, nil
}

func (s *Service) activateWorker(ctx context.Context, id string) error {
	e := s.lookup(id, domain.AgentKindWorker)
	if e == nil {
		return fmt.Errorf("%w: worker %s", ErrNotFound, id)
	}
	if e.Releasing {
		return fmt.Errorf("%w: worker %s", ErrReleasePending, id)
	}
	if e.Active {
		s.sweep(ctx, "worker "+id+" activated again")
		return nil
	}
	if err := s.workers.Publish(id, domain.ReactivateWorker{}); err != nil {
		return fmt.Errorf("reactivate worker %s: %w", id, err)
	}
	s.setState(ctx, e, true, false)
	s.record(ctx, domain.Observation{
		Kind:     domain.ObservationWorkerActivated,
		WorkerID: id,
		Detail:   fmt.Sprintf("worker %s activated", id),
	}, nil)
	s.sweep(ctx, "worker "+id+" activated")
	return nil
}

func (s *Service) activateJob(ctx context.Context, id string) error {
	e := s.lookup(id, domain.AgentKindJob)
	if e == nil {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if e.Releasing {
		return fmt.Errorf("%w: job %s", ErrReleasePending, id)
	}
	if e.Active {
		s.solicit(id, domain.RoundModeInsertion)
		return nil
	}
	if err := s.jobs.Publish(id, domain.ReactivateJob{}); err != nil {
		return fmt.Errorf("reactivate job %s: %w", id, err)
	}
	s.setState(ctx, e, true, false)
	s.record(ctx, domain.Observation{
		Kind:   domain.ObservationJobActivated,
		JobID:  id,
		Detail: fmt.Sprintf("job %s activated", id),
	}, nil)
	s.solicit(id, domain.RoundModeInsertion)
	return nil
}

// deactivate marks the entry releasing and asks the agent to let go of its
// commitments. The entry turns inactive when the agent reports back.
func (s *Service) deactivate(ctx context.Context, id string, kind domain.AgentKind) error {
	e := s.lookup(id, kind)
	if e == nil {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	if e.Releasing {
		return fmt.Errorf("%w: %s %s", ErrReleasePending, kind, id)
	}
	if !e.Active {
		return fmt.Errorf("%w: %s %s", ErrAlreadyInactive, kind, id)
	}
	s.setState(ctx, e, true, true)

	var err error
	if kind == domain.AgentKindWorker {
		err = s.workers.Publish(id, domain.ReleaseWorker{})
	} else {
		err = s.jobs.Publish(id, domain.RemoveJob{})
	}
	if err != nil {
		s.logger.Printf("release request to %s %s failed: %v", kind, id, err)
		s.setState(ctx, e, false, false)
	}
	return nil
}

func (s *Service) workerReleased(ctx context.Context, m domain.WorkerReleased) {
	e := s.lookup(m.WorkerID, domain.AgentKindWorker)
	if e == nil {
		return
	}
	s.setState(ctx, e, false, false)
	s.logger.Printf("worker %s deactivated, released jobs=%v", m.WorkerID, m.Evicted)
	s.record(ctx, domain.Observation{
		Kind:     domain.ObservationWorkerDeactivated,
		WorkerID: m.WorkerID,
		Detail:   fmt.Sprintf("worker %s deactivated after releasing %d jobs", m.WorkerID, len(m.Evicted)),
	}, map[string]any{"released": m.Evicted})
	s.sweep(ctx, "worker "+m.WorkerID+" released")
}

func (s *Service) jobReleased(ctx context.Context, m domain.JobReleased) {
	e := s.lookup(m.JobID, domain.AgentKindJob)
	if e == nil {
		return
	}
	s.setState(ctx, e, false, false)
	s.logger.Printf("job %s deactivated", m.JobID)
	s.record(ctx, domain.Observation{
		Kind:   domain.ObservationJobDeactivated,
		JobID:  m.JobID,
		Detail: fmt.Sprintf("job %s deactivated", m.JobID),
	}, nil)
}

func (s *Service) destroy(ctx context.Context, id string, kind domain.AgentKind) error {
	e := s.lookup(id, kind)
	if e == nil {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	if e.Active || e.Releasing {
		return fmt.Errorf("%w: %s %s", ErrNotDeactivated, kind, id)
	}

	var err error
	obs := domain.Observation{Detail: fmt.Sprintf("%s %s destroyed", kind, id)}
	if kind == domain.AgentKindWorker {
		err = s.workers.Publish(id, domain.StopWorker{})
		obs.Kind = domain.ObservationWorkerDestroyed
		obs.WorkerID = id
	} else {
		err = s.jobs.Publish(id, domain.StopJob{})
		obs.Kind = domain.ObservationJobDestroyed
		obs.JobID = id
	}
	if err != nil {
		s.logger.Printf("stop request to %s %s failed: %v", kind, id, err)
	}

	s.unregister(ctx, id)
	s.record(ctx, obs, nil)
	return nil
}

// requestReplan runs an eviction-triggered sweep at most once per debounce
// window. Requests inside the window collapse into one deferred sweep.
func (s *Service) requestReplan(ctx context.Context) {
	if s.replanPending {
		return
	}
	now := s.now()
	elapsed := now.Sub(s.lastReplan)
	if s.lastReplan.IsZero() || elapsed >= s.cfg.ReplanDebounce {
		s.lastReplan = now
		s.sweep(ctx, "eviction replan")
		return
	}

	wait := s.cfg.ReplanDebounce - elapsed
	s.replanPending = true
	s.replanTimer = time.AfterFunc(wait, func() {
		_ = s.inbox.Publish(domain.CoordinatorID, domain.ReplanTick{})
	})
	s.record(ctx, domain.Observation{
		Kind:   domain.ObservationReplanDeferred,
		Detail: fmt.Sprintf("eviction replan deferred by %s", wait.Round(time.Millisecond)),
	}, map[string]any{"wait_ms": wait.Milliseconds()})
}

// sweep asks every active job to solicit the current active workers. Jobs
// that are already bidding or assigned ignore it.
func (s *Service) sweep(ctx context.Context, reason string) {
	workers := s.activeWorkers()
	solicited := 0
	for _, e := range s.entries {
		if e.Kind != domain.AgentKindJob || !e.Active || e.Releasing {
			continue
		}
		if err := s.jobs.Publish(e.ID, domain.Solicit{Mode: domain.RoundModeInsertion, Workers: workers}); err != nil {
			s.logger.Printf("replan solicit to job %s failed: %v", e.ID, err)
			continue
		}
		solicited++
	}
	s.record(ctx, domain.Observation{
		Kind:   domain.ObservationReplanSweep,
		Detail: reason,
	}, map[string]any{"jobs": solicited, "workers": len(workers)})
}

func (s *Service) solicit(jobID string, mode domain.RoundMode) {
	if err := s.jobs.Publish(jobID, domain.Solicit{Mode: mode, Workers: s.activeWorkers()}); err != nil {
		s.logger.Printf("%s solicit to job %s failed: %v", mode, jobID, err)
	}
}

func (s *Service) activeWorkers() []string {
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Kind == domain.AgentKindWorker && e.Active && !e.Releasing {
			out = append(out, e.ID)
		}
	}
	return out
}

// dumpStatus queries every registered agent off the inbox goroutine, so a
// slow agent never holds up negotiation traffic.
func (s *Service) dumpStatus(ctx context.Context, out chan<- domain.StatusReport) {
	entries := s.snapshot()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		report := s.collectStatus(ctx, entries)
		s.record(ctx, domain.Observation{
			Kind:   domain.ObservationStatusDumped,
			Detail: fmt.Sprintf("status of %d workers and %d jobs", len(report.Workers), len(report.Jobs)),
		}, nil)
		if out != nil {
			out <- report
		}
	}()
}

func (s *Service) collectStatus(ctx context.Context, entries []domain.RegistryEntry) domain.StatusReport {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StatusTimeout)
	defer cancel()

	workerReplies := make(map[string]chan domain.WorkerStatus)
	jobReplies := make(map[string]chan domain.JobStatus)
	for _, e := range entries {
		if e.Kind == domain.AgentKindWorker {
			ch := make(chan domain.WorkerStatus, 1)
			if err := s.workers.Publish(e.ID, domain.WorkerStatusQuery{Reply: ch}); err == nil {
				workerReplies[e.ID] = ch
			}
			continue
		}
		ch := make(chan domain.JobStatus, 1)
		if err := s.jobs.Publish(e.ID, domain.JobStatusQuery{Reply: ch}); err == nil {
			jobReplies[e.ID] = ch
		}
	}

	report := domain.StatusReport{GeneratedAt: s.now().UTC()}
	for _, e := range entries {
		if e.Kind == domain.AgentKindWorker {
			st := domain.WorkerStatus{ID: e.ID, Name: e.Name}
			if ch, ok := workerReplies[e.ID]; ok {
				select {
				case st = <-ch:
				case <-ctx.Done():
				}
			}
			st.Active = e.Active && !e.Releasing
			report.Workers = append(report.Workers, st)
			continue
		}
		st := domain.JobStatus{ID: e.ID}
		if ch, ok := jobReplies[e.ID]; ok {
			select {
			case st = <-ch:
			case <-ctx.Done():
			}
		}
		st.Active = e.Active && !e.Releasing
		report.Jobs = append(report.Jobs, st)
	}
	return report
}

func (s *Service) register(ctx context.Context, kind domain.AgentKind, id, name string, spec []byte) {
	now := s.now().UTC()
	e := &domain.RegistryEntry{
		ID:        id,
		Kind:      kind,
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.entries = append(s.entries, e)
	s.index[id] = e
	if err := s.store.UpsertAgent(ctx, *e, spec); err != nil {
		s.logger.Printf("mirror %s %s failed: %v", kind, id, err)
	}
}

func (s *Service) unregister(ctx context.Context, id string) {
	delete(s.index, id)
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	if err := s.store.DeleteAgent(ctx, id); err != nil {
		s.logger.Printf("remove mirrored agent %s failed: %v", id, err)
	}
}

func (s *Service) setState(ctx context.Context, e *domain.RegistryEntry, active, releasing bool) {
	e.Active = active
	e.Releasing = releasing
	e.UpdatedAt = s.now().UTC()
	if err := s.store.SetAgentState(ctx, e.ID, active, releasing); err != nil {
		s.logger.Printf("mirror state of %s %s failed: %v", e.Kind, e.ID, err)
	}
}

func (s *Service) lookup(id string, kind domain.AgentKind) *domain.RegistryEntry {
	e := s.index[id]
	if e == nil || e.Kind != kind {
		return nil
	}
	return e
}

func (s *Service) snapshot() []domain.RegistryEntry {
	out := make([]domain.RegistryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

func (s *Service) record(ctx context.Context, obs domain.Observation, payload any) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	obs.Actor = domain.CoordinatorID
	obs.Payload = []byte("{}")
	if payload != nil {
		obs.Payload = mustJSON(payload)
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = s.now().UTC()
	}
	if err := s.store.RecordObservation(ctx, obs); err != nil {
		s.logger.Printf("record %s observation failed: %v", obs.Kind, err)
	}
}

func reply(ch chan<- domain.CommandResult, id string, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- domain.CommandResult{ID: id, Err: err}:
	default:
	}
}

// answerStopped fails any command still queued when the coordinator exits.
func answerStopped(msg domain.CoordinatorMessage) {
	switch m := msg.(type) {
	case domain.CreateWorker:
		reply(m.Reply, "", ErrStopped)
	case domain.CreateJob:
		reply(m.Reply, "", ErrStopped)
	case domain.ActivateWorker:
		reply(m.Reply, m.ID, ErrStopped)
	case domain.ActivateJob:
		reply(m.Reply, m.ID, ErrStopped)
	case domain.DeactivateWorker:
		reply(m.Reply, m.ID, ErrStopped)
	case domain.DeactivateJob:
		reply(m.Reply, m.ID, ErrStopped)
	case domain.DestroyWorker:
		reply(m.Reply, m.ID, ErrStopped)
	case domain.DestroyJob:
		reply(m.Reply, m.ID, ErrStopped)
	}
}

func mustJSON(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return payload
}
