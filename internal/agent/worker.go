package agent

import (
	"context"
	"log"
	"sync"

	"courier_mesh/internal/domain"
	"courier_mesh/internal/routing"
)

// Worker owns one courier's committed route. It answers quote requests by
// running the route search and only changes its route in response to a commit
// that still applies to the route it holds.
type Worker struct {
	spec        domain.WorkerSpec
	maxRouteLen int
	queue       WorkerQueue
	jobs        JobPost
	coordinator CoordinatorPost
	journal     Journal
	logger      *log.Logger

	active bool
	route  []domain.Stop
	total  float64
	// evictions maps a candidate job to the job its last replacement quote
	// would push out.
	evictions map[string]string
}

func NewWorker(
	spec domain.WorkerSpec,
	maxRouteLen int,
	queue WorkerQueue,
	jobs JobPost,
	coordinator CoordinatorPost,
	journal Journal,
	logger *log.Logger,
) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	if maxRouteLen <= 0 || maxRouteLen > spec.WorkloadLimit {
		maxRouteLen = spec.WorkloadLimit
	}
	return &Worker{
		spec:        spec,
		maxRouteLen: maxRouteLen,
		queue:       queue,
		jobs:        jobs,
		coordinator: coordinator,
		journal:     journal,
		logger:      logger,
		active:      true,
		evictions:   make(map[string]string),
	}
}

func (w *Worker) ID() string {
	return w.spec.ID
}

// Start registers the worker's mailbox and processes it on a new goroutine
// until ctx is done or a StopWorker message arrives.
func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup) {
	mb := w.queue.Register(w.spec.ID)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer w.queue.Unregister(w.spec.ID)
		for {
			msg, ok := mb.Receive(ctx)
			if !ok {
				return
			}
			if _, stop := msg.(domain.StopWorker); stop {
				w.shutdown(ctx)
				return
			}
			w.handleMessage(ctx, msg)
		}
	}()
}

func (w *Worker) handleMessage(ctx context.Context, msg domain.WorkerMessage) {
	switch m := msg.(type) {
	case domain.QuoteInsertion:
		w.replyJob(m.JobID, domain.BidResult{
			WorkerID: w.spec.ID,
			Round:    m.Round,
			Quote:    w.quoteInsertion(m.Job),
		})
	case domain.QuoteReplacement:
		w.replyJob(m.JobID, domain.ReplacementBidResult{
			WorkerID: w.spec.ID,
			Round:    m.Round,
			Quote:    w.quoteReplacement(m.Job),
		})
	case domain.Commit:
		w.commitInsertion(ctx, m)
	case domain.CommitReplacement:
		w.commitReplacement(ctx, m)
	case domain.DropJob:
		w.dropJob(ctx, m.JobID)
	case domain.ReleaseWorker:
		w.release(ctx)
	case domain.ReactivateWorker:
		w.active = true
		w.logger.Printf("worker %s reactivated", w.spec.ID)
	case domain.WorkerStatusQuery:
		w.answerStatus(m.Reply)
	default:
		w.logger.Printf("worker %s ignored message %T", w.spec.ID, msg)
	}
}

func (w *Worker) quoteInsertion(job domain.JobSpec) *domain.Quote {
	if !w.active || job.Weight > w.spec.Capacity {
		return nil
	}
	if len(w.route) >= w.spec.WorkloadLimit || len(w.route) >= w.maxRouteLen {
		return nil
	}
	if w.holds(job.ID) {
		return nil
	}
	sched, ok := routing.Plan(w.spec.Origin, w.spec.CostPerDistance, append(w.routeJobs(), job))
	if !ok {
		return nil
	}
	return &domain.Quote{WorkerID: w.spec.ID, Schedule: sched}
}

// quoteReplacement tries every single eviction and keeps the most profitable
// variant; on equal totals the later index wins.
func (w *Worker) quoteReplacement(job domain.JobSpec) *domain.Quote {
	delete(w.evictions, job.ID)
	if !w.active || job.Weight > w.spec.Capacity || w.holds(job.ID) {
		return nil
	}
	current := w.routeJobs()
	var best *domain.Quote
	for i := range current {
		sched, ok := routing.Plan(w.spec.Origin, w.spec.CostPerDistance, routing.Without(current, i, job))
		if !ok {
			continue
		}
		if best == nil || sched.Total >= best.Schedule.Total {
			best = &domain.Quote{WorkerID: w.spec.ID, Schedule: sched, EvictJobID: current[i].ID}
		}
	}
	if best != nil {
		w.evictions[job.ID] = best.EvictJobID
	}
	return best
}

func (w *Worker) commitInsertion(ctx context.Context, m domain.Commit) {
	if reason := w.checkCommitBase(m.JobID, m.Schedule); reason != "" {
		w.rejectCommit(m.JobID, m.Round, reason)
		return
	}
	if len(m.Schedule.Stops) <= len(w.route) {
		w.rejectCommit(m.JobID, m.Round, "route changed since quote")
		return
	}
	expected := append(w.routeIDs(), m.JobID)
	priced, ok := w.priceCommitted(m.JobID, m.Schedule, expected)
	if !ok {
		w.rejectCommit(m.JobID, m.Round, "route changed since quote")
		return
	}
	if priced.Total <= w.total {
		w.rejectCommit(m.JobID, m.Round, "total does not improve current route")
		return
	}
	w.acceptCommit(ctx, priced, m.JobID, m.Round, "")
}

func (w *Worker) commitReplacement(ctx context.Context, m domain.CommitReplacement) {
	if reason := w.checkCommitBase(m.JobID, m.Schedule); reason != "" {
		w.rejectCommit(m.JobID, m.Round, reason)
		return
	}
	evict, ok := w.evictions[m.JobID]
	if !ok || !w.holds(evict) {
		w.rejectCommit(m.JobID, m.Round, "no pending eviction for job")
		return
	}
	expected := make([]string, 0, len(w.route))
	for _, id := range w.routeIDs() {
		if id != evict {
			expected = append(expected, id)
		}
	}
	expected = append(expected, m.JobID)
	priced, ok := w.priceCommitted(m.JobID, m.Schedule, expected)
	if !ok {
		w.rejectCommit(m.JobID, m.Round, "route changed since quote")
		return
	}
	if priced.Total <= w.total {
		w.rejectCommit(m.JobID, m.Round, "total does not improve current route")
		return
	}

	delete(w.evictions, m.JobID)
	if !w.acceptCommit(ctx, priced, m.JobID, m.Round, evict) {
		return
	}
	w.dropEvictionsOf(evict)
	if err := w.jobs.Publish(evict, domain.Evicted{WorkerID: w.spec.ID}); err != nil {
		w.logger.Printf("worker %s eviction notice to job %s failed: %v", w.spec.ID, evict, err)
	}
	recordObservation(ctx, w.journal, w.logger, domain.Observation{
		Kind:     domain.ObservationJobEvicted,
		Actor:    w.spec.ID,
		JobID:    evict,
		WorkerID: w.spec.ID,
		Detail:   "job " + evict + " evicted in favour of " + m.JobID,
	}, map[string]any{"replaced_by": m.JobID})
}

func (w *Worker) checkCommitBase(jobID string, sched domain.Schedule) string {
	if !w.active {
		return "worker inactive"
	}
	if w.holds(jobID) {
		return "job already on route"
	}
	if len(sched.Stops) > w.spec.WorkloadLimit || len(sched.Stops) > w.maxRouteLen {
		return "workload limit reached"
	}
	stop, ok := sched.StopFor(jobID)
	if !ok {
		return "schedule does not carry the job"
	}
	if stop.Job.Weight > w.spec.Capacity {
		return "job exceeds capacity"
	}
	return ""
}

// priceCommitted re-prices the proposed order against the worker's own copy
// of its jobs. It fails when the proposal is not exactly the expected job set.
func (w *Worker) priceCommitted(candidate string, sched domain.Schedule, expected []string) (domain.Schedule, bool) {
	if len(sched.Stops) != len(expected) {
		return domain.Schedule{}, false
	}
	want := make(map[string]bool, len(expected))
	for _, id := range expected {
		want[id] = true
	}
	held := make(map[string]domain.JobSpec, len(w.route))
	for _, stop := range w.route {
		held[stop.JobID] = stop.Job
	}

	ordered := make([]domain.JobSpec, 0, len(sched.Stops))
	for _, stop := range sched.Stops {
		if !want[stop.JobID] {
			return domain.Schedule{}, false
		}
		delete(want, stop.JobID)
		if stop.JobID == candidate {
			ordered = append(ordered, stop.Job)
			continue
		}
		ordered = append(ordered, held[stop.JobID])
	}
	if len(want) != 0 {
		return domain.Schedule{}, false
	}
	return routing.Evaluate(w.spec.Origin, w.spec.CostPerDistance, ordered), true
}

func (w *Worker) applySchedule(sched domain.Schedule) {
	w.route = copyStops(sched.Stops)
	w.total = sched.Total
}

// acceptCommit confirms the commit to the job before taking the schedule.
// A job that can no longer be reached never lands on the route.
func (w *Worker) acceptCommit(ctx context.Context, sched domain.Schedule, jobID string, round uint64, evicted string) bool {
	stop, _ := sched.StopFor(jobID)
	if err := w.jobs.Publish(jobID, domain.CommitAccepted{
		WorkerID: w.spec.ID,
		Round:    round,
		Income:   stop.Income,
		Total:    sched.Total,
	}); err != nil {
		w.logger.Printf("worker %s dropped commit job=%s round=%d: accept undeliverable: %v", w.spec.ID, jobID, round, err)
		return false
	}
	w.applySchedule(sched)
	w.logger.Printf("worker %s committed job=%s income=%.2f total=%.2f stops=%d", w.spec.ID, jobID, stop.Income, w.total, len(w.route))
	recordObservation(ctx, w.journal, w.logger, domain.Observation{
		Kind:     domain.ObservationCommitAccepted,
		Actor:    w.spec.ID,
		JobID:    jobID,
		WorkerID: w.spec.ID,
		Profit:   stop.Income,
		Detail:   "commit accepted",
	}, map[string]any{
		"round":   round,
		"total":   w.total,
		"route":   w.routeIDs(),
		"evicted": evicted,
	})
	return true
}

func (w *Worker) rejectCommit(jobID string, round uint64, reason string) {
	w.logger.Printf("worker %s rejected commit job=%s round=%d: %s", w.spec.ID, jobID, round, reason)
	w.replyJob(jobID, domain.CommitRejected{WorkerID: w.spec.ID, Round: round, Reason: reason})
}

// dropJob removes a job the worker was asked to give up and re-optimizes
// what remains. If no ordering of the remainder is profitable the current
// order is kept and re-priced.
func (w *Worker) dropJob(ctx context.Context, jobID string) {
	idx := w.indexOf(jobID)
	if idx >= 0 {
		remaining := make([]domain.JobSpec, 0, len(w.route)-1)
		for i, stop := range w.route {
			if i != idx {
				remaining = append(remaining, stop.Job)
			}
		}
		sched, ok := routing.Plan(w.spec.Origin, w.spec.CostPerDistance, remaining)
		if !ok {
			sched = routing.Evaluate(w.spec.Origin, w.spec.CostPerDistance, remaining)
		}
		w.applySchedule(sched)
		w.dropEvictionsOf(jobID)
		recordObservation(ctx, w.journal, w.logger, domain.Observation{
			Kind:     domain.ObservationJobDropped,
			Actor:    w.spec.ID,
			JobID:    jobID,
			WorkerID: w.spec.ID,
			Detail:   "job dropped on request",
		}, map[string]any{"total": w.total, "route": w.routeIDs()})
	}
	w.replyJob(jobID, domain.DropNotice{WorkerID: w.spec.ID})
}

// release gives every held job back before the worker goes inactive.
func (w *Worker) release(ctx context.Context) {
	w.active = false
	evicted := w.routeIDs()
	for _, id := range evicted {
		if err := w.jobs.Publish(id, domain.Evicted{WorkerID: w.spec.ID}); err != nil {
			w.logger.Printf("worker %s release notice to job %s failed: %v", w.spec.ID, id, err)
		}
	}
	w.route = nil
	w.total = 0
	w.evictions = make(map[string]string)

	recordObservation(ctx, w.journal, w.logger, domain.Observation{
		Kind:     domain.ObservationWorkerReleased,
		Actor:    w.spec.ID,
		WorkerID: w.spec.ID,
		Detail:   "worker released its route",
	}, map[string]any{"evicted": evicted})
	if err := w.coordinator.Publish(domain.CoordinatorID, domain.WorkerReleased{WorkerID: w.spec.ID, Evicted: evicted}); err != nil {
		w.logger.Printf("worker %s release report failed: %v", w.spec.ID, err)
	}
}

// shutdown answers whatever was still queued so that no job waits on a
// worker that no longer exists.
func (w *Worker) shutdown(ctx context.Context) {
	w.active = false
	left := w.queue.Unregister(w.spec.ID)
	for _, msg := range left {
		switch m := msg.(type) {
		case domain.QuoteInsertion:
			w.replyJob(m.JobID, domain.BidResult{WorkerID: w.spec.ID, Round: m.Round})
		case domain.QuoteReplacement:
			w.replyJob(m.JobID, domain.ReplacementBidResult{WorkerID: w.spec.ID, Round: m.Round})
		case domain.Commit:
			w.rejectCommit(m.JobID, m.Round, "worker stopped")
		case domain.CommitReplacement:
			w.rejectCommit(m.JobID, m.Round, "worker stopped")
		case domain.DropJob:
			w.dropJob(ctx, m.JobID)
		case domain.WorkerStatusQuery:
			w.answerStatus(m.Reply)
		}
	}
	w.logger.Printf("worker %s stopped (%d undelivered messages answered)", w.spec.ID, len(left))
}

func (w *Worker) answerStatus(reply chan<- domain.WorkerStatus) {
	if reply == nil {
		return
	}
	select {
	case reply <- w.status():
	default:
	}
}

func (w *Worker) status() domain.WorkerStatus {
	loc := w.spec.Origin
	if n := len(w.route); n > 0 {
		loc = w.route[n-1].Job.Dropoff
	}
	return domain.WorkerStatus{
		ID:              w.spec.ID,
		Name:            w.spec.Name,
		Active:          w.active,
		Reachable:       true,
		Capacity:        w.spec.Capacity,
		WorkloadLimit:   w.spec.WorkloadLimit,
		CostPerDistance: w.spec.CostPerDistance,
		Location:        loc,
		Route:           copyStops(w.route),
		Total:           w.total,
	}
}

func (w *Worker) replyJob(jobID string, msg domain.JobMessage) {
	if err := w.jobs.Publish(jobID, msg); err != nil {
		w.logger.Printf("worker %s reply %T to job %s failed: %v", w.spec.ID, msg, jobID, err)
	}
}

func (w *Worker) dropEvictionsOf(jobID string) {
	for candidate, evict := range w.evictions {
		if evict == jobID {
			delete(w.evictions, candidate)
		}
	}
}

func (w *Worker) holds(jobID string) bool {
	return w.indexOf(jobID) >= 0
}

func (w *Worker) indexOf(jobID string) int {
	for i, stop := range w.route {
		if stop.JobID == jobID {
			return i
		}
	}
	return -1
}

func (w *Worker) routeJobs() []domain.JobSpec {
	jobs := make([]domain.JobSpec, 0, len(w.route)+1)
	for _, stop := range w.route {
		jobs = append(jobs, stop.Job)
	}
	return jobs
}

func (w *Worker) routeIDs() []string {
	ids := make([]string, 0, len(w.route)+1)
	for _, stop := range w.route {
		ids = append(ids, stop.JobID)
	}
	return ids
}
