package agent

import (
	"context"
	"log"
	"sync"

	"courier_mesh/internal/domain"
)

// Job drives the negotiation for one delivery request. Every solicitation
// opens a new round; replies that carry an older round are ignored, so a
// superseded round can never be committed.
type Job struct {
	spec        domain.JobSpec
	queue       JobQueue
	workers     WorkerPost
	coordinator CoordinatorPost
	logger      *log.Logger

	active     bool
	state      domain.JobState
	assignment *domain.Assignment
	releasing  bool

	round       uint64
	mode        domain.RoundMode
	solicited   map[string]bool
	expected    int
	received    int
	bids        []domain.Quote
	committedTo string
}

func NewJob(
	spec domain.JobSpec,
	queue JobQueue,
	workers WorkerPost,
	coordinator CoordinatorPost,
	logger *log.Logger,
) *Job {
	if logger == nil {
		logger = log.Default()
	}
	return &Job{
		spec:        spec,
		queue:       queue,
		workers:     workers,
		coordinator: coordinator,
		logger:      logger,
		active:      true,
		state:       domain.JobStateUnassigned,
	}
}

func (j *Job) ID() string {
	return j.spec.ID
}

func (j *Job) Start(ctx context.Context, wg *sync.WaitGroup) {
	mb := j.queue.Register(j.spec.ID)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer j.queue.Unregister(j.spec.ID)
		for {
			msg, ok := mb.Receive(ctx)
			if !ok {
				return
			}
			if _, stop := msg.(domain.StopJob); stop {
				j.shutdown()
				return
			}
			j.handleMessage(msg)
		}
	}()
}

func (j *Job) handleMessage(msg domain.JobMessage) {
	switch m := msg.(type) {
	case domain.Solicit:
		j.solicit(m)
	case domain.BidResult:
		j.collect(domain.RoundModeInsertion, m.WorkerID, m.Round, m.Quote)
	case domain.ReplacementBidResult:
		j.collect(domain.RoundModeReplacement, m.WorkerID, m.Round, m.Quote)
	case domain.CommitAccepted:
		j.commitAccepted(m)
	case domain.CommitRejected:
		j.commitRejected(m)
	case domain.Evicted:
		j.evicted(m)
	case domain.DropNotice:
		j.dropConfirmed(m)
	case domain.RemoveJob:
		j.remove()
	case domain.ReactivateJob:
		j.active = true
	case domain.JobStatusQuery:
		j.answerStatus(m.Reply)
	default:
		j.logger.Printf("job %s ignored message %T", j.spec.ID, msg)
	}
}

func (j *Job) solicit(m domain.Solicit) {
	if !j.active || j.releasing || j.state != domain.JobStateUnassigned {
		return
	}
	j.round++
	j.state = domain.JobStateBidding
	j.mode = m.Mode
	j.expected = 0
	j.received = 0
	j.bids = j.bids[:0]
	j.committedTo = ""
	j.solicited = make(map[string]bool, len(m.Workers))

	for _, workerID := range m.Workers {
		if j.solicited[workerID] {
			continue
		}
		j.solicited[workerID] = true
		j.expected++
		var req domain.WorkerMessage = domain.QuoteInsertion{JobID: j.spec.ID, Round: j.round, Job: j.spec}
		if m.Mode == domain.RoundModeReplacement {
			req = domain.QuoteReplacement{JobID: j.spec.ID, Round: j.round, Job: j.spec}
		}
		if err := j.workers.Publish(workerID, req); err != nil {
			// An unreachable worker counts as a reply without a bid.
			j.logger.Printf("job %s quote request to worker %s failed: %v", j.spec.ID, workerID, err)
			delete(j.solicited, workerID)
			j.received++
		}
	}
	j.maybeSelect()
}

func (j *Job) collect(mode domain.RoundMode, workerID string, round uint64, quote *domain.Quote) {
	if j.state != domain.JobStateBidding || round != j.round || mode != j.mode || j.committedTo != "" {
		return
	}
	if !j.solicited[workerID] {
		return
	}
	delete(j.solicited, workerID)
	j.received++
	if quote != nil && quote.Schedule.Total > 0 {
		bid := *quote
		bid.WorkerID = workerID
		j.bids = append(j.bids, bid)
	}
	j.maybeSelect()
}

// maybeSelect runs once every solicited worker has answered. The highest
// total wins; among equal totals the last bid received wins.
func (j *Job) maybeSelect() {
	if j.received < j.expected {
		return
	}
	best := -1
	for i, bid := range j.bids {
		if best < 0 || bid.Schedule.Total >= j.bids[best].Schedule.Total {
			best = i
		}
	}

	if best < 0 {
		j.state = domain.JobStateUnassigned
		if j.mode == domain.RoundModeInsertion {
			j.report(domain.ReplacementRequested{JobID: j.spec.ID})
			return
		}
		j.report(domain.JobNotPlanned{JobID: j.spec.ID})
		return
	}

	winner := j.bids[best]
	j.committedTo = winner.WorkerID
	var commit domain.WorkerMessage = domain.Commit{JobID: j.spec.ID, Round: j.round, Schedule: winner.Schedule}
	if j.mode == domain.RoundModeReplacement {
		commit = domain.CommitReplacement{JobID: j.spec.ID, Round: j.round, Schedule: winner.Schedule}
	}
	if err := j.workers.Publish(winner.WorkerID, commit); err != nil {
		j.logger.Printf("job %s commit to worker %s failed: %v", j.spec.ID, winner.WorkerID, err)
		j.state = domain.JobStateUnassigned
		j.committedTo = ""
		j.report(domain.JobCommitRejected{JobID: j.spec.ID, WorkerID: winner.WorkerID, Reason: "worker unreachable"})
	}
}

func (j *Job) commitAccepted(m domain.CommitAccepted) {
	if j.active && j.state == domain.JobStateBidding && m.Round == j.round && m.WorkerID == j.committedTo {
		j.state = domain.JobStateAssigned
		j.assignment = &domain.Assignment{WorkerID: m.WorkerID, Income: m.Income}
		j.committedTo = ""
		j.report(domain.JobPlanned{JobID: j.spec.ID, WorkerID: m.WorkerID, Income: m.Income, Total: m.Total})
		return
	}
	if j.assignment != nil && j.assignment.WorkerID == m.WorkerID {
		return
	}
	// The round was superseded after the worker committed; take the job back.
	j.logger.Printf("job %s undoing stale commit on worker %s (round %d, current %d)", j.spec.ID, m.WorkerID, m.Round, j.round)
	if err := j.workers.Publish(m.WorkerID, domain.DropJob{JobID: j.spec.ID}); err != nil {
		j.logger.Printf("job %s drop request to worker %s failed: %v", j.spec.ID, m.WorkerID, err)
	}
}

func (j *Job) commitRejected(m domain.CommitRejected) {
	if j.state != domain.JobStateBidding || m.Round != j.round || m.WorkerID != j.committedTo {
		return
	}
	j.state = domain.JobStateUnassigned
	j.committedTo = ""
	j.report(domain.JobCommitRejected{JobID: j.spec.ID, WorkerID: m.WorkerID, Reason: m.Reason})
}

func (j *Job) evicted(m domain.Evicted) {
	if j.assignment == nil || j.assignment.WorkerID != m.WorkerID {
		return
	}
	j.assignment = nil
	j.state = domain.JobStateUnassigned
	if j.releasing {
		j.finishRelease()
		return
	}
	j.report(domain.ReplanRequested{JobID: j.spec.ID, WorkerID: m.WorkerID})
}

func (j *Job) dropConfirmed(m domain.DropNotice) {
	if !j.releasing || j.assignment == nil || j.assignment.WorkerID != m.WorkerID {
		return
	}
	j.assignment = nil
	j.state = domain.JobStateUnassigned
	j.finishRelease()
}

// remove deactivates the job. An assigned job first asks its worker to drop
// it and finishes on the worker's confirmation.
func (j *Job) remove() {
	j.active = false
	switch j.state {
	case domain.JobStateAssigned:
		if j.releasing {
			return
		}
		j.releasing = true
		if err := j.workers.Publish(j.assignment.WorkerID, domain.DropJob{JobID: j.spec.ID}); err != nil {
			j.logger.Printf("job %s drop request to worker %s failed: %v", j.spec.ID, j.assignment.WorkerID, err)
			j.assignment = nil
			j.state = domain.JobStateUnassigned
			j.finishRelease()
		}
	case domain.JobStateBidding:
		j.round++
		j.state = domain.JobStateUnassigned
		j.committedTo = ""
		j.finishRelease()
	default:
		j.finishRelease()
	}
}

func (j *Job) finishRelease() {
	j.releasing = false
	j.report(domain.JobReleased{JobID: j.spec.ID})
}

func (j *Job) shutdown() {
	j.active = false
	left := j.queue.Unregister(j.spec.ID)
	for _, msg := range left {
		switch m := msg.(type) {
		case domain.CommitAccepted:
			if err := j.workers.Publish(m.WorkerID, domain.DropJob{JobID: j.spec.ID}); err != nil {
				j.logger.Printf("job %s drop request to worker %s failed: %v", j.spec.ID, m.WorkerID, err)
			}
		case domain.JobStatusQuery:
			j.answerStatus(m.Reply)
		}
	}
	j.logger.Printf("job %s stopped", j.spec.ID)
}

func (j *Job) answerStatus(reply chan<- domain.JobStatus) {
	if reply == nil {
		return
	}
	select {
	case reply <- j.status():
	default:
	}
}

func (j *Job) status() domain.JobStatus {
	st := domain.JobStatus{
		ID:        j.spec.ID,
		Active:    j.active,
		Reachable: true,
		State:     j.state,
		Round:     j.round,
		Pickup:    j.spec.Pickup,
		Dropoff:   j.spec.Dropoff,
		Distance:  j.spec.Length(),
		Weight:    j.spec.Weight,
		Price:     j.spec.Price,
	}
	if j.assignment != nil {
		a := *j.assignment
		st.Assignment = &a
	}
	return st
}

func (j *Job) report(msg domain.CoordinatorMessage) {
	if err := j.coordinator.Publish(domain.CoordinatorID, msg); err != nil {
		j.logger.Printf("job %s report %T failed: %v", j.spec.ID, msg, err)
	}
}
