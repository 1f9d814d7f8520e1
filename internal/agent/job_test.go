package agent

import (
	"testing"

	"courier_mesh/internal/domain"
	"courier_mesh/internal/messaging/inproc"
)

type jobRig struct {
	job     *Job
	queue   *inproc.Bus[domain.JobMessage]
	workers *outbox[domain.WorkerMessage]
	coord   *outbox[domain.CoordinatorMessage]
}

func newJobRig() *jobRig {
	rig := &jobRig{
		queue:   inproc.New[domain.JobMessage](),
		workers: newOutbox[domain.WorkerMessage](),
		coord:   newOutbox[domain.CoordinatorMessage](),
	}
	spec := domain.JobSpec{ID: "j1", Pickup: loc(0, 0), Dropoff: loc(3, 4), Weight: 1, Price: 20}
	rig.job = NewJob(spec, rig.queue, rig.workers, rig.coord, quietLogger())
	return rig
}

func quoteWithTotal(workerID string, total float64) *domain.Quote {
	return &domain.Quote{
		WorkerID: workerID,
		Schedule: domain.Schedule{
			Stops: []domain.Stop{{JobID: "j1", Income: total}},
			Total: total,
		},
	}
}

func (r *jobRig) reports() []domain.CoordinatorMessage {
	return r.coord.to(domain.CoordinatorID)
}

func (r *jobRig) lastReport(t *testing.T) domain.CoordinatorMessage {
	t.Helper()
	msg, ok := r.coord.last(domain.CoordinatorID)
	if !ok {
		t.Fatalf("expected a report to the coordinator")
	}
	return msg
}

func (r *jobRig) assign(t *testing.T, workerID string) {
	t.Helper()
	r.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{workerID}})
	round := r.job.round
	r.job.handleMessage(domain.BidResult{WorkerID: workerID, Round: round, Quote: quoteWithTotal(workerID, 9)})
	r.job.handleMessage(domain.CommitAccepted{WorkerID: workerID, Round: round, Income: 9, Total: 9})
	if r.job.state != domain.JobStateAssigned {
		t.Fatalf("expected job to be assigned, got %s", r.job.state)
	}
}

func TestJobSelectsHighestBidAndCommits(t *testing.T) {
	rig := newJobRig()
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w1", "w2", "w3"}})
	if rig.job.state != domain.JobStateBidding || rig.job.round != 1 {
		t.Fatalf("expected bidding in round 1, got %s round %d", rig.job.state, rig.job.round)
	}
	for _, w := range []string{"w1", "w2", "w3"} {
		msg, ok := rig.workers.last(w)
		if req, isQuote := msg.(domain.QuoteInsertion); !ok || !isQuote || req.Round != 1 || req.JobID != "j1" {
			t.Fatalf("expected insertion quote request to %s, got %#v", w, msg)
		}
	}

	rig.job.handleMessage(domain.BidResult{WorkerID: "w1", Round: 1, Quote: quoteWithTotal("w1", 5)})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w2", Round: 1, Quote: quoteWithTotal("w2", 9)})
	if len(rig.workers.to("w2")) != 1 {
		t.Fatalf("expected no commit before every worker answered")
	}
	rig.job.handleMessage(domain.BidResult{WorkerID: "w3", Round: 1})

	msg, _ := rig.workers.last("w2")
	commit, ok := msg.(domain.Commit)
	if !ok || commit.Round != 1 || commit.Schedule.Total != 9 {
		t.Fatalf("expected commit to w2, got %#v", msg)
	}
	if rig.job.state != domain.JobStateBidding {
		t.Fatalf("expected job to stay bidding until the worker answers")
	}

	rig.job.handleMessage(domain.CommitAccepted{WorkerID: "w2", Round: 1, Income: 9, Total: 9})
	if rig.job.state != domain.JobStateAssigned || rig.job.assignment.WorkerID != "w2" {
		t.Fatalf("expected assignment to w2, got %+v", rig.job.status())
	}
	planned, ok := rig.lastReport(t).(domain.JobPlanned)
	if !ok || planned.WorkerID != "w2" || planned.Income != 9 {
		t.Fatalf("expected planned report, got %#v", rig.lastReport(t))
	}
	if len(rig.reports()) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(rig.reports()))
	}
}

func TestJobTieGoesToLastBid(t *testing.T) {
	rig := newJobRig()
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w1", "w2"}})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w2", Round: 1, Quote: quoteWithTotal("w2", 7)})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w1", Round: 1, Quote: quoteWithTotal("w1", 7)})

	if _, ok := rig.workers.last("w1"); !ok {
		t.Fatalf("expected messages to w1")
	}
	msg, _ := rig.workers.last("w1")
	if _, ok := msg.(domain.Commit); !ok {
		t.Fatalf("expected tie to commit on the last bidder w1, got %#v", msg)
	}
	msg, _ = rig.workers.last("w2")
	if _, ok := msg.(domain.Commit); ok {
		t.Fatalf("w2 must not receive a commit")
	}
}

func TestJobEscalatesToReplacementThenNotPlanned(t *testing.T) {
	rig := newJobRig()
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w1"}})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w1", Round: 1})

	if rig.job.state != domain.JobStateUnassigned {
		t.Fatalf("expected unassigned after an empty round, got %s", rig.job.state)
	}
	if _, ok := rig.lastReport(t).(domain.ReplacementRequested); !ok {
		t.Fatalf("expected replacement request, got %#v", rig.lastReport(t))
	}

	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeReplacement, Workers: []string{"w1"}})
	msg, _ := rig.workers.last("w1")
	if req, ok := msg.(domain.QuoteReplacement); !ok || req.Round != 2 {
		t.Fatalf("expected replacement quote request in round 2, got %#v", msg)
	}
	// A late insertion answer from round 1 must not count toward round 2.
	rig.job.handleMessage(domain.BidResult{WorkerID: "w1", Round: 1, Quote: quoteWithTotal("w1", 50)})
	if rig.job.state != domain.JobStateBidding {
		t.Fatalf("stale bid must not close the round")
	}
	rig.job.handleMessage(domain.ReplacementBidResult{WorkerID: "w1", Round: 2})

	if _, ok := rig.lastReport(t).(domain.JobNotPlanned); !ok {
		t.Fatalf("expected not planned report, got %#v", rig.lastReport(t))
	}
	if rig.job.state != domain.JobStateUnassigned {
		t.Fatalf("expected unassigned, got %s", rig.job.state)
	}
}

func TestJobWithoutWorkersEscalatesImmediately(t *testing.T) {
	rig := newJobRig()
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion})
	if _, ok := rig.lastReport(t).(domain.ReplacementRequested); !ok {
		t.Fatalf("expected replacement request, got %#v", rig.lastReport(t))
	}
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeReplacement})
	if _, ok := rig.lastReport(t).(domain.JobNotPlanned); !ok {
		t.Fatalf("expected not planned report, got %#v", rig.lastReport(t))
	}
}

func TestJobSolicitIsNoOpWhileBidding(t *testing.T) {
	rig := newJobRig()
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w1"}})
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w1", "w2"}})
	if rig.job.round != 1 {
		t.Fatalf("expected round to stay 1, got %d", rig.job.round)
	}
	if len(rig.workers.to("w1")) != 1 || len(rig.workers.to("w2")) != 0 {
		t.Fatalf("expected a single quote request in total")
	}
}

func TestJobCountsUnreachableWorkerAsNoBid(t *testing.T) {
	rig := newJobRig()
	rig.workers.down["w2"] = true
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w1", "w2"}})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w1", Round: 1, Quote: quoteWithTotal("w1", 3)})

	msg, _ := rig.workers.last("w1")
	if _, ok := msg.(domain.Commit); !ok {
		t.Fatalf("expected the round to close on w1's bid, got %#v", msg)
	}
}

func TestJobIgnoresDuplicateAndUnsolicitedBids(t *testing.T) {
	rig := newJobRig()
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w1", "w2"}})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w1", Round: 1, Quote: quoteWithTotal("w1", 3)})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w1", Round: 1, Quote: quoteWithTotal("w1", 3)})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w9", Round: 1, Quote: quoteWithTotal("w9", 99)})
	if rig.job.received != 1 {
		t.Fatalf("expected one counted reply, got %d", rig.job.received)
	}
}

func TestJobCommitRejectedReturnsToUnassigned(t *testing.T) {
	rig := newJobRig()
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w1"}})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w1", Round: 1, Quote: quoteWithTotal("w1", 3)})
	rig.job.handleMessage(domain.CommitRejected{WorkerID: "w1", Round: 1, Reason: "total does not improve current route"})

	if rig.job.state != domain.JobStateUnassigned {
		t.Fatalf("expected unassigned, got %s", rig.job.state)
	}
	rejected, ok := rig.lastReport(t).(domain.JobCommitRejected)
	if !ok || rejected.WorkerID != "w1" {
		t.Fatalf("expected commit rejected report, got %#v", rig.lastReport(t))
	}
	// No immediate re-solicitation from the job itself.
	if len(rig.workers.to("w1")) != 2 {
		t.Fatalf("expected only the quote request and the commit, got %d messages", len(rig.workers.to("w1")))
	}
}

func TestJobEvictionRequestsReplan(t *testing.T) {
	rig := newJobRig()
	rig.assign(t, "w1")

	rig.job.handleMessage(domain.Evicted{WorkerID: "w2"})
	if rig.job.state != domain.JobStateAssigned {
		t.Fatalf("eviction from a worker not holding the job must be ignored")
	}

	rig.job.handleMessage(domain.Evicted{WorkerID: "w1"})
	if rig.job.state != domain.JobStateUnassigned || rig.job.assignment != nil {
		t.Fatalf("expected unassigned after eviction, got %+v", rig.job.status())
	}
	replan, ok := rig.lastReport(t).(domain.ReplanRequested)
	if !ok || replan.WorkerID != "w1" {
		t.Fatalf("expected replan request, got %#v", rig.lastReport(t))
	}
}

func TestJobRemoveWhileAssignedWaitsForDrop(t *testing.T) {
	rig := newJobRig()
	rig.assign(t, "w1")
	before := len(rig.reports())

	rig.job.handleMessage(domain.RemoveJob{})
	msg, _ := rig.workers.last("w1")
	if drop, ok := msg.(domain.DropJob); !ok || drop.JobID != "j1" {
		t.Fatalf("expected drop request to w1, got %#v", msg)
	}
	if len(rig.reports()) != before {
		t.Fatalf("expected no release report before the worker confirms")
	}
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w2"}})
	if len(rig.workers.to("w2")) != 0 {
		t.Fatalf("an inactive job must not solicit")
	}

	rig.job.handleMessage(domain.DropNotice{WorkerID: "w1"})
	if _, ok := rig.lastReport(t).(domain.JobReleased); !ok {
		t.Fatalf("expected release report, got %#v", rig.lastReport(t))
	}
	st := rig.job.status()
	if st.Active || st.State != domain.JobStateUnassigned || st.Assignment != nil {
		t.Fatalf("unexpected status after removal: %+v", st)
	}

	rig.job.handleMessage(domain.ReactivateJob{})
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w2"}})
	if len(rig.workers.to("w2")) != 1 {
		t.Fatalf("expected reactivated job to solicit again")
	}
}

func TestJobUndoesStaleAccept(t *testing.T) {
	rig := newJobRig()
	rig.job.handleMessage(domain.Solicit{Mode: domain.RoundModeInsertion, Workers: []string{"w1"}})
	rig.job.handleMessage(domain.BidResult{WorkerID: "w1", Round: 1, Quote: quoteWithTotal("w1", 3)})

	rig.job.handleMessage(domain.RemoveJob{})
	if _, ok := rig.lastReport(t).(domain.JobReleased); !ok {
		t.Fatalf("expected immediate release while bidding, got %#v", rig.lastReport(t))
	}

	rig.job.handleMessage(domain.CommitAccepted{WorkerID: "w1", Round: 1, Income: 3, Total: 3})
	msg, _ := rig.workers.last("w1")
	if _, ok := msg.(domain.DropJob); !ok {
		t.Fatalf("expected the stale accept to be undone, got %#v", msg)
	}
	if rig.job.assignment != nil {
		t.Fatalf("stale accept must not assign the job")
	}
}
