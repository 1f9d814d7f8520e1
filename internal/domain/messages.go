package domain

// Each agent kind accepts a closed set of messages. The unexported marker
// methods keep the sets sealed to this package.

type WorkerMessage interface {
	workerMessage()
}

type JobMessage interface {
	jobMessage()
}

type CoordinatorMessage interface {
	coordinatorMessage()
}

// Worker inbox.

type QuoteInsertion struct {
	JobID string
	Round uint64
	Job   JobSpec
}

type QuoteReplacement struct {
	JobID string
	Round uint64
	Job   JobSpec
}

type Commit struct {
	JobID    string
	Round    uint64
	Schedule Schedule
}

type CommitReplacement struct {
	JobID    string
	Round    uint64
	Schedule Schedule
}

type DropJob struct {
	JobID string
}

type ReleaseWorker struct{}

type ReactivateWorker struct{}

type WorkerStatusQuery struct {
	Reply chan<- WorkerStatus
}

type StopWorker struct{}

func (QuoteInsertion) workerMessage()    {}
func (QuoteReplacement) workerMessage()  {}
func (Commit) workerMessage()            {}
func (CommitReplacement) workerMessage() {}
func (DropJob) workerMessage()           {}
func (ReleaseWorker) workerMessage()     {}
func (ReactivateWorker) workerMessage()  {}
func (WorkerStatusQuery) workerMessage() {}
func (StopWorker) workerMessage()        {}

// Job inbox.

type Solicit struct {
	Mode    RoundMode
	Workers []string
}

type BidResult struct {
	WorkerID string
	Round    uint64
	Quote    *Quote
}

type ReplacementBidResult struct {
	WorkerID string
	Round    uint64
	Quote    *Quote
}

type CommitAccepted struct {
	WorkerID string
	Round    uint64
	Income   float64
	Total    float64
}

type CommitRejected struct {
	WorkerID string
	Round    uint64
	Reason   string
}

// Evicted is the discard notice a worker sends when it gives a job up
// without being asked to.
type Evicted struct {
	WorkerID string
}

// DropNotice confirms a DropJob request.
type DropNotice struct {
	WorkerID string
}

type RemoveJob struct{}

type ReactivateJob struct{}

type JobStatusQuery struct {
	Reply chan<- JobStatus
}

type StopJob struct{}

func (Solicit) jobMessage()              {}
func (BidResult) jobMessage()            {}
func (ReplacementBidResult) jobMessage() {}
func (CommitAccepted) jobMessage()       {}
func (CommitRejected) jobMessage()       {}
func (Evicted) jobMessage()              {}
func (DropNotice) jobMessage()           {}
func (RemoveJob) jobMessage()            {}
func (ReactivateJob) jobMessage()        {}
func (JobStatusQuery) jobMessage()       {}
func (StopJob) jobMessage()              {}

// Coordinator inbox: operator commands.

type CommandResult struct {
	ID  string
	Err error
}

type CreateWorker struct {
	Spec  WorkerSpec
	Reply chan<- CommandResult
}

type CreateJob struct {
	Spec  JobSpec
	Reply chan<- CommandResult
}

type ActivateWorker struct {
	ID    string
	Reply chan<- CommandResult
}

type ActivateJob struct {
	ID    string
	Reply chan<- CommandResult
}

type DeactivateWorker struct {
	ID    string
	Reply chan<- CommandResult
}

type DeactivateJob struct {
	ID    string
	Reply chan<- CommandResult
}

type DestroyWorker struct {
	ID    string
	Reply chan<- CommandResult
}

type DestroyJob struct {
	ID    string
	Reply chan<- CommandResult
}

type DumpStatus struct {
	Reply chan<- StatusReport
}

type ListRegistry struct {
	Reply chan<- []RegistryEntry
}

// Coordinator inbox: agent reports.

type JobPlanned struct {
	JobID    string
	WorkerID string
	Income   float64
	Total    float64
}

type JobNotPlanned struct {
	JobID string
}

type JobCommitRejected struct {
	JobID    string
	WorkerID string
	Reason   string
}

type ReplacementRequested struct {
	JobID string
}

type ReplanRequested struct {
	JobID    string
	WorkerID string
}

type WorkerReleased struct {
	WorkerID string
	Evicted  []string
}

type JobReleased struct {
	JobID string
}

// ReplanTick is posted by the coordinator to itself when a deferred sweep is due.
type ReplanTick struct{}

func (CreateWorker) coordinatorMessage()         {}
func (CreateJob) coordinatorMessage()            {}
func (ActivateWorker) coordinatorMessage()       {}
func (ActivateJob) coordinatorMessage()          {}
func (DeactivateWorker) coordinatorMessage()     {}
func (DeactivateJob) coordinatorMessage()        {}
func (DestroyWorker) coordinatorMessage()        {}
func (DestroyJob) coordinatorMessage()           {}
func (DumpStatus) coordinatorMessage()           {}
func (ListRegistry) coordinatorMessage()         {}
func (JobPlanned) coordinatorMessage()           {}
func (JobNotPlanned) coordinatorMessage()        {}
func (JobCommitRejected) coordinatorMessage()    {}
func (ReplacementRequested) coordinatorMessage() {}
func (ReplanRequested) coordinatorMessage()      {}
func (WorkerReleased) coordinatorMessage()       {}
func (JobReleased) coordinatorMessage()          {}
func (ReplanTick) coordinatorMessage()           {}

// CoordinatorID is the mailbox address of the coordinator.
const CoordinatorID = "coordinator"
