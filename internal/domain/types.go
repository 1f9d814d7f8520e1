package domain

import (
	"encoding/json"
	"math"
	"time"
)

type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Location) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

type JobState string

const (
	JobStateUnassigned JobState = "unassigned"
	JobStateBidding    JobState = "bidding"
	JobStateAssigned   JobState = "assigned"
)

type AgentKind string

const (
	AgentKindWorker AgentKind = "worker"
	AgentKindJob    AgentKind = "job"
)

type RoundMode string

const (
	RoundModeInsertion   RoundMode = "insertion"
	RoundModeReplacement RoundMode = "replacement"
)

type JobSpec struct {
	ID      string   `json:"id"`
	Pickup  Location `json:"pickup"`
	Dropoff Location `json:"dropoff"`
	Weight  float64  `json:"weight"`
	Price   float64  `json:"price"`
}

// Length is the loaded leg between pickup and dropoff.
func (j JobSpec) Length() float64 {
	return Distance(j.Pickup, j.Dropoff)
}

type WorkerSpec struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Origin          Location `json:"origin"`
	Capacity        float64  `json:"capacity"`
	WorkloadLimit   int      `json:"workload_limit"`
	CostPerDistance float64  `json:"cost_per_distance"`
}

type Stop struct {
	JobID  string  `json:"job_id"`
	Job    JobSpec `json:"job"`
	Income float64 `json:"income"`
}

type Schedule struct {
	Stops []Stop  `json:"stops"`
	Total float64 `json:"total"`
}

func (s Schedule) JobIDs() []string {
	ids := make([]string, 0, len(s.Stops))
	for _, stop := range s.Stops {
		ids = append(ids, stop.JobID)
	}
	return ids
}

// StopFor returns the stop carrying jobID, if any.
func (s Schedule) StopFor(jobID string) (Stop, bool) {
	for _, stop := range s.Stops {
		if stop.JobID == jobID {
			return stop, true
		}
	}
	return Stop{}, false
}

// Quote is a worker's answer to a solicitation. A nil *Quote means infeasible.
type Quote struct {
	WorkerID   string   `json:"worker_id"`
	Schedule   Schedule `json:"schedule"`
	EvictJobID string   `json:"evict_job_id,omitempty"`
}

type Assignment struct {
	WorkerID string  `json:"worker_id"`
	Income   float64 `json:"income"`
}

type RegistryEntry struct {
	ID        string    `json:"id"`
	Kind      AgentKind `json:"kind"`
	Name      string    `json:"name,omitempty"`
	Active    bool      `json:"active"`
	Releasing bool      `json:"releasing,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WorkerStatus struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Active          bool     `json:"active"`
	Reachable       bool     `json:"reachable"`
	Capacity        float64  `json:"capacity"`
	WorkloadLimit   int      `json:"workload_limit"`
	CostPerDistance float64  `json:"cost_per_distance"`
	Location        Location `json:"location"`
	Route           []Stop   `json:"route"`
	Total           float64  `json:"total"`
}

type JobStatus struct {
	ID         string      `json:"id"`
	Active     bool        `json:"active"`
	Reachable  bool        `json:"reachable"`
	State      JobState    `json:"state"`
	Round      uint64      `json:"round"`
	Pickup     Location    `json:"pickup"`
	Dropoff    Location    `json:"dropoff"`
	Distance   float64     `json:"distance"`
	Weight     float64     `json:"weight"`
	Price      float64     `json:"price"`
	Assignment *Assignment `json:"assignment,omitempty"`
}

type StatusReport struct {
	Workers     []WorkerStatus `json:"workers"`
	Jobs        []JobStatus    `json:"jobs"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type ObservationKind string

const (
	ObservationJobPlanned        ObservationKind = "job_planned"
	ObservationJobNotPlanned     ObservationKind = "job_not_planned"
	ObservationCommitRejected    ObservationKind = "commit_rejected"
	ObservationCommitAccepted    ObservationKind = "commit_accepted"
	ObservationJobEvicted        ObservationKind = "job_evicted"
	ObservationJobDropped        ObservationKind = "job_dropped"
	ObservationWorkerReleased    ObservationKind = "worker_released"
	ObservationReplanSweep       ObservationKind = "replan_sweep"
	ObservationReplanDeferred    ObservationKind = "replan_deferred"
	ObservationWorkerCreated     ObservationKind = "worker_created"
	ObservationJobCreated        ObservationKind = "job_created"
	ObservationWorkerActivated   ObservationKind = "worker_activated"
	ObservationJobActivated      ObservationKind = "job_activated"
	ObservationWorkerDeactivated ObservationKind = "worker_deactivated"
	ObservationJobDeactivated    ObservationKind = "job_deactivated"
	ObservationWorkerDestroyed   ObservationKind = "worker_destroyed"
	ObservationJobDestroyed      ObservationKind = "job_destroyed"
	ObservationStatusDumped      ObservationKind = "status_dumped"
)

type Observation struct {
	ID        string          `json:"id"`
	Kind      ObservationKind `json:"kind"`
	Actor     string          `json:"actor"`
	JobID     string          `json:"job_id,omitempty"`
	WorkerID  string          `json:"worker_id,omitempty"`
	Profit    float64         `json:"profit,omitempty"`
	Detail    string          `json:"detail"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type ReportFileLog struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}
