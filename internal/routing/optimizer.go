// Package routing computes the most profitable stop order for a worker.
//
// The search is exhaustive over all n! orderings of the job set, so callers
// must bound n; see policy.Limits.MaxRouteLen.
package routing

import (
	"courier_mesh/internal/domain"
)

// StopIncome is what a worker earns for serving job after finishing at prev:
// the job price minus the cost of driving to the pickup and then to the dropoff.
func StopIncome(prev domain.Location, job domain.JobSpec, costPerDistance float64) float64 {
	travel := domain.Distance(prev, job.Pickup) + job.Length()
	return job.Price - costPerDistance*travel
}

// Evaluate prices jobs in the given order without reordering them.
func Evaluate(origin domain.Location, costPerDistance float64, jobs []domain.JobSpec) domain.Schedule {
	sched := domain.Schedule{Stops: make([]domain.Stop, 0, len(jobs))}
	prev := origin
	for _, job := range jobs {
		income := StopIncome(prev, job, costPerDistance)
		sched.Stops = append(sched.Stops, domain.Stop{JobID: job.ID, Job: job, Income: income})
		sched.Total += income
		prev = job.Dropoff
	}
	return sched
}

// Plan returns the ordering of jobs with the highest total income. An ordering
// only replaces the current best when its total is strictly greater, and the
// running best starts at zero, so the first ordering found wins ties and a job
// set whose best total is <= 0 is reported infeasible.
func Plan(origin domain.Location, costPerDistance float64, jobs []domain.JobSpec) (domain.Schedule, bool) {
	if len(jobs) == 0 {
		return domain.Schedule{}, false
	}
	s := &search{
		origin: origin,
		cost:   costPerDistance,
		jobs:   jobs,
		used:   make([]bool, len(jobs)),
		order:  make([]int, 0, len(jobs)),
	}
	s.walk(origin, 0)
	if s.bestOrder == nil {
		return domain.Schedule{}, false
	}

	ordered := make([]domain.JobSpec, 0, len(jobs))
	for _, idx := range s.bestOrder {
		ordered = append(ordered, jobs[idx])
	}
	return Evaluate(origin, costPerDistance, ordered), true
}

type search struct {
	origin    domain.Location
	cost      float64
	jobs      []domain.JobSpec
	used      []bool
	order     []int
	best      float64
	bestOrder []int
}

func (s *search) walk(prev domain.Location, total float64) {
	if len(s.order) == len(s.jobs) {
		if total > s.best {
			s.best = total
			s.bestOrder = append(s.bestOrder[:0], s.order...)
		}
		return
	}
	for i, job := range s.jobs {
		if s.used[i] {
			continue
		}
		s.used[i] = true
		s.order = append(s.order, i)
		s.walk(job.Dropoff, total+StopIncome(prev, job, s.cost))
		s.order = s.order[:len(s.order)-1]
		s.used[i] = false
	}
}

// Without returns jobs minus the entry at index skip, plus extra.
func Without(jobs []domain.JobSpec, skip int, extra domain.JobSpec) []domain.JobSpec {
	out := make([]domain.JobSpec, 0, len(jobs))
	for i, job := range jobs {
		if i == skip {
			continue
		}
		out = append(out, job)
	}
	return append(out, extra)
}
