package policy

import (
	"context"
	"fmt"
	"math"
	"path"
	"strings"

	"courier_mesh/internal/domain"
)

const DefaultMaxRouteLen = 8

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Limits struct {
	// MaxRouteLen bounds the number of stops one worker may hold. The route
	// search is factorial in this value.
	MaxRouteLen int
	// ReportExtensions lists file extensions the report exporter may write.
	ReportExtensions []string
}

type Engine struct {
	limits Limits
}

func New(limits Limits) *Engine {
	if limits.MaxRouteLen <= 0 {
		limits.MaxRouteLen = DefaultMaxRouteLen
	}
	if len(limits.ReportExtensions) == 0 {
		limits.ReportExtensions = []string{".json", ".txt"}
	}
	return &Engine{limits: limits}
}

func (e *Engine) MaxRouteLen() int {
	return e.limits.MaxRouteLen
}

func (e *Engine) CheckWorker(spec domain.WorkerSpec) error {
	if err := checkLocation("origin", spec.Origin); err != nil {
		return err
	}
	if !finite(spec.Capacity) || spec.Capacity < 0 {
		return &ValidationError{Field: "capacity", Reason: "must be a non-negative number"}
	}
	if spec.WorkloadLimit < 1 {
		return &ValidationError{Field: "workload_limit", Reason: "must be at least 1"}
	}
	if spec.WorkloadLimit > e.limits.MaxRouteLen {
		return &ValidationError{
			Field:  "workload_limit",
			Reason: fmt.Sprintf("exceeds max route length %d", e.limits.MaxRouteLen),
		}
	}
	if !finite(spec.CostPerDistance) || spec.CostPerDistance < 0 {
		return &ValidationError{Field: "cost_per_distance", Reason: "must be a non-negative number"}
	}
	return nil
}

func (e *Engine) CheckJob(spec domain.JobSpec) error {
	if err := checkLocation("pickup", spec.Pickup); err != nil {
		return err
	}
	if err := checkLocation("dropoff", spec.Dropoff); err != nil {
		return err
	}
	if !finite(spec.Weight) || spec.Weight < 0 {
		return &ValidationError{Field: "weight", Reason: "must be a non-negative number"}
	}
	if !finite(spec.Price) {
		return &ValidationError{Field: "price", Reason: "must be a finite number"}
	}
	return nil
}

// CanWriteReport decides whether the exporter may write relPath under its root.
func (e *Engine) CanWriteReport(_ context.Context, relPath string) (bool, string, error) {
	ext := strings.ToLower(path.Ext(relPath))
	for _, allowed := range e.limits.ReportExtensions {
		if ext == allowed {
			return true, "allowed", nil
		}
	}
	return false, fmt.Sprintf("extension %q is not allowed for reports", ext), nil
}

func checkLocation(field string, loc domain.Location) error {
	if !finite(loc.X) || !finite(loc.Y) {
		return &ValidationError{Field: field, Reason: "coordinates must be finite"}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
