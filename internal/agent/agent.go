package agent

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"courier_mesh/internal/domain"
	"courier_mesh/internal/messaging/inproc"
)

type WorkerQueue interface {
	Register(agentID string) *inproc.Mailbox[domain.WorkerMessage]
	Unregister(agentID string) []domain.WorkerMessage
}

type JobQueue interface {
	Register(agentID string) *inproc.Mailbox[domain.JobMessage]
	Unregister(agentID string) []domain.JobMessage
}

type WorkerPost interface {
	Publish(workerID string, msg domain.WorkerMessage) error
}

type JobPost interface {
	Publish(jobID string, msg domain.JobMessage) error
}

type CoordinatorPost interface {
	Publish(agentID string, msg domain.CoordinatorMessage) error
}

type Journal interface {
	RecordObservation(ctx context.Context, obs domain.Observation) error
}

func recordObservation(ctx context.Context, journal Journal, logger *log.Logger, obs domain.Observation, payload any) {
	if journal == nil || obs.Kind == "" {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	obs.Payload = []byte("{}")
	if payload != nil {
		obs.Payload = mustJSON(payload)
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = time.Now().UTC()
	}
	if err := journal.RecordObservation(ctx, obs); err != nil && logger != nil {
		logger.Printf("record %s observation failed: %v", obs.Kind, err)
	}
}

func mustJSON(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return payload
}

func copyStops(stops []domain.Stop) []domain.Stop {
	out := make([]domain.Stop, len(stops))
	copy(out, stops)
	return out
}
