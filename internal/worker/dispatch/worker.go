// Package dispatch consumes the dispatch event stream.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/autodialer/internal/events"
	"github.com/acme/autodialer/internal/repository"
	"github.com/acme/autodialer/pkg/logger"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one decoded event. A returned error is logged and the
// message is still committed.
type Handler func(ctx context.Context, evt events.DispatchEvent) error

// Worker consumes dispatch events and hands them to a Handler.
type Worker struct {
	reader  messageReader
	handler Handler
	log     *logger.Logger
}

// New creates a worker reading topic as part of groupID.
func New(k *events.Kafka, topic, groupID string, handler Handler, log *logger.Logger) *Worker {
	return newWorker(k.NewReader(topic, groupID), handler, log)
}

func newWorker(reader messageReader, handler Handler, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{reader: reader, handler: handler, log: log.Named("dispatch-worker")}
}

// Run processes events until the context is cancelled, then closes the
// reader.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	tracer := otel.Tracer("autodialer.dispatchworker")
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("fetch", zap.Error(err))
			continue
		}

		var evt events.DispatchEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			w.log.Error("unmarshal", zap.Error(err), zap.Int64("offset", msg.Offset))
			_ = w.reader.CommitMessages(ctx, msg)
			continue
		}

		sctx, span := tracer.Start(ctx, "dispatch.event", trace.WithAttributes(
			attribute.String("job.id", evt.JobID),
			attribute.Int("attempt", evt.Attempt),
			attribute.String("outcome", evt.Outcome),
		))
		if err := w.handler(sctx, evt); err != nil {
			span.RecordError(err)
			w.log.Error("handle event", zap.String("job_id", evt.JobID), zap.Error(err))
		}
		if err := w.reader.CommitMessages(sctx, msg); err != nil {
			span.RecordError(err)
			w.log.Error("commit", zap.Error(err))
		}
		span.End()
	}
}

// RecordAttempts returns a handler that projects each event into log.
func RecordAttempts(log repository.AttemptLog) Handler {
	return func(ctx context.Context, evt events.DispatchEvent) error {
		return log.AppendAttempt(ctx, repository.Attempt{
			JobID:         evt.JobID,
			AttemptNumber: evt.Attempt,
			PhoneNumber:   evt.PhoneNumber,
			Status:        string(evt.Status),
			Connected:     evt.Connected,
			DurationSec:   evt.DurationSec,
			Outcome:       evt.Outcome,
			Notes:         evt.Notes,
			CreatedAt:     evt.OccurredAt,
		})
	}
}
