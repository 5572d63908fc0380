package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Status is the result kind of one processed message.
type Status int

const (
	StatusProcessed Status = iota
	StatusIgnored
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusProcessed:
		return "processed"
	case StatusIgnored:
		return "ignored"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome records what happened to a single message of a batch.
type Outcome struct {
	MessageID string
	JobType   amqp.JobType
	UserID    string
	Status    Status
	Reason    string
}

type (
	Recalculator interface {
		Recalculate(ctx context.Context, userID string) error
	}

	ReportGenerator interface {
		GenerateMonthlyReport(ctx context.Context, userID string) (core.Report, error)
	}

	DeadLetterPublisher interface {
		PublishDeadLetter(ctx context.Context, dl amqp.DeadLetter) error
	}
)

var errMissingUserID = errors.New("message has no userId")

// JobWorker dispatches queued jobs to the budget recalculator and the report
// generator.
type JobWorker struct {
	budgets     Recalculator
	reports     ReportGenerator
	deadLetters DeadLetterPublisher
	logger      *log.Logger
	now         func() time.Time
}

// NewJobWorker wires the job handlers. deadLetters may be nil, in which case
// failed jobs are only logged.
func NewJobWorker(budgets Recalculator, reports ReportGenerator, deadLetters DeadLetterPublisher, logger *log.Logger) *JobWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &JobWorker{
		budgets:     budgets,
		reports:     reports,
		deadLetters: deadLetters,
		logger:      logger.WithComponent(log.ComponentWorker),
		now:         time.Now,
	}
}

// ProcessBatch handles msgs strictly in order, one at a time. A failing
// message never stops the rest of the batch, and cancelling ctx does not
// interrupt a batch that has started: the caller acks it afterwards.
func (w *JobWorker) ProcessBatch(ctx context.Context, msgs []amqp.Message) []Outcome {
	ctx = context.WithoutCancel(ctx)
	outcomes := make([]Outcome, 0, len(msgs))
	for _, m := range msgs {
		outcomes = append(outcomes, w.process(ctx, m))
	}
	return outcomes
}

// HandleBatch is the amqp.BatchHandler used by the consumer. It processes
// the batch, then parks every failed message on the dead-letter queue.
func (w *JobWorker) HandleBatch(ctx context.Context, msgs []amqp.Message) {
	ctx = context.WithoutCancel(ctx)
	outcomes := w.ProcessBatch(ctx, msgs)

	var processed, ignored, failed int
	for i, o := range outcomes {
		switch o.Status {
		case StatusProcessed:
			processed++
		case StatusIgnored:
			ignored++
		case StatusFailed:
			failed++
			w.deadLetter(ctx, msgs[i], o)
		}
	}

	w.logger.InfoContext(ctx, "Batch handled",
		log.FieldBatchSize, len(msgs),
		"processed", processed,
		"ignored", ignored,
		"failed", failed)
}

func (w *JobWorker) process(ctx context.Context, m amqp.Message) Outcome {
	out := Outcome{MessageID: m.ID}

	msg, err := amqp.ParseJobMessage(m.Body)
	if err != nil {
		return w.fail(ctx, out, fmt.Errorf("parse message: %w", err))
	}
	out.JobType = msg.Type
	out.UserID = msg.UserID

	if !msg.Type.Known() {
		out.Status = StatusIgnored
		return out
	}
	if msg.UserID == "" {
		return w.fail(ctx, out, errMissingUserID)
	}

	switch msg.Type {
	case amqp.JobRecalculateBudget:
		err = w.budgets.Recalculate(ctx, msg.UserID)
	case amqp.JobGenerateMonthlyReport:
		var rep core.Report
		rep, err = w.reports.GenerateMonthlyReport(ctx, msg.UserID)
		if err == nil {
			w.logger.InfoContext(ctx, "Monthly report generated",
				log.FieldReportID, rep.ID,
				log.FieldUserID, msg.UserID)
		}
	}
	if err != nil {
		return w.fail(ctx, out, err)
	}

	out.Status = StatusProcessed
	return out
}

func (w *JobWorker) fail(ctx context.Context, out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Reason = err.Error()

	fields := log.NewFields().
		WithJob(out.MessageID, string(out.JobType), out.UserID).
		WithError(err)
	w.logger.ErrorContext(ctx, "Job failed", fields.ToSlice()...)
	return out
}

func (w *JobWorker) deadLetter(ctx context.Context, m amqp.Message, o Outcome) {
	if w.deadLetters == nil {
		return
	}

	err := w.deadLetters.PublishDeadLetter(ctx, amqp.DeadLetter{
		MessageID: m.ID,
		Body:      string(m.Body),
		Reason:    o.Reason,
		FailedAt:  w.now(),
	})
	if err != nil {
		fields := log.NewFields().
			WithJob(o.MessageID, string(o.JobType), o.UserID).
			WithOperation(log.OpDeadLetter).
			WithError(err)
		w.logger.ErrorContext(ctx, "Failed to publish dead letter", fields.ToSlice()...)
	}
}
