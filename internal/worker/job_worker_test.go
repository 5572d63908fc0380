package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

type fakeRecalculator struct {
	calls []string
	errs  map[string]error
}

func (f *fakeRecalculator) Recalculate(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.calls = append(f.calls, userID)
	return f.errs[userID]
}

type fakeReports struct {
	calls []string
	err   error
}

func (f *fakeReports) GenerateMonthlyReport(_ context.Context, userID string) (core.Report, error) {
	f.calls = append(f.calls, userID)
	if f.err != nil {
		return core.Report{}, f.err
	}
	return core.Report{ID: "report-" + userID, UserID: userID}, nil
}

type fakeDeadLetters struct {
	letters []amqp.DeadLetter
	err     error
}

func (f *fakeDeadLetters) PublishDeadLetter(ctx context.Context, dl amqp.DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.letters = append(f.letters, dl)
	return f.err
}

func testLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Level: slog.LevelDebug, Component: log.ComponentWorker, Output: buf})
}

func msg(id, body string) amqp.Message {
	return amqp.Message{ID: id, Body: []byte(body)}
}

func TestProcessBatch_MixedBatch(t *testing.T) {
	recalc := &fakeRecalculator{}
	reports := &fakeReports{}
	var buf bytes.Buffer
	w := NewJobWorker(recalc, reports, nil, testLogger(&buf))

	outcomes := w.ProcessBatch(context.Background(), []amqp.Message{
		msg("m1", `{"type":"RECALCULATE_BUDGET",`),
		msg("m2", `{"type":"RECALCULATE_BUDGET","userId":"u1"}`),
		msg("m3", `{"type":"GENERATE_MONTHLY_REPORT","userId":"u2"}`),
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Reason, "parse message")
	assert.Equal(t, StatusProcessed, outcomes[1].Status)
	assert.Equal(t, StatusProcessed, outcomes[2].Status)

	assert.Equal(t, []string{"u1"}, recalc.calls)
	assert.Equal(t, []string{"u2"}, reports.calls)
	assert.Contains(t, buf.String(), "Job failed")
}

func TestProcessBatch_UnknownTypeIsIgnoredSilently(t *testing.T) {
	recalc := &fakeRecalculator{}
	reports := &fakeReports{}
	var buf bytes.Buffer
	w := NewJobWorker(recalc, reports, nil, testLogger(&buf))

	outcomes := w.ProcessBatch(context.Background(), []amqp.Message{
		msg("m1", `{"type":"SEND_NEWSLETTER","userId":"u1"}`),
		msg("m2", `{"userId":"u1"}`),
	})

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, StatusIgnored, o.Status)
	}
	assert.Empty(t, recalc.calls)
	assert.Empty(t, reports.calls)
	assert.Empty(t, buf.String())
}

func TestProcessBatch_MissingUserIDFails(t *testing.T) {
	recalc := &fakeRecalculator{}
	w := NewJobWorker(recalc, &fakeReports{}, nil, testLogger(&bytes.Buffer{}))

	outcomes := w.ProcessBatch(context.Background(), []amqp.Message{
		msg("m1", `{"type":"RECALCULATE_BUDGET"}`),
	})

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Empty(t, recalc.calls)
}

func TestProcessBatch_HandlerErrorDoesNotStopBatch(t *testing.T) {
	recalc := &fakeRecalculator{errs: map[string]error{"u1": errors.New("database is locked")}}
	reports := &fakeReports{err: errors.New("disk full")}
	w := NewJobWorker(recalc, reports, nil, testLogger(&bytes.Buffer{}))

	outcomes := w.ProcessBatch(context.Background(), []amqp.Message{
		msg("m1", `{"type":"RECALCULATE_BUDGET","userId":"u1"}`),
		msg("m2", `{"type":"GENERATE_MONTHLY_REPORT","userId":"u1"}`),
		msg("m3", `{"type":"RECALCULATE_BUDGET","userId":"u2"}`),
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, "database is locked", outcomes[0].Reason)
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Equal(t, StatusProcessed, outcomes[2].Status)
	assert.Equal(t, []string{"u1", "u2"}, recalc.calls)
}

func TestHandleBatch_DeadLettersFailures(t *testing.T) {
	recalc := &fakeRecalculator{errs: map[string]error{"u1": errors.New("boom")}}
	dl := &fakeDeadLetters{}
	w := NewJobWorker(recalc, &fakeReports{}, dl, testLogger(&bytes.Buffer{}))

	w.HandleBatch(context.Background(), []amqp.Message{
		msg("m1", `not json`),
		msg("m2", `{"type":"RECALCULATE_BUDGET","userId":"u1"}`),
		msg("m3", `{"type":"RECALCULATE_BUDGET","userId":"u2"}`),
		msg("m4", `{"type":"UNKNOWN","userId":"u2"}`),
	})

	require.Len(t, dl.letters, 2)
	assert.Equal(t, "m1", dl.letters[0].MessageID)
	assert.Equal(t, "not json", dl.letters[0].Body)
	assert.Equal(t, "m2", dl.letters[1].MessageID)
	assert.Equal(t, "boom", dl.letters[1].Reason)
	assert.False(t, dl.letters[1].FailedAt.IsZero())
}

func TestHandleBatch_DeadLetterErrorIsLogged(t *testing.T) {
	dl := &fakeDeadLetters{err: amqp.ErrNoDeadLetterQueue}
	var buf bytes.Buffer
	w := NewJobWorker(&fakeRecalculator{}, &fakeReports{}, dl, testLogger(&buf))

	w.HandleBatch(context.Background(), []amqp.Message{msg("m1", `{`)})

	assert.Len(t, dl.letters, 1)
	assert.Contains(t, buf.String(), "Failed to publish dead letter")
}

func TestBatch_RunsToCompletionAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recalc := &fakeRecalculator{}
	w := NewJobWorker(recalc, &fakeReports{}, nil, testLogger(&bytes.Buffer{}))
	outcomes := w.ProcessBatch(ctx, []amqp.Message{
		msg("m1", `{"type":"RECALCULATE_BUDGET","userId":"u1"}`),
		msg("m2", `{"type":"RECALCULATE_BUDGET","userId":"u2"}`),
	})

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, StatusProcessed, o.Status, o.Reason)
	}
	assert.Equal(t, []string{"u1", "u2"}, recalc.calls)

	dl := &fakeDeadLetters{}
	w = NewJobWorker(&fakeRecalculator{}, &fakeReports{}, dl, testLogger(&bytes.Buffer{}))
	w.HandleBatch(ctx, []amqp.Message{msg("m3", `{`)})
	require.Len(t, dl.letters, 1)
	assert.Equal(t, "m3", dl.letters[0].MessageID)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "processed", StatusProcessed.String())
	assert.Equal(t, "ignored", StatusIgnored.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
