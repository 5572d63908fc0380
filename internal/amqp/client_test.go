package amqp

import (
	"context"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType JobType
		wantUser string
		wantErr  bool
	}{
		{
			name:     "recalculate",
			body:     `{"type":"RECALCULATE_BUDGET","userId":"u1"}`,
			wantType: JobRecalculateBudget,
			wantUser: "u1",
		},
		{
			name:     "report with timestamp",
			body:     `{"type":"GENERATE_MONTHLY_REPORT","userId":"u2","timestamp":"2024-06-01T00:00:00Z"}`,
			wantType: JobGenerateMonthlyReport,
			wantUser: "u2",
		},
		{
			name:     "unknown type still parses",
			body:     `{"type":"SEND_EMAIL","userId":"u3"}`,
			wantType: "SEND_EMAIL",
			wantUser: "u3",
		},
		{
			name:    "malformed",
			body:    `{"type":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseJobMessage([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.Type)
			assert.Equal(t, tt.wantUser, msg.UserID)
		})
	}
}

func TestJobTypeKnown(t *testing.T) {
	assert.True(t, JobRecalculateBudget.Known())
	assert.True(t, JobGenerateMonthlyReport.Known())
	assert.False(t, JobType("").Known())
	assert.False(t, JobType("recalculate_budget").Known())
}

func TestJobMessageToJSON(t *testing.T) {
	body, err := NewJobMessage(JobGenerateMonthlyReport, "u1").ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"GENERATE_MONTHLY_REPORT"`)
	assert.Contains(t, string(body), `"userId":"u1"`)
}

func deliveries(bodies ...string) chan amqp091.Delivery {
	ch := make(chan amqp091.Delivery, len(bodies))
	for i, b := range bodies {
		ch <- amqp091.Delivery{MessageId: string(rune('a' + i)), Body: []byte(b)}
	}
	return ch
}

func TestCollectBatch_StopsAtSize(t *testing.T) {
	ch := deliveries("1", "2", "3", "4", "5")

	batch, open := collectBatch(context.Background(), ch, 3, time.Second)
	assert.True(t, open)
	require.Len(t, batch, 3)
	assert.Equal(t, "1", string(batch[0].Body))
	assert.Equal(t, "3", string(batch[2].Body))

	batch, open = collectBatch(context.Background(), ch, 3, 10*time.Millisecond)
	assert.True(t, open)
	assert.Len(t, batch, 2)
}

func TestCollectBatch_ReturnsPartialBatchAfterWait(t *testing.T) {
	ch := deliveries("only")

	start := time.Now()
	batch, open := collectBatch(context.Background(), ch, 10, 20*time.Millisecond)
	assert.True(t, open)
	assert.Len(t, batch, 1)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCollectBatch_ClosedChannel(t *testing.T) {
	ch := deliveries("1")
	close(ch)

	batch, open := collectBatch(context.Background(), ch, 5, time.Second)
	assert.False(t, open)
	assert.Len(t, batch, 1)

	batch, open = collectBatch(context.Background(), ch, 5, time.Second)
	assert.False(t, open)
	assert.Empty(t, batch)
}

func TestCollectBatch_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, open := collectBatch(ctx, make(chan amqp091.Delivery), 5, time.Second)
	assert.True(t, open)
	assert.Empty(t, batch)
}

func TestToMessages(t *testing.T) {
	msgs := toMessages([]amqp091.Delivery{
		{MessageId: "m1", Body: []byte(`{"type":"RECALCULATE_BUDGET"}`)},
	})
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.JSONEq(t, `{"type":"RECALCULATE_BUDGET"}`, string(msgs[0].Body))
}
