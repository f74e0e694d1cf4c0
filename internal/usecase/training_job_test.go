package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu   sync.Mutex
	msgs []json.RawMessage
	typ  []string
}

func (q *recordingQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.typ = append(q.typ, msgType)
	q.msgs = append(q.msgs, raw)
	return nil
}

func TestTrainingJob_Handle(t *testing.T) {
	f := newRetrainFixture(t, 55)
	job := NewTrainingJob(f.loop, applogger.Nop())
	assert.Equal(t, TrainJobType, job.Type())

	require.NoError(t, job.Handle(context.Background(), json.RawMessage(`{"reason":"cold_start"}`)))
	assert.Len(t, f.loop.Reports(), 1)

	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`[1,2]`)))
}

func TestTrainingJob_InsufficientDataIsNotRetried(t *testing.T) {
	f := newRetrainFixture(t, 10)
	job := NewTrainingJob(f.loop, applogger.Nop())
	assert.NoError(t, job.Handle(context.Background(), nil))
	assert.Empty(t, f.loop.Reports())
}

func TestQueueTrainingRequester(t *testing.T) {
	q := &recordingQueue{}
	r := NewQueueTrainingRequester(q)
	require.NoError(t, r.RequestTraining(context.Background(), "cold_start"))

	require.Len(t, q.msgs, 1)
	assert.Equal(t, TrainJobType, q.typ[0])
	req, err := queue.Decode[TrainRequest](q.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, "cold_start", req.Reason)
	assert.False(t, req.RequestedAt.IsZero())
}
