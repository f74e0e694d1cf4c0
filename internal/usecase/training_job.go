package usecase

import (
	"context"
	"encoding/json"
	"time"

	"FinTrade/internal/domain/errs"
	domrepo "FinTrade/internal/domain/repository"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/queue"
)

// TrainJobType is the queue message type of a training request.
const TrainJobType = "model.train"

// TrainRequest is the payload of a training job.
type TrainRequest struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// TrainingJob runs the retraining loop for queued training requests.
type TrainingJob struct {
	loop *RetrainingLoop
	l    *applogger.Logger
}

func NewTrainingJob(loop *RetrainingLoop, l *applogger.Logger) *TrainingJob {
	return &TrainingJob{loop: loop, l: l.Named("train_job")}
}

func (j *TrainingJob) Name() string { return TrainJobType }

func (j *TrainingJob) Type() string { return TrainJobType }

// Handle retrains once. Too little history is not retried.
func (j *TrainingJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[TrainRequest](payload)
	if err != nil {
		return err
	}
	j.l.Info("training job received",
		applogger.String("reason", req.Reason),
		applogger.Time("requested_at", req.RequestedAt))
	_, err = j.loop.RunOnce(ctx)
	if errs.IsKind(err, errs.KindInsufficientData) {
		return nil
	}
	return err
}

// QueueTrainingRequester hands training requests to a job queue so any
// replica can pick them up.
type QueueTrainingRequester struct {
	queue queue.QueueService
}

func NewQueueTrainingRequester(q queue.QueueService) *QueueTrainingRequester {
	return &QueueTrainingRequester{queue: q}
}

func (r *QueueTrainingRequester) RequestTraining(ctx context.Context, reason string) error {
	return r.queue.PublishMessage(ctx, TrainJobType, TrainRequest{Reason: reason, RequestedAt: time.Now().UTC()})
}

var _ queue.Job = (*TrainingJob)(nil)

var (
	_ domrepo.TrainingRequester = (*QueueTrainingRequester)(nil)
	_ domrepo.TrainingRequester = (*RetrainingLoop)(nil)
)
