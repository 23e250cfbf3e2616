package worker

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
	"triage_server/core/service/triage"
	"triage_server/pkg/logger"
)

// Handler routes dequeued jobs to the triage pipeline.
type Handler struct {
	svc *triage.Service
	log *logger.Logger
}

func NewHandler(svc *triage.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		svc: svc,
		log: log.WithField("component", "worker_handler"),
	}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	h.log.Debug("processing job: %s", msg.Type)

	switch msg.Type {
	case JobReplyProcess:
		return h.processReply(ctx, msg)
	default:
		h.log.Warn("unknown job type: %s", msg.Type)
		return nil
	}
}

func (h *Handler) processReply(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[replyProcessPayload](msg)
	if err != nil {
		return fmt.Errorf("failed to parse reply payload: %w", err)
	}
	if payload.Event == nil || payload.Event.ReplyID == "" {
		return fmt.Errorf("reply job %s has no event", msg.ID)
	}

	result := h.svc.Handle(ctx, payload.Event)
	if !result.Success {
		h.log.Warn("reply %s processed with degraded result: action=%s errors=%d",
			payload.Event.ReplyID, result.Action, len(result.Errors))
	}
	// The pipeline records its own session errors. A returned error here
	// would requeue the job and burn another classification attempt on a
	// reply the ledger already holds, so degraded results are not retried.
	return nil
}

type replyProcessPayload struct {
	Event *domain.ReplyEvent `json:"event"`
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
