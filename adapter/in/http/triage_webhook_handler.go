// Package http contains the inbound HTTP handlers.
package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/core/service/triage"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/response"
)

// WebhookHandler receives reply deliveries and human actions.
//
// Reply events are durably queued and acknowledged with 202; the worker
// runs the pipeline. Human actions are applied synchronously because the
// chat channel expects an immediate verdict to render.
type WebhookHandler struct {
	producer out.MessageProducer
	svc      *triage.Service
	log      *logger.Logger
}

func NewWebhookHandler(producer out.MessageProducer, svc *triage.Service, log *logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.Default()
	}
	return &WebhookHandler{
		producer: producer,
		svc:      svc,
		log:      log.WithField("component", "webhook_handler"),
	}
}

func (h *WebhookHandler) Register(app *fiber.App) {
	app.Post("/webhooks/reply", h.ReplyWebhook)
	app.Post("/webhooks/human-action", h.HumanActionWebhook)
}

// replyWebhookRequest is the provider's delivery payload.
type replyWebhookRequest struct {
	ReplyID  string `json:"reply_id"`
	ThreadID string `json:"thread_id"`
	LeadID   string `json:"lead_id"`
	BrainID  string `json:"brain_id"`
	Channel  string `json:"channel"`
	Text     string `json:"text"`

	LeadName       string                  `json:"lead_name"`
	LeadCompany    string                  `json:"lead_company"`
	DealValue      float64                 `json:"deal_value"`
	LastTemplateID string                  `json:"last_template_id"`
	History        []domain.HistoryMessage `json:"history"`

	ReceivedAt time.Time `json:"received_at"`
}

func (r *replyWebhookRequest) validate() error {
	switch {
	case r.ReplyID == "":
		return apperr.MissingField("reply_id")
	case r.ThreadID == "":
		return apperr.MissingField("thread_id")
	case r.LeadID == "":
		return apperr.MissingField("lead_id")
	case r.Text == "":
		return apperr.MissingField("text")
	}
	return nil
}

func (r *replyWebhookRequest) toEvent() *domain.ReplyEvent {
	channel := domain.Channel(r.Channel)
	if channel == "" {
		channel = domain.ChannelEmail
	}
	receivedAt := r.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return &domain.ReplyEvent{
		ReplyID:        r.ReplyID,
		ThreadID:       r.ThreadID,
		LeadID:         r.LeadID,
		BrainID:        r.BrainID,
		Channel:        channel,
		Text:           r.Text,
		LeadName:       r.LeadName,
		LeadCompany:    r.LeadCompany,
		DealValue:      r.DealValue,
		LastTemplateID: r.LastTemplateID,
		History:        r.History,
		ReceivedAt:     receivedAt,
	}
}

// ReplyWebhook queues an inbound reply for processing.
func (h *WebhookHandler) ReplyWebhook(c *fiber.Ctx) error {
	var req replyWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed reply payload")
	}
	if err := req.validate(); err != nil {
		return err
	}

	jobID, err := h.producer.PublishReplyEvent(c.Context(), req.toEvent())
	if err != nil {
		h.log.WithError(err).Error("failed to queue reply %s", req.ReplyID)
		return apperr.Wrap(err, apperr.CodeInternalError, "failed to queue reply", fiber.StatusInternalServerError)
	}

	h.log.WithField("reply_id", req.ReplyID).Info("reply queued: job=%s", jobID)
	return response.Accepted(c, fiber.Map{
		"reply_id": req.ReplyID,
		"job_id":   jobID,
		"status":   "queued",
	})
}

// humanActionRequest is the chat channel's action callback payload.
type humanActionRequest struct {
	ActionType string `json:"action_type"`
	TargetID   string `json:"target_id"`
	ActorID    string `json:"actor_id"`
	EditedText string `json:"edited_text"`
}

// HumanActionWebhook applies a reviewer's decision to a draft.
func (h *WebhookHandler) HumanActionWebhook(c *fiber.Ctx) error {
	var req humanActionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed action payload")
	}
	if req.ActionType == "" {
		return apperr.MissingField("action_type")
	}
	if req.TargetID == "" {
		return apperr.MissingField("target_id")
	}

	result := h.svc.HandleHumanAction(c.Context(), &domain.HumanAction{
		Type:       domain.HumanActionType(req.ActionType),
		TargetID:   req.TargetID,
		ActorID:    req.ActorID,
		EditedText: req.EditedText,
	})

	if !result.Success {
		return response.Error(c, apperr.New(result.Code, result.Message, statusForActionCode(result.Code)))
	}
	return response.OK(c, result)
}

func statusForActionCode(code string) int {
	switch code {
	case apperr.CodeInvalidHumanAction:
		return fiber.StatusConflict
	case apperr.CodeNotFound:
		return fiber.StatusNotFound
	case apperr.CodeMissingField, apperr.CodeBadRequest:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
