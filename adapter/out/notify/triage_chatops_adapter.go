// Package notify implements the chat-ops notification channel adapter.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"triage_server/core/port/out"
	"triage_server/pkg/httputil"
	"triage_server/pkg/logger"
)

// ChatOpsAdapter implements out.HumanNotifier against a chat workspace
// webhook API (Slack-compatible message posting).
type ChatOpsAdapter struct {
	baseURL string
	token   string
	client  *http.Client
	log     *logger.Logger
}

// NewChatOpsAdapter creates a chat-ops notifier.
func NewChatOpsAdapter(baseURL, token string, log *logger.Logger) *ChatOpsAdapter {
	if log == nil {
		log = logger.Default()
	}
	return &ChatOpsAdapter{
		baseURL: baseURL,
		token:   token,
		client:  httputil.ChatOpsClient(),
		log:     log.WithField("component", "chatops"),
	}
}

type postMessageRequest struct {
	Channel string       `json:"channel"`
	Text    string       `json:"text"`
	Actions []postAction `json:"actions,omitempty"`
}

type postAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Target string `json:"target"`
}

type postMessageResponse struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Post sends a notification and returns the channel's message reference.
func (a *ChatOpsAdapter) Post(ctx context.Context, n *out.Notification) (string, error) {
	reqBody := postMessageRequest{
		Channel: n.Channel,
		Text:    n.Text,
	}
	for _, act := range n.Actions {
		reqBody.Actions = append(reqBody.Actions, postAction{
			Label:  act.Label,
			Action: act.Action,
			Target: act.Target,
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.baseURL+"/api/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := httputil.DoWithContext(ctx, a.client, req)
	if err != nil {
		return "", fmt.Errorf("failed to post notification: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat-ops API returned %d: %s", resp.StatusCode, body)
	}

	var msgResp postMessageResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if !msgResp.OK {
		return "", fmt.Errorf("chat-ops API error: %s", msgResp.Error)
	}

	a.log.WithFields(map[string]any{
		"channel":     n.Channel,
		"message_ref": msgResp.MessageID,
	}).Debug("notification posted")
	return msgResp.MessageID, nil
}

var _ out.HumanNotifier = (*ChatOpsAdapter)(nil)
