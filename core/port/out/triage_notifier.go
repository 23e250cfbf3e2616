package out

import "context"

// NotifyAction is an action affordance attached to a human-facing notification.
type NotifyAction struct {
	Label  string `json:"label"`
	Action string `json:"action"` // e.g. "approve", "reject", "mark_interested"
	Target string `json:"target"` // draft id or pattern id
}

// Notification is a human-facing message posted to the chat-ops channel.
type Notification struct {
	Channel string         `json:"channel"`
	Text    string         `json:"text"`
	Actions []NotifyAction `json:"actions,omitempty"`
}

// HumanNotifier posts notifications to the chat-ops channel and returns the
// channel's message reference, which later human actions carry back.
type HumanNotifier interface {
	Post(ctx context.Context, n *Notification) (messageRef string, err error)
}
