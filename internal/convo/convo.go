// Package convo defines the transport-neutral conversation primitives the
// registration flow and task workflow exchange with the bot layer.
package convo

import "github.com/google/uuid"

// Event is a normalized inbound update. Exactly one of Text or Action is
// set: a plain message carries Text, a button press carries Action.
type Event struct {
	UserID    int64
	Username  string
	FirstName string
	Text      string
	Action    string
	// Payload holds the /start deep-link parameter when present.
	Payload string
}

// IsAction reports whether the event came from a button press.
func (e Event) IsAction() bool {
	return e.Action != ""
}

// Action is one labeled button attached to a reply. ID is a correlation
// identifier generated at construction so individual presses can be traced
// in logs.
type Action struct {
	ID    string
	Label string
	Data  string
}

// NewAction builds an Action with a fresh correlation id.
func NewAction(label, data string) Action {
	return Action{
		ID:    uuid.NewString(),
		Label: label,
		Data:  data,
	}
}

// Reply is an outbound message: text plus optional action rows. Edit asks
// the transport to replace the message the triggering action belonged to
// instead of sending a new one. HTML marks the text as HTML-formatted;
// plain replies must stay plain because Telegram rejects unescaped
// ampersands in HTML mode.
type Reply struct {
	Text    string
	Actions [][]Action
	Edit    bool
	HTML    bool
}

// NewReply builds a plain text reply.
func NewReply(text string) *Reply {
	return &Reply{Text: text}
}

// WithRow appends a row of actions to the reply.
func (r *Reply) WithRow(actions ...Action) *Reply {
	if len(actions) == 0 {
		return r
	}

	r.Actions = append(r.Actions, actions)
	return r
}

// AsEdit marks the reply as an in-place edit of the triggering message.
func (r *Reply) AsEdit() *Reply {
	r.Edit = true
	return r
}

// AsHTML marks the reply text as HTML-formatted.
func (r *Reply) AsHTML() *Reply {
	r.HTML = true
	return r
}
