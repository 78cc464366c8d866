package dispatch

import "github.com/botdesk/botstream/internal/model"

// ByType wraps h so it only sees messages of the given kind.
func ByType(kind string, h Handler) Handler {
	return &filtered{next: h, match: func(m model.Message) bool { return m.Type == kind }}
}

// ByBot wraps h so it only sees bot updates for one bot. A bot detail view
// subscribes with this.
func ByBot(botID string, h Handler) Handler {
	return &filtered{next: h, match: func(m model.Message) bool {
		return m.IsBotUpdate() && m.BotID == botID
	}}
}

// filtered is a pointer type so a wrapped handler can be unsubscribed by the
// value ByType/ByBot returned.
type filtered struct {
	next  Handler
	match func(model.Message) bool
}

func (f *filtered) Handle(msg model.Message) {
	if f.match(msg) {
		f.next.Handle(msg)
	}
}
