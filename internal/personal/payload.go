// Package personal runs the personal-account listener: an MTProto user
// session whose inbound messages are forwarded to the backend, plus the
// authenticated endpoint the backend uses to reply through that session.
package personal

// Event is an inbound message seen by the user session.
type Event struct {
	MessageID int
	SenderID  int64
	IsBot     bool
	FirstName string
	Username  string
	// ChatID is zero when the chat could not be resolved; the sender id is
	// used instead.
	ChatID  int64
	Private bool
	Date    int
	Text    string
	Raw     map[string]any
}

// BuildPayload renders an Event in the Bot API update shape accepted by the
// backend personal webhook.
func BuildPayload(e Event) map[string]any {
	from := map[string]any{
		"id":         nilIfZero(e.SenderID),
		"is_bot":     e.IsBot,
		"first_name": nilIfEmpty(e.FirstName),
		"username":   nilIfEmpty(e.Username),
	}

	chatID := e.ChatID
	if chatID == 0 {
		chatID = e.SenderID
	}
	chatType := "group"
	if e.Private {
		chatType = "private"
	}

	var date any
	if e.Date > 0 {
		date = e.Date
	}
	var raw any
	if e.Raw != nil {
		raw = e.Raw
	}

	return map[string]any{
		"update_id": nil,
		"message": map[string]any{
			"message_id": e.MessageID,
			"from":       from,
			"chat": map[string]any{
				"id":   nilIfZero(chatID),
				"type": chatType,
			},
			"date": date,
			"text": e.Text,
			"raw":  raw,
		},
	}
}

func nilIfZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
