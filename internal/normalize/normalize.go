// Package normalize extracts the canonical message fields from a Telegram
// style update. It is pure: it never fails, it only decides whether an update
// carries a message at all.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
)

// Message is the platform-agnostic view of an inbound update. Empty strings
// mean the field was absent.
type Message struct {
	ThreadID   string
	MessageID  string
	SenderID   string
	SenderName string
	Text       string
	Raw        map[string]any
}

// Normalize maps an update to a Message. It reports false when the update has
// neither a message nor an edited_message object.
func Normalize(update map[string]any) (Message, bool) {
	payload, ok := update["message"].(map[string]any)
	if !ok {
		payload, ok = update["edited_message"].(map[string]any)
	}
	if !ok {
		return Message{}, false
	}

	msg := Message{
		MessageID: scalar(payload["message_id"]),
		Raw:       update,
	}

	if chat, ok := payload["chat"].(map[string]any); ok {
		msg.ThreadID = scalar(chat["id"])
	}
	if from, ok := payload["from"].(map[string]any); ok {
		msg.SenderID = scalar(from["id"])
		msg.SenderName = text(from["first_name"])
	}

	if t := text(payload["text"]); t != "" {
		msg.Text = t
	} else {
		msg.Text = text(payload["caption"])
	}

	return msg, true
}

func text(v any) string {
	s, _ := v.(string)
	return s
}

// scalar renders an id-like value as a string. Integral numbers are printed
// without a fraction; non-scalar values are treated as absent.
func scalar(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return scalar(float64(n))
	case int:
		return strconv.Itoa(n)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	default:
		return ""
	}
}
