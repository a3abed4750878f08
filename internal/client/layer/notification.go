package layer

// NotificationRef identifies the objects a remote notification points at.
type NotificationRef struct {
	ConversationID string
	MessageID      string
	ResponseText   string
}

// ParseNotification extracts the layer section of a push payload:
//
//	{
//	  "aps": {...},
//	  "layer": {"conversation_identifier": "...", "message_identifier": "..."},
//	  "response_text": "optional inline reply"
//	}
//
// ok is false when the payload was not meant for this client.
func ParseNotification(payload map[string]any) (NotificationRef, bool) {
	section, ok := payload["layer"].(map[string]any)
	if !ok {
		return NotificationRef{}, false
	}

	conv, _ := section["conversation_identifier"].(string)
	msg, _ := section["message_identifier"].(string)
	if conv == "" || msg == "" {
		return NotificationRef{}, false
	}

	text, _ := payload["response_text"].(string)
	return NotificationRef{ConversationID: conv, MessageID: msg, ResponseText: text}, true
}
