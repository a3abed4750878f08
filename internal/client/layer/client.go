package layer

import (
	"context"
	"time"
)

// Client is the messaging platform client the controller consumes. The
// controller never reimplements connection management, sync or push
// decoding; it only calls these methods and listens to events.
type Client interface {
	// AppID returns the application identifier the client was built for.
	AppID() string
	// SetObserver registers the single receiver of client events.
	SetObserver(o Observer)

	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool

	// RequestNonce asks the platform for a one-time authentication nonce.
	RequestNonce(ctx context.Context) (string, error)
	// EstablishSession exchanges an identity token for a messaging session.
	EstablishSession(ctx context.Context, identityToken string) (*Session, error)
	// ResumeSession adopts a previously established session token.
	ResumeSession(ctx context.Context, sessionToken string) (*Session, error)
	// Deauthenticate drops the current session, locally and remotely.
	Deauthenticate(ctx context.Context) error

	// HandleRemoteNotification runs a bounded synchronization for the
	// conversation and message a push payload refers to.
	HandleRemoteNotification(ctx context.Context, payload map[string]any) (*NotificationResult, error)
	UpdateRemoteNotificationDeviceToken(ctx context.Context, token []byte) error
}

// Factory builds a Client once the application identifier is known.
type Factory func(appID string) (Client, error)

// Session is an established messaging session.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type Conversation struct {
	ID string `json:"id"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sent_at"`
}

// NotificationResult reports what a remote notification referred to.
// Recognized is false when the payload was not meant for this client or the
// referenced objects no longer exist.
type NotificationResult struct {
	Recognized   bool
	Conversation *Conversation
	Message      *Message
	ResponseText string
}
