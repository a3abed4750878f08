package layer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppID = "layer:///apps/staging/1"

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) ClientEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newPlatform(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string, opts ...RESTOption) (*RESTClient, *recorder) {
	t.Helper()
	c, err := NewRESTClient(url, testAppID, opts...)
	require.NoError(t, err)
	rec := &recorder{}
	c.SetObserver(rec)
	return c, rec
}

func sessionToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRESTClient_Validation(t *testing.T) {
	_, err := NewRESTClient("http://localhost", "")
	require.ErrorIs(t, err, common.ErrConfiguration)

	_, err = NewRESTClient("localhost", testAppID)
	require.ErrorIs(t, err, common.ErrConfiguration)

	c, err := NewRESTFactory("http://localhost:1")(testAppID)
	require.NoError(t, err)
	assert.Equal(t, testAppID, c.AppID())
}

func TestConnect_EmitsEvents(t *testing.T) {
	var gotAppID string
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		gotAppID = r.Header.Get(common.AppIDHeaderName)
		assert.Equal(t, "/ping", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	c, rec := newTestClient(t, srv.URL)
	require.NoError(t, c.Connect(context.Background()))

	assert.True(t, c.IsConnected())
	assert.Equal(t, testAppID, gotAppID)
	assert.Equal(t, []EventKind{EventConnecting, EventConnected}, rec.kinds())

	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.Equal(t, []EventKind{EventConnecting, EventConnected, EventDisconnected}, rec.kinds())
}

func TestConnect_Unreachable(t *testing.T) {
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()

	c, rec := newTestClient(t, url)
	err := c.Connect(context.Background())

	require.ErrorIs(t, err, common.ErrNetwork)
	assert.False(t, c.IsConnected())
	assert.Equal(t, []EventKind{EventConnecting, EventError}, rec.kinds())
	assert.ErrorIs(t, rec.last().Err, common.ErrNetwork)
}

func TestRequestNonce(t *testing.T) {
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/nonces", r.URL.Path)
		writeJSON(w, http.StatusCreated, map[string]string{"nonce": "n-1"})
	})

	c, _ := newTestClient(t, srv.URL)
	nonce, err := c.RequestNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "n-1", nonce)
}

func TestRequestNonce_EmptyNonce(t *testing.T) {
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	c, _ := newTestClient(t, srv.URL)
	_, err := c.RequestNonce(context.Background())
	require.ErrorIs(t, err, common.ErrInvalidResponse)
}

func TestEstablishSession_Success(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	var body map[string]string
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, map[string]any{
			"session_token": "sess-1",
			"user_id":       "u-1",
			"expires_at":    exp,
		})
	})

	c, _ := newTestClient(t, srv.URL)
	s, err := c.EstablishSession(context.Background(), "tok-123")
	require.NoError(t, err)

	assert.Equal(t, "tok-123", body["identity_token"])
	assert.Equal(t, testAppID, body["app_id"])
	assert.Equal(t, &Session{Token: "sess-1", UserID: "u-1", ExpiresAt: exp}, s)
	assert.Equal(t, s, c.CurrentSession())
}

func TestEstablishSession_Refused(t *testing.T) {
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad nonce"})
	})

	c, _ := newTestClient(t, srv.URL)
	_, err := c.EstablishSession(context.Background(), "tok")
	require.ErrorIs(t, err, common.ErrSDKSession)
	assert.Contains(t, err.Error(), "bad nonce")
	assert.Nil(t, c.CurrentSession())
}

func TestEstablishSession_ServerError(t *testing.T) {
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c, _ := newTestClient(t, srv.URL)
	_, err := c.EstablishSession(context.Background(), "tok")
	require.ErrorIs(t, err, common.ErrNetwork)
	assert.NotErrorIs(t, err, common.ErrSDKSession)
}

func TestResumeSession(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, "http://127.0.0.1:1", WithClock(func() time.Time { return now }))

	tok := sessionToken(t, "u-7", now.Add(time.Hour))
	s, err := c.ResumeSession(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "u-7", s.UserID)
	assert.Equal(t, tok, c.CurrentSession().Token)
}

func TestResumeSession_Rejects(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, "http://127.0.0.1:1", WithClock(func() time.Time { return now }))

	_, err := c.ResumeSession(context.Background(), sessionToken(t, "u-7", now.Add(-time.Minute)))
	require.ErrorIs(t, err, common.ErrSessionExpired)
	require.ErrorIs(t, err, common.ErrSDKSession)

	_, err = c.ResumeSession(context.Background(), "garbage")
	require.ErrorIs(t, err, common.ErrSDKSession)

	_, err = c.ResumeSession(context.Background(), "")
	require.ErrorIs(t, err, common.ErrSDKSession)

	assert.Nil(t, c.CurrentSession())
}

func TestDeauthenticate(t *testing.T) {
	var auth, method string
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions":
			writeJSON(w, http.StatusCreated, map[string]any{"session_token": "sess-1", "user_id": "u"})
		case "/sessions/current":
			auth = r.Header.Get(common.AuthorizationHeaderName)
			method = r.Method
			w.WriteHeader(http.StatusNoContent)
		}
	})

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.Deauthenticate(context.Background()))

	_, err := c.EstablishSession(context.Background(), "tok")
	require.NoError(t, err)

	require.NoError(t, c.Deauthenticate(context.Background()))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "Bearer sess-1", auth)
	assert.Nil(t, c.CurrentSession())
}

func TestDeauthenticate_DropsLocallyOnFailure(t *testing.T) {
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			writeJSON(w, http.StatusCreated, map[string]any{"session_token": "sess-1"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	c, _ := newTestClient(t, srv.URL)
	_, err := c.EstablishSession(context.Background(), "tok")
	require.NoError(t, err)

	require.Error(t, c.Deauthenticate(context.Background()))
	assert.Nil(t, c.CurrentSession())
}

func TestDeviceToken_DeferredUntilSession(t *testing.T) {
	var pushed string
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions":
			writeJSON(w, http.StatusCreated, map[string]any{"session_token": "sess-1"})
		case "/push_tokens":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			pushed = body["device_token"]
			w.WriteHeader(http.StatusNoContent)
		}
	})

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.UpdateRemoteNotificationDeviceToken(context.Background(), []byte{0xca, 0xfe}))
	assert.Empty(t, pushed)

	_, err := c.EstablishSession(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "cafe", pushed)

	require.NoError(t, c.UpdateRemoteNotificationDeviceToken(context.Background(), []byte{0xbe, 0xef}))
	assert.Equal(t, "beef", pushed)
}

func notificationPayload(conv, msg string) map[string]any {
	return map[string]any{
		"aps": map[string]any{"alert": "hi"},
		"layer": map[string]any{
			"conversation_identifier": conv,
			"message_identifier":      msg,
		},
	}
}

func authedClient(t *testing.T, h http.HandlerFunc, opts ...RESTOption) (*RESTClient, *recorder) {
	t.Helper()
	srv := newPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			writeJSON(w, http.StatusCreated, map[string]any{"session_token": "sess-1", "user_id": "u-1"})
			return
		}
		h(w, r)
	})
	c, rec := newTestClient(t, srv.URL, opts...)
	_, err := c.EstablishSession(context.Background(), "tok")
	require.NoError(t, err)
	return c, rec
}

func TestHandleRemoteNotification_Recognized(t *testing.T) {
	c, _ := authedClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/c-1/messages/m-1", r.URL.Path)
		assert.Equal(t, "Bearer sess-1", r.Header.Get(common.AuthorizationHeaderName))
		writeJSON(w, http.StatusOK, Message{ID: "m-1", ConversationID: "c-1", Text: "hello"})
	})

	payload := notificationPayload("c-1", "m-1")
	payload["response_text"] = "on my way"

	res, err := c.HandleRemoteNotification(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, res.Recognized)
	assert.Equal(t, "c-1", res.Conversation.ID)
	assert.Equal(t, "hello", res.Message.Text)
	assert.Equal(t, "on my way", res.ResponseText)
}

func TestHandleRemoteNotification_NotForUs(t *testing.T) {
	c, _ := newTestClient(t, "http://127.0.0.1:1")

	res, err := c.HandleRemoteNotification(context.Background(), map[string]any{"aps": map[string]any{}})
	require.NoError(t, err)
	assert.False(t, res.Recognized)
}

func TestHandleRemoteNotification_NotFound(t *testing.T) {
	c, _ := authedClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	res, err := c.HandleRemoteNotification(context.Background(), notificationPayload("c", "m"))
	require.NoError(t, err)
	assert.False(t, res.Recognized)
}

func TestHandleRemoteNotification_NoSession(t *testing.T) {
	c, _ := newTestClient(t, "http://127.0.0.1:1")

	_, err := c.HandleRemoteNotification(context.Background(), notificationPayload("c", "m"))
	require.ErrorIs(t, err, common.ErrSDKSession)
}

func TestHandleRemoteNotification_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	c, _ := authedClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithSyncTimeout(50*time.Millisecond))

	_, err := c.HandleRemoteNotification(context.Background(), notificationPayload("c", "m"))
	require.ErrorIs(t, err, common.ErrNetwork)
}

func TestHandleRemoteNotification_ChallengeOn401(t *testing.T) {
	c, rec := authedClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nonces":
			writeJSON(w, http.StatusCreated, map[string]string{"nonce": "fresh"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	_, err := c.HandleRemoteNotification(context.Background(), notificationPayload("c", "m"))
	require.ErrorIs(t, err, common.ErrSessionExpired)

	ev := rec.last()
	assert.Equal(t, EventAuthenticationChallenge, ev.Kind)
	assert.Equal(t, "fresh", ev.Nonce)
}

func TestConnectionLost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	c, rec := newTestClient(t, srv.URL)
	require.NoError(t, c.Connect(context.Background()))

	srv.Close()

	_, err := c.RequestNonce(context.Background())
	require.ErrorIs(t, err, common.ErrNetwork)
	assert.False(t, c.IsConnected())
	assert.Equal(t, EventConnectionLost, rec.last().Kind)
}

func TestParseNotification(t *testing.T) {
	ref, ok := ParseNotification(notificationPayload("c", "m"))
	require.True(t, ok)
	assert.Equal(t, NotificationRef{ConversationID: "c", MessageID: "m"}, ref)

	_, ok = ParseNotification(notificationPayload("", "m"))
	assert.False(t, ok)

	_, ok = ParseNotification(map[string]any{"layer": "nope"})
	assert.False(t, ok)

	_, ok = ParseNotification(nil)
	assert.False(t, ok)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "connection_lost", EventConnectionLost.String())
	assert.Equal(t, "authentication_challenge", EventAuthenticationChallenge.String())
	assert.Equal(t, "unknown", EventKind(99).String())
}
