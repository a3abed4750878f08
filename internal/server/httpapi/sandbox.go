package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/auth"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/metrics"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/sandbox"
	"github.com/go-chi/chi/v5"
)

type claimsKey struct{}

type sandboxHandlers struct {
	platform *sandbox.Platform
	logger   logging.Logger
	metrics  *metrics.Metrics
}

type sessionRequest struct {
	IdentityToken string `json:"identity_token"`
	AppID         string `json:"app_id"`
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

type pushTokenRequest struct {
	DeviceToken string `json:"device_token"`
}

type postMessageRequest struct {
	Text string `json:"text"`
}

// NewSandboxRouter serves the messaging platform emulation:
//
//	GET    /ping
//	POST   /nonces
//	POST   /sessions
//	DELETE /sessions/current                                  (bearer)
//	POST   /push_tokens                                       (bearer)
//	POST   /conversations/{conversationID}/messages           (bearer)
//	GET    /conversations/{conversationID}/messages/{messageID} (bearer)
func NewSandboxRouter(p *sandbox.Platform, logger logging.Logger, m *metrics.Metrics) http.Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	h := &sandboxHandlers{platform: p, logger: logger, metrics: m}

	r := newRouter("sandbox", logger, m)
	r.Get("/ping", h.ping)
	r.Post("/nonces", h.issueNonce)
	r.Post("/sessions", h.establish)

	r.Group(func(r chi.Router) {
		r.Use(h.authorize)
		r.Delete("/sessions/current", h.revoke)
		r.Post("/push_tokens", h.pushToken)
		r.Route("/conversations/{conversationID}/messages", func(r chi.Router) {
			r.Post("/", h.postMessage)
			r.Get("/{messageID}", h.getMessage)
		})
	})
	return r
}

// authorize rejects requests without a valid, unrevoked session token and
// stores the session claims in the request context.
func (h *sandboxHandlers) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		claims, err := h.platform.Authorize(token)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func sessionClaims(r *http.Request) *auth.SessionClaims {
	c, _ := r.Context().Value(claimsKey{}).(*auth.SessionClaims)
	return c
}

func (h *sandboxHandlers) ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *sandboxHandlers) issueNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := h.platform.IssueNonce()
	if err != nil {
		h.logger.Error(r.Context(), "issue nonce failed", "error", err)
		writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.NoncesIssued.Inc()
	}
	writeJSON(w, http.StatusCreated, nonceResponse{Nonce: nonce})
}

func (h *sandboxHandlers) establish(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	grant, err := h.platform.EstablishSession(req.IdentityToken, req.AppID)
	if err != nil {
		outcome := metrics.OutcomeRejected
		if statusFor(err) == http.StatusInternalServerError {
			outcome = metrics.OutcomeError
		}
		h.recordSession(outcome)
		h.logger.Info(r.Context(), "session refused", "error", err)
		writeError(w, err)
		return
	}

	h.recordSession(metrics.OutcomeSuccess)
	h.logger.Info(r.Context(), "session established", "user_id", grant.UserID)
	writeJSON(w, http.StatusCreated, grant)
}

func (h *sandboxHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	h.platform.Revoke(sessionClaims(r))
	if h.metrics != nil {
		h.metrics.SessionsRevoked.Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sandboxHandlers) pushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.platform.RegisterPushToken(sessionClaims(r).Subject, req.DeviceToken); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sandboxHandlers) postMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.platform.PostMessage(chi.URLParam(r, "conversationID"), sessionClaims(r).Subject, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *sandboxHandlers) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.platform.Message(chi.URLParam(r, "conversationID"), chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *sandboxHandlers) recordSession(outcome string) {
	if h.metrics != nil {
		h.metrics.Session(outcome)
	}
}
