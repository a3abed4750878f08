package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/metrics"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/users"
)

// IdentityService is the part of users.Service the identity handlers use.
type IdentityService interface {
	Register(ctx context.Context, r users.Registration) (*users.User, error)
	Authenticate(ctx context.Context, appID, email, password, nonce string) (string, error)
	Refresh(ctx context.Context, appID, identityToken, nonce string) (string, error)
}

type identityHandlers struct {
	svc     IdentityService
	logger  logging.Logger
	metrics *metrics.Metrics
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type registerResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nonce    string `json:"nonce"`
}

type refreshRequest struct {
	Nonce string `json:"nonce"`
}

type tokenResponse struct {
	IdentityToken string `json:"identity_token"`
}

// NewIdentityRouter serves POST /users, /authenticate and /refresh. The app
// ID is taken from the X-Layer-App-ID header.
func NewIdentityRouter(svc IdentityService, logger logging.Logger, m *metrics.Metrics) http.Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	h := &identityHandlers{svc: svc, logger: logger, metrics: m}

	r := newRouter("identity", logger, m)
	r.Post("/users", h.register)
	r.Post("/authenticate", h.authenticate)
	r.Post("/refresh", h.refresh)
	return r
}

func (h *identityHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, "register", err)
		return
	}

	u, err := h.svc.Register(r.Context(), users.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}

	h.record("register", metrics.OutcomeSuccess)
	writeJSON(w, http.StatusCreated, registerResponse{ID: u.ID, Email: u.Email})
}

func (h *identityHandlers) authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, "authenticate", err)
		return
	}

	appID := r.Header.Get(common.AppIDHeaderName)
	token, err := h.svc.Authenticate(r.Context(), appID, req.Email, req.Password, req.Nonce)
	if err != nil {
		h.fail(w, r, "authenticate", err)
		return
	}

	h.record("authenticate", metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, tokenResponse{IdentityToken: token})
}

func (h *identityHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	identity, err := bearerToken(r)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, "refresh", err)
		return
	}

	appID := r.Header.Get(common.AppIDHeaderName)
	token, err := h.svc.Refresh(r.Context(), appID, identity, req.Nonce)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}

	h.record("refresh", metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, tokenResponse{IdentityToken: token})
}

func (h *identityHandlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	outcome := metrics.OutcomeRejected
	if statusFor(err) == http.StatusInternalServerError {
		outcome = metrics.OutcomeError
		h.logger.Error(r.Context(), op+" failed", "error", err)
	} else if !errors.Is(err, common.ErrAlreadyExists) {
		h.logger.Info(r.Context(), op+" rejected", "error", err)
	}
	h.record(op, outcome)
	writeError(w, err)
}

func (h *identityHandlers) record(op, outcome string) {
	if h.metrics != nil {
		h.metrics.Identity(op, outcome)
	}
}

