// Package auth serves the OAuth redirect that completes calendar linking.
package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Foundryproject/Donna/internal/bot"
	"github.com/Foundryproject/Donna/internal/metrics"
)

// Exchanger trades an authorization code for a long-lived credential.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (string, error)
}

// CredentialStore persists the credential obtained for a user.
type CredentialStore interface {
	SetCredential(ctx context.Context, identity, credential string) error
}

// Notifier pings the user once linking finished.
type Notifier interface {
	Send(ctx context.Context, identity, text string) error
}

// Handler completes the delegated-authorization handshake. Google
// redirects here with a code and the state the /link command minted.
type Handler struct {
	exchanger Exchanger
	creds     CredentialStore
	notifier  Notifier
	logger    *zerolog.Logger
}

// NewHandler creates the callback handler.
func NewHandler(exchanger Exchanger, creds CredentialStore, notifier Notifier, logger *zerolog.Logger) *Handler {
	return &Handler{
		exchanger: exchanger,
		creds:     creds,
		notifier:  notifier,
		logger:    logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}

	identity, err := bot.ParseLinkState(state)
	if err != nil {
		h.logger.Warn().Err(err).Msg("auth callback with bad state")
		http.Error(w, "bad state", http.StatusBadRequest)
		return
	}

	credential, err := h.exchanger.Exchange(ctx, code)
	if err != nil {
		h.logger.Error().Err(err).Str("identity", identity).Msg("code exchange failed")
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}

	if credential == "" {
		// Google returns a refresh token only when consent was granted
		// fresh; without one we cannot act later.
		_ = h.notifier.Send(ctx, identity,
			"Linked, but Google did not return a refresh token. Send /link again and accept permissions.")
		h.respondDone(w)
		return
	}

	if err := h.creds.SetCredential(ctx, identity, credential); err != nil {
		h.logger.Error().Err(err).Str("identity", identity).Msg("failed to store credential")
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	metrics.IncCalendarLinked()
	h.logger.Info().Str("identity", identity).Msg("calendar linked")

	_ = h.notifier.Send(ctx, identity,
		"✅ Calendar linked! Send /today to see your agenda, or /remind to get pings before each meeting.")
	h.respondDone(w)
}

func (h *Handler) respondDone(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("You can close this tab and return to Telegram ✅"))
}
