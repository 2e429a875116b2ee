package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	credential string
	err        error
	gotCode    string
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (string, error) {
	f.gotCode = code
	return f.credential, f.err
}

type fakeCredentialStore struct {
	mu    sync.Mutex
	creds map[string]string
	err   error
}

func (f *fakeCredentialStore) SetCredential(ctx context.Context, identity, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.creds == nil {
		f.creds = make(map[string]string)
	}
	f.creds[identity] = credential
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (f *fakeNotifier) Send(ctx context.Context, identity, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[string][]string)
	}
	f.sent[identity] = append(f.sent[identity], text)
	return nil
}

func newTestHandler(exchanger *fakeExchanger, creds *fakeCredentialStore, notifier *fakeNotifier) *Handler {
	logger := zerolog.Nop()
	return NewHandler(exchanger, creds, notifier, &logger)
}

func TestCallbackStoresCredential(t *testing.T) {
	exchanger := &fakeExchanger{credential: "refresh-token"}
	creds := &fakeCredentialStore{}
	notifier := &fakeNotifier{}
	h := newTestHandler(exchanger, creds, notifier)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state=nonce:15551234567", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the-code", exchanger.gotCode)
	assert.Equal(t, "refresh-token", creds.creds["15551234567"])
	require.Len(t, notifier.sent["15551234567"], 1)
	assert.Contains(t, notifier.sent["15551234567"][0], "Calendar linked")
	assert.Contains(t, rec.Body.String(), "close this tab")
}

func TestCallbackWithoutRefreshToken(t *testing.T) {
	exchanger := &fakeExchanger{credential: ""}
	creds := &fakeCredentialStore{}
	notifier := &fakeNotifier{}
	h := newTestHandler(exchanger, creds, notifier)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state=nonce:100", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, creds.creds, "nothing stored without a refresh token")
	require.Len(t, notifier.sent["100"], 1)
	assert.Contains(t, notifier.sent["100"][0], "did not return a refresh token")
}

func TestCallbackMissingParams(t *testing.T) {
	h := newTestHandler(&fakeExchanger{}, &fakeCredentialStore{}, &fakeNotifier{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackBadState(t *testing.T) {
	h := newTestHandler(&fakeExchanger{}, &fakeCredentialStore{}, &fakeNotifier{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=no-separator", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackExchangeFailure(t *testing.T) {
	exchanger := &fakeExchanger{err: errors.New("invalid_grant")}
	notifier := &fakeNotifier{}
	h := newTestHandler(exchanger, &fakeCredentialStore{}, notifier)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=bad&state=nonce:100", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, notifier.sent)
}
