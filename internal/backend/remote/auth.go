package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/backend/wire"
	"github.com/butterchat/butterchat/internal/types"
)

const pollInterval = 500 * time.Millisecond

// Authenticator implements backend.Authenticator against the backend's
// HTTP auth surface. SignIn starts an interactive grant with the named
// provider and polls until the provider resolves it; the issued token
// authenticates the websocket dial.
type Authenticator struct {
	baseURL string
	client  *http.Client
	log     *log.Logger

	mu        sync.Mutex
	pending   bool
	token     string
	user      types.User
	signedIn  bool
	observers map[int]func(types.User, bool)
	nextObsId int
}

func NewAuthenticator(baseURL string, logger *log.Logger) *Authenticator {
	return &Authenticator{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       logger,
		observers: make(map[int]func(types.User, bool)),
	}
}

func (a *Authenticator) CurrentUser() (types.User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.signedIn {
		return types.User{}, false
	}
	return a.user, true
}

// Token returns the session token issued by the last sign-in, or ""
// when signed out.
func (a *Authenticator) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *Authenticator) OnUserChange(fn func(user types.User, signedIn bool)) (cancel func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextObsId
	a.nextObsId++
	a.observers[id] = fn

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.observers, id)
	}
}

func (a *Authenticator) SignIn(ctx context.Context, provider string) error {
	a.mu.Lock()
	if a.pending {
		a.mu.Unlock()
		return backend.ErrSignInPending
	}
	a.pending = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.pending = false
		a.mu.Unlock()
	}()

	grantId, err := a.requestGrant(ctx, provider)
	if err != nil {
		return fmt.Errorf("request grant: %w", err)
	}

	tok, err := a.pollGrant(ctx, grantId)
	if err != nil {
		return fmt.Errorf("poll grant: %w", err)
	}

	a.mu.Lock()
	a.token = tok.Token
	a.user = tok.User
	a.signedIn = true
	observers := a.observersLocked()
	a.mu.Unlock()

	for _, fn := range observers {
		fn(tok.User, true)
	}
	return nil
}

func (a *Authenticator) requestGrant(ctx context.Context, provider string) (string, error) {
	body, err := json.Marshal(wire.SignInRequest{Provider: provider})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/auth/signin", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var signInResp wire.SignInResponse
	if err := json.NewDecoder(resp.Body).Decode(&signInResp); err != nil {
		return "", err
	}
	return signInResp.GrantId, nil
}

// pollGrant waits for the provider to resolve the grant. The backend
// answers 202 while the grant is unresolved and 200 with a token once
// the user has approved it.
func (a *Authenticator) pollGrant(ctx context.Context, grantId string) (wire.TokenResponse, error) {
	pollURL := a.baseURL + "/api/auth/signin/poll?grant_id=" + url.QueryEscape(grantId)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return wire.TokenResponse{}, err
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return wire.TokenResponse{}, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var tok wire.TokenResponse
			err := json.NewDecoder(resp.Body).Decode(&tok)
			resp.Body.Close()
			if err != nil {
				return wire.TokenResponse{}, err
			}
			return tok, nil
		case http.StatusAccepted:
			resp.Body.Close()
		default:
			resp.Body.Close()
			return wire.TokenResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return wire.TokenResponse{}, ctx.Err()
		}
	}
}

func (a *Authenticator) SignOut() error {
	a.mu.Lock()
	a.token = ""
	a.user = types.User{}
	a.signedIn = false
	observers := a.observersLocked()
	a.mu.Unlock()

	for _, fn := range observers {
		fn(types.User{}, false)
	}
	return nil
}

func (a *Authenticator) observersLocked() []func(types.User, bool) {
	out := make([]func(types.User, bool), 0, len(a.observers))
	for _, fn := range a.observers {
		out = append(out, fn)
	}
	return out
}
