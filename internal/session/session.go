package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/telemetry"
	"github.com/butterchat/butterchat/internal/types"
)

// Session tracks the currently authenticated identity by observing the
// auth collaborator, and applies the sign-in failure policy: a
// conflicting sign-in attempt while one is pending is a silent no-op,
// any other failure is logged and never surfaced. Observers registered
// with OnChange see every sign-in and sign-out until cancelled.
type Session struct {
	auth       backend.Authenticator
	telemetry  telemetry.Provider
	log        *log.Logger
	cancelAuth func()

	mu        sync.Mutex
	user      types.User
	signedIn  bool
	observers map[int]func(types.User, bool)
	nextObsId int
}

func NewSession(auth backend.Authenticator, tel telemetry.Provider, logger *log.Logger) *Session {
	s := &Session{
		auth:      auth,
		telemetry: tel,
		log:       logger,
		observers: make(map[int]func(types.User, bool)),
	}

	// A prior session may have been restored by the provider.
	s.user, s.signedIn = auth.CurrentUser()
	s.cancelAuth = auth.OnUserChange(s.handleUserChange)

	return s
}

func (s *Session) handleUserChange(user types.User, signedIn bool) {
	s.mu.Lock()
	s.user, s.signedIn = user, signedIn
	observers := make([]func(types.User, bool), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(user, signedIn)
	}
}

// Current returns the latest observed identity, if any.
func (s *Session) Current() (types.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.signedIn
}

func (s *Session) OnChange(fn func(user types.User, signedIn bool)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObsId
	s.nextObsId++
	s.observers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// SignIn runs the provider's interactive flow. It blocks until the
// flow resolves and never reports failure to the caller: the user
// simply remains signed out.
func (s *Session) SignIn(ctx context.Context, provider string) {
	err := s.auth.SignIn(ctx, provider)
	switch {
	case err == nil:
		s.telemetry.Event("sign_in", map[string]any{"provider": provider})
	case errors.Is(err, backend.ErrSignInPending):
		s.log.Println("sign-in request ignored, another flow is pending")
	default:
		s.log.Println("sign-in failed:", err)
	}
}

// SignOut clears the session immediately.
func (s *Session) SignOut() {
	if err := s.auth.SignOut(); err != nil {
		s.log.Println("sign-out:", err)
		return
	}
	s.telemetry.Event("sign_out", nil)
}

// Close detaches the session from the auth collaborator. Registered
// observers receive no further notifications.
func (s *Session) Close() {
	s.cancelAuth()
}
