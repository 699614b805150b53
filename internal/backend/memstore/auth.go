package memstore

import (
	"context"
	"sync"

	"github.com/butterchat/butterchat/internal/types"
)

// StaticAuthenticator implements backend.Authenticator with a fixed
// local identity. SignIn resolves immediately with that identity; it
// exists so the client's local mode and tests have a working sign-in
// flow without a provider.
type StaticAuthenticator struct {
	user types.User

	mu        sync.Mutex
	signedIn  bool
	observers map[int]func(types.User, bool)
	nextObsId int
}

func NewStaticAuthenticator(user types.User) *StaticAuthenticator {
	return &StaticAuthenticator{
		user:      user,
		observers: make(map[int]func(types.User, bool)),
	}
}

func (a *StaticAuthenticator) CurrentUser() (types.User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.signedIn {
		return types.User{}, false
	}
	return a.user, true
}

func (a *StaticAuthenticator) OnUserChange(fn func(user types.User, signedIn bool)) (cancel func()) {
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

func (a *StaticAuthenticator) SignIn(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	a.signedIn = true
	observers := observersLocked(a.observers)
	a.mu.Unlock()

	for _, fn := range observers {
		fn(a.user, true)
	}
	return nil
}

func (a *StaticAuthenticator) SignOut() error {
	a.mu.Lock()
	a.signedIn = false
	observers := observersLocked(a.observers)
	a.mu.Unlock()

	for _, fn := range observers {
		fn(types.User{}, false)
	}
	return nil
}

func observersLocked(m map[int]func(types.User, bool)) []func(types.User, bool) {
	out := make([]func(types.User, bool), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
