package backend

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/butterchat/butterchat/internal/types"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateDocument(ctx context.Context, path string, fields map[string]any) (Document, error) {
	args := m.Called(ctx, path, fields)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) SubscribeOrderedQuery(path, orderField string, dir Direction, limit int, onUpdate func([]Document)) (Subscription, error) {
	args := m.Called(path, orderField, dir, limit, onUpdate)
	if sub, ok := args.Get(0).(Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) CurrentUser() (types.User, bool) {
	args := m.Called()
	return args.Get(0).(types.User), args.Bool(1)
}

func (m *MockAuthenticator) OnUserChange(fn func(user types.User, signedIn bool)) (cancel func()) {
	args := m.Called(fn)
	if c, ok := args.Get(0).(func()); ok {
		return c
	}
	return func() {}
}

func (m *MockAuthenticator) SignIn(ctx context.Context, provider string) error {
	args := m.Called(ctx, provider)
	return args.Error(0)
}

func (m *MockAuthenticator) SignOut() error {
	args := m.Called()
	return args.Error(0)
}
