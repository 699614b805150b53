package telemetry

import "github.com/stretchr/testify/mock"

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Event(name string, params map[string]any) {
	m.Called(name, params)
}
