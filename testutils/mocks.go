package testutils

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockMailService struct {
	mock.Mock
}

func (m *MockMailService) SendTemplate(ctx context.Context, templateName string, to []string, subject string, data map[string]any) error {
	args := m.Called(ctx, templateName, to, subject, data)
	return args.Error(0)
}

// LastData returns the template data of the most recent SendTemplate call.
func (m *MockMailService) LastData() map[string]any {
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == "SendTemplate" {
			return m.Calls[i].Arguments.Get(4).(map[string]any)
		}
	}
	return nil
}

type MockRevocationService struct {
	mock.Mock
}

func (m *MockRevocationService) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

func (m *MockRevocationService) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	args := m.Called(ctx, jti, expiresAt)
	return args.Error(0)
}
