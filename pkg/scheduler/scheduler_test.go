package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) SweepOverdue(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLedger) SendReminders(ctx context.Context, days int) (int, error) {
	args := m.Called(ctx, days)
	return args.Int(0), args.Error(1)
}

func TestRunOnce(t *testing.T) {
	l := new(mockLedger)
	l.On("SweepOverdue", mock.Anything).Return(int64(4), nil)
	l.On("SendReminders", mock.Anything, 3).Return(2, nil)

	logger, hook := test.NewNullLogger()
	s := New(l, 3, logger)

	assert.NoError(t, s.RunOnce(context.Background()))
	l.AssertExpectations(t)
	assert.Equal(t, int64(4), hook.LastEntry().Data["marked"])
	assert.Equal(t, 2, hook.LastEntry().Data["sent"])
}

func TestRunOnceSweepFailureStillReminds(t *testing.T) {
	l := new(mockLedger)
	l.On("SweepOverdue", mock.Anything).Return(int64(0), errors.New("db locked"))
	l.On("SendReminders", mock.Anything, 1).Return(1, nil)

	logger, _ := test.NewNullLogger()
	s := New(l, 1, logger)

	err := s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db locked")
	l.AssertCalled(t, "SendReminders", mock.Anything, 1)
}

func TestStartRejectsBadSpec(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := New(new(mockLedger), 3, logger)
	assert.Error(t, s.Start("every tuesday"))
}

func TestStartAndStop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := New(new(mockLedger), 3, logger)
	assert.NoError(t, s.Start("0 6 * * *"))
	s.Stop(context.Background())
}
