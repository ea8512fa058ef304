package sampler

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/convtest/types"
)

type MockProbe struct {
	mock.Mock
}

func (m *MockProbe) IsRunning(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockProbe) MemoryRSS(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockProbe) CPUPercent(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

// scriptedProbe replays a fixed sequence of readings and then reports the process as gone
type scriptedProbe struct {
	readings []types.ResourceSample
	memErrAt int // 1-based reading index whose memory read fails, 0 for none
	calls    int
}

func (p *scriptedProbe) IsRunning(ctx context.Context) (bool, error) {
	return p.calls < len(p.readings), nil
}

func (p *scriptedProbe) MemoryRSS(ctx context.Context) (uint64, error) {
	p.calls++
	if p.calls == p.memErrAt {
		return 0, errors.New("no such process")
	}
	return p.readings[p.calls-1].MemoryBytes, nil
}

func (p *scriptedProbe) CPUPercent(ctx context.Context) (float64, error) {
	return p.readings[p.calls-1].CPUPercent, nil
}

func TestEstimateCores(t *testing.T) {
	tests := []struct {
		pct      float64
		expected int
	}{
		{pct: 0, expected: 1},
		{pct: 50, expected: 1},
		{pct: 100, expected: 1},
		{pct: 100.5, expected: 2},
		{pct: 150, expected: 2},
		{pct: 399, expected: 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, EstimateCores(tt.pct), "pct=%v", tt.pct)
	}
}

func TestAggregate(t *testing.T) {
	t.Run("peaks and per-core average", func(t *testing.T) {
		stats := Aggregate([]types.ResourceSample{
			{MemoryBytes: 10, CPUPercent: 50},
			{MemoryBytes: 20, CPUPercent: 150},
		})
		assert.Equal(t, uint64(20), stats.PeakMemoryBytes)
		assert.Equal(t, 150.0, stats.PeakCPUPercent)
		assert.InDelta(t, 62.5, stats.AvgCPUPerCore, 1e-9)
		assert.Equal(t, 2, stats.Samples)
	})

	t.Run("no samples", func(t *testing.T) {
		stats := Aggregate(nil)
		assert.Equal(t, types.PeakStats{}, stats)
	})
}

func TestSampleStopsWhenProcessGone(t *testing.T) {
	probe := &scriptedProbe{readings: []types.ResourceSample{
		{MemoryBytes: 10, CPUPercent: 50},
		{MemoryBytes: 20, CPUPercent: 150},
	}}
	s := New(time.Millisecond, nil)

	samples, stats := s.Sample(context.Background(), probe, nil)

	require.Len(t, samples, 2)
	assert.Equal(t, uint64(20), stats.PeakMemoryBytes)
	assert.InDelta(t, 62.5, stats.AvgCPUPerCore, 1e-9)
}

func TestSampleStopsOnZeroMemory(t *testing.T) {
	probe := &scriptedProbe{readings: []types.ResourceSample{
		{MemoryBytes: 10, CPUPercent: 20},
		{MemoryBytes: 0, CPUPercent: 40},
		{MemoryBytes: 30, CPUPercent: 60},
	}}
	s := New(time.Millisecond, nil)

	samples, stats := s.Sample(context.Background(), probe, nil)

	require.Len(t, samples, 2, "zero reading is kept, later readings are not taken")
	assert.Equal(t, uint64(10), stats.PeakMemoryBytes)
	assert.Equal(t, 40.0, stats.PeakCPUPercent)
}

func TestSampleSkipsUnreadableSamples(t *testing.T) {
	probe := &scriptedProbe{
		readings: []types.ResourceSample{
			{MemoryBytes: 10, CPUPercent: 20},
			{MemoryBytes: 99, CPUPercent: 99},
			{MemoryBytes: 30, CPUPercent: 60},
		},
		memErrAt: 2,
	}
	s := New(time.Millisecond, nil)

	samples, stats := s.Sample(context.Background(), probe, nil)

	require.Len(t, samples, 2)
	assert.Equal(t, uint64(30), stats.PeakMemoryBytes)
	assert.Equal(t, 60.0, stats.PeakCPUPercent)
}

func TestSampleStopsOnLivenessError(t *testing.T) {
	probe := &MockProbe{}
	probe.On("IsRunning", mock.Anything).Return(true, nil).Once()
	probe.On("MemoryRSS", mock.Anything).Return(uint64(1024), nil).Once()
	probe.On("CPUPercent", mock.Anything).Return(12.5, nil).Once()
	probe.On("IsRunning", mock.Anything).Return(false, errors.New("process vanished")).Once()

	s := New(time.Millisecond, nil)
	samples, stats := s.Sample(context.Background(), probe, nil)

	require.Len(t, samples, 1)
	assert.Equal(t, uint64(1024), stats.PeakMemoryBytes)
	assert.InDelta(t, 12.5, stats.AvgCPUPerCore, 1e-9)
	probe.AssertExpectations(t)
}

func TestSampleStopsWhenExited(t *testing.T) {
	probe := &MockProbe{}
	exited := make(chan struct{})
	close(exited)

	s := New(time.Hour, nil)
	samples, stats := s.Sample(context.Background(), probe, exited)

	assert.Empty(t, samples)
	assert.Equal(t, 0, stats.Samples)
	probe.AssertNotCalled(t, "IsRunning", mock.Anything)
}

func TestSampleStopsOnContextDone(t *testing.T) {
	probe := &MockProbe{}
	probe.On("IsRunning", mock.Anything).Return(true, nil).Maybe()
	probe.On("MemoryRSS", mock.Anything).Return(uint64(1), nil).Maybe()
	probe.On("CPUPercent", mock.Anything).Return(1.0, nil).Maybe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		New(time.Millisecond, nil).Sample(ctx, probe, nil)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sampler did not stop after context cancellation")
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, New(0, nil).Interval())
	assert.Equal(t, 5*time.Millisecond, New(5*time.Millisecond, nil).Interval())
}

func TestProcessProbeSelf(t *testing.T) {
	probe, err := NewProcessProbe(context.Background(), os.Getpid())
	require.NoError(t, err)

	running, err := probe.IsRunning(context.Background())
	require.NoError(t, err)
	assert.True(t, running)

	rss, err := probe.MemoryRSS(context.Background())
	require.NoError(t, err)
	assert.Greater(t, rss, uint64(0))

	_, err = probe.CPUPercent(context.Background())
	require.NoError(t, err)
}
