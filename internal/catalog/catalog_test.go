package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/rtclient/internal/models"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListMeasurements(ctx context.Context) ([]models.Measurement, error) {
	args := m.Called(ctx)
	measurements, _ := args.Get(0).([]models.Measurement)
	return measurements, args.Error(1)
}

func sample() []models.Measurement {
	return []models.Measurement{
		{ID: 1, DatabaseID: 10, Index: 1, Name: "P1", DefaultAgg: "mean"},
		{ID: 2, DatabaseID: 10, Index: 2, Name: "P2", DefaultAgg: "mean"},
		{ID: 3, DatabaseID: 20, Index: 1, Name: "Q1", DefaultAgg: "last"},
	}
}

func TestRefreshAndResolve(t *testing.T) {
	lister := &mockLister{}
	lister.On("ListMeasurements", mock.Anything).Return(sample(), nil).Once()

	c, err := New(lister, 0, nil)
	require.NoError(t, err)

	got, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, c.Len())

	// Same index in two databases resolves separately.
	m, ok := c.Resolve(10, models.MeasurementValue{Index: 1})
	require.True(t, ok)
	assert.Equal(t, "P1", m.Name)

	m, ok = c.Resolve(20, models.MeasurementValue{Index: 1})
	require.True(t, ok)
	assert.Equal(t, "Q1", m.Name)

	_, ok = c.Lookup(20, 2)
	assert.False(t, ok)

	lister.AssertExpectations(t)
}

func TestRefreshFailureKeepsPreviousCatalog(t *testing.T) {
	lister := &mockLister{}
	lister.On("ListMeasurements", mock.Anything).Return(sample(), nil).Once()
	lister.On("ListMeasurements", mock.Anything).Return(nil, errors.New("unavailable")).Once()

	c, err := New(lister, 10, nil)
	require.NoError(t, err)

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)

	_, err = c.Refresh(context.Background())
	assert.Error(t, err)
	assert.Len(t, c.Measurements(), 3)
	assert.Equal(t, 3, c.Len())
}

func TestLoadReplacesAndEvicts(t *testing.T) {
	c, err := New(&mockLister{}, 2, nil)
	require.NoError(t, err)

	c.Load(sample())
	assert.Equal(t, 2, c.Len(), "cache holds at most its size")
	_, ok := c.Lookup(10, 1)
	assert.False(t, ok, "oldest entry evicted")
	assert.Len(t, c.Measurements(), 3)

	c.Load([]models.Measurement{{DatabaseID: 30, Index: 9, Name: "R9"}})
	assert.Equal(t, 1, c.Len())
	_, ok = c.Lookup(20, 1)
	assert.False(t, ok)
	m, ok := c.Lookup(30, 9)
	require.True(t, ok)
	assert.Equal(t, "R9", m.Name)
}
