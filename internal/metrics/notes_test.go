package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noteease/internal/notes"
)

func TestRecordOperation(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewNoteMetrics(registry)
	require.NoError(t, err)

	m.RecordOperation("add_or_update", 2*time.Millisecond, nil)
	m.RecordOperation("add_or_update", 3*time.Millisecond, nil)
	m.RecordOperation("add_or_update", time.Millisecond, notes.NewStorageFailure("insert note", errors.New("locked")))
	m.RecordOperation("toggle_pin", time.Millisecond, notes.ErrStoreClosed)
	m.RecordOperation("share_notes", time.Millisecond, errors.New("no share target"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.operationsTotal.WithLabelValues("add_or_update", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operationsTotal.WithLabelValues("add_or_update", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operationErrorsTotal.WithLabelValues("add_or_update", "storage")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operationErrorsTotal.WithLabelValues("toggle_pin", "closed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operationErrorsTotal.WithLabelValues("share_notes", "other")))

	assert.Equal(t, 3, testutil.CollectAndCount(m.operationDuration))
}

func TestLiveSessions(t *testing.T) {
	m, err := NewNoteMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.liveSessions))
}

func TestNewNoteMetrics_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewNoteMetrics(registry)
	require.NoError(t, err)

	_, err = NewNoteMetrics(registry)
	assert.Error(t, err)
}
