package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLister struct{ err error }

func (f failingLister) SelectPending(context.Context, int) ([]uuid.UUID, error) {
	return nil, f.err
}

func TestPendingSelector_Next(t *testing.T) {
	records := newRecordStore()
	older := records.add(t, "a/uploads/1.jpg", epoch)
	newer := records.add(t, "b/uploads/2.jpg", epoch.Add(time.Hour))
	records.add(t, "", epoch.Add(-time.Hour))

	ids, err := NewPendingSelector(records, 5).Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{older.ID, newer.ID}, ids)
}

func TestPendingSelector_BoundsBatch(t *testing.T) {
	records := newRecordStore()
	for i := 0; i < 4; i++ {
		records.add(t, "x/uploads/p.jpg", epoch.Add(time.Duration(i)*time.Second))
	}

	ids, err := NewPendingSelector(records, 3).Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestPendingSelector_DefaultsBatchSize(t *testing.T) {
	s := NewPendingSelector(newRecordStore(), 0)
	assert.Equal(t, DefaultBatchSize, s.batchSize)
}

func TestPendingSelector_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewPendingSelector(failingLister{err: boom}, 1).Next(context.Background())
	require.ErrorIs(t, err, boom)
}
