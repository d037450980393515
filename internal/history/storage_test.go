package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	execs   []string
	named   []Record
	args    []any
	rows    []Record
	failing error
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) error {
	f.execs = append(f.execs, query)
	return f.failing
}

func (f *fakeDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if f.failing != nil {
		return f.failing
	}
	f.args = args
	*dest.(*[]Record) = f.rows
	return nil
}

func (f *fakeDB) NamedExecContext(ctx context.Context, query string, arg any) error {
	if f.failing != nil {
		return f.failing
	}
	f.named = append(f.named, arg.(Record))
	return nil
}

func TestStorage_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewStorage(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Equal(t, Schema, db.execs[0])

	db.failing = errors.New("permission denied")
	err := NewStorage(db).EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create history schema")
}

func TestStorage_Record(t *testing.T) {
	db := &fakeDB{}
	store := NewStorage(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Record(context.Background(), Record{JobID: "j1", Symbol: "AAPL"}))
	require.Len(t, db.named, 1)
	assert.Equal(t, now, db.named[0].RecordedAt)
	assert.NotNil(t, db.named[0].ResultKeys)

	db.failing = errors.New("connection reset")
	err := store.Record(context.Background(), Record{JobID: "j2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, db.failing)
	assert.Contains(t, err.Error(), "j2")
}

func TestStorage_List(t *testing.T) {
	db := &fakeDB{rows: []Record{{JobID: "j1"}, {JobID: "j2"}}}
	store := NewStorage(db)

	records, err := store.List(context.Background(), Filter{Symbol: "aapl", PageSize: 1})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []any{"AAPL", 2}, db.args)

	db.failing = errors.New("timeout")
	_, err = store.List(context.Background(), Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list history")
}
