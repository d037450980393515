package history

import (
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor(t *testing.T) {
	c := &Cursor{FinishedAt: time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC), JobID: "job|with|pipes"}

	encoded := EncodeCursor(c)
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.True(t, c.FinishedAt.Equal(decoded.FinishedAt))
	assert.Equal(t, c.JobID, decoded.JobID)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "!!!"},
		{name: "no separator", cursor: "bm9waXBl"},
		{name: "bad timestamp", cursor: "YWJjfGpvYg"},
		{name: "missing job id", cursor: "MTIzfA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.cursor)
			require.Error(t, err)
		})
	}

	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBuildListQuery(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		query, args := buildListQuery(Filter{})
		assert.NotContains(t, query, "AND")
		assert.Contains(t, query, "ORDER BY finished_at DESC, job_id DESC LIMIT $1")
		assert.Equal(t, []interface{}{DefaultPageSize + 1}, args)
	})

	t.Run("all filters", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		query, args := buildListQuery(Filter{
			Symbol:   " aapl ",
			Mode:     "full",
			Status:   "done",
			PageSize: 500,
			Cursor:   &Cursor{FinishedAt: at, JobID: "job-9"},
		})

		assert.Contains(t, query, "symbol = $1")
		assert.Contains(t, query, "mode = $2")
		assert.Contains(t, query, "status = $3")
		assert.Contains(t, query, "(finished_at, job_id) < ($4, $5)")
		assert.True(t, strings.HasSuffix(query, "LIMIT $6"))
		assert.Equal(t, []interface{}{"AAPL", "full", "done", at, "job-9", MaxPageSize + 1}, args)
	})
}

func TestPage(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{JobID: "c", FinishedAt: base.Add(2 * time.Minute)},
		{JobID: "b", FinishedAt: base.Add(time.Minute)},
		{JobID: "a", FinishedAt: base},
	}

	page, next := Page(records, 2)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)

	cursor, err := DecodeCursor(next)
	require.NoError(t, err)
	assert.Equal(t, "b", cursor.JobID)
	assert.True(t, cursor.FinishedAt.Equal(base.Add(time.Minute)))

	page, next = Page(records, 3)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
}

func TestFromEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
	rec := FromEvent(domain.JobEvent{
		JobID:      "job-1",
		Symbol:     "NVDA",
		Mode:       domain.ModeFull,
		Status:     domain.StatusError,
		Error:      "analysis failed",
		FinishedAt: at,
	})

	assert.Equal(t, "job-1", rec.JobID)
	assert.Equal(t, "full", rec.Mode)
	assert.Empty(t, rec.Frequency)
	assert.Equal(t, "error", rec.Status)
	assert.Equal(t, "analysis failed", rec.Error)
	assert.NotNil(t, rec.ResultKeys)
	assert.Empty(t, rec.ResultKeys)
	assert.Equal(t, time.UTC, rec.FinishedAt.Location())
	assert.True(t, at.Equal(rec.FinishedAt))
}
