package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
)

func TestConcurrencyGuard_BlocksSecondJobForSameUser(t *testing.T) {
	g := NewConcurrencyGuard()
	require.NoError(t, g.Acquire("user-1", "job-a"))

	err := g.Acquire("user-1", "job-b")
	require.Error(t, err)
	var ce *core.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.ErrConcurrencyLimit, ce.Code)
}

func TestConcurrencyGuard_AllowsAfterRelease(t *testing.T) {
	g := NewConcurrencyGuard()
	require.NoError(t, g.Acquire("user-1", "job-a"))
	g.Release("user-1")
	assert.NoError(t, g.Acquire("user-1", "job-b"))
}

func TestConcurrencyGuard_SameJobIDIsIdempotent(t *testing.T) {
	g := NewConcurrencyGuard()
	require.NoError(t, g.Acquire("user-1", "job-a"))
	assert.NoError(t, g.Acquire("user-1", "job-a"))
}

type fakeExtractionFinder struct {
	record domain.ExtractionRecord
	found  bool
	err    error
}

func (f *fakeExtractionFinder) FindExisting(ctx context.Context, documentID, templateID, contentHash string) (domain.ExtractionRecord, bool, error) {
	return f.record, f.found, f.err
}

func TestCheckDuplicate_FoundMarksFromCache(t *testing.T) {
	finder := &fakeExtractionFinder{record: domain.ExtractionRecord{ID: "ext-1"}, found: true}
	rec, found, err := CheckDuplicate(context.Background(), finder, "doc-1", "tmpl-1", "hash-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, rec.FromCache)
}

func TestCheckDuplicate_NotFound(t *testing.T) {
	finder := &fakeExtractionFinder{found: false}
	_, found, err := CheckDuplicate(context.Background(), finder, "doc-1", "tmpl-1", "hash-1")
	require.NoError(t, err)
	assert.False(t, found)
}
