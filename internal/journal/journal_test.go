package journal_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amankrah/fsvc-sub000/internal/journal"
	"github.com/Amankrah/fsvc-sub000/internal/model"
)

func openTestJournal(t *testing.T) (*journal.Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

func entry(respondent uuid.UUID, unresolved int, resolved ...model.ResolvedAnswer) journal.Entry {
	return journal.Entry{
		RespondentID: respondent,
		Resolved:     resolved,
		Unresolved:   unresolved,
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t)

	runID, projectID := uuid.New(), uuid.New()
	run, resumed, err := j.OpenRun(ctx, runID, projectID, "farmer|rice|GH", "v1:abc")
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, runID, run.ID())

	r1, r2 := uuid.New(), uuid.New()
	resolution := model.ResolvedAnswer{
		AnswerID:     uuid.New(),
		RespondentID: r1,
		BankItemID:   uuid.New(),
		Strategy:     model.StrategyCategoryPosition,
	}
	require.NoError(t, run.Checkpoint(ctx, entry(r1, 1, resolution)))
	require.NoError(t, run.Checkpoint(ctx, entry(r2, 0)))

	entries, err := run.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []model.ResolvedAnswer{resolution}, entries[r1].Resolved)
	assert.Equal(t, 1, entries[r1].Unresolved)
	assert.Empty(t, entries[r2].Resolved)

	require.NoError(t, run.Complete(ctx))
}

func TestOpenRunResumesMatchingFingerprint(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t)

	runID, projectID := uuid.New(), uuid.New()
	run, _, err := j.OpenRun(ctx, runID, projectID, "", "v1:abc")
	require.NoError(t, err)

	respondent := uuid.New()
	require.NoError(t, run.Checkpoint(ctx, entry(respondent, 3)))

	again, resumed, err := j.OpenRun(ctx, runID, projectID, "", "v1:abc")
	require.NoError(t, err)
	assert.True(t, resumed)

	entries, err := again.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[respondent].Unresolved)
}

func TestOpenRunResetsOnFingerprintMismatch(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t)

	runID, projectID := uuid.New(), uuid.New()
	run, _, err := j.OpenRun(ctx, runID, projectID, "", "v1:abc")
	require.NoError(t, err)
	require.NoError(t, run.Checkpoint(ctx, entry(uuid.New(), 1)))

	// The catalog changed between runs; cached work is unusable.
	fresh, resumed, err := j.OpenRun(ctx, runID, projectID, "", "v1:def")
	require.NoError(t, err)
	assert.False(t, resumed)

	entries, err := fresh.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenRunResetsOnScopeChange(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t)

	runID, projectID := uuid.New(), uuid.New()
	run, _, err := j.OpenRun(ctx, runID, projectID, "farmer|rice|GH", "v1:abc")
	require.NoError(t, err)
	require.NoError(t, run.Checkpoint(ctx, entry(uuid.New(), 0)))

	_, resumed, err := j.OpenRun(ctx, runID, projectID, "farmer|rice|KE", "v1:abc")
	require.NoError(t, err)
	assert.False(t, resumed)
}

func TestCheckpointReplacesPriorEntry(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t)

	run, _, err := j.OpenRun(ctx, uuid.New(), uuid.New(), "", "v1:abc")
	require.NoError(t, err)

	respondent := uuid.New()
	require.NoError(t, run.Checkpoint(ctx, entry(respondent, 5)))
	require.NoError(t, run.Checkpoint(ctx, entry(respondent, 2)))

	entries, err := run.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[respondent].Unresolved)
}

func TestJournalSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	j, err := journal.Open(path)
	require.NoError(t, err)
	runID, projectID := uuid.New(), uuid.New()
	run, _, err := j.OpenRun(ctx, runID, projectID, "", "v1:abc")
	require.NoError(t, err)
	respondent := uuid.New()
	require.NoError(t, run.Checkpoint(ctx, entry(respondent, 7)))
	require.NoError(t, j.Close())

	j, err = journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	run, resumed, err := j.OpenRun(ctx, runID, projectID, "", "v1:abc")
	require.NoError(t, err)
	assert.True(t, resumed)
	entries, err := run.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, entries[respondent].Unresolved)
}
