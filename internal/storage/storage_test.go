package storage_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amankrah/fsvc-sub000/internal/model"
	"github.com/Amankrah/fsvc-sub000/internal/storage"
	"github.com/Amankrah/fsvc-sub000/internal/testutil"
	"github.com/Amankrah/fsvc-sub000/migrations"
)

// testDB is shared by every test in the package; TestMain owns its lifecycle.
var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func newTestProject(t *testing.T, name string) model.Project {
	t.Helper()
	p, err := testDB.CreateProject(context.Background(), model.Project{
		Name:            name,
		RespondentTypes: []string{"farmer", "processor", "trader"},
		Commodities:     []string{"rice", "maize"},
		Countries:       []string{"GH", "KE"},
	})
	require.NoError(t, err)
	return p
}

func TestMigrationsIdempotent(t *testing.T) {
	// TestMain already ran them once; a second pass must be a no-op.
	require.NoError(t, testDB.RunMigrations(context.Background(), migrations.FS))
}

func TestCreateAndGetProject(t *testing.T) {
	ctx := context.Background()

	p := newTestProject(t, "ghana-rice-baseline")
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, 0, p.NextOrdinal)

	got, err := testDB.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ghana-rice-baseline", got.Name)
	assert.Equal(t, []string{"farmer", "processor", "trader"}, got.RespondentTypes)
	assert.Equal(t, []string{"rice", "maize"}, got.Commodities)
}

func TestGetProjectNotFound(t *testing.T) {
	_, err := testDB.GetProject(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateAndGetBankItem(t *testing.T) {
	ctx := context.Background()

	item, err := testDB.CreateBankItem(ctx, model.BankItem{
		Text:            "What is your main source of irrigation water?",
		Category:        model.CategoryProduction,
		Priority:        5,
		WorkPackage:     "wp2",
		SourceTags:      []string{"baseline", "water"},
		RespondentTypes: model.MatchOneOf("farmer"),
		Commodities:     model.MatchAny(),
		Countries:       model.MatchOneOf("GH", "KE"),
	})
	require.NoError(t, err)

	got, err := testDB.GetBankItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Text, got.Text)
	assert.Equal(t, model.CategoryProduction, got.Category)
	assert.Equal(t, 5, got.Priority)
	assert.Equal(t, []string{"baseline", "water"}, got.SourceTags)

	// Axis filters survive the text[] round trip, including match-any.
	assert.Equal(t, []string{"farmer"}, got.RespondentTypes.Values())
	assert.True(t, got.Commodities.IsAny())
	assert.Equal(t, []string{"GH", "KE"}, got.Countries.Values())
}

func TestGetBankItemNotFound(t *testing.T) {
	_, err := testDB.GetBankItem(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertBankItemsCOPY(t *testing.T) {
	ctx := context.Background()

	items := make([]model.BankItem, 50)
	for i := range items {
		items[i] = model.BankItem{
			Text:     fmt.Sprintf("copy-batch question %d", i),
			Category: model.CategoryConsumption,
			Priority: i % 7,
		}
	}

	count, err := testDB.InsertBankItems(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)
}

func TestGetBankItemsByIDs(t *testing.T) {
	ctx := context.Background()

	a, err := testDB.CreateBankItem(ctx, model.BankItem{
		Text: "byids question a", Category: model.CategoryProduction,
	})
	require.NoError(t, err)
	b, err := testDB.CreateBankItem(ctx, model.BankItem{
		Text: "byids question b", Category: model.CategoryGovernance,
	})
	require.NoError(t, err)

	missing := uuid.New()
	got, err := testDB.GetBankItemsByIDs(ctx, []uuid.UUID{a.ID, b.ID, missing})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "byids question a", got[a.ID].Text)
	assert.Equal(t, "byids question b", got[b.ID].Text)
	_, ok := got[missing]
	assert.False(t, ok)

	got, err = testDB.GetBankItemsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInsertGeneratedQuestionsAssignsOrdinals(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "ordinal-test")
	tuple := model.TargetingTuple{RespondentType: "farmer", Commodity: "rice", Country: "GH"}

	candidates := []model.GeneratedQuestion{
		{Tuple: tuple, Text: "How old are you?"},
		{Tuple: tuple, Text: "What is your gender?"},
		{Tuple: tuple, Text: "What is your highest education level?"},
	}

	result, err := testDB.InsertGeneratedQuestions(ctx, p.ID, candidates, false)
	require.NoError(t, err)
	require.Len(t, result.Created, 3)
	for i, q := range result.Created {
		assert.Equal(t, i, q.Ordinal)
		assert.Equal(t, p.ID, q.ProjectID)
	}

	// A second call skips the duplicate key and continues the ordinal run.
	more := []model.GeneratedQuestion{
		{Tuple: tuple, Text: "What is your gender?"}, // duplicate
		{Tuple: tuple, Text: "How many household members?"},
	}
	result, err = testDB.InsertGeneratedQuestions(ctx, p.ID, more, false)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 3, result.Created[0].Ordinal)

	// Same text under a different tuple is a distinct key, not a duplicate.
	otherTuple := model.TargetingTuple{RespondentType: "trader", Commodity: "rice", Country: "GH"}
	result, err = testDB.InsertGeneratedQuestions(ctx, p.ID,
		[]model.GeneratedQuestion{{Tuple: otherTuple, Text: "How old are you?"}}, false)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, 4, result.Created[0].Ordinal)
}

func TestInsertGeneratedQuestionsReplaceExisting(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "replace-test")
	tuple := model.TargetingTuple{RespondentType: "farmer", Commodity: "maize", Country: "KE"}

	first := []model.GeneratedQuestion{
		{Tuple: tuple, Text: "q-one"},
		{Tuple: tuple, Text: "q-two"},
	}
	_, err := testDB.InsertGeneratedQuestions(ctx, p.ID, first, false)
	require.NoError(t, err)

	second := []model.GeneratedQuestion{
		{Tuple: tuple, Text: "q-one"},
		{Tuple: tuple, Text: "q-three"},
	}
	result, err := testDB.InsertGeneratedQuestions(ctx, p.ID, second, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	require.Len(t, result.Created, 2)

	// Ordinals continue past the deleted rows; they are never reused.
	assert.Equal(t, 2, result.Created[0].Ordinal)
	assert.Equal(t, 3, result.Created[1].Ordinal)

	questions, err := testDB.ListQuestionsByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "q-one", questions[0].Text)
	assert.Equal(t, "q-three", questions[1].Text)
}

func TestInsertGeneratedQuestionsProjectNotFound(t *testing.T) {
	_, err := testDB.InsertGeneratedQuestions(context.Background(), uuid.New(),
		[]model.GeneratedQuestion{{Text: "orphan"}}, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConcurrentInsertsKeepOrdinalsDistinct(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "concurrent-test")
	tuple := model.TargetingTuple{RespondentType: "processor", Commodity: "rice", Country: "GH"}

	const perWriter = 10
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for w := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]model.GeneratedQuestion, perWriter)
			for i := range batch {
				batch[i] = model.GeneratedQuestion{
					Tuple: tuple,
					Text:  fmt.Sprintf("writer-%d question %d", w, i),
				}
			}
			_, errs[w] = testDB.InsertGeneratedQuestions(ctx, p.ID, batch, false)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	questions, err := testDB.ListQuestionsByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, questions, 2*perWriter)

	seen := make(map[int]bool)
	for _, q := range questions {
		assert.False(t, seen[q.Ordinal], "ordinal %d assigned twice", q.Ordinal)
		seen[q.Ordinal] = true
		assert.Less(t, q.Ordinal, 2*perWriter)
	}
}

func TestAppendQuestionDuplicate(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "append-test")
	tuple := model.TargetingTuple{RespondentType: "farmer", Commodity: "rice", Country: "GH"}

	q, err := testDB.AppendQuestion(ctx, model.GeneratedQuestion{
		ProjectID: p.ID,
		Tuple:     tuple,
		Text:      "Any other comments?",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, q.Ordinal)
	assert.Nil(t, q.BankItemID)

	_, err = testDB.AppendQuestion(ctx, model.GeneratedQuestion{
		ProjectID: p.ID,
		Tuple:     tuple,
		Text:      "Any other comments?",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateQuestion)
}

func TestGetQuestionsByIDs(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "byids-test")
	tuple := model.TargetingTuple{RespondentType: "farmer", Commodity: "rice", Country: "GH"}

	result, err := testDB.InsertGeneratedQuestions(ctx, p.ID, []model.GeneratedQuestion{
		{Tuple: tuple, Text: "byids-a"},
		{Tuple: tuple, Text: "byids-b"},
	}, false)
	require.NoError(t, err)

	missing := uuid.New()
	got, err := testDB.GetQuestionsByIDs(ctx, []uuid.UUID{
		result.Created[0].ID, result.Created[1].ID, missing,
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, result.Created[0].ID)
	assert.Contains(t, got, result.Created[1].ID)
	assert.NotContains(t, got, missing)
}

func TestDeleteQuestion(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "delete-test")

	q, err := testDB.AppendQuestion(ctx, model.GeneratedQuestion{
		ProjectID: p.ID,
		Tuple:     model.TargetingTuple{RespondentType: "farmer", Commodity: "rice", Country: "GH"},
		Text:      "to be deleted",
	})
	require.NoError(t, err)

	require.NoError(t, testDB.DeleteQuestion(ctx, q.ID))
	assert.ErrorIs(t, testDB.DeleteQuestion(ctx, q.ID), storage.ErrNotFound)

	_, err = testDB.GetQuestion(ctx, q.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateAndListRespondents(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "respondent-test")

	ghTuple := model.TargetingTuple{RespondentType: "farmer", Commodity: "rice", Country: "GH"}
	keTuple := model.TargetingTuple{RespondentType: "farmer", Commodity: "rice", Country: "KE"}

	r1, err := testDB.CreateRespondent(ctx, model.Respondent{ProjectID: p.ID, Tuple: ghTuple})
	require.NoError(t, err)
	assert.Equal(t, model.CompletionInProgress, r1.State)

	_, err = testDB.CreateRespondent(ctx, model.Respondent{ProjectID: p.ID, Tuple: keTuple})
	require.NoError(t, err)

	all, err := testDB.ListRespondents(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := testDB.ListRespondents(ctx, p.ID, &ghTuple)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, r1.ID, scoped[0].ID)
}

func TestUpdateRespondentState(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "state-test")

	r, err := testDB.CreateRespondent(ctx, model.Respondent{
		ProjectID: p.ID,
		Tuple:     model.TargetingTuple{RespondentType: "trader", Commodity: "maize", Country: "KE"},
	})
	require.NoError(t, err)

	require.NoError(t, testDB.UpdateRespondentState(ctx, r.ID, model.CompletionCompleted))
	got, err := testDB.GetRespondent(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CompletionCompleted, got.State)

	err = testDB.UpdateRespondentState(ctx, uuid.New(), model.CompletionAbandoned)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReserveCaptureSeqs(t *testing.T) {
	ctx := context.Background()

	nums, err := testDB.ReserveCaptureSeqs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, nums, 10)
	for i := 1; i < len(nums); i++ {
		assert.Greater(t, nums[i], nums[i-1])
	}

	more, err := testDB.ReserveCaptureSeqs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Greater(t, more[0], nums[9])

	none, err := testDB.ReserveCaptureSeqs(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestInsertAnswersCOPYAndListOrder(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "answer-test")
	tuple := model.TargetingTuple{RespondentType: "farmer", Commodity: "rice", Country: "GH"}

	r, err := testDB.CreateRespondent(ctx, model.Respondent{ProjectID: p.ID, Tuple: tuple})
	require.NoError(t, err)

	nums, err := testDB.ReserveCaptureSeqs(ctx, 3)
	require.NoError(t, err)

	bankID := uuid.New()
	collected := time.Now().UTC()
	snapshot := model.CapturedContext{
		BankItemID: &bankID,
		Category:   model.CategorySociodemographics,
		Tuple:      tuple,
		Priority:   7,
		SourceTags: []string{"baseline"},
	}

	answers := []model.AnswerRecord{
		{
			ID: uuid.New(), RespondentID: r.ID, Value: "42",
			Context: snapshot, ContextHash: snapshot.ContentHash(),
			// Same timestamp on purpose: the sequence must break the tie.
			CollectedAt: collected, Seq: nums[1], CreatedAt: collected,
		},
		{
			ID: uuid.New(), RespondentID: r.ID, Value: "female",
			Context: snapshot, ContextHash: snapshot.ContentHash(),
			CollectedAt: collected, Seq: nums[0], CreatedAt: collected,
		},
		{
			ID: uuid.New(), RespondentID: r.ID, Value: "secondary",
			Context: snapshot, ContextHash: snapshot.ContentHash(),
			CollectedAt: collected.Add(time.Second), Seq: nums[2], CreatedAt: collected,
		},
	}

	count, err := testDB.InsertAnswers(ctx, answers)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	got, err := testDB.ListAnswersByRespondent(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// collected_at ascending, seq breaking the tie.
	assert.Equal(t, "female", got[0].Value)
	assert.Equal(t, "42", got[1].Value)
	assert.Equal(t, "secondary", got[2].Value)

	// The captured context survives the JSONB round trip and still verifies.
	require.NotNil(t, got[0].Context.BankItemID)
	assert.Equal(t, bankID, *got[0].Context.BankItemID)
	assert.Equal(t, model.CategorySociodemographics, got[0].Context.Category)
	assert.Equal(t, 7, got[0].Context.Priority)
	assert.True(t, got[0].Context.VerifyHash(got[0].ContextHash))

	n, err := testDB.CountAnswersByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestInsertSingleAnswer(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "single-answer-test")
	tuple := model.TargetingTuple{RespondentType: "processor", Commodity: "maize", Country: "KE"}

	r, err := testDB.CreateRespondent(ctx, model.Respondent{ProjectID: p.ID, Tuple: tuple})
	require.NoError(t, err)

	nums, err := testDB.ReserveCaptureSeqs(ctx, 1)
	require.NoError(t, err)

	snapshot := model.CapturedContext{Category: model.CategoryProcessing, Tuple: tuple}
	a := model.AnswerRecord{
		ID: uuid.New(), RespondentID: r.ID, Value: "sun drying",
		Context: snapshot, ContextHash: snapshot.ContentHash(),
		CollectedAt: time.Now().UTC(), Seq: nums[0], CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, testDB.InsertAnswer(ctx, a))

	got, err := testDB.ListAnswersByRespondent(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].QuestionID)
	assert.Equal(t, "sun drying", got[0].Value)
}

func TestRunSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestProject(t, "runsummary-test")

	scope := model.TargetingTuple{RespondentType: "farmer", Commodity: "rice", Country: "GH"}
	started := time.Now().UTC().Add(-time.Minute)

	scoped := model.RunSummary{
		RunID:       uuid.New(),
		ProjectID:   p.ID,
		Scope:       &scope,
		Respondents: 12,
		ByStrategy: map[model.Strategy]int{
			model.StrategyDirectLink:   30,
			model.StrategyCapturedID:   4,
			model.StrategyContentMatch: 1,
		},
		Unresolved:  2,
		StartedAt:   started,
		CompletedAt: started.Add(30 * time.Second),
	}
	require.NoError(t, testDB.InsertRunSummary(ctx, scoped))

	unscoped := model.RunSummary{
		RunID:       uuid.New(),
		ProjectID:   p.ID,
		Respondents: 40,
		ByStrategy:  map[model.Strategy]int{model.StrategyDirectLink: 200},
		Unresolved:  0,
		StartedAt:   started,
		CompletedAt: started.Add(45 * time.Second),
	}
	require.NoError(t, testDB.InsertRunSummary(ctx, unscoped))

	got, err := testDB.GetRunSummary(ctx, scoped.RunID)
	require.NoError(t, err)
	require.NotNil(t, got.Scope)
	assert.Equal(t, scope, *got.Scope)
	assert.Equal(t, 12, got.Respondents)
	assert.Equal(t, 30, got.ByStrategy[model.StrategyDirectLink])
	assert.Equal(t, 2, got.Unresolved)

	got, err = testDB.GetRunSummary(ctx, unscoped.RunID)
	require.NoError(t, err)
	assert.Nil(t, got.Scope)

	list, err := testDB.ListRunSummaries(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Most recent first.
	assert.Equal(t, unscoped.RunID, list[0].RunID)

	_, err = testDB.GetRunSummary(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
