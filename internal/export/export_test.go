package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amankrah/fsvc-sub000/internal/catalog"
	"github.com/Amankrah/fsvc-sub000/internal/classify"
	"github.com/Amankrah/fsvc-sub000/internal/export"
	"github.com/Amankrah/fsvc-sub000/internal/intake"
	"github.com/Amankrah/fsvc-sub000/internal/materialize"
	"github.com/Amankrah/fsvc-sub000/internal/model"
	"github.com/Amankrah/fsvc-sub000/internal/reconcile"
	"github.com/Amankrah/fsvc-sub000/internal/storage"
	"github.com/Amankrah/fsvc-sub000/internal/testutil"
)

var (
	testDB     *storage.DB
	testLoader *catalog.Loader
	testExp    *export.Exporter
)

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
	testLoader = catalog.NewLoader(testDB)
	testExp = export.New(testDB, testLoader, testutil.TestLogger())

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

// Bank items are global, so every test fences its items behind a commodity no
// other test uses and targets tuples with that commodity only.
func newExportProject(t *testing.T, commodity string) model.Project {
	t.Helper()
	p, err := testDB.CreateProject(context.Background(), model.Project{
		Name:            "project-" + commodity,
		RespondentTypes: []string{"farmer", "processor"},
		Commodities:     []string{commodity},
		Countries:       []string{"GH"},
	})
	require.NoError(t, err)
	return p
}

func seedExportItem(t *testing.T, text string, cat model.Category, priority int, commodity string) model.BankItem {
	t.Helper()
	item, err := testDB.CreateBankItem(context.Background(), model.BankItem{
		Text:        text,
		Category:    cat,
		Priority:    priority,
		WorkPackage: "wp1",
		Commodities: model.MatchOneOf(commodity),
	})
	require.NoError(t, err)
	return item
}

func insertOrphan(t *testing.T, r model.Respondent, cat model.Category, value string) model.AnswerRecord {
	t.Helper()
	ctx := context.Background()

	seqs, err := testDB.ReserveCaptureSeqs(ctx, 1)
	require.NoError(t, err)

	captured := model.CapturedContext{Category: cat, Tuple: r.Tuple}
	now := time.Now().UTC()
	rec := model.AnswerRecord{
		ID:           uuid.New(),
		RespondentID: r.ID,
		Context:      captured,
		ContextHash:  captured.ContentHash(),
		Value:        value,
		CollectedAt:  now,
		Seq:          seqs[0],
		CreatedAt:    now,
	}
	require.NoError(t, testDB.InsertAnswer(ctx, rec))
	return rec
}

func reconcileProject(t *testing.T, projectID uuid.UUID) model.ReconciliationReport {
	t.Helper()
	engine := reconcile.NewEngine(classify.Default(), true)
	runner := reconcile.NewRunner(testDB, testLoader, engine, nil, 2, testutil.TestLogger())
	report, err := runner.Run(context.Background(), projectID, nil, uuid.Nil)
	require.NoError(t, err)
	return report
}

func rowOf(t *testing.T, rs export.RowSet, respondentID uuid.UUID) export.Row {
	t.Helper()
	for _, row := range rs.Rows {
		if row.RespondentID == respondentID {
			return row
		}
	}
	t.Fatalf("no row for respondent %s", respondentID)
	return export.Row{}
}

func TestMatrixEndToEnd(t *testing.T) {
	ctx := context.Background()
	const commodity = "exp-e2e"
	p := newExportProject(t, commodity)

	seedExportItem(t, "What is your age?", model.CategorySociodemographics, 9, commodity)
	seedExportItem(t, "What is your gender?", model.CategorySociodemographics, 5, commodity)
	seedExportItem(t, "What was your income from cocoa sales last season?", model.CategoryIncome, 5, commodity)

	farmer := model.TargetingTuple{RespondentType: "farmer", Commodity: commodity, Country: "GH"}

	mat := materialize.New(testDB, testLoader, testutil.TestLogger())
	matRes, err := mat.Materialize(ctx, p.ID, farmer, model.MaterializeOptions{})
	require.NoError(t, err)
	require.Len(t, matRes.Created, 3)

	rec := intake.New(testDB, 0, testutil.TestLogger())

	// One respondent answers the full generated interview, one contributes a
	// single orphan answer.
	r1, err := rec.RegisterRespondent(ctx, p.ID, farmer)
	require.NoError(t, err)
	values := []string{"40-49", "Female", "GHS 900"}
	inputs := make([]intake.AnswerInput, 0, len(values))
	for i, v := range values {
		q := matRes.Created[i]
		inputs = append(inputs, intake.AnswerInput{QuestionID: &q.ID, Value: v})
	}
	_, err = rec.RecordBatch(ctx, r1.ID, inputs)
	require.NoError(t, err)

	r2, err := rec.RegisterRespondent(ctx, p.ID, farmer)
	require.NoError(t, err)
	insertOrphan(t, r2, model.CategorySociodemographics, "30-34")

	report := reconcileProject(t, p.ID)
	rs, err := testExp.Matrix(ctx, p.ID, farmer, report)
	require.NoError(t, err)

	assert.Equal(t, p.ID, rs.ProjectID)
	assert.Equal(t, farmer, rs.Tuple)
	require.Len(t, rs.Columns, 3)
	assert.Equal(t, "What is your age?", rs.Columns[0].Text)
	assert.Equal(t, "What is your gender?", rs.Columns[1].Text)
	assert.Equal(t, "What was your income from cocoa sales last season?", rs.Columns[2].Text)
	require.Len(t, rs.Rows, 2)

	assert.Equal(t, []string{"40-49", "Female", "GHS 900"}, rowOf(t, rs, r1.ID).Cells)
	assert.Equal(t, []string{"30-34", "", ""}, rowOf(t, rs, r2.ID).Cells)

	assert.Equal(t, 2, rs.Columns[0].Filled)
	assert.Equal(t, 1, rs.Columns[1].Filled)
	assert.Equal(t, 1, rs.Columns[2].Filled)
	assert.Equal(t, 1.0, rs.Columns[0].CompletionRate)
	assert.Equal(t, 0.5, rs.Columns[1].CompletionRate)
	assert.Equal(t, 0.5, rs.Columns[2].CompletionRate)

	// Per column: filled never exceeds the row count and equals the number of
	// reconciled resolutions for that item.
	resolutions := make(map[uuid.UUID]int)
	for _, m := range report.Mapping {
		resolutions[m.BankItemID]++
	}
	for _, c := range rs.Columns {
		assert.LessOrEqual(t, c.Filled, len(rs.Rows))
		assert.Equal(t, resolutions[c.BankItemID], c.Filled, "column %q", c.Text)
	}
}

func TestMatrixRoundTrip(t *testing.T) {
	ctx := context.Background()
	const commodity = "exp-round"
	p := newExportProject(t, commodity)

	seedExportItem(t, "What is your age?", model.CategorySociodemographics, 9, commodity)
	seedExportItem(t, "What is your gender?", model.CategorySociodemographics, 5, commodity)

	farmer := model.TargetingTuple{RespondentType: "farmer", Commodity: commodity, Country: "GH"}
	rec := intake.New(testDB, 0, testutil.TestLogger())
	r1, err := rec.RegisterRespondent(ctx, p.ID, farmer)
	require.NoError(t, err)
	insertOrphan(t, r1, model.CategorySociodemographics, "40-49")
	insertOrphan(t, r1, model.CategorySociodemographics, "Male")

	first, err := testExp.Matrix(ctx, p.ID, farmer, reconcileProject(t, p.ID))
	require.NoError(t, err)
	second, err := testExp.Matrix(ctx, p.ID, farmer, reconcileProject(t, p.ID))
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second))
}

func TestMatrixNoRespondents(t *testing.T) {
	ctx := context.Background()
	const commodity = "exp-empty"
	p := newExportProject(t, commodity)

	seedExportItem(t, "What is your age?", model.CategorySociodemographics, 9, commodity)

	farmer := model.TargetingTuple{RespondentType: "farmer", Commodity: commodity, Country: "GH"}
	rs, err := testExp.Matrix(ctx, p.ID, farmer, model.ReconciliationReport{})
	require.NoError(t, err)

	require.Len(t, rs.Columns, 1)
	assert.Empty(t, rs.Rows)
	assert.Zero(t, rs.Columns[0].Filled)
	assert.Zero(t, rs.Columns[0].CompletionRate)
	assert.Zero(t, rs.Filled())
}

func TestMatrixValidation(t *testing.T) {
	ctx := context.Background()
	p := newExportProject(t, "exp-val")

	_, err := testExp.Matrix(ctx, p.ID, model.TargetingTuple{RespondentType: "farmer"}, model.ReconciliationReport{})
	assert.ErrorIs(t, err, model.ErrIncompleteTargeting)

	outside := model.TargetingTuple{RespondentType: "farmer", Commodity: "maize", Country: "GH"}
	_, err = testExp.Matrix(ctx, p.ID, outside, model.ReconciliationReport{})
	assert.ErrorIs(t, err, model.ErrTupleOutsideProject)

	farmer := model.TargetingTuple{RespondentType: "farmer", Commodity: "exp-val", Country: "GH"}
	_, err = testExp.Matrix(ctx, uuid.New(), farmer, model.ReconciliationReport{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBuildRowSetFirstResolvedWins(t *testing.T) {
	tuple := model.TargetingTuple{RespondentType: "farmer", Commodity: "cocoa", Country: "GH"}
	item := model.BankItem{ID: uuid.New(), Text: "What is your age?", Category: model.CategorySociodemographics}
	snap, err := catalog.Build(tuple, []model.BankItem{item})
	require.NoError(t, err)

	respondent := model.Respondent{ID: uuid.New(), Tuple: tuple}
	first := model.AnswerRecord{ID: uuid.New(), RespondentID: respondent.ID, Value: "40-49"}
	second := model.AnswerRecord{ID: uuid.New(), RespondentID: respondent.ID, Value: "50-54"}
	answers := map[uuid.UUID]model.AnswerRecord{first.ID: first, second.ID: second}

	mapping := []model.ResolvedAnswer{
		{AnswerID: first.ID, RespondentID: respondent.ID, BankItemID: item.ID, Strategy: model.StrategyDirectLink},
		{AnswerID: second.ID, RespondentID: respondent.ID, BankItemID: item.ID, Strategy: model.StrategyContentMatch},
		// Entries pointing outside the row set or the snapshot are ignored.
		{AnswerID: first.ID, RespondentID: uuid.New(), BankItemID: item.ID, Strategy: model.StrategyDirectLink},
		{AnswerID: first.ID, RespondentID: respondent.ID, BankItemID: uuid.New(), Strategy: model.StrategyDirectLink},
	}

	rs := export.BuildRowSet(snap, []model.Respondent{respondent}, answers, mapping)
	require.Len(t, rs.Rows, 1)
	assert.Equal(t, []string{"40-49"}, rs.Rows[0].Cells)
	assert.Equal(t, 1, rs.Columns[0].Filled)
	assert.Equal(t, 1.0, rs.Columns[0].CompletionRate)
}

func TestBuildRowSetEmptyValueFillsCell(t *testing.T) {
	tuple := model.TargetingTuple{RespondentType: "farmer", Commodity: "cocoa", Country: "GH"}
	item := model.BankItem{ID: uuid.New(), Text: "What is your age?", Category: model.CategorySociodemographics}
	snap, err := catalog.Build(tuple, []model.BankItem{item})
	require.NoError(t, err)

	respondent := model.Respondent{ID: uuid.New(), Tuple: tuple}
	blank := model.AnswerRecord{ID: uuid.New(), RespondentID: respondent.ID, Value: ""}

	rs := export.BuildRowSet(snap,
		[]model.Respondent{respondent},
		map[uuid.UUID]model.AnswerRecord{blank.ID: blank},
		[]model.ResolvedAnswer{{AnswerID: blank.ID, RespondentID: respondent.ID, BankItemID: item.ID, Strategy: model.StrategyCapturedID}},
	)
	assert.Equal(t, 1, rs.Columns[0].Filled)
	assert.Equal(t, 1.0, rs.Columns[0].CompletionRate)
}

func TestWriteCSV(t *testing.T) {
	r1 := uuid.New()
	r2 := uuid.New()
	rs := export.RowSet{
		Tuple: model.TargetingTuple{RespondentType: "farmer", Commodity: "cocoa", Country: "GH"},
		Columns: []export.Column{
			{BankItemID: uuid.New(), Text: "What is your age?"},
			{BankItemID: uuid.New(), Text: "What was your income, last season?"},
		},
		Rows: []export.Row{
			{RespondentID: r1, State: model.CompletionCompleted, Cells: []string{"40-49", "GHS 1,200"}},
			{RespondentID: r2, State: model.CompletionInProgress, Cells: []string{"30-34", ""}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, rs))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"respondent_id", "completion_state", "What is your age?", "What was your income, last season?"}, records[0])
	assert.Equal(t, []string{r1.String(), "completed", "40-49", "GHS 1,200"}, records[1])
	assert.Equal(t, []string{r2.String(), "in_progress", "30-34", ""}, records[2])
}
