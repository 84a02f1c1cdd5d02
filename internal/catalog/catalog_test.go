package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

var testTuple = model.TargetingTuple{RespondentType: "farmer", Commodity: "rice", Country: "GH"}

func item(text string, cat model.Category, priority int, created time.Time) model.BankItem {
	return model.BankItem{
		ID:        uuid.New(),
		Text:      text,
		Category:  cat,
		Priority:  priority,
		CreatedAt: created,
	}
}

func TestBuildRejectsIncompleteTuple(t *testing.T) {
	_, err := Build(model.TargetingTuple{RespondentType: "farmer"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrIncompleteTargeting)
}

func TestBuildFiltersByTuple(t *testing.T) {
	now := time.Now().UTC()

	applicable := item("farming question", model.CategoryProduction, 1, now)
	applicable.RespondentTypes = model.MatchOneOf("farmer")

	excluded := item("trading question", model.CategoryDistribution, 1, now)
	excluded.RespondentTypes = model.MatchOneOf("trader")

	wrongCountry := item("other market question", model.CategoryDistribution, 1, now)
	wrongCountry.Countries = model.MatchOneOf("KE")

	anyAxis := item("universal question", model.CategorySociodemographics, 1, now)

	s, err := Build(testTuple, []model.BankItem{applicable, excluded, wrongCountry, anyAxis})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(applicable.ID))
	assert.True(t, s.Contains(anyAxis.ID))
	assert.False(t, s.Contains(excluded.ID))
	assert.False(t, s.Contains(wrongCountry.ID))
}

func TestCanonicalOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Deliberately constructed out of order.
	production := item("production", model.CategoryProduction, 0, base)
	socioHigh := item("socio high priority", model.CategorySociodemographics, 9, base)
	socioOld := item("socio old", model.CategorySociodemographics, 3, base.Add(-time.Hour))
	socioNew := item("socio new", model.CategorySociodemographics, 3, base)
	governance := item("governance", model.CategoryGovernance, 99, base)

	s, err := Build(testTuple, []model.BankItem{governance, socioNew, production, socioOld, socioHigh})
	require.NoError(t, err)

	var texts []string
	for _, it := range s.Items() {
		texts = append(texts, it.Text)
	}
	// Category rank first (sociodemographics before production before
	// governance, regardless of priority), then priority descending, then
	// creation time ascending.
	want := []string{"socio high priority", "socio old", "socio new", "production", "governance"}
	assert.Equal(t, want, texts)
}

func TestOrderIDTiebreak(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Identical on every axis except ID.
	a := item("same question a", model.CategoryConsumption, 5, created)
	b := item("same question b", model.CategoryConsumption, 5, created)

	s1, err := Build(testTuple, []model.BankItem{a, b})
	require.NoError(t, err)
	s2, err := Build(testTuple, []model.BankItem{b, a})
	require.NoError(t, err)

	require.Equal(t, 2, s1.Len())
	assert.Equal(t, s1.Item(0).ID, s2.Item(0).ID)
	assert.Equal(t, s1.Item(1).ID, s2.Item(1).ID)
}

func TestUnknownCategorySortsLast(t *testing.T) {
	now := time.Now().UTC()

	known := item("known", model.CategoryGovernance, 0, now)
	zebra := item("zebra category", model.Category("zebra_topics"), 100, now)
	alpha := item("alpha category", model.Category("alpha_topics"), 100, now)

	s, err := Build(testTuple, []model.BankItem{zebra, known, alpha})
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, "known", s.Item(0).Text)
	// Unknown categories trail in name order.
	assert.Equal(t, "alpha category", s.Item(1).Text)
	assert.Equal(t, "zebra category", s.Item(2).Text)
}

func TestDeterminismUnderShuffle(t *testing.T) {
	base := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	cats := model.Categories()

	bank := make([]model.BankItem, 60)
	for i := range bank {
		bank[i] = item(
			fmt.Sprintf("question %d", i),
			cats[i%len(cats)],
			i%5,
			base.Add(time.Duration(i%7)*time.Minute),
		)
	}

	reference, err := Build(testTuple, bank)
	require.NoError(t, err)

	order := func(s *Snapshot) []uuid.UUID {
		ids := make([]uuid.UUID, s.Len())
		for i, it := range s.Items() {
			ids[i] = it.ID
		}
		return ids
	}

	for trial := 0; trial < 10; trial++ {
		shuffled := make([]model.BankItem, len(bank))
		copy(shuffled, bank)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		s, err := Build(testTuple, shuffled)
		require.NoError(t, err)
		if diff := cmp.Diff(order(reference), order(s)); diff != "" {
			t.Fatalf("order differs from reference (-want +got):\n%s", diff)
		}
		assert.Equal(t, reference.Fingerprint(), s.Fingerprint())
	}
}

func TestPositionAndCategoryViews(t *testing.T) {
	now := time.Now().UTC()
	bank := []model.BankItem{
		item("socio 1", model.CategorySociodemographics, 5, now),
		item("socio 2", model.CategorySociodemographics, 3, now),
		item("income 1", model.CategoryIncome, 9, now),
	}

	s, err := Build(testTuple, bank)
	require.NoError(t, err)

	for i, it := range s.Items() {
		pos, ok := s.Position(it.ID)
		require.True(t, ok)
		assert.Equal(t, i, pos)

		got, ok := s.ByID(it.ID)
		require.True(t, ok)
		assert.Equal(t, it.Text, got.Text)
	}

	socio := s.CategoryItems(model.CategorySociodemographics)
	require.Len(t, socio, 2)
	assert.Equal(t, "socio 1", socio[0].Text)
	assert.Equal(t, "socio 2", socio[1].Text)

	assert.Empty(t, s.CategoryItems(model.CategoryEnvironment))

	_, ok := s.Position(uuid.New())
	assert.False(t, ok)
}

func TestFingerprintReflectsContent(t *testing.T) {
	now := time.Now().UTC()
	a := item("stable question", model.CategoryProduction, 2, now)

	s1, err := Build(testTuple, []model.BankItem{a})
	require.NoError(t, err)

	edited := a
	edited.Text = "edited question"
	s2, err := Build(testTuple, []model.BankItem{edited})
	require.NoError(t, err)
	assert.NotEqual(t, s1.Fingerprint(), s2.Fingerprint())

	bumped := a
	bumped.Priority = 3
	s3, err := Build(testTuple, []model.BankItem{bumped})
	require.NoError(t, err)
	assert.NotEqual(t, s1.Fingerprint(), s3.Fingerprint())

	// A different tuple over the same items is a different view.
	other := model.TargetingTuple{RespondentType: "trader", Commodity: "rice", Country: "GH"}
	s4, err := Build(other, []model.BankItem{a})
	require.NoError(t, err)
	assert.NotEqual(t, s1.Fingerprint(), s4.Fingerprint())
}

// blockingLister parks every ListBankItems call until released, so the test
// can line up concurrent loader calls.
type blockingLister struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	once    sync.Once
	items   []model.BankItem
}

func (b *blockingLister) ListBankItems(ctx context.Context) ([]model.BankItem, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.items, nil
}

func TestLoaderCollapsesConcurrentLoads(t *testing.T) {
	lister := &blockingLister{
		started: make(chan struct{}),
		release: make(chan struct{}),
		items:   []model.BankItem{item("only", model.CategoryProduction, 1, time.Now().UTC())},
	}
	loader := NewLoader(lister)

	const workers = 5
	var wg sync.WaitGroup
	snaps := make([]*Snapshot, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snaps[i], errs[i] = loader.Snapshot(context.Background(), testTuple)
		}()
	}

	// Wait for the first load to start, give the remaining workers time to
	// park on the in-flight call, then release.
	<-lister.started
	time.Sleep(50 * time.Millisecond)
	close(lister.release)
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		require.NotNil(t, snaps[i])
		assert.Equal(t, 1, snaps[i].Len())
	}

	lister.mu.Lock()
	defer lister.mu.Unlock()
	assert.Equal(t, 1, lister.calls)
}
