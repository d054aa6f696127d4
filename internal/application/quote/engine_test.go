package quote

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakespeare-quote-api/internal/application/session"
	apperrors "shakespeare-quote-api/pkg/errors"
)

type fakeStore struct {
	candidates []*Candidate
	err        error

	queries       int
	lastLimit     int
	lastPredicate map[string]string
}

func (s *fakeStore) Insert(ctx context.Context, fragments []*Fragment) error { return nil }

func (s *fakeStore) Query(ctx context.Context, vector []float32, limit int, predicates map[string]string) ([]*Candidate, error) {
	s.queries++
	s.lastLimit = limit
	s.lastPredicate = predicates
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.candidates) {
		return s.candidates[:limit], nil
	}
	return s.candidates, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*Fragment, error) { return nil, nil }
func (s *fakeStore) Delete(ctx context.Context, ids []string) error        { return nil }
func (s *fakeStore) Count(ctx context.Context) (int64, error)              { return 0, nil }

type fakeEmbedder struct {
	vec      []float32
	err      error
	lastText string
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.lastText = text
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

// loveFragments 10 条 love 主题片段，距离 0.1 ~ 1.0
func loveFragments() []*Candidate {
	out := make([]*Candidate, 0, 10)
	for i := 1; i <= 10; i++ {
		out = append(out, &Candidate{
			Fragment: &Fragment{
				ID:   fmt.Sprintf("love-%02d", i),
				Text: fmt.Sprintf("love fragment %d", i),
				Meta: Metadata{
					Themes:         []string{"love", "fate"},
					EmotionalTones: []string{"joy"},
					CharacterType:  "lover",
				},
			},
			Distance: float64(i) / 10,
		})
	}
	return out
}

func newTestEngine(store *fakeStore) (*Engine, *session.Tracker, *fakeEmbedder) {
	tracker := session.NewTracker("test-session")
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	engine := NewEngine(store, embedder, tracker, Options{})
	return engine, tracker, embedder
}

func TestRetrieveRespectsResultCap(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, _, _ := newTestEngine(store)

	results, err := engine.Retrieve(context.Background(), RetrieveRequest{
		SemanticQuery: "romantic love",
		MaxResults:    3,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 最近的三条，距离升序
	assert.Equal(t, "love-01", results[0].ID)
	assert.Equal(t, "love-02", results[1].ID)
	assert.Equal(t, "love-03", results[2].ID)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}

	// 过采样：向存储层请求 cap * K 条
	assert.Equal(t, 9, store.lastLimit)
}

func TestRetrieveAndCommitExcludesAcrossCalls(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, tracker, _ := newTestEngine(store)
	ctx := context.Background()

	first, err := engine.RetrieveAndCommit(ctx, RetrieveRequest{SemanticQuery: "love", MaxResults: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := engine.RetrieveAndCommit(ctx, RetrieveRequest{SemanticQuery: "love", MaxResults: 3})
	require.NoError(t, err)
	require.Len(t, second, 3)

	seen := map[string]bool{}
	for _, r := range first {
		seen[r.ID] = true
	}
	for _, r := range second {
		assert.False(t, seen[r.ID], "fragment %s repeated across committed calls", r.ID)
	}
	assert.Equal(t, 6, tracker.UsageCount())
}

func TestRetrieveDoesNotCommit(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, tracker, _ := newTestEngine(store)
	ctx := context.Background()

	first, err := engine.Retrieve(ctx, RetrieveRequest{SemanticQuery: "love", MaxResults: 3})
	require.NoError(t, err)
	second, err := engine.Retrieve(ctx, RetrieveRequest{SemanticQuery: "love", MaxResults: 3})
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Zero(t, tracker.UsageCount())
}

func TestResetMakesFragmentsEligibleAgain(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, tracker, _ := newTestEngine(store)
	ctx := context.Background()

	first, err := engine.RetrieveAndCommit(ctx, RetrieveRequest{SemanticQuery: "love", MaxResults: 3})
	require.NoError(t, err)

	tracker.Reset()

	again, err := engine.RetrieveAndCommit(ctx, RetrieveRequest{SemanticQuery: "love", MaxResults: 3})
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, again[0].ID)
}

func TestThemeFilterAnyMatchSemantics(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, _, _ := newTestEngine(store)
	ctx := context.Background()

	// 片段主题为 {love, fate}：请求 {death, fate} 有交集，通过
	results, err := engine.Retrieve(ctx, RetrieveRequest{
		SemanticQuery: "doom",
		Filters:       FilterSpec{Themes: []string{"death", "fate"}},
		MaxResults:    3,
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	// 请求 {death} 无交集，全部淘汰
	results, err = engine.Retrieve(ctx, RetrieveRequest{
		SemanticQuery: "doom",
		Filters:       FilterSpec{Themes: []string{"death"}},
		MaxResults:    3,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCharacterTypeFilterOnScalarField(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, _, _ := newTestEngine(store)
	ctx := context.Background()

	results, err := engine.Retrieve(ctx, RetrieveRequest{
		SemanticQuery: "love",
		Filters:       FilterSpec{CharacterTypes: []string{"villain", "lover"}},
		MaxResults:    3,
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = engine.Retrieve(ctx, RetrieveRequest{
		SemanticQuery: "love",
		Filters:       FilterSpec{CharacterTypes: []string{"villain"}},
		MaxResults:    3,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMissingMetadataFieldFailsNamedFilter(t *testing.T) {
	store := &fakeStore{candidates: []*Candidate{
		{
			Fragment: &Fragment{ID: "bare", Text: "no metadata at all"},
			Distance: 0.2,
		},
	}}
	engine, _, _ := newTestEngine(store)

	results, err := engine.Retrieve(context.Background(), RetrieveRequest{
		SemanticQuery: "anything",
		Filters:       FilterSpec{EmotionalTones: []string{"joy"}},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAllCandidatesExcludedReturnsEmpty(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, tracker, _ := newTestEngine(store)
	ctx := context.Background()

	for _, c := range store.candidates {
		tracker.MarkUsed(c.Fragment.ID, nil)
	}

	results, err := engine.Retrieve(ctx, RetrieveRequest{SemanticQuery: "love", MaxResults: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCallerExcludeIDsMergedWithSession(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, tracker, _ := newTestEngine(store)
	ctx := context.Background()

	tracker.MarkUsed("love-01", nil)

	results, err := engine.Retrieve(ctx, RetrieveRequest{
		SemanticQuery: "love",
		ExcludeIDs:    []string{"love-02", " love-03 "},
		MaxResults:    3,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "love-04", results[0].ID)
}

func TestEmptyStoreResultReturnsEmpty(t *testing.T) {
	store := &fakeStore{}
	engine, _, _ := newTestEngine(store)

	results, err := engine.Retrieve(context.Background(), RetrieveRequest{
		SemanticQuery: "love",
		Filters:       FilterSpec{PlayTitle: "Nonexistent Play"},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, map[string]string{FieldPlayTitle: "Nonexistent Play"}, store.lastPredicate)
}

func TestInvalidFilterRejectedBeforeStoreCall(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, _, _ := newTestEngine(store)

	_, err := engine.Retrieve(context.Background(), RetrieveRequest{
		SemanticQuery: "love",
		Filters:       FilterSpec{PlayTitle: `Ham"let`},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidFilter))
	assert.Zero(t, store.queries)

	_, err = engine.Retrieve(context.Background(), RetrieveRequest{
		SemanticQuery: "love",
		Filters:       FilterSpec{Themes: []string{"love,fate"}},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidFilter))
	assert.Zero(t, store.queries)
}

func TestEmptyQueryEmbeddedAsIs(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, _, embedder := newTestEngine(store)

	results, err := engine.Retrieve(context.Background(), RetrieveRequest{SemanticQuery: "   "})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Equal(t, "", embedder.lastText)
}

func TestMaxResultsClampedToLimit(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	tracker := session.NewTracker("clamp")
	embedder := &fakeEmbedder{vec: []float32{1}}
	engine := NewEngine(store, embedder, tracker, Options{MaxResultsLimit: 4, OverfetchMultiplier: 2})

	results, err := engine.Retrieve(context.Background(), RetrieveRequest{
		SemanticQuery: "love",
		MaxResults:    100,
	})
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.Equal(t, 8, store.lastLimit)
}

func TestDefaultMaxResultsApplied(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, _, _ := newTestEngine(store)

	results, err := engine.Retrieve(context.Background(), RetrieveRequest{SemanticQuery: "love"})
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestCommitRecordsQueryContext(t *testing.T) {
	store := &fakeStore{candidates: loveFragments()}
	engine, tracker, _ := newTestEngine(store)

	results, err := engine.RetrieveAndCommit(context.Background(), RetrieveRequest{
		SemanticQuery: "star-crossed love",
		MaxResults:    1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	history := tracker.History()
	require.Len(t, history, 1)
	assert.Equal(t, results[0].ID, history[0].ChunkID)
	assert.Equal(t, "star-crossed love", history[0].Metadata["query"])
	assert.Equal(t, results[0].Text, history[0].Metadata["chunk_text"])
}
