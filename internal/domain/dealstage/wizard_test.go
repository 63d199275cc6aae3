package dealstage

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCategories = []Category{
	{ID: 1, Name: "Initial Contact", Sequence: 1},
	{ID: 2, Name: "Qualification", Sequence: 2},
	{ID: 3, Name: "Meeting Scheduled", Sequence: 3},
	{ID: 4, Name: "Proposal Sent", Sequence: 4},
	{ID: 5, Name: "Negotiation", Sequence: 5},
	{ID: 6, Name: "Closed Won", Sequence: 6},
	{ID: 7, Name: "Closed Lost", Sequence: 7},
}

var threeStages = []CRMStage{{ID: 1, Name: "New"}, {ID: 2, Name: "Qualified"}, {ID: 3, Name: "Closed Won"}}

// wizardAtMapStages walks a fresh wizard to map-stages with stages loaded.
func wizardAtMapStages(t *testing.T, stages []CRMStage) *Wizard {
	t.Helper()
	w := NewWizard("w1", "ana@zime.ai")
	require.NoError(t, w.SelectCompany(1))
	_, err := w.Next()
	require.NoError(t, err)
	require.NoError(t, w.SelectPipeline(2))
	entered, err := w.Next()
	require.NoError(t, err)
	require.True(t, entered)
	gen := w.BeginFetch()
	require.True(t, w.FinishFetch(gen, stages, nil))
	return w
}

func mapAll(t *testing.T, w *Wizard) {
	t.Helper()
	for i, s := range w.Stages {
		require.NoError(t, w.MapStage(s.ID, i%len(testCategories)+1, testCategories))
	}
}

func TestWizard_StepIndexStaysInRange(t *testing.T) {
	t.Parallel()

	w := NewWizard("w1", "ana@zime.ai")
	for i := 0; i < 3; i++ {
		entered, err := w.Back()
		require.NoError(t, err)
		assert.False(t, entered)
		assert.Equal(t, 0, w.StepIndex())
	}

	w = wizardAtMapStages(t, threeStages)
	mapAll(t, w)
	_, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, StepReview, w.Step())

	for i := 0; i < 3; i++ {
		_, err := w.Next()
		assert.ErrorIs(t, err, ErrLastStep)
		assert.Equal(t, len(Steps)-1, w.StepIndex())
	}
}

func TestWizard_NextGating(t *testing.T) {
	t.Parallel()

	w := NewWizard("w1", "ana@zime.ai")
	assert.False(t, w.CanAdvance(), "no company chosen")
	_, err := w.Next()
	assert.ErrorIs(t, err, ErrStepIncomplete)
	assert.Equal(t, StepSelectCompany, w.Step())

	require.NoError(t, w.SelectCompany(3))
	assert.True(t, w.CanAdvance())
	_, err = w.Next()
	require.NoError(t, err)

	assert.False(t, w.CanAdvance(), "no pipeline chosen")
	_, err = w.Next()
	assert.ErrorIs(t, err, ErrStepIncomplete)

	require.NoError(t, w.SelectPipeline(1))
	entered, err := w.Next()
	require.NoError(t, err)
	assert.True(t, entered)

	gen := w.BeginFetch()
	assert.False(t, w.CanAdvance(), "stages loading")
	w.FinishFetch(gen, threeStages, nil)

	for i, s := range threeStages {
		assert.False(t, w.CanAdvance(), "only %d of %d mapped", i, len(threeStages))
		require.NoError(t, w.MapStage(s.ID, 2, testCategories))
	}
	assert.True(t, w.CanAdvance())

	require.NoError(t, w.MapStage(2, 0, testCategories))
	assert.False(t, w.CanAdvance(), "clearing a mapping re-locks Next")
}

func TestWizard_EmptyStageListDoesNotAdvance(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, []CRMStage{})
	assert.False(t, w.CanAdvance())
}

func TestWizard_SelectionOnlyAtItsStep(t *testing.T) {
	t.Parallel()

	w := NewWizard("w1", "ana@zime.ai")
	assert.ErrorIs(t, w.SelectPipeline(1), ErrWrongStep)
	assert.ErrorIs(t, w.MapStage(1, 1, testCategories), ErrWrongStep)

	w = wizardAtMapStages(t, threeStages)
	assert.ErrorIs(t, w.SelectCompany(2), ErrWrongStep)
}

func TestWizard_MapStageValidation(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	assert.ErrorIs(t, w.MapStage(99, 1, testCategories), ErrUnknownStage)
	assert.ErrorIs(t, w.MapStage(1, 42, testCategories), ErrUnknownCategory)
	assert.Empty(t, w.Mappings)

	require.NoError(t, w.MapStage(1, 7, testCategories))
	require.NoError(t, w.MapStage(1, 6, testCategories))
	assert.Equal(t, map[int]int{1: 6}, w.Mappings, "remapping overwrites")
}

func TestWizard_ChangingCompanyResetsStages(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	mapAll(t, w)
	_, _ = w.Back()
	_, _ = w.Back()

	require.NoError(t, w.SelectCompany(1))
	assert.Len(t, w.Mappings, 3, "same company keeps mappings")

	require.NoError(t, w.SelectCompany(4))
	assert.Empty(t, w.Mappings)
	assert.Empty(t, w.Stages)
}

func TestWizard_StaleFetchDiscarded(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	first := w.BeginFetch()
	second := w.BeginFetch()

	assert.False(t, w.FinishFetch(first, []CRMStage{{ID: 9, Name: "Stale"}}, nil))
	assert.True(t, w.Loading, "stale result must not clear loading")

	assert.True(t, w.FinishFetch(second, threeStages, nil))
	assert.False(t, w.Loading)
	assert.Equal(t, threeStages, w.Stages)
}

func TestWizard_BackDiscardsInflightFetch(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	gen := w.BeginFetch()
	_, err := w.Back()
	require.NoError(t, err)
	assert.False(t, w.Loading)

	assert.False(t, w.FinishFetch(gen, nil, errors.New("boom")))
	assert.Nil(t, w.Status, "discarded failure must not raise a banner")
}

func TestWizard_FetchFinishingOffStepClearsLoading(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	_, err := w.Back()
	require.NoError(t, err)
	gen := w.BeginFetch()

	assert.False(t, w.FinishFetch(gen, []CRMStage{{ID: 9, Name: "Late"}}, nil))
	assert.False(t, w.Loading)
	assert.Equal(t, threeStages, w.Stages)
	assert.Equal(t, StepSelectPipeline, w.Step())
}

func TestWizard_FetchFailureSetsBanner(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	gen := w.BeginFetch()
	require.True(t, w.FinishFetch(gen, nil, errors.New("crm down")))

	require.NotNil(t, w.Status)
	assert.Equal(t, Banner{Type: BannerError, Message: MsgFetchFailed}, *w.Status)
	assert.Equal(t, threeStages, w.Stages, "previous stages survive a failed refresh")
}

func TestWizard_RefreshDropsVanishedMappings(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	mapAll(t, w)

	gen := w.BeginFetch()
	w.FinishFetch(gen, threeStages[:2], nil)

	assert.Equal(t, map[int]int{1: 1, 2: 2}, w.Mappings)
	assert.True(t, w.CanAdvance())
}

func TestWizard_BackToMapStagesRequestsFetch(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	mapAll(t, w)
	_, err := w.Next()
	require.NoError(t, err)

	entered, err := w.Back()
	require.NoError(t, err)
	assert.True(t, entered)
	assert.Equal(t, StepMapStages, w.Step())
}

func TestWizard_BackBlockedWhileUpdating(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	mapAll(t, w)
	_, _ = w.Next()
	w.Updating = true

	_, err := w.Back()
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StepReview, w.Step())
}

func TestWizard_Progress(t *testing.T) {
	t.Parallel()

	w := NewWizard("w1", "ana@zime.ai")
	require.NoError(t, w.SelectCompany(1))
	_, _ = w.Next()

	want := []StepProgress{
		{Index: 0, ID: StepSelectCompany, Label: "Select Company", Reached: true},
		{Index: 1, ID: StepSelectPipeline, Label: "Select Pipeline", Reached: true},
		{Index: 2, ID: StepMapStages, Label: "Map Deal Stages", Reached: false},
		{Index: 3, ID: StepReview, Label: "Review & Confirm", Reached: false},
	}
	if diff := cmp.Diff(want, w.Progress()); diff != "" {
		t.Errorf("Progress() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildReview(t *testing.T) {
	t.Parallel()

	stages := []CRMStage{{ID: 1, Name: "New"}, {ID: 2, Name: "Qualified"}, {ID: 3, Name: "Lost"}}
	// Stage 3 points at a category that is not in the fixed list.
	got := BuildReview(stages, map[int]int{1: 1, 3: 99}, testCategories)

	initial := testCategories[0]
	want := Review{
		Rows: []ReviewRow{
			{Stage: stages[0], Category: &initial, Label: "1. Initial Contact", Valid: true},
			{Stage: stages[1], Label: "Not Mapped"},
			{Stage: stages[2], Label: "Not Mapped"},
		},
		Unmapped: 1,
		AllValid: false,
		Summary:  "1 stages need to be mapped",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildReview() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildReview_AllMapped(t *testing.T) {
	t.Parallel()

	got := BuildReview(threeStages, map[int]int{1: 1, 2: 2, 3: 6}, testCategories)
	assert.True(t, got.AllValid)
	assert.Zero(t, got.Unmapped)
	assert.Equal(t, "All stages are properly mapped", got.Summary)
	assert.Equal(t, "6. Closed Won", got.Rows[2].Label)
}

func TestBuildReview_ValidityFollowsCategoryList(t *testing.T) {
	t.Parallel()

	for id := -1; id <= 9; id++ {
		got := BuildReview(threeStages[:1], map[int]int{1: id}, testCategories)
		_, known := findCategory(testCategories, id)
		assert.Equal(t, known, got.Rows[0].Valid, "category %d", id)
	}
}

func TestWizard_CanConfirm(t *testing.T) {
	t.Parallel()

	w := wizardAtMapStages(t, threeStages)
	mapAll(t, w)
	assert.False(t, w.CanConfirm(testCategories), "not at review yet")

	_, err := w.Next()
	require.NoError(t, err)
	assert.True(t, w.CanConfirm(testCategories))

	w.Updating = true
	assert.False(t, w.CanConfirm(testCategories), "confirmation in flight")
	w.Updating = false

	assert.False(t, w.CanConfirm(testCategories[:1]), "category list no longer contains mapped ids")
}
