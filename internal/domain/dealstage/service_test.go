package dealstage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	domainaudit "github.com/zime-ai/nucleus/internal/domain/audit"
	"github.com/zime-ai/nucleus/internal/domain/dealstage"
	"github.com/zime-ai/nucleus/internal/infra/eventbus"
	"github.com/zime-ai/nucleus/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const owner = "ana@zime.ai"

type failingSource struct{}

func (failingSource) FetchStages(context.Context, dealstage.Company) ([]dealstage.CRMStage, error) {
	return nil, errors.New("crm unavailable")
}

// gatedSource blocks every fetch until release is closed.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gatedSource) FetchStages(ctx context.Context, c dealstage.Company) ([]dealstage.CRMStage, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return dealstage.SampleStageSource{}.FetchStages(ctx, c)
}

type fixture struct {
	svc *dealstage.Service
	bus *eventbus.Bus
}

func newFixture(t *testing.T, source dealstage.StageSource, cfg dealstage.Config) fixture {
	t.Helper()
	db := testsupport.OpenDB(t)
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	svc := dealstage.NewService(dealstage.NewCatalog(db), source, dealstage.NewMappingStore(db), bus, nil, cfg)
	return fixture{svc: svc, bus: bus}
}

// toMapStages starts a wizard and walks it to map-stages.
func toMapStages(t *testing.T, svc *dealstage.Service) dealstage.View {
	t.Helper()
	ctx := context.Background()
	v := svc.Start(ctx, owner)
	_, err := svc.SelectCompany(ctx, v.ID, owner, 1)
	require.NoError(t, err)
	_, err = svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)
	_, err = svc.SelectPipeline(ctx, v.ID, owner, 1)
	require.NoError(t, err)
	v, err = svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)
	return v
}

func mapEveryStage(t *testing.T, svc *dealstage.Service, v dealstage.View) dealstage.View {
	t.Helper()
	var err error
	for _, st := range v.Stages {
		v, err = svc.MapStage(context.Background(), v.ID, owner, st.ID, st.ID)
		require.NoError(t, err)
	}
	return v
}

func TestService_FullFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dealstage.SampleStageSource{}, dealstage.Config{})
	ctx := context.Background()
	audits := f.bus.Subscribe(domainaudit.Topic)

	v := toMapStages(t, f.svc)
	assert.Equal(t, dealstage.StepMapStages, v.Step)
	assert.False(t, v.LoadingStages)
	require.Len(t, v.Stages, 7)
	assert.False(t, v.CanAdvance)

	v = mapEveryStage(t, f.svc, v)
	assert.True(t, v.CanAdvance)
	assert.Equal(t, 7, v.MappedCount)

	v, err := f.svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, dealstage.StepReview, v.Step)

	review, err := f.svc.Review(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", review.CompanyName)
	assert.Equal(t, "Sales Pipeline", review.PipelineName)
	assert.Equal(t, "All stages are properly mapped", review.Summary)
	assert.True(t, review.CanConfirm)

	v, err = f.svc.Confirm(ctx, v.ID, owner)
	require.NoError(t, err)
	require.NotNil(t, v.Status)
	assert.Equal(t, dealstage.Banner{Type: dealstage.BannerSuccess, Message: dealstage.MsgMapped}, *v.Status)
	assert.False(t, v.Updating)

	stored, err := f.svc.Mappings(ctx, dealstage.MappingFilter{CompanyID: 1, PipelineID: 1})
	require.NoError(t, err)
	require.Len(t, stored, 7)
	assert.Equal(t, "New", stored[0].CRMStageName)
	assert.Equal(t, "Initial Contact", stored[0].CategoryName)
	assert.Equal(t, owner, stored[0].ConfirmedBy)

	select {
	case evt := <-audits:
		entry := evt.Payload.(domainaudit.Entry)
		assert.Equal(t, domainaudit.ActionMappingConfirm, entry.Action)
		assert.Equal(t, domainaudit.OutcomeSuccess, entry.Outcome)
	case <-time.After(time.Second):
		t.Fatal("no audit entry for confirmation")
	}
}

func TestService_ConfirmRequiresReview(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dealstage.SampleStageSource{}, dealstage.Config{})

	v := toMapStages(t, f.svc)
	_, err := f.svc.Confirm(context.Background(), v.ID, owner)
	assert.ErrorIs(t, err, dealstage.ErrWrongStep)
}

func TestService_ConfirmFailureSetsBanner(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dealstage.SampleStageSource{}, dealstage.Config{ConfirmDelay: time.Hour})

	v := mapEveryStage(t, f.svc, toMapStages(t, f.svc))
	v, err := f.svc.Next(context.Background(), v.ID, owner)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	v, err = f.svc.Confirm(ctx, v.ID, owner)
	require.NoError(t, err)
	require.NotNil(t, v.Status)
	assert.Equal(t, dealstage.BannerError, v.Status.Type)
	assert.Equal(t, dealstage.MsgConfirmFailed, v.Status.Message)

	stored, err := f.svc.Mappings(context.Background(), dealstage.MappingFilter{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestService_ConcurrentConfirmIsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dealstage.SampleStageSource{}, dealstage.Config{ConfirmDelay: 200 * time.Millisecond})
	ctx := context.Background()

	v := mapEveryStage(t, f.svc, toMapStages(t, f.svc))
	v, err := f.svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.svc.Confirm(ctx, v.ID, owner)
	}()

	require.Eventually(t, func() bool {
		got, _ := f.svc.Get(ctx, v.ID, owner)
		return got.Updating
	}, time.Second, 5*time.Millisecond)

	_, err = f.svc.Confirm(ctx, v.ID, owner)
	assert.ErrorIs(t, err, dealstage.ErrBusy)
	_, err = f.svc.Back(ctx, v.ID, owner)
	assert.ErrorIs(t, err, dealstage.ErrBusy)

	wg.Wait()
	got, err := f.svc.Get(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, dealstage.MsgMapped, got.Status.Message)
}

func TestService_FetchFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, failingSource{}, dealstage.Config{})

	v := toMapStages(t, f.svc)
	assert.False(t, v.LoadingStages)
	require.NotNil(t, v.Status)
	assert.Equal(t, dealstage.MsgFetchFailed, v.Status.Message)
	assert.Empty(t, v.Stages)
	assert.False(t, v.CanAdvance)
}

func TestService_StaleFetchIsDiscarded(t *testing.T) {
	t.Parallel()
	src := newGatedSource()
	f := newFixture(t, src, dealstage.Config{})
	ctx := context.Background()

	v := f.svc.Start(ctx, owner)
	_, err := f.svc.SelectCompany(ctx, v.ID, owner, 2)
	require.NoError(t, err)
	_, err = f.svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)
	_, err = f.svc.SelectPipeline(ctx, v.ID, owner, 3)
	require.NoError(t, err)

	done := make(chan dealstage.View, 1)
	go func() {
		got, _ := f.svc.Next(ctx, v.ID, owner)
		done <- got
	}()
	<-src.started

	loading, err := f.svc.Get(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.True(t, loading.LoadingStages)
	assert.False(t, loading.CanAdvance)

	// Leaving the step supersedes the fetch in flight.
	back, err := f.svc.Back(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, dealstage.StepSelectPipeline, back.Step)

	close(src.release)
	stale := <-done
	assert.Equal(t, dealstage.StepSelectPipeline, stale.Step)
	assert.Empty(t, stale.Stages)
	assert.Nil(t, stale.Status)

	again, err := f.svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.Len(t, again.Stages, 7)
}

func TestService_Refresh(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dealstage.SampleStageSource{}, dealstage.Config{})
	ctx := context.Background()

	v := toMapStages(t, f.svc)
	v, err := f.svc.MapStage(ctx, v.ID, owner, 1, 2)
	require.NoError(t, err)

	v, err = f.svc.Refresh(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.Len(t, v.Stages, 7)
	assert.Equal(t, map[string]int{"1": 2}, v.Mappings, "mappings for stages still present survive")

	fresh := f.svc.Start(ctx, owner)
	_, err = f.svc.Refresh(ctx, fresh.ID, owner)
	assert.ErrorIs(t, err, dealstage.ErrWrongStep)
}

func TestService_BackFromReviewRefetches(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dealstage.SampleStageSource{}, dealstage.Config{})
	ctx := context.Background()

	v := mapEveryStage(t, f.svc, toMapStages(t, f.svc))
	_, err := f.svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)

	v, err = f.svc.Back(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, dealstage.StepMapStages, v.Step)
	assert.False(t, v.LoadingStages)
	assert.True(t, v.CanAdvance)
}

func TestService_UnknownSelections(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dealstage.SampleStageSource{}, dealstage.Config{})
	ctx := context.Background()

	v := f.svc.Start(ctx, owner)
	_, err := f.svc.SelectCompany(ctx, v.ID, owner, 99)
	assert.ErrorIs(t, err, dealstage.ErrCompanyNotFound)

	v = toMapStages(t, f.svc)
	_, err = f.svc.MapStage(ctx, v.ID, owner, 1, 8)
	assert.ErrorIs(t, err, dealstage.ErrUnknownCategory)
}

func TestService_WizardsAreOwnerScoped(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dealstage.SampleStageSource{}, dealstage.Config{})
	ctx := context.Background()

	v := f.svc.Start(ctx, owner)
	_, err := f.svc.Get(ctx, v.ID, "intruder@zime.ai")
	assert.ErrorIs(t, err, dealstage.ErrWizardNotFound)

	require.NoError(t, f.svc.Delete(ctx, v.ID, owner))
	_, err = f.svc.Get(ctx, v.ID, owner)
	assert.ErrorIs(t, err, dealstage.ErrWizardNotFound)
}

func TestService_Search(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dealstage.SampleStageSource{}, dealstage.Config{})
	ctx := context.Background()

	companies, err := f.svc.Companies(ctx, "SOLUTIONS")
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, 3, companies[0].ID)

	pipelines, err := f.svc.Pipelines(ctx, "start")
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.Equal(t, "Startup Pipeline", pipelines[0].Name)
}

func TestSampleStageSource_HonorsCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := dealstage.SampleStageSource{Delay: time.Hour}.FetchStages(ctx, dealstage.Company{ID: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
