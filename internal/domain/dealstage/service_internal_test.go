package dealstage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zime-ai/nucleus/internal/testsupport"
)

// A Refresh that passed its step check can lose the race to Back before the
// fetch starts. The wizard must not be left loading on an earlier step.
func TestService_FetchAfterLeavingMapStages(t *testing.T) {
	t.Parallel()

	db := testsupport.OpenDB(t)
	svc := NewService(NewCatalog(db), SampleStageSource{}, NewMappingStore(db), nil, nil, Config{})
	ctx := context.Background()
	const owner = "ana@zime.ai"

	v := svc.Start(ctx, owner)
	_, err := svc.SelectCompany(ctx, v.ID, owner, 1)
	require.NoError(t, err)
	_, err = svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)
	_, err = svc.SelectPipeline(ctx, v.ID, owner, 1)
	require.NoError(t, err)
	_, err = svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)

	_, err = svc.Back(ctx, v.ID, owner)
	require.NoError(t, err)

	got, err := svc.fetch(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, StepSelectPipeline, got.Step)
	assert.False(t, got.LoadingStages)

	got, err = svc.Back(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, StepSelectCompany, got.Step)
	assert.False(t, got.LoadingStages)

	got, err = svc.Next(ctx, v.ID, owner)
	require.NoError(t, err)
	assert.False(t, got.LoadingStages)
	assert.True(t, got.CanAdvance)
}
