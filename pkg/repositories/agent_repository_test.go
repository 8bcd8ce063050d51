//go:build integration

package repositories

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

func TestAgentRepository_CreateAndLookup(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := tc.ctx()
	email := uuid.NewString() + "@example.com"

	a := &models.Agent{Name: "scout", Platform: models.PlatformNero, Email: email, APIKeyHash: uuid.NewString()}
	require.NoError(t, tc.agents.Create(ctx, a))
	assert.Equal(t, 0, a.ContributionScore)

	byHash, err := tc.agents.GetByAPIKeyHash(ctx, a.APIKeyHash)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byHash.ID)

	byEmail, err := tc.agents.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byEmail.ID)

	dup := &models.Agent{Name: "other", Platform: models.PlatformCustom, Email: email, APIKeyHash: uuid.NewString()}
	assert.ErrorIs(t, tc.agents.Create(ctx, dup), apperrors.ErrEmailTaken)

	require.NoError(t, tc.agents.MarkEmailVerified(ctx, a.ID))
	got, err := tc.agents.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)

	_, err = tc.agents.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrAgentNotFound)
}

func TestAgentRepository_IncrementContribution_NoLostUpdates(t *testing.T) {
	tc := setupRepoTest(t)
	id := tc.agent()

	const credits = 25
	var wg sync.WaitGroup
	for i := 0; i < credits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tc.inTx(func(ctx context.Context) error {
				_, err := tc.agents.IncrementContribution(ctx, id)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := tc.agents.GetByID(tc.ctx(), id)
	require.NoError(t, err)
	assert.Equal(t, credits, got.ContributionScore)
}
