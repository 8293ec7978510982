package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/store/storetest"
)

// slowRolesStore parks every ListRoles call until release is closed.
type slowRolesStore struct {
	*storetest.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowRolesStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.MemoryStore.ListRoles(ctx)
}

func TestMetaService_StaticLists(t *testing.T) {
	svc := NewMetaService(storetest.NewMemoryStore(), logging.Logger)

	countries := svc.Countries()
	require.Len(t, countries, 8)
	assert.Equal(t, "Guyana", countries[7].Name)

	countries[0].Name = "changed"
	assert.Equal(t, "Barbados", svc.Countries()[0].Name, "callers get a copy")

	benefits := svc.BenefitTypes()
	require.Len(t, benefits, 4)
	assert.Equal(t, "Old Age Pension", benefits[0].Name)
}

func TestMetaService_RolesCachedAfterFirstRead(t *testing.T) {
	repo := storetest.NewMemoryStore()
	svc := NewMetaService(repo, logging.Logger)
	ctx := context.Background()

	roles := svc.Roles(ctx)
	assert.Equal(t, models.DefaultRoles, roles)

	repo.FailOn(storetest.OpListRoles, 0, errInjected)
	assert.Equal(t, models.DefaultRoles, svc.Roles(ctx), "served from cache")
}

func TestMetaService_RolesFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("store error", func(t *testing.T) {
		repo := storetest.NewMemoryStore()
		repo.FailOn(storetest.OpListRoles, 0, errInjected)
		svc := NewMetaService(repo, nil)
		assert.Equal(t, models.DefaultRoles, svc.Roles(ctx))

		repo.ClearFailures()
		repo.ClearRoles()
		assert.Equal(t, models.DefaultRoles, svc.Roles(ctx), "empty table also falls back")
	})

	t.Run("fallback is not cached", func(t *testing.T) {
		repo := storetest.NewMemoryStore()
		repo.ClearRoles()
		svc := NewMetaService(repo, nil)
		svc.Roles(ctx)
		assert.Nil(t, svc.roles)
	})
}

func TestMetaService_RolesQueryDoesNotBlockOtherCallers(t *testing.T) {
	repo := &slowRolesStore{
		MemoryStore: storetest.NewMemoryStore(),
		entered:     make(chan struct{}, 2),
		release:     make(chan struct{}),
	}
	svc := NewMetaService(repo, logging.Logger)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]models.Role, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Roles(ctx)
		}(i)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-repo.entered:
		case <-time.After(2 * time.Second):
			close(repo.release)
			t.Fatalf("only %d of 2 callers reached the roles query", i)
		}
	}
	close(repo.release)
	wg.Wait()

	assert.Equal(t, models.DefaultRoles, results[0])
	assert.Equal(t, models.DefaultRoles, results[1])
}
