//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nis-portal/portal-api/internal/models"
)

// Run with: go test -tags=integration ./internal/store/...
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("nis_portal"),
		postgres.WithUsername("nis"),
		postgres.WithPassword("nis"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := Migrate(ctx, pool)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	return pool
}

func TestPostgresStore_Integration(t *testing.T) {
	pool := setupPostgres(t)
	s := NewPostgresStore(pool)
	ctx := context.Background()

	t.Run("reference data", func(t *testing.T) {
		code, err := s.CountryCode(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "BB", code)

		roles, err := s.ListRoles(ctx)
		require.NoError(t, err)
		assert.Len(t, roles, 4)

		role, err := s.RoleByName(ctx, "EXTERNAL OFFICER")
		require.NoError(t, err)
		assert.Equal(t, int64(4), role.ID)

		officeID, err := s.DefaultOfficeID(ctx)
		require.NoError(t, err)
		again, err := s.DefaultOfficeID(ctx)
		require.NoError(t, err)
		assert.Equal(t, officeID, again)
	})

	t.Run("request lifecycle", func(t *testing.T) {
		var requestID int64
		err := s.InTx(ctx, func(tx Repository) error {
			claimantID, _, err := tx.InsertClaimant(ctx, &models.Claimant{
				FirstName: "Ann", LastName: "Lee", NationalID: "INT-1",
				DOB: time.Date(1958, 7, 9, 0, 0, 0, 0, time.UTC),
			})
			if err != nil {
				return err
			}
			seq, err := tx.NextRequestSequence(ctx, "BB", 2025)
			if err != nil {
				return err
			}
			requestID, err = tx.InsertRequest(ctx, &models.NewRequest{
				RequestNumber:       models.FormatRequestNumber("BB", 2025, seq),
				ClaimantID:          claimantID,
				RequestingCountryID: 1,
				TargetCountryID:     2,
				BenefitTypeID:       1,
				Status:              models.StatusPending,
				CreatedAt:           time.Now().UTC(),
			})
			return err
		})
		require.NoError(t, err)

		rec, err := s.GetRequest(ctx, requestID)
		require.NoError(t, err)
		assert.Equal(t, "BB-2025-00001", rec.RequestNumber)
		assert.Equal(t, "1958-07-09", rec.DOB)

		ok, err := s.UpdateRequestStatus(ctx, requestID, models.StatusResponded)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UpdateRequestStatus(ctx, requestID+1000, models.StatusResponded)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.GetRequest(ctx, requestID+1000)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("failed transaction leaves nothing behind", func(t *testing.T) {
		err := s.InTx(ctx, func(tx Repository) error {
			if _, _, err := tx.InsertClaimant(ctx, &models.Claimant{NationalID: "INT-ROLLBACK", DOB: time.Now()}); err != nil {
				return err
			}
			return models.NewValidationError("abort")
		})
		require.ErrorIs(t, err, models.ErrValidation)

		_, err = s.FindClaimantByNationalID(ctx, "INT-ROLLBACK")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("concurrent claimant inserts share one row", func(t *testing.T) {
		const workers = 10
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ids     = map[int64]bool{}
			created int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.InTx(ctx, func(tx Repository) error {
					id, isNew, err := tx.InsertClaimant(ctx, &models.Claimant{
						FirstName: "Race", LastName: "Claimant", NationalID: "INT-RACE",
						DOB: time.Date(1955, 3, 4, 0, 0, 0, 0, time.UTC),
					})
					if err != nil {
						return err
					}
					mu.Lock()
					ids[id] = true
					if isNew {
						created++
					}
					mu.Unlock()
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Len(t, ids, 1)
		assert.Equal(t, 1, created)
	})

	t.Run("sequence is unique under concurrency", func(t *testing.T) {
		const workers = 20
		var wg sync.WaitGroup
		results := make(chan int64, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				seq, err := s.NextRequestSequence(ctx, "JM", 2030)
				assert.NoError(t, err)
				results <- seq
			}()
		}
		wg.Wait()
		close(results)

		seen := map[int64]bool{}
		for seq := range results {
			assert.False(t, seen[seq], "duplicate sequence %d", seq)
			seen[seq] = true
		}
		assert.Len(t, seen, workers)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := s.InsertUser(ctx, &models.User{FirstName: "A", LastName: "B", Email: "dup@nis.org", PasswordHash: "x", RoleID: 1})
		require.NoError(t, err)
		_, err = s.InsertUser(ctx, &models.User{FirstName: "C", LastName: "D", Email: "dup@nis.org", PasswordHash: "x", RoleID: 1})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("audit listing", func(t *testing.T) {
		id := int64(77)
		for _, action := range []string{models.ActionCreate, models.ActionAssignment} {
			_, err := s.InsertAuditLog(ctx, &models.AuditLogEntry{ActionType: action, EntityType: models.EntityRequest, EntityID: &id})
			require.NoError(t, err)
		}
		entries, err := s.ListAuditLogs(ctx, models.AuditFilter{EntityType: models.EntityRequest, EntityID: &id, Limit: 1})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.ActionAssignment, entries[0].ActionType)
	})
}
