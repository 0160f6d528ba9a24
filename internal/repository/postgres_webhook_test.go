package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/db"
	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDSNEnv - DSN тестовой базы; без него тесты PostgreSQL пропускаются
const testDSNEnv = "RECONCILER_TEST_DATABASE_DSN"

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", testDSNEnv)
	}

	log := logger.NewNop()
	require.NoError(t, RunMigrations(dsn, log))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := db.NewDBClient(ctx, dsn, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client.DB()
}

func newPostgresWebhookRepo(t *testing.T, lease time.Duration) *postgresWebhookRepo {
	t.Helper()
	repo, ok := NewPostgresWebhookRepository(openTestDB(t), lease, logger.NewNop()).(*postgresWebhookRepo)
	require.True(t, ok)
	return repo
}

// uniqueEventID не пересекается с записями предыдущих запусков
func uniqueEventID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func pgReceipt(eventID string) *domain.WebhookReceipt {
	return &domain.WebhookReceipt{
		ExternalEventID: eventID,
		Provider:        domain.ProviderStripe,
		EventType:       domain.EventSubscriptionUpdated,
		Payload:         []byte(`{"id":"` + eventID + `"}`),
	}
}

func TestPostgresWebhookRepository_BeginAndMark(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresWebhookRepo(t, time.Minute)
	eventID := uniqueEventID("evt_pg")

	rec, err := repo.Begin(ctx, pgReceipt(eventID))
	require.NoError(t, err)
	assert.Equal(t, domain.ReceiptStatusPending, rec.Status)
	assert.Equal(t, 1, rec.Attempts)

	_, err = repo.Begin(ctx, pgReceipt(eventID))
	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)

	require.NoError(t, repo.MarkSucceeded(ctx, eventID))
	assert.ErrorIs(t, repo.MarkSucceeded(ctx, eventID), ErrReceiptNotPending)
	assert.ErrorIs(t, repo.MarkFailed(ctx, eventID, "boom"), ErrReceiptNotPending)

	found, err := repo.FindSucceeded(ctx, eventID)
	require.NoError(t, err)
	assert.NotNil(t, found.ProcessedAt)

	_, err = repo.Begin(ctx, pgReceipt(eventID))
	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)
}

func TestPostgresWebhookRepository_FailedIsRetried(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresWebhookRepo(t, time.Minute)
	eventID := uniqueEventID("evt_pg_failed")

	_, err := repo.Begin(ctx, pgReceipt(eventID))
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, eventID, "stripe unavailable"))

	retry, err := repo.Begin(ctx, pgReceipt(eventID))
	require.NoError(t, err)
	assert.Equal(t, 2, retry.Attempts)
	assert.Equal(t, domain.ReceiptStatusPending, retry.Status)
	assert.Nil(t, retry.ErrorMessage)
}

func TestPostgresWebhookRepository_ExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresWebhookRepo(t, 10*time.Minute)
	eventID := uniqueEventID("evt_pg_lease")

	start := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	now := start
	repo.now = func() time.Time { return now }

	_, err := repo.Begin(ctx, pgReceipt(eventID))
	require.NoError(t, err)

	now = start.Add(9 * time.Minute)
	_, err = repo.Begin(ctx, pgReceipt(eventID))
	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)

	now = start.Add(11 * time.Minute)
	rec, err := repo.Begin(ctx, pgReceipt(eventID))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
}

func TestPostgresWebhookRepository_ConcurrentBeginHasOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresWebhookRepo(t, time.Minute)
	eventID := uniqueEventID("evt_pg_race")

	var wins, dups int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Begin(ctx, pgReceipt(eventID))
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, domain.ErrDuplicateEvent):
				atomic.AddInt32(&dups, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, 15, dups)

	// только победитель завершает запись
	var finished int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.MarkSucceeded(ctx, eventID) == nil {
				atomic.AddInt32(&finished, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, finished)
}
