package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sms-number-bot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open("sqlite://" + filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.Migrate())
	require.NoError(t, repo.Seed(context.Background(), domain.DefaultPrices, domain.DefaultSettings))
	return repo
}

func TestOpen_UnsupportedURL(t *testing.T) {
	_, err := Open("mysql://localhost/db")
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Repository{dialect: dialectPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.q("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Repository{dialect: dialectSQLite}
	assert.Equal(t, "SELECT ?", lite.q("SELECT ?"))
}

func TestMigrate_Idempotent(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.Migrate())
}

func TestSeed_DoesNotOverwrite(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SetPrice(ctx, "tr", 22))
	require.NoError(t, repo.SetSetting(ctx, domain.Setting5SimEnabled, "0"))
	require.NoError(t, repo.Seed(ctx, domain.DefaultPrices, domain.DefaultSettings))

	price, err := repo.GetPrice(ctx, "tr", domain.DefaultPrice)
	require.NoError(t, err)
	assert.Equal(t, 22.0, price)

	value, err := repo.GetSetting(ctx, domain.Setting5SimEnabled, "1")
	require.NoError(t, err)
	assert.Equal(t, "0", value)

	prices, err := repo.ListPrices(ctx)
	require.NoError(t, err)
	assert.Len(t, prices, 4)
	assert.Equal(t, 30.0, prices["sa"])
}

func TestGetPrice_MissingCountryReturnsDefault(t *testing.T) {
	repo := newTestRepository(t)

	price, err := repo.GetPrice(context.Background(), "zz", domain.DefaultPrice)
	require.NoError(t, err)
	assert.Equal(t, 25.0, price)
}

func TestGetSetting_MissingKeyReturnsDefault(t *testing.T) {
	repo := newTestRepository(t)

	value, err := repo.GetSetting(context.Background(), "no_such_key", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", value)
}

func TestToggleSetting_RoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	value, err := repo.ToggleSetting(ctx, domain.SettingSMSEnabled)
	require.NoError(t, err)
	assert.Equal(t, "0", value)

	value, err = repo.ToggleSetting(ctx, domain.SettingSMSEnabled)
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	stored, err := repo.GetSetting(ctx, domain.SettingSMSEnabled, "")
	require.NoError(t, err)
	assert.Equal(t, "1", stored)
}

func TestToggleSetting_UnsetCountsAsEnabled(t *testing.T) {
	repo := newTestRepository(t)

	value, err := repo.ToggleSetting(context.Background(), "provider_new_enabled")
	require.NoError(t, err)
	assert.Equal(t, "0", value)
}

func TestToggleSetting_Concurrent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ToggleSetting(ctx, domain.Setting5SimEnabled)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	value, err := repo.GetSetting(ctx, domain.Setting5SimEnabled, "")
	require.NoError(t, err)
	assert.Equal(t, "1", value, "an even number of toggles restores the flag")
}

func TestUpsertUser_InsertThenUpdate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.GetUser(ctx, 100)
	require.ErrorIs(t, err, ErrNotFound)
	loggedIn, err := repo.IsLoggedIn(ctx, 100)
	require.NoError(t, err)
	assert.False(t, loggedIn)

	created, err := repo.UpsertUser(ctx, domain.UserUpsert{ID: 100, Locale: "en"})
	require.NoError(t, err)
	assert.True(t, created)

	u, err := repo.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.ID)
	assert.Empty(t, u.Email)
	assert.Zero(t, u.Balance)
	assert.Equal(t, "en", u.LastLocale)
	assert.False(t, u.CreatedAt.IsZero())

	loggedIn, err = repo.IsLoggedIn(ctx, 100)
	require.NoError(t, err)
	assert.True(t, loggedIn)

	created, err = repo.UpsertUser(ctx, domain.UserUpsert{ID: 100, Email: "a@b.co"})
	require.NoError(t, err)
	assert.False(t, created)

	u, err = repo.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", u.Email)
	assert.Equal(t, "en", u.LastLocale, "empty locale keeps the stored one")

	n, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateOrder_SnapshotsPrice(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	order := &domain.Order{
		UserID:    7,
		Provider:  domain.Provider5Sim,
		Country:   "sa",
		Service:   "whatsapp",
		Phone:     "+99900012345",
		Price:     30,
		Status:    domain.StatusWaitCode,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateOrder(ctx, order))
	require.NoError(t, repo.SetPrice(ctx, "sa", 99))

	orders, err := repo.ListOrdersByUser(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 30.0, orders[0].Price)
	assert.Equal(t, domain.StatusWaitCode, orders[0].Status)
	assert.Equal(t, "+99900012345", orders[0].Phone)
	assert.NotZero(t, orders[0].ID)

	total, err := repo.CountOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	mine, err := repo.CountOrdersByUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, mine)
	others, err := repo.CountOrdersByUser(ctx, 8)
	require.NoError(t, err)
	assert.Zero(t, others)
}

func TestCreateOrderAndAdvance(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	order := &domain.Order{
		UserID:    7,
		Provider:  domain.Provider5Sim,
		Country:   "sa",
		Service:   "whatsapp",
		Phone:     "+99900012345",
		Price:     30,
		Status:    domain.StatusWaitCode,
		CreatedAt: time.Now(),
	}
	conv := &domain.Conversation{
		UserID: 7,
		State:  domain.StateWaitingCode,
		Data:   domain.ConversationData{Country: "sa", Service: "whatsapp", Phone: "+99900012345"},
	}
	require.NoError(t, repo.CreateOrderAndAdvance(ctx, order, conv))

	n, err := repo.CountOrdersByUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := repo.GetConversation(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWaitingCode, got.State)
	assert.Equal(t, "+99900012345", got.Data.Phone)
}

func TestCreateOrderAndAdvance_RollsBackOnStateFailure(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.db.ExecContext(ctx, `
        CREATE TRIGGER reject_waiting BEFORE INSERT ON conversation_states
        WHEN NEW.state = 'waiting_code'
        BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	order := &domain.Order{
		UserID:    7,
		Provider:  domain.Provider5Sim,
		Country:   "sa",
		Service:   "whatsapp",
		Phone:     "+99900012345",
		Price:     30,
		Status:    domain.StatusWaitCode,
		CreatedAt: time.Now(),
	}
	conv := &domain.Conversation{UserID: 7, State: domain.StateWaitingCode}
	require.Error(t, repo.CreateOrderAndAdvance(ctx, order, conv))

	n, err := repo.CountOrdersByUser(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err := repo.GetConversation(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, got.State)
}

func TestConversation_Lifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	conv, err := repo.GetConversation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, conv.State)

	conv.State = domain.StateChoosingService
	conv.Data.Country = "eg"
	require.NoError(t, repo.SaveConversation(ctx, conv))

	got, err := repo.GetConversation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.StateChoosingService, got.State)
	assert.Equal(t, "eg", got.Data.Country)

	got.State = domain.StateIdle
	require.NoError(t, repo.SaveConversation(ctx, got))

	cleared, err := repo.GetConversation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, cleared.State)
	assert.Empty(t, cleared.Data.Country)
}
