package repo_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/hsmazur/Taberna3/internal/adapter/repo"
	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

// openMySQL starts a throwaway MySQL and applies the migrations.
// Set TABERNA_IT=1 to run; the tests need a Docker daemon.
func openMySQL(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("TABERNA_IT") == "" {
		t.Skip("set TABERNA_IT=1 to run MySQL integration tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("taberna"),
		tcmysql.WithUsername("taberna"),
		tcmysql.WithPassword("taberna"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	dsn, err := c.ConnectionString(ctx, "parseTime=true", "loc=UTC", "multiStatements=true")
	require.NoError(t, err)
	db, err := sqlx.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := repo.NewMigrator(db.DB)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	return db
}

func TestMySQL_CartCheckoutAndOutbox(t *testing.T) {
	db := openMySQL(t)
	ctx := context.Background()

	users := repo.NewMySQLUserRepo(db)
	products := repo.NewMySQLProductRepo(db)
	uow := repo.NewMySQLUnitOfWork(db)

	buyer := &domain.User{Name: "Ana", Email: "ana@example.com", CreatedAt: time.Now().UTC()}
	require.NoError(t, users.Create(ctx, buyer))
	pastel := &domain.Product{Name: "Pastel", Price: decimal.RequireFromString("10.00")}
	require.NoError(t, products.Create(ctx, pastel))

	cart := usecase.NewCart(uow)

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := cart.GetOrCreatePendingOrder(ctx, buyer.ID)
			if assert.NoError(t, err) {
				ids[i] = o.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	snap, err := cart.SetLineQuantity(ctx, ids[0], pastel.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "30", snap.Order.TotalAmount.String())

	checkout := usecase.NewCheckout(uow, nil, nil, nil)
	d, err := checkout.Finalize(ctx, usecase.FinalizeInput{OrderID: ids[0], Method: domain.PaymentPix})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, d.Order.Status)

	_, err = cart.SetLineQuantity(ctx, ids[0], pastel.ID, 1)
	assert.ErrorIs(t, err, usecase.ErrOrderNotMutable)

	next, err := cart.GetOrCreatePendingOrder(ctx, buyer.ID)
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], next.ID)

	assert.ErrorIs(t, products.Delete(ctx, pastel.ID), usecase.ErrProductInUse)

	ob := repo.NewMySQLOutboxRepo(db)
	events, err := ob.LockBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, usecase.EventOrderFinalized, events[0].Type)

	// a released event is claimable again before its lease runs out
	require.NoError(t, ob.Release(ctx, []int64{events[0].ID}))
	events, err = ob.LockBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Zero(t, events[0].RetryCount)
	require.NoError(t, ob.MarkSent(ctx, []int64{events[0].ID}))

	again, err := ob.LockBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMySQL_RolesAndRatings(t *testing.T) {
	db := openMySQL(t)
	ctx := context.Background()

	users := repo.NewMySQLUserRepo(db)
	clients := repo.NewMySQLClientRepo(db)
	employees := repo.NewMySQLEmployeeRepo(db)
	ratings := repo.NewMySQLRatingRepo(db)
	products := repo.NewMySQLProductRepo(db)

	u := &domain.User{Name: "Bia", Email: "bia@example.com", CreatedAt: time.Now().UTC()}
	require.NoError(t, users.Create(ctx, u))
	assert.ErrorIs(t, users.Create(ctx, &domain.User{Name: "Dup", Email: "bia@example.com", CreatedAt: time.Now().UTC()}), usecase.ErrEmailTaken)

	role, err := users.Role(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, role)

	require.NoError(t, clients.Create(ctx, &domain.Client{UserID: u.ID, Phone: "555"}))
	assert.ErrorIs(t, clients.Create(ctx, &domain.Client{UserID: u.ID}), usecase.ErrAlreadyClient)
	role, _ = users.Role(ctx, u.ID)
	assert.Equal(t, domain.RoleClient, role)

	require.NoError(t, employees.Create(ctx, &domain.Employee{UserID: u.ID, Position: "caixa"}))
	role, _ = users.Role(ctx, u.ID)
	assert.Equal(t, domain.RoleEmployee, role)

	p := &domain.Product{Name: "Caldo", Price: decimal.RequireFromString("5.50")}
	require.NoError(t, products.Create(ctx, p))

	ok, err := ratings.HasConsumed(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	r := &domain.Rating{ProductID: p.ID, UserID: u.ID, Score: 4, CreatedAt: time.Now().UTC()}
	require.NoError(t, ratings.Create(ctx, r))
	assert.ErrorIs(t, ratings.Create(ctx, &domain.Rating{ProductID: p.ID, UserID: u.ID, Score: 2, CreatedAt: time.Now().UTC()}), usecase.ErrAlreadyRated)

	scores, err := ratings.Scores(ctx)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 1, scores[0].Count)
	assert.True(t, scores[0].Average.Equal(decimal.NewFromInt(4)))
}
