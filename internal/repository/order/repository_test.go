package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/Additional-Code/palate/internal/database/dbtest"
	"github.com/Additional-Code/palate/internal/entity"
	orderrepo "github.com/Additional-Code/palate/internal/repository/order"
	"github.com/Additional-Code/palate/internal/schema"
)

func setup(t *testing.T) (*orderrepo.Repository, *bun.DB) {
	t.Helper()
	db := dbtest.Open(t)
	require.NoError(t, schema.NewWithDB(db, 1600, nil).Ensure(context.Background()))
	return orderrepo.NewWithDB(db), db
}

func sampleOrder() *entity.Order {
	return &entity.Order{
		CustomerName:    "Rivka Stern",
		CustomerEmail:   "rivka@example.com",
		CustomerPhone:   "555-0100",
		CustomerAddress: "12 Elm St",
		ShabbosLabel:    "Parshas Noach",
		Allergies:       "sesame",
		Total:           "$148.00",
		Items: []entity.LineItem{
			map[string]any{"name": "Challah", "qty": 1},
			map[string]any{"name": "Kugel", "qty": 2},
		},
		EmailBody: "Order details",
		HTMLBody:  "<p>Order details</p>",
	}
}

func fieldset(t *testing.T, raw string) orderrepo.Fieldset {
	t.Helper()
	var f orderrepo.Fieldset
	require.NoError(t, json.Unmarshal([]byte(raw), &f))
	return f
}

func countOrders(t *testing.T, db *bun.DB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*entity.Order)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestCreate_AssignsFromSequence(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	first := sampleOrder()
	require.NoError(t, repo.Create(ctx, first))
	second := sampleOrder()
	require.NoError(t, repo.Create(ctx, second))

	assert.Equal(t, int64(1600), first.OrderNumber)
	assert.Equal(t, int64(1601), second.OrderNumber)
	assert.NotZero(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, entity.StatusNew, first.Status)

	stored, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusNew, stored.Status)
	assert.Equal(t, "sesame", stored.Allergies)
	assert.Equal(t, first.OrderNumber, stored.OrderNumber)
}

func TestCreate_EmptyFields(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	o := &entity.Order{}
	require.NoError(t, repo.Create(ctx, o))

	stored, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "", stored.CustomerName)
	assert.Equal(t, []entity.LineItem{}, stored.Items)
}

func TestCreate_ConcurrentNumbersDistinct(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	const n = 25
	numbers := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := sampleOrder()
			errs[i] = repo.Create(ctx, o)
			numbers[i] = o.OrderNumber
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[numbers[i]], "duplicate order number %d", numbers[i])
		seen[numbers[i]] = true
	}
}

func TestPatch_StatusOnly(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	o := sampleOrder()
	require.NoError(t, repo.Create(ctx, o))
	before, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)

	after, err := repo.Patch(ctx, o.ID, fieldset(t, `{"status":"x"}`))
	require.NoError(t, err)

	want := before
	want.Status = "x"
	assert.Empty(t, cmp.Diff(want, after))
}

func TestPatch_ValidationLeavesRowUntouched(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	o := sampleOrder()
	require.NoError(t, repo.Create(ctx, o))
	before, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)

	_, err = repo.Patch(ctx, o.ID, fieldset(t, `{"customer_name":"Changed","allergies":123}`))
	var vErr *orderrepo.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "allergies", vErr.Field)

	after, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(before, after))
}

func TestPatch_NotFound(t *testing.T) {
	repo, db := setup(t)
	ctx := context.Background()

	o := sampleOrder()
	require.NoError(t, repo.Create(ctx, o))
	before, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)

	_, err = repo.Patch(ctx, o.ID+1000, fieldset(t, `{"status":"done","items":[]}`))
	assert.ErrorIs(t, err, orderrepo.ErrNotFound)

	assert.Equal(t, 1, countOrders(t, db))
	after, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(before, after))
}

func TestPatch_ItemsReplacedWholesale(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	o := sampleOrder()
	require.NoError(t, repo.Create(ctx, o))

	_, err := repo.Patch(ctx, o.ID, fieldset(t, `{"items":[{"name":"Challah","qty":2}]}`))
	require.NoError(t, err)

	orders, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, []entity.LineItem{map[string]any{"name": "Challah", "qty": float64(2)}}, orders[0].Items)
}

func TestPatch_ItemsKeepNonObjectEntries(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	o := sampleOrder()
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.Patch(ctx, o.ID, fieldset(t, `{"items":["Challah",2,{"name":"Kugel"}]}`))
	require.NoError(t, err)

	want := []entity.LineItem{"Challah", float64(2), map[string]any{"name": "Kugel"}}
	assert.Equal(t, want, got.Items)

	stored, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Items)
}

func TestPatch_ConcurrentFieldsBothPersist(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	o := sampleOrder()
	require.NoError(t, repo.Create(ctx, o))

	patches := []string{`{"allergies":"peanuts"}`, `{"status":"ready"}`}
	for round := 0; round < 10; round++ {
		var wg sync.WaitGroup
		errs := make([]error, len(patches))
		for i, raw := range patches {
			wg.Add(1)
			go func(i int, f orderrepo.Fieldset) {
				defer wg.Done()
				_, errs[i] = repo.Patch(ctx, o.ID, f)
			}(i, fieldset(t, raw))
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		got, err := repo.GetByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "peanuts", got.Allergies)
		assert.Equal(t, "ready", got.Status)

		_, err = repo.Patch(ctx, o.ID, fieldset(t, `{"allergies":"sesame","status":"new"}`))
		require.NoError(t, err)
	}
}

func TestPatch_EmptyRoundTrip(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	o := sampleOrder()
	require.NoError(t, repo.Create(ctx, o))
	fresh, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)

	patched, err := repo.Patch(ctx, o.ID, fieldset(t, `{}`))
	require.NoError(t, err)

	if diff := cmp.Diff(fresh, patched); diff != "" {
		t.Fatalf("empty patch changed the snapshot (-fresh +patched):\n%s", diff)
	}
	assert.Equal(t, o.OrderNumber, patched.OrderNumber)
	assert.True(t, o.CreatedAt.Equal(patched.CreatedAt))
}

func TestPatch_MultipleFields(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	o := sampleOrder()
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.Patch(ctx, o.ID, fieldset(t, `{
		"customer_name":"Leah",
		"customer_phone":null,
		"allergies":"",
		"total":"$0.00",
		"items":[]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Leah", got.CustomerName)
	assert.Equal(t, "", got.CustomerPhone)
	assert.Equal(t, "", got.Allergies)
	assert.Equal(t, "$148.00", got.Total)
	assert.Equal(t, []entity.LineItem{}, got.Items)
	assert.Equal(t, "rivka@example.com", got.CustomerEmail)
}

func TestSetStatus(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	o := sampleOrder()
	require.NoError(t, repo.Create(ctx, o))
	before, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)

	require.NoError(t, repo.SetStatus(ctx, o.ID, "ready"))
	after, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)

	want := before
	want.Status = "ready"
	assert.Empty(t, cmp.Diff(want, after))

	assert.ErrorIs(t, repo.SetStatus(ctx, o.ID+1000, "ready"), orderrepo.ErrNotFound)

	var vErr *orderrepo.ValidationError
	assert.True(t, errors.As(repo.SetStatus(ctx, o.ID, ""), &vErr))
}

func TestList_NewestFirstWithLimit(t *testing.T) {
	repo, db := setup(t)
	ctx := context.Background()

	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]int64, 5)
	for i := range ids {
		o := sampleOrder()
		require.NoError(t, repo.Create(ctx, o))
		ids[i] = o.ID
		_, err := db.NewUpdate().
			Model((*entity.Order)(nil)).
			Set("created_at = ?", base.Add(time.Duration(i)*time.Hour)).
			Where("id = ?", o.ID).
			Exec(ctx)
		require.NoError(t, err)
	}

	orders, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, ids[4], orders[0].ID)
	assert.Equal(t, ids[3], orders[1].ID)

	all, err := repo.List(ctx, 300)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, _ := setup(t)

	_, err := repo.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, orderrepo.ErrNotFound)
}
