package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-erp/stockpile/internal/shared"
	"github.com/stockpile-erp/stockpile/internal/stock"
)

type memoryRepo struct {
	mu           sync.Mutex
	reservations []*Reservation
	onHand       map[string]decimal.Decimal
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{onHand: map[string]decimal.Decimal{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]Reservation, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Reservation{}
	for _, res := range r.reservations {
		if res.Key.TenantID != filter.TenantID {
			continue
		}
		if filter.ItemCode != "" && res.Key.ItemCode != filter.ItemCode {
			continue
		}
		if filter.OrderReference != "" && res.OrderReference != filter.OrderReference {
			continue
		}
		if filter.ActiveOnly && !res.Active() {
			continue
		}
		out = append(out, *res)
	}
	total := len(out)
	page, limit := shared.NormalizePage(filter.Page, filter.Limit, 500)
	offset := (page - 1) * limit
	if offset >= len(out) {
		return []Reservation{}, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) RemainingQty(ctx context.Context, key stock.Key) (decimal.Decimal, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	return t.repo.onHand[key.String()], nil
}

func (t *memoryTx) ActiveReservedQty(ctx context.Context, key stock.Key) (decimal.Decimal, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	total := decimal.Decimal{}
	for _, res := range t.repo.reservations {
		if res.Key == key && res.Active() {
			total = total.Add(res.Quantity)
		}
	}
	return total, nil
}

func (t *memoryTx) Insert(ctx context.Context, res Reservation) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextID++
	res.ID = t.repo.nextID
	t.repo.reservations = append(t.repo.reservations, &res)
	return res.ID, nil
}

func (t *memoryTx) Get(ctx context.Context, id int64) (Reservation, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, res := range t.repo.reservations {
		if res.ID == id {
			return *res, nil
		}
	}
	return Reservation{}, shared.ErrNotFound
}

func (t *memoryTx) Release(ctx context.Context, id int64) (bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, res := range t.repo.reservations {
		if res.ID != id {
			continue
		}
		if res.ReleasedAt != nil {
			return false, nil
		}
		now := time.Now().UTC()
		res.ReleasedAt = &now
		return true, nil
	}
	return false, shared.ErrNotFound
}

var testTenant = uuid.MustParse("8d5a7f62-3c41-4f7a-9b1e-2d8f6a0c4e91")

func testKey() stock.Key {
	return stock.Key{TenantID: testTenant, ItemCode: "WIDGET-1", WarehouseCode: "WH-A"}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, shared.NewKeyMutex(), nil)
}

func TestReserveChecksAvailability(t *testing.T) {
	repo := newMemoryRepo()
	key := testKey()
	repo.onHand[key.String()] = dec("50")
	svc := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, Input{Key: key, OrderReference: "SO-001", Quantity: dec("40")})
	require.NoError(t, err)
	require.True(t, res.Active())

	avail, err := svc.Availability(ctx, key)
	require.NoError(t, err)
	require.True(t, avail.Actual.Equal(dec("50")))
	require.True(t, avail.Reserved.Equal(dec("40")))
	require.True(t, avail.Available.Equal(dec("10")))

	// 15 exceeds the 10 still available even though 50 is on hand
	_, err = svc.Reserve(ctx, Input{Key: key, OrderReference: "SO-002", Quantity: dec("15")})
	require.ErrorIs(t, err, ErrInsufficientAvailable)

	_, err = svc.Reserve(ctx, Input{Key: key, OrderReference: "SO-003", Quantity: dec("10")})
	require.NoError(t, err)
}

func TestReleaseRestoresAvailability(t *testing.T) {
	repo := newMemoryRepo()
	key := testKey()
	repo.onHand[key.String()] = dec("50")
	svc := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, Input{Key: key, OrderReference: "SO-001", Quantity: dec("40")})
	require.NoError(t, err)

	released, err := svc.Release(ctx, testTenant, res.ID)
	require.NoError(t, err)
	require.False(t, released.Active())
	require.NotNil(t, released.ReleasedAt)

	avail, err := svc.Availability(ctx, key)
	require.NoError(t, err)
	require.True(t, avail.Available.Equal(dec("50")))
}

func TestReleaseIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	key := testKey()
	repo.onHand[key.String()] = dec("50")
	svc := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, Input{Key: key, OrderReference: "SO-001", Quantity: dec("10")})
	require.NoError(t, err)

	first, err := svc.Release(ctx, testTenant, res.ID)
	require.NoError(t, err)
	second, err := svc.Release(ctx, testTenant, res.ID)
	require.NoError(t, err)
	require.False(t, second.Active())
	require.Equal(t, first.ID, second.ID)
}

func TestReleaseScopedToTenant(t *testing.T) {
	repo := newMemoryRepo()
	key := testKey()
	repo.onHand[key.String()] = dec("50")
	svc := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, Input{Key: key, OrderReference: "SO-001", Quantity: dec("10")})
	require.NoError(t, err)

	_, err = svc.Release(ctx, uuid.New(), res.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Release(ctx, testTenant, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReserveValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, Input{Key: testKey(), Quantity: decimal.Decimal{}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Reserve(ctx, Input{Key: stock.Key{TenantID: testTenant}, Quantity: dec("1")})
	require.Error(t, err)

	_, _, err = svc.List(ctx, Filter{})
	require.ErrorIs(t, err, shared.ErrTenantMissing)
}

func TestConcurrentReservationsDoNotOversell(t *testing.T) {
	repo := newMemoryRepo()
	key := testKey()
	repo.onHand[key.String()] = dec("100")
	svc := newTestService(repo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Reserve(context.Background(), Input{
				Key: key, OrderReference: "SO-RACE", Quantity: dec("10"),
			})
		}()
	}
	wg.Wait()

	reservations, pagination, err := svc.List(context.Background(), Filter{TenantID: testTenant, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, reservations, 10, "only 10 holds of 10 fit into 100 on hand")
	require.Equal(t, 10, pagination.Total)

	avail, err := svc.Availability(context.Background(), key)
	require.NoError(t, err)
	require.True(t, avail.Available.IsZero())
}
