package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-erp/stockpile/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	records []*Record
	nextID  int64
}

func (r *memoryRepo) Insert(ctx context.Context, rec Record) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.TenantID == rec.TenantID && existing.BatchNumber == rec.BatchNumber &&
			existing.ItemCode == rec.ItemCode && existing.WarehouseCode == rec.WarehouseCode {
			return 0, ErrDuplicateBatch
		}
	}
	r.nextID++
	rec.ID = r.nextID
	r.records = append(r.records, &rec)
	return rec.ID, nil
}

func (r *memoryRepo) Find(ctx context.Context, tenantID uuid.UUID, batchNumber, itemCode, warehouseCode string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.TenantID == tenantID && rec.BatchNumber == batchNumber &&
			rec.ItemCode == itemCode && rec.WarehouseCode == warehouseCode {
			return *rec, nil
		}
	}
	return Record{}, shared.ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Record{}
	for _, rec := range r.records {
		if rec.TenantID != filter.TenantID {
			continue
		}
		if filter.ItemCode != "" && rec.ItemCode != filter.ItemCode {
			continue
		}
		if filter.BatchNumber != "" && rec.BatchNumber != filter.BatchNumber {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (r *memoryRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			rec.Status = status
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memoryRepo) Expiring(ctx context.Context, tenantID uuid.UUID, until time.Time) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Record{}
	for _, rec := range r.records {
		if rec.TenantID != tenantID || rec.Status == StatusExpired || rec.ExpiryDate == nil {
			continue
		}
		if !rec.ExpiryDate.After(until) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkExpiredDue(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, rec := range r.records {
		if rec.Status != StatusExpired && rec.ExpiryDate != nil && rec.ExpiryDate.Before(now) {
			rec.Status = StatusExpired
			count++
		}
	}
	return count, nil
}

var testTenant = uuid.MustParse("8d5a7f62-3c41-4f7a-9b1e-2d8f6a0c4e91")

var testNow = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil)
	svc.clock = func() time.Time { return testNow }
	return svc
}

func createBatch(t *testing.T, svc *Service, number string, expiry *time.Time) Record {
	t.Helper()
	rec, err := svc.Create(context.Background(), Input{
		TenantID:      testTenant,
		BatchNumber:   number,
		ItemCode:      "WIDGET-1",
		WarehouseCode: "WH-A",
		ExpiryDate:    expiry,
	})
	require.NoError(t, err)
	return rec
}

func datePtr(t time.Time) *time.Time { return &t }

func TestCreateRejectsDuplicates(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)

	rec := createBatch(t, svc, "BATCH-1", nil)
	require.Equal(t, StatusAvailable, rec.Status)

	_, err := svc.Create(context.Background(), Input{
		TenantID:      testTenant,
		BatchNumber:   "BATCH-1",
		ItemCode:      "WIDGET-1",
		WarehouseCode: "WH-A",
	})
	require.ErrorIs(t, err, ErrDuplicateBatch)
}

func TestStatusTransitions(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)
	createBatch(t, svc, "BATCH-1", nil)
	ctx := context.Background()

	rec, err := svc.UpdateStatus(ctx, testTenant, "BATCH-1", "WIDGET-1", "WH-A", StatusReserved)
	require.NoError(t, err)
	require.Equal(t, StatusReserved, rec.Status)

	// reserved batches cannot go straight to quarantine
	_, err = svc.UpdateStatus(ctx, testTenant, "BATCH-1", "WIDGET-1", "WH-A", StatusQuarantine)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	rec, err = svc.UpdateStatus(ctx, testTenant, "BATCH-1", "WIDGET-1", "WH-A", StatusAvailable)
	require.NoError(t, err)

	rec, err = svc.UpdateStatus(ctx, testTenant, "BATCH-1", "WIDGET-1", "WH-A", StatusQuarantine)
	require.NoError(t, err)
	require.Equal(t, StatusQuarantine, rec.Status)

	// operators may never set expired directly
	_, err = svc.UpdateStatus(ctx, testTenant, "BATCH-1", "WIDGET-1", "WH-A", StatusExpired)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestExpiryIsLazyAndIrreversible(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)
	createBatch(t, svc, "BATCH-OLD", datePtr(testNow.AddDate(0, 0, -1)))
	createBatch(t, svc, "BATCH-OK", datePtr(testNow.AddDate(0, 0, 10)))
	ctx := context.Background()

	records, _, err := svc.List(ctx, Filter{TenantID: testTenant})
	require.NoError(t, err)
	byNumber := map[string]Record{}
	for _, rec := range records {
		byNumber[rec.BatchNumber] = rec
	}
	require.Equal(t, StatusExpired, byNumber["BATCH-OLD"].Status, "expiry resolves at read time")
	require.Equal(t, StatusAvailable, byNumber["BATCH-OK"].Status)

	expired, pagination, err := svc.List(ctx, Filter{TenantID: testTenant, Status: StatusExpired})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, 1, pagination.Total, "total counts effective-status matches only")

	_, err = svc.UpdateStatus(ctx, testTenant, "BATCH-OLD", "WIDGET-1", "WH-A", StatusAvailable)
	require.ErrorIs(t, err, ErrBatchExpired)
}

func TestListPaginatesAfterStatusFilter(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)
	createBatch(t, svc, "BATCH-1", nil)
	createBatch(t, svc, "BATCH-2", nil)
	createBatch(t, svc, "BATCH-3", datePtr(testNow.AddDate(0, 0, -1)))
	createBatch(t, svc, "BATCH-4", nil)
	createBatch(t, svc, "BATCH-5", nil)
	ctx := context.Background()

	records, pagination, err := svc.List(ctx, Filter{
		TenantID: testTenant,
		Status:   StatusAvailable,
		Page:     2,
		Limit:    2,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, shared.Pagination{Page: 2, PerPage: 2, Total: 4, TotalPages: 2}, pagination)
	require.Equal(t, "BATCH-4", records[0].BatchNumber)
	require.Equal(t, "BATCH-5", records[1].BatchNumber)

	records, pagination, err = svc.List(ctx, Filter{TenantID: testTenant, Page: 9, Limit: 2})
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, 5, pagination.Total)
}

func TestExpiringWindow(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)
	createBatch(t, svc, "BATCH-SOON", datePtr(testNow.AddDate(0, 0, 5)))
	createBatch(t, svc, "BATCH-LATER", datePtr(testNow.AddDate(0, 0, 60)))
	createBatch(t, svc, "BATCH-NONE", nil)

	records, err := svc.Expiring(context.Background(), testTenant, 30)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "BATCH-SOON", records[0].BatchNumber)

	_, err = svc.Expiring(context.Background(), testTenant, 0)
	require.Error(t, err)
}

func TestSweepPersistsExpiredStatus(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)
	createBatch(t, svc, "BATCH-OLD", datePtr(testNow.AddDate(0, 0, -1)))
	createBatch(t, svc, "BATCH-OK", datePtr(testNow.AddDate(0, 0, 10)))

	count, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	stored, err := repo.Find(context.Background(), testTenant, "BATCH-OLD", "WIDGET-1", "WH-A")
	require.NoError(t, err)
	require.Equal(t, StatusExpired, stored.Status)

	count, err = svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}
