package serial

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-erp/stockpile/internal/shared"
)

type memoryRepo struct {
	mu         sync.Mutex
	records    []*Record
	history    []History
	nextID     int64
	failChunks bool
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	recordsSnap := make([]*Record, len(r.records))
	for i, rec := range r.records {
		cp := *rec
		recordsSnap[i] = &cp
	}
	historySnap := append([]History(nil), r.history...)
	r.mu.Unlock()

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.mu.Lock()
		r.records = recordsSnap
		r.history = historySnap
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]Record, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Record{}
	for _, rec := range r.records {
		if rec.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.BatchNumber != "" && rec.BatchNumber != filter.BatchNumber {
			continue
		}
		out = append(out, *rec)
	}
	total := len(out)
	page, limit := shared.NormalizePage(filter.Page, filter.Limit, 500)
	offset := (page - 1) * limit
	if offset >= len(out) {
		return []Record{}, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *memoryRepo) HistoryFor(ctx context.Context, tenantID uuid.UUID, serialNumber string) ([]History, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var serialID int64 = -1
	for _, rec := range r.records {
		if rec.TenantID == tenantID && rec.SerialNumber == serialNumber {
			serialID = rec.ID
			break
		}
	}
	out := []History{}
	for _, event := range r.history {
		if event.SerialID == serialID {
			out = append(out, event)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) ExistingNumbers(ctx context.Context, tenantID uuid.UUID, numbers []string) ([]string, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	wanted := map[string]bool{}
	for _, n := range numbers {
		wanted[n] = true
	}
	existing := []string{}
	for _, rec := range t.repo.records {
		if rec.TenantID == tenantID && wanted[rec.SerialNumber] {
			existing = append(existing, rec.SerialNumber)
		}
	}
	return existing, nil
}

func (t *memoryTx) InsertSerials(ctx context.Context, records []Record) ([]int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if t.repo.failChunks && len(t.repo.records) > 0 {
		return nil, context.DeadlineExceeded
	}
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		t.repo.nextID++
		rec.ID = t.repo.nextID
		t.repo.records = append(t.repo.records, &rec)
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (t *memoryTx) FindForUpdate(ctx context.Context, tenantID uuid.UUID, serialNumber string) (Record, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, rec := range t.repo.records {
		if rec.TenantID == tenantID && rec.SerialNumber == serialNumber {
			return *rec, nil
		}
	}
	return Record{}, shared.ErrNotFound
}

func (t *memoryTx) SetStatus(ctx context.Context, id int64, status Status) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, rec := range t.repo.records {
		if rec.ID == id {
			rec.Status = status
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *memoryTx) AppendHistory(ctx context.Context, events []History) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.history = append(t.repo.history, events...)
	return nil
}

var testTenant = uuid.MustParse("8d5a7f62-3c41-4f7a-9b1e-2d8f6a0c4e91")

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, ServiceConfig{})
}

func bulkInput(start, count int) BulkInput {
	return BulkInput{
		TenantID:      testTenant,
		ItemCode:      "WIDGET-1",
		WarehouseCode: "WH-A",
		Prefix:        "SN-",
		StartNumber:   start,
		Count:         count,
	}
}

func TestFormatSerialNumber(t *testing.T) {
	require.Equal(t, "SN-0001", FormatSerialNumber("SN-", 1))
	require.Equal(t, "SN-0042", FormatSerialNumber("SN-", 42))
	require.Equal(t, "SN-12345", FormatSerialNumber("SN-", 12345))
}

func TestBulkCreate(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)

	records, err := svc.BulkCreate(context.Background(), bulkInput(1, 10))
	require.NoError(t, err)
	require.Len(t, records, 10)
	require.Equal(t, "SN-0001", records[0].SerialNumber)
	require.Equal(t, "SN-0010", records[9].SerialNumber)
	for _, rec := range records {
		require.Equal(t, StatusAvailable, rec.Status)
	}

	history, err := svc.History(context.Background(), testTenant, "SN-0005")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, actionCreated, history[0].Action)
}

func TestBulkCreateRejectsCollisionsAllOrNothing(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)

	_, err := svc.BulkCreate(context.Background(), bulkInput(1, 10))
	require.NoError(t, err)

	// SN-0008..SN-0010 collide; SN-0011 and SN-0012 must not appear
	_, err = svc.BulkCreate(context.Background(), bulkInput(8, 5))
	require.ErrorIs(t, err, ErrDuplicateSerialNumber)

	records, pagination, err := svc.List(context.Background(), Filter{TenantID: testTenant})
	require.NoError(t, err)
	require.Len(t, records, 10, "the colliding request creates zero records")
	require.Equal(t, 10, pagination.Total)
}

func TestBulkCreateRollsBackPartialChunks(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil, ServiceConfig{BulkChunkSize: 3})

	repo.failChunks = false
	_, err := svc.BulkCreate(context.Background(), bulkInput(1, 2))
	require.NoError(t, err)

	repo.failChunks = true
	_, err = svc.BulkCreate(context.Background(), bulkInput(100, 9))
	require.Error(t, err)

	records, _, err := svc.List(context.Background(), Filter{TenantID: testTenant})
	require.NoError(t, err)
	require.Len(t, records, 2, "a failed bulk leaves no partial chunk behind")
}

func TestBulkCreateValidation(t *testing.T) {
	svc := newTestService(&memoryRepo{})
	ctx := context.Background()

	_, err := svc.BulkCreate(ctx, bulkInput(1, 0))
	require.Error(t, err)

	input := bulkInput(1, 10)
	input.Prefix = ""
	_, err = svc.BulkCreate(ctx, input)
	require.Error(t, err)

	input = bulkInput(1, 20000)
	_, err = svc.BulkCreate(ctx, input)
	require.Error(t, err)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)
	ctx := context.Background()

	input := Input{TenantID: testTenant, SerialNumber: "SN-X1", ItemCode: "WIDGET-1", WarehouseCode: "WH-A"}
	_, err := svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrDuplicateSerialNumber)
}

func TestStatusTransitions(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{TenantID: testTenant, SerialNumber: "SN-X1", ItemCode: "WIDGET-1", WarehouseCode: "WH-A"})
	require.NoError(t, err)

	rec, err := svc.UpdateStatus(ctx, testTenant, "SN-X1", StatusSold, "INV-100")
	require.NoError(t, err)
	require.Equal(t, StatusSold, rec.Status)

	// sold units cannot be re-reserved
	_, err = svc.UpdateStatus(ctx, testTenant, "SN-X1", StatusReserved, "")
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	rec, err = svc.UpdateStatus(ctx, testTenant, "SN-X1", StatusReturned, "RMA-7")
	require.NoError(t, err)
	rec, err = svc.UpdateStatus(ctx, testTenant, "SN-X1", StatusAvailable, "")
	require.NoError(t, err)
	require.Equal(t, StatusAvailable, rec.Status)

	history, err := svc.History(ctx, testTenant, "SN-X1")
	require.NoError(t, err)
	require.Len(t, history, 4, "creation plus three transitions")
	require.Equal(t, StatusSold, history[1].ToStatus)
	require.Equal(t, "INV-100", history[1].ReferenceNumber)
	require.Equal(t, StatusReturned, history[2].ToStatus)

	_, err = svc.UpdateStatus(ctx, testTenant, "SN-MISSING", StatusSold, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDamagedIsTerminal(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{TenantID: testTenant, SerialNumber: "SN-X1", ItemCode: "WIDGET-1", WarehouseCode: "WH-A"})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, testTenant, "SN-X1", StatusDamaged, "")
	require.NoError(t, err)

	for _, to := range []Status{StatusAvailable, StatusSold, StatusReserved, StatusReturned} {
		_, err = svc.UpdateStatus(ctx, testTenant, "SN-X1", to, "")
		require.ErrorIs(t, err, ErrInvalidStateTransition)
	}
}
