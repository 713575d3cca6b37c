package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aura-device-cloud/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory User Repo ---

type inMemoryUserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *inMemoryUserRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email already exists")
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *inMemoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (r *inMemoryUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *inMemoryUserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	// The serializing transactor holds the global lock, so this read is
	// already exclusive — matching what FOR UPDATE provides in Postgres.
	return r.GetByID(ctx, id)
}

// --- In-Memory Device Repo ---

type inMemoryDeviceRepo struct {
	mu      sync.RWMutex
	devices map[string]*domain.Device // keyed by device UUID
}

func newInMemoryDeviceRepo() *inMemoryDeviceRepo {
	return &inMemoryDeviceRepo{devices: make(map[string]*domain.Device)}
}

func (r *inMemoryDeviceRepo) Upsert(ctx context.Context, d *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.devices[d.DeviceUUID]; ok {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	}
	r.devices[d.DeviceUUID] = d
	return nil
}

func (r *inMemoryDeviceRepo) GetByUUID(ctx context.Context, deviceUUID string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceUUID]
	if !ok {
		return nil, nil
	}
	return d, nil
}

// --- In-Memory Machine Repo ---

type inMemoryMachineRepo struct {
	mu       sync.RWMutex
	machines map[uuid.UUID]*domain.Machine
}

func newInMemoryMachineRepo() *inMemoryMachineRepo {
	return &inMemoryMachineRepo{machines: make(map[uuid.UUID]*domain.Machine)}
}

func (r *inMemoryMachineRepo) Create(ctx context.Context, m *domain.Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines[m.ID] = m
	return nil
}

func (r *inMemoryMachineRepo) GetBySerial(ctx context.Context, serial string) (*domain.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.machines {
		if m.SerialNumber == serial {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryMachineRepo) GetBySerialForUpdate(ctx context.Context, tx pgx.Tx, serial string) (*domain.Machine, error) {
	return r.GetBySerial(ctx, serial)
}

func (r *inMemoryMachineRepo) CountBoundToUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, m := range r.machines {
		if m.UserID != nil && *m.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *inMemoryMachineRepo) ListBoundToUser(ctx context.Context, userID uuid.UUID) ([]domain.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Machine
	for _, m := range r.machines {
		if m.UserID != nil && *m.UserID == userID {
			result = append(result, *m)
		}
	}
	return result, nil
}

func (r *inMemoryMachineRepo) Bind(ctx context.Context, tx pgx.Tx, machineID, userID, deviceID uuid.UUID, boundAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[machineID]
	if !ok {
		return fmt.Errorf("machine not found")
	}
	if m.UserID != nil {
		return fmt.Errorf("machine already bound")
	}
	m.UserID = &userID
	m.DeviceID = &deviceID
	m.BoundAt = &boundAt
	return nil
}

func (r *inMemoryMachineRepo) Unbind(ctx context.Context, tx pgx.Tx, machineID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[machineID]
	if !ok {
		return fmt.Errorf("machine not found")
	}
	m.UserID = nil
	m.DeviceID = nil
	m.BoundAt = nil
	return nil
}

// --- In-Memory Subscription Repo ---

type inMemorySubscriptionRepo struct {
	mu    sync.RWMutex
	plans map[uuid.UUID]*domain.Plan
	subs  map[uuid.UUID]*domain.UserSubscription
}

func newInMemorySubscriptionRepo() *inMemorySubscriptionRepo {
	return &inMemorySubscriptionRepo{
		plans: make(map[uuid.UUID]*domain.Plan),
		subs:  make(map[uuid.UUID]*domain.UserSubscription),
	}
}

func (r *inMemorySubscriptionRepo) addPlan(p *domain.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = p
}

func (r *inMemorySubscriptionRepo) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Plan
	for _, p := range r.plans {
		result = append(result, *p)
	}
	return result, nil
}

func (r *inMemorySubscriptionRepo) GetPlanByCode(ctx context.Context, code string) (*domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plans {
		if p.Code == code {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemorySubscriptionRepo) GetPlanByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (r *inMemorySubscriptionRepo) Create(ctx context.Context, tx pgx.Tx, s *domain.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.ID] = s
	return nil
}

func (r *inMemorySubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *inMemorySubscriptionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.UserSubscription, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemorySubscriptionRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.UserSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.UserSubscription
	for _, s := range r.subs {
		if s.UserID == userID {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (r *inMemorySubscriptionRepo) ActiveForUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID, at time.Time) ([]domain.UserSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.UserSubscription
	for _, s := range r.subs {
		if s.UserID == userID && s.IsActiveAt(at) {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (r *inMemorySubscriptionRepo) Activate(ctx context.Context, tx pgx.Tx, id uuid.UUID, startsAt, endsAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("subscription not found")
	}
	s.Status = domain.SubscriptionStatusActive
	s.StartsAt = &startsAt
	s.EndsAt = &endsAt
	return nil
}

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (r *inMemoryPaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
	return nil
}

func (r *inMemoryPaymentRepo) GetByReference(ctx context.Context, referenceNo string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.ReferenceNo == referenceNo {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, referenceNo string) (*domain.Payment, error) {
	return r.GetByReference(ctx, referenceNo)
}

func (r *inMemoryPaymentRepo) MarkProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, transactionID string, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("payment not found")
	}
	if p.Status != domain.PaymentStatusPending {
		return fmt.Errorf("payment already processed")
	}
	p.Status = status
	p.TransactionID = &transactionID
	p.ProcessedAt = &processedAt
	return nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.RWMutex
	entries []*domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// --- Serializing Transactor ---

// serializingTransactor approximates the row-level locking behaviour the
// Postgres adapter gets from SELECT ... FOR UPDATE: a transaction holds a
// global lock from Begin until Commit or Rollback, so transactional
// sections never interleave. Coarser than per-row locks, but preserves
// the property the quota check depends on.
type serializingTransactor struct {
	mu sync.Mutex
}

func newSerializingTransactor() *serializingTransactor {
	return &serializingTransactor{}
}

func (t *serializingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &lockTx{mu: &t.mu}, nil
}

// lockTx releases the transactor lock exactly once, on whichever of
// Commit or Rollback runs first (services defer Rollback after Commit).
type lockTx struct {
	noopTx
	mu   *sync.Mutex
	once sync.Once
}

func (t *lockTx) Commit(ctx context.Context) error {
	t.once.Do(t.mu.Unlock)
	return nil
}

func (t *lockTx) Rollback(ctx context.Context) error {
	t.once.Do(t.mu.Unlock)
	return nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
