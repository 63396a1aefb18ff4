package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. InTx holds a store-wide lock for the
// whole unit of work, which linearizes transactions the way row locks do in
// PostgreSQL, and restores a snapshot when fn fails.
//
// Stored rows are never mutated in place: every write replaces the pointer with
// a fresh copy, so a snapshot only needs to copy the maps.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

type memState struct {
	batches      map[uuid.UUID]*model.Batch
	units        map[uuid.UUID]*model.StockUnit
	pieces       map[uuid.UUID]*model.Piece
	txs          map[uuid.UUID]*model.Transaction
	txOrder      []uuid.UUID
	events       []model.LifecycleEvent
	productTypes map[uuid.UUID]*model.ProductType
	brands       map[uuid.UUID]*model.Brand
	variants     map[uuid.UUID]*model.ProductVariant
	customers    map[uuid.UUID]*model.Customer
	seq          int64
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			batches:      map[uuid.UUID]*model.Batch{},
			units:        map[uuid.UUID]*model.StockUnit{},
			pieces:       map[uuid.UUID]*model.Piece{},
			txs:          map[uuid.UUID]*model.Transaction{},
			productTypes: map[uuid.UUID]*model.ProductType{},
			brands:       map[uuid.UUID]*model.Brand{},
			variants:     map[uuid.UUID]*model.ProductVariant{},
			customers:    map[uuid.UUID]*model.Customer{},
		},
		now: time.Now,
	}
}

func (st *memState) clone() *memState {
	return &memState{
		batches:      maps.Clone(st.batches),
		units:        maps.Clone(st.units),
		pieces:       maps.Clone(st.pieces),
		txs:          maps.Clone(st.txs),
		txOrder:      slices.Clone(st.txOrder),
		events:       slices.Clone(st.events),
		productTypes: maps.Clone(st.productTypes),
		brands:       maps.Clone(st.brands),
		variants:     maps.Clone(st.variants),
		customers:    maps.Clone(st.customers),
		seq:          st.seq,
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(r Repos) error) error {
	if err := ctx.Err(); err != nil {
		return apierror.Storage("store.tx", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(s.repos(true)); err != nil {
		s.state = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.state = snapshot
		return apierror.Storage("store.tx", err)
	}
	return nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, fn func(r Repos) error) error {
	if err := ctx.Err(); err != nil {
		return apierror.Storage("store.snapshot", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.repos(true))
}

func (s *MemoryStore) Reader() Repos { return s.repos(false) }

func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apierror.Storage("store.ping", err)
	}
	return nil
}

func (s *MemoryStore) repos(inTx bool) Repos {
	v := &memView{s: s, inTx: inTx}
	return Repos{
		Batches: (*memBatches)(v),
		Stock:   (*memStock)(v),
		Pieces:  (*memPieces)(v),
		Ledger:  (*memLedger)(v),
		Catalog: (*memCatalog)(v),
	}
}

// memView runs repository calls against the store. Inside InTx the store
// lock is already held.
type memView struct {
	s    *MemoryStore
	inTx bool
}

func (v *memView) read(ctx context.Context, op string, fn func(st *memState) error) error {
	if err := ctx.Err(); err != nil {
		return apierror.Storage(op, err)
	}
	if !v.inTx {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	return fn(v.s.state)
}

func (v *memView) write(ctx context.Context, op string, fn func(st *memState) error) error {
	if err := ctx.Err(); err != nil {
		return apierror.Storage(op, err)
	}
	if !v.inTx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.s.state)
}

// stamp returns a strictly increasing timestamp so oldest-first ordering is
// stable even when rows are created within the same clock tick.
func (v *memView) stamp(st *memState) time.Time {
	st.seq++
	return v.s.now().Add(time.Duration(st.seq))
}

func copyOf[T any](p *T) *T {
	cp := *p
	return &cp
}

func idLess(a, b uuid.UUID) bool { return a.String() < b.String() }

// ── batches ──────────────────────────────────────────────────────────────────

type memBatches memView

func (r *memBatches) view() *memView { return (*memView)(r) }

func (r *memBatches) Create(ctx context.Context, b *model.Batch) error {
	return r.view().write(ctx, "batches.create", func(st *memState) error {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if _, ok := st.batches[b.ID]; ok {
			return apierror.Conflict("batches.create", "duplicate batch id")
		}
		for _, other := range st.batches {
			if other.BatchCode == b.BatchCode {
				return apierror.Conflict("batches.create", "batch code already exists").With("batch_code", b.BatchCode)
			}
		}
		now := r.view().stamp(st)
		b.CreatedAt, b.UpdatedAt = now, now
		st.batches[b.ID] = copyOf(b)
		return nil
	})
}

func (r *memBatches) FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	var out *model.Batch
	err := r.view().read(ctx, "batches.find", func(st *memState) error {
		b, ok := st.batches[id]
		if !ok || !b.Live() {
			return apierror.NotFound("batches.find", "record not found")
		}
		out = copyOf(b)
		return nil
	})
	return out, err
}

func (r *memBatches) FindByCode(ctx context.Context, code string) (*model.Batch, error) {
	var out *model.Batch
	err := r.view().read(ctx, "batches.find_by_code", func(st *memState) error {
		for _, b := range st.batches {
			if b.BatchCode == code {
				out = copyOf(b)
				return nil
			}
		}
		return apierror.NotFound("batches.find_by_code", "record not found")
	})
	return out, err
}

func (r *memBatches) AdjustCurrent(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	return r.view().write(ctx, "batches.adjust", func(st *memState) error {
		b, ok := st.batches[id]
		if !ok || !b.Live() {
			return apierror.NotFound("batches.adjust", "record not found")
		}
		next := b.CurrentQuantity.Add(delta)
		if next.IsNegative() || next.GreaterThan(b.InitialQuantity) {
			return apierror.Validation("batches.adjust", "batch quantity would leave [0, initial]").
				With("batch_id", id).With("delta", delta.String())
		}
		cp := copyOf(b)
		cp.CurrentQuantity = next
		cp.UpdatedAt = r.view().stamp(st)
		st.batches[id] = cp
		return nil
	})
}

func (r *memBatches) ListAll(ctx context.Context) ([]model.Batch, error) {
	var out []model.Batch
	err := r.view().read(ctx, "batches.list", func(st *memState) error {
		for _, b := range st.batches {
			out = append(out, *b)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

// ── stock units ──────────────────────────────────────────────────────────────

type memStock memView

func (r *memStock) view() *memView { return (*memView)(r) }

func (r *memStock) Create(ctx context.Context, u *model.StockUnit) error {
	return r.view().write(ctx, "stock.create", func(st *memState) error {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		if u.Quantity < 0 {
			return apierror.Validation("stock.create", "quantity must be >= 0")
		}
		if u.Category.Splittable() && u.Live() {
			for _, other := range st.units {
				if other.BatchID == u.BatchID && other.Category == u.Category && other.Live() {
					return apierror.Conflict("stock.create", "batch already has a live unit of this category").
						With("batch_id", u.BatchID).With("category", u.Category)
				}
			}
		}
		if u.Version == 0 {
			u.Version = 1
		}
		if u.Status == "" {
			u.Status = model.StockInStock
		}
		now := r.view().stamp(st)
		u.CreatedAt, u.UpdatedAt = now, now
		cp := copyOf(u)
		cp.Batch = nil
		st.units[u.ID] = cp
		return nil
	})
}

func (r *memStock) FindByID(ctx context.Context, id uuid.UUID) (*model.StockUnit, error) {
	var out *model.StockUnit
	err := r.view().read(ctx, "stock.find", func(st *memState) error {
		u, ok := st.units[id]
		if !ok {
			return apierror.NotFound("stock.find", "record not found")
		}
		out = copyOf(u)
		return nil
	})
	return out, err
}

func (r *memStock) LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.StockUnit, error) {
	out := make(map[uuid.UUID]*model.StockUnit, len(ids))
	err := r.view().read(ctx, "stock.lock", func(st *memState) error {
		for _, id := range ids {
			if u, ok := st.units[id]; ok {
				out[id] = copyOf(u)
			}
		}
		return nil
	})
	return out, err
}

func (r *memStock) LockSplittable(ctx context.Context, batchID uuid.UUID, category model.StockCategory) (*model.StockUnit, error) {
	var out *model.StockUnit
	err := r.view().read(ctx, "stock.lock_splittable", func(st *memState) error {
		for _, u := range st.units {
			if u.BatchID != batchID || u.Category != category || !u.Live() {
				continue
			}
			if out == nil || u.CreatedAt.Before(out.CreatedAt) {
				out = copyOf(u)
			}
		}
		return nil
	})
	return out, err
}

func (r *memStock) Update(ctx context.Context, u *model.StockUnit) error {
	return r.view().write(ctx, "stock.update", func(st *memState) error {
		stored, ok := st.units[u.ID]
		if !ok {
			return apierror.NotFound("stock.update", "record not found")
		}
		if stored.Version != u.Version {
			return apierror.Conflict("stock.update", "stock unit changed concurrently").
				With("stock_id", u.ID).With("version", u.Version)
		}
		if u.Quantity < 0 {
			return apierror.Validation("stock.update", "quantity must be >= 0").With("stock_id", u.ID)
		}
		cp := copyOf(stored)
		cp.Quantity = u.Quantity
		cp.Status = u.Status
		cp.DeletedAt = u.DeletedAt
		cp.Version = u.Version + 1
		cp.UpdatedAt = r.view().stamp(st)
		st.units[u.ID] = cp
		u.Version++
		return nil
	})
}

func (r *memStock) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]model.StockUnit, error) {
	var out []model.StockUnit
	err := r.view().read(ctx, "stock.list_by_batch", func(st *memState) error {
		for _, u := range st.units {
			if u.BatchID == batchID {
				out = append(out, *u)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (r *memStock) List(ctx context.Context, filter StockFilter) ([]model.StockUnit, int64, error) {
	var out []model.StockUnit
	err := r.view().read(ctx, "stock.list", func(st *memState) error {
		for _, u := range st.units {
			batch := st.batches[u.BatchID]
			if !filter.Match(u, batch) {
				continue
			}
			cp := *u
			if batch != nil {
				cp.Batch = copyOf(batch)
			}
			out = append(out, cp)
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return idLess(out[i].ID, out[j].ID)
		})
		return nil
	})
	return window(out, filter.Pagination), int64(len(out)), err
}

// ── pieces ───────────────────────────────────────────────────────────────────

type memPieces memView

func (r *memPieces) view() *memView { return (*memView)(r) }

func (r *memPieces) CreateMany(ctx context.Context, pieces []*model.Piece) error {
	return r.view().write(ctx, "pieces.create", func(st *memState) error {
		for _, p := range pieces {
			if p.PieceCount == 0 {
				p.PieceCount = 1
			}
			if err := p.ValidateNew(); err != nil {
				return mapErr("pieces.create", err)
			}
			if p.ID == uuid.Nil {
				p.ID = uuid.New()
			}
			if _, ok := st.pieces[p.ID]; ok {
				return apierror.Conflict("pieces.create", "duplicate piece id").With("piece_id", p.ID)
			}
			if p.Version == 0 {
				p.Version = 1
			}
			now := r.view().stamp(st)
			p.CreatedAt, p.UpdatedAt = now, now
			st.pieces[p.ID] = copyOf(p)
		}
		return nil
	})
}

func (r *memPieces) FindByID(ctx context.Context, id uuid.UUID) (*model.Piece, error) {
	var out *model.Piece
	err := r.view().read(ctx, "pieces.find", func(st *memState) error {
		p, ok := st.pieces[id]
		if !ok {
			return apierror.NotFound("pieces.find", "record not found")
		}
		out = copyOf(p)
		return nil
	})
	return out, err
}

func (r *memPieces) LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Piece, error) {
	out := make(map[uuid.UUID]*model.Piece, len(ids))
	err := r.view().read(ctx, "pieces.lock", func(st *memState) error {
		for _, id := range ids {
			if p, ok := st.pieces[id]; ok {
				out[id] = copyOf(p)
			}
		}
		return nil
	})
	return out, err
}

func (r *memPieces) LockOldestInStock(ctx context.Context, stockUnitID uuid.UUID, limit int) ([]*model.Piece, error) {
	var out []*model.Piece
	err := r.view().read(ctx, "pieces.lock_oldest", func(st *memState) error {
		for _, p := range st.pieces {
			if p.StockUnitID == stockUnitID && p.Countable() {
				out = append(out, copyOf(p))
			}
		}
		sortPieces(out)
		if len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r *memPieces) LockCreatedBy(ctx context.Context, txID uuid.UUID) ([]*model.Piece, error) {
	var out []*model.Piece
	err := r.view().read(ctx, "pieces.lock_created_by", func(st *memState) error {
		for _, p := range st.pieces {
			if p.CreatedByTransactionID == txID {
				out = append(out, copyOf(p))
			}
		}
		sortPieces(out)
		return nil
	})
	return out, err
}

func (r *memPieces) Update(ctx context.Context, p *model.Piece) error {
	return r.view().write(ctx, "pieces.update", func(st *memState) error {
		stored, ok := st.pieces[p.ID]
		if !ok {
			return apierror.NotFound("pieces.update", "record not found")
		}
		if err := model.GuardCreatorTransaction(stored.CreatedByTransactionID, p.CreatedByTransactionID); err != nil {
			return apierror.Immutability("pieces.update", err.Error()).
				With("piece_id", p.ID).
				With("created_by_transaction_id", stored.CreatedByTransactionID)
		}
		if stored.Version != p.Version {
			return apierror.Conflict("pieces.update", "piece changed concurrently").With("piece_id", p.ID)
		}
		cp := copyOf(stored)
		cp.StockUnitID = p.StockUnitID
		cp.Status = p.Status
		cp.DeletedAt = p.DeletedAt
		cp.DeletedByTransactionID = p.DeletedByTransactionID
		cp.ReservedByTransactionID = p.ReservedByTransactionID
		cp.ReservedAt = p.ReservedAt
		cp.Version = p.Version + 1
		cp.UpdatedAt = r.view().stamp(st)
		st.pieces[p.ID] = cp
		p.Version++
		return nil
	})
}

func (r *memPieces) ListByStockUnit(ctx context.Context, stockUnitID uuid.UUID) ([]model.Piece, error) {
	var out []model.Piece
	err := r.view().read(ctx, "pieces.list", func(st *memState) error {
		var ptrs []*model.Piece
		for _, p := range st.pieces {
			if p.StockUnitID == stockUnitID {
				ptrs = append(ptrs, p)
			}
		}
		sortPieces(ptrs)
		for _, p := range ptrs {
			out = append(out, *p)
		}
		return nil
	})
	return out, err
}

func sortPieces(ps []*model.Piece) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return idLess(ps[i].ID, ps[j].ID)
	})
}

// SetPieceForTest overwrites a stored piece, bypassing every guard. It exists
// so validator tests can plant corrupt rows the repositories refuse to write.
func (s *MemoryStore) SetPieceForTest(p model.Piece) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.pieces[p.ID] = &p
}

// ── ledger ───────────────────────────────────────────────────────────────────

type memLedger memView

func (r *memLedger) view() *memView { return (*memView)(r) }

func (r *memLedger) Append(ctx context.Context, t *model.Transaction) error {
	return r.view().write(ctx, "ledger.append", func(st *memState) error {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		if _, ok := st.txs[t.ID]; ok {
			return apierror.Conflict("ledger.append", "duplicate transaction id")
		}
		if t.ReversesTransactionID != nil {
			for _, other := range st.txs {
				if other.ReversesTransactionID != nil && *other.ReversesTransactionID == *t.ReversesTransactionID {
					return apierror.Conflict("ledger.append", "transaction already reverted").
						With("transaction_id", *t.ReversesTransactionID)
				}
			}
		}
		t.CreatedAt = r.view().stamp(st)
		for i := range t.Items {
			if t.Items[i].ID == uuid.Nil {
				t.Items[i].ID = uuid.New()
			}
			t.Items[i].TransactionID = t.ID
		}
		cp := copyOf(t)
		cp.Items = slices.Clone(t.Items)
		st.txs[t.ID] = cp
		st.txOrder = append(st.txOrder, t.ID)
		return nil
	})
}

func (r *memLedger) AppendEvents(ctx context.Context, events []model.LifecycleEvent) error {
	return r.view().write(ctx, "ledger.append_events", func(st *memState) error {
		for _, e := range events {
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			e.CreatedAt = r.view().stamp(st)
			st.events = append(st.events, e)
		}
		return nil
	})
}

func (r *memLedger) FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var out *model.Transaction
	err := r.view().read(ctx, "ledger.find", func(st *memState) error {
		t, ok := st.txs[id]
		if !ok {
			return apierror.NotFound("ledger.find", "record not found")
		}
		out = copyTx(t)
		return nil
	})
	return out, err
}

func (r *memLedger) FindReversal(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var out *model.Transaction
	err := r.view().read(ctx, "ledger.find_reversal", func(st *memState) error {
		for _, t := range st.txs {
			if t.ReversesTransactionID != nil && *t.ReversesTransactionID == id {
				out = copyTx(t)
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *memLedger) List(ctx context.Context, filter TransactionFilter) ([]model.Transaction, int64, error) {
	var out []model.Transaction
	err := r.view().read(ctx, "ledger.list", func(st *memState) error {
		for i := len(st.txOrder) - 1; i >= 0; i-- {
			t := st.txs[st.txOrder[i]]
			if filter.Match(t) {
				out = append(out, *copyTx(t))
			}
		}
		return nil
	})
	return window(out, filter.Pagination), int64(len(out)), err
}

func (r *memLedger) PieceHistory(ctx context.Context, pieceID uuid.UUID) ([]model.LifecycleEvent, error) {
	var out []model.LifecycleEvent
	err := r.view().read(ctx, "ledger.piece_history", func(st *memState) error {
		for _, e := range st.events {
			if e.PieceID == pieceID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func copyTx(t *model.Transaction) *model.Transaction {
	cp := copyOf(t)
	cp.Items = slices.Clone(t.Items)
	return cp
}

// ── catalog ──────────────────────────────────────────────────────────────────

type memCatalog memView

func (r *memCatalog) view() *memView { return (*memView)(r) }

func (r *memCatalog) FindVariant(ctx context.Context, id uuid.UUID) (*model.ProductVariant, error) {
	var out *model.ProductVariant
	err := r.view().read(ctx, "catalog.find_variant", func(st *memState) error {
		v, ok := st.variants[id]
		if !ok {
			return apierror.NotFound("catalog.find_variant", "record not found")
		}
		out = st.hydrate(v)
		return nil
	})
	return out, err
}

func (r *memCatalog) ListVariants(ctx context.Context) ([]model.ProductVariant, error) {
	var out []model.ProductVariant
	err := r.view().read(ctx, "catalog.list_variants", func(st *memState) error {
		for _, v := range st.variants {
			if v.Active {
				out = append(out, *st.hydrate(v))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (st *memState) hydrate(v *model.ProductVariant) *model.ProductVariant {
	cp := copyOf(v)
	if pt, ok := st.productTypes[v.ProductTypeID]; ok {
		cp.ProductType = copyOf(pt)
	}
	if b, ok := st.brands[v.BrandID]; ok {
		cp.Brand = copyOf(b)
	}
	return cp
}

func (r *memCatalog) FindCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var out *model.Customer
	err := r.view().read(ctx, "catalog.find_customer", func(st *memState) error {
		c, ok := st.customers[id]
		if !ok {
			return apierror.NotFound("catalog.find_customer", "record not found")
		}
		out = copyOf(c)
		return nil
	})
	return out, err
}

func (r *memCatalog) CreateProductType(ctx context.Context, pt *model.ProductType) error {
	return r.view().write(ctx, "catalog.create_product_type", func(st *memState) error {
		if pt.ID == uuid.Nil {
			pt.ID = uuid.New()
		}
		pt.CreatedAt = r.view().stamp(st)
		st.productTypes[pt.ID] = copyOf(pt)
		return nil
	})
}

func (r *memCatalog) CreateBrand(ctx context.Context, b *model.Brand) error {
	return r.view().write(ctx, "catalog.create_brand", func(st *memState) error {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		b.CreatedAt = r.view().stamp(st)
		st.brands[b.ID] = copyOf(b)
		return nil
	})
}

func (r *memCatalog) CreateVariant(ctx context.Context, v *model.ProductVariant) error {
	return r.view().write(ctx, "catalog.create_variant", func(st *memState) error {
		if v.ID == uuid.Nil {
			v.ID = uuid.New()
		}
		if _, ok := st.productTypes[v.ProductTypeID]; !ok {
			return apierror.NotFound("catalog.create_variant", "product type not found")
		}
		now := r.view().stamp(st)
		v.CreatedAt, v.UpdatedAt = now, now
		cp := copyOf(v)
		cp.ProductType, cp.Brand = nil, nil
		st.variants[v.ID] = cp
		return nil
	})
}

func (r *memCatalog) CreateCustomer(ctx context.Context, c *model.Customer) error {
	return r.view().write(ctx, "catalog.create_customer", func(st *memState) error {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		now := r.view().stamp(st)
		c.CreatedAt, c.UpdatedAt = now, now
		st.customers[c.ID] = copyOf(c)
		return nil
	})
}
