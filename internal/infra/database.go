package infra

import (
	"fmt"

	"tarkostock/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate for
// every ledger table, then applies the idempotent SQL patches that GORM cannot
// express (triggers, partial indexes).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates the schema. Integration tests call it
// directly against a throwaway container.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(
		&model.ProductType{},
		&model.Brand{},
		&model.ProductVariant{},
		&model.Customer{},
		&model.Batch{},
		&model.StockUnit{},
		&model.Transaction{},
		&model.TransactionItem{},
		&model.Piece{},
		&model.LifecycleEvent{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL statements. Each statement uses
// IF NOT EXISTS / OR REPLACE semantics so re-running is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// The creator transaction of a piece is write-once, whatever path writes the row.
		{"piece creator guard function", `
CREATE OR REPLACE FUNCTION pieces_creator_immutable() RETURNS trigger AS $$
BEGIN
  IF NEW.created_by_transaction_id IS DISTINCT FROM OLD.created_by_transaction_id THEN
    RAISE EXCEPTION 'piece % created_by_transaction_id is immutable', OLD.id;
  END IF;
  RETURN NEW;
END;
$$ LANGUAGE plpgsql`},
		{"piece creator guard trigger", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_pieces_creator_immutable') THEN
    CREATE TRIGGER trg_pieces_creator_immutable
      BEFORE UPDATE ON pieces
      FOR EACH ROW EXECUTE FUNCTION pieces_creator_immutable();
  END IF;
END $$`},
		// Ledger rows are append-only.
		{"ledger append-only function", `
CREATE OR REPLACE FUNCTION ledger_append_only() RETURNS trigger AS $$
BEGIN
  RAISE EXCEPTION 'ledger row % is immutable', OLD.id;
END;
$$ LANGUAGE plpgsql`},
		{"ledger append-only triggers", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_transactions_append_only') THEN
    CREATE TRIGGER trg_transactions_append_only
      BEFORE UPDATE OR DELETE ON transactions
      FOR EACH ROW EXECUTE FUNCTION ledger_append_only();
  END IF;
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_transaction_items_append_only') THEN
    CREATE TRIGGER trg_transaction_items_append_only
      BEFORE UPDATE OR DELETE ON transaction_items
      FOR EACH ROW EXECUTE FUNCTION ledger_append_only();
  END IF;
END $$`},
		{"stock quantity check", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_stock_units_quantity') THEN
    ALTER TABLE stock_units ADD CONSTRAINT chk_stock_units_quantity CHECK (quantity >= 0);
  END IF;
END $$`},
		{"batch quantity check", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_batches_current_quantity') THEN
    ALTER TABLE batches ADD CONSTRAINT chk_batches_current_quantity
      CHECK (current_quantity >= 0 AND current_quantity <= initial_quantity);
  END IF;
END $$`},
		// One live CUT_ROLL and one live SPARE unit per batch. Two operations that
		// both find none race on the insert; the loser gets 23505 and retries.
		{"unique splittable unit per batch",
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_units_splittable
			   ON stock_units (batch_id, category)
			   WHERE deleted_at IS NULL AND category IN ('CUT_ROLL', 'SPARE')`},
		// Oldest-first piece selection for dispatch and scrap.
		{"partial index for countable pieces",
			`CREATE INDEX IF NOT EXISTS idx_pieces_countable
			   ON pieces (stock_unit_id, created_at, id)
			   WHERE deleted_at IS NULL AND status = 'IN_STOCK'`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
