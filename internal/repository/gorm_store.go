package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct{ db *gorm.DB }

// NewGormStore returns the PostgreSQL-backed Store.
func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) InTx(ctx context.Context, fn func(r Repos) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newGormRepos(tx))
	})
	return mapErr("store.tx", err)
}

func (s *gormStore) Snapshot(ctx context.Context, fn func(r Repos) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newGormRepos(tx))
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	return mapErr("store.snapshot", err)
}

func (s *gormStore) Reader() Repos { return newGormRepos(s.db) }

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return mapErr("store.ping", err)
	}
	return mapErr("store.ping", sqlDB.PingContext(ctx))
}

func newGormRepos(db *gorm.DB) Repos {
	return Repos{
		Batches: &batchRepo{db: db},
		Stock:   &stockRepo{db: db},
		Pieces:  &pieceRepo{db: db},
		Ledger:  &ledgerRepo{db: db},
		Catalog: &catalogRepo{db: db},
	}
}

// forUpdate is the row lock taken by every Lock* query.
var forUpdate = clause.Locking{Strength: "UPDATE"}
