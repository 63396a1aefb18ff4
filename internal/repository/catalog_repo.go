package repository

import (
	"context"

	"tarkostock/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type catalogRepo struct{ db *gorm.DB }

func (r *catalogRepo) FindVariant(ctx context.Context, id uuid.UUID) (*model.ProductVariant, error) {
	var v model.ProductVariant
	err := r.db.WithContext(ctx).Preload("ProductType").Preload("Brand").First(&v, "id = ?", id).Error
	if err != nil {
		return nil, mapErr("catalog.find_variant", err)
	}
	return &v, nil
}

func (r *catalogRepo) ListVariants(ctx context.Context) ([]model.ProductVariant, error) {
	var vs []model.ProductVariant
	err := r.db.WithContext(ctx).Preload("ProductType").Preload("Brand").
		Where("active = true").Order("created_at ASC, id ASC").Find(&vs).Error
	return vs, mapErr("catalog.list_variants", err)
}

func (r *catalogRepo) FindCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var c model.Customer
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, mapErr("catalog.find_customer", err)
	}
	return &c, nil
}

func (r *catalogRepo) CreateProductType(ctx context.Context, pt *model.ProductType) error {
	return mapErr("catalog.create_product_type", r.db.WithContext(ctx).Create(pt).Error)
}

func (r *catalogRepo) CreateBrand(ctx context.Context, b *model.Brand) error {
	return mapErr("catalog.create_brand", r.db.WithContext(ctx).Create(b).Error)
}

func (r *catalogRepo) CreateVariant(ctx context.Context, v *model.ProductVariant) error {
	return mapErr("catalog.create_variant", r.db.WithContext(ctx).Omit("ProductType", "Brand").Create(v).Error)
}

func (r *catalogRepo) CreateCustomer(ctx context.Context, c *model.Customer) error {
	return mapErr("catalog.create_customer", r.db.WithContext(ctx).Create(c).Error)
}
