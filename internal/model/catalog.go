package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProductKind decides how a product is stocked and measured.
// Roll products are measured in meters, bundle products in pieces.
type ProductKind string

const (
	ProductKindRoll   ProductKind = "roll"
	ProductKindBundle ProductKind = "bundle"
)

// ProductType is static reference data, e.g. "HDPE Pipe" or "Sprinkler Pipe".
// RequiredParameters lists the parameter keys every variant must define (OD, PN, PE...).
type ProductType struct {
	ID                 uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name               string      `gorm:"uniqueIndex;not null"`
	Kind               ProductKind `gorm:"type:varchar(20);not null"`
	RequiredParameters datatypes.JSONSlice[string]
	CreatedAt          time.Time
}

func (ProductType) TableName() string { return "product_types" }

// Brand is static reference data.
type Brand struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// ProductVariant is one sellable configuration of a product type and brand.
// PiecesPerBundle is the configured bundle size for bundle products.
type ProductVariant struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductTypeID   uuid.UUID         `gorm:"type:uuid;not null;index"`
	BrandID         uuid.UUID         `gorm:"type:uuid;not null;index"`
	Parameters      datatypes.JSONMap `gorm:"type:jsonb"`
	PiecesPerBundle *int
	Active          bool `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	ProductType *ProductType `gorm:"foreignKey:ProductTypeID"`
	Brand       *Brand       `gorm:"foreignKey:BrandID"`
}

func (ProductVariant) TableName() string { return "product_variants" }

// MissingParameters returns the keys required by pt that v does not define.
func (v *ProductVariant) MissingParameters(pt *ProductType) []string {
	var missing []string
	for _, key := range pt.RequiredParameters {
		val, ok := v.Parameters[key]
		if !ok || val == nil || val == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Customer receives dispatches.
type Customer struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"not null;index"`
	City      *string
	Active    bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
