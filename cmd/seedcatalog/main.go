// cmd/seedcatalog/main.go seeds demo product types, brands, variants and customers.
// Usage: go run ./cmd/seedcatalog
package main

import (
	"context"
	"os"
	"time"

	"tarkostock/internal/config"
	"tarkostock/internal/infra"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect error")
	}
	store := repository.NewGormStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	existing, err := store.Reader().Catalog.ListVariants(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list variants")
	}
	if len(existing) > 0 {
		log.Info().Int("variants", len(existing)).Msg("catalog already seeded, nothing to do")
		return
	}

	if err := store.InTx(ctx, func(r repository.Repos) error { return seed(ctx, r) }); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	log.Info().Msg("catalog seeded")
}

// seed inserts one roll product, one bundle product and a demo customer.
func seed(ctx context.Context, r repository.Repos) error {
	hdpe := &model.ProductType{
		ID:                 uuid.New(),
		Name:               "HDPE Pipe",
		Kind:               model.ProductKindRoll,
		RequiredParameters: datatypes.JSONSlice[string]{"OD", "PN", "PE"},
	}
	sprinkler := &model.ProductType{
		ID:                 uuid.New(),
		Name:               "Sprinkler Pipe",
		Kind:               model.ProductKindBundle,
		RequiredParameters: datatypes.JSONSlice[string]{"OD", "LENGTH"},
	}
	brand := &model.Brand{ID: uuid.New(), Name: "Tarko"}

	for _, pt := range []*model.ProductType{hdpe, sprinkler} {
		if err := r.Catalog.CreateProductType(ctx, pt); err != nil {
			return err
		}
	}
	if err := r.Catalog.CreateBrand(ctx, brand); err != nil {
		return err
	}

	perBundle := 10
	variants := []*model.ProductVariant{
		{
			ID: uuid.New(), ProductTypeID: hdpe.ID, BrandID: brand.ID, Active: true,
			Parameters: datatypes.JSONMap{"OD": "32", "PN": "6", "PE": "80"},
		},
		{
			ID: uuid.New(), ProductTypeID: hdpe.ID, BrandID: brand.ID, Active: true,
			Parameters: datatypes.JSONMap{"OD": "63", "PN": "10", "PE": "100"},
		},
		{
			ID: uuid.New(), ProductTypeID: sprinkler.ID, BrandID: brand.ID, Active: true,
			Parameters:      datatypes.JSONMap{"OD": "75", "LENGTH": "6"},
			PiecesPerBundle: &perBundle,
		},
	}
	for _, v := range variants {
		if err := r.Catalog.CreateVariant(ctx, v); err != nil {
			return err
		}
	}

	city := "Ahmedabad"
	return r.Catalog.CreateCustomer(ctx, &model.Customer{ID: uuid.New(), Name: "Demo Farms", City: &city, Active: true})
}
