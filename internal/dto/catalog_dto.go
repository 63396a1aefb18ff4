package dto

import "github.com/google/uuid"

type VariantResponse struct {
	ID              uuid.UUID              `json:"id"`
	ProductType     string                 `json:"product_type"`
	Kind            string                 `json:"kind"`
	Brand           string                 `json:"brand"`
	Parameters      map[string]interface{} `json:"parameters"`
	PiecesPerBundle *int                   `json:"pieces_per_bundle,omitempty"`
}
