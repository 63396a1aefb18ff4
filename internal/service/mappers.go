package service

import (
	"encoding/json"

	"tarkostock/internal/dto"
	"tarkostock/internal/model"

	"github.com/google/uuid"
)

func transactionToResponse(t *model.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:                    t.ID,
		Type:                  string(t.Type),
		BatchID:               t.BatchID,
		QuantityChange:        t.QuantityChange,
		ActorID:               t.ActorID,
		CustomerID:            t.CustomerID,
		InvoiceNumber:         t.InvoiceNumber,
		Reason:                t.Reason,
		EffectiveDate:         t.EffectiveDate,
		Notes:                 t.Notes,
		EstimatedLoss:         t.EstimatedLoss,
		ReversesTransactionID: t.ReversesTransactionID,
		CreatedAt:             t.CreatedAt,
	}
	if len(t.Snapshot) > 0 {
		resp.Snapshot = json.RawMessage(t.Snapshot)
	}
	for _, it := range t.Items {
		resp.Items = append(resp.Items, dto.TransactionItemResponse{
			ID:             it.ID,
			StockUnitID:    it.StockUnitID,
			ItemType:       string(it.ItemType),
			Quantity:       it.Quantity,
			Measure:        it.Measure,
			PieceIDs:       []uuid.UUID(it.PieceIDs),
			EstimatedValue: it.EstimatedValue,
			Notes:          it.Notes,
		})
	}
	return resp
}

func stockUnitToResponse(u *model.StockUnit) dto.StockUnitResponse {
	resp := dto.StockUnitResponse{
		ID:              u.ID,
		BatchID:         u.BatchID,
		Category:        string(u.Category),
		Quantity:        u.Quantity,
		LengthPerUnit:   u.LengthPerUnit,
		PiecesPerBundle: u.PiecesPerBundle,
		UnitOfMeasure:   u.UnitOfMeasure,
		Status:          string(u.Status),
		Version:         u.Version,
		Deleted:         !u.Live(),
	}
	if u.Batch != nil {
		resp.BatchCode = u.Batch.BatchCode
	}
	return resp
}

func batchToResponse(b *model.Batch, units []model.StockUnit) dto.BatchResponse {
	resp := dto.BatchResponse{
		ID:               b.ID,
		BatchCode:        b.BatchCode,
		ProductVariantID: b.ProductVariantID,
		InitialQuantity:  b.InitialQuantity,
		CurrentQuantity:  b.CurrentQuantity,
		ProductionDate:   b.ProductionDate,
		Notes:            b.Notes,
	}
	for i := range units {
		resp.Stock = append(resp.Stock, stockUnitToResponse(&units[i]))
	}
	return resp
}

func eventToResponse(e model.LifecycleEvent) dto.LifecycleEventResponse {
	resp := dto.LifecycleEventResponse{
		ID:            e.ID,
		PieceID:       e.PieceID,
		StockUnitID:   e.StockUnitID,
		TransactionID: e.TransactionID,
		Event:         string(e.Event),
		ToStatus:      string(e.ToStatus),
		ActorID:       e.ActorID,
		CreatedAt:     e.CreatedAt,
	}
	if e.FromStatus != nil {
		from := string(*e.FromStatus)
		resp.FromStatus = &from
	}
	return resp
}

func variantToResponse(v *model.ProductVariant) dto.VariantResponse {
	resp := dto.VariantResponse{
		ID:              v.ID,
		Parameters:      map[string]interface{}(v.Parameters),
		PiecesPerBundle: v.PiecesPerBundle,
	}
	if v.ProductType != nil {
		resp.ProductType = v.ProductType.Name
		resp.Kind = string(v.ProductType.Kind)
	}
	if v.Brand != nil {
		resp.Brand = v.Brand.Name
	}
	return resp
}
