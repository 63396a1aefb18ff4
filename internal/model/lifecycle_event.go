package model

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleEventType is one per-piece transition.
type LifecycleEventType string

const (
	EventCreated    LifecycleEventType = "CREATED"
	EventDispatched LifecycleEventType = "DISPATCHED"
	EventScrapped   LifecycleEventType = "SCRAPPED"
	EventCombined   LifecycleEventType = "COMBINED"
	EventRestored   LifecycleEventType = "RESTORED"
	EventDeleted    LifecycleEventType = "DELETED"
)

// LifecycleEvent is the append-only forensic record of a piece transition.
type LifecycleEvent struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PieceID       uuid.UUID          `gorm:"type:uuid;not null;index"`
	StockUnitID   uuid.UUID          `gorm:"type:uuid;not null"`
	TransactionID uuid.UUID          `gorm:"type:uuid;not null;index"`
	Event         LifecycleEventType `gorm:"type:varchar(20);not null"`
	FromStatus    *PieceStatus       `gorm:"type:varchar(20)"`
	ToStatus      PieceStatus        `gorm:"type:varchar(20);not null"`
	ActorID       *uuid.UUID         `gorm:"type:uuid"`
	CreatedAt     time.Time          `gorm:"index"`
}

func (LifecycleEvent) TableName() string { return "lifecycle_events" }
