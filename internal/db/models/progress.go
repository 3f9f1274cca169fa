package models

import (
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryRead      DeliveryStatus = "READ"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// ProgressUpdate is a contractor-authored snapshot of project progress,
// optionally shared with the client.
type ProgressUpdate struct {
	ID                   string    `gorm:"primaryKey"`
	ProjectID            string    `gorm:"index;not null"`
	Title                string    `gorm:"not null"`
	Description          string
	CompletionPercentage int       `gorm:"not null;default:0"`
	PhotoRefs            []string  `gorm:"serializer:json"`
	IsSharedWithClient   bool      `gorm:"not null;default:false"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CreatedBy            string    `gorm:"not null"`

	Milestones []MilestoneUpdate `gorm:"foreignKey:ProgressUpdateID"`
}

type MilestoneUpdate struct {
	ID               string     `gorm:"primaryKey"`
	ProgressUpdateID string     `gorm:"index;not null"`
	MilestoneName    string     `gorm:"not null"`
	IsCompleted      bool       `gorm:"not null;default:false"`
	CompletedAt      *time.Time
	Notes            string
}

// UpdateNotification records one delivery attempt of a progress update to a
// recipient. DeliveryStatus is written asynchronously by the notifier path.
type UpdateNotification struct {
	ID               string         `gorm:"primaryKey"`
	ProgressUpdateID string         `gorm:"index;not null"`
	RecipientID      string         `gorm:"index;not null"`
	NotificationType string         `gorm:"not null"`
	SentAt           time.Time      `gorm:"not null"`
	ReadAt           *time.Time
	DeliveryStatus   DeliveryStatus `gorm:"not null;default:'PENDING'"`
}
