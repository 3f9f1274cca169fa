package models

import (
	"time"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestViewed    RequestStatus = "VIEWED"
	RequestCompleted RequestStatus = "COMPLETED"
	RequestDeclined  RequestStatus = "DECLINED"
	RequestExpired   RequestStatus = "EXPIRED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether a status has no outgoing transitions.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestCompleted, RequestDeclined, RequestExpired, RequestCancelled:
		return true
	}
	return false
}

// SignatureRequest owns the signing lifecycle for one (document, signer) pair.
// Status moves PENDING -> VIEWED -> COMPLETED|DECLINED|EXPIRED, with CANCELLED
// reachable from PENDING or VIEWED.
type SignatureRequest struct {
	ID               string        `gorm:"primaryKey"`
	DocumentID       string        `gorm:"index;not null"`
	DocumentType     DocumentType  `gorm:"not null"`
	RequestedBy      string        `gorm:"not null"`
	RequestedFrom    string        `gorm:"index;not null"`
	RequestedAt      time.Time     `gorm:"not null"`
	ExpiresAt        *time.Time
	Status           RequestStatus `gorm:"not null;default:'PENDING';index"`
	CompletedAt      *time.Time
	SignatureID      string
	Message          string
	RemindersSent    int           `gorm:"not null;default:0"`
	LastReminderSent *time.Time
}

// DigitalSignature is created once per completed request. IsValid is
// orthogonal to the owning request's terminal status and can be revoked
// out-of-band.
type DigitalSignature struct {
	ID                 string       `gorm:"primaryKey"`
	SignatureImageRef  string       `gorm:"not null"`
	SignedBy           string       `gorm:"index;not null"`
	SignedAt           time.Time    `gorm:"not null"`
	IPAddress          string
	DeviceInfo         string
	GeoLocation        string
	DocumentID         string       `gorm:"index;not null"`
	DocumentType       DocumentType `gorm:"not null"`
	IsValid            bool         `gorm:"not null;default:true"`
	InvalidatedAt      *time.Time
	InvalidationReason string
}
