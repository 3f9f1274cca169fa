package models

import (
	"time"
)

type DocumentType string

const (
	DocContract   DocumentType = "CONTRACT"
	DocChangeOrder DocumentType = "CHANGE_ORDER"
	DocEstimate   DocumentType = "ESTIMATE"
	DocInvoice    DocumentType = "INVOICE"
	DocOther      DocumentType = "OTHER"
)

type FieldType string

const (
	FieldSignature FieldType = "SIGNATURE"
	FieldInitial   FieldType = "INITIAL"
	FieldDate      FieldType = "DATE"
	FieldText      FieldType = "TEXT"
	FieldCheckbox  FieldType = "CHECKBOX"
)

// SignableDocument is a content reference plus a layout of fields a signer
// must complete. A document with IsTemplate=true is a cloning source and is
// never itself signed.
type SignableDocument struct {
	ID          string       `gorm:"primaryKey"`
	Title       string       `gorm:"not null"`
	Description string
	ContentRef  string       `gorm:"not null"`
	DocumentType DocumentType `gorm:"not null;default:'OTHER'"`
	CreatedBy   string       `gorm:"index;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IsTemplate  bool         `gorm:"not null;default:false;index"`

	SignatureFields []SignatureField `gorm:"foreignKey:DocumentID"`
}

// SignatureField positions a single fillable field on a document page.
// Coordinates and size are normalized page-relative values.
type SignatureField struct {
	ID         string    `gorm:"primaryKey"`
	DocumentID string    `gorm:"index;not null"`
	FieldType  FieldType `gorm:"not null"`
	PageNumber int       `gorm:"not null;default:1"`
	X          float64   `gorm:"not null"`
	Y          float64   `gorm:"not null"`
	Width      float64   `gorm:"not null"`
	Height     float64   `gorm:"not null"`
	IsRequired bool      `gorm:"not null;default:true"`
	Label      string
	AssignedTo string
}
