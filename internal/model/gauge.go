package model

import (
	"time"

	"gorm.io/gorm"
)

// GaugeStatus enumerates the operational states a gauge can be in.
type GaugeStatus string

const (
	StatusAvailable          GaugeStatus = "available"
	StatusCheckedOut         GaugeStatus = "checked_out"
	StatusOutOfService       GaugeStatus = "out_of_service"
	StatusCalibrationDue     GaugeStatus = "calibration_due"
	StatusPendingQC          GaugeStatus = "pending_qc"
	StatusOutForCalibration  GaugeStatus = "out_for_calibration"
	StatusPendingCertificate GaugeStatus = "pending_certificate"
	StatusPendingRelease     GaugeStatus = "pending_release"
	StatusReturned           GaugeStatus = "returned"
	StatusRetired            GaugeStatus = "retired"
)

// GaugeSuffix distinguishes the two halves of a thread gauge pair.
// Non-thread equipment carries no suffix.
type GaugeSuffix string

const (
	SuffixGo   GaugeSuffix = "GO"
	SuffixNoGo GaugeSuffix = "NOGO"
)

// OwnershipType says who a gauge belongs to.
type OwnershipType string

const (
	OwnershipCompany  OwnershipType = "company"
	OwnershipEmployee OwnershipType = "employee"
	OwnershipCustomer OwnershipType = "customer"
)

// Gauge represents a single inspection gauge. CompanionID is a weak,
// non-owning pointer to the paired gauge; it is only ever written through
// the store's link/unlink primitives so the two sides cannot drift apart.
type Gauge struct {
	ID         int64  `gorm:"primaryKey"`
	Identifier string `gorm:"uniqueIndex;size:64;not null"`

	EquipmentType string      `gorm:"size:64;not null;index"`
	Category      string      `gorm:"size:64;not null"`
	Suffix        GaugeSuffix `gorm:"size:8"`

	// Specification snapshot. Which of these participate in pair matching
	// is decided per equipment type; see the pair package.
	ThreadSize  string `gorm:"size:64"`
	ThreadClass string `gorm:"size:32"`
	ThreadForm  string `gorm:"size:32"`
	GaugeType   string `gorm:"size:32"`

	CompanionID *int64 `gorm:"index"`

	Status   GaugeStatus `gorm:"size:32;not null;default:available"`
	Sealed   bool        `gorm:"not null;default:false"`
	Location string      `gorm:"size:128"`

	OwnershipType OwnershipType `gorm:"size:16;not null;default:company"`
	CustomerID    *int64

	NextCalibrationAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}
