package model

import "time"

// AssetStatus is the workflow state of a ledger entry.
type AssetStatus string

const (
	StatusUnfilled      AssetStatus = "unfilled"
	StatusPendingReview AssetStatus = "pending_review"
	StatusApproved      AssetStatus = "approved"
	StatusRejected      AssetStatus = "rejected"
)

// ValidStatus reports whether s is one of the recognized workflow states.
func ValidStatus(s AssetStatus) bool {
	switch s {
	case StatusUnfilled, StatusPendingReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Asset represents one fixed-asset ledger entry.
// Reference fields (asset number, equipment name, acquisition data, lifespan,
// factory) are immutable once imported; everything else is mutated only through
// the workflow.
type Asset struct {
	ID                string      `gorm:"primaryKey;size:64" json:"id"`
	AssetNumber       string      `gorm:"uniqueIndex;size:64;not null" json:"assetNumber"`
	EquipmentName     string      `gorm:"size:256" json:"equipmentName"`
	CatalogName       string      `gorm:"size:256" json:"catalogName"`
	Description       string      `json:"description"`
	AcquisitionDate   string      `gorm:"size:32" json:"acquisitionDate"`
	AcquisitionAmount *int64      `json:"acquisitionAmount"`
	LifespanYears     *int        `json:"lifespanYears"`
	Factory           string      `gorm:"size:128" json:"factory"`
	Building          string      `gorm:"size:128" json:"building"`
	Floor             string      `gorm:"size:64" json:"floor"`
	G                 *int        `json:"g"`
	U                 *int        `json:"u"`
	T                 *int        `json:"t"`
	Status            AssetStatus `gorm:"size:32;not null;index" json:"status"`
	Comment           string      `json:"comment"`
	InputBy           string      `gorm:"size:128" json:"inputBy"`
	AssignedTo        string      `gorm:"size:128" json:"assignedTo"`
	UpdatedAt         time.Time   `gorm:"not null;index;autoUpdateTime:false" json:"updatedAt"`
	CreatedAt         time.Time   `json:"createdAt"`

	// Attachment filenames in upload order; joined in from asset_attachments.
	Attachments []string `gorm:"-" json:"attachments"`
}

// CustomerEditable reports whether the customer may still change the
// descriptive and location fields. Rejected entries return to customer
// control, same as unfilled ones.
func (a *Asset) CustomerEditable() bool {
	return a.Status == StatusUnfilled || a.Status == StatusRejected
}

// GUTScore returns severity x urgency x spread. ok is false unless all three
// scores are set.
func (a *Asset) GUTScore() (score int, ok bool) {
	if a.G == nil || a.U == nil || a.T == nil {
		return 0, false
	}
	return *a.G * *a.U * *a.T, true
}

// RiskBand classifies a GUT score for reporting. It never gates the workflow.
type RiskBand string

const (
	RiskLow    RiskBand = "low"
	RiskMedium RiskBand = "medium"
	RiskHigh   RiskBand = "high"
)

// RiskBandFor maps a GUT score onto its band: low <=4, medium 5-6, high >=7.
func RiskBandFor(score int) RiskBand {
	switch {
	case score <= 4:
		return RiskLow
	case score <= 6:
		return RiskMedium
	default:
		return RiskHigh
	}
}
