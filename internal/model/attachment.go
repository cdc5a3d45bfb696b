package model

import "time"

// AssetAttachment links an uploaded file to the asset that owns it. The binary
// content lives in the object store; this row only keeps the bookkeeping.
type AssetAttachment struct {
	ID        int64  `gorm:"autoIncrement;primaryKey"`
	AssetID   string `gorm:"index;size:64;not null"`
	FileName  string `gorm:"size:256;not null"`
	FilePath  string `gorm:"uniqueIndex;size:512;not null"`
	FileSize  int64
	FileType  string `gorm:"size:128"`
	CreatedAt time.Time
}
