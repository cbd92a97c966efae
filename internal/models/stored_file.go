package models

// StoredFile is upload metadata; the blob itself lives in object storage
// under ObjectKey. Width/Height are sniffed for images, SerialNumber for
// device-report CSVs. Uploading the same name again replaces the entry.
type StoredFile struct {
	BaseModel
	Name         string  `json:"name" gorm:"type:varchar(255);uniqueIndex;not null"`
	Size         int64   `json:"size" gorm:"not null"`
	ContentType  string  `json:"contentType" gorm:"type:varchar(255)"`
	ObjectKey    string  `json:"-" gorm:"type:varchar(255);not null"`
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
	SerialNumber *string `json:"serialNumber,omitempty" gorm:"type:varchar(255)"`
	Hidden       bool    `json:"-" gorm:"default:false;index"`
}
