package models

// ClipEntry is one clipboard history item. Hidden entries stay on disk but
// disappear from listings, matching the old dot-file convention.
type ClipEntry struct {
	BaseModel
	Content string `json:"content" gorm:"type:text;not null"`
	Hidden  bool   `json:"-" gorm:"default:false;index"`
}
