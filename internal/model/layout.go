package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Layout is a named diagram of a site, optionally scoped to a floor.
type Layout struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	SiteID     string     `gorm:"index;size:36;not null" json:"siteId"`
	FloorID    *string    `gorm:"index;size:36" json:"floorId,omitempty"`
	Name       string     `gorm:"size:256;not null" json:"name"`
	LayoutType LayoutType `gorm:"size:16;not null" json:"layoutType"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (l *Layout) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// NodePosition is a node's coordinates on one layout.
// The composite primary key (node_id, layout_id) is the storage-level guarantee
// that a node is placed at most once per layout. Both keys are foreign keys with
// RESTRICT: a position must be removed before its node or layout.
type NodePosition struct {
	NodeID    string    `gorm:"primaryKey;size:36" json:"nodeId"`
	LayoutID  string    `gorm:"primaryKey;size:36;index" json:"layoutId"`
	XPosition string    `gorm:"size:32;not null" json:"xPosition"`
	YPosition string    `gorm:"size:32;not null" json:"yPosition"`
	Rotation  string    `gorm:"size:32;not null" json:"rotation"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Node   *Node   `gorm:"foreignKey:NodeID;constraint:OnDelete:RESTRICT" json:"-"`
	Layout *Layout `gorm:"foreignKey:LayoutID;constraint:OnDelete:RESTRICT" json:"-"`
}

// Annotation is a free-floating diagram decoration. It carries no equipment semantics.
type Annotation struct {
	ID          string         `gorm:"primaryKey;size:36"`
	LayoutID    string         `gorm:"index;size:36;not null"`
	Type        string         `gorm:"size:32;not null"`
	Title       string         `gorm:"size:512;not null"`
	Subtitle    *string        `gorm:"size:512"`
	PositionX   string         `gorm:"size:32;not null"`
	PositionY   string         `gorm:"size:32;not null"`
	Width       *string        `gorm:"size:32"`
	Height      *string        `gorm:"size:32"`
	Color       *string        `gorm:"size:32"`
	Style       datatypes.JSON `gorm:"not null"`
	Interactive int            `gorm:"not null;default:0"`
	Metadata    datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a *Annotation) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// Media documents one equipment element; the bytes live in the blob store under StoragePath.
type Media struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	SiteID      string    `gorm:"index;size:36;not null" json:"siteId"`
	ElementID   string    `gorm:"index:idx_media_element;size:36;not null" json:"elementId"`
	ElementType NodeType  `gorm:"index:idx_media_element;size:16;not null" json:"elementType"`
	StoragePath string    `gorm:"size:1024;not null" json:"-"`
	FileName    string    `gorm:"size:512;not null" json:"fileName"`
	MimeType    string    `gorm:"size:128;not null" json:"mimeType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (m *Media) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
