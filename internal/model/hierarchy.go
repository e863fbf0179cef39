package model

import (
	"time"

	"gorm.io/gorm"
)

// Organization owns the sites of one team.
type Organization struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TeamID    string    `gorm:"uniqueIndex;size:64;not null" json:"teamId"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (o *Organization) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// Site is a facility campus belonging to one organization.
type Site struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string    `gorm:"index;size:36;not null" json:"organizationId"`
	Name           string    `gorm:"size:256;not null" json:"name"`
	Address        string    `gorm:"size:512" json:"address"`
	Latitude       *string   `gorm:"size:32" json:"latitude,omitempty"`
	Longitude      *string   `gorm:"size:32" json:"longitude,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (s *Site) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// Building belongs to exactly one site.
type Building struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SiteID    string    `gorm:"index;size:36;not null" json:"siteId"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	Latitude  *string   `gorm:"size:32" json:"latitude,omitempty"`
	Longitude *string   `gorm:"size:32" json:"longitude,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Building) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// Floor belongs to exactly one building. FloorNumber is not unique.
type Floor struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	BuildingID  string    `gorm:"index;size:36;not null" json:"buildingId"`
	FloorNumber int       `gorm:"not null" json:"floorNumber"`
	Name        string    `gorm:"size:256;not null" json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (f *Floor) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}

// Zone belongs to exactly one floor.
type Zone struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	FloorID   string    `gorm:"index;size:36;not null" json:"floorId"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (z *Zone) BeforeCreate(*gorm.DB) error {
	ensureID(&z.ID)
	return nil
}
