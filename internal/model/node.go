package model

import (
	"time"

	"gorm.io/gorm"
)

// Location anchors a node somewhere in the building/floor/zone chain.
// Each level is optional, but a deeper level always carries its parents once resolved:
// a zone implies its floor, a floor implies its building. The zero value is site level.
type Location struct {
	BuildingID *string `gorm:"index;size:36" json:"buildingId"`
	FloorID    *string `gorm:"index;size:36" json:"floorId"`
	ZoneID     *string `gorm:"index;size:36" json:"zoneId"`
}

// AtBuilding anchors to a building only.
func AtBuilding(buildingID string) Location {
	return Location{BuildingID: &buildingID}
}

// AtFloor anchors to a floor; the building is filled in on resolution.
func AtFloor(floorID string) Location {
	return Location{FloorID: &floorID}
}

// AtZone anchors to a zone; floor and building are filled in on resolution.
func AtZone(zoneID string) Location {
	return Location{ZoneID: &zoneID}
}

// Normalize turns empty identifiers into unset levels.
func (l Location) Normalize() Location {
	clean := func(p *string) *string {
		if p == nil || *p == "" {
			return nil
		}
		v := *p
		return &v
	}
	return Location{BuildingID: clean(l.BuildingID), FloorID: clean(l.FloorID), ZoneID: clean(l.ZoneID)}
}

// IsSiteLevel reports whether no level is set.
func (l Location) IsSiteLevel() bool {
	return l.BuildingID == nil && l.FloorID == nil && l.ZoneID == nil
}

// Complete reports whether every set level also has its parents set.
func (l Location) Complete() bool {
	if l.ZoneID != nil && l.FloorID == nil {
		return false
	}
	if l.FloorID != nil && l.BuildingID == nil {
		return false
	}
	return true
}

// Node places one equipment element in a site's gas network.
type Node struct {
	ID          string   `gorm:"primaryKey;size:36" json:"id"`
	SiteID      string   `gorm:"index;size:36;not null" json:"siteId"`
	NodeType    NodeType `gorm:"size:16;not null;uniqueIndex:idx_nodes_element" json:"nodeType"`
	ElementID   string   `gorm:"size:36;not null;uniqueIndex:idx_nodes_element" json:"elementId"`
	Location    `gorm:"embedded"`
	ZPosition   *string   `gorm:"size:32" json:"zPosition,omitempty"`
	OutletCount *int      `json:"outletCount,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (n *Node) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}

// Connection is a pipeline segment between two nodes of the same site.
// It is not tied to a layout; any layout showing both endpoints shows it.
// Both endpoints are foreign keys; a node cannot be deleted while connected.
type Connection struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	SiteID     string    `gorm:"index;size:36;not null" json:"siteId"`
	FromNodeID string    `gorm:"index;size:36;not null" json:"fromNodeId"`
	ToNodeID   string    `gorm:"index;size:36;not null" json:"toNodeId"`
	GasType    GasType   `gorm:"size:32;not null" json:"gasType"`
	DiameterMm *string   `gorm:"size:32" json:"diameterMm,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	FromNode *Node `gorm:"foreignKey:FromNodeID;constraint:OnDelete:RESTRICT" json:"-"`
	ToNode   *Node `gorm:"foreignKey:ToNodeID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (c *Connection) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
