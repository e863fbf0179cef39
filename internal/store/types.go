package store

import (
	"encoding/json"
	"time"

	"medgas-backend/internal/model"
)

// SiteInput creates a site.
type SiteInput struct {
	Name      string   `json:"name" binding:"required"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// SitePatch updates only the supplied site fields.
type SitePatch struct {
	Name      *string  `json:"name"`
	Address   *string  `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// BuildingInput creates a building; as a patch, nil coordinates are left unchanged.
type BuildingInput struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// FloorInput creates a floor. A nil FloorNumber is parsed from Name.
type FloorInput struct {
	Name        string `json:"name" binding:"required"`
	FloorNumber *int   `json:"floorNumber"`
}

// FloorPatch updates only the supplied floor fields.
type FloorPatch struct {
	Name        *string `json:"name"`
	FloorNumber *int    `json:"floorNumber"`
}

// SiteHierarchy is a site with its whole building, floor and zone tree.
type SiteHierarchy struct {
	model.Site
	Buildings []BuildingTree `json:"buildings"`
}

type BuildingTree struct {
	model.Building
	Floors []FloorTree `json:"floors"`
}

type FloorTree struct {
	model.Floor
	Zones []model.Zone `json:"zones"`
}

// SourceInput creates a source; SiteID scopes it to one site of the organization.
type SourceInput struct {
	SiteID       *string       `json:"siteId"`
	Name         string        `json:"name" binding:"required"`
	GasType      model.GasType `json:"gasType" binding:"required"`
	SourceType   string        `json:"sourceType" binding:"required"`
	Manufacturer *string       `json:"manufacturer"`
	Model        *string       `json:"model"`
	Capacity     *float64      `json:"capacity"`
	Notes        *string       `json:"notes"`
}

type SourcePatch struct {
	Name         *string        `json:"name"`
	GasType      *model.GasType `json:"gasType"`
	SourceType   *string        `json:"sourceType"`
	Manufacturer *string        `json:"manufacturer"`
	Model        *string        `json:"model"`
	Capacity     *float64       `json:"capacity"`
	Notes        *string        `json:"notes"`
}

type ValveInput struct {
	SiteID    *string          `json:"siteId"`
	Name      string           `json:"name" binding:"required"`
	GasType   model.GasType    `json:"gasType" binding:"required"`
	ValveType string           `json:"valveType" binding:"required"`
	State     model.ValveState `json:"state"`
	Notes     *string          `json:"notes"`
}

type ValvePatch struct {
	Name      *string           `json:"name"`
	GasType   *model.GasType    `json:"gasType"`
	ValveType *string           `json:"valveType"`
	State     *model.ValveState `json:"state"`
	Notes     *string           `json:"notes"`
}

type FittingInput struct {
	SiteID      *string       `json:"siteId"`
	Name        string        `json:"name" binding:"required"`
	GasType     model.GasType `json:"gasType" binding:"required"`
	FittingType string        `json:"fittingType" binding:"required"`
	Notes       *string       `json:"notes"`
}

type FittingPatch struct {
	Name        *string        `json:"name"`
	GasType     *model.GasType `json:"gasType"`
	FittingType *string        `json:"fittingType"`
	Notes       *string        `json:"notes"`
}

// NodeInput wraps an element in a node of a site.
type NodeInput struct {
	NodeType    model.NodeType `json:"nodeType" binding:"required"`
	ElementID   string         `json:"elementId" binding:"required"`
	Location    model.Location `json:"location"`
	ZPosition   *float64       `json:"zPosition"`
	OutletCount *int           `json:"outletCount"`
}

// NodePatch moves a node in the hierarchy. A non-nil Location replaces the whole
// chain; an empty one makes the node site level. Positions are never touched.
type NodePatch struct {
	Location    *model.Location `json:"location"`
	ZPosition   *float64        `json:"zPosition"`
	OutletCount *int            `json:"outletCount"`
}

// NodeFilter narrows ListNodesBySite. Location filters also match unanchored nodes.
type NodeFilter struct {
	BuildingID *string
	FloorID    *string
	NodeType   *model.NodeType
}

// ElementSummary is the part of a wrapped element shown next to its node.
type ElementSummary struct {
	Name    string        `json:"name"`
	GasType model.GasType `json:"gasType"`
}

// NodeDetail is a node with its resolved element.
type NodeDetail struct {
	model.Node
	Element ElementSummary `json:"element"`
}

type ConnectionInput struct {
	FromNodeID string        `json:"fromNodeId" binding:"required"`
	ToNodeID   string        `json:"toNodeId" binding:"required"`
	GasType    model.GasType `json:"gasType" binding:"required"`
	DiameterMm *float64      `json:"diameterMm"`
}

type ConnectionPatch struct {
	GasType    *model.GasType `json:"gasType"`
	DiameterMm *float64       `json:"diameterMm"`
}

// PositionInput places a node on a layout. X and Y are required; a nil Rotation
// keeps the stored value.
type PositionInput struct {
	X        *float64 `json:"x" binding:"required"`
	Y        *float64 `json:"y" binding:"required"`
	Rotation *float64 `json:"rotation"`
}

// ImportStatus is the outcome of one bulk import item.
type ImportStatus string

const (
	ImportImported ImportStatus = "imported"
	ImportSkipped  ImportStatus = "skipped"
)

// Skip reasons reported by BulkImport.
const (
	ReasonAlreadyPlaced = "already_placed"
	ReasonNotFound      = "not_found"
	ReasonSiteMismatch  = "site_mismatch"
	ReasonFailed        = "failed"
)

type ImportItem struct {
	NodeID string       `json:"nodeId"`
	Status ImportStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
	X      *float64     `json:"x,omitempty"`
	Y      *float64     `json:"y,omitempty"`
}

// ImportResult reports every item of a bulk import in input order.
type ImportResult struct {
	LayoutID string       `json:"layoutId"`
	Imported int          `json:"imported"`
	Skipped  int          `json:"skipped"`
	Items    []ImportItem `json:"items"`
}

type LayoutInput struct {
	Name       string           `json:"name" binding:"required"`
	LayoutType model.LayoutType `json:"layoutType" binding:"required"`
	FloorID    *string          `json:"floorId"`
}

// Point and Size are the presentation shape of annotation geometry.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AnnotationInput creates an annotation, or updates one when ID is set.
type AnnotationInput struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Subtitle    *string         `json:"subtitle"`
	Position    Point           `json:"position"`
	Size        *Size           `json:"size"`
	Color       *string         `json:"color"`
	Style       json.RawMessage `json:"style"`
	Interactive bool            `json:"interactive"`
	Metadata    json.RawMessage `json:"metadata"`
}

// Annotation is the flattened view of a stored annotation row.
type Annotation struct {
	ID          string          `json:"id"`
	LayoutID    string          `json:"layoutId"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Subtitle    *string         `json:"subtitle,omitempty"`
	Position    Point           `json:"position"`
	Size        *Size           `json:"size,omitempty"`
	Color       *string         `json:"color,omitempty"`
	Style       json.RawMessage `json:"style,omitempty"`
	Interactive bool            `json:"interactive"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ItemFailure reports one rejected item of a best-effort batch.
type ItemFailure struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// AnnotationBatch is the saved set of a layout after a bulk upsert.
type AnnotationBatch struct {
	Annotations []Annotation  `json:"annotations"`
	Failures    []ItemFailure `json:"failures"`
}

// DependentCounts is what a site delete would take with it.
// Nodes counts every node of the site, since a site delete removes unanchored
// nodes too; NodesInBuildings is the subset anchored somewhere in a building.
// Total sums Buildings, Floors, Layouts and Nodes.
type DependentCounts struct {
	Buildings        int64 `json:"buildings"`
	Floors           int64 `json:"floors"`
	Layouts          int64 `json:"layouts"`
	Nodes            int64 `json:"nodes"`
	NodesInBuildings int64 `json:"nodesInBuildings"`
	Total            int64 `json:"total"`
}

// UploadInput carries one media file.
type UploadInput struct {
	ElementType model.NodeType
	ElementID   string
	FileName    string
	MimeType    string
}
