package model

import (
	"time"

	"gorm.io/gorm"
)

// Element is implemented by the three equipment kinds a Node can wrap.
type Element interface {
	ElementID() string
	Kind() NodeType
	Owner() (organizationID string, siteID *string)
	Label() string
	Gas() GasType
}

// ValveState is the open/closed position of a valve.
type ValveState string

const (
	ValveOpen   ValveState = "open"
	ValveClosed ValveState = "closed"
)

// Valid reports whether s is open or closed.
func (s ValveState) Valid() bool {
	return s == ValveOpen || s == ValveClosed
}

// Source is a supply point: manifold, bulk tank, compressor plant, vacuum pump.
type Source struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string    `gorm:"index;size:36;not null" json:"organizationId"`
	SiteID         *string   `gorm:"index;size:36" json:"siteId,omitempty"`
	Name           string    `gorm:"size:256;not null" json:"name"`
	GasType        GasType   `gorm:"size:32;not null" json:"gasType"`
	SourceType     string    `gorm:"size:32;not null" json:"sourceType"`
	Manufacturer   *string   `gorm:"size:128" json:"manufacturer,omitempty"`
	ModelNumber    *string   `gorm:"size:128" json:"model,omitempty"`
	Capacity       *string   `gorm:"size:32" json:"capacity,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (s *Source) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

func (s *Source) ElementID() string        { return s.ID }
func (s *Source) Kind() NodeType           { return NodeSource }
func (s *Source) Owner() (string, *string) { return s.OrganizationID, s.SiteID }
func (s *Source) Label() string            { return s.Name }
func (s *Source) Gas() GasType             { return s.GasType }

// Valve isolates a section of pipeline.
type Valve struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string     `gorm:"index;size:36;not null" json:"organizationId"`
	SiteID         *string    `gorm:"index;size:36" json:"siteId,omitempty"`
	Name           string     `gorm:"size:256;not null" json:"name"`
	GasType        GasType    `gorm:"size:32;not null" json:"gasType"`
	ValveType      string     `gorm:"size:32;not null" json:"valveType"`
	State          ValveState `gorm:"size:16;not null" json:"state"`
	Notes          *string    `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (v *Valve) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	if v.State == "" {
		v.State = ValveOpen
	}
	return nil
}

func (v *Valve) ElementID() string        { return v.ID }
func (v *Valve) Kind() NodeType           { return NodeValve }
func (v *Valve) Owner() (string, *string) { return v.OrganizationID, v.SiteID }
func (v *Valve) Label() string            { return v.Name }
func (v *Valve) Gas() GasType             { return v.GasType }

// Fitting is a terminal unit, junction or alarm point on a pipeline.
type Fitting struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string    `gorm:"index;size:36;not null" json:"organizationId"`
	SiteID         *string   `gorm:"index;size:36" json:"siteId,omitempty"`
	Name           string    `gorm:"size:256;not null" json:"name"`
	GasType        GasType   `gorm:"size:32;not null" json:"gasType"`
	FittingType    string    `gorm:"size:32;not null" json:"fittingType"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (f *Fitting) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}

func (f *Fitting) ElementID() string        { return f.ID }
func (f *Fitting) Kind() NodeType           { return NodeFitting }
func (f *Fitting) Owner() (string, *string) { return f.OrganizationID, f.SiteID }
func (f *Fitting) Label() string            { return f.Name }
func (f *Fitting) Gas() GasType             { return f.GasType }

var (
	sourceTypes  = []string{"cylinder_manifold", "bulk_tank", "compressor", "vacuum_pump", "concentrator", "other"}
	valveTypes   = []string{"zone", "riser", "service", "source", "isolation"}
	fittingTypes = []string{"outlet", "inlet", "tee", "elbow", "alarm_panel", "other"}
)

// ValidSubtype reports whether sub is a known subtype for the equipment kind.
func ValidSubtype(kind NodeType, sub string) bool {
	var known []string
	switch kind {
	case NodeSource:
		known = sourceTypes
	case NodeValve:
		known = valveTypes
	case NodeFitting:
		known = fittingTypes
	}
	for _, k := range known {
		if k == sub {
			return true
		}
	}
	return false
}
