package model

import (
	"github.com/google/uuid"
)

// GasType identifies the medical gas or vacuum service carried by equipment and pipelines.
type GasType string

const (
	GasOxygen        GasType = "oxygen"
	GasMedicalAir    GasType = "medical_air"
	GasNitrousOxide  GasType = "nitrous_oxide"
	GasCarbonDioxide GasType = "carbon_dioxide"
	GasNitrogen      GasType = "nitrogen"
	GasVacuum        GasType = "vacuum"
	GasCompressedAir GasType = "compressed_air"
)

// GasTypes lists every supported gas type in display order.
func GasTypes() []GasType {
	return []GasType{GasOxygen, GasMedicalAir, GasNitrousOxide, GasCarbonDioxide, GasNitrogen, GasVacuum, GasCompressedAir}
}

// Valid reports whether g is one of the closed set of gas types.
func (g GasType) Valid() bool {
	for _, known := range GasTypes() {
		if g == known {
			return true
		}
	}
	return false
}

// NodeType names the equipment kind a Node wraps.
type NodeType string

const (
	NodeSource  NodeType = "source"
	NodeValve   NodeType = "valve"
	NodeFitting NodeType = "fitting"
)

// Valid reports whether t is a known equipment kind.
func (t NodeType) Valid() bool {
	return t == NodeSource || t == NodeValve || t == NodeFitting
}

// LayoutType is the scope a diagram covers.
type LayoutType string

const (
	LayoutSite  LayoutType = "site"
	LayoutFloor LayoutType = "floor"
	LayoutZone  LayoutType = "zone"
)

// Valid reports whether t is a known layout scope.
func (t LayoutType) Valid() bool {
	return t == LayoutSite || t == LayoutFloor || t == LayoutZone
}

// NeedsFloor reports whether layouts of this type must reference a floor.
func (t LayoutType) NeedsFloor() bool {
	return t == LayoutFloor || t == LayoutZone
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

func ensureID(id *string) {
	if *id == "" {
		*id = NewID()
	}
}
