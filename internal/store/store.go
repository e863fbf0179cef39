// Package store owns every persisted entity of the gas network: the facility
// hierarchy, equipment, nodes and connections, layout placements, annotations
// and media. Each component writes only its own tables; cross-entity cascades go
// through the owning component's *Tx helpers inside a single transaction.
package store

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medgas-backend/internal/billing"
	"medgas-backend/internal/blob"
)

// Entity names used in errors and authorization lookups.
const (
	EntityOrganization = "organization"
	EntitySite         = "site"
	EntityBuilding     = "building"
	EntityFloor        = "floor"
	EntityZone         = "zone"
	EntitySource       = "source"
	EntityValve        = "valve"
	EntityFitting      = "fitting"
	EntityNode         = "node"
	EntityConnection   = "connection"
	EntityLayout       = "layout"
	EntityPosition     = "position"
	EntityAnnotation   = "annotation"
	EntityMedia        = "media"
)

// EquipmentDeletePolicy decides what happens to an element still wrapped by a node.
type EquipmentDeletePolicy string

const (
	EquipmentReject  EquipmentDeletePolicy = "reject"
	EquipmentCascade EquipmentDeletePolicy = "cascade"
)

// HierarchyDeletePolicy decides what happens to nodes anchored below a deleted building, floor or zone.
type HierarchyDeletePolicy string

const (
	HierarchyReassign HierarchyDeletePolicy = "reassign"
	HierarchyBlock    HierarchyDeletePolicy = "block"
)

// BlobReaper deletes blob bytes after the rows referencing them are gone.
type BlobReaper interface {
	Dispatch(key string)
}

// Options wires collaborators and deployment switches into the store.
type Options struct {
	Logger                *zap.Logger
	Blobs                 blob.Store
	Reaper                BlobReaper
	Billing               billing.Emitter
	EquipmentDeletePolicy EquipmentDeletePolicy
	HierarchyDeletePolicy HierarchyDeletePolicy
	SignedURLTTL          time.Duration
}

// Store groups the components over one database.
type Store struct {
	db  *gorm.DB
	log *zap.Logger

	Hierarchy *HierarchyStore
	Equipment *EquipmentRegistry
	Nodes     *NodeGraph
	Placement *PlacementLayer
	Layouts   *LayoutStore
	Audit     *DependencyAuditor
	Media     *MediaStore
}

// inlineReaper deletes synchronously when no background pool is wired.
type inlineReaper struct {
	blobs blob.Store
	log   *zap.Logger
}

func (r inlineReaper) Dispatch(key string) {
	if err := r.blobs.Delete(context.Background(), key); err != nil {
		r.log.Warn("failed to delete blob", zap.String("key", key), zap.Error(err))
	}
}

// New builds every component and links their cascade collaborators.
func New(db *gorm.DB, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Blobs == nil {
		opts.Blobs = blob.NewMemory()
	}
	if opts.Reaper == nil {
		opts.Reaper = inlineReaper{blobs: opts.Blobs, log: opts.Logger}
	}
	if opts.Billing == nil {
		opts.Billing = billing.Noop{}
	}
	if opts.EquipmentDeletePolicy == "" {
		opts.EquipmentDeletePolicy = EquipmentReject
	}
	if opts.HierarchyDeletePolicy == "" {
		opts.HierarchyDeletePolicy = HierarchyReassign
	}
	log := opts.Logger.Named("store")

	s := &Store{
		db:        db,
		log:       log,
		Hierarchy: &HierarchyStore{db: db, log: log, billing: opts.Billing, policy: opts.HierarchyDeletePolicy},
		Equipment: &EquipmentRegistry{db: db, log: log, policy: opts.EquipmentDeletePolicy},
		Nodes:     &NodeGraph{db: db, log: log},
		Placement: &PlacementLayer{db: db, log: log},
		Layouts:   &LayoutStore{db: db, log: log},
		Audit:     &DependencyAuditor{db: db},
		Media:     &MediaStore{db: db, log: log, blobs: opts.Blobs, reaper: opts.Reaper, ttl: opts.SignedURLTTL},
	}

	s.Hierarchy.nodes = s.Nodes
	s.Hierarchy.layouts = s.Layouts
	s.Hierarchy.equipment = s.Equipment
	s.Hierarchy.media = s.Media
	s.Equipment.nodes = s.Nodes
	s.Equipment.media = s.Media
	s.Nodes.placement = s.Placement
	s.Nodes.media = s.Media
	s.Nodes.equipment = s.Equipment
	s.Layouts.placement = s.Placement
	return s
}

// shared reads under FOR SHARE so the rows cannot be deleted before the
// transaction ends. sqlite ignores the clause and relies on foreign keys.
func shared(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "SHARE"})
}

// first loads one row by primary key.
func first[T any](tx *gorm.DB, entity, id string) (*T, error) {
	var row T
	if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, classify(err, entity, id)
	}
	return &row, nil
}

// ref loads a row whose id came from a payload; a miss is a ReferenceError.
func ref[T any](tx *gorm.DB, entity, id string) (*T, error) {
	row, err := first[T](tx, entity, id)
	if err != nil {
		return nil, asReference(err, entity, id)
	}
	return row, nil
}

func exists[T any](tx *gorm.DB, entity, id string) error {
	var n int64
	if err := tx.Model(new(T)).Where("id = ?", id).Count(&n).Error; err != nil {
		return classify(err, entity, id)
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}
