package store

import (
	"context"

	"gorm.io/gorm"

	"medgas-backend/internal/model"
)

// DependencyAuditor reports what hangs off a site. It never writes.
type DependencyAuditor struct {
	db *gorm.DB
}

// CountDependents counts the buildings, floors, layouts and nodes of a site.
// An empty site yields zeros.
func (a *DependencyAuditor) CountDependents(ctx context.Context, siteID string) (*DependentCounts, error) {
	db := a.db.WithContext(ctx)
	if err := exists[model.Site](db, EntitySite, siteID); err != nil {
		return nil, err
	}
	return countDependentsTx(db, siteID)
}

func countDependentsTx(tx *gorm.DB, siteID string) (*DependentCounts, error) {
	var c DependentCounts
	if err := tx.Model(&model.Building{}).Where("site_id = ?", siteID).Count(&c.Buildings).Error; err != nil {
		return nil, err
	}
	buildings := tx.Model(&model.Building{}).Select("id").Where("site_id = ?", siteID)
	if err := tx.Model(&model.Floor{}).Where("building_id IN (?)", buildings).Count(&c.Floors).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&model.Layout{}).Where("site_id = ?", siteID).Count(&c.Layouts).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&model.Node{}).Where("site_id = ?", siteID).Count(&c.Nodes).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&model.Node{}).Where("building_id IN (?)", buildings).Count(&c.NodesInBuildings).Error; err != nil {
		return nil, err
	}
	c.Total = c.Buildings + c.Floors + c.Layouts + c.Nodes
	return &c, nil
}
