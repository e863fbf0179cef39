package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"medgas-backend/internal/billing"
	"medgas-backend/internal/model"
	"medgas-backend/internal/parse"
)

// HierarchyStore owns organizations, sites, buildings, floors and zones.
type HierarchyStore struct {
	db      *gorm.DB
	log     *zap.Logger
	billing billing.Emitter
	policy  HierarchyDeletePolicy

	nodes     *NodeGraph
	layouts   *LayoutStore
	equipment *EquipmentRegistry
	media     *MediaStore
}

// CreateOrganization returns the team's organization, creating it on first use.
func (h *HierarchyStore) CreateOrganization(ctx context.Context, teamID, name string) (*model.Organization, error) {
	teamID, name = strings.TrimSpace(teamID), strings.TrimSpace(name)
	if teamID == "" {
		return nil, invalid(EntityOrganization, "teamId is required")
	}
	if name == "" {
		return nil, invalid(EntityOrganization, "name is required")
	}

	existing, err := h.GetOrganizationByTeam(ctx, teamID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	org := model.Organization{TeamID: teamID, Name: name}
	if err := h.db.WithContext(ctx).Create(&org).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost the first-setup race; the winner's row is the team's organization.
			return h.GetOrganizationByTeam(ctx, teamID)
		}
		return nil, classify(err, EntityOrganization, org.ID)
	}
	h.log.Info("organization created", zap.String("organization_id", org.ID), zap.String("team_id", teamID))
	return &org, nil
}

func (h *HierarchyStore) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	return first[model.Organization](h.db.WithContext(ctx), EntityOrganization, id)
}

func (h *HierarchyStore) GetOrganizationByTeam(ctx context.Context, teamID string) (*model.Organization, error) {
	var org model.Organization
	if err := h.db.WithContext(ctx).Where("team_id = ?", teamID).First(&org).Error; err != nil {
		return nil, classify(err, EntityOrganization, teamID)
	}
	return &org, nil
}

func (h *HierarchyStore) RenameOrganization(ctx context.Context, id, name string) (*model.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid(EntityOrganization, "name is required")
	}
	db := h.db.WithContext(ctx)
	if err := exists[model.Organization](db, EntityOrganization, id); err != nil {
		return nil, err
	}
	if err := db.Model(&model.Organization{}).Where("id = ?", id).Update("name", name).Error; err != nil {
		return nil, classify(err, EntityOrganization, id)
	}
	return h.GetOrganization(ctx, id)
}

// DeleteOrganization refuses while the organization still has sites.
func (h *HierarchyStore) DeleteOrganization(ctx context.Context, id string) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists[model.Organization](tx, EntityOrganization, id); err != nil {
			return err
		}
		var sites int64
		if err := tx.Model(&model.Site{}).Where("organization_id = ?", id).Count(&sites).Error; err != nil {
			return err
		}
		if sites > 0 {
			return conflict(EntityOrganization, id, "organization %s still has %d site(s)", id, sites)
		}
		for _, m := range []any{&model.Source{}, &model.Valve{}, &model.Fitting{}} {
			if err := tx.Where("organization_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&model.Organization{}).Error
	})
}

// CreateSite adds a site and notifies billing once the row is committed.
func (h *HierarchyStore) CreateSite(ctx context.Context, organizationID string, in SiteInput) (*model.Site, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid(EntitySite, "name is required")
	}
	if err := checkCoordinates(EntitySite, in.Latitude, in.Longitude); err != nil {
		return nil, err
	}

	site := model.Site{
		OrganizationID: organizationID,
		Name:           name,
		Address:        strings.TrimSpace(in.Address),
		Latitude:       parse.FormatDecimalPtr(in.Latitude),
		Longitude:      parse.FormatDecimalPtr(in.Longitude),
	}
	var org *model.Organization
	var siteCount int64
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if org, err = first[model.Organization](tx, EntityOrganization, organizationID); err != nil {
			return err
		}
		if err := tx.Create(&site).Error; err != nil {
			return classify(err, EntitySite, site.ID)
		}
		return tx.Model(&model.Site{}).Where("organization_id = ?", organizationID).Count(&siteCount).Error
	})
	if err != nil {
		return nil, err
	}

	ev := billing.SiteCreated{
		TeamID:         org.TeamID,
		OrganizationID: org.ID,
		SiteID:         site.ID,
		SiteCount:      siteCount,
		OccurredAt:     time.Now().UTC(),
	}
	if err := h.billing.SiteCreated(ctx, ev); err != nil {
		h.log.Warn("failed to emit billing event",
			zap.String("site_id", site.ID),
			zap.String("team_id", org.TeamID),
			zap.Error(err),
		)
	}
	return &site, nil
}

func (h *HierarchyStore) GetSite(ctx context.Context, id string) (*model.Site, error) {
	return first[model.Site](h.db.WithContext(ctx), EntitySite, id)
}

func (h *HierarchyStore) ListSites(ctx context.Context, organizationID string) ([]model.Site, error) {
	db := h.db.WithContext(ctx)
	if err := exists[model.Organization](db, EntityOrganization, organizationID); err != nil {
		return nil, err
	}
	var sites []model.Site
	if err := db.Where("organization_id = ?", organizationID).Order("name, id").Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

func (h *HierarchyStore) UpdateSite(ctx context.Context, id string, p SitePatch) (*model.Site, error) {
	updates := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, invalid(EntitySite, "name must not be empty")
		}
		updates["name"] = name
	}
	if p.Address != nil {
		updates["address"] = strings.TrimSpace(*p.Address)
	}
	if err := checkCoordinates(EntitySite, p.Latitude, p.Longitude); err != nil {
		return nil, err
	}
	if p.Latitude != nil {
		updates["latitude"] = parse.FormatDecimalPtr(p.Latitude)
	}
	if p.Longitude != nil {
		updates["longitude"] = parse.FormatDecimalPtr(p.Longitude)
	}
	return updateRow[model.Site](h.db.WithContext(ctx), EntitySite, id, updates)
}

// DeleteSite removes a site. Unless force is set, a site with any dependents is a conflict.
// With force, everything under the site goes in one transaction.
func (h *HierarchyStore) DeleteSite(ctx context.Context, id string, force bool) error {
	var keys []string
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists[model.Site](tx, EntitySite, id); err != nil {
			return err
		}
		counts, err := countDependentsTx(tx, id)
		if err != nil {
			return err
		}
		if counts.Total > 0 && !force {
			return conflict(EntitySite, id, "site %s has %d dependent record(s)", id, counts.Total)
		}

		if err := h.nodes.deleteForSiteTx(tx, id); err != nil {
			return err
		}
		if err := h.layouts.deleteForSiteTx(tx, id); err != nil {
			return err
		}
		if keys, err = h.media.deleteForSiteTx(tx, id); err != nil {
			return err
		}
		if err := h.equipment.deleteForSiteTx(tx, id); err != nil {
			return err
		}

		buildings := tx.Model(&model.Building{}).Select("id").Where("site_id = ?", id)
		floors := tx.Model(&model.Floor{}).Select("id").Where("building_id IN (?)", buildings)
		if err := tx.Where("floor_id IN (?)", floors).Delete(&model.Zone{}).Error; err != nil {
			return err
		}
		if err := tx.Where("building_id IN (?)", buildings).Delete(&model.Floor{}).Error; err != nil {
			return err
		}
		if err := tx.Where("site_id = ?", id).Delete(&model.Building{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&model.Site{}).Error; err != nil {
			return err
		}
		h.log.Info("site deleted",
			zap.String("site_id", id),
			zap.Bool("force", force),
			zap.Int64("dependents", counts.Total),
		)
		return nil
	})
	if err != nil {
		return err
	}
	h.media.queue(keys)
	return nil
}

// GetSiteWithHierarchy loads the building, floor and zone tree of a site.
func (h *HierarchyStore) GetSiteWithHierarchy(ctx context.Context, id string) (*SiteHierarchy, error) {
	db := h.db.WithContext(ctx)
	site, err := first[model.Site](db, EntitySite, id)
	if err != nil {
		return nil, err
	}

	var buildings []model.Building
	if err := db.Where("site_id = ?", id).Order("name, id").Find(&buildings).Error; err != nil {
		return nil, err
	}
	buildingIDs := make([]string, len(buildings))
	for i, b := range buildings {
		buildingIDs[i] = b.ID
	}

	var floors []model.Floor
	if len(buildingIDs) > 0 {
		if err := db.Where("building_id IN ?", buildingIDs).Order("floor_number, name, id").Find(&floors).Error; err != nil {
			return nil, err
		}
	}
	floorIDs := make([]string, len(floors))
	for i, f := range floors {
		floorIDs[i] = f.ID
	}

	var zones []model.Zone
	if len(floorIDs) > 0 {
		if err := db.Where("floor_id IN ?", floorIDs).Order("name, id").Find(&zones).Error; err != nil {
			return nil, err
		}
	}

	zonesByFloor := make(map[string][]model.Zone)
	for _, z := range zones {
		zonesByFloor[z.FloorID] = append(zonesByFloor[z.FloorID], z)
	}
	floorsByBuilding := make(map[string][]FloorTree)
	for _, f := range floors {
		zs := zonesByFloor[f.ID]
		if zs == nil {
			zs = []model.Zone{}
		}
		floorsByBuilding[f.BuildingID] = append(floorsByBuilding[f.BuildingID], FloorTree{Floor: f, Zones: zs})
	}

	out := &SiteHierarchy{Site: *site, Buildings: make([]BuildingTree, 0, len(buildings))}
	for _, b := range buildings {
		fs := floorsByBuilding[b.ID]
		if fs == nil {
			fs = []FloorTree{}
		}
		out.Buildings = append(out.Buildings, BuildingTree{Building: b, Floors: fs})
	}
	return out, nil
}

func (h *HierarchyStore) CreateBuilding(ctx context.Context, siteID string, in BuildingInput) (*model.Building, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid(EntityBuilding, "name is required")
	}
	if err := checkCoordinates(EntityBuilding, in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	db := h.db.WithContext(ctx)
	if err := exists[model.Site](db, EntitySite, siteID); err != nil {
		return nil, err
	}
	b := model.Building{
		SiteID:    siteID,
		Name:      name,
		Latitude:  parse.FormatDecimalPtr(in.Latitude),
		Longitude: parse.FormatDecimalPtr(in.Longitude),
	}
	if err := db.Create(&b).Error; err != nil {
		return nil, classify(err, EntityBuilding, b.ID)
	}
	return &b, nil
}

func (h *HierarchyStore) GetBuilding(ctx context.Context, id string) (*model.Building, error) {
	return first[model.Building](h.db.WithContext(ctx), EntityBuilding, id)
}

func (h *HierarchyStore) ListBuildings(ctx context.Context, siteID string) ([]model.Building, error) {
	db := h.db.WithContext(ctx)
	if err := exists[model.Site](db, EntitySite, siteID); err != nil {
		return nil, err
	}
	var out []model.Building
	if err := db.Where("site_id = ?", siteID).Order("name, id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateBuilding changes the name when set and any supplied coordinate.
func (h *HierarchyStore) UpdateBuilding(ctx context.Context, id string, p BuildingInput) (*model.Building, error) {
	updates := map[string]any{}
	if name := strings.TrimSpace(p.Name); name != "" {
		updates["name"] = name
	}
	if err := checkCoordinates(EntityBuilding, p.Latitude, p.Longitude); err != nil {
		return nil, err
	}
	if p.Latitude != nil {
		updates["latitude"] = parse.FormatDecimalPtr(p.Latitude)
	}
	if p.Longitude != nil {
		updates["longitude"] = parse.FormatDecimalPtr(p.Longitude)
	}
	return updateRow[model.Building](h.db.WithContext(ctx), EntityBuilding, id, updates)
}

// DeleteBuilding removes a building with its floors and zones.
func (h *HierarchyStore) DeleteBuilding(ctx context.Context, id string) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists[model.Building](tx, EntityBuilding, id); err != nil {
			return err
		}
		var floorIDs []string
		if err := tx.Model(&model.Floor{}).Where("building_id = ?", id).Pluck("id", &floorIDs).Error; err != nil {
			return err
		}
		if err := h.releaseAnchors(tx, EntityBuilding, id, "building_id", floorIDs); err != nil {
			return err
		}
		if len(floorIDs) > 0 {
			if err := tx.Where("floor_id IN ?", floorIDs).Delete(&model.Zone{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("building_id = ?", id).Delete(&model.Floor{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Building{}).Error
	})
}

// CreateFloor adds a floor. Without an explicit number, it is parsed from labels like "2F" or "B1".
func (h *HierarchyStore) CreateFloor(ctx context.Context, buildingID string, in FloorInput) (*model.Floor, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid(EntityFloor, "name is required")
	}
	number := 0
	if in.FloorNumber != nil {
		number = *in.FloorNumber
	} else {
		n, err := parse.FloorNumber(name)
		if err != nil {
			return nil, invalid(EntityFloor, "floorNumber is required when the name is not a floor label: %v", err)
		}
		number = n
	}
	db := h.db.WithContext(ctx)
	if err := exists[model.Building](db, EntityBuilding, buildingID); err != nil {
		return nil, err
	}
	f := model.Floor{BuildingID: buildingID, FloorNumber: number, Name: name}
	if err := db.Create(&f).Error; err != nil {
		return nil, classify(err, EntityFloor, f.ID)
	}
	return &f, nil
}

func (h *HierarchyStore) GetFloor(ctx context.Context, id string) (*model.Floor, error) {
	return first[model.Floor](h.db.WithContext(ctx), EntityFloor, id)
}

func (h *HierarchyStore) ListFloors(ctx context.Context, buildingID string) ([]model.Floor, error) {
	db := h.db.WithContext(ctx)
	if err := exists[model.Building](db, EntityBuilding, buildingID); err != nil {
		return nil, err
	}
	var out []model.Floor
	if err := db.Where("building_id = ?", buildingID).Order("floor_number, name, id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (h *HierarchyStore) UpdateFloor(ctx context.Context, id string, p FloorPatch) (*model.Floor, error) {
	updates := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, invalid(EntityFloor, "name must not be empty")
		}
		updates["name"] = name
	}
	if p.FloorNumber != nil {
		updates["floor_number"] = *p.FloorNumber
	}
	return updateRow[model.Floor](h.db.WithContext(ctx), EntityFloor, id, updates)
}

// DeleteFloor removes a floor, its zones and, under the reassign policy, its floor layouts.
func (h *HierarchyStore) DeleteFloor(ctx context.Context, id string) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists[model.Floor](tx, EntityFloor, id); err != nil {
			return err
		}
		if err := h.releaseAnchors(tx, EntityFloor, id, "floor_id", []string{id}); err != nil {
			return err
		}
		if err := tx.Where("floor_id = ?", id).Delete(&model.Zone{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Floor{}).Error
	})
}

func (h *HierarchyStore) CreateZone(ctx context.Context, floorID, name string) (*model.Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid(EntityZone, "name is required")
	}
	db := h.db.WithContext(ctx)
	if err := exists[model.Floor](db, EntityFloor, floorID); err != nil {
		return nil, err
	}
	z := model.Zone{FloorID: floorID, Name: name}
	if err := db.Create(&z).Error; err != nil {
		return nil, classify(err, EntityZone, z.ID)
	}
	return &z, nil
}

func (h *HierarchyStore) GetZone(ctx context.Context, id string) (*model.Zone, error) {
	return first[model.Zone](h.db.WithContext(ctx), EntityZone, id)
}

func (h *HierarchyStore) ListZones(ctx context.Context, floorID string) ([]model.Zone, error) {
	db := h.db.WithContext(ctx)
	if err := exists[model.Floor](db, EntityFloor, floorID); err != nil {
		return nil, err
	}
	var out []model.Zone
	if err := db.Where("floor_id = ?", floorID).Order("name, id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (h *HierarchyStore) RenameZone(ctx context.Context, id, name string) (*model.Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid(EntityZone, "name is required")
	}
	return updateRow[model.Zone](h.db.WithContext(ctx), EntityZone, id, map[string]any{"name": name})
}

func (h *HierarchyStore) DeleteZone(ctx context.Context, id string) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists[model.Zone](tx, EntityZone, id); err != nil {
			return err
		}
		if err := h.releaseAnchors(tx, EntityZone, id, "zone_id", nil); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Zone{}).Error
	})
}

// releaseAnchors applies the hierarchy delete policy to nodes anchored at column = id
// and to layouts of the given floors.
func (h *HierarchyStore) releaseAnchors(tx *gorm.DB, entity, id, column string, floorIDs []string) error {
	if h.policy == HierarchyBlock {
		var anchored int64
		if err := tx.Model(&model.Node{}).Where(column+" = ?", id).Count(&anchored).Error; err != nil {
			return err
		}
		if anchored > 0 {
			return conflict(entity, id, "%s %s has %d anchored node(s)", entity, id, anchored)
		}
		if len(floorIDs) > 0 {
			var layouts int64
			if err := tx.Model(&model.Layout{}).Where("floor_id IN ?", floorIDs).Count(&layouts).Error; err != nil {
				return err
			}
			if layouts > 0 {
				return conflict(entity, id, "%s %s has %d floor layout(s)", entity, id, layouts)
			}
		}
		return nil
	}

	moved, err := h.nodes.clearAnchorsTx(tx, column, []string{id})
	if err != nil {
		return err
	}
	if len(floorIDs) > 0 {
		if err := h.layouts.deleteForFloorsTx(tx, floorIDs); err != nil {
			return err
		}
	}
	if moved > 0 {
		h.log.Info("nodes reassigned to parent level",
			zap.String("entity", entity),
			zap.String("id", id),
			zap.Int64("nodes", moved),
		)
	}
	return nil
}

// updateRow applies a column map to one row and returns the reloaded row.
func updateRow[T any](db *gorm.DB, entity, id string, updates map[string]any) (*T, error) {
	var out *T
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := exists[T](tx, entity, id); err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(new(T)).Where("id = ?", id).Updates(updates).Error; err != nil {
				return classify(err, entity, id)
			}
		}
		var err error
		out, err = first[T](tx, entity, id)
		return err
	})
	return out, err
}

func checkCoordinates(entity string, lat, lng *float64) error {
	if lat != nil && (!parse.Finite(*lat) || *lat < -90 || *lat > 90) {
		return invalid(entity, "latitude must be within [-90, 90]")
	}
	if lng != nil && (!parse.Finite(*lng) || *lng < -180 || *lng > 180) {
		return invalid(entity, "longitude must be within [-180, 180]")
	}
	return nil
}
