package store

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"medgas-backend/internal/model"
	"medgas-backend/internal/parse"
)

// EquipmentRegistry owns sources, valves and fittings.
type EquipmentRegistry struct {
	db     *gorm.DB
	log    *zap.Logger
	policy EquipmentDeletePolicy

	nodes *NodeGraph
	media *MediaStore
}

// checkOwner verifies the organization exists and that an optional site belongs to it.
func checkOwner(tx *gorm.DB, entity, organizationID string, siteID *string) error {
	if err := exists[model.Organization](tx, EntityOrganization, organizationID); err != nil {
		return err
	}
	if siteID == nil {
		return nil
	}
	site, err := ref[model.Site](tx, EntitySite, *siteID)
	if err != nil {
		return err
	}
	if site.OrganizationID != organizationID {
		return badReference(entity, *siteID, "site %s belongs to another organization", *siteID)
	}
	return nil
}

func checkElement(entity string, kind model.NodeType, name string, gas model.GasType, subtype string) error {
	if strings.TrimSpace(name) == "" {
		return invalid(entity, "name is required")
	}
	if !gas.Valid() {
		return invalid(entity, "unknown gasType %q", gas)
	}
	if !model.ValidSubtype(kind, subtype) {
		return invalid(entity, "unknown %s type %q", kind, subtype)
	}
	return nil
}

func normalizeSite(siteID *string) *string {
	if siteID == nil || *siteID == "" {
		return nil
	}
	return siteID
}

func (r *EquipmentRegistry) CreateSource(ctx context.Context, organizationID string, in SourceInput) (*model.Source, error) {
	if err := checkElement(EntitySource, model.NodeSource, in.Name, in.GasType, in.SourceType); err != nil {
		return nil, err
	}
	if in.Capacity != nil && (!parse.Storable(*in.Capacity) || *in.Capacity < 0) {
		return nil, invalid(EntitySource, "capacity must be a non-negative number up to %g", parse.MaxDecimal)
	}
	src := model.Source{
		OrganizationID: organizationID,
		SiteID:         normalizeSite(in.SiteID),
		Name:           strings.TrimSpace(in.Name),
		GasType:        in.GasType,
		SourceType:     in.SourceType,
		Manufacturer:   in.Manufacturer,
		ModelNumber:    in.Model,
		Capacity:       parse.FormatDecimalPtr(in.Capacity),
		Notes:          in.Notes,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkOwner(tx, EntitySource, organizationID, src.SiteID); err != nil {
			return err
		}
		return classify(tx.Create(&src).Error, EntitySource, src.ID)
	})
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *EquipmentRegistry) GetSource(ctx context.Context, id string) (*model.Source, error) {
	return first[model.Source](r.db.WithContext(ctx), EntitySource, id)
}

func (r *EquipmentRegistry) ListSources(ctx context.Context, organizationID string, siteID *string) ([]model.Source, error) {
	var out []model.Source
	if err := r.list(ctx, &out, organizationID, siteID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EquipmentRegistry) UpdateSource(ctx context.Context, id string, p SourcePatch) (*model.Source, error) {
	updates := map[string]any{}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, invalid(EntitySource, "name must not be empty")
		}
		updates["name"] = strings.TrimSpace(*p.Name)
	}
	if p.GasType != nil {
		if !p.GasType.Valid() {
			return nil, invalid(EntitySource, "unknown gasType %q", *p.GasType)
		}
		updates["gas_type"] = *p.GasType
	}
	if p.SourceType != nil {
		if !model.ValidSubtype(model.NodeSource, *p.SourceType) {
			return nil, invalid(EntitySource, "unknown source type %q", *p.SourceType)
		}
		updates["source_type"] = *p.SourceType
	}
	if p.Manufacturer != nil {
		updates["manufacturer"] = *p.Manufacturer
	}
	if p.Model != nil {
		updates["model_number"] = *p.Model
	}
	if p.Capacity != nil {
		if !parse.Storable(*p.Capacity) || *p.Capacity < 0 {
			return nil, invalid(EntitySource, "capacity must be a non-negative number up to %g", parse.MaxDecimal)
		}
		updates["capacity"] = parse.FormatDecimal(*p.Capacity)
	}
	if p.Notes != nil {
		updates["notes"] = *p.Notes
	}
	return updateRow[model.Source](r.db.WithContext(ctx), EntitySource, id, updates)
}

func (r *EquipmentRegistry) DeleteSource(ctx context.Context, id string) error {
	return r.deleteElement(ctx, model.NodeSource, id)
}

func (r *EquipmentRegistry) CreateValve(ctx context.Context, organizationID string, in ValveInput) (*model.Valve, error) {
	if err := checkElement(EntityValve, model.NodeValve, in.Name, in.GasType, in.ValveType); err != nil {
		return nil, err
	}
	if in.State == "" {
		in.State = model.ValveOpen
	}
	if !in.State.Valid() {
		return nil, invalid(EntityValve, "state must be open or closed")
	}
	v := model.Valve{
		OrganizationID: organizationID,
		SiteID:         normalizeSite(in.SiteID),
		Name:           strings.TrimSpace(in.Name),
		GasType:        in.GasType,
		ValveType:      in.ValveType,
		State:          in.State,
		Notes:          in.Notes,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkOwner(tx, EntityValve, organizationID, v.SiteID); err != nil {
			return err
		}
		return classify(tx.Create(&v).Error, EntityValve, v.ID)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *EquipmentRegistry) GetValve(ctx context.Context, id string) (*model.Valve, error) {
	return first[model.Valve](r.db.WithContext(ctx), EntityValve, id)
}

func (r *EquipmentRegistry) ListValves(ctx context.Context, organizationID string, siteID *string) ([]model.Valve, error) {
	var out []model.Valve
	if err := r.list(ctx, &out, organizationID, siteID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EquipmentRegistry) UpdateValve(ctx context.Context, id string, p ValvePatch) (*model.Valve, error) {
	updates := map[string]any{}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, invalid(EntityValve, "name must not be empty")
		}
		updates["name"] = strings.TrimSpace(*p.Name)
	}
	if p.GasType != nil {
		if !p.GasType.Valid() {
			return nil, invalid(EntityValve, "unknown gasType %q", *p.GasType)
		}
		updates["gas_type"] = *p.GasType
	}
	if p.ValveType != nil {
		if !model.ValidSubtype(model.NodeValve, *p.ValveType) {
			return nil, invalid(EntityValve, "unknown valve type %q", *p.ValveType)
		}
		updates["valve_type"] = *p.ValveType
	}
	if p.State != nil {
		if !p.State.Valid() {
			return nil, invalid(EntityValve, "state must be open or closed")
		}
		updates["state"] = *p.State
	}
	if p.Notes != nil {
		updates["notes"] = *p.Notes
	}
	return updateRow[model.Valve](r.db.WithContext(ctx), EntityValve, id, updates)
}

// SetValveState opens or closes a valve.
func (r *EquipmentRegistry) SetValveState(ctx context.Context, id string, state model.ValveState) (*model.Valve, error) {
	v, err := r.UpdateValve(ctx, id, ValvePatch{State: &state})
	if err != nil {
		return nil, err
	}
	r.log.Info("valve state changed", zap.String("valve_id", id), zap.String("state", string(state)))
	return v, nil
}

func (r *EquipmentRegistry) DeleteValve(ctx context.Context, id string) error {
	return r.deleteElement(ctx, model.NodeValve, id)
}

func (r *EquipmentRegistry) CreateFitting(ctx context.Context, organizationID string, in FittingInput) (*model.Fitting, error) {
	if err := checkElement(EntityFitting, model.NodeFitting, in.Name, in.GasType, in.FittingType); err != nil {
		return nil, err
	}
	f := model.Fitting{
		OrganizationID: organizationID,
		SiteID:         normalizeSite(in.SiteID),
		Name:           strings.TrimSpace(in.Name),
		GasType:        in.GasType,
		FittingType:    in.FittingType,
		Notes:          in.Notes,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkOwner(tx, EntityFitting, organizationID, f.SiteID); err != nil {
			return err
		}
		return classify(tx.Create(&f).Error, EntityFitting, f.ID)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *EquipmentRegistry) GetFitting(ctx context.Context, id string) (*model.Fitting, error) {
	return first[model.Fitting](r.db.WithContext(ctx), EntityFitting, id)
}

func (r *EquipmentRegistry) ListFittings(ctx context.Context, organizationID string, siteID *string) ([]model.Fitting, error) {
	var out []model.Fitting
	if err := r.list(ctx, &out, organizationID, siteID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EquipmentRegistry) UpdateFitting(ctx context.Context, id string, p FittingPatch) (*model.Fitting, error) {
	updates := map[string]any{}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, invalid(EntityFitting, "name must not be empty")
		}
		updates["name"] = strings.TrimSpace(*p.Name)
	}
	if p.GasType != nil {
		if !p.GasType.Valid() {
			return nil, invalid(EntityFitting, "unknown gasType %q", *p.GasType)
		}
		updates["gas_type"] = *p.GasType
	}
	if p.FittingType != nil {
		if !model.ValidSubtype(model.NodeFitting, *p.FittingType) {
			return nil, invalid(EntityFitting, "unknown fitting type %q", *p.FittingType)
		}
		updates["fitting_type"] = *p.FittingType
	}
	if p.Notes != nil {
		updates["notes"] = *p.Notes
	}
	return updateRow[model.Fitting](r.db.WithContext(ctx), EntityFitting, id, updates)
}

func (r *EquipmentRegistry) DeleteFitting(ctx context.Context, id string) error {
	return r.deleteElement(ctx, model.NodeFitting, id)
}

func (r *EquipmentRegistry) list(ctx context.Context, dest any, organizationID string, siteID *string) error {
	db := r.db.WithContext(ctx)
	if err := exists[model.Organization](db, EntityOrganization, organizationID); err != nil {
		return err
	}
	q := db.Where("organization_id = ?", organizationID)
	if siteID != nil && *siteID != "" {
		q = q.Where("site_id = ?", *siteID)
	}
	return q.Order("name, id").Find(dest).Error
}

// deleteElement removes an element under the configured policy. With cascade,
// wrapping nodes go in the same transaction.
func (r *EquipmentRegistry) deleteElement(ctx context.Context, kind model.NodeType, id string) error {
	var keys []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findElement(tx, kind, id); err != nil {
			return err
		}
		var nodeIDs []string
		if err := tx.Model(&model.Node{}).
			Where("node_type = ? AND element_id = ?", kind, id).
			Pluck("id", &nodeIDs).Error; err != nil {
			return err
		}
		if len(nodeIDs) > 0 {
			if r.policy != EquipmentCascade {
				return conflict(string(kind), id, "%s %s is wrapped by node %s", kind, id, nodeIDs[0])
			}
			if err := r.nodes.deleteNodesTx(tx, nodeIDs); err != nil {
				return err
			}
		}
		var err error
		if keys, err = r.deleteElementTx(tx, kind, id); err != nil {
			return err
		}
		r.log.Info("equipment deleted",
			zap.String("type", string(kind)),
			zap.String("id", id),
			zap.Int("nodes", len(nodeIDs)),
			zap.Int("media", len(keys)),
		)
		return nil
	})
	if err != nil {
		return err
	}
	r.media.queue(keys)
	return nil
}

// deleteElementTx removes the element row and its media rows, returning the blob keys to reap.
func (r *EquipmentRegistry) deleteElementTx(tx *gorm.DB, kind model.NodeType, id string) ([]string, error) {
	keys, err := r.media.deleteForElementTx(tx, kind, id)
	if err != nil {
		return nil, err
	}
	m, err := elementModel(kind)
	if err != nil {
		return nil, err
	}
	if err := tx.Where("id = ?", id).Delete(m).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *EquipmentRegistry) deleteForSiteTx(tx *gorm.DB, siteID string) error {
	for _, m := range []any{&model.Source{}, &model.Valve{}, &model.Fitting{}} {
		if err := tx.Where("site_id = ?", siteID).Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}

func elementModel(kind model.NodeType) (any, error) {
	switch kind {
	case model.NodeSource:
		return &model.Source{}, nil
	case model.NodeValve:
		return &model.Valve{}, nil
	case model.NodeFitting:
		return &model.Fitting{}, nil
	}
	return nil, invalid(EntityNode, "unknown nodeType %q", kind)
}

// findElement loads the element of the given kind.
func findElement(tx *gorm.DB, kind model.NodeType, id string) (model.Element, error) {
	var (
		el  model.Element
		err error
	)
	switch kind {
	case model.NodeSource:
		var src *model.Source
		if src, err = first[model.Source](tx, EntitySource, id); err == nil {
			el = src
		}
	case model.NodeValve:
		var v *model.Valve
		if v, err = first[model.Valve](tx, EntityValve, id); err == nil {
			el = v
		}
	case model.NodeFitting:
		var f *model.Fitting
		if f, err = first[model.Fitting](tx, EntityFitting, id); err == nil {
			el = f
		}
	default:
		err = invalid(EntityNode, "unknown nodeType %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return el, nil
}
