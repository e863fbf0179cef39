package store

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"medgas-backend/internal/model"
	"medgas-backend/internal/parse"
)

// LayoutStore owns layouts and their annotations.
type LayoutStore struct {
	db  *gorm.DB
	log *zap.Logger

	placement *PlacementLayer
}

var annotationTypes = map[string]bool{"label": true, "layer": true, "zone_box": true, "note": true}

// CreateLayout adds a diagram. Site layouts have no floor; floor and zone layouts need
// a floor of the same site.
func (l *LayoutStore) CreateLayout(ctx context.Context, siteID string, in LayoutInput) (*model.Layout, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid(EntityLayout, "name is required")
	}
	if !in.LayoutType.Valid() {
		return nil, invalid(EntityLayout, "unknown layoutType %q", in.LayoutType)
	}
	floorID := normalizeSite(in.FloorID)
	if in.LayoutType.NeedsFloor() && floorID == nil {
		return nil, invalid(EntityLayout, "%s layouts need a floorId", in.LayoutType)
	}
	if !in.LayoutType.NeedsFloor() && floorID != nil {
		return nil, invalid(EntityLayout, "site layouts cannot reference a floor")
	}

	layout := model.Layout{SiteID: siteID, FloorID: floorID, Name: name, LayoutType: in.LayoutType}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists[model.Site](tx, EntitySite, siteID); err != nil {
			return err
		}
		if floorID != nil {
			floor, err := ref[model.Floor](tx, EntityFloor, *floorID)
			if err != nil {
				return err
			}
			b, err := first[model.Building](tx, EntityBuilding, floor.BuildingID)
			if err != nil {
				return err
			}
			if b.SiteID != siteID {
				return badReference(EntityFloor, *floorID, "floor %s is not in site %s", *floorID, siteID)
			}
		}
		return classify(tx.Create(&layout).Error, EntityLayout, layout.ID)
	})
	if err != nil {
		return nil, err
	}
	return &layout, nil
}

func (l *LayoutStore) GetLayout(ctx context.Context, id string) (*model.Layout, error) {
	return first[model.Layout](l.db.WithContext(ctx), EntityLayout, id)
}

// ListLayouts returns the layouts of a site, optionally only those of one floor.
func (l *LayoutStore) ListLayouts(ctx context.Context, siteID string, floorID *string) ([]model.Layout, error) {
	db := l.db.WithContext(ctx)
	if err := exists[model.Site](db, EntitySite, siteID); err != nil {
		return nil, err
	}
	q := db.Where("site_id = ?", siteID)
	if floorID != nil && *floorID != "" {
		q = q.Where("floor_id = ?", *floorID)
	}
	var out []model.Layout
	if err := q.Order("layout_type, name, id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (l *LayoutStore) RenameLayout(ctx context.Context, id, name string) (*model.Layout, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid(EntityLayout, "name is required")
	}
	return updateRow[model.Layout](l.db.WithContext(ctx), EntityLayout, id, map[string]any{"name": name})
}

// DeleteLayout removes the layout with its annotations and positions. Nodes stay.
func (l *LayoutStore) DeleteLayout(ctx context.Context, id string) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists[model.Layout](tx, EntityLayout, id); err != nil {
			return err
		}
		return l.deleteLayoutsTx(tx, []string{id})
	})
}

func (l *LayoutStore) deleteLayoutsTx(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("layout_id IN ?", ids).Delete(&model.Annotation{}).Error; err != nil {
		return err
	}
	if err := l.placement.deleteForLayoutsTx(tx, ids); err != nil {
		return err
	}
	if err := tx.Where("id IN ?", ids).Delete(&model.Layout{}).Error; err != nil {
		return err
	}
	l.log.Debug("layouts deleted", zap.Strings("layout_ids", ids))
	return nil
}

func (l *LayoutStore) deleteForFloorsTx(tx *gorm.DB, floorIDs []string) error {
	var ids []string
	if err := tx.Model(&model.Layout{}).Where("floor_id IN ?", floorIDs).Pluck("id", &ids).Error; err != nil {
		return err
	}
	return l.deleteLayoutsTx(tx, ids)
}

func (l *LayoutStore) deleteForSiteTx(tx *gorm.DB, siteID string) error {
	var ids []string
	if err := tx.Model(&model.Layout{}).Where("site_id = ?", siteID).Pluck("id", &ids).Error; err != nil {
		return err
	}
	return l.deleteLayoutsTx(tx, ids)
}

// annotationRow validates an input and maps it onto storage columns.
func annotationRow(layoutID string, in AnnotationInput) (model.Annotation, error) {
	row := model.Annotation{ID: in.ID, LayoutID: layoutID, Type: in.Type}
	if row.Type == "" {
		row.Type = "label"
	}
	if !annotationTypes[row.Type] {
		return row, invalid(EntityAnnotation, "unknown annotation type %q", in.Type)
	}
	row.Title = strings.TrimSpace(in.Title)
	if row.Title == "" {
		return row, invalid(EntityAnnotation, "title is required")
	}
	if !parse.Storable(in.Position.X) || !parse.Storable(in.Position.Y) {
		return row, invalid(EntityAnnotation, "position must be finite and within ±%g", parse.MaxDecimal)
	}
	row.PositionX = parse.FormatDecimal(in.Position.X)
	row.PositionY = parse.FormatDecimal(in.Position.Y)
	if in.Size != nil {
		if !parse.Storable(in.Size.Width) || !parse.Storable(in.Size.Height) || in.Size.Width < 0 || in.Size.Height < 0 {
			return row, invalid(EntityAnnotation, "size must be non-negative and at most %g", parse.MaxDecimal)
		}
		w, h := parse.FormatDecimal(in.Size.Width), parse.FormatDecimal(in.Size.Height)
		row.Width, row.Height = &w, &h
	}
	row.Subtitle = in.Subtitle
	row.Color = in.Color

	style, err := jsonObject(in.Style)
	if err != nil {
		return row, invalid(EntityAnnotation, "style must be a JSON object")
	}
	if style == nil {
		style = datatypes.JSON("{}")
	}
	row.Style = style
	meta, err := jsonObject(in.Metadata)
	if err != nil {
		return row, invalid(EntityAnnotation, "metadata must be a JSON object")
	}
	if meta == nil {
		meta = datatypes.JSON("{}")
	}
	row.Metadata = meta
	if in.Interactive {
		row.Interactive = 1
	}
	return row, nil
}

// jsonObject accepts an absent value, null, or an object. Absent comes back nil;
// callers store "{}" so the column is never NULL.
func jsonObject(raw json.RawMessage) (datatypes.JSON, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	return datatypes.JSON(trimmed), nil
}

// toAnnotation rebuilds the presentation shape from stored columns.
func toAnnotation(row model.Annotation) Annotation {
	a := Annotation{
		ID:          row.ID,
		LayoutID:    row.LayoutID,
		Type:        row.Type,
		Title:       row.Title,
		Subtitle:    row.Subtitle,
		Position:    Point{X: parse.DecimalOr(row.PositionX, 0), Y: parse.DecimalOr(row.PositionY, 0)},
		Color:       row.Color,
		Interactive: row.Interactive != 0,
		Metadata:    json.RawMessage(row.Metadata),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.Width != nil && row.Height != nil {
		a.Size = &Size{Width: parse.DecimalOr(*row.Width, 0), Height: parse.DecimalOr(*row.Height, 0)}
	}
	if len(row.Style) > 0 && string(row.Style) != "{}" {
		a.Style = json.RawMessage(row.Style)
	}
	if len(a.Metadata) == 0 {
		a.Metadata = json.RawMessage("{}")
	}
	return a
}

func annotationColumns(row model.Annotation) map[string]any {
	return map[string]any{
		"type":        row.Type,
		"title":       row.Title,
		"subtitle":    row.Subtitle,
		"position_x":  row.PositionX,
		"position_y":  row.PositionY,
		"width":       row.Width,
		"height":      row.Height,
		"color":       row.Color,
		"style":       row.Style,
		"interactive": row.Interactive,
		"metadata":    row.Metadata,
	}
}

func (l *LayoutStore) CreateAnnotation(ctx context.Context, layoutID string, in AnnotationInput) (*Annotation, error) {
	in.ID = ""
	row, err := annotationRow(layoutID, in)
	if err != nil {
		return nil, err
	}
	db := l.db.WithContext(ctx)
	if err := exists[model.Layout](db, EntityLayout, layoutID); err != nil {
		return nil, err
	}
	if err := db.Create(&row).Error; err != nil {
		return nil, classify(err, EntityAnnotation, row.ID)
	}
	a := toAnnotation(row)
	return &a, nil
}

func (l *LayoutStore) GetAnnotation(ctx context.Context, id string) (*Annotation, error) {
	row, err := first[model.Annotation](l.db.WithContext(ctx), EntityAnnotation, id)
	if err != nil {
		return nil, err
	}
	a := toAnnotation(*row)
	return &a, nil
}

// UpdateAnnotation replaces every presentational field of an annotation.
func (l *LayoutStore) UpdateAnnotation(ctx context.Context, id string, in AnnotationInput) (*Annotation, error) {
	db := l.db.WithContext(ctx)
	current, err := first[model.Annotation](db, EntityAnnotation, id)
	if err != nil {
		return nil, err
	}
	in.ID = id
	row, err := annotationRow(current.LayoutID, in)
	if err != nil {
		return nil, err
	}
	if err := db.Model(&model.Annotation{}).Where("id = ?", id).Updates(annotationColumns(row)).Error; err != nil {
		return nil, classify(err, EntityAnnotation, id)
	}
	return l.GetAnnotation(ctx, id)
}

func (l *LayoutStore) DeleteAnnotation(ctx context.Context, id string) error {
	res := l.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Annotation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(EntityAnnotation, id)
	}
	return nil
}

func (l *LayoutStore) ListAnnotations(ctx context.Context, layoutID string) ([]Annotation, error) {
	db := l.db.WithContext(ctx)
	if err := exists[model.Layout](db, EntityLayout, layoutID); err != nil {
		return nil, err
	}
	return listAnnotations(db, layoutID)
}

func listAnnotations(db *gorm.DB, layoutID string) ([]Annotation, error) {
	var rows []model.Annotation
	if err := db.Where("layout_id = ?", layoutID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Annotation, len(rows))
	for i, r := range rows {
		out[i] = toAnnotation(r)
	}
	return out, nil
}

// BulkUpsertAnnotations applies each item on its own: items with an id update that
// annotation of the layout, items without one are inserted. A failed item is reported
// and the rest still apply. The result is the layout's full set as stored afterwards.
func (l *LayoutStore) BulkUpsertAnnotations(ctx context.Context, layoutID string, items []AnnotationInput) (*AnnotationBatch, error) {
	db := l.db.WithContext(ctx)
	if err := exists[model.Layout](db, EntityLayout, layoutID); err != nil {
		return nil, err
	}

	failures := []ItemFailure{}
	for i, in := range items {
		if err := l.applyAnnotation(db, layoutID, in); err != nil {
			failures = append(failures, ItemFailure{Index: i, ID: in.ID, Reason: err.Error()})
			l.log.Warn("annotation item rejected",
				zap.String("layout_id", layoutID),
				zap.Int("index", i),
				zap.Error(err),
			)
		}
	}

	saved, err := listAnnotations(db, layoutID)
	if err != nil {
		return nil, err
	}
	return &AnnotationBatch{Annotations: saved, Failures: failures}, nil
}

func (l *LayoutStore) applyAnnotation(db *gorm.DB, layoutID string, in AnnotationInput) error {
	row, err := annotationRow(layoutID, in)
	if err != nil {
		return err
	}
	if in.ID == "" {
		return classify(db.Create(&row).Error, EntityAnnotation, row.ID)
	}
	res := db.Model(&model.Annotation{}).
		Where("id = ? AND layout_id = ?", in.ID, layoutID).
		Updates(annotationColumns(row))
	if res.Error != nil {
		return classify(res.Error, EntityAnnotation, in.ID)
	}
	if res.RowsAffected == 0 {
		return notFound(EntityAnnotation, in.ID)
	}
	return nil
}
