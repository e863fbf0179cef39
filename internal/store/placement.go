package store

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medgas-backend/internal/model"
	"medgas-backend/internal/parse"
)

// Grid used by BulkImport.
const (
	gridOrigin  = 100.0
	gridSpacing = 150.0
)

// PlacementLayer owns node positions. A node appears at most once per layout;
// the (node_id, layout_id) primary key enforces it in storage.
type PlacementLayer struct {
	db  *gorm.DB
	log *zap.Logger
}

var positionKey = []clause.Column{{Name: "node_id"}, {Name: "layout_id"}}

func (p *PlacementLayer) GetPosition(ctx context.Context, nodeID, layoutID string) (*model.NodePosition, error) {
	return getPosition(p.db.WithContext(ctx), nodeID, layoutID)
}

func getPosition(db *gorm.DB, nodeID, layoutID string) (*model.NodePosition, error) {
	var pos model.NodePosition
	err := db.Where("node_id = ? AND layout_id = ?", nodeID, layoutID).First(&pos).Error
	if err != nil {
		return nil, classify(err, EntityPosition, nodeID+"@"+layoutID)
	}
	return &pos, nil
}

// UpsertPosition places a node on a layout or moves it there. The checks and the
// write share one transaction; the node and layout rows are share-locked until commit.
func (p *PlacementLayer) UpsertPosition(ctx context.Context, nodeID, layoutID string, in PositionInput) (*model.NodePosition, error) {
	if in.X == nil || in.Y == nil {
		return nil, invalid(EntityPosition, "x and y are required")
	}
	if !parse.Storable(*in.X) || !parse.Storable(*in.Y) {
		return nil, invalid(EntityPosition, "x and y must be finite numbers within ±%g", parse.MaxDecimal)
	}
	if in.Rotation != nil && (!parse.Finite(*in.Rotation) || *in.Rotation < 0 || *in.Rotation > 360) {
		return nil, invalid(EntityPosition, "rotation must be within [0, 360]")
	}

	row := model.NodePosition{
		NodeID:    nodeID,
		LayoutID:  layoutID,
		XPosition: parse.FormatDecimal(*in.X),
		YPosition: parse.FormatDecimal(*in.Y),
		Rotation:  "0",
	}
	if in.Rotation != nil {
		row.Rotation = parse.FormatDecimal(*in.Rotation)
	}

	var pos *model.NodePosition
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkPlacement(tx, nodeID, layoutID); err != nil {
			return err
		}
		if err := upsertRow(tx, &row, in.Rotation != nil); err != nil {
			return classify(err, EntityPosition, nodeID+"@"+layoutID)
		}
		var err error
		pos, err = getPosition(tx, nodeID, layoutID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// upsertRow is INSERT ... ON CONFLICT (node_id, layout_id) DO UPDATE. Rotation is
// only overwritten when the caller supplied one.
func upsertRow(db *gorm.DB, row *model.NodePosition, withRotation bool) error {
	cols := []string{"x_position", "y_position", "updated_at"}
	if withRotation {
		cols = append(cols, "rotation")
	}
	return db.Clauses(clause.OnConflict{
		Columns:   positionKey,
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(row).Error
}

// checkPlacement requires both rows to exist and to belong to the same site.
func checkPlacement(tx *gorm.DB, nodeID, layoutID string) error {
	layout, err := first[model.Layout](shared(tx), EntityLayout, layoutID)
	if err != nil {
		return err
	}
	node, err := first[model.Node](shared(tx), EntityNode, nodeID)
	if err != nil {
		return err
	}
	if node.SiteID != layout.SiteID {
		return badReference(EntityNode, nodeID, "node %s is not in the site of layout %s", nodeID, layoutID)
	}
	return nil
}

// gridCell returns the deterministic position of item i out of n.
func gridCell(i, n int) (x, y float64) {
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	row, col := i/cols, i%cols
	return gridOrigin + float64(col)*gridSpacing, gridOrigin + float64(row)*gridSpacing
}

// BulkImport places every listed node that is not yet on the layout on a square grid.
// Items are independent: a skipped node never affects the others.
func (p *PlacementLayer) BulkImport(ctx context.Context, layoutID string, nodeIDs []string) (*ImportResult, error) {
	db := p.db.WithContext(ctx)
	layout, err := first[model.Layout](db, EntityLayout, layoutID)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{LayoutID: layoutID, Items: make([]ImportItem, 0, len(nodeIDs))}
	for i, nodeID := range nodeIDs {
		item := p.importOne(db, layout, nodeID, i, len(nodeIDs))
		if item.Status == ImportImported {
			res.Imported++
		} else {
			res.Skipped++
		}
		res.Items = append(res.Items, item)
	}
	p.log.Info("bulk import finished",
		zap.String("layout_id", layoutID),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// importOne places one node inside its own transaction. A node deleted between
// the lookup and the insert fails the foreign key and reads as not found.
func (p *PlacementLayer) importOne(db *gorm.DB, layout *model.Layout, nodeID string, i, n int) ImportItem {
	item := ImportItem{NodeID: nodeID, Status: ImportSkipped}
	x, y := gridCell(i, n)

	var placed bool
	err := db.Transaction(func(tx *gorm.DB) error {
		node, err := first[model.Node](shared(tx), EntityNode, nodeID)
		if err != nil {
			return err
		}
		if node.SiteID != layout.SiteID {
			item.Reason = ReasonSiteMismatch
			return nil
		}
		row := model.NodePosition{
			NodeID:    nodeID,
			LayoutID:  layout.ID,
			XPosition: parse.FormatDecimal(x),
			YPosition: parse.FormatDecimal(y),
			Rotation:  "0",
		}
		ins := tx.Clauses(clause.OnConflict{Columns: positionKey, DoNothing: true}).Create(&row)
		if ins.Error != nil {
			return classify(ins.Error, EntityPosition, nodeID+"@"+layout.ID)
		}
		if ins.RowsAffected == 0 {
			item.Reason = ReasonAlreadyPlaced
			return nil
		}
		placed = true
		return nil
	})

	switch kind := KindOf(err); {
	case kind == KindNotFound, kind == KindReference:
		item.Reason = ReasonNotFound
	case err != nil:
		p.log.Warn("bulk import insert failed", zap.String("node_id", nodeID), zap.Error(err))
		item.Reason = ReasonFailed
	case placed:
		item.Status = ImportImported
		item.X, item.Y = &x, &y
	}
	return item
}

// DeletePosition removes one placement. The node is untouched.
func (p *PlacementLayer) DeletePosition(ctx context.Context, nodeID, layoutID string) error {
	res := p.db.WithContext(ctx).
		Where("node_id = ? AND layout_id = ?", nodeID, layoutID).
		Delete(&model.NodePosition{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(EntityPosition, nodeID+"@"+layoutID)
	}
	return nil
}

// DeleteAllForLayout clears a layout without touching any node.
func (p *PlacementLayer) DeleteAllForLayout(ctx context.Context, layoutID string) (int64, error) {
	db := p.db.WithContext(ctx)
	if err := exists[model.Layout](db, EntityLayout, layoutID); err != nil {
		return 0, err
	}
	res := db.Where("layout_id = ?", layoutID).Delete(&model.NodePosition{})
	return res.RowsAffected, res.Error
}

func (p *PlacementLayer) ListByLayout(ctx context.Context, layoutID string) ([]model.NodePosition, error) {
	db := p.db.WithContext(ctx)
	if err := exists[model.Layout](db, EntityLayout, layoutID); err != nil {
		return nil, err
	}
	return listPositions(db.Where("layout_id = ?", layoutID))
}

func (p *PlacementLayer) ListByNode(ctx context.Context, nodeID string) ([]model.NodePosition, error) {
	db := p.db.WithContext(ctx)
	if err := exists[model.Node](db, EntityNode, nodeID); err != nil {
		return nil, err
	}
	return listPositions(db.Where("node_id = ?", nodeID))
}

func listPositions(q *gorm.DB) ([]model.NodePosition, error) {
	var rows []model.NodePosition
	if err := q.Order("updated_at DESC, created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return dedupePositions(rows), nil
}

// dedupePositions keeps the first row seen per (node, layout). Rows arrive newest first.
func dedupePositions(rows []model.NodePosition) []model.NodePosition {
	type key struct{ node, layout string }
	seen := make(map[key]struct{}, len(rows))
	out := make([]model.NodePosition, 0, len(rows))
	for _, r := range rows {
		k := key{r.NodeID, r.LayoutID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (p *PlacementLayer) deleteForNodesTx(tx *gorm.DB, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	return tx.Where("node_id IN ?", nodeIDs).Delete(&model.NodePosition{}).Error
}

func (p *PlacementLayer) deleteForLayoutsTx(tx *gorm.DB, layoutIDs []string) error {
	if len(layoutIDs) == 0 {
		return nil
	}
	return tx.Where("layout_id IN ?", layoutIDs).Delete(&model.NodePosition{}).Error
}
