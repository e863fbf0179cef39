package store

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"medgas-backend/internal/model"
	"medgas-backend/internal/parse"
)

// NodeGraph owns nodes and the pipeline connections between them.
type NodeGraph struct {
	db  *gorm.DB
	log *zap.Logger

	placement *PlacementLayer
	media     *MediaStore
	equipment *EquipmentRegistry
}

// resolveLocation fills in the parents of the deepest anchor and checks the chain
// stays within the site.
func resolveLocation(tx *gorm.DB, siteID string, loc model.Location) (model.Location, error) {
	loc = loc.Normalize()
	if loc.ZoneID != nil {
		zone, err := ref[model.Zone](tx, EntityZone, *loc.ZoneID)
		if err != nil {
			return loc, err
		}
		if loc.FloorID != nil && *loc.FloorID != zone.FloorID {
			return loc, invalid(EntityNode, "zone %s is not on floor %s", zone.ID, *loc.FloorID)
		}
		loc.FloorID = &zone.FloorID
	}
	if loc.FloorID != nil {
		floor, err := ref[model.Floor](tx, EntityFloor, *loc.FloorID)
		if err != nil {
			return loc, err
		}
		if loc.BuildingID != nil && *loc.BuildingID != floor.BuildingID {
			return loc, invalid(EntityNode, "floor %s is not in building %s", floor.ID, *loc.BuildingID)
		}
		loc.BuildingID = &floor.BuildingID
	}
	if loc.BuildingID != nil {
		b, err := ref[model.Building](tx, EntityBuilding, *loc.BuildingID)
		if err != nil {
			return loc, err
		}
		if b.SiteID != siteID {
			return loc, badReference(EntityBuilding, b.ID, "building %s is not in site %s", b.ID, siteID)
		}
	}
	return loc, nil
}

func checkNodeExtras(zPosition *float64, outletCount *int) error {
	if zPosition != nil && !parse.Storable(*zPosition) {
		return invalid(EntityNode, "zPosition must be a finite number within ±%g", parse.MaxDecimal)
	}
	if outletCount != nil && *outletCount < 0 {
		return invalid(EntityNode, "outletCount must not be negative")
	}
	return nil
}

// CreateNode wraps an element of the site's organization in a new node.
func (g *NodeGraph) CreateNode(ctx context.Context, siteID string, in NodeInput) (*model.Node, error) {
	if !in.NodeType.Valid() {
		return nil, invalid(EntityNode, "unknown nodeType %q", in.NodeType)
	}
	if in.ElementID == "" {
		return nil, invalid(EntityNode, "elementId is required")
	}
	if err := checkNodeExtras(in.ZPosition, in.OutletCount); err != nil {
		return nil, err
	}

	node := model.Node{
		SiteID:      siteID,
		NodeType:    in.NodeType,
		ElementID:   in.ElementID,
		ZPosition:   parse.FormatDecimalPtr(in.ZPosition),
		OutletCount: in.OutletCount,
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		site, err := first[model.Site](tx, EntitySite, siteID)
		if err != nil {
			return err
		}
		el, err := findElement(tx, in.NodeType, in.ElementID)
		if err != nil {
			return asReference(err, string(in.NodeType), in.ElementID)
		}
		org, elSite := el.Owner()
		if org != site.OrganizationID {
			return badReference(string(in.NodeType), in.ElementID, "%s %s belongs to another organization", in.NodeType, in.ElementID)
		}
		if elSite != nil && *elSite != siteID {
			return badReference(string(in.NodeType), in.ElementID, "%s %s is scoped to site %s", in.NodeType, in.ElementID, *elSite)
		}
		if node.Location, err = resolveLocation(tx, siteID, in.Location); err != nil {
			return err
		}
		if err := tx.Create(&node).Error; err != nil {
			if isUniqueViolation(err) {
				return conflict(EntityNode, in.ElementID, "%s %s is already wrapped by a node", in.NodeType, in.ElementID)
			}
			return classify(err, EntityNode, node.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// GetNode returns a node with the name and gas of its element.
func (g *NodeGraph) GetNode(ctx context.Context, id string) (*NodeDetail, error) {
	db := g.db.WithContext(ctx)
	node, err := first[model.Node](db, EntityNode, id)
	if err != nil {
		return nil, err
	}
	summaries, err := elementSummaries(db, []model.Node{*node})
	if err != nil {
		return nil, err
	}
	return &NodeDetail{Node: *node, Element: summaries[elementKey(node.NodeType, node.ElementID)]}, nil
}

// ListNodesBySite returns the nodes of a site. A building or floor filter also
// matches nodes with that level unset, so site-level equipment is always visible.
func (g *NodeGraph) ListNodesBySite(ctx context.Context, siteID string, f NodeFilter) ([]model.Node, error) {
	db := g.db.WithContext(ctx)
	if err := exists[model.Site](db, EntitySite, siteID); err != nil {
		return nil, err
	}
	q := db.Where("site_id = ?", siteID)
	if f.BuildingID != nil && *f.BuildingID != "" {
		q = q.Where(db.Where("building_id = ?", *f.BuildingID).Or("building_id IS NULL"))
	}
	if f.FloorID != nil && *f.FloorID != "" {
		q = q.Where(db.Where("floor_id = ?", *f.FloorID).Or("floor_id IS NULL"))
	}
	if f.NodeType != nil && *f.NodeType != "" {
		q = q.Where("node_type = ?", *f.NodeType)
	}
	var nodes []model.Node
	if err := q.Order("created_at, id").Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// UpdateNode changes anchors and node extras. Diagram positions are left alone.
func (g *NodeGraph) UpdateNode(ctx context.Context, id string, p NodePatch) (*model.Node, error) {
	if err := checkNodeExtras(p.ZPosition, p.OutletCount); err != nil {
		return nil, err
	}
	var out *model.Node
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, err := first[model.Node](tx, EntityNode, id)
		if err != nil {
			return err
		}
		updates := map[string]any{}
		if p.Location != nil {
			loc, err := resolveLocation(tx, node.SiteID, *p.Location)
			if err != nil {
				return err
			}
			updates["building_id"] = loc.BuildingID
			updates["floor_id"] = loc.FloorID
			updates["zone_id"] = loc.ZoneID
		}
		if p.ZPosition != nil {
			updates["z_position"] = parse.FormatDecimal(*p.ZPosition)
		}
		if p.OutletCount != nil {
			updates["outlet_count"] = *p.OutletCount
		}
		if len(updates) > 0 {
			if err := tx.Model(&model.Node{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return classify(err, EntityNode, id)
			}
		}
		out, err = first[model.Node](tx, EntityNode, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteNode removes a node with its positions and connections.
func (g *NodeGraph) DeleteNode(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists[model.Node](tx, EntityNode, id); err != nil {
			return err
		}
		return g.deleteNodesTx(tx, []string{id})
	})
}

// DeleteNodeAndElement removes a node and the element it wraps in one transaction.
func (g *NodeGraph) DeleteNodeAndElement(ctx context.Context, id string) error {
	var keys []string
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, err := first[model.Node](tx, EntityNode, id)
		if err != nil {
			return err
		}
		if err := g.deleteNodesTx(tx, []string{id}); err != nil {
			return err
		}
		keys, err = g.equipment.deleteElementTx(tx, node.NodeType, node.ElementID)
		return err
	})
	if err != nil {
		return err
	}
	g.media.queue(keys)
	return nil
}

// deleteNodesTx is the node cascade: positions, connections touching the nodes, then the nodes.
func (g *NodeGraph) deleteNodesTx(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := g.placement.deleteForNodesTx(tx, ids); err != nil {
		return err
	}
	res := tx.Where("from_node_id IN ? OR to_node_id IN ?", ids, ids).Delete(&model.Connection{})
	if res.Error != nil {
		return res.Error
	}
	if err := tx.Where("id IN ?", ids).Delete(&model.Node{}).Error; err != nil {
		return err
	}
	g.log.Debug("nodes deleted", zap.Int("nodes", len(ids)), zap.Int64("connections", res.RowsAffected))
	return nil
}

func (g *NodeGraph) deleteForSiteTx(tx *gorm.DB, siteID string) error {
	var ids []string
	if err := tx.Model(&model.Node{}).Where("site_id = ?", siteID).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if err := g.deleteNodesTx(tx, ids); err != nil {
		return err
	}
	return tx.Where("site_id = ?", siteID).Delete(&model.Connection{}).Error
}

// clearAnchorsTx moves nodes anchored at column IN ids up to the parent level.
// Clearing a level clears every level below it.
func (g *NodeGraph) clearAnchorsTx(tx *gorm.DB, column string, ids []string) (int64, error) {
	var updates map[string]any
	switch column {
	case "zone_id":
		updates = map[string]any{"zone_id": nil}
	case "floor_id":
		updates = map[string]any{"floor_id": nil, "zone_id": nil}
	case "building_id":
		updates = map[string]any{"building_id": nil, "floor_id": nil, "zone_id": nil}
	default:
		return 0, invalid(EntityNode, "unknown anchor %q", column)
	}
	res := tx.Model(&model.Node{}).Where(column+" IN ?", ids).Updates(updates)
	return res.RowsAffected, res.Error
}

// CreateConnection links two nodes of the same site. Parallel edges are allowed.
func (g *NodeGraph) CreateConnection(ctx context.Context, siteID string, in ConnectionInput) (*model.Connection, error) {
	if !in.GasType.Valid() {
		return nil, invalid(EntityConnection, "unknown gasType %q", in.GasType)
	}
	if in.FromNodeID == "" || in.ToNodeID == "" {
		return nil, invalid(EntityConnection, "fromNodeId and toNodeId are required")
	}
	if in.FromNodeID == in.ToNodeID {
		return nil, invalid(EntityConnection, "a connection needs two distinct nodes")
	}
	if err := checkDiameter(in.DiameterMm); err != nil {
		return nil, err
	}

	conn := model.Connection{
		SiteID:     siteID,
		FromNodeID: in.FromNodeID,
		ToNodeID:   in.ToNodeID,
		GasType:    in.GasType,
		DiameterMm: parse.FormatDecimalPtr(in.DiameterMm),
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists[model.Site](tx, EntitySite, siteID); err != nil {
			return err
		}
		for _, nodeID := range []string{in.FromNodeID, in.ToNodeID} {
			n, err := ref[model.Node](shared(tx), EntityNode, nodeID)
			if err != nil {
				return err
			}
			if n.SiteID != siteID {
				return badReference(EntityNode, nodeID, "node %s is not in site %s", nodeID, siteID)
			}
		}
		return classify(tx.Create(&conn).Error, EntityConnection, conn.ID)
	})
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (g *NodeGraph) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	return first[model.Connection](g.db.WithContext(ctx), EntityConnection, id)
}

func (g *NodeGraph) ListConnections(ctx context.Context, siteID string) ([]model.Connection, error) {
	db := g.db.WithContext(ctx)
	if err := exists[model.Site](db, EntitySite, siteID); err != nil {
		return nil, err
	}
	var out []model.Connection
	if err := db.Where("site_id = ?", siteID).Order("created_at, id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListConnectionsForLayout returns the connections whose endpoints are both placed on the layout.
func (g *NodeGraph) ListConnectionsForLayout(ctx context.Context, layoutID string) ([]model.Connection, error) {
	db := g.db.WithContext(ctx)
	if err := exists[model.Layout](db, EntityLayout, layoutID); err != nil {
		return nil, err
	}
	return connectionsForLayout(db, layoutID)
}

func connectionsForLayout(db *gorm.DB, layoutID string) ([]model.Connection, error) {
	placedFrom := db.Model(&model.NodePosition{}).Select("node_id").Where("layout_id = ?", layoutID)
	placedTo := db.Model(&model.NodePosition{}).Select("node_id").Where("layout_id = ?", layoutID)
	var out []model.Connection
	err := db.Where("from_node_id IN (?) AND to_node_id IN (?)", placedFrom, placedTo).
		Order("created_at, id").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *NodeGraph) UpdateConnection(ctx context.Context, id string, p ConnectionPatch) (*model.Connection, error) {
	updates := map[string]any{}
	if p.GasType != nil {
		if !p.GasType.Valid() {
			return nil, invalid(EntityConnection, "unknown gasType %q", *p.GasType)
		}
		updates["gas_type"] = *p.GasType
	}
	if p.DiameterMm != nil {
		if err := checkDiameter(p.DiameterMm); err != nil {
			return nil, err
		}
		updates["diameter_mm"] = parse.FormatDecimal(*p.DiameterMm)
	}
	return updateRow[model.Connection](g.db.WithContext(ctx), EntityConnection, id, updates)
}

func (g *NodeGraph) DeleteConnection(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Connection{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(EntityConnection, id)
	}
	return nil
}

func checkDiameter(d *float64) error {
	if d != nil && (!parse.Storable(*d) || *d <= 0) {
		return invalid(EntityConnection, "diameterMm must be a positive number up to %g", parse.MaxDecimal)
	}
	return nil
}

func elementKey(kind model.NodeType, id string) string {
	return string(kind) + ":" + id
}

// elementSummaries batch-loads the names and gases of the elements wrapped by nodes.
func elementSummaries(db *gorm.DB, nodes []model.Node) (map[string]ElementSummary, error) {
	ids := map[model.NodeType][]string{}
	for _, n := range nodes {
		ids[n.NodeType] = append(ids[n.NodeType], n.ElementID)
	}
	out := make(map[string]ElementSummary, len(nodes))
	add := func(el model.Element) {
		out[elementKey(el.Kind(), el.ElementID())] = ElementSummary{Name: el.Label(), GasType: el.Gas()}
	}
	if len(ids[model.NodeSource]) > 0 {
		var rows []model.Source
		if err := db.Where("id IN ?", ids[model.NodeSource]).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			add(&rows[i])
		}
	}
	if len(ids[model.NodeValve]) > 0 {
		var rows []model.Valve
		if err := db.Where("id IN ?", ids[model.NodeValve]).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			add(&rows[i])
		}
	}
	if len(ids[model.NodeFitting]) > 0 {
		var rows []model.Fitting
		if err := db.Where("id IN ?", ids[model.NodeFitting]).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			add(&rows[i])
		}
	}
	return out, nil
}
