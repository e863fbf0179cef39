package store

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"medgas-backend/internal/model"
	"medgas-backend/internal/parse"
)

// PlacedNode is a node as drawn on one layout.
type PlacedNode struct {
	model.Node
	Element  ElementSummary `json:"element"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	Rotation float64        `json:"rotation"`
}

// LayoutView is everything a diagram needs in one read.
type LayoutView struct {
	Layout      model.Layout       `json:"layout"`
	Nodes       []PlacedNode       `json:"nodes"`
	Connections []model.Connection `json:"connections"`
	Annotations []Annotation       `json:"annotations"`
}

// LayoutView loads a layout with its placed nodes, visible connections and annotations.
func (s *Store) LayoutView(ctx context.Context, layoutID string) (*LayoutView, error) {
	db := s.db.WithContext(ctx)
	layout, err := first[model.Layout](db, EntityLayout, layoutID)
	if err != nil {
		return nil, err
	}
	positions, err := listPositions(db.Where("layout_id = ?", layoutID))
	if err != nil {
		return nil, err
	}

	nodeIDs := make([]string, len(positions))
	for i, p := range positions {
		nodeIDs[i] = p.NodeID
	}
	var nodes []model.Node
	if len(nodeIDs) > 0 {
		if err := db.Where("id IN ?", nodeIDs).Find(&nodes).Error; err != nil {
			return nil, err
		}
	}
	byID := make(map[string]model.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	summaries, err := elementSummaries(db, nodes)
	if err != nil {
		return nil, err
	}

	view := &LayoutView{Layout: *layout, Nodes: make([]PlacedNode, 0, len(positions))}
	for _, p := range positions {
		n, ok := byID[p.NodeID]
		if !ok {
			continue
		}
		view.Nodes = append(view.Nodes, PlacedNode{
			Node:     n,
			Element:  summaries[elementKey(n.NodeType, n.ElementID)],
			X:        parse.DecimalOr(p.XPosition, 0),
			Y:        parse.DecimalOr(p.YPosition, 0),
			Rotation: parse.DecimalOr(p.Rotation, 0),
		})
	}
	sort.Slice(view.Nodes, func(i, j int) bool { return view.Nodes[i].ID < view.Nodes[j].ID })

	if view.Connections, err = connectionsForLayout(db, layoutID); err != nil {
		return nil, err
	}
	if view.Annotations, err = listAnnotations(db, layoutID); err != nil {
		return nil, err
	}
	return view, nil
}

// RegisterRow is one line of a site's equipment register.
type RegisterRow struct {
	NodeID   string
	NodeType model.NodeType
	Name     string
	GasType  model.GasType
	Building string
	Floor    string
	Zone     string
	Layouts  []string
}

// RegisterRows lists every node of a site with its element, location names and layouts.
func (s *Store) RegisterRows(ctx context.Context, siteID string) ([]RegisterRow, error) {
	db := s.db.WithContext(ctx)
	if err := exists[model.Site](db, EntitySite, siteID); err != nil {
		return nil, err
	}
	var nodes []model.Node
	if err := db.Where("site_id = ?", siteID).Order("node_type, created_at, id").Find(&nodes).Error; err != nil {
		return nil, err
	}
	summaries, err := elementSummaries(db, nodes)
	if err != nil {
		return nil, err
	}
	names, err := locationNames(db, siteID)
	if err != nil {
		return nil, err
	}

	type placement struct {
		NodeID string
		Name   string
	}
	var placed []placement
	err = db.Model(&model.NodePosition{}).
		Select("node_positions.node_id, layouts.name").
		Joins("JOIN layouts ON layouts.id = node_positions.layout_id").
		Where("layouts.site_id = ?", siteID).
		Order("layouts.name").
		Scan(&placed).Error
	if err != nil {
		return nil, err
	}
	layoutsByNode := make(map[string][]string)
	for _, p := range placed {
		layoutsByNode[p.NodeID] = append(layoutsByNode[p.NodeID], p.Name)
	}

	rows := make([]RegisterRow, 0, len(nodes))
	for _, n := range nodes {
		el := summaries[elementKey(n.NodeType, n.ElementID)]
		rows = append(rows, RegisterRow{
			NodeID:   n.ID,
			NodeType: n.NodeType,
			Name:     el.Name,
			GasType:  el.GasType,
			Building: names.lookup(n.BuildingID),
			Floor:    names.lookup(n.FloorID),
			Zone:     names.lookup(n.ZoneID),
			Layouts:  layoutsByNode[n.ID],
		})
	}
	return rows, nil
}

type nameIndex map[string]string

func (ix nameIndex) lookup(id *string) string {
	if id == nil {
		return ""
	}
	return ix[*id]
}

// locationNames maps building, floor and zone ids of a site to their names.
func locationNames(db *gorm.DB, siteID string) (nameIndex, error) {
	ix := nameIndex{}
	var buildings []model.Building
	if err := db.Where("site_id = ?", siteID).Find(&buildings).Error; err != nil {
		return nil, err
	}
	for _, b := range buildings {
		ix[b.ID] = b.Name
	}
	buildingIDs := db.Model(&model.Building{}).Select("id").Where("site_id = ?", siteID)
	var floors []model.Floor
	if err := db.Where("building_id IN (?)", buildingIDs).Find(&floors).Error; err != nil {
		return nil, err
	}
	floorIDs := make([]string, len(floors))
	for i, f := range floors {
		ix[f.ID] = f.Name
		floorIDs[i] = f.ID
	}
	if len(floorIDs) > 0 {
		var zones []model.Zone
		if err := db.Where("floor_id IN ?", floorIDs).Find(&zones).Error; err != nil {
			return nil, err
		}
		for _, z := range zones {
			ix[z.ID] = z.Name
		}
	}
	return ix, nil
}
