package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medgas-backend/internal/model"
)

func TestCreateOrganization_OnePerTeam(t *testing.T) {
	f := newFixture(t)

	again, err := f.s.Hierarchy.CreateOrganization(f.ctx, f.org.TeamID, "Another name")
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, again.ID)
	assert.Equal(t, "St. Mary's Health", again.Name)
	assert.Equal(t, int64(1), f.count(&model.Organization{}, "team_id = ?", f.org.TeamID))

	_, err = f.s.Hierarchy.CreateOrganization(f.ctx, "team-x", "  ")
	assertKind(t, err, KindValidation)
}

func TestCreateSite(t *testing.T) {
	lat, badLat, badLng := 51.5072, 91.0, -180.5
	emitter := &recordingEmitter{}
	f := newFixture(t, func(o *Options) { o.Billing = emitter })

	testCases := []struct {
		name    string
		orgID   string
		in      SiteInput
		wantErr Kind
	}{
		{name: "valid", in: SiteInput{Name: "East Wing", Latitude: &lat}},
		{name: "empty name", in: SiteInput{Name: " "}, wantErr: KindValidation},
		{name: "latitude out of range", in: SiteInput{Name: "X", Latitude: &badLat}, wantErr: KindValidation},
		{name: "longitude out of range", in: SiteInput{Name: "X", Longitude: &badLng}, wantErr: KindValidation},
		{name: "unknown organization", orgID: "missing", in: SiteInput{Name: "X"}, wantErr: KindNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			orgID := tc.orgID
			if orgID == "" {
				orgID = f.org.ID
			}
			site, err := f.s.Hierarchy.CreateSite(f.ctx, orgID, tc.in)
			if tc.wantErr != "" {
				assertKind(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "East Wing", site.Name)
			require.NotNil(t, site.Latitude)
			assert.Equal(t, "51.5072", *site.Latitude)
		})
	}

	// The fixture site and "East Wing" each emitted one event.
	require.Len(t, emitter.events, 2)
	last := emitter.events[1]
	assert.Equal(t, f.org.TeamID, last.TeamID)
	assert.Equal(t, f.org.ID, last.OrganizationID)
	assert.Equal(t, int64(2), last.SiteCount)
}

func TestCreateSite_BillingFailureIsNotSurfaced(t *testing.T) {
	emitter := &recordingEmitter{err: errors.New("billing down")}
	f := newFixture(t, func(o *Options) { o.Billing = emitter })

	site, err := f.s.Hierarchy.CreateSite(f.ctx, f.org.ID, SiteInput{Name: "Annex"})
	require.NoError(t, err)
	_, err = f.s.Hierarchy.GetSite(f.ctx, site.ID)
	assert.NoError(t, err)
}

func TestGetSiteWithHierarchy(t *testing.T) {
	f := newFixture(t)
	b := f.building(f.site.ID, "Tower A")
	upper := f.floor(b.ID, "2F")
	basement := f.floor(b.ID, "B1")
	f.zone(upper.ID, "ICU")
	f.zone(upper.ID, "HDU")

	tree, err := f.s.Hierarchy.GetSiteWithHierarchy(f.ctx, f.site.ID)
	require.NoError(t, err)
	assert.Equal(t, f.site.ID, tree.ID)
	require.Len(t, tree.Buildings, 1)
	require.Len(t, tree.Buildings[0].Floors, 2)

	floors := tree.Buildings[0].Floors
	assert.Equal(t, basement.ID, floors[0].ID)
	assert.Equal(t, -1, floors[0].FloorNumber)
	assert.Empty(t, floors[0].Zones)
	assert.Equal(t, 2, floors[1].FloorNumber)
	require.Len(t, floors[1].Zones, 2)
	assert.Equal(t, "HDU", floors[1].Zones[0].Name)

	empty := f.newSite("Empty")
	tree, err = f.s.Hierarchy.GetSiteWithHierarchy(f.ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, tree.Buildings)

	_, err = f.s.Hierarchy.GetSiteWithHierarchy(f.ctx, "missing")
	assertKind(t, err, KindNotFound)
}

func TestCreateFloor_NumberFromLabel(t *testing.T) {
	f := newFixture(t)
	b := f.building(f.site.ID, "Tower A")

	fl, err := f.s.Hierarchy.CreateFloor(f.ctx, b.ID, FloorInput{Name: "3层"})
	require.NoError(t, err)
	assert.Equal(t, 3, fl.FloorNumber)

	explicit := 7
	fl, err = f.s.Hierarchy.CreateFloor(f.ctx, b.ID, FloorInput{Name: "Plant room", FloorNumber: &explicit})
	require.NoError(t, err)
	assert.Equal(t, 7, fl.FloorNumber)

	_, err = f.s.Hierarchy.CreateFloor(f.ctx, b.ID, FloorInput{Name: "Plant room"})
	assertKind(t, err, KindValidation)

	_, err = f.s.Hierarchy.CreateFloor(f.ctx, "missing", FloorInput{Name: "1F"})
	assertKind(t, err, KindNotFound)
}

func TestUpdateSite_Partial(t *testing.T) {
	f := newFixture(t)
	addr := "1 Hospital Rd"
	site, err := f.s.Hierarchy.UpdateSite(f.ctx, f.site.ID, SitePatch{Address: &addr})
	require.NoError(t, err)
	assert.Equal(t, "Main Campus", site.Name)
	assert.Equal(t, addr, site.Address)

	_, err = f.s.Hierarchy.UpdateSite(f.ctx, "missing", SitePatch{Address: &addr})
	assertKind(t, err, KindNotFound)
}

func TestDeleteFloor_ReassignsNodes(t *testing.T) {
	f := newFixture(t)
	b := f.building(f.site.ID, "Tower A")
	fl := f.floor(b.ID, "1F")
	z := f.zone(fl.ID, "Theatre 1")
	n := f.node(f.site.ID, model.AtZone(z.ID))

	layout, err := f.s.Layouts.CreateLayout(f.ctx, f.site.ID, LayoutInput{Name: "1F plan", LayoutType: model.LayoutFloor, FloorID: &fl.ID})
	require.NoError(t, err)
	_, err = f.s.Layouts.CreateAnnotation(f.ctx, layout.ID, AnnotationInput{Title: "Theatre"})
	require.NoError(t, err)
	_, err = f.s.Placement.UpsertPosition(f.ctx, n.ID, layout.ID, at(1, 2))
	require.NoError(t, err)

	require.NoError(t, f.s.Hierarchy.DeleteFloor(f.ctx, fl.ID))

	moved, err := f.s.Nodes.GetNode(f.ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.BuildingID)
	assert.Equal(t, b.ID, *moved.BuildingID)
	assert.Nil(t, moved.FloorID)
	assert.Nil(t, moved.ZoneID)

	assert.Zero(t, f.count(&model.Zone{}, "floor_id = ?", fl.ID))
	assert.Zero(t, f.count(&model.Layout{}, "id = ?", layout.ID))
	assert.Zero(t, f.count(&model.Annotation{}, "layout_id = ?", layout.ID))
	assert.Zero(t, f.count(&model.NodePosition{}, "layout_id = ?", layout.ID))
}

func TestDeleteZone_ReassignsToFloor(t *testing.T) {
	f := newFixture(t)
	b := f.building(f.site.ID, "Tower A")
	fl := f.floor(b.ID, "1F")
	z := f.zone(fl.ID, "Ward 3")
	n := f.node(f.site.ID, model.AtZone(z.ID))

	require.NoError(t, f.s.Hierarchy.DeleteZone(f.ctx, z.ID))

	moved, err := f.s.Nodes.GetNode(f.ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.FloorID)
	assert.Equal(t, fl.ID, *moved.FloorID)
	assert.Nil(t, moved.ZoneID)
}

func TestDeleteBuilding(t *testing.T) {
	t.Run("reassign moves nodes to site level", func(t *testing.T) {
		f := newFixture(t)
		b := f.building(f.site.ID, "Tower A")
		fl := f.floor(b.ID, "1F")
		f.zone(fl.ID, "Ward 1")
		n := f.node(f.site.ID, model.AtFloor(fl.ID))

		require.NoError(t, f.s.Hierarchy.DeleteBuilding(f.ctx, b.ID))

		moved, err := f.s.Nodes.GetNode(f.ctx, n.ID)
		require.NoError(t, err)
		assert.True(t, moved.Location.IsSiteLevel())
		assert.Zero(t, f.count(&model.Floor{}, "building_id = ?", b.ID))
		assert.Zero(t, f.count(&model.Zone{}, "floor_id = ?", fl.ID))
	})

	t.Run("block rejects while nodes are anchored", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.HierarchyDeletePolicy = HierarchyBlock })
		b := f.building(f.site.ID, "Tower A")
		fl := f.floor(b.ID, "1F")
		f.node(f.site.ID, model.AtFloor(fl.ID))

		err := f.s.Hierarchy.DeleteBuilding(f.ctx, b.ID)
		assertKind(t, err, KindConflict)
		assert.Equal(t, int64(1), f.count(&model.Floor{}, "building_id = ?", b.ID))
	})

	t.Run("block rejects while floor layouts exist", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.HierarchyDeletePolicy = HierarchyBlock })
		b := f.building(f.site.ID, "Tower A")
		fl := f.floor(b.ID, "1F")
		_, err := f.s.Layouts.CreateLayout(f.ctx, f.site.ID, LayoutInput{Name: "1F", LayoutType: model.LayoutFloor, FloorID: &fl.ID})
		require.NoError(t, err)

		assertKind(t, f.s.Hierarchy.DeleteBuilding(f.ctx, b.ID), KindConflict)
	})

	t.Run("missing building", func(t *testing.T) {
		f := newFixture(t)
		assertKind(t, f.s.Hierarchy.DeleteBuilding(f.ctx, "missing"), KindNotFound)
	})
}

func TestDeleteSite(t *testing.T) {
	f := newFixture(t)
	b := f.building(f.site.ID, "Tower A")
	fl := f.floor(b.ID, "1F")
	n1 := f.node(f.site.ID, model.AtFloor(fl.ID))
	n2 := f.node(f.site.ID, model.Location{})
	layout := f.layout(f.site.ID)
	_, err := f.s.Placement.BulkImport(f.ctx, layout.ID, []string{n1.ID, n2.ID})
	require.NoError(t, err)
	_, err = f.s.Nodes.CreateConnection(f.ctx, f.site.ID, ConnectionInput{FromNodeID: n1.ID, ToNodeID: n2.ID, GasType: model.GasOxygen})
	require.NoError(t, err)
	siteValve, err := f.s.Equipment.CreateValve(f.ctx, f.org.ID, ValveInput{SiteID: &f.site.ID, Name: "ZV-1", GasType: model.GasOxygen, ValveType: "zone"})
	require.NoError(t, err)
	_, err = f.s.Media.UploadMedia(f.ctx, f.site.ID, UploadInput{ElementType: model.NodeValve, ElementID: siteValve.ID, FileName: "tag.jpg"}, bytesReader("jpg"))
	require.NoError(t, err)

	err = f.s.Hierarchy.DeleteSite(f.ctx, f.site.ID, false)
	assertKind(t, err, KindConflict)
	assert.Equal(t, int64(1), f.count(&model.Site{}, "id = ?", f.site.ID))

	require.NoError(t, f.s.Hierarchy.DeleteSite(f.ctx, f.site.ID, true))
	assert.Zero(t, f.count(&model.Site{}, "id = ?", f.site.ID))
	assert.Zero(t, f.count(&model.Building{}, "site_id = ?", f.site.ID))
	assert.Zero(t, f.count(&model.Floor{}, "id = ?", fl.ID))
	assert.Zero(t, f.count(&model.Node{}, "site_id = ?", f.site.ID))
	assert.Zero(t, f.count(&model.Connection{}, "site_id = ?", f.site.ID))
	assert.Zero(t, f.count(&model.Layout{}, "site_id = ?", f.site.ID))
	assert.Zero(t, f.count(&model.NodePosition{}, "layout_id = ?", layout.ID))
	assert.Zero(t, f.count(&model.Valve{}, "id = ?", siteValve.ID))
	assert.Zero(t, f.count(&model.Media{}, "site_id = ?", f.site.ID))
	assert.Zero(t, f.blobs.Len())

	// An empty site goes without force.
	empty := f.newSite("Empty")
	require.NoError(t, f.s.Hierarchy.DeleteSite(f.ctx, empty.ID, false))
}

func TestDeleteOrganization(t *testing.T) {
	f := newFixture(t)
	assertKind(t, f.s.Hierarchy.DeleteOrganization(f.ctx, f.org.ID), KindConflict)

	require.NoError(t, f.s.Hierarchy.DeleteSite(f.ctx, f.site.ID, false))
	require.NoError(t, f.s.Hierarchy.DeleteOrganization(f.ctx, f.org.ID))

	_, err := f.s.Hierarchy.GetOrganizationByTeam(f.ctx, f.org.TeamID)
	assertKind(t, err, KindNotFound)
}
