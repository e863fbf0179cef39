package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medgas-backend/internal/model"
)

func TestCreateEquipment_Validation(t *testing.T) {
	f := newFixture(t)
	otherOrg, err := f.s.Hierarchy.CreateOrganization(f.ctx, "team-other", "Other Trust")
	require.NoError(t, err)
	otherSite, err := f.s.Hierarchy.CreateSite(f.ctx, otherOrg.ID, SiteInput{Name: "Other campus"})
	require.NoError(t, err)
	negative := -1.0

	testCases := []struct {
		name    string
		create  func() error
		wantErr Kind
	}{
		{
			name: "source ok",
			create: func() error {
				_, err := f.s.Equipment.CreateSource(f.ctx, f.org.ID, SourceInput{Name: "VIE tank", GasType: model.GasOxygen, SourceType: "bulk_tank"})
				return err
			},
		},
		{
			name: "unknown gas type",
			create: func() error {
				_, err := f.s.Equipment.CreateSource(f.ctx, f.org.ID, SourceInput{Name: "X", GasType: "helium", SourceType: "bulk_tank"})
				return err
			},
			wantErr: KindValidation,
		},
		{
			name: "unknown source type",
			create: func() error {
				_, err := f.s.Equipment.CreateSource(f.ctx, f.org.ID, SourceInput{Name: "X", GasType: model.GasOxygen, SourceType: "tank"})
				return err
			},
			wantErr: KindValidation,
		},
		{
			name: "negative capacity",
			create: func() error {
				_, err := f.s.Equipment.CreateSource(f.ctx, f.org.ID, SourceInput{Name: "X", GasType: model.GasOxygen, SourceType: "bulk_tank", Capacity: &negative})
				return err
			},
			wantErr: KindValidation,
		},
		{
			name: "bad valve state",
			create: func() error {
				_, err := f.s.Equipment.CreateValve(f.ctx, f.org.ID, ValveInput{Name: "X", GasType: model.GasVacuum, ValveType: "zone", State: "ajar"})
				return err
			},
			wantErr: KindValidation,
		},
		{
			name: "empty fitting name",
			create: func() error {
				_, err := f.s.Equipment.CreateFitting(f.ctx, f.org.ID, FittingInput{GasType: model.GasVacuum, FittingType: "inlet"})
				return err
			},
			wantErr: KindValidation,
		},
		{
			name: "unknown organization",
			create: func() error {
				_, err := f.s.Equipment.CreateFitting(f.ctx, "missing", FittingInput{Name: "X", GasType: model.GasVacuum, FittingType: "inlet"})
				return err
			},
			wantErr: KindNotFound,
		},
		{
			name: "site of another organization",
			create: func() error {
				_, err := f.s.Equipment.CreateValve(f.ctx, f.org.ID, ValveInput{SiteID: &otherSite.ID, Name: "X", GasType: model.GasVacuum, ValveType: "zone"})
				return err
			},
			wantErr: KindReference,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.create()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assertKind(t, err, tc.wantErr)
		})
	}
}

func TestUpdateSource_Partial(t *testing.T) {
	f := newFixture(t)
	capacity := 12.5
	src, err := f.s.Equipment.CreateSource(f.ctx, f.org.ID, SourceInput{Name: "Manifold 1", GasType: model.GasNitrousOxide, SourceType: "cylinder_manifold", Capacity: &capacity})
	require.NoError(t, err)

	name := "Manifold 1A"
	updated, err := f.s.Equipment.UpdateSource(f.ctx, src.ID, SourcePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Manifold 1A", updated.Name)
	assert.Equal(t, model.GasNitrousOxide, updated.GasType)
	require.NotNil(t, updated.Capacity)
	assert.Equal(t, "12.5", *updated.Capacity)

	bad := model.GasType("argon")
	_, err = f.s.Equipment.UpdateSource(f.ctx, src.ID, SourcePatch{GasType: &bad})
	assertKind(t, err, KindValidation)
}

func TestSetValveState(t *testing.T) {
	f := newFixture(t)
	v, err := f.s.Equipment.CreateValve(f.ctx, f.org.ID, ValveInput{Name: "ZVSU-3", GasType: model.GasMedicalAir, ValveType: "zone"})
	require.NoError(t, err)
	assert.Equal(t, model.ValveOpen, v.State)

	v, err = f.s.Equipment.SetValveState(f.ctx, v.ID, model.ValveClosed)
	require.NoError(t, err)
	assert.Equal(t, model.ValveClosed, v.State)

	_, err = f.s.Equipment.SetValveState(f.ctx, v.ID, "half")
	assertKind(t, err, KindValidation)
	_, err = f.s.Equipment.SetValveState(f.ctx, "missing", model.ValveOpen)
	assertKind(t, err, KindNotFound)
}

func TestListEquipment_BySite(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Equipment.CreateFitting(f.ctx, f.org.ID, FittingInput{SiteID: &f.site.ID, Name: "A", GasType: model.GasOxygen, FittingType: "outlet"})
	require.NoError(t, err)
	_, err = f.s.Equipment.CreateFitting(f.ctx, f.org.ID, FittingInput{Name: "B", GasType: model.GasOxygen, FittingType: "outlet"})
	require.NoError(t, err)

	all, err := f.s.Equipment.ListFittings(f.ctx, f.org.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := f.s.Equipment.ListFittings(f.ctx, f.org.ID, &f.site.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "A", scoped[0].Name)
}

func TestDeleteEquipment(t *testing.T) {
	t.Run("reject while wrapped", func(t *testing.T) {
		f := newFixture(t)
		n := f.node(f.site.ID, model.Location{})

		err := f.s.Equipment.DeleteFitting(f.ctx, n.ElementID)
		assertKind(t, err, KindConflict)
		assert.Equal(t, int64(1), f.count(&model.Fitting{}, "id = ?", n.ElementID))

		require.NoError(t, f.s.Nodes.DeleteNode(f.ctx, n.ID))
		require.NoError(t, f.s.Equipment.DeleteFitting(f.ctx, n.ElementID))
		assert.Zero(t, f.count(&model.Fitting{}, "id = ?", n.ElementID))
	})

	t.Run("cascade removes the wrapping node", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.EquipmentDeletePolicy = EquipmentCascade })
		n1 := f.node(f.site.ID, model.Location{})
		n2 := f.node(f.site.ID, model.Location{})
		l := f.layout(f.site.ID)
		_, err := f.s.Placement.UpsertPosition(f.ctx, n1.ID, l.ID, at(10, 10))
		require.NoError(t, err)
		_, err = f.s.Nodes.CreateConnection(f.ctx, f.site.ID, ConnectionInput{FromNodeID: n1.ID, ToNodeID: n2.ID, GasType: model.GasOxygen})
		require.NoError(t, err)
		_, err = f.s.Media.UploadMedia(f.ctx, f.site.ID, UploadInput{ElementType: model.NodeFitting, ElementID: n1.ElementID, FileName: "cert.pdf"}, bytesReader("%PDF"))
		require.NoError(t, err)

		require.NoError(t, f.s.Equipment.DeleteFitting(f.ctx, n1.ElementID))

		assert.Zero(t, f.count(&model.Node{}, "id = ?", n1.ID))
		assert.Zero(t, f.count(&model.NodePosition{}, "node_id = ?", n1.ID))
		assert.Zero(t, f.count(&model.Connection{}, "from_node_id = ? OR to_node_id = ?", n1.ID, n1.ID))
		assert.Zero(t, f.count(&model.Media{}, "element_id = ?", n1.ElementID))
		assert.Zero(t, f.blobs.Len())
		assert.Equal(t, int64(1), f.count(&model.Node{}, "id = ?", n2.ID))
	})

	t.Run("missing element", func(t *testing.T) {
		f := newFixture(t)
		assertKind(t, f.s.Equipment.DeleteValve(f.ctx, "missing"), KindNotFound)
	})
}

func TestDeleteNodeAndElement(t *testing.T) {
	f := newFixture(t)
	n := f.node(f.site.ID, model.Location{})
	l := f.layout(f.site.ID)
	_, err := f.s.Placement.UpsertPosition(f.ctx, n.ID, l.ID, at(1, 1))
	require.NoError(t, err)

	require.NoError(t, f.s.Nodes.DeleteNodeAndElement(f.ctx, n.ID))

	assert.Zero(t, f.count(&model.Node{}, "id = ?", n.ID))
	assert.Zero(t, f.count(&model.Fitting{}, "id = ?", n.ElementID))
	assert.Zero(t, f.count(&model.NodePosition{}, "node_id = ?", n.ID))

	assertKind(t, f.s.Nodes.DeleteNodeAndElement(f.ctx, n.ID), KindNotFound)
}
