package store

import (
	"database/sql/driver"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"medgas-backend/internal/model"
	"medgas-backend/internal/parse"
)

// Any matches any argument.
type Any struct{}

func (a Any) Match(v driver.Value) bool {
	return true
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestUpsertRow_PostgresStatement(t *testing.T) {
	testCases := []struct {
		name         string
		withRotation bool
		set          string
	}{
		{
			name: "rotation kept",
			set:  `"x_position"="excluded"."x_position","y_position"="excluded"."y_position","updated_at"="excluded"."updated_at"$`,
		},
		{
			name:         "rotation overwritten",
			withRotation: true,
			set:          `"x_position"="excluded"."x_position","y_position"="excluded"."y_position","updated_at"="excluded"."updated_at","rotation"="excluded"."rotation"$`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectBegin()
			mock.ExpectExec(`INSERT INTO "node_positions" .* ON CONFLICT \("node_id","layout_id"\) DO UPDATE SET `+tc.set).
				WithArgs("n1", "l1", "10.5", "20", "90", Any{}, Any{}).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			row := model.NodePosition{NodeID: "n1", LayoutID: "l1", XPosition: "10.5", YPosition: "20", Rotation: "90"}
			require.NoError(t, upsertRow(db, &row, tc.withRotation))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpsertPosition_ReadYourWrite(t *testing.T) {
	f := newFixture(t)
	n := f.node(f.site.ID, model.Location{})
	l := f.layout(f.site.ID)
	rot := 45.0

	pos, err := f.s.Placement.UpsertPosition(f.ctx, n.ID, l.ID, at(120.25, 80.5).rotated(rot))
	require.NoError(t, err)
	assert.Equal(t, "120.25", pos.XPosition)
	assert.Equal(t, "80.5", pos.YPosition)
	assert.Equal(t, "45", pos.Rotation)

	// Moving without a rotation keeps the stored one.
	pos, err = f.s.Placement.UpsertPosition(f.ctx, n.ID, l.ID, at(300, 310))
	require.NoError(t, err)
	got, err := f.s.Placement.GetPosition(f.ctx, n.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.XPosition, got.XPosition)
	assert.Equal(t, "300", got.XPosition)
	assert.Equal(t, "310", got.YPosition)
	assert.Equal(t, "45", got.Rotation)
	assert.Equal(t, int64(1), f.count(&model.NodePosition{}, "node_id = ? AND layout_id = ?", n.ID, l.ID))

	fresh := f.node(f.site.ID, model.Location{})
	pos, err = f.s.Placement.UpsertPosition(f.ctx, fresh.ID, l.ID, at(1, 2))
	require.NoError(t, err)
	assert.Equal(t, "0", pos.Rotation)
}

func TestUpsertPosition_Errors(t *testing.T) {
	f := newFixture(t)
	n := f.node(f.site.ID, model.Location{})
	l := f.layout(f.site.ID)
	remote := f.layout(f.newSite("Remote").ID)
	over, negative, ninety := 360.5, -1.0, 90.0

	testCases := []struct {
		name     string
		nodeID   string
		layoutID string
		in       PositionInput
		wantErr  Kind
	}{
		{name: "rotation above 360", nodeID: n.ID, layoutID: l.ID, in: at(1, 1).rotated(over), wantErr: KindValidation},
		{name: "negative rotation", nodeID: n.ID, layoutID: l.ID, in: at(1, 1).rotated(negative), wantErr: KindValidation},
		{name: "no coordinates", nodeID: n.ID, layoutID: l.ID, in: PositionInput{Rotation: &ninety}, wantErr: KindValidation},
		{name: "x beyond column range", nodeID: n.ID, layoutID: l.ID, in: at(1e40, 0), wantErr: KindValidation},
		{name: "y not finite", nodeID: n.ID, layoutID: l.ID, in: at(0, math.Inf(-1)), wantErr: KindValidation},
		{name: "missing node", nodeID: "missing", layoutID: l.ID, in: at(1, 1), wantErr: KindNotFound},
		{name: "missing layout", nodeID: n.ID, layoutID: "missing", in: at(1, 1), wantErr: KindNotFound},
		{name: "layout of another site", nodeID: n.ID, layoutID: remote.ID, in: at(1, 1), wantErr: KindReference},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.s.Placement.UpsertPosition(f.ctx, tc.nodeID, tc.layoutID, tc.in)
			assertKind(t, err, tc.wantErr)
		})
	}

	_, err := f.s.Placement.GetPosition(f.ctx, n.ID, l.ID)
	assertKind(t, err, KindNotFound)
}

func TestUpsertPosition_ConcurrentCallersLeaveOneRow(t *testing.T) {
	f := newFixture(t)
	n := f.node(f.site.ID, model.Location{})
	l := f.layout(f.site.ID)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.s.Placement.UpsertPosition(f.ctx, n.ID, l.ID, at(float64(i), float64(i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, int64(1), f.count(&model.NodePosition{}, "node_id = ? AND layout_id = ?", n.ID, l.ID))
	positions, err := f.s.Placement.ListByLayout(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestGridCell(t *testing.T) {
	testCases := []struct {
		i, n int
		x, y float64
	}{
		{i: 0, n: 1, x: 100, y: 100},
		{i: 1, n: 2, x: 250, y: 100},
		{i: 2, n: 4, x: 100, y: 250},
		{i: 4, n: 5, x: 250, y: 250},
		{i: 8, n: 9, x: 400, y: 400},
		{i: 9, n: 10, x: 250, y: 400},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d of %d", tc.i, tc.n), func(t *testing.T) {
			x, y := gridCell(tc.i, tc.n)
			assert.Equal(t, tc.x, x)
			assert.Equal(t, tc.y, y)
		})
	}
}

func TestBulkImport_Grid(t *testing.T) {
	f := newFixture(t)
	l := f.layout(f.site.ID)
	var ids []string
	for i := 0; i < 7; i++ {
		ids = append(ids, f.node(f.site.ID, model.Location{}).ID)
	}

	res, err := f.s.Placement.BulkImport(f.ctx, l.ID, ids)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Imported)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Items, 7)

	cells := map[[2]float64]string{}
	columns := map[float64]bool{}
	for i, item := range res.Items {
		assert.Equal(t, ids[i], item.NodeID)
		assert.Equal(t, ImportImported, item.Status)
		cell := [2]float64{*item.X, *item.Y}
		_, taken := cells[cell]
		assert.False(t, taken, "cell %v assigned twice", cell)
		cells[cell] = item.NodeID
		columns[*item.X] = true
	}
	assert.Len(t, columns, 3)

	stored, err := f.s.Placement.GetPosition(f.ctx, ids[6], l.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", stored.XPosition)
	assert.Equal(t, "400", stored.YPosition)
}

func TestBulkImport_SkipsWithoutAffectingOthers(t *testing.T) {
	f := newFixture(t)
	l := f.layout(f.site.ID)
	placed := f.node(f.site.ID, model.Location{})
	fresh := f.node(f.site.ID, model.Location{})
	remote := f.node(f.newSite("Remote").ID, model.Location{})
	_, err := f.s.Placement.UpsertPosition(f.ctx, placed.ID, l.ID, at(5, 5))
	require.NoError(t, err)

	res, err := f.s.Placement.BulkImport(f.ctx, l.ID, []string{fresh.ID, placed.ID, "missing", remote.ID, fresh.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 4, res.Skipped)

	want := []struct {
		status ImportStatus
		reason string
	}{
		{ImportImported, ""},
		{ImportSkipped, ReasonAlreadyPlaced},
		{ImportSkipped, ReasonNotFound},
		{ImportSkipped, ReasonSiteMismatch},
		{ImportSkipped, ReasonAlreadyPlaced},
	}
	for i, w := range want {
		assert.Equal(t, w.status, res.Items[i].Status, "item %d", i)
		assert.Equal(t, w.reason, res.Items[i].Reason, "item %d", i)
	}

	kept, err := f.s.Placement.GetPosition(f.ctx, placed.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "5", kept.XPosition)
	assert.Equal(t, "5", kept.YPosition)
	assert.Equal(t, int64(2), f.count(&model.NodePosition{}, "layout_id = ?", l.ID))

	_, err = f.s.Placement.BulkImport(f.ctx, "missing", []string{fresh.ID})
	assertKind(t, err, KindNotFound)

	empty, err := f.s.Placement.BulkImport(f.ctx, l.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
}

func TestDeletePosition(t *testing.T) {
	f := newFixture(t)
	n := f.node(f.site.ID, model.Location{})
	l1, l2 := f.layout(f.site.ID), f.layout(f.site.ID)
	for _, l := range []*model.Layout{l1, l2} {
		_, err := f.s.Placement.UpsertPosition(f.ctx, n.ID, l.ID, at(1, 1))
		require.NoError(t, err)
	}

	require.NoError(t, f.s.Placement.DeletePosition(f.ctx, n.ID, l1.ID))
	assertKind(t, f.s.Placement.DeletePosition(f.ctx, n.ID, l1.ID), KindNotFound)

	byNode, err := f.s.Placement.ListByNode(f.ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, byNode, 1)
	assert.Equal(t, l2.ID, byNode[0].LayoutID)
	assert.Equal(t, int64(1), f.count(&model.Node{}, "id = ?", n.ID))

	removed, err := f.s.Placement.DeleteAllForLayout(f.ctx, l2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, int64(1), f.count(&model.Node{}, "id = ?", n.ID))
}

func TestDedupePositions(t *testing.T) {
	now := time.Now()
	rows := []model.NodePosition{
		{NodeID: "n1", LayoutID: "l1", XPosition: "9", UpdatedAt: now},
		{NodeID: "n2", LayoutID: "l1", XPosition: "5", UpdatedAt: now},
		{NodeID: "n1", LayoutID: "l1", XPosition: "1", UpdatedAt: now.Add(-time.Minute)},
		{NodeID: "n1", LayoutID: "l2", XPosition: "3", UpdatedAt: now.Add(-time.Minute)},
	}
	out := dedupePositions(rows)
	require.Len(t, out, 3)
	assert.Equal(t, "9", out[0].XPosition)
	assert.Equal(t, "n2", out[1].NodeID)
	assert.Equal(t, "l2", out[2].LayoutID)
}

func TestPositionCoordinates_RoundTrip(t *testing.T) {
	f := newFixture(t)
	n := f.node(f.site.ID, model.Location{})
	l := f.layout(f.site.ID)

	for _, in := range []PositionInput{at(12.34, 56.78), at(0.1+0.2, -7.005), at(1e6+0.01, 359.99), at(-1e9, 1e9)} {
		pos, err := f.s.Placement.UpsertPosition(f.ctx, n.ID, l.ID, in)
		require.NoError(t, err)
		x, err := parse.Decimal(pos.XPosition)
		require.NoError(t, err)
		y, err := parse.Decimal(pos.YPosition)
		require.NoError(t, err)
		assert.InDelta(t, *in.X, x, 0.005)
		assert.InDelta(t, *in.Y, y, 0.005)
	}
}

// deleteNodeOnCreate registers a create hook that removes the node, its positions
// and its connections right before the next insert into table, the way a DeleteNode
// committing between the existence check and the write would.
func deleteNodeOnCreate(t *testing.T, db *gorm.DB, table, nodeID string) {
	t.Helper()
	name := "test:delete_node_" + table
	var once sync.Once
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		once.Do(func() {
			s := tx.Session(&gorm.Session{NewDB: true})
			s.Where("node_id = ?", nodeID).Delete(&model.NodePosition{})
			s.Where("from_node_id = ? OR to_node_id = ?", nodeID, nodeID).Delete(&model.Connection{})
			s.Where("id = ?", nodeID).Delete(&model.Node{})
		})
	}))
	t.Cleanup(func() {
		_ = db.Callback().Create().Remove(name)
	})
}

func TestUpsertPosition_NodeDeletedBeforeInsert(t *testing.T) {
	f := newFixture(t)
	n := f.node(f.site.ID, model.Location{})
	l := f.layout(f.site.ID)
	deleteNodeOnCreate(t, f.db, "node_positions", n.ID)

	_, err := f.s.Placement.UpsertPosition(f.ctx, n.ID, l.ID, at(10, 20))
	assertKind(t, err, KindReference)
	assert.Zero(t, f.count(&model.NodePosition{}, "node_id = ?", n.ID))
}

func TestBulkImport_NodeDeletedBeforeInsert(t *testing.T) {
	f := newFixture(t)
	l := f.layout(f.site.ID)
	doomed := f.node(f.site.ID, model.Location{})
	kept := f.node(f.site.ID, model.Location{})
	deleteNodeOnCreate(t, f.db, "node_positions", doomed.ID)

	res, err := f.s.Placement.BulkImport(f.ctx, l.ID, []string{doomed.ID, kept.ID})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, ImportSkipped, res.Items[0].Status)
	assert.Equal(t, ReasonNotFound, res.Items[0].Reason)
	assert.Equal(t, ImportImported, res.Items[1].Status)
	assert.Zero(t, f.count(&model.NodePosition{}, "node_id = ?", doomed.ID))
	assert.Equal(t, int64(1), f.count(&model.NodePosition{}, "node_id = ?", kept.ID))
}

func TestPositions_RestrictNodeDelete(t *testing.T) {
	f := newFixture(t)
	n := f.node(f.site.ID, model.Location{})
	l := f.layout(f.site.ID)
	_, err := f.s.Placement.UpsertPosition(f.ctx, n.ID, l.ID, at(1, 1))
	require.NoError(t, err)

	err = f.db.Where("id = ?", n.ID).Delete(&model.Node{}).Error
	assertKind(t, classify(err, EntityNode, n.ID), KindReference)
	assert.Equal(t, int64(1), f.count(&model.Node{}, "id = ?", n.ID))

	require.NoError(t, f.s.Nodes.DeleteNode(f.ctx, n.ID))
	assert.Zero(t, f.count(&model.NodePosition{}, "node_id = ?", n.ID))
}
