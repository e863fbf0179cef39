package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medgas-backend/config"
	"medgas-backend/internal/billing"
	"medgas-backend/internal/blob"
	"medgas-backend/internal/blobgc"
	"medgas-backend/internal/db"
	"medgas-backend/internal/export"
	"medgas-backend/internal/model"
	"medgas-backend/internal/store"
)

// TestSiteLifecycle wires the store to a webhook billing emitter and the blob reaper pool,
// builds a small network, exports it, and force-deletes the site.
func TestSiteLifecycle(t *testing.T) {
	// --- Test Setup ---
	testDB, err := gorm.Open(sqlite.Open(db.SQLiteDSN(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	var (
		mu     sync.Mutex
		events []map[string]any
	)
	billingServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		events = append(events, body)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer billingServer.Close()

	emitter, err := billing.Open(config.BillingConfig{
		Driver:  "webhook",
		Webhook: config.WebhookConfig{URL: billingServer.URL, TimeoutSeconds: 2},
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	blobs := blob.NewMemory()
	reaper := blobgc.NewPool(2, blobs, zap.NewNop())
	reaper.Start(ctx)

	s := store.New(testDB, store.Options{Blobs: blobs, Reaper: reaper, Billing: emitter})

	// --- Build a network ---
	org, err := s.Hierarchy.CreateOrganization(ctx, "team-icu", "Regional Health")
	require.NoError(t, err)
	site, err := s.Hierarchy.CreateSite(ctx, org.ID, store.SiteInput{Name: "General Hospital"})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, events, 1)
	assert.Equal(t, billing.EventSiteCreated, events[0]["type"])
	mu.Unlock()

	b, err := s.Hierarchy.CreateBuilding(ctx, site.ID, store.BuildingInput{Name: "Main"})
	require.NoError(t, err)
	fl, err := s.Hierarchy.CreateFloor(ctx, b.ID, store.FloorInput{Name: "3F"})
	require.NoError(t, err)
	assert.Equal(t, 3, fl.FloorNumber)

	src, err := s.Equipment.CreateSource(ctx, org.ID, store.SourceInput{Name: "LOX tank", GasType: model.GasOxygen, SourceType: "bulk_tank"})
	require.NoError(t, err)
	out, err := s.Equipment.CreateFitting(ctx, org.ID, store.FittingInput{Name: "Bed 4 O2", GasType: model.GasOxygen, FittingType: "outlet"})
	require.NoError(t, err)

	nSrc, err := s.Nodes.CreateNode(ctx, site.ID, store.NodeInput{NodeType: model.NodeSource, ElementID: src.ID})
	require.NoError(t, err)
	nOut, err := s.Nodes.CreateNode(ctx, site.ID, store.NodeInput{NodeType: model.NodeFitting, ElementID: out.ID, Location: model.AtFloor(fl.ID)})
	require.NoError(t, err)
	_, err = s.Nodes.CreateConnection(ctx, site.ID, store.ConnectionInput{FromNodeID: nSrc.ID, ToNodeID: nOut.ID, GasType: model.GasOxygen})
	require.NoError(t, err)

	layout, err := s.Layouts.CreateLayout(ctx, site.ID, store.LayoutInput{Name: "Oxygen riser", LayoutType: model.LayoutSite})
	require.NoError(t, err)
	res, err := s.Placement.BulkImport(ctx, layout.ID, []string{nSrc.ID, nOut.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)

	_, err = s.Media.UploadMedia(ctx, site.ID, store.UploadInput{ElementType: model.NodeSource, ElementID: src.ID, FileName: "tank.pdf"}, strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, 1, blobs.Len())

	// --- Export ---
	rows, err := s.RegisterRows(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	xlsx, err := export.Register(rows)
	require.NoError(t, err)
	assert.NotEmpty(t, xlsx)

	// --- Force delete ---
	counts, err := s.Audit.CountDependents(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), counts.Total)

	require.NoError(t, s.Hierarchy.DeleteSite(ctx, site.ID, true))

	var remaining int64
	require.NoError(t, testDB.Model(&model.Node{}).Where("site_id = ?", site.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
	require.NoError(t, testDB.Model(&model.NodePosition{}).Where("layout_id = ?", layout.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	// org-level equipment outlives the site; its media rows went with the site
	_, err = s.Equipment.GetSource(ctx, src.ID)
	assert.NoError(t, err)
	assert.Eventually(t, func() bool { return blobs.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
