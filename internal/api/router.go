package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"medgas-backend/config"
	"medgas-backend/internal/mw"
	"medgas-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s *store.Store, cfg config.ServerConfig, log *zap.Logger, metrics *mw.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.AccessLog(log), metrics.Middleware())

	handler := NewHandler(s, log)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, mw.HeaderOrIP(cfg.UserHeader))

	// Hierarchy and equipment reads may be cached; placement, graph, annotation
	// and media reads always hit the database.
	invalidate, cached := gin.HandlerFunc(mw.Passthrough), gin.HandlerFunc(mw.Passthrough)
	if cfg.ResponseCache {
		ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
		rc := mw.NewResponseCache(cache.New(ttl, 2*ttl), ttl, cfg.TeamHeader)
		invalidate, cached = rc.Invalidate(), rc.Cached()
		log.Info("response cache enabled", zap.Duration("ttl", ttl))
	}

	identity := RequireIdentity(HeaderIdentity{TeamHeader: cfg.TeamHeader, UserHeader: cfg.UserHeader})

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.Use(rateLimiter, identity, invalidate)
	{
		api.GET("/organization", cached, handler.GetOrganization)
		api.POST("/organization", handler.EnsureOrganization)
		api.PATCH("/organization", handler.RenameOrganization)
		api.DELETE("/organization", handler.DeleteOrganization)

		api.GET("/sites", cached, handler.ListSites)
		api.POST("/sites", handler.CreateSite)

		sites := api.Group("/sites/:id", handler.owns(store.EntitySite, "id"))
		{
			sites.GET("", cached, handler.GetSite)
			sites.PATCH("", handler.UpdateSite)
			sites.DELETE("", handler.DeleteSite)
			sites.GET("/hierarchy", cached, handler.GetSiteHierarchy)
			sites.GET("/dependents", handler.CountDependents)
			sites.GET("/register.xlsx", handler.ExportRegister)
			sites.GET("/buildings", cached, handler.ListBuildings)
			sites.POST("/buildings", handler.CreateBuilding)
			sites.GET("/nodes", handler.ListNodes)
			sites.POST("/nodes", handler.CreateNode)
			sites.GET("/connections", handler.ListConnections)
			sites.POST("/connections", handler.CreateConnection)
			sites.GET("/layouts", handler.ListLayouts)
			sites.POST("/layouts", handler.CreateLayout)
			sites.POST("/media", handler.UploadMedia)
		}

		buildings := api.Group("/buildings/:id", handler.owns(store.EntityBuilding, "id"))
		{
			buildings.GET("", cached, handler.GetBuilding)
			buildings.PATCH("", handler.UpdateBuilding)
			buildings.DELETE("", handler.DeleteBuilding)
			buildings.GET("/floors", cached, handler.ListFloors)
			buildings.POST("/floors", handler.CreateFloor)
		}

		floors := api.Group("/floors/:id", handler.owns(store.EntityFloor, "id"))
		{
			floors.GET("", cached, handler.GetFloor)
			floors.PATCH("", handler.UpdateFloor)
			floors.DELETE("", handler.DeleteFloor)
			floors.GET("/zones", cached, handler.ListZones)
			floors.POST("/zones", handler.CreateZone)
		}

		zones := api.Group("/zones/:id", handler.owns(store.EntityZone, "id"))
		{
			zones.GET("", cached, handler.GetZone)
			zones.PATCH("", handler.RenameZone)
			zones.DELETE("", handler.DeleteZone)
		}

		api.GET("/sources", cached, handler.ListSources)
		api.POST("/sources", handler.CreateSource)
		sources := api.Group("/sources/:id", handler.owns(store.EntitySource, "id"))
		{
			sources.GET("", cached, handler.GetSource)
			sources.PATCH("", handler.UpdateSource)
			sources.DELETE("", handler.DeleteSource)
		}

		api.GET("/valves", cached, handler.ListValves)
		api.POST("/valves", handler.CreateValve)
		valves := api.Group("/valves/:id", handler.owns(store.EntityValve, "id"))
		{
			valves.GET("", cached, handler.GetValve)
			valves.PATCH("", handler.UpdateValve)
			valves.PUT("/state", handler.SetValveState)
			valves.DELETE("", handler.DeleteValve)
		}

		api.GET("/fittings", cached, handler.ListFittings)
		api.POST("/fittings", handler.CreateFitting)
		fittings := api.Group("/fittings/:id", handler.owns(store.EntityFitting, "id"))
		{
			fittings.GET("", cached, handler.GetFitting)
			fittings.PATCH("", handler.UpdateFitting)
			fittings.DELETE("", handler.DeleteFitting)
		}

		nodes := api.Group("/nodes/:id", handler.owns(store.EntityNode, "id"))
		{
			nodes.GET("", handler.GetNode)
			nodes.PATCH("", handler.UpdateNode)
			nodes.DELETE("", handler.DeleteNode)
			nodes.GET("/positions", handler.ListNodePositions)
		}

		connections := api.Group("/connections/:id", handler.owns(store.EntityConnection, "id"))
		{
			connections.GET("", handler.GetConnection)
			connections.PATCH("", handler.UpdateConnection)
			connections.DELETE("", handler.DeleteConnection)
		}

		layouts := api.Group("/layouts/:id", handler.owns(store.EntityLayout, "id"))
		{
			layouts.GET("", handler.GetLayout)
			layouts.PATCH("", handler.RenameLayout)
			layouts.DELETE("", handler.DeleteLayout)
			layouts.GET("/view", handler.GetLayoutView)
			layouts.GET("/connections", handler.ListLayoutConnections)
			layouts.GET("/positions", handler.ListPositions)
			layouts.DELETE("/positions", handler.ClearPositions)
			layouts.GET("/positions/:node_id", handler.GetPosition)
			layouts.PUT("/positions/:node_id", handler.UpsertPosition)
			layouts.DELETE("/positions/:node_id", handler.DeletePosition)
			layouts.POST("/import", handler.ImportNodes)
			layouts.GET("/annotations", handler.ListAnnotations)
			layouts.POST("/annotations", handler.CreateAnnotation)
			layouts.PUT("/annotations", handler.SaveAnnotations)
		}

		annotations := api.Group("/annotations/:id", handler.owns(store.EntityAnnotation, "id"))
		{
			annotations.GET("", handler.GetAnnotation)
			annotations.PUT("", handler.UpdateAnnotation)
			annotations.DELETE("", handler.DeleteAnnotation)
		}

		api.GET("/media", handler.ListMedia)
		media := api.Group("/media/:id", handler.owns(store.EntityMedia, "id"))
		{
			media.GET("", handler.GetMedia)
			media.GET("/url", handler.MediaURL)
			media.GET("/content", handler.MediaContent)
			media.DELETE("", handler.DeleteMedia)
		}
	}

	return r
}
