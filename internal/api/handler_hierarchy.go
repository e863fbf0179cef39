package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"medgas-backend/internal/export"
	"medgas-backend/internal/store"
)

// GetOrganization returns the caller's organization.
func (h *Handler) GetOrganization(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, org)
}

// EnsureOrganization creates the caller's organization, or returns the existing one.
func (h *Handler) EnsureOrganization(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	org, err := h.store.Hierarchy.CreateOrganization(c.Request.Context(), identityOf(c).TeamID, req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (h *Handler) RenameOrganization(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.store.Hierarchy.RenameOrganization(c.Request.Context(), org.ID, req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteOrganization(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	if err := h.store.Hierarchy.DeleteOrganization(c.Request.Context(), org.ID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListSites(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	sites, err := h.store.Hierarchy.ListSites(c.Request.Context(), org.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sites)
}

func (h *Handler) CreateSite(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	var in store.SiteInput
	if !bindJSON(c, &in) {
		return
	}
	site, err := h.store.Hierarchy.CreateSite(c.Request.Context(), org.ID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, site)
}

func (h *Handler) GetSite(c *gin.Context) {
	site, err := h.store.Hierarchy.GetSite(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, site)
}

func (h *Handler) UpdateSite(c *gin.Context) {
	var p store.SitePatch
	if !bindJSON(c, &p) {
		return
	}
	site, err := h.store.Hierarchy.UpdateSite(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, site)
}

// DeleteSite refuses a site with dependents unless ?force=true.
func (h *Handler) DeleteSite(c *gin.Context) {
	force := false
	if raw := c.Query("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		force = v
	}
	if err := h.store.Hierarchy.DeleteSite(c.Request.Context(), c.Param("id"), force); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetSiteHierarchy(c *gin.Context) {
	tree, err := h.store.Hierarchy.GetSiteWithHierarchy(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (h *Handler) CountDependents(c *gin.Context) {
	counts, err := h.store.Audit.CountDependents(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// ExportRegister downloads the site's equipment register as a workbook.
func (h *Handler) ExportRegister(c *gin.Context) {
	rows, err := h.store.RegisterRows(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	data, err := export.Register(rows)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="register.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *Handler) ListBuildings(c *gin.Context) {
	buildings, err := h.store.Hierarchy.ListBuildings(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildings)
}

func (h *Handler) CreateBuilding(c *gin.Context) {
	var in store.BuildingInput
	if !bindJSON(c, &in) {
		return
	}
	b, err := h.store.Hierarchy.CreateBuilding(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBuilding(c *gin.Context) {
	b, err := h.store.Hierarchy.GetBuilding(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateBuilding(c *gin.Context) {
	var p store.BuildingInput
	if !bindJSON(c, &p) {
		return
	}
	b, err := h.store.Hierarchy.UpdateBuilding(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBuilding(c *gin.Context) {
	if err := h.store.Hierarchy.DeleteBuilding(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListFloors(c *gin.Context) {
	floors, err := h.store.Hierarchy.ListFloors(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, floors)
}

func (h *Handler) CreateFloor(c *gin.Context) {
	var in store.FloorInput
	if !bindJSON(c, &in) {
		return
	}
	f, err := h.store.Hierarchy.CreateFloor(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetFloor(c *gin.Context) {
	f, err := h.store.Hierarchy.GetFloor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) UpdateFloor(c *gin.Context) {
	var p store.FloorPatch
	if !bindJSON(c, &p) {
		return
	}
	f, err := h.store.Hierarchy.UpdateFloor(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) DeleteFloor(c *gin.Context) {
	if err := h.store.Hierarchy.DeleteFloor(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListZones(c *gin.Context) {
	zones, err := h.store.Hierarchy.ListZones(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, zones)
}

func (h *Handler) CreateZone(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	z, err := h.store.Hierarchy.CreateZone(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, z)
}

func (h *Handler) GetZone(c *gin.Context) {
	z, err := h.store.Hierarchy.GetZone(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, z)
}

func (h *Handler) RenameZone(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	z, err := h.store.Hierarchy.RenameZone(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, z)
}

func (h *Handler) DeleteZone(c *gin.Context) {
	if err := h.store.Hierarchy.DeleteZone(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
