package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medgas-backend/internal/store"
)

func (h *Handler) ListLayouts(c *gin.Context) {
	layouts, err := h.store.Layouts.ListLayouts(c.Request.Context(), c.Param("id"), optionalQuery(c, "floorId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, layouts)
}

func (h *Handler) CreateLayout(c *gin.Context) {
	var in store.LayoutInput
	if !bindJSON(c, &in) {
		return
	}
	l, err := h.store.Layouts.CreateLayout(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLayout(c *gin.Context) {
	l, err := h.store.Layouts.GetLayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *Handler) RenameLayout(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.store.Layouts.RenameLayout(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteLayout(c *gin.Context) {
	if err := h.store.Layouts.DeleteLayout(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetLayoutView returns everything needed to draw a layout.
func (h *Handler) GetLayoutView(c *gin.Context) {
	view, err := h.store.LayoutView(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ListLayoutConnections(c *gin.Context) {
	conns, err := h.store.Nodes.ListConnectionsForLayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conns)
}

func (h *Handler) ListPositions(c *gin.Context) {
	positions, err := h.store.Placement.ListByLayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (h *Handler) GetPosition(c *gin.Context) {
	p, err := h.store.Placement.GetPosition(c.Request.Context(), c.Param("node_id"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpsertPosition places a node on the layout or moves it.
func (h *Handler) UpsertPosition(c *gin.Context) {
	var in store.PositionInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.store.Placement.UpsertPosition(c.Request.Context(), c.Param("node_id"), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePosition(c *gin.Context) {
	if err := h.store.Placement.DeletePosition(c.Request.Context(), c.Param("node_id"), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearPositions(c *gin.Context) {
	n, err := h.store.Placement.DeleteAllForLayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

type importRequest struct {
	NodeIDs []string `json:"nodeIds" binding:"required"`
}

// ImportNodes places existing site nodes on the layout in a grid, reporting each item.
func (h *Handler) ImportNodes(c *gin.Context) {
	var req importRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.store.Placement.BulkImport(c.Request.Context(), c.Param("id"), req.NodeIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListAnnotations(c *gin.Context) {
	out, err := h.store.Layouts.ListAnnotations(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateAnnotation(c *gin.Context) {
	var in store.AnnotationInput
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.store.Layouts.CreateAnnotation(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// SaveAnnotations upserts a batch; rejected items are reported, not fatal.
func (h *Handler) SaveAnnotations(c *gin.Context) {
	var items []store.AnnotationInput
	if !bindJSON(c, &items) {
		return
	}
	batch, err := h.store.Layouts.BulkUpsertAnnotations(c.Request.Context(), c.Param("id"), items)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *Handler) GetAnnotation(c *gin.Context) {
	a, err := h.store.Layouts.GetAnnotation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAnnotation(c *gin.Context) {
	var in store.AnnotationInput
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.store.Layouts.UpdateAnnotation(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAnnotation(c *gin.Context) {
	if err := h.store.Layouts.DeleteAnnotation(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
