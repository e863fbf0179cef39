package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"medgas-backend/internal/model"
	"medgas-backend/internal/store"
)

// ListNodes lists the nodes of a site, optionally narrowed by ?buildingId, ?floorId and ?nodeType.
func (h *Handler) ListNodes(c *gin.Context) {
	f := store.NodeFilter{
		BuildingID: optionalQuery(c, "buildingId"),
		FloorID:    optionalQuery(c, "floorId"),
	}
	if raw := c.Query("nodeType"); raw != "" {
		t := model.NodeType(raw)
		f.NodeType = &t
	}
	nodes, err := h.store.Nodes.ListNodesBySite(c.Request.Context(), c.Param("id"), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nodes)
}

func (h *Handler) CreateNode(c *gin.Context) {
	var in store.NodeInput
	if !bindJSON(c, &in) {
		return
	}
	n, err := h.store.Nodes.CreateNode(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h *Handler) GetNode(c *gin.Context) {
	n, err := h.store.Nodes.GetNode(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) UpdateNode(c *gin.Context) {
	var p store.NodePatch
	if !bindJSON(c, &p) {
		return
	}
	n, err := h.store.Nodes.UpdateNode(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// DeleteNode removes a node; with ?withElement=true the wrapped element goes too.
func (h *Handler) DeleteNode(c *gin.Context) {
	withElement := false
	if raw := c.Query("withElement"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		withElement = v
	}
	var err error
	if withElement {
		err = h.store.Nodes.DeleteNodeAndElement(c.Request.Context(), c.Param("id"))
	} else {
		err = h.store.Nodes.DeleteNode(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListNodePositions(c *gin.Context) {
	positions, err := h.store.Placement.ListByNode(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (h *Handler) ListConnections(c *gin.Context) {
	conns, err := h.store.Nodes.ListConnections(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conns)
}

func (h *Handler) CreateConnection(c *gin.Context) {
	var in store.ConnectionInput
	if !bindJSON(c, &in) {
		return
	}
	conn, err := h.store.Nodes.CreateConnection(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conn)
}

func (h *Handler) GetConnection(c *gin.Context) {
	conn, err := h.store.Nodes.GetConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func (h *Handler) UpdateConnection(c *gin.Context) {
	var p store.ConnectionPatch
	if !bindJSON(c, &p) {
		return
	}
	conn, err := h.store.Nodes.UpdateConnection(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func (h *Handler) DeleteConnection(c *gin.Context) {
	if err := h.store.Nodes.DeleteConnection(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
