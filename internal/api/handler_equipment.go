package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medgas-backend/internal/model"
	"medgas-backend/internal/store"
)

func (h *Handler) ListSources(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	out, err := h.store.Equipment.ListSources(c.Request.Context(), org.ID, optionalQuery(c, "siteId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateSource(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	var in store.SourceInput
	if !bindJSON(c, &in) {
		return
	}
	src, err := h.store.Equipment.CreateSource(c.Request.Context(), org.ID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, src)
}

func (h *Handler) GetSource(c *gin.Context) {
	src, err := h.store.Equipment.GetSource(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}

func (h *Handler) UpdateSource(c *gin.Context) {
	var p store.SourcePatch
	if !bindJSON(c, &p) {
		return
	}
	src, err := h.store.Equipment.UpdateSource(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}

func (h *Handler) DeleteSource(c *gin.Context) {
	if err := h.store.Equipment.DeleteSource(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListValves(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	out, err := h.store.Equipment.ListValves(c.Request.Context(), org.ID, optionalQuery(c, "siteId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateValve(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	var in store.ValveInput
	if !bindJSON(c, &in) {
		return
	}
	v, err := h.store.Equipment.CreateValve(c.Request.Context(), org.ID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetValve(c *gin.Context) {
	v, err := h.store.Equipment.GetValve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdateValve(c *gin.Context) {
	var p store.ValvePatch
	if !bindJSON(c, &p) {
		return
	}
	v, err := h.store.Equipment.UpdateValve(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type valveStateRequest struct {
	State model.ValveState `json:"state" binding:"required,oneof=open closed"`
}

// SetValveState opens or closes a valve.
func (h *Handler) SetValveState(c *gin.Context) {
	var req valveStateRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.store.Equipment.SetValveState(c.Request.Context(), c.Param("id"), req.State)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) DeleteValve(c *gin.Context) {
	if err := h.store.Equipment.DeleteValve(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListFittings(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	out, err := h.store.Equipment.ListFittings(c.Request.Context(), org.ID, optionalQuery(c, "siteId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateFitting(c *gin.Context) {
	org, ok := h.callerOrg(c)
	if !ok {
		return
	}
	var in store.FittingInput
	if !bindJSON(c, &in) {
		return
	}
	f, err := h.store.Equipment.CreateFitting(c.Request.Context(), org.ID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetFitting(c *gin.Context) {
	f, err := h.store.Equipment.GetFitting(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) UpdateFitting(c *gin.Context) {
	var p store.FittingPatch
	if !bindJSON(c, &p) {
		return
	}
	f, err := h.store.Equipment.UpdateFitting(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) DeleteFitting(c *gin.Context) {
	if err := h.store.Equipment.DeleteFitting(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
