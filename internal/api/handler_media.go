package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"medgas-backend/internal/model"
	"medgas-backend/internal/store"
)

const maxUploadBytes = 32 << 20

// UploadMedia accepts a multipart form with file, elementType and elementId.
func (h *Handler) UploadMedia(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Errorf("file: %w", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	in := store.UploadInput{
		ElementType: model.NodeType(c.PostForm("elementType")),
		ElementID:   c.PostForm("elementId"),
		FileName:    fh.Filename,
		MimeType:    fh.Header.Get("Content-Type"),
	}
	m, err := h.store.Media.UploadMedia(c.Request.Context(), c.Param("id"), in, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ListMedia lists the files of one element: ?elementType=&elementId=.
func (h *Handler) ListMedia(c *gin.Context) {
	kind, id := c.Query("elementType"), c.Query("elementId")
	if kind == "" || id == "" {
		badRequest(c, fmt.Errorf("elementType and elementId are required"))
		return
	}
	if !h.authorize(c, kind, id) {
		return
	}
	out, err := h.store.Media.ListMedia(c.Request.Context(), model.NodeType(kind), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetMedia(c *gin.Context) {
	m, err := h.store.Media.GetMedia(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// MediaURL returns a short-lived download link.
func (h *Handler) MediaURL(c *gin.Context) {
	url, err := h.store.Media.MediaURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// MediaContent streams the stored bytes.
func (h *Handler) MediaContent(c *gin.Context) {
	m, rc, err := h.store.Media.OpenMedia(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, m.SizeBytes, m.MimeType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", m.FileName),
	})
}

func (h *Handler) DeleteMedia(c *gin.Context) {
	if err := h.store.Media.DeleteMedia(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
