package filehandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chathub/internal/blob"
)

type Handler struct {
	blobs *blob.Store
}

func New(blobs *blob.Store) *Handler { return &Handler{blobs: blobs} }

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/upload", h.upload)
	r.GET("/files/:name", h.download)
}

// @Summary		Upload a file
// @Description	Stores the uploaded file and returns its blob name, which the client then announces in a chat "file" frame.
// @Tags			Files
// @Accept			multipart/form-data
// @Param			file	formData	file	true	"File to upload"
// @Success		200		{object}	map[string]string
// @Router			/upload [post]
func (h *Handler) upload(ginCtx *gin.Context) {
	fh, err := ginCtx.FormFile("file")
	if err != nil {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	src, err := fh.Open()
	if err != nil {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	name, err := h.blobs.Save(fh.Filename, src)
	if err != nil {
		zap.L().Error("file.upload", zap.Error(err))
		ginCtx.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	ginCtx.JSON(http.StatusOK, gin.H{"fileName": name})
}

// @Summary		Download a file
// @Tags			Files
// @Param			name	path	string	true	"Blob name"
// @Success		200
// @Failure		404
// @Router			/files/{name} [get]
func (h *Handler) download(ginCtx *gin.Context) {
	path, err := h.blobs.Path(ginCtx.Param("name"))
	if err != nil {
		if errors.Is(err, blob.ErrBadName) {
			ginCtx.Status(http.StatusBadRequest)
			return
		}
		ginCtx.Status(http.StatusNotFound)
		return
	}
	ginCtx.File(path)
}
