package handlers

import (
	"net/http"

	"campus-marketplace/internal/storage"
	"campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UploadHandler struct {
	logger *zap.Logger
	store  storage.Store
}

func NewUploadHandler(store storage.Store, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{logger: logger, store: store}
}

// UploadImage handles POST /api/v1/uploads/images
// @Summary      Upload a listing image
// @Description  Stores one image (jpeg, png, gif or webp) and returns the reference to put in a listing's `images`. The type is detected from the bytes, not the file name.
// @Tags         uploads
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "Image file"
// @Success      201   {object}  storage.Image
// @Failure      400   {object}  errors.StandardError  "Missing file, unsupported type or too large"
// @Failure      503   {object}  errors.StandardError  "Object storage unavailable"
// @Router       /uploads/images [post]
func (h *UploadHandler) UploadImage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		abort(c, errors.NewValidationError("file is required", "file"))
		return
	}
	file, err := header.Open()
	if err != nil {
		abort(c, errors.NewInvalidRequest("could not read upload", err.Error()))
		return
	}
	defer file.Close()

	image, err := h.store.Put(c.Request.Context(), file)
	if err != nil {
		abort(c, err)
		return
	}
	h.logger.Info("Image uploaded",
		zap.String("user_id", userID.String()),
		zap.String("ref", image.Ref),
		zap.Int64("size", image.Size))
	c.JSON(http.StatusCreated, image)
}

// PresignUpload handles POST /api/v1/uploads/presign
// @Summary      Presign a direct upload
// @Description  Returns a short-lived URL the client can PUT the image to. Only available with the s3 storage backend.
// @Tags         uploads
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      PresignRequest  true  "Content type of the upload"
// @Success      200      {object}  storage.PresignedUpload
// @Failure      400      {object}  errors.StandardError  "Unsupported type or backend"
// @Router       /uploads/presign [post]
func (h *UploadHandler) PresignUpload(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	var req PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.NewInvalidRequest("invalid request", err.Error()))
		return
	}
	upload, err := h.store.Presign(c.Request.Context(), req.ContentType)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, upload)
}
