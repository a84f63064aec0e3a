package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/orghub/services"
	"github.com/cppla/orghub/utils"
)

// UploadController stages attachments before a post references them.
type UploadController struct {
	staging *services.Staging
	logger  *zap.Logger
}

// NewUploadController creates a new UploadController instance.
func NewUploadController(staging *services.Staging, logger *zap.Logger) *UploadController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadController{staging: staging, logger: logger}
}

// Upload stores a multipart file and returns its upload id.
func (u *UploadController) Upload(ctx *gin.Context) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}

	// Accept common field name 'file' or fallback to 'f'
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		file, header, err = ctx.Request.FormFile("f")
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40030, "no file uploaded")
			return
		}
	}
	defer file.Close()

	st, err := u.staging.Save(ctx.Request.Context(), account.ID, header.Filename, file)
	if err != nil {
		if de, ok := services.AsDomainError(err); ok {
			utils.Error(ctx, services.HTTPStatus(de.Code), 40032, de.Message)
			return
		}
		u.logger.Error("stage upload failed", zap.String("account", account.ID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50030, genericFailure)
		return
	}
	utils.Created(ctx, gin.H{
		"id":        st.ID,
		"filename":  st.Filename,
		"size":      st.Size,
		"expire_at": st.ExpireAt,
	})
}
