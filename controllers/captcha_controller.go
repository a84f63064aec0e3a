package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/orghub/utils"
)

// CaptchaIssuer generates captcha challenges.
type CaptchaIssuer interface {
	Generate() (id string, image string, err error)
}

// CaptchaController hands out captchas that post creation verifies.
type CaptchaController struct {
	issuer CaptchaIssuer
}

// NewCaptchaController creates a new CaptchaController instance.
func NewCaptchaController(issuer CaptchaIssuer) *CaptchaController {
	return &CaptchaController{issuer: issuer}
}

// Captcha returns a new challenge. Clients answer with the token "<captcha_id>:<answer>".
func (c *CaptchaController) Captcha(ctx *gin.Context) {
	id, image, err := c.issuer.Generate()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to generate captcha")
		return
	}
	utils.Success(ctx, gin.H{"captcha_id": id, "image": image})
}
