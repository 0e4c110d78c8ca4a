package api

import (
	"net/http"

	"cert-checker/internal/domain"
	"cert-checker/internal/service"

	"github.com/gin-gonic/gin"
)

type CheckHandler struct {
	Checker *service.CheckerService
}

func NewCheckHandler(checker *service.CheckerService) *CheckHandler {
	return &CheckHandler{Checker: checker}
}

// Home godoc
// @Summary Liveness message
// @Router / [get]
func (h *CheckHandler) Home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "SSL Checker API is ready. POST to /check"})
}

func (h *CheckHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Check godoc
// @Summary Probe the certificates of a list of domains
// @Accept json
// @Produce json
// @Param body body domain.CheckRequest true "domains to check"
// @Success 200 {array} domain.CertificateCheckResult
// @Router /check [post]
func (h *CheckHandler) Check(c *gin.Context) {
	var req domain.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.Checker.CheckAll(req.Domains))
}
