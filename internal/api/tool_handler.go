package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cert-checker/internal/service"

	"github.com/gin-gonic/gin"
)

type ToolHandler struct {
	Inspector *service.InspectorService
}

func NewToolHandler(inspector *service.InspectorService) *ToolHandler {
	return &ToolHandler{Inspector: inspector}
}

// DecodeCertificate godoc
// @Summary Decode pasted PEM certificates
// @Accept json
// @Produce json
// @Router /api/v1/tools/decode-cert [post]
func (h *ToolHandler) DecodeCertificate(c *gin.Context) {
	var req struct {
		CertContent string `json:"cert_content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	certs, err := h.Inspector.DecodePEM([]byte(strings.TrimSpace(req.CertContent)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot decode certificate (expected PEM starting with -----BEGIN CERTIFICATE-----): " + err.Error()})
		return
	}

	// first block keeps the single-certificate shape, the chain rides along
	c.JSON(http.StatusOK, gin.H{"data": certs[0], "chain": certs})
}

// InspectDomain godoc
// @Summary Detailed certificate inspection of one host
// @Param domain query string true "host name"
// @Param port query int false "port (default 443)"
// @Param whois query bool false "look up domain registration expiry"
// @Router /api/v1/inspect [get]
func (h *ToolHandler) InspectDomain(c *gin.Context) {
	target := c.Query("domain")
	port := 0
	if p := c.Query("port"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid port"})
			return
		}
		port = n
	}
	withWhois := c.DefaultQuery("whois", "true") != "false"

	result, err := h.Inspector.InspectDomain(c.Request.Context(), target, port, withWhois)
	if errors.Is(err, service.ErrInvalidTarget) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
