package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/service"
)

type TargetHandler struct {
	service *service.TargetService
}

func NewTargetHandler(service *service.TargetService) *TargetHandler {
	return &TargetHandler{service: service}
}

func (h *TargetHandler) ListTargets(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "12"))
	targets, err := h.service.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if targets == nil {
		targets = []domain.TargetConfig{}
	}
	c.JSON(http.StatusOK, gin.H{"data": targets})
}

func (h *TargetHandler) GetTarget(c *gin.Context) {
	cfg, err := h.service.Get(c.Request.Context(), c.Param("month"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (h *TargetHandler) PutTarget(c *gin.Context) {
	var cfg domain.TargetConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	cfg.Month = c.Param("month")

	if err := h.service.Save(c.Request.Context(), &cfg); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}
