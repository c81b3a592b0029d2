package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zsp-sports/gymbooking/internal/service/catalog"
)

type CatalogHandler struct {
	service catalog.CatalogUseCase
}

func NewCatalogHandler(service catalog.CatalogUseCase) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) Register(router *gin.RouterGroup) {
	router.GET("/packages", h.listPackages)
	router.GET("/availability/by-package/:packageId", h.availabilityByPackage)
}

func (h *CatalogHandler) listPackages(c *gin.Context) {
	packages, err := h.service.ListPackages(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": packages})
}

func (h *CatalogHandler) availabilityByPackage(c *gin.Context) {
	packageID, err := strconv.ParseInt(c.Param("packageId"), 10, 64)
	if err != nil || packageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid package id"})
		return
	}

	slots, err := h.service.AvailabilityByPackage(c.Request.Context(), packageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeslots": slots})
}
