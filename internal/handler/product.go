package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/solar-storefront/internal/dto"
	"github.com/flicky/solar-storefront/internal/service"
)

type ProductHandler struct {
	productService *service.ProductService
}

func NewProductHandler(productService *service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

func productIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
		return uuid.Nil, false
	}
	return id, true
}

// Catalog lists listed panels, optionally within a wattage band.
func (h *ProductHandler) Catalog(c *gin.Context) {
	h.list(c, false)
}

// Inventory is the admin view of the catalog, delisted panels included.
func (h *ProductHandler) Inventory(c *gin.Context) {
	h.list(c, true)
}

func (h *ProductHandler) list(c *gin.Context, includeDelisted bool) {
	var req dto.ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.productService.List(c.Request.Context(), req, includeDelisted)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Show returns a listed panel; delisted ones are 404 on the storefront.
func (h *ProductHandler) Show(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	resp, err := h.productService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) AdminShow(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	resp, err := h.productService.AdminGetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.productService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Update also relists a panel when the body carries "active": true.
func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	var req dto.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.productService.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delist hides a panel from the storefront. Orders keep referencing it.
func (h *ProductHandler) Delist(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	if err := h.productService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
