package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/middleware"
	"github.com/pharmaops/pharmacy_server/internal/resp"
	"github.com/pharmaops/pharmacy_server/internal/service"
)

// CatalogHandler 分类与生产商相关的HTTP处理器
type CatalogHandler struct {
	catalogService service.CatalogService
	logger         *zap.Logger
}

// NewCatalogHandler 创建分类与生产商处理器实例
func NewCatalogHandler(catalogService service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

// CreateCategory 创建分类
// POST /api/v1/categories
func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	var req domain.CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	category, err := h.catalogService.CreateCategory(actor, &req)
	if err != nil {
		if errors.Is(err, service.ErrCategoryExists) {
			resp.Error(w, http.StatusConflict, resp.CodeConflict, "category name already exists", reqID, "")
			return
		}

		h.logger.Error("create category failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, category, reqID, "")
}

// GetCategory 获取分类详情
// GET /api/v1/categories/{id}
func (h *CatalogHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4) // /api/v1/categories/{id}
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid category ID", reqID, "")
		return
	}

	category, err := h.catalogService.GetCategory(id)
	if err != nil {
		if errors.Is(err, service.ErrCategoryNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "category not found", reqID, "")
			return
		}

		h.logger.Error("get category failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "get category failed", reqID, "")
		return
	}

	resp.OK(w, category, reqID, "")
}

// ListCategories 获取分类列表
// GET /api/v1/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	categories, err := h.catalogService.ListCategories()
	if err != nil {
		h.logger.Error("list categories failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "list categories failed", reqID, "")
		return
	}

	resp.OK(w, &categories, reqID, "")
}

// UpdateCategory 更新分类
// PATCH /api/v1/categories/{id}
func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4)
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid category ID", reqID, "")
		return
	}

	var req domain.UpdateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	category, err := h.catalogService.UpdateCategory(actor, id, &req)
	if err != nil {
		if errors.Is(err, service.ErrCategoryNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "category not found", reqID, "")
			return
		}
		if errors.Is(err, service.ErrCategoryExists) {
			resp.Error(w, http.StatusConflict, resp.CodeConflict, "category name already exists", reqID, "")
			return
		}

		h.logger.Error("update category failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, category, reqID, "")
}

// DeleteCategory 删除分类，引用它的药品外键置空
// DELETE /api/v1/categories/{id}
func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4)
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid category ID", reqID, "")
		return
	}

	if err := h.catalogService.DeleteCategory(actor, id); err != nil {
		if errors.Is(err, service.ErrCategoryNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "category not found", reqID, "")
			return
		}

		h.logger.Error("delete category failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	result := map[string]interface{}{"deleted": true}
	resp.OK(w, &result, reqID, "")
}

// CreateManufacturer 创建生产商
// POST /api/v1/manufacturers
func (h *CatalogHandler) CreateManufacturer(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	var req domain.CreateManufacturerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	manufacturer, err := h.catalogService.CreateManufacturer(actor, &req)
	if err != nil {
		if errors.Is(err, service.ErrManufacturerExists) {
			resp.Error(w, http.StatusConflict, resp.CodeConflict, "manufacturer name already exists", reqID, "")
			return
		}

		h.logger.Error("create manufacturer failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, manufacturer, reqID, "")
}

// GetManufacturer 获取生产商详情
// GET /api/v1/manufacturers/{id}
func (h *CatalogHandler) GetManufacturer(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4)
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid manufacturer ID", reqID, "")
		return
	}

	manufacturer, err := h.catalogService.GetManufacturer(id)
	if err != nil {
		if errors.Is(err, service.ErrManufacturerNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "manufacturer not found", reqID, "")
			return
		}

		h.logger.Error("get manufacturer failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "get manufacturer failed", reqID, "")
		return
	}

	resp.OK(w, manufacturer, reqID, "")
}

// ListManufacturers 获取生产商列表
// GET /api/v1/manufacturers
func (h *CatalogHandler) ListManufacturers(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	manufacturers, err := h.catalogService.ListManufacturers()
	if err != nil {
		h.logger.Error("list manufacturers failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "list manufacturers failed", reqID, "")
		return
	}

	resp.OK(w, &manufacturers, reqID, "")
}

// UpdateManufacturer 更新生产商
// PATCH /api/v1/manufacturers/{id}
func (h *CatalogHandler) UpdateManufacturer(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4)
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid manufacturer ID", reqID, "")
		return
	}

	var req domain.UpdateManufacturerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	manufacturer, err := h.catalogService.UpdateManufacturer(actor, id, &req)
	if err != nil {
		if errors.Is(err, service.ErrManufacturerNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "manufacturer not found", reqID, "")
			return
		}
		if errors.Is(err, service.ErrManufacturerExists) {
			resp.Error(w, http.StatusConflict, resp.CodeConflict, "manufacturer name already exists", reqID, "")
			return
		}

		h.logger.Error("update manufacturer failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, manufacturer, reqID, "")
}

// DeleteManufacturer 删除生产商，引用它的药品外键置空
// DELETE /api/v1/manufacturers/{id}
func (h *CatalogHandler) DeleteManufacturer(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4)
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid manufacturer ID", reqID, "")
		return
	}

	if err := h.catalogService.DeleteManufacturer(actor, id); err != nil {
		if errors.Is(err, service.ErrManufacturerNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "manufacturer not found", reqID, "")
			return
		}

		h.logger.Error("delete manufacturer failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	result := map[string]interface{}{"deleted": true}
	resp.OK(w, &result, reqID, "")
}
