// Package api 提供药品目录相关的HTTP API处理器实现。
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/middleware"
	"github.com/pharmaops/pharmacy_server/internal/resp"
	"github.com/pharmaops/pharmacy_server/internal/service"
)

// DrugHandler 药品目录相关的HTTP处理器
type DrugHandler struct {
	drugService service.DrugService
	logger      *zap.Logger
}

// NewDrugHandler 创建药品处理器实例
func NewDrugHandler(drugService service.DrugService, logger *zap.Logger) *DrugHandler {
	return &DrugHandler{
		drugService: drugService,
		logger:      logger,
	}
}

// CreateDrug 创建药品
// POST /api/v1/drugs
func (h *DrugHandler) CreateDrug(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	var req domain.CreateDrugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	drug, err := h.drugService.CreateDrug(actor, &req)
	if err != nil {
		if errors.Is(err, service.ErrDrugExists) {
			resp.Error(w, http.StatusConflict, resp.CodeConflict, "sku already exists", reqID, "")
			return
		}

		h.logger.Error("create drug failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, drug, reqID, "")
}

// GetDrug 获取药品详情
// GET /api/v1/drugs/{id}
func (h *DrugHandler) GetDrug(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4) // /api/v1/drugs/{id}
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid drug ID", reqID, "")
		return
	}

	drug, err := h.drugService.GetDrug(id)
	if err != nil {
		if errors.Is(err, service.ErrDrugNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "drug not found", reqID, "")
			return
		}

		h.logger.Error("get drug failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "get drug failed", reqID, "")
		return
	}

	resp.OK(w, drug, reqID, "")
}

// UpdateDrug 更新药品目录字段
// PATCH /api/v1/drugs/{id}
func (h *DrugHandler) UpdateDrug(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4)
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid drug ID", reqID, "")
		return
	}

	var req domain.UpdateDrugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	drug, err := h.drugService.UpdateDrug(actor, id, &req)
	if err != nil {
		if errors.Is(err, service.ErrDrugNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "drug not found", reqID, "")
			return
		}

		h.logger.Error("update drug failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, drug, reqID, "")
}

// DeactivateDrug 停用药品
// DELETE /api/v1/drugs/{id}
func (h *DrugHandler) DeactivateDrug(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4)
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid drug ID", reqID, "")
		return
	}

	if err := h.drugService.DeactivateDrug(actor, id); err != nil {
		if errors.Is(err, service.ErrDrugNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "drug not found", reqID, "")
			return
		}

		h.logger.Error("deactivate drug failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	result := map[string]interface{}{"deactivated": true}
	resp.OK(w, &result, reqID, "")
}

// ListDrugs 获取药品列表
// GET /api/v1/drugs?page=1&page_size=20&keyword=amox&low_stock=true&is_active=true
func (h *DrugHandler) ListDrugs(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	req := &domain.DrugListRequest{}
	query := r.URL.Query()

	req.Page, req.PageSize = pagination(query)

	if keyword := strings.TrimSpace(query.Get("keyword")); keyword != "" {
		req.Keyword = &keyword
	}
	if categoryIDStr := query.Get("category_id"); categoryIDStr != "" {
		if categoryID, err := strconv.ParseInt(categoryIDStr, 10, 64); err == nil {
			req.CategoryID = &categoryID
		}
	}
	if manufacturerIDStr := query.Get("manufacturer_id"); manufacturerIDStr != "" {
		if manufacturerID, err := strconv.ParseInt(manufacturerIDStr, 10, 64); err == nil {
			req.ManufacturerID = &manufacturerID
		}
	}
	if lowStockStr := query.Get("low_stock"); lowStockStr != "" {
		if lowStock, err := strconv.ParseBool(lowStockStr); err == nil {
			req.LowStock = &lowStock
		}
	}
	if outOfStockStr := query.Get("out_of_stock"); outOfStockStr != "" {
		if outOfStock, err := strconv.ParseBool(outOfStockStr); err == nil {
			req.OutOfStock = &outOfStock
		}
	}
	if activeStr := query.Get("is_active"); activeStr != "" {
		if active, err := strconv.ParseBool(activeStr); err == nil {
			req.IsActive = &active
		}
	}
	if sortBy := query.Get("sort_by"); sortBy != "" {
		req.SortBy = &sortBy
	}
	if sortOrder := query.Get("sort_order"); sortOrder != "" {
		req.SortOrder = &sortOrder
	}

	result, err := h.drugService.ListDrugs(req)
	if err != nil {
		h.logger.Error("list drugs failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "list drugs failed", reqID, "")
		return
	}

	resp.OK(w, result, reqID, "")
}

// ListExpiringSoon 获取临期药品列表
// GET /api/v1/drugs/expiring-soon
func (h *DrugHandler) ListExpiringSoon(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	drugs, err := h.drugService.ListExpiringSoon(actor)
	if err != nil {
		h.logger.Error("list expiring drugs failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, &drugs, reqID, "")
}

// GetInventoryStats 获取库存统计概览
// GET /api/v1/drugs/stats
func (h *DrugHandler) GetInventoryStats(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	stats, err := h.drugService.Stats(actor)
	if err != nil {
		h.logger.Error("get inventory stats failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, stats, reqID, "")
}
