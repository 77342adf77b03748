// Package api 提供库存台账相关的HTTP API处理器实现。
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/middleware"
	"github.com/pharmaops/pharmacy_server/internal/resp"
	"github.com/pharmaops/pharmacy_server/internal/service"
)

// InventoryHandler 库存台账相关的HTTP处理器
type InventoryHandler struct {
	inventoryService service.InventoryService
	logger           *zap.Logger
}

// NewInventoryHandler 创建库存处理器实例
func NewInventoryHandler(inventoryService service.InventoryService, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
		logger:           logger,
	}
}

// ApplyStockChange 对药品应用一次库存变更
// POST /api/v1/drugs/{id}/stock
func (h *InventoryHandler) ApplyStockChange(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	drugID, ok := pathID(r.URL.Path, 4) // /api/v1/drugs/{id}/stock
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid drug ID", reqID, "")
		return
	}

	var req domain.StockChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	result, err := h.inventoryService.ApplyStockChange(r.Context(), actor, drugID, &req)
	if err != nil {
		h.logger.Warn("stock change rejected",
			zap.String("request_id", reqID),
			zap.Int64("drug_id", drugID),
			zap.Error(err),
		)
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, result, reqID, "")
}

// GetTransaction 获取台账记录详情
// GET /api/v1/stock-transactions/{id}
func (h *InventoryHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4) // /api/v1/stock-transactions/{id}
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid transaction ID", reqID, "")
		return
	}

	transaction, err := h.inventoryService.GetTransaction(actor, id)
	if err != nil {
		h.logger.Error("get stock transaction failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, transaction, reqID, "")
}

// ListTransactions 查询台账列表
// GET /api/v1/stock-transactions?drug_id=1&type=SALE&from=2026-01-01T00:00:00Z
func (h *InventoryHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	req := &domain.StockTransactionListRequest{}
	query := r.URL.Query()

	req.Page, req.PageSize = pagination(query)

	if drugIDStr := query.Get("drug_id"); drugIDStr != "" {
		if drugID, err := strconv.ParseInt(drugIDStr, 10, 64); err == nil {
			req.DrugID = &drugID
		}
	}
	if typeStr := query.Get("type"); typeStr != "" {
		txType := domain.StockTransactionType(strings.ToUpper(typeStr))
		if !domain.ValidStockTransactionType(txType) {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid transaction type", reqID, "")
			return
		}
		req.Type = &txType
	}
	if fromStr := query.Get("from"); fromStr != "" {
		if from, err := time.Parse(time.RFC3339, fromStr); err == nil {
			req.From = &from
		}
	}
	if toStr := query.Get("to"); toStr != "" {
		if to, err := time.Parse(time.RFC3339, toStr); err == nil {
			req.To = &to
		}
	}

	result, err := h.inventoryService.ListTransactions(actor, req)
	if err != nil {
		h.logger.Error("list stock transactions failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, result, reqID, "")
}
