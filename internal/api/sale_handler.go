// Package api 提供销售结账相关的HTTP API处理器实现。
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

// SaleHandler 销售相关的HTTP处理器
type SaleHandler struct {
	saleService service.SaleService
	logger      *zap.Logger
}

// NewSaleHandler 创建销售处理器实例
func NewSaleHandler(saleService service.SaleService, logger *zap.Logger) *SaleHandler {
	return &SaleHandler{
		saleService: saleService,
		logger:      logger,
	}
}

// Checkout 销售结账
// POST /api/v1/sales
func (h *SaleHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	var req domain.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	sale, err := h.saleService.Checkout(r.Context(), actor, &req)
	if err != nil {
		h.logger.Warn("checkout rejected", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, sale, reqID, "")
}

// GetSale 获取销售单详情
// GET /api/v1/sales/{id}
func (h *SaleHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4) // /api/v1/sales/{id}
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid sale ID", reqID, "")
		return
	}

	sale, err := h.saleService.GetSale(actor, id)
	if err != nil {
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, sale, reqID, "")
}

// ListSales 查询销售单列表
// GET /api/v1/sales?patient_id=1&method=CASH&from=2026-01-01T00:00:00Z
func (h *SaleHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	req := &domain.SaleListRequest{}
	query := r.URL.Query()

	req.Page, req.PageSize = pagination(query)

	if patientIDStr := query.Get("patient_id"); patientIDStr != "" {
		if patientID, err := strconv.ParseInt(patientIDStr, 10, 64); err == nil {
			req.PatientID = &patientID
		}
	}
	if methodStr := query.Get("method"); methodStr != "" {
		method := domain.PaymentMethod(strings.ToUpper(methodStr))
		if !domain.ValidPaymentMethod(method) {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid payment method", reqID, "")
			return
		}
		req.Method = &method
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

	result, err := h.saleService.ListSales(actor, req)
	if err != nil {
		h.logger.Error("list sales failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, result, reqID, "")
}

// GetSalesStats 获取区间销售统计
// GET /api/v1/sales/stats?from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z
// 缺省统计最近30天
func (h *SaleHandler) GetSalesStats(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	query := r.URL.Query()
	if fromStr := query.Get("from"); fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid from timestamp", reqID, "")
			return
		}
		from = parsed
	}
	if toStr := query.Get("to"); toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid to timestamp", reqID, "")
			return
		}
		to = parsed
	}

	stats, err := h.saleService.Stats(actor, from, to)
	if err != nil {
		h.logger.Error("get sales stats failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, stats, reqID, "")
}
