// Package api 提供处方相关的HTTP API处理器实现。
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/middleware"
	"github.com/pharmaops/pharmacy_server/internal/resp"
	"github.com/pharmaops/pharmacy_server/internal/service"
)

// PrescriptionHandler 处方相关的HTTP处理器
type PrescriptionHandler struct {
	prescriptionService service.PrescriptionService
	logger              *zap.Logger
}

// NewPrescriptionHandler 创建处方处理器实例
func NewPrescriptionHandler(prescriptionService service.PrescriptionService, logger *zap.Logger) *PrescriptionHandler {
	return &PrescriptionHandler{
		prescriptionService: prescriptionService,
		logger:              logger,
	}
}

// CreatePrescription 医生开具处方
// POST /api/v1/prescriptions
func (h *PrescriptionHandler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	var req domain.CreatePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	prescription, err := h.prescriptionService.CreatePrescription(actor, &req)
	if err != nil {
		h.logger.Warn("create prescription rejected", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, prescription, reqID, "")
}

// GetPrescription 获取处方详情
// GET /api/v1/prescriptions/{id}
func (h *PrescriptionHandler) GetPrescription(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4) // /api/v1/prescriptions/{id}
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid prescription ID", reqID, "")
		return
	}

	prescription, err := h.prescriptionService.GetPrescription(actor, id)
	if err != nil {
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, prescription, reqID, "")
}

// ListPrescriptions 查询处方列表
// GET /api/v1/prescriptions?status=PENDING&patient_id=1&page=1
func (h *PrescriptionHandler) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	req := &domain.PrescriptionListRequest{}
	query := r.URL.Query()

	req.Page, req.PageSize = pagination(query)

	if patientIDStr := query.Get("patient_id"); patientIDStr != "" {
		if patientID, err := strconv.ParseInt(patientIDStr, 10, 64); err == nil {
			req.PatientID = &patientID
		}
	}
	if doctorIDStr := query.Get("doctor_id"); doctorIDStr != "" {
		if doctorID, err := strconv.ParseInt(doctorIDStr, 10, 64); err == nil {
			req.DoctorID = &doctorID
		}
	}
	if statusStr := query.Get("status"); statusStr != "" {
		status := domain.PrescriptionStatus(strings.ToUpper(statusStr))
		if !domain.ValidPrescriptionStatus(status) {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid prescription status", reqID, "")
			return
		}
		req.Status = &status
	}

	result, err := h.prescriptionService.ListPrescriptions(actor, req)
	if err != nil {
		h.logger.Error("list prescriptions failed", zap.String("request_id", reqID), zap.Error(err))
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, result, reqID, "")
}

// FillPrescription 药剂师配药
// POST /api/v1/prescriptions/{id}/fill
func (h *PrescriptionHandler) FillPrescription(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4) // /api/v1/prescriptions/{id}/fill
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid prescription ID", reqID, "")
		return
	}

	var req domain.FillPrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	prescription, err := h.prescriptionService.FillPrescription(r.Context(), actor, id, &req)
	if err != nil {
		h.logger.Warn("fill prescription rejected",
			zap.String("request_id", reqID),
			zap.Int64("prescription_id", id),
			zap.Error(err),
		)
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, prescription, reqID, "")
}

// CancelPrescription 取消处方
// POST /api/v1/prescriptions/{id}/cancel
func (h *PrescriptionHandler) CancelPrescription(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	actor := middleware.UserFromContext(r.Context())

	id, ok := pathID(r.URL.Path, 4) // /api/v1/prescriptions/{id}/cancel
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid prescription ID", reqID, "")
		return
	}

	prescription, err := h.prescriptionService.CancelPrescription(actor, id)
	if err != nil {
		h.logger.Warn("cancel prescription rejected",
			zap.String("request_id", reqID),
			zap.Int64("prescription_id", id),
			zap.Error(err),
		)
		resp.BizError(w, err, reqID)
		return
	}

	resp.OK(w, prescription, reqID, "")
}
