// Package service 实现处方开具与配药的业务逻辑。
package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
	"github.com/pharmaops/pharmacy_server/internal/policy"
	"github.com/pharmaops/pharmacy_server/internal/repo"
)

// PrescriptionService 定义处方服务接口。
// 配药只推进处方自身的状态，不触碰药品库存；
// 库存扣减发生在销售结账时。
type PrescriptionService interface {
	CreatePrescription(actor *domain.User, req *domain.CreatePrescriptionRequest) (*domain.Prescription, error)
	GetPrescription(actor *domain.User, id int64) (*domain.Prescription, error)
	ListPrescriptions(actor *domain.User, req *domain.PrescriptionListRequest) (*domain.PrescriptionListResponse, error)
	FillPrescription(ctx context.Context, actor *domain.User, id int64, req *domain.FillPrescriptionRequest) (*domain.Prescription, error)
	CancelPrescription(actor *domain.User, id int64) (*domain.Prescription, error)
}

// prescriptionService 是 PrescriptionService 接口的实现
type prescriptionService struct {
	tx               TxRunner
	prescriptionRepo repo.PrescriptionRepository
	drugRepo         repo.DrugRepository
	userRepo         repo.UserRepository
	logger           *zap.Logger
}

// NewPrescriptionService 创建处方服务实例
func NewPrescriptionService(
	tx TxRunner,
	prescriptionRepo repo.PrescriptionRepository,
	drugRepo repo.DrugRepository,
	userRepo repo.UserRepository,
	logger *zap.Logger,
) PrescriptionService {
	return &prescriptionService{
		tx:               tx,
		prescriptionRepo: prescriptionRepo,
		drugRepo:         drugRepo,
		userRepo:         userRepo,
		logger:           logger,
	}
}

// CreatePrescription 医生开具处方。
// 校验患者存在且为患者角色、明细药品存在且在售，
// 处方号由服务端生成，初始状态为待配药。
func (s *prescriptionService) CreatePrescription(actor *domain.User, req *domain.CreatePrescriptionRequest) (*domain.Prescription, error) {
	if !policy.Can(actor.Role, policy.ActionPrescriptionCreate) {
		return nil, errs.New(errs.KindPermission, "not allowed to create prescriptions")
	}

	if len(req.Items) == 0 {
		return nil, errs.New(errs.KindValidation, "prescription must have at least one item")
	}
	if req.ValidUntil.Before(time.Now()) {
		return nil, errs.New(errs.KindValidation, "valid_until must be in the future")
	}
	if strings.TrimSpace(req.Diagnosis) == "" {
		return nil, errs.New(errs.KindValidation, "diagnosis is required")
	}

	patient, err := s.userRepo.GetByID(req.PatientID)
	if err != nil {
		s.logger.Error("failed to get patient", zap.Int64("patient_id", req.PatientID), zap.Error(err))
		return nil, fmt.Errorf("get patient: %w", err)
	}
	if patient == nil || patient.Role != domain.UserRolePatient {
		return nil, errs.Newf(errs.KindValidation, "patient %d not found", req.PatientID)
	}

	items := make([]*domain.PrescriptionItem, 0, len(req.Items))
	for _, itemReq := range req.Items {
		if itemReq.Quantity <= 0 {
			return nil, errs.Newf(errs.KindValidation, "item quantity must be positive for drug %d", itemReq.DrugID)
		}

		drug, err := s.drugRepo.GetByID(itemReq.DrugID)
		if err != nil {
			s.logger.Error("failed to get drug", zap.Int64("drug_id", itemReq.DrugID), zap.Error(err))
			return nil, fmt.Errorf("get drug: %w", err)
		}
		if drug == nil || !drug.IsActive {
			return nil, errs.Newf(errs.KindValidation, "drug %d not found or inactive", itemReq.DrugID)
		}

		items = append(items, &domain.PrescriptionItem{
			DrugID:       itemReq.DrugID,
			Quantity:     itemReq.Quantity,
			Dosage:       itemReq.Dosage,
			Frequency:    itemReq.Frequency,
			Duration:     itemReq.Duration,
			Instructions: itemReq.Instructions,
		})
	}

	number, err := generateUniqueNumber("RX", s.prescriptionRepo.ExistsByNumber)
	if err != nil {
		return nil, err
	}

	prescription := &domain.Prescription{
		PrescriptionNumber: number,
		PatientID:          req.PatientID,
		DoctorID:           actor.ID,
		Diagnosis:          strings.TrimSpace(req.Diagnosis),
		Status:             domain.PrescriptionStatusPending,
		IssueDate:          time.Now(),
		ValidUntil:         req.ValidUntil,
		Notes:              req.Notes,
		Items:              items,
	}

	if err := s.prescriptionRepo.Create(prescription); err != nil {
		s.logger.Error("failed to create prescription", zap.Error(err))
		return nil, fmt.Errorf("create prescription: %w", err)
	}

	s.logger.Info("prescription created",
		zap.Int64("prescription_id", prescription.ID),
		zap.String("number", prescription.PrescriptionNumber),
		zap.Int64("patient_id", prescription.PatientID),
		zap.Int64("doctor_id", prescription.DoctorID),
		zap.Int("items", len(prescription.Items)),
	)

	return prescription, nil
}

// GetPrescription 获取处方详情，按归属规则过滤
func (s *prescriptionService) GetPrescription(actor *domain.User, id int64) (*domain.Prescription, error) {
	if !policy.Can(actor.Role, policy.ActionPrescriptionRead) {
		return nil, errs.New(errs.KindPermission, "not allowed to read prescriptions")
	}

	prescription, err := s.prescriptionRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get prescription", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	if prescription == nil {
		return nil, errs.Newf(errs.KindNotFound, "prescription %d not found", id)
	}

	if !policy.CanViewPrescription(actor, prescription) {
		return nil, errs.New(errs.KindPermission, "not allowed to view this prescription")
	}

	return prescription, nil
}

// ListPrescriptions 查询处方列表。
// 医生只能看到自己开具的处方，患者只能看到自己的处方。
func (s *prescriptionService) ListPrescriptions(actor *domain.User, req *domain.PrescriptionListRequest) (*domain.PrescriptionListResponse, error) {
	if !policy.Can(actor.Role, policy.ActionPrescriptionRead) {
		return nil, errs.New(errs.KindPermission, "not allowed to read prescriptions")
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	patientID, doctorID := policy.PrescriptionScope(actor)
	if patientID != nil {
		req.PatientID = patientID
	}
	if doctorID != nil {
		req.DoctorID = doctorID
	}

	prescriptions, total, err := s.prescriptionRepo.List(req)
	if err != nil {
		s.logger.Error("failed to list prescriptions", zap.Error(err))
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}

	return &domain.PrescriptionListResponse{
		Prescriptions: prescriptions,
		Total:         total,
		Page:          req.Page,
		PageSize:      req.PageSize,
	}, nil
}

// FillPrescription 对处方进行一次配药。
// 整批先校验后应用：任一明细不合法则整批拒绝，处方保持原状。
// 配药不修改药品库存。
func (s *prescriptionService) FillPrescription(ctx context.Context, actor *domain.User, id int64, req *domain.FillPrescriptionRequest) (*domain.Prescription, error) {
	if !policy.Can(actor.Role, policy.ActionPrescriptionFill) {
		return nil, errs.New(errs.KindPermission, "not allowed to fill prescriptions")
	}
	if len(req.Items) == 0 {
		return nil, errs.New(errs.KindValidation, "fill request must have at least one item")
	}

	var result *domain.Prescription
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		prescription, err := s.prescriptionRepo.GetForUpdateInTx(tx, id)
		if err != nil {
			return fmt.Errorf("lock prescription: %w", err)
		}
		if prescription == nil {
			return errs.Newf(errs.KindNotFound, "prescription %d not found", id)
		}

		if prescription.IsTerminal() {
			return errs.Newf(errs.KindInvalidState,
				"prescription %s is %s and cannot be filled",
				prescription.PrescriptionNumber, prescription.Status)
		}
		if prescription.IsExpired(time.Now()) {
			return errs.Newf(errs.KindInvalidState,
				"prescription %s expired on %s",
				prescription.PrescriptionNumber, prescription.ValidUntil.Format("2006-01-02"))
		}

		itemsByID := make(map[int64]*domain.PrescriptionItem, len(prescription.Items))
		for _, item := range prescription.Items {
			itemsByID[item.ID] = item
		}

		// 先整批校验，全部通过才应用任何一项
		seen := make(map[int64]bool, len(req.Items))
		for _, fillReq := range req.Items {
			item, ok := itemsByID[fillReq.ItemID]
			if !ok {
				return errs.Newf(errs.KindValidation,
					"item %d does not belong to prescription %s",
					fillReq.ItemID, prescription.PrescriptionNumber)
			}
			if seen[fillReq.ItemID] {
				return errs.Newf(errs.KindValidation, "duplicate fill for item %d", fillReq.ItemID)
			}
			seen[fillReq.ItemID] = true

			if fillReq.Quantity <= 0 {
				return errs.Newf(errs.KindValidation, "fill quantity must be positive for item %d", fillReq.ItemID)
			}
			if fillReq.Quantity > item.Remaining() {
				return errs.Newf(errs.KindValidation,
					"fill quantity %d exceeds remaining %d for item %d",
					fillReq.Quantity, item.Remaining(), fillReq.ItemID)
			}
		}

		for _, fillReq := range req.Items {
			item := itemsByID[fillReq.ItemID]
			item.QuantityFilled += fillReq.Quantity
			if err := s.prescriptionRepo.UpdateItemFilledInTx(tx, item.ID, item.QuantityFilled); err != nil {
				return fmt.Errorf("update item fill: %w", err)
			}
		}

		prescription.Status = prescription.DeriveStatus()
		if prescription.Status == domain.PrescriptionStatusFilled {
			now := time.Now()
			prescription.FilledDate = &now
			prescription.FilledByID = &actor.ID
		}
		if err := s.prescriptionRepo.UpdateStatusInTx(tx, prescription); err != nil {
			return fmt.Errorf("update prescription status: %w", err)
		}

		result = prescription
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("prescription filled",
		zap.Int64("prescription_id", result.ID),
		zap.String("number", result.PrescriptionNumber),
		zap.String("status", string(result.Status)),
		zap.Int64("actor_id", actor.ID),
	)

	return result, nil
}

// CancelPrescription 取消处方。
// 只有管理员或开具处方的医生可以取消，终态处方不可取消。
func (s *prescriptionService) CancelPrescription(actor *domain.User, id int64) (*domain.Prescription, error) {
	prescription, err := s.prescriptionRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get prescription", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	if prescription == nil {
		return nil, errs.Newf(errs.KindNotFound, "prescription %d not found", id)
	}

	if !policy.CanCancelPrescription(actor, prescription) {
		return nil, errs.New(errs.KindPermission, "not allowed to cancel this prescription")
	}

	if prescription.IsTerminal() {
		return nil, errs.Newf(errs.KindInvalidState,
			"prescription %s is %s and cannot be cancelled",
			prescription.PrescriptionNumber, prescription.Status)
	}

	cancelled, err := s.prescriptionRepo.Cancel(id)
	if err != nil {
		s.logger.Error("failed to cancel prescription", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("cancel prescription: %w", err)
	}
	if !cancelled {
		// 条件更新未命中，说明状态已被并发操作推进
		return nil, errs.Newf(errs.KindInvalidState,
			"prescription %s state changed concurrently", prescription.PrescriptionNumber)
	}

	prescription.Status = domain.PrescriptionStatusCancelled

	s.logger.Info("prescription cancelled",
		zap.Int64("prescription_id", prescription.ID),
		zap.String("number", prescription.PrescriptionNumber),
		zap.Int64("actor_id", actor.ID),
	)

	return prescription, nil
}
