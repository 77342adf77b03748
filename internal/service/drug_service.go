// Package service 实现药品目录的业务逻辑。
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
	"github.com/pharmaops/pharmacy_server/internal/policy"
	"github.com/pharmaops/pharmacy_server/internal/repo"
)

// 药品相关业务错误
var (
	ErrDrugNotFound = errors.New("drug not found")
	ErrDrugExists   = errors.New("drug already exists")
)

// DrugService 定义药品目录服务接口。
// 目录操作不触碰库存数量，库存变更统一走 InventoryService。
type DrugService interface {
	CreateDrug(actor *domain.User, req *domain.CreateDrugRequest) (*domain.DrugView, error)
	GetDrug(id int64) (*domain.DrugView, error)
	UpdateDrug(actor *domain.User, id int64, req *domain.UpdateDrugRequest) (*domain.DrugView, error)
	DeactivateDrug(actor *domain.User, id int64) error
	ListDrugs(req *domain.DrugListRequest) (*domain.DrugListResponse, error)
	ListExpiringSoon(actor *domain.User) ([]*domain.DrugView, error)
	Stats(actor *domain.User) (*domain.InventoryStats, error)
}

// drugService 是 DrugService 接口的实现
type drugService struct {
	drugRepo         repo.DrugRepository
	expiringSoonDays int
	logger           *zap.Logger
}

// NewDrugService 创建药品服务实例
func NewDrugService(drugRepo repo.DrugRepository, expiringSoonDays int, logger *zap.Logger) DrugService {
	return &drugService{
		drugRepo:         drugRepo,
		expiringSoonDays: expiringSoonDays,
		logger:           logger,
	}
}

// CreateDrug 创建药品。
// 新药品的库存数量固定为 0，入库走库存台账。
func (s *drugService) CreateDrug(actor *domain.User, req *domain.CreateDrugRequest) (*domain.DrugView, error) {
	if !policy.Can(actor.Role, policy.ActionDrugWrite) {
		return nil, errs.New(errs.KindPermission, "not allowed to manage drugs")
	}

	if err := validateCreateDrug(req); err != nil {
		return nil, err
	}

	existing, err := s.drugRepo.GetBySKU(req.SKU)
	if err != nil {
		s.logger.Error("failed to check sku", zap.Error(err))
		return nil, fmt.Errorf("check sku: %w", err)
	}
	if existing != nil {
		return nil, ErrDrugExists
	}

	drug := &domain.Drug{
		SKU:                  strings.TrimSpace(req.SKU),
		Barcode:              req.Barcode,
		Name:                 strings.TrimSpace(req.Name),
		GenericName:          strings.TrimSpace(req.GenericName),
		Description:          req.Description,
		CategoryID:           req.CategoryID,
		ManufacturerID:       req.ManufacturerID,
		DosageForm:           req.DosageForm,
		Strength:             req.Strength,
		UnitPrice:            req.UnitPrice,
		SellingPrice:         req.SellingPrice,
		QuantityInStock:      0,
		ReorderLevel:         req.ReorderLevel,
		ExpiryDate:           req.ExpiryDate,
		RequiresPrescription: req.RequiresPrescription,
		IsActive:             true,
	}

	if err := s.drugRepo.Create(drug); err != nil {
		s.logger.Error("failed to create drug", zap.Error(err))
		return nil, fmt.Errorf("create drug: %w", err)
	}

	s.logger.Info("drug created",
		zap.Int64("drug_id", drug.ID),
		zap.String("sku", drug.SKU),
		zap.Int64("actor_id", actor.ID),
	)

	return domain.NewDrugView(drug), nil
}

func validateCreateDrug(req *domain.CreateDrugRequest) error {
	if strings.TrimSpace(req.SKU) == "" {
		return errs.New(errs.KindValidation, "sku is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return errs.New(errs.KindValidation, "name is required")
	}
	if req.UnitPrice <= 0 || req.SellingPrice <= 0 {
		return errs.New(errs.KindValidation, "prices must be positive")
	}
	if req.ReorderLevel < 0 {
		return errs.New(errs.KindValidation, "reorder level must not be negative")
	}
	return nil
}

// GetDrug 获取药品详情
func (s *drugService) GetDrug(id int64) (*domain.DrugView, error) {
	drug, err := s.drugRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get drug", zap.Int64("drug_id", id), zap.Error(err))
		return nil, fmt.Errorf("get drug: %w", err)
	}
	if drug == nil {
		return nil, ErrDrugNotFound
	}
	return domain.NewDrugView(drug), nil
}

// UpdateDrug 更新药品目录字段。
// 使用乐观锁，版本冲突返回并发冲突错误供调用方重试。
func (s *drugService) UpdateDrug(actor *domain.User, id int64, req *domain.UpdateDrugRequest) (*domain.DrugView, error) {
	if !policy.Can(actor.Role, policy.ActionDrugWrite) {
		return nil, errs.New(errs.KindPermission, "not allowed to manage drugs")
	}

	drug, err := s.drugRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get drug", zap.Int64("drug_id", id), zap.Error(err))
		return nil, fmt.Errorf("get drug: %w", err)
	}
	if drug == nil {
		return nil, ErrDrugNotFound
	}

	applyDrugUpdate(drug, req)

	if drug.UnitPrice <= 0 || drug.SellingPrice <= 0 {
		return nil, errs.New(errs.KindValidation, "prices must be positive")
	}
	if drug.ReorderLevel < 0 {
		return nil, errs.New(errs.KindValidation, "reorder level must not be negative")
	}

	if err := s.drugRepo.Update(drug); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			return nil, errs.Wrap(errs.KindConflict, "drug was modified concurrently", err)
		}
		s.logger.Error("failed to update drug", zap.Int64("drug_id", id), zap.Error(err))
		return nil, fmt.Errorf("update drug: %w", err)
	}

	s.logger.Info("drug updated",
		zap.Int64("drug_id", drug.ID),
		zap.Int64("actor_id", actor.ID),
	)

	return domain.NewDrugView(drug), nil
}

func applyDrugUpdate(drug *domain.Drug, req *domain.UpdateDrugRequest) {
	if req.Barcode != nil {
		drug.Barcode = req.Barcode
	}
	if req.Name != nil {
		drug.Name = strings.TrimSpace(*req.Name)
	}
	if req.GenericName != nil {
		drug.GenericName = strings.TrimSpace(*req.GenericName)
	}
	if req.Description != nil {
		drug.Description = *req.Description
	}
	if req.CategoryID != nil {
		drug.CategoryID = req.CategoryID
	}
	if req.ManufacturerID != nil {
		drug.ManufacturerID = req.ManufacturerID
	}
	if req.DosageForm != nil {
		drug.DosageForm = *req.DosageForm
	}
	if req.Strength != nil {
		drug.Strength = *req.Strength
	}
	if req.UnitPrice != nil {
		drug.UnitPrice = *req.UnitPrice
	}
	if req.SellingPrice != nil {
		drug.SellingPrice = *req.SellingPrice
	}
	if req.ReorderLevel != nil {
		drug.ReorderLevel = *req.ReorderLevel
	}
	if req.ExpiryDate != nil {
		drug.ExpiryDate = req.ExpiryDate
	}
	if req.RequiresPrescription != nil {
		drug.RequiresPrescription = *req.RequiresPrescription
	}
	if req.IsActive != nil {
		drug.IsActive = *req.IsActive
	}
}

// DeactivateDrug 停用药品，历史台账和销售记录保持不变
func (s *drugService) DeactivateDrug(actor *domain.User, id int64) error {
	if !policy.Can(actor.Role, policy.ActionDrugWrite) {
		return errs.New(errs.KindPermission, "not allowed to manage drugs")
	}

	drug, err := s.drugRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get drug", zap.Int64("drug_id", id), zap.Error(err))
		return fmt.Errorf("get drug: %w", err)
	}
	if drug == nil {
		return ErrDrugNotFound
	}

	if err := s.drugRepo.Deactivate(id); err != nil {
		s.logger.Error("failed to deactivate drug", zap.Int64("drug_id", id), zap.Error(err))
		return fmt.Errorf("deactivate drug: %w", err)
	}

	s.logger.Info("drug deactivated",
		zap.Int64("drug_id", id),
		zap.Int64("actor_id", actor.ID),
	)
	return nil
}

// ListDrugs 查询药品列表
func (s *drugService) ListDrugs(req *domain.DrugListRequest) (*domain.DrugListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	drugs, total, err := s.drugRepo.List(req)
	if err != nil {
		s.logger.Error("failed to list drugs", zap.Error(err))
		return nil, fmt.Errorf("list drugs: %w", err)
	}

	views := make([]*domain.DrugView, 0, len(drugs))
	for _, drug := range drugs {
		views = append(views, domain.NewDrugView(drug))
	}

	return &domain.DrugListResponse{
		Drugs:    views,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}

// ListExpiringSoon 查询预警天数内即将过期的在售药品
func (s *drugService) ListExpiringSoon(actor *domain.User) ([]*domain.DrugView, error) {
	if !policy.Can(actor.Role, policy.ActionInventoryStats) {
		return nil, errs.New(errs.KindPermission, "not allowed to view inventory reports")
	}

	drugs, err := s.drugRepo.ListExpiringSoon(s.expiringSoonDays)
	if err != nil {
		s.logger.Error("failed to list expiring drugs", zap.Error(err))
		return nil, fmt.Errorf("list expiring drugs: %w", err)
	}

	now := time.Now()
	views := make([]*domain.DrugView, 0, len(drugs))
	for _, drug := range drugs {
		if drug.IsExpiringSoon(now, s.expiringSoonDays) {
			views = append(views, domain.NewDrugView(drug))
		}
	}
	return views, nil
}

// Stats 返回库存统计概览
func (s *drugService) Stats(actor *domain.User) (*domain.InventoryStats, error) {
	if !policy.Can(actor.Role, policy.ActionInventoryStats) {
		return nil, errs.New(errs.KindPermission, "not allowed to view inventory reports")
	}

	stats, err := s.drugRepo.Stats()
	if err != nil {
		s.logger.Error("failed to get inventory stats", zap.Error(err))
		return nil, fmt.Errorf("get inventory stats: %w", err)
	}
	return stats, nil
}
