// Package service 实现分类与生产商的业务逻辑。
package service

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
	"github.com/pharmaops/pharmacy_server/internal/policy"
	"github.com/pharmaops/pharmacy_server/internal/repo"
)

// 分类与生产商相关业务错误
var (
	ErrCategoryNotFound     = errors.New("category not found")
	ErrCategoryExists       = errors.New("category already exists")
	ErrManufacturerNotFound = errors.New("manufacturer not found")
	ErrManufacturerExists   = errors.New("manufacturer already exists")
)

// CatalogService 定义分类与生产商的管理接口。
// 删除仅移除分类/生产商本身，引用它们的药品置空外键。
type CatalogService interface {
	CreateCategory(actor *domain.User, req *domain.CreateCategoryRequest) (*domain.Category, error)
	GetCategory(id int64) (*domain.Category, error)
	ListCategories() ([]*domain.Category, error)
	UpdateCategory(actor *domain.User, id int64, req *domain.UpdateCategoryRequest) (*domain.Category, error)
	DeleteCategory(actor *domain.User, id int64) error

	CreateManufacturer(actor *domain.User, req *domain.CreateManufacturerRequest) (*domain.Manufacturer, error)
	GetManufacturer(id int64) (*domain.Manufacturer, error)
	ListManufacturers() ([]*domain.Manufacturer, error)
	UpdateManufacturer(actor *domain.User, id int64, req *domain.UpdateManufacturerRequest) (*domain.Manufacturer, error)
	DeleteManufacturer(actor *domain.User, id int64) error
}

type catalogService struct {
	categoryRepo     repo.CategoryRepository
	manufacturerRepo repo.ManufacturerRepository
	logger           *zap.Logger
}

// NewCatalogService 创建分类与生产商服务实例
func NewCatalogService(
	categoryRepo repo.CategoryRepository,
	manufacturerRepo repo.ManufacturerRepository,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		categoryRepo:     categoryRepo,
		manufacturerRepo: manufacturerRepo,
		logger:           logger,
	}
}

// CreateCategory 创建分类，名称唯一
func (s *catalogService) CreateCategory(actor *domain.User, req *domain.CreateCategoryRequest) (*domain.Category, error) {
	if !policy.Can(actor.Role, policy.ActionDrugWrite) {
		return nil, errs.New(errs.KindPermission, "not allowed to manage drugs")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.New(errs.KindValidation, "name is required")
	}

	existing, err := s.categoryRepo.GetByName(name)
	if err != nil {
		s.logger.Error("failed to check category name", zap.Error(err))
		return nil, fmt.Errorf("check category name: %w", err)
	}
	if existing != nil {
		return nil, ErrCategoryExists
	}

	category := &domain.Category{
		Name:        name,
		Description: req.Description,
	}
	if err := s.categoryRepo.Create(category); err != nil {
		s.logger.Error("failed to create category", zap.Error(err))
		return nil, fmt.Errorf("create category: %w", err)
	}

	s.logger.Info("category created",
		zap.Int64("category_id", category.ID),
		zap.String("name", category.Name),
		zap.Int64("actor_id", actor.ID),
	)
	return category, nil
}

// GetCategory 获取分类详情
func (s *catalogService) GetCategory(id int64) (*domain.Category, error) {
	category, err := s.categoryRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get category", zap.Int64("category_id", id), zap.Error(err))
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}
	return category, nil
}

// ListCategories 获取全部分类
func (s *catalogService) ListCategories() ([]*domain.Category, error) {
	categories, err := s.categoryRepo.List()
	if err != nil {
		s.logger.Error("failed to list categories", zap.Error(err))
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// UpdateCategory 更新分类
func (s *catalogService) UpdateCategory(actor *domain.User, id int64, req *domain.UpdateCategoryRequest) (*domain.Category, error) {
	if !policy.Can(actor.Role, policy.ActionDrugWrite) {
		return nil, errs.New(errs.KindPermission, "not allowed to manage drugs")
	}

	category, err := s.categoryRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get category", zap.Int64("category_id", id), zap.Error(err))
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, errs.New(errs.KindValidation, "name is required")
		}
		if name != category.Name {
			existing, err := s.categoryRepo.GetByName(name)
			if err != nil {
				return nil, fmt.Errorf("check category name: %w", err)
			}
			if existing != nil {
				return nil, ErrCategoryExists
			}
		}
		category.Name = name
	}
	if req.Description != nil {
		category.Description = *req.Description
	}

	if err := s.categoryRepo.Update(category); err != nil {
		s.logger.Error("failed to update category", zap.Int64("category_id", id), zap.Error(err))
		return nil, fmt.Errorf("update category: %w", err)
	}
	return category, nil
}

// DeleteCategory 删除分类，引用它的药品外键置空
func (s *catalogService) DeleteCategory(actor *domain.User, id int64) error {
	if !policy.Can(actor.Role, policy.ActionDrugWrite) {
		return errs.New(errs.KindPermission, "not allowed to manage drugs")
	}

	category, err := s.categoryRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get category", zap.Int64("category_id", id), zap.Error(err))
		return fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return ErrCategoryNotFound
	}

	if err := s.categoryRepo.Delete(id); err != nil {
		s.logger.Error("failed to delete category", zap.Int64("category_id", id), zap.Error(err))
		return fmt.Errorf("delete category: %w", err)
	}

	s.logger.Info("category deleted",
		zap.Int64("category_id", id),
		zap.Int64("actor_id", actor.ID),
	)
	return nil
}

// CreateManufacturer 创建生产商，名称唯一
func (s *catalogService) CreateManufacturer(actor *domain.User, req *domain.CreateManufacturerRequest) (*domain.Manufacturer, error) {
	if !policy.Can(actor.Role, policy.ActionDrugWrite) {
		return nil, errs.New(errs.KindPermission, "not allowed to manage drugs")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.New(errs.KindValidation, "name is required")
	}

	existing, err := s.manufacturerRepo.GetByName(name)
	if err != nil {
		s.logger.Error("failed to check manufacturer name", zap.Error(err))
		return nil, fmt.Errorf("check manufacturer name: %w", err)
	}
	if existing != nil {
		return nil, ErrManufacturerExists
	}

	manufacturer := &domain.Manufacturer{
		Name:    name,
		Country: req.Country,
		Contact: req.Contact,
	}
	if err := s.manufacturerRepo.Create(manufacturer); err != nil {
		s.logger.Error("failed to create manufacturer", zap.Error(err))
		return nil, fmt.Errorf("create manufacturer: %w", err)
	}

	s.logger.Info("manufacturer created",
		zap.Int64("manufacturer_id", manufacturer.ID),
		zap.String("name", manufacturer.Name),
		zap.Int64("actor_id", actor.ID),
	)
	return manufacturer, nil
}

// GetManufacturer 获取生产商详情
func (s *catalogService) GetManufacturer(id int64) (*domain.Manufacturer, error) {
	manufacturer, err := s.manufacturerRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get manufacturer", zap.Int64("manufacturer_id", id), zap.Error(err))
		return nil, fmt.Errorf("get manufacturer: %w", err)
	}
	if manufacturer == nil {
		return nil, ErrManufacturerNotFound
	}
	return manufacturer, nil
}

// ListManufacturers 获取全部生产商
func (s *catalogService) ListManufacturers() ([]*domain.Manufacturer, error) {
	manufacturers, err := s.manufacturerRepo.List()
	if err != nil {
		s.logger.Error("failed to list manufacturers", zap.Error(err))
		return nil, fmt.Errorf("list manufacturers: %w", err)
	}
	return manufacturers, nil
}

// UpdateManufacturer 更新生产商
func (s *catalogService) UpdateManufacturer(actor *domain.User, id int64, req *domain.UpdateManufacturerRequest) (*domain.Manufacturer, error) {
	if !policy.Can(actor.Role, policy.ActionDrugWrite) {
		return nil, errs.New(errs.KindPermission, "not allowed to manage drugs")
	}

	manufacturer, err := s.manufacturerRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get manufacturer", zap.Int64("manufacturer_id", id), zap.Error(err))
		return nil, fmt.Errorf("get manufacturer: %w", err)
	}
	if manufacturer == nil {
		return nil, ErrManufacturerNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, errs.New(errs.KindValidation, "name is required")
		}
		if name != manufacturer.Name {
			existing, err := s.manufacturerRepo.GetByName(name)
			if err != nil {
				return nil, fmt.Errorf("check manufacturer name: %w", err)
			}
			if existing != nil {
				return nil, ErrManufacturerExists
			}
		}
		manufacturer.Name = name
	}
	if req.Country != nil {
		manufacturer.Country = *req.Country
	}
	if req.Contact != nil {
		manufacturer.Contact = *req.Contact
	}

	if err := s.manufacturerRepo.Update(manufacturer); err != nil {
		s.logger.Error("failed to update manufacturer", zap.Int64("manufacturer_id", id), zap.Error(err))
		return nil, fmt.Errorf("update manufacturer: %w", err)
	}
	return manufacturer, nil
}

// DeleteManufacturer 删除生产商，引用它的药品外键置空
func (s *catalogService) DeleteManufacturer(actor *domain.User, id int64) error {
	if !policy.Can(actor.Role, policy.ActionDrugWrite) {
		return errs.New(errs.KindPermission, "not allowed to manage drugs")
	}

	manufacturer, err := s.manufacturerRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get manufacturer", zap.Int64("manufacturer_id", id), zap.Error(err))
		return fmt.Errorf("get manufacturer: %w", err)
	}
	if manufacturer == nil {
		return ErrManufacturerNotFound
	}

	if err := s.manufacturerRepo.Delete(id); err != nil {
		s.logger.Error("failed to delete manufacturer", zap.Int64("manufacturer_id", id), zap.Error(err))
		return fmt.Errorf("delete manufacturer: %w", err)
	}

	s.logger.Info("manufacturer deleted",
		zap.Int64("manufacturer_id", id),
		zap.Int64("actor_id", actor.ID),
	)
	return nil
}
