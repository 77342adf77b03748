// Package service 提供业务逻辑层实现。
// 服务层负责协调领域对象和仓储，实现具体的业务用例。
package service

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
	"github.com/pharmaops/pharmacy_server/internal/policy"
	"github.com/pharmaops/pharmacy_server/internal/repo"
)

// 定义业务错误
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
)

// UserService 定义用户服务接口
type UserService interface {
	Register(req *domain.RegisterRequest) (*domain.User, error)
	Login(req *domain.LoginRequest) (*domain.User, error)
	GetUserByID(id int64) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)

	// 管理员操作
	CreateUser(actor *domain.User, req *domain.RegisterRequest) (*domain.User, error)
	UpdateUser(actor *domain.User, userID int64, req *domain.UpdateUserRequest) (*domain.User, error)
	ListUsers(actor *domain.User, req *domain.UserListRequest) (*domain.UserListResponse, error)
}

// userService 是 UserService 接口的实现
type userService struct {
	userRepo repo.UserRepository
	logger   *zap.Logger
}

// NewUserService 创建用户服务实例
func NewUserService(userRepo repo.UserRepository, logger *zap.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		logger:   logger,
	}
}

// Register 用户自助注册
// 业务规则：
// 1. 邮箱不能重复
// 2. 密码进行bcrypt哈希
// 3. 自助注册的账户固定为患者角色
func (s *userService) Register(req *domain.RegisterRequest) (*domain.User, error) {
	user, err := s.createUser(req, domain.UserRolePatient)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered successfully",
		zap.Int64("user_id", user.ID),
		zap.String("email", user.Email),
	)
	return user, nil
}

// CreateUser 管理员创建员工账户，可指定任意合法角色
func (s *userService) CreateUser(actor *domain.User, req *domain.RegisterRequest) (*domain.User, error) {
	if !policy.Can(actor.Role, policy.ActionUserManage) {
		return nil, errs.New(errs.KindPermission, "not allowed to manage users")
	}

	role := req.Role
	if role == "" {
		role = domain.UserRolePatient
	}
	if !domain.ValidRole(role) {
		return nil, errs.Newf(errs.KindValidation, "invalid role: %s", role)
	}

	user, err := s.createUser(req, role)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created by admin",
		zap.Int64("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("role", string(user.Role)),
		zap.Int64("actor_id", actor.ID),
	)
	return user, nil
}

func (s *userService) createUser(req *domain.RegisterRequest, role domain.UserRole) (*domain.User, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		return nil, errs.New(errs.KindValidation, "email is required")
	}
	if len(req.Password) < 8 {
		return nil, errs.New(errs.KindValidation, "password must be at least 8 characters")
	}

	existingUser, err := s.userRepo.GetByEmail(email)
	if err != nil {
		s.logger.Error("failed to check email", zap.Error(err))
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existingUser != nil {
		return nil, ErrUserExists
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(passwordHash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         role,
		IsActive:     true,
	}

	if err := s.userRepo.Create(user); err != nil {
		s.logger.Error("failed to create user", zap.Error(err))
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Login 用户登录
// 业务规则：
// 1. 邮箱登录
// 2. 验证密码正确性
// 3. 检查用户是否处于活跃状态
func (s *userService) Login(req *domain.LoginRequest) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		s.logger.Error("failed to get user by email", zap.Error(err))
		return nil, fmt.Errorf("get user: %w", err)
	}

	if user == nil {
		return nil, ErrUserNotFound
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	// bcrypt.CompareHashAndPassword 自动处理盐值，且比较时间恒定
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	if err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("failed to compare password", zap.Error(err))
		return nil, fmt.Errorf("compare password: %w", err)
	}

	s.logger.Info("user logged in successfully",
		zap.Int64("user_id", user.ID),
		zap.String("email", user.Email),
	)

	return user, nil
}

// GetUserByID 根据ID获取用户
func (s *userService) GetUserByID(id int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get user by id", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("get user: %w", err)
	}

	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *userService) GetUserByEmail(email string) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		s.logger.Error("failed to get user by email", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("get user: %w", err)
	}

	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

// UpdateUser 管理员更新用户的角色、状态或电话
func (s *userService) UpdateUser(actor *domain.User, userID int64, req *domain.UpdateUserRequest) (*domain.User, error) {
	if !policy.Can(actor.Role, policy.ActionUserManage) {
		return nil, errs.New(errs.KindPermission, "not allowed to manage users")
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		s.logger.Error("failed to get user by id", zap.Int64("id", userID), zap.Error(err))
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if req.Role != nil {
		if !domain.ValidRole(*req.Role) {
			return nil, errs.Newf(errs.KindValidation, "invalid role: %s", *req.Role)
		}
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}

	if err := s.userRepo.Update(user); err != nil {
		s.logger.Error("failed to update user", zap.Int64("id", userID), zap.Error(err))
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.logger.Info("user updated",
		zap.Int64("user_id", user.ID),
		zap.Int64("actor_id", actor.ID),
	)

	return user, nil
}

// ListUsers 管理员查询用户列表
func (s *userService) ListUsers(actor *domain.User, req *domain.UserListRequest) (*domain.UserListResponse, error) {
	if !policy.Can(actor.Role, policy.ActionUserManage) {
		return nil, errs.New(errs.KindPermission, "not allowed to manage users")
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	users, total, err := s.userRepo.List(req)
	if err != nil {
		s.logger.Error("failed to list users", zap.Error(err))
		return nil, fmt.Errorf("list users: %w", err)
	}

	return &domain.UserListResponse{
		Users:    users,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}
