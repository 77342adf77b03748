// Package domain 定义业务领域模型和核心业务规则。
// 领域模型是业务逻辑的核心，独立于外部依赖（数据库、HTTP等）。
package domain

import (
	"time"
)

// UserRole 定义用户角色类型
type UserRole string

const (
	UserRoleAdmin        UserRole = "ADMIN"        // 系统管理员
	UserRolePharmacist   UserRole = "PHARMACIST"   // 药剂师
	UserRoleDoctor       UserRole = "DOCTOR"       // 医生
	UserRoleReceptionist UserRole = "RECEPTIONIST" // 前台
	UserRolePatient      UserRole = "PATIENT"      // 患者
)

// ValidRole 判断角色值是否合法
func ValidRole(r UserRole) bool {
	switch r {
	case UserRoleAdmin, UserRolePharmacist, UserRoleDoctor, UserRoleReceptionist, UserRolePatient:
		return true
	}
	return false
}

// User 表示用户领域模型
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // JSON序列化时忽略密码哈希
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `json:"phone"`
	Role         UserRole  `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin 判断用户是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// FullName 返回用户全名
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// RegisterRequest 表示用户注册请求
type RegisterRequest struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Phone     string   `json:"phone"`
	Role      UserRole `json:"role"` // 仅管理员创建用户时生效，自助注册固定为 PATIENT
}

// LoginRequest 表示用户登录请求
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse 表示登录成功的响应
type LoginResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokenRequest 表示刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UpdateUserRequest 表示管理员更新用户请求
type UpdateUserRequest struct {
	Role     *UserRole `json:"role"`
	IsActive *bool     `json:"is_active"`
	Phone    *string   `json:"phone"`
}

// UserListRequest 表示用户列表查询请求
type UserListRequest struct {
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Role     *UserRole `json:"role"`
	IsActive *bool     `json:"is_active"`
}

// UserListResponse 表示用户列表查询响应
type UserListResponse struct {
	Users    []*User `json:"users"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}
