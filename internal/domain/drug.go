// Package domain 定义药品目录相关的业务领域模型和核心业务规则。
package domain

import (
	"time"
)

// StockStatus 表示药品库存状态
type StockStatus string

const (
	StockStatusInStock    StockStatus = "IN_STOCK"     // 库存充足
	StockStatusLowStock   StockStatus = "LOW_STOCK"    // 低于补货阈值
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK" // 无库存
)

// Category 表示药品分类
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Manufacturer 表示药品生产商
type Manufacturer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Country   string    `json:"country"`
	Contact   string    `json:"contact"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateCategoryRequest 表示创建分类请求
type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateCategoryRequest 表示更新分类请求
type UpdateCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CreateManufacturerRequest 表示创建生产商请求
type CreateManufacturerRequest struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Contact string `json:"contact"`
}

// UpdateManufacturerRequest 表示更新生产商请求
type UpdateManufacturerRequest struct {
	Name    *string `json:"name"`
	Country *string `json:"country"`
	Contact *string `json:"contact"`
}

// Drug 表示药品领域模型。
// QuantityInStock 只允许通过库存台账(inventory service)修改，
// 其余写路径一律不得直接更新该字段。
type Drug struct {
	ID                   int64      `json:"id"`
	SKU                  string     `json:"sku"`
	Barcode              *string    `json:"barcode"`
	Name                 string     `json:"name"`
	GenericName          string     `json:"generic_name"`
	Description          string     `json:"description"`
	CategoryID           *int64     `json:"category_id"`
	ManufacturerID       *int64     `json:"manufacturer_id"`
	DosageForm           string     `json:"dosage_form"` // 剂型: tablet, capsule, syrup...
	Strength             string     `json:"strength"`    // 规格: 500mg 等
	UnitPrice            float64    `json:"unit_price"`
	SellingPrice         float64    `json:"selling_price"`
	QuantityInStock      int64      `json:"quantity_in_stock"`
	ReorderLevel         int64      `json:"reorder_level"`
	ExpiryDate           *time.Time `json:"expiry_date"`
	RequiresPrescription bool       `json:"requires_prescription"`
	IsActive             bool       `json:"is_active"`
	Version              int64      `json:"version"` // 乐观锁版本号
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsLowStock 判断是否达到补货阈值，含零库存
func (d *Drug) IsLowStock() bool {
	return d.QuantityInStock <= d.ReorderLevel
}

// IsOutOfStock 判断是否无库存
func (d *Drug) IsOutOfStock() bool {
	return d.QuantityInStock == 0
}

// StockStatus 返回派生的库存状态
func (d *Drug) StockStatus() StockStatus {
	switch {
	case d.IsOutOfStock():
		return StockStatusOutOfStock
	case d.IsLowStock():
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// ProfitMargin 返回毛利率(百分比)，进价为 0 时返回 0
func (d *Drug) ProfitMargin() float64 {
	if d.UnitPrice <= 0 {
		return 0
	}
	return (d.SellingPrice - d.UnitPrice) / d.UnitPrice * 100
}

// IsExpiringSoon 判断药品是否在给定天数内过期
func (d *Drug) IsExpiringSoon(now time.Time, days int) bool {
	if d.ExpiryDate == nil {
		return false
	}
	return !d.ExpiryDate.Before(now) && d.ExpiryDate.Before(now.AddDate(0, 0, days))
}

// CreateDrugRequest 表示创建药品请求
type CreateDrugRequest struct {
	SKU                  string     `json:"sku"`
	Barcode              *string    `json:"barcode"`
	Name                 string     `json:"name"`
	GenericName          string     `json:"generic_name"`
	Description          string     `json:"description"`
	CategoryID           *int64     `json:"category_id"`
	ManufacturerID       *int64     `json:"manufacturer_id"`
	DosageForm           string     `json:"dosage_form"`
	Strength             string     `json:"strength"`
	UnitPrice            float64    `json:"unit_price"`
	SellingPrice         float64    `json:"selling_price"`
	ReorderLevel         int64      `json:"reorder_level"`
	ExpiryDate           *time.Time `json:"expiry_date"`
	RequiresPrescription bool       `json:"requires_prescription"`
}

// UpdateDrugRequest 表示更新药品请求。
// 不包含库存数量，库存只能走台账调整。
type UpdateDrugRequest struct {
	Barcode              *string    `json:"barcode"`
	Name                 *string    `json:"name"`
	GenericName          *string    `json:"generic_name"`
	Description          *string    `json:"description"`
	CategoryID           *int64     `json:"category_id"`
	ManufacturerID       *int64     `json:"manufacturer_id"`
	DosageForm           *string    `json:"dosage_form"`
	Strength             *string    `json:"strength"`
	UnitPrice            *float64   `json:"unit_price"`
	SellingPrice         *float64   `json:"selling_price"`
	ReorderLevel         *int64     `json:"reorder_level"`
	ExpiryDate           *time.Time `json:"expiry_date"`
	RequiresPrescription *bool      `json:"requires_prescription"`
	IsActive             *bool      `json:"is_active"`
}

// DrugListRequest 表示药品列表查询请求
type DrugListRequest struct {
	Page           int     `json:"page"`      // 页码，从1开始
	PageSize       int     `json:"page_size"` // 每页大小
	Keyword        *string `json:"keyword"`   // 名称/通用名/SKU 模糊匹配
	CategoryID     *int64  `json:"category_id"`
	ManufacturerID *int64  `json:"manufacturer_id"`
	LowStock       *bool   `json:"low_stock"`   // 是否只显示低库存
	OutOfStock     *bool   `json:"out_of_stock"`
	IsActive       *bool   `json:"is_active"`
	SortBy         *string `json:"sort_by"`    // 排序字段: name, quantity_in_stock, updated_at
	SortOrder      *string `json:"sort_order"` // 排序顺序: asc, desc
}

// DrugView 表示带派生字段的药品视图
type DrugView struct {
	*Drug
	StockStatusValue StockStatus `json:"stock_status"`
	ProfitMarginPct  float64     `json:"profit_margin"`
}

// NewDrugView 构造带派生字段的药品视图
func NewDrugView(d *Drug) *DrugView {
	return &DrugView{
		Drug:             d,
		StockStatusValue: d.StockStatus(),
		ProfitMarginPct:  d.ProfitMargin(),
	}
}

// DrugListResponse 表示药品列表查询响应
type DrugListResponse struct {
	Drugs    []*DrugView `json:"drugs"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// InventoryStats 表示库存统计概览
type InventoryStats struct {
	TotalDrugs      int64   `json:"total_drugs"`
	ActiveDrugs     int64   `json:"active_drugs"`
	LowStockCount   int64   `json:"low_stock_count"`
	OutOfStockCount int64   `json:"out_of_stock_count"`
	TotalStockValue float64 `json:"total_stock_value"` // Σ quantity_in_stock * unit_price
}
