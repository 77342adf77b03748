// Package domain 定义库存台账相关的业务领域模型和核心业务规则。
package domain

import (
	"time"
)

// StockTransactionType 定义库存事务类型
type StockTransactionType string

const (
	StockTransactionPurchase   StockTransactionType = "PURCHASE"   // 采购入库
	StockTransactionSale       StockTransactionType = "SALE"       // 销售出库
	StockTransactionReturn     StockTransactionType = "RETURN"     // 退货入库
	StockTransactionAdjustment StockTransactionType = "ADJUSTMENT" // 盘点调整入库
	StockTransactionExpired    StockTransactionType = "EXPIRED"    // 过期出库
	StockTransactionDamaged    StockTransactionType = "DAMAGED"    // 损耗出库
)

// IsIncreasing 判断事务类型是否增加库存
func (t StockTransactionType) IsIncreasing() bool {
	switch t {
	case StockTransactionPurchase, StockTransactionReturn, StockTransactionAdjustment:
		return true
	}
	return false
}

// IsDecreasing 判断事务类型是否减少库存
func (t StockTransactionType) IsDecreasing() bool {
	switch t {
	case StockTransactionSale, StockTransactionExpired, StockTransactionDamaged:
		return true
	}
	return false
}

// ValidStockTransactionType 判断事务类型值是否合法
func ValidStockTransactionType(t StockTransactionType) bool {
	return t.IsIncreasing() || t.IsDecreasing()
}

// StockTransaction 表示一条库存台账记录。
// 台账只追加，创建后不允许更新或删除；
// TotalAmount 永远由服务端按 quantity * unit_price 重新计算。
type StockTransaction struct {
	ID          int64                `json:"id"`
	DrugID      int64                `json:"drug_id"`
	Type        StockTransactionType `json:"type"`
	Quantity    int64                `json:"quantity"`
	UnitPrice   float64              `json:"unit_price"`
	TotalAmount float64              `json:"total_amount"`
	BatchNumber *string              `json:"batch_number"`
	ExpiryDate  *time.Time           `json:"expiry_date"`
	Reference   *string              `json:"reference"` // 关联单号，如销售发票号
	Notes       string               `json:"notes"`
	CreatedByID int64                `json:"created_by_id"`
	CreatedAt   time.Time            `json:"created_at"`
}

// StockChangeRequest 表示库存变更请求
type StockChangeRequest struct {
	Type        StockTransactionType `json:"type"`
	Quantity    int64                `json:"quantity"`
	UnitPrice   float64              `json:"unit_price"`
	BatchNumber *string              `json:"batch_number"`
	ExpiryDate  *time.Time           `json:"expiry_date"`
	Reference   *string              `json:"reference"`
	Notes       string               `json:"notes"`
}

// StockChangeResult 表示库存变更结果。
// 出库数量超过现存量且未启用严格模式时，库存被钳制到 0，
// AppliedQuantity 报告实际扣减的数量，Clamped 置位。
type StockChangeResult struct {
	Transaction     *StockTransaction `json:"transaction"`
	Drug            *Drug             `json:"drug"`
	AppliedQuantity int64             `json:"applied_quantity"`
	Clamped         bool              `json:"clamped"`
}

// StockTransactionListRequest 表示台账列表查询请求
type StockTransactionListRequest struct {
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	DrugID   *int64                `json:"drug_id"`
	Type     *StockTransactionType `json:"type"`
	From     *time.Time            `json:"from"`
	To       *time.Time            `json:"to"`
}

// StockTransactionListResponse 表示台账列表查询响应
type StockTransactionListResponse struct {
	Transactions []*StockTransaction `json:"transactions"`
	Total        int64               `json:"total"`
	Page         int                 `json:"page"`
	PageSize     int                 `json:"page_size"`
}
