// Package domain 定义销售相关的业务领域模型和核心业务规则。
package domain

import (
	"time"
)

// PaymentMethod 定义支付方式类型
type PaymentMethod string

const (
	PaymentMethodCash      PaymentMethod = "CASH"      // 现金
	PaymentMethodCard      PaymentMethod = "CARD"      // 银行卡
	PaymentMethodMobile    PaymentMethod = "MOBILE"    // 移动支付
	PaymentMethodInsurance PaymentMethod = "INSURANCE" // 医保
)

// ValidPaymentMethod 判断支付方式值是否合法
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodMobile, PaymentMethodInsurance:
		return true
	}
	return false
}

// SaleItem 表示销售明细项。
// UnitPrice 与 SellingPrice 在结账时从药品快照，
// 之后的调价不会影响历史销售记录。
type SaleItem struct {
	ID           int64   `json:"id"`
	SaleID       int64   `json:"sale_id"`
	DrugID       int64   `json:"drug_id"`
	Quantity     int64   `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`    // 成本价快照
	SellingPrice float64 `json:"selling_price"` // 售价快照
	TotalPrice   float64 `json:"total_price"`   // quantity * selling_price
	Profit       float64 `json:"profit"`        // (selling_price - unit_price) * quantity
}

// Sale 表示销售单领域模型。
// 金额字段全部由服务端重新计算，不信任客户端输入。
type Sale struct {
	ID             int64         `json:"id"`
	InvoiceNumber  string        `json:"invoice_number"`
	PatientID      *int64        `json:"patient_id"`
	WalkInName     string        `json:"walk_in_name"`
	WalkInPhone    string        `json:"walk_in_phone"`
	PrescriptionID *int64        `json:"prescription_id"`
	Subtotal       float64       `json:"subtotal"`
	Discount       float64       `json:"discount"`
	Tax            float64       `json:"tax"`
	TotalAmount    float64       `json:"total_amount"` // subtotal - discount + tax
	AmountPaid     float64       `json:"amount_paid"`
	ChangeGiven    float64       `json:"change_given"` // max(0, amount_paid - total_amount)
	PaymentMethod  PaymentMethod `json:"payment_method"`
	ServedByID     int64         `json:"served_by_id"`
	CreatedAt      time.Time     `json:"created_at"`
	Items          []*SaleItem   `json:"items,omitempty"`
}

// TotalProfit 返回整单利润
func (s *Sale) TotalProfit() float64 {
	var profit float64
	for _, item := range s.Items {
		profit += item.Profit
	}
	return profit
}

// Payment 表示一条收款记录
type Payment struct {
	ID           int64         `json:"id"`
	SaleID       int64         `json:"sale_id"`
	Amount       float64       `json:"amount"`
	Method       PaymentMethod `json:"method"`
	Reference    string        `json:"reference"` // 外部支付流水号
	ReceivedByID int64         `json:"received_by_id"`
	CreatedAt    time.Time     `json:"created_at"`
}

// CheckoutItemRequest 表示结账请求中的单个商品行
type CheckoutItemRequest struct {
	DrugID   int64 `json:"drug_id"`
	Quantity int64 `json:"quantity"`
}

// CheckoutRequest 表示结账请求
type CheckoutRequest struct {
	PatientID        int64                  `json:"patient_id"`        // 0 表示散客
	WalkInName       string                 `json:"walk_in_name"`      // 散客姓名
	WalkInPhone      string                 `json:"walk_in_phone"`     // 散客电话
	PrescriptionID   int64                  `json:"prescription_id"`   // 0 表示无关联处方
	Items            []*CheckoutItemRequest `json:"items"`
	Discount         float64                `json:"discount"`
	Tax              float64                `json:"tax"`
	AmountPaid       float64                `json:"amount_paid"`
	PaymentMethod    PaymentMethod          `json:"payment_method"`
	PaymentReference string                 `json:"payment_reference"`
}

// SaleListRequest 表示销售列表查询请求
type SaleListRequest struct {
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	PatientID *int64         `json:"patient_id"`
	Method    *PaymentMethod `json:"method"`
	From      *time.Time     `json:"from"`
	To        *time.Time     `json:"to"`
}

// SaleListResponse 表示销售列表查询响应
type SaleListResponse struct {
	Sales    []*Sale `json:"sales"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// SalesStats 表示销售统计概览
type SalesStats struct {
	SaleCount    int64                     `json:"sale_count"`
	TotalRevenue float64                   `json:"total_revenue"`
	TotalProfit  float64                   `json:"total_profit"`
	ByMethod     map[PaymentMethod]float64 `json:"by_method"`
}
