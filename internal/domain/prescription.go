// Package domain 定义处方相关的业务领域模型和核心业务规则。
package domain

import (
	"time"
)

// PrescriptionStatus 定义处方状态类型
type PrescriptionStatus string

const (
	PrescriptionStatusPending         PrescriptionStatus = "PENDING"          // 待配药
	PrescriptionStatusPartiallyFilled PrescriptionStatus = "PARTIALLY_FILLED" // 部分配药
	PrescriptionStatusFilled          PrescriptionStatus = "FILLED"           // 已配完(终态)
	PrescriptionStatusCancelled       PrescriptionStatus = "CANCELLED"        // 已取消(终态)
)

// ValidPrescriptionStatus 判断处方状态值是否合法
func ValidPrescriptionStatus(s PrescriptionStatus) bool {
	switch s {
	case PrescriptionStatusPending, PrescriptionStatusPartiallyFilled,
		PrescriptionStatusFilled, PrescriptionStatusCancelled:
		return true
	}
	return false
}

// PrescriptionItem 表示处方明细项。
// QuantityFilled 单调不减，且永远不超过 Quantity。
type PrescriptionItem struct {
	ID             int64     `json:"id"`
	PrescriptionID int64     `json:"prescription_id"`
	DrugID         int64     `json:"drug_id"`
	Quantity       int64     `json:"quantity"`        // 处方开具数量
	QuantityFilled int64     `json:"quantity_filled"` // 已配药数量
	Dosage         string    `json:"dosage"`
	Frequency      string    `json:"frequency"`
	Duration       string    `json:"duration"`
	Instructions   string    `json:"instructions"`
	CreatedAt      time.Time `json:"created_at"`
}

// Remaining 返回该项尚未配药的数量
func (i *PrescriptionItem) Remaining() int64 {
	return i.Quantity - i.QuantityFilled
}

// IsFullyFilled 判断该项是否已配完
func (i *PrescriptionItem) IsFullyFilled() bool {
	return i.QuantityFilled >= i.Quantity
}

// Prescription 表示处方领域模型
type Prescription struct {
	ID                 int64               `json:"id"`
	PrescriptionNumber string              `json:"prescription_number"`
	PatientID          int64               `json:"patient_id"`
	DoctorID           int64               `json:"doctor_id"`
	Diagnosis          string              `json:"diagnosis"`
	Status             PrescriptionStatus  `json:"status"`
	IssueDate          time.Time           `json:"issue_date"`
	ValidUntil         time.Time           `json:"valid_until"`
	FilledDate         *time.Time          `json:"filled_date"`
	FilledByID         *int64              `json:"filled_by_id"`
	Notes              string              `json:"notes"`
	Version            int64               `json:"version"` // 乐观锁版本号
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	Items              []*PrescriptionItem `json:"items,omitempty"`
}

// IsTerminal 判断处方是否处于终态
func (p *Prescription) IsTerminal() bool {
	return p.Status == PrescriptionStatusFilled || p.Status == PrescriptionStatusCancelled
}

// IsExpired 判断处方是否已过有效期
func (p *Prescription) IsExpired(now time.Time) bool {
	return now.After(p.ValidUntil)
}

// DeriveStatus 由明细项的配药进度推导处方状态。
// 全部配完为 FILLED，有任意配药量为 PARTIALLY_FILLED，否则 PENDING。
// 不考虑 CANCELLED，取消由显式操作设置。
func (p *Prescription) DeriveStatus() PrescriptionStatus {
	if len(p.Items) == 0 {
		return PrescriptionStatusPending
	}
	allFilled := true
	anyFilled := false
	for _, item := range p.Items {
		if item.QuantityFilled > 0 {
			anyFilled = true
		}
		if !item.IsFullyFilled() {
			allFilled = false
		}
	}
	switch {
	case allFilled:
		return PrescriptionStatusFilled
	case anyFilled:
		return PrescriptionStatusPartiallyFilled
	default:
		return PrescriptionStatusPending
	}
}

// CreatePrescriptionItemRequest 表示创建处方明细请求
type CreatePrescriptionItemRequest struct {
	DrugID       int64  `json:"drug_id"`
	Quantity     int64  `json:"quantity"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
}

// CreatePrescriptionRequest 表示医生开具处方请求
type CreatePrescriptionRequest struct {
	PatientID  int64                            `json:"patient_id"`
	Diagnosis  string                           `json:"diagnosis"`
	ValidUntil time.Time                        `json:"valid_until"`
	Notes      string                           `json:"notes"`
	Items      []*CreatePrescriptionItemRequest `json:"items"`
}

// FillItemRequest 表示单个明细项的配药请求
type FillItemRequest struct {
	ItemID   int64 `json:"item_id"`
	Quantity int64 `json:"quantity"` // 本次配药数量
}

// FillPrescriptionRequest 表示配药请求。
// 整批校验通过后才会应用任何一项，任一项不合法则整批拒绝。
type FillPrescriptionRequest struct {
	Items []*FillItemRequest `json:"items"`
}

// PrescriptionListRequest 表示处方列表查询请求
type PrescriptionListRequest struct {
	Page      int                 `json:"page"`
	PageSize  int                 `json:"page_size"`
	PatientID *int64              `json:"patient_id"`
	DoctorID  *int64              `json:"doctor_id"`
	Status    *PrescriptionStatus `json:"status"`
}

// PrescriptionListResponse 表示处方列表查询响应
type PrescriptionListResponse struct {
	Prescriptions []*Prescription `json:"prescriptions"`
	Total         int64           `json:"total"`
	Page          int             `json:"page"`
	PageSize      int             `json:"page_size"`
}
