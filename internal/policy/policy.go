// Package policy 实现基于角色的访问控制。
// 纯谓词层，不依赖 HTTP 和存储：给定 (角色, 动作) 查表判定，
// 涉及资源归属的规则由显式的 ownership 谓词补充。
package policy

import (
	"github.com/pharmaops/pharmacy_server/internal/domain"
)

// Action 定义受控的业务动作
type Action string

const (
	ActionDrugRead           Action = "drug:read"
	ActionDrugWrite          Action = "drug:write"
	ActionStockChange        Action = "stock:change"
	ActionLedgerRead         Action = "ledger:read"
	ActionInventoryStats     Action = "inventory:stats"
	ActionPrescriptionCreate Action = "prescription:create"
	ActionPrescriptionRead   Action = "prescription:read"
	ActionPrescriptionFill   Action = "prescription:fill"
	ActionPrescriptionCancel Action = "prescription:cancel"
	ActionSaleCheckout       Action = "sale:checkout"
	ActionSaleRead           Action = "sale:read"
	ActionSaleStats          Action = "sale:stats"
	ActionUserManage         Action = "user:manage"
)

// allowTable 声明每个动作允许的角色集合。
// 带归属约束的动作(处方取消/读取、销售读取)在这里只做角色粗筛，
// 归属细则由下方谓词函数判定。
var allowTable = map[Action]map[domain.UserRole]bool{
	ActionDrugRead: {
		domain.UserRoleAdmin:        true,
		domain.UserRolePharmacist:   true,
		domain.UserRoleDoctor:       true,
		domain.UserRoleReceptionist: true,
		domain.UserRolePatient:      true,
	},
	ActionDrugWrite: {
		domain.UserRoleAdmin:      true,
		domain.UserRolePharmacist: true,
	},
	ActionStockChange: {
		domain.UserRoleAdmin:      true,
		domain.UserRolePharmacist: true,
	},
	ActionLedgerRead: {
		domain.UserRoleAdmin:      true,
		domain.UserRolePharmacist: true,
	},
	ActionInventoryStats: {
		domain.UserRoleAdmin:      true,
		domain.UserRolePharmacist: true,
	},
	ActionPrescriptionCreate: {
		domain.UserRoleDoctor: true,
	},
	ActionPrescriptionRead: {
		domain.UserRoleAdmin:      true,
		domain.UserRolePharmacist: true,
		domain.UserRoleDoctor:     true,
		domain.UserRolePatient:    true,
	},
	ActionPrescriptionFill: {
		domain.UserRoleAdmin:      true,
		domain.UserRolePharmacist: true,
	},
	ActionPrescriptionCancel: {
		domain.UserRoleAdmin:  true,
		domain.UserRoleDoctor: true,
	},
	ActionSaleCheckout: {
		domain.UserRoleAdmin:      true,
		domain.UserRolePharmacist: true,
	},
	ActionSaleRead: {
		domain.UserRoleAdmin:        true,
		domain.UserRolePharmacist:   true,
		domain.UserRoleReceptionist: true,
		domain.UserRolePatient:      true,
	},
	ActionSaleStats: {
		domain.UserRoleAdmin:      true,
		domain.UserRolePharmacist: true,
	},
	ActionUserManage: {
		domain.UserRoleAdmin: true,
	},
}

// Can 判定角色是否允许执行动作
func Can(role domain.UserRole, action Action) bool {
	roles, ok := allowTable[action]
	if !ok {
		return false
	}
	return roles[role]
}

// CanCancelPrescription 判定用户能否取消处方。
// 只有管理员或开具该处方的医生可以取消。
func CanCancelPrescription(actor *domain.User, p *domain.Prescription) bool {
	if actor.Role == domain.UserRoleAdmin {
		return true
	}
	return actor.Role == domain.UserRoleDoctor && p.DoctorID == actor.ID
}

// CanViewPrescription 判定用户能否查看处方。
// 管理员和药剂师可查看全部，医生只能查看自己开具的，
// 患者只能查看自己的处方。
func CanViewPrescription(actor *domain.User, p *domain.Prescription) bool {
	switch actor.Role {
	case domain.UserRoleAdmin, domain.UserRolePharmacist:
		return true
	case domain.UserRoleDoctor:
		return p.DoctorID == actor.ID
	case domain.UserRolePatient:
		return p.PatientID == actor.ID
	}
	return false
}

// PrescriptionScope 返回列表查询时的归属过滤条件。
// 返回 (患者ID过滤, 医生ID过滤)，nil 表示不过滤。
func PrescriptionScope(actor *domain.User) (patientID, doctorID *int64) {
	switch actor.Role {
	case domain.UserRoleDoctor:
		return nil, &actor.ID
	case domain.UserRolePatient:
		return &actor.ID, nil
	}
	return nil, nil
}

// CanViewSale 判定用户能否查看销售单。
// 患者只能查看自己的购买记录。
func CanViewSale(actor *domain.User, s *domain.Sale) bool {
	switch actor.Role {
	case domain.UserRoleAdmin, domain.UserRolePharmacist, domain.UserRoleReceptionist:
		return true
	case domain.UserRolePatient:
		return s.PatientID != nil && *s.PatientID == actor.ID
	}
	return false
}

// SaleScope 返回销售列表查询时的归属过滤条件，nil 表示不过滤
func SaleScope(actor *domain.User) (patientID *int64) {
	if actor.Role == domain.UserRolePatient {
		return &actor.ID
	}
	return nil
}
