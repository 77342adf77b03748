// Package service 实现销售结账的业务逻辑。
// 结账是一次原子操作：库存扣减、台账追加、销售单与收款记录
// 全部在同一个事务内完成，任何一行失败则整单回滚。
package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
	"github.com/pharmaops/pharmacy_server/internal/policy"
	"github.com/pharmaops/pharmacy_server/internal/repo"
)

// SaleService 定义销售服务接口
type SaleService interface {
	Checkout(ctx context.Context, actor *domain.User, req *domain.CheckoutRequest) (*domain.Sale, error)
	GetSale(actor *domain.User, id int64) (*domain.Sale, error)
	ListSales(actor *domain.User, req *domain.SaleListRequest) (*domain.SaleListResponse, error)
	Stats(actor *domain.User, from, to time.Time) (*domain.SalesStats, error)
}

// saleService 是 SaleService 接口的实现
type saleService struct {
	tx               TxRunner
	saleRepo         repo.SaleRepository
	drugRepo         repo.DrugRepository
	stockTxRepo      repo.StockTransactionRepository
	prescriptionRepo repo.PrescriptionRepository
	userRepo         repo.UserRepository
	logger           *zap.Logger
}

// NewSaleService 创建销售服务实例
func NewSaleService(
	tx TxRunner,
	saleRepo repo.SaleRepository,
	drugRepo repo.DrugRepository,
	stockTxRepo repo.StockTransactionRepository,
	prescriptionRepo repo.PrescriptionRepository,
	userRepo repo.UserRepository,
	logger *zap.Logger,
) SaleService {
	return &saleService{
		tx:               tx,
		saleRepo:         saleRepo,
		drugRepo:         drugRepo,
		stockTxRepo:      stockTxRepo,
		prescriptionRepo: prescriptionRepo,
		userRepo:         userRepo,
		logger:           logger,
	}
}

// Checkout 销售结账。
// 事务内按药品ID升序加锁，先整单校验库存，再逐行扣减并追加
// SALE 台账记录；价格从药品当前值快照，金额全部由服务端重算。
func (s *saleService) Checkout(ctx context.Context, actor *domain.User, req *domain.CheckoutRequest) (*domain.Sale, error) {
	if !policy.Can(actor.Role, policy.ActionSaleCheckout) {
		return nil, errs.New(errs.KindPermission, "not allowed to checkout sales")
	}

	if err := s.validateCheckout(req); err != nil {
		return nil, err
	}

	var patientID *int64
	if req.PatientID > 0 {
		patient, err := s.userRepo.GetByID(req.PatientID)
		if err != nil {
			s.logger.Error("failed to get patient", zap.Int64("patient_id", req.PatientID), zap.Error(err))
			return nil, fmt.Errorf("get patient: %w", err)
		}
		if patient == nil || patient.Role != domain.UserRolePatient {
			return nil, errs.Newf(errs.KindValidation, "patient %d not found", req.PatientID)
		}
		patientID = &patient.ID
	}

	var prescriptionID *int64
	if req.PrescriptionID > 0 {
		prescription, err := s.prescriptionRepo.GetByID(req.PrescriptionID)
		if err != nil {
			s.logger.Error("failed to get prescription", zap.Int64("prescription_id", req.PrescriptionID), zap.Error(err))
			return nil, fmt.Errorf("get prescription: %w", err)
		}
		if prescription == nil {
			return nil, errs.Newf(errs.KindValidation, "prescription %d not found", req.PrescriptionID)
		}
		if prescription.Status == domain.PrescriptionStatusCancelled {
			return nil, errs.Newf(errs.KindInvalidState,
				"prescription %s is cancelled", prescription.PrescriptionNumber)
		}
		if patientID != nil && prescription.PatientID != *patientID {
			return nil, errs.Newf(errs.KindValidation,
				"prescription %s does not belong to patient %d",
				prescription.PrescriptionNumber, *patientID)
		}
		prescriptionID = &prescription.ID
	}

	invoiceNumber, err := generateUniqueNumber("INV", s.saleRepo.ExistsByNumber)
	if err != nil {
		return nil, err
	}

	// 按药品ID升序加锁，避免并发结账互相死锁
	lines := make([]*domain.CheckoutItemRequest, len(req.Items))
	copy(lines, req.Items)
	sort.Slice(lines, func(i, j int) bool { return lines[i].DrugID < lines[j].DrugID })

	var sale *domain.Sale
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		drugs := make(map[int64]*domain.Drug, len(lines))
		for _, line := range lines {
			drug, err := s.drugRepo.GetForUpdateInTx(tx, line.DrugID)
			if err != nil {
				return fmt.Errorf("lock drug: %w", err)
			}
			if drug == nil || !drug.IsActive {
				return errs.Newf(errs.KindValidation, "drug %d not found or inactive", line.DrugID)
			}
			if drug.RequiresPrescription && prescriptionID == nil {
				return errs.Newf(errs.KindValidation,
					"drug %s requires a prescription", drug.Name)
			}
			drugs[line.DrugID] = drug
		}

		// 先整单校验库存，任何一行不足则整单失败，不留下部分扣减
		for _, line := range lines {
			drug := drugs[line.DrugID]
			if line.Quantity > drug.QuantityInStock {
				return errs.Newf(errs.KindInsufficientStock,
					"insufficient stock for drug %s: have %d, want %d",
					drug.Name, drug.QuantityInStock, line.Quantity)
			}
		}

		var subtotal float64
		saleItems := make([]*domain.SaleItem, 0, len(lines))
		for _, line := range lines {
			drug := drugs[line.DrugID]
			newQuantity := drug.QuantityInStock - line.Quantity

			if err := s.drugRepo.UpdateStockInTx(tx, drug.ID, newQuantity); err != nil {
				return fmt.Errorf("update stock: %w", err)
			}

			st := &domain.StockTransaction{
				DrugID:      drug.ID,
				Type:        domain.StockTransactionSale,
				Quantity:    line.Quantity,
				UnitPrice:   drug.UnitPrice,
				TotalAmount: float64(line.Quantity) * drug.UnitPrice,
				Reference:   &invoiceNumber,
				CreatedByID: actor.ID,
			}
			if err := s.stockTxRepo.CreateInTx(tx, st); err != nil {
				return fmt.Errorf("append stock transaction: %w", err)
			}

			totalPrice := float64(line.Quantity) * drug.SellingPrice
			saleItems = append(saleItems, &domain.SaleItem{
				DrugID:       drug.ID,
				Quantity:     line.Quantity,
				UnitPrice:    drug.UnitPrice,
				SellingPrice: drug.SellingPrice,
				TotalPrice:   totalPrice,
				Profit:       (drug.SellingPrice - drug.UnitPrice) * float64(line.Quantity),
			})
			subtotal += totalPrice
		}

		totalAmount := subtotal - req.Discount + req.Tax
		if totalAmount < 0 {
			return errs.New(errs.KindValidation, "discount exceeds sale total")
		}

		changeGiven := req.AmountPaid - totalAmount
		if changeGiven < 0 {
			changeGiven = 0
		}

		sale = &domain.Sale{
			InvoiceNumber:  invoiceNumber,
			PatientID:      patientID,
			WalkInName:     strings.TrimSpace(req.WalkInName),
			WalkInPhone:    strings.TrimSpace(req.WalkInPhone),
			PrescriptionID: prescriptionID,
			Subtotal:       subtotal,
			Discount:       req.Discount,
			Tax:            req.Tax,
			TotalAmount:    totalAmount,
			AmountPaid:     req.AmountPaid,
			ChangeGiven:    changeGiven,
			PaymentMethod:  req.PaymentMethod,
			ServedByID:     actor.ID,
			Items:          saleItems,
		}
		if err := s.saleRepo.CreateInTx(tx, sale); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		payment := &domain.Payment{
			SaleID:       sale.ID,
			Amount:       req.AmountPaid,
			Method:       req.PaymentMethod,
			Reference:    strings.TrimSpace(req.PaymentReference),
			ReceivedByID: actor.ID,
		}
		if err := s.saleRepo.CreatePaymentInTx(tx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale checked out",
		zap.Int64("sale_id", sale.ID),
		zap.String("invoice", sale.InvoiceNumber),
		zap.Float64("total", sale.TotalAmount),
		zap.Int("items", len(sale.Items)),
		zap.Int64("actor_id", actor.ID),
	)

	return sale, nil
}

func (s *saleService) validateCheckout(req *domain.CheckoutRequest) error {
	if len(req.Items) == 0 {
		return errs.New(errs.KindValidation, "sale must have at least one item")
	}

	seen := make(map[int64]bool, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return errs.Newf(errs.KindValidation, "quantity must be positive for drug %d", item.DrugID)
		}
		if seen[item.DrugID] {
			return errs.Newf(errs.KindValidation, "duplicate line for drug %d", item.DrugID)
		}
		seen[item.DrugID] = true
	}

	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		return errs.Newf(errs.KindValidation, "invalid payment method: %s", req.PaymentMethod)
	}
	if req.Discount < 0 || req.Tax < 0 || req.AmountPaid < 0 {
		return errs.New(errs.KindValidation, "amounts must not be negative")
	}
	if req.PatientID == 0 && strings.TrimSpace(req.WalkInName) == "" {
		return errs.New(errs.KindValidation, "walk-in sales require a customer name")
	}
	return nil
}

// GetSale 获取销售单详情，患者只能查看自己的购买记录
func (s *saleService) GetSale(actor *domain.User, id int64) (*domain.Sale, error) {
	if !policy.Can(actor.Role, policy.ActionSaleRead) {
		return nil, errs.New(errs.KindPermission, "not allowed to read sales")
	}

	sale, err := s.saleRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get sale", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("get sale: %w", err)
	}
	if sale == nil {
		return nil, errs.Newf(errs.KindNotFound, "sale %d not found", id)
	}

	if !policy.CanViewSale(actor, sale) {
		return nil, errs.New(errs.KindPermission, "not allowed to view this sale")
	}

	return sale, nil
}

// ListSales 查询销售单列表，按归属规则过滤
func (s *saleService) ListSales(actor *domain.User, req *domain.SaleListRequest) (*domain.SaleListResponse, error) {
	if !policy.Can(actor.Role, policy.ActionSaleRead) {
		return nil, errs.New(errs.KindPermission, "not allowed to read sales")
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	if patientID := policy.SaleScope(actor); patientID != nil {
		req.PatientID = patientID
	}

	sales, total, err := s.saleRepo.List(req)
	if err != nil {
		s.logger.Error("failed to list sales", zap.Error(err))
		return nil, fmt.Errorf("list sales: %w", err)
	}

	return &domain.SaleListResponse{
		Sales:    sales,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}

// Stats 返回区间内的销售统计
func (s *saleService) Stats(actor *domain.User, from, to time.Time) (*domain.SalesStats, error) {
	if !policy.Can(actor.Role, policy.ActionSaleStats) {
		return nil, errs.New(errs.KindPermission, "not allowed to view sales stats")
	}
	if !to.After(from) {
		return nil, errs.New(errs.KindValidation, "invalid stats range")
	}

	stats, err := s.saleRepo.Stats(from, to)
	if err != nil {
		s.logger.Error("failed to get sales stats", zap.Error(err))
		return nil, fmt.Errorf("get sales stats: %w", err)
	}
	return stats, nil
}
