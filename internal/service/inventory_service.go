// Package service 实现库存台账的业务逻辑。
// 库存数量的每一次变化都对应一条只追加的台账记录，
// 数量更新与台账写入在同一个事务内完成。
package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
	"github.com/pharmaops/pharmacy_server/internal/policy"
	"github.com/pharmaops/pharmacy_server/internal/repo"
)

// InventoryService 定义库存台账服务接口。
// ApplyStockChange 是系统中唯一允许修改药品库存数量的入口。
type InventoryService interface {
	ApplyStockChange(ctx context.Context, actor *domain.User, drugID int64, req *domain.StockChangeRequest) (*domain.StockChangeResult, error)
	GetTransaction(actor *domain.User, id int64) (*domain.StockTransaction, error)
	ListTransactions(actor *domain.User, req *domain.StockTransactionListRequest) (*domain.StockTransactionListResponse, error)
}

// inventoryService 是 InventoryService 接口的实现
type inventoryService struct {
	tx              TxRunner
	drugRepo        repo.DrugRepository
	stockTxRepo     repo.StockTransactionRepository
	strictDeduction bool
	logger          *zap.Logger
}

// NewInventoryService 创建库存服务实例。
// strictDeduction 为 true 时，出库数量超过现存量直接报错；
// 否则库存钳制到 0，实际扣减量在结果中报告。
func NewInventoryService(
	tx TxRunner,
	drugRepo repo.DrugRepository,
	stockTxRepo repo.StockTransactionRepository,
	strictDeduction bool,
	logger *zap.Logger,
) InventoryService {
	return &inventoryService{
		tx:              tx,
		drugRepo:        drugRepo,
		stockTxRepo:     stockTxRepo,
		strictDeduction: strictDeduction,
		logger:          logger,
	}
}

// ApplyStockChange 应用一次库存变更。
// 在单个事务内：锁定药品行，计算新库存，写入新数量，追加台账记录。
// 台账记录的数量为实际应用的数量，金额由服务端按 quantity * unit_price 计算。
func (s *inventoryService) ApplyStockChange(ctx context.Context, actor *domain.User, drugID int64, req *domain.StockChangeRequest) (*domain.StockChangeResult, error) {
	if !policy.Can(actor.Role, policy.ActionStockChange) {
		return nil, errs.New(errs.KindPermission, "not allowed to change stock")
	}

	if err := validateStockChange(req); err != nil {
		return nil, err
	}

	var result *domain.StockChangeResult
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		drug, err := s.drugRepo.GetForUpdateInTx(tx, drugID)
		if err != nil {
			return fmt.Errorf("lock drug: %w", err)
		}
		if drug == nil {
			return errs.Newf(errs.KindNotFound, "drug %d not found", drugID)
		}

		applied := req.Quantity
		clamped := false
		var newQuantity int64

		if req.Type.IsIncreasing() {
			newQuantity = drug.QuantityInStock + req.Quantity
		} else {
			if req.Quantity > drug.QuantityInStock {
				if s.strictDeduction {
					return errs.Newf(errs.KindInsufficientStock,
						"insufficient stock for drug %d: have %d, want %d",
						drugID, drug.QuantityInStock, req.Quantity)
				}
				applied = drug.QuantityInStock
				clamped = true
			}
			newQuantity = drug.QuantityInStock - applied
		}

		if err := s.drugRepo.UpdateStockInTx(tx, drugID, newQuantity); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		st := &domain.StockTransaction{
			DrugID:      drugID,
			Type:        req.Type,
			Quantity:    applied,
			UnitPrice:   req.UnitPrice,
			TotalAmount: float64(applied) * req.UnitPrice,
			BatchNumber: req.BatchNumber,
			ExpiryDate:  req.ExpiryDate,
			Reference:   req.Reference,
			Notes:       req.Notes,
			CreatedByID: actor.ID,
		}
		if err := s.stockTxRepo.CreateInTx(tx, st); err != nil {
			return fmt.Errorf("append stock transaction: %w", err)
		}

		drug.QuantityInStock = newQuantity
		result = &domain.StockChangeResult{
			Transaction:     st,
			Drug:            drug,
			AppliedQuantity: applied,
			Clamped:         clamped,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock change applied",
		zap.Int64("drug_id", drugID),
		zap.String("type", string(req.Type)),
		zap.Int64("requested", req.Quantity),
		zap.Int64("applied", result.AppliedQuantity),
		zap.Bool("clamped", result.Clamped),
		zap.Int64("new_quantity", result.Drug.QuantityInStock),
		zap.Int64("actor_id", actor.ID),
	)

	return result, nil
}

func validateStockChange(req *domain.StockChangeRequest) error {
	if !domain.ValidStockTransactionType(req.Type) {
		return errs.Newf(errs.KindValidation, "invalid stock transaction type: %s", req.Type)
	}
	if req.Quantity <= 0 {
		return errs.New(errs.KindValidation, "quantity must be positive")
	}
	if req.UnitPrice < 0 {
		return errs.New(errs.KindValidation, "unit price must not be negative")
	}
	return nil
}

// GetTransaction 获取单条台账记录
func (s *inventoryService) GetTransaction(actor *domain.User, id int64) (*domain.StockTransaction, error) {
	if !policy.Can(actor.Role, policy.ActionLedgerRead) {
		return nil, errs.New(errs.KindPermission, "not allowed to read stock ledger")
	}

	st, err := s.stockTxRepo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get stock transaction", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("get stock transaction: %w", err)
	}
	if st == nil {
		return nil, errs.Newf(errs.KindNotFound, "stock transaction %d not found", id)
	}
	return st, nil
}

// ListTransactions 查询台账记录
func (s *inventoryService) ListTransactions(actor *domain.User, req *domain.StockTransactionListRequest) (*domain.StockTransactionListResponse, error) {
	if !policy.Can(actor.Role, policy.ActionLedgerRead) {
		return nil, errs.New(errs.KindPermission, "not allowed to read stock ledger")
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}
	if req.Type != nil && !domain.ValidStockTransactionType(*req.Type) {
		return nil, errs.Newf(errs.KindValidation, "invalid stock transaction type: %s", *req.Type)
	}

	transactions, total, err := s.stockTxRepo.List(req)
	if err != nil {
		s.logger.Error("failed to list stock transactions", zap.Error(err))
		return nil, fmt.Errorf("list stock transactions: %w", err)
	}

	return &domain.StockTransactionListResponse{
		Transactions: transactions,
		Total:        total,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}, nil
}
