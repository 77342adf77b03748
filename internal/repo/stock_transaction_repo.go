// Package repo 实现库存台账的数据访问层。
package repo

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pharmaops/pharmacy_server/internal/domain"
)

// StockTransactionRepository 定义库存台账数据访问接口。
// 台账只追加：接口不提供更新或删除方法。
type StockTransactionRepository interface {
	CreateInTx(tx *sql.Tx, st *domain.StockTransaction) error
	GetByID(id int64) (*domain.StockTransaction, error)
	List(req *domain.StockTransactionListRequest) ([]*domain.StockTransaction, int64, error)
}

// stockTransactionRepo 实现 StockTransactionRepository 接口
type stockTransactionRepo struct {
	db *sql.DB
}

// NewStockTransactionRepository 创建库存台账仓储实例
func NewStockTransactionRepository(db *sql.DB) StockTransactionRepository {
	return &stockTransactionRepo{db: db}
}

const stockTransactionColumns = `id, drug_id, type, quantity, unit_price, total_amount,
	batch_number, expiry_date, reference, notes, created_by_id, created_at`

func scanStockTransaction(row interface{ Scan(...any) error }) (*domain.StockTransaction, error) {
	st := &domain.StockTransaction{}
	err := row.Scan(
		&st.ID,
		&st.DrugID,
		&st.Type,
		&st.Quantity,
		&st.UnitPrice,
		&st.TotalAmount,
		&st.BatchNumber,
		&st.ExpiryDate,
		&st.Reference,
		&st.Notes,
		&st.CreatedByID,
		&st.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// CreateInTx 在事务内追加一条台账记录。
// 与对应的库存数量更新共用一个事务，保证二者原子落库。
func (r *stockTransactionRepo) CreateInTx(tx *sql.Tx, st *domain.StockTransaction) error {
	query := `
		INSERT INTO stock_transactions (drug_id, type, quantity, unit_price, total_amount,
			batch_number, expiry_date, reference, notes, created_by_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.Exec(query,
		st.DrugID,
		string(st.Type),
		st.Quantity,
		st.UnitPrice,
		st.TotalAmount,
		st.BatchNumber,
		st.ExpiryDate,
		st.Reference,
		st.Notes,
		st.CreatedByID,
	)
	if err != nil {
		return fmt.Errorf("create stock transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	st.ID = id
	return nil
}

// GetByID 根据ID获取台账记录
func (r *stockTransactionRepo) GetByID(id int64) (*domain.StockTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_transactions WHERE id = ?`, stockTransactionColumns)

	st, err := scanStockTransaction(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock transaction by id: %w", err)
	}
	return st, nil
}

// List 获取台账列表
func (r *stockTransactionRepo) List(req *domain.StockTransactionListRequest) ([]*domain.StockTransaction, int64, error) {
	var conditions []string
	var args []any

	if req.DrugID != nil {
		conditions = append(conditions, "drug_id = ?")
		args = append(args, *req.DrugID)
	}
	if req.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*req.Type))
	}
	if req.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *req.From)
	}
	if req.To != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, *req.To)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM stock_transactions %s`, where)
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stock transactions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM stock_transactions %s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, stockTransactionColumns, where)

	args = append(args, req.PageSize, (req.Page-1)*req.PageSize)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query stock transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*domain.StockTransaction
	for rows.Next() {
		st, err := scanStockTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan stock transaction: %w", err)
		}
		transactions = append(transactions, st)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate stock transactions: %w", err)
	}

	return transactions, total, nil
}
