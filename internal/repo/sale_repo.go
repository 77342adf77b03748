// Package repo 实现销售单的数据访问层。
package repo

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pharmaops/pharmacy_server/internal/domain"
)

// SaleRepository 定义销售数据访问接口。
// 结账写入销售单、明细与收款记录，与库存扣减共用同一事务，
// 相关方法以 *InTx 形式提供。
type SaleRepository interface {
	GetByID(id int64) (*domain.Sale, error)
	ExistsByNumber(number string) (bool, error)
	List(req *domain.SaleListRequest) ([]*domain.Sale, int64, error)
	Stats(from, to time.Time) (*domain.SalesStats, error)

	// 事务内操作
	CreateInTx(tx *sql.Tx, s *domain.Sale) error
	CreatePaymentInTx(tx *sql.Tx, p *domain.Payment) error
}

// saleRepo 实现 SaleRepository 接口
type saleRepo struct {
	db *sql.DB
}

// NewSaleRepository 创建销售仓储实例
func NewSaleRepository(db *sql.DB) SaleRepository {
	return &saleRepo{db: db}
}

const saleColumns = `id, invoice_number, patient_id, walk_in_name, walk_in_phone, prescription_id,
	subtotal, discount, tax, total_amount, amount_paid, change_given, payment_method, served_by_id, created_at`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	s := &domain.Sale{}
	err := row.Scan(
		&s.ID,
		&s.InvoiceNumber,
		&s.PatientID,
		&s.WalkInName,
		&s.WalkInPhone,
		&s.PrescriptionID,
		&s.Subtotal,
		&s.Discount,
		&s.Tax,
		&s.TotalAmount,
		&s.AmountPaid,
		&s.ChangeGiven,
		&s.PaymentMethod,
		&s.ServedByID,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateInTx 在事务内创建销售单及其明细
func (r *saleRepo) CreateInTx(tx *sql.Tx, s *domain.Sale) error {
	query := `
		INSERT INTO sales (invoice_number, patient_id, walk_in_name, walk_in_phone, prescription_id,
			subtotal, discount, tax, total_amount, amount_paid, change_given, payment_method, served_by_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.Exec(query,
		s.InvoiceNumber,
		s.PatientID,
		s.WalkInName,
		s.WalkInPhone,
		s.PrescriptionID,
		s.Subtotal,
		s.Discount,
		s.Tax,
		s.TotalAmount,
		s.AmountPaid,
		s.ChangeGiven,
		string(s.PaymentMethod),
		s.ServedByID,
	)
	if err != nil {
		return fmt.Errorf("create sale: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	s.ID = id

	itemQuery := `
		INSERT INTO sale_items (sale_id, drug_id, quantity, unit_price, selling_price, total_price, profit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, item := range s.Items {
		itemResult, err := tx.Exec(itemQuery,
			s.ID,
			item.DrugID,
			item.Quantity,
			item.UnitPrice,
			item.SellingPrice,
			item.TotalPrice,
			item.Profit,
		)
		if err != nil {
			return fmt.Errorf("create sale item: %w", err)
		}
		itemID, err := itemResult.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}
		item.ID = itemID
		item.SaleID = s.ID
	}

	return nil
}

// CreatePaymentInTx 在事务内创建收款记录
func (r *saleRepo) CreatePaymentInTx(tx *sql.Tx, p *domain.Payment) error {
	query := `
		INSERT INTO payments (sale_id, amount, method, reference, received_by_id)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := tx.Exec(query, p.SaleID, p.Amount, string(p.Method), p.Reference, p.ReceivedByID)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID 根据ID获取销售单（含明细项）
func (r *saleRepo) GetByID(id int64) (*domain.Sale, error) {
	query := fmt.Sprintf(`SELECT %s FROM sales WHERE id = ?`, saleColumns)

	s, err := scanSale(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get sale by id: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT id, sale_id, drug_id, quantity, unit_price, selling_price, total_price, profit
		FROM sale_items
		WHERE sale_id = ?
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query sale items: %w", err)
	}
	defer rows.Close()

	var items []*domain.SaleItem
	for rows.Next() {
		item := &domain.SaleItem{}
		err := rows.Scan(
			&item.ID,
			&item.SaleID,
			&item.DrugID,
			&item.Quantity,
			&item.UnitPrice,
			&item.SellingPrice,
			&item.TotalPrice,
			&item.Profit,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale items: %w", err)
	}
	s.Items = items
	return s, nil
}

// ExistsByNumber 判断发票号是否已存在
func (r *saleRepo) ExistsByNumber(number string) (bool, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM sales WHERE invoice_number = ?`, number).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check invoice number: %w", err)
	}
	return count > 0, nil
}

// List 获取销售单列表（不含明细项）
func (r *saleRepo) List(req *domain.SaleListRequest) ([]*domain.Sale, int64, error) {
	var conditions []string
	var args []any

	if req.PatientID != nil {
		conditions = append(conditions, "patient_id = ?")
		args = append(args, *req.PatientID)
	}
	if req.Method != nil {
		conditions = append(conditions, "payment_method = ?")
		args = append(args, string(*req.Method))
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
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM sales %s`, where)
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM sales %s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, saleColumns, where)

	args = append(args, req.PageSize, (req.Page-1)*req.PageSize)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, s)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sales: %w", err)
	}

	return sales, total, nil
}

// Stats 返回区间内的销售统计。
// 利润从销售明细的价格快照计算，不受之后的调价影响。
func (r *saleRepo) Stats(from, to time.Time) (*domain.SalesStats, error) {
	stats := &domain.SalesStats{
		ByMethod: make(map[domain.PaymentMethod]float64),
	}

	err := r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM sales
		WHERE created_at >= ? AND created_at < ?
	`, from, to).Scan(&stats.SaleCount, &stats.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("query sales stats: %w", err)
	}

	err = r.db.QueryRow(`
		SELECT COALESCE(SUM(si.profit), 0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= ? AND s.created_at < ?
	`, from, to).Scan(&stats.TotalProfit)
	if err != nil {
		return nil, fmt.Errorf("query sales profit: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT payment_method, COALESCE(SUM(total_amount), 0)
		FROM sales
		WHERE created_at >= ? AND created_at < ?
		GROUP BY payment_method
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query sales by method: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var method string
		var amount float64
		if err := rows.Scan(&method, &amount); err != nil {
			return nil, fmt.Errorf("scan sales by method: %w", err)
		}
		stats.ByMethod[domain.PaymentMethod(method)] = amount
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales by method: %w", err)
	}

	return stats, nil
}
