// Package repo 实现处方的数据访问层。
package repo

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pharmaops/pharmacy_server/internal/domain"
)

// PrescriptionRepository 定义处方数据访问接口。
// 配药涉及处方行与处方头的多行更新，相关方法以 *InTx 形式提供，
// 由服务层在单个事务内编排。
type PrescriptionRepository interface {
	Create(p *domain.Prescription) error
	GetByID(id int64) (*domain.Prescription, error)
	ExistsByNumber(number string) (bool, error)
	List(req *domain.PrescriptionListRequest) ([]*domain.Prescription, int64, error)

	// 事务内操作
	GetForUpdateInTx(tx *sql.Tx, id int64) (*domain.Prescription, error)
	UpdateItemFilledInTx(tx *sql.Tx, itemID, newFilled int64) error
	UpdateStatusInTx(tx *sql.Tx, p *domain.Prescription) error

	// 条件取消：仅当处方仍处于可取消状态时生效
	Cancel(id int64) (bool, error)
}

// prescriptionRepo 实现 PrescriptionRepository 接口
type prescriptionRepo struct {
	db *sql.DB
}

// NewPrescriptionRepository 创建处方仓储实例
func NewPrescriptionRepository(db *sql.DB) PrescriptionRepository {
	return &prescriptionRepo{db: db}
}

const prescriptionColumns = `id, prescription_number, patient_id, doctor_id, diagnosis, status,
	issue_date, valid_until, filled_date, filled_by_id, notes, version, created_at, updated_at`

func scanPrescription(row interface{ Scan(...any) error }) (*domain.Prescription, error) {
	p := &domain.Prescription{}
	err := row.Scan(
		&p.ID,
		&p.PrescriptionNumber,
		&p.PatientID,
		&p.DoctorID,
		&p.Diagnosis,
		&p.Status,
		&p.IssueDate,
		&p.ValidUntil,
		&p.FilledDate,
		&p.FilledByID,
		&p.Notes,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create 创建处方及其明细项。
// 处方头和明细在一个事务内落库。
func (r *prescriptionRepo) Create(p *domain.Prescription) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO prescriptions (prescription_number, patient_id, doctor_id, diagnosis, status,
			issue_date, valid_until, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.Exec(query,
		p.PrescriptionNumber,
		p.PatientID,
		p.DoctorID,
		p.Diagnosis,
		string(p.Status),
		p.IssueDate,
		p.ValidUntil,
		p.Notes,
	)
	if err != nil {
		return fmt.Errorf("create prescription: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	p.ID = id

	itemQuery := `
		INSERT INTO prescription_items (prescription_id, drug_id, quantity, quantity_filled,
			dosage, frequency, duration, instructions)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?)
	`
	for _, item := range p.Items {
		itemResult, err := tx.Exec(itemQuery,
			p.ID,
			item.DrugID,
			item.Quantity,
			item.Dosage,
			item.Frequency,
			item.Duration,
			item.Instructions,
		)
		if err != nil {
			return fmt.Errorf("create prescription item: %w", err)
		}
		itemID, err := itemResult.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}
		item.ID = itemID
		item.PrescriptionID = p.ID
	}

	return tx.Commit()
}

// GetByID 根据ID获取处方（含明细项）
func (r *prescriptionRepo) GetByID(id int64) (*domain.Prescription, error) {
	query := fmt.Sprintf(`SELECT %s FROM prescriptions WHERE id = ?`, prescriptionColumns)

	p, err := scanPrescription(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get prescription by id: %w", err)
	}

	items, err := r.loadItems(r.db.Query, id)
	if err != nil {
		return nil, err
	}
	p.Items = items
	return p, nil
}

// ExistsByNumber 判断处方号是否已存在
func (r *prescriptionRepo) ExistsByNumber(number string) (bool, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM prescriptions WHERE prescription_number = ?`, number).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check prescription number: %w", err)
	}
	return count > 0, nil
}

// List 获取处方列表（不含明细项）
func (r *prescriptionRepo) List(req *domain.PrescriptionListRequest) ([]*domain.Prescription, int64, error) {
	var conditions []string
	var args []any

	if req.PatientID != nil {
		conditions = append(conditions, "patient_id = ?")
		args = append(args, *req.PatientID)
	}
	if req.DoctorID != nil {
		conditions = append(conditions, "doctor_id = ?")
		args = append(args, *req.DoctorID)
	}
	if req.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*req.Status))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM prescriptions %s`, where)
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM prescriptions %s
		ORDER BY issue_date DESC, id DESC
		LIMIT ? OFFSET ?
	`, prescriptionColumns, where)

	args = append(args, req.PageSize, (req.Page-1)*req.PageSize)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var prescriptions []*domain.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan prescription: %w", err)
		}
		prescriptions = append(prescriptions, p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate prescriptions: %w", err)
	}

	return prescriptions, total, nil
}

// GetForUpdateInTx 在事务内加行锁读取处方及其明细。
// 并发配药通过处方头行锁串行化。
func (r *prescriptionRepo) GetForUpdateInTx(tx *sql.Tx, id int64) (*domain.Prescription, error) {
	query := fmt.Sprintf(`SELECT %s FROM prescriptions WHERE id = ? FOR UPDATE`, prescriptionColumns)

	p, err := scanPrescription(tx.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get prescription for update: %w", err)
	}

	items, err := r.loadItems(tx.Query, id)
	if err != nil {
		return nil, err
	}
	p.Items = items
	return p, nil
}

// UpdateItemFilledInTx 在事务内写入明细项的已配数量
func (r *prescriptionRepo) UpdateItemFilledInTx(tx *sql.Tx, itemID, newFilled int64) error {
	query := `UPDATE prescription_items SET quantity_filled = ? WHERE id = ?`

	result, err := tx.Exec(query, newFilled, itemID)
	if err != nil {
		return fmt.Errorf("update prescription item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("prescription item not found")
	}
	return nil
}

// UpdateStatusInTx 在事务内更新处方状态与配药完成信息
func (r *prescriptionRepo) UpdateStatusInTx(tx *sql.Tx, p *domain.Prescription) error {
	query := `
		UPDATE prescriptions
		SET status = ?, filled_date = ?, filled_by_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := tx.Exec(query, string(p.Status), p.FilledDate, p.FilledByID, p.ID)
	if err != nil {
		return fmt.Errorf("update prescription status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("prescription not found")
	}

	p.Version++
	return nil
}

// Cancel 条件取消处方。
// 仅当状态仍为 PENDING 或 PARTIALLY_FILLED 时生效，
// 返回是否有行被更新，供服务层区分状态冲突。
func (r *prescriptionRepo) Cancel(id int64) (bool, error) {
	query := `
		UPDATE prescriptions
		SET status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)
	`

	result, err := r.db.Exec(query,
		string(domain.PrescriptionStatusCancelled),
		id,
		string(domain.PrescriptionStatusPending),
		string(domain.PrescriptionStatusPartiallyFilled),
	)
	if err != nil {
		return false, fmt.Errorf("cancel prescription: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get affected rows: %w", err)
	}
	return affected > 0, nil
}

type queryFunc func(query string, args ...any) (*sql.Rows, error)

func (r *prescriptionRepo) loadItems(query queryFunc, prescriptionID int64) ([]*domain.PrescriptionItem, error) {
	rows, err := query(`
		SELECT id, prescription_id, drug_id, quantity, quantity_filled, dosage, frequency, duration, instructions, created_at
		FROM prescription_items
		WHERE prescription_id = ?
		ORDER BY id ASC
	`, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("query prescription items: %w", err)
	}
	defer rows.Close()

	var items []*domain.PrescriptionItem
	for rows.Next() {
		item := &domain.PrescriptionItem{}
		err := rows.Scan(
			&item.ID,
			&item.PrescriptionID,
			&item.DrugID,
			&item.Quantity,
			&item.QuantityFilled,
			&item.Dosage,
			&item.Frequency,
			&item.Duration,
			&item.Instructions,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan prescription item: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prescription items: %w", err)
	}
	return items, nil
}
