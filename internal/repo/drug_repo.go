// Package repo 实现药品目录的数据访问层。
package repo

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pharmaops/pharmacy_server/internal/domain"
)

// ErrVersionConflict 表示乐观锁版本冲突，调用方可重试
var ErrVersionConflict = errors.New("version conflict")

// DrugRepository 定义药品数据访问接口。
// 库存数量的写入只允许通过 UpdateStockInTx，在事务内完成，
// 其余更新方法不会触碰 quantity_in_stock。
type DrugRepository interface {
	Create(drug *domain.Drug) error
	GetByID(id int64) (*domain.Drug, error)
	GetBySKU(sku string) (*domain.Drug, error)
	Update(drug *domain.Drug) error // 乐观锁更新，不含库存
	Deactivate(id int64) error
	List(req *domain.DrugListRequest) ([]*domain.Drug, int64, error)
	ListExpiringSoon(days int) ([]*domain.Drug, error)
	Stats() (*domain.InventoryStats, error)

	// 事务内库存操作
	GetForUpdateInTx(tx *sql.Tx, id int64) (*domain.Drug, error)
	UpdateStockInTx(tx *sql.Tx, drugID, newQuantity int64) error
}

// drugRepo 实现 DrugRepository 接口
type drugRepo struct {
	db *sql.DB
}

// NewDrugRepository 创建药品仓储实例
func NewDrugRepository(db *sql.DB) DrugRepository {
	return &drugRepo{db: db}
}

const drugColumns = `id, sku, barcode, name, generic_name, description, category_id, manufacturer_id,
	dosage_form, strength, unit_price, selling_price, quantity_in_stock, reorder_level,
	expiry_date, requires_prescription, is_active, version, created_at, updated_at`

func scanDrug(row interface{ Scan(...any) error }) (*domain.Drug, error) {
	drug := &domain.Drug{}
	err := row.Scan(
		&drug.ID,
		&drug.SKU,
		&drug.Barcode,
		&drug.Name,
		&drug.GenericName,
		&drug.Description,
		&drug.CategoryID,
		&drug.ManufacturerID,
		&drug.DosageForm,
		&drug.Strength,
		&drug.UnitPrice,
		&drug.SellingPrice,
		&drug.QuantityInStock,
		&drug.ReorderLevel,
		&drug.ExpiryDate,
		&drug.RequiresPrescription,
		&drug.IsActive,
		&drug.Version,
		&drug.CreatedAt,
		&drug.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return drug, nil
}

// Create 创建药品记录
func (r *drugRepo) Create(drug *domain.Drug) error {
	query := `
		INSERT INTO drugs (sku, barcode, name, generic_name, description, category_id, manufacturer_id,
			dosage_form, strength, unit_price, selling_price, quantity_in_stock, reorder_level,
			expiry_date, requires_prescription, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		drug.SKU,
		drug.Barcode,
		drug.Name,
		drug.GenericName,
		drug.Description,
		drug.CategoryID,
		drug.ManufacturerID,
		drug.DosageForm,
		drug.Strength,
		drug.UnitPrice,
		drug.SellingPrice,
		drug.QuantityInStock,
		drug.ReorderLevel,
		drug.ExpiryDate,
		drug.RequiresPrescription,
		drug.IsActive,
	)
	if err != nil {
		return fmt.Errorf("create drug: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	drug.ID = id
	return nil
}

// GetByID 根据ID获取药品
func (r *drugRepo) GetByID(id int64) (*domain.Drug, error) {
	query := fmt.Sprintf(`SELECT %s FROM drugs WHERE id = ?`, drugColumns)

	drug, err := scanDrug(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get drug by id: %w", err)
	}
	return drug, nil
}

// GetBySKU 根据SKU获取药品
func (r *drugRepo) GetBySKU(sku string) (*domain.Drug, error) {
	query := fmt.Sprintf(`SELECT %s FROM drugs WHERE sku = ?`, drugColumns)

	drug, err := scanDrug(r.db.QueryRow(query, sku))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get drug by sku: %w", err)
	}
	return drug, nil
}

// Update 使用乐观锁更新药品目录字段。
// 不更新 quantity_in_stock，版本不匹配时返回 ErrVersionConflict。
func (r *drugRepo) Update(drug *domain.Drug) error {
	query := `
		UPDATE drugs
		SET barcode = ?, name = ?, generic_name = ?, description = ?, category_id = ?, manufacturer_id = ?,
			dosage_form = ?, strength = ?, unit_price = ?, selling_price = ?, reorder_level = ?,
			expiry_date = ?, requires_prescription = ?, is_active = ?, version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Exec(query,
		drug.Barcode,
		drug.Name,
		drug.GenericName,
		drug.Description,
		drug.CategoryID,
		drug.ManufacturerID,
		drug.DosageForm,
		drug.Strength,
		drug.UnitPrice,
		drug.SellingPrice,
		drug.ReorderLevel,
		drug.ExpiryDate,
		drug.RequiresPrescription,
		drug.IsActive,
		drug.ID,
		drug.Version,
	)
	if err != nil {
		return fmt.Errorf("update drug: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	drug.Version++
	return nil
}

// Deactivate 下架药品（软删除）
func (r *drugRepo) Deactivate(id int64) error {
	query := `UPDATE drugs SET is_active = false, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("deactivate drug: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("drug not found")
	}
	return nil
}

// List 获取药品列表
func (r *drugRepo) List(req *domain.DrugListRequest) ([]*domain.Drug, int64, error) {
	where, args := r.buildListWhereClause(req)

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM drugs %s`, where)
	var total int64
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count drugs: %w", err)
	}

	orderBy := r.buildOrderClause(req)
	query := fmt.Sprintf(`SELECT %s FROM drugs %s %s LIMIT ? OFFSET ?`, drugColumns, where, orderBy)
	args = append(args, req.PageSize, (req.Page-1)*req.PageSize)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query drugs: %w", err)
	}
	defer rows.Close()

	var drugs []*domain.Drug
	for rows.Next() {
		drug, err := scanDrug(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan drug: %w", err)
		}
		drugs = append(drugs, drug)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate drugs: %w", err)
	}

	return drugs, total, nil
}

// ListExpiringSoon 获取指定天数内过期的在售药品
func (r *drugRepo) ListExpiringSoon(days int) ([]*domain.Drug, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM drugs
		WHERE is_active = true
		  AND expiry_date IS NOT NULL
		  AND expiry_date >= CURDATE()
		  AND expiry_date < DATE_ADD(CURDATE(), INTERVAL ? DAY)
		ORDER BY expiry_date ASC
	`, drugColumns)

	rows, err := r.db.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("query expiring drugs: %w", err)
	}
	defer rows.Close()

	var drugs []*domain.Drug
	for rows.Next() {
		drug, err := scanDrug(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drug: %w", err)
		}
		drugs = append(drugs, drug)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drugs: %w", err)
	}
	return drugs, nil
}

// Stats 获取库存统计概览
func (r *drugRepo) Stats() (*domain.InventoryStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(is_active), 0),
			COALESCE(SUM(quantity_in_stock <= reorder_level), 0),
			COALESCE(SUM(quantity_in_stock = 0), 0),
			COALESCE(SUM(quantity_in_stock * unit_price), 0)
		FROM drugs
	`

	stats := &domain.InventoryStats{}
	err := r.db.QueryRow(query).Scan(
		&stats.TotalDrugs,
		&stats.ActiveDrugs,
		&stats.LowStockCount,
		&stats.OutOfStockCount,
		&stats.TotalStockValue,
	)
	if err != nil {
		return nil, fmt.Errorf("query inventory stats: %w", err)
	}
	return stats, nil
}

// GetForUpdateInTx 在事务内加行锁读取药品。
// 结账等多行操作必须按 drug_id 升序逐行加锁，避免死锁。
func (r *drugRepo) GetForUpdateInTx(tx *sql.Tx, id int64) (*domain.Drug, error) {
	query := fmt.Sprintf(`SELECT %s FROM drugs WHERE id = ? FOR UPDATE`, drugColumns)

	drug, err := scanDrug(tx.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get drug for update: %w", err)
	}
	return drug, nil
}

// UpdateStockInTx 在事务内写入新的库存数量。
// 只能在对应行已被 GetForUpdateInTx 锁定后调用。
func (r *drugRepo) UpdateStockInTx(tx *sql.Tx, drugID, newQuantity int64) error {
	query := `
		UPDATE drugs
		SET quantity_in_stock = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := tx.Exec(query, newQuantity, drugID)
	if err != nil {
		return fmt.Errorf("update stock in tx: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("drug not found")
	}
	return nil
}

// buildListWhereClause 构建查询条件子句
func (r *drugRepo) buildListWhereClause(req *domain.DrugListRequest) (string, []any) {
	var conditions []string
	var args []any

	if req.Keyword != nil && *req.Keyword != "" {
		kw := "%" + *req.Keyword + "%"
		conditions = append(conditions, "(name LIKE ? OR generic_name LIKE ? OR sku LIKE ?)")
		args = append(args, kw, kw, kw)
	}
	if req.CategoryID != nil {
		conditions = append(conditions, "category_id = ?")
		args = append(args, *req.CategoryID)
	}
	if req.ManufacturerID != nil {
		conditions = append(conditions, "manufacturer_id = ?")
		args = append(args, *req.ManufacturerID)
	}
	if req.LowStock != nil && *req.LowStock {
		conditions = append(conditions, "quantity_in_stock <= reorder_level")
	}
	if req.OutOfStock != nil && *req.OutOfStock {
		conditions = append(conditions, "quantity_in_stock = 0")
	}
	if req.IsActive != nil {
		conditions = append(conditions, "is_active = ?")
		args = append(args, *req.IsActive)
	}

	if len(conditions) > 0 {
		return "WHERE " + strings.Join(conditions, " AND "), args
	}
	return "", args
}

// buildOrderClause 构建排序子句
func (r *drugRepo) buildOrderClause(req *domain.DrugListRequest) string {
	sortBy := "name"
	sortOrder := "ASC"

	if req.SortBy != nil {
		switch *req.SortBy {
		case "name", "quantity_in_stock", "updated_at", "expiry_date":
			sortBy = *req.SortBy
		}
	}
	if req.SortOrder != nil && strings.ToUpper(*req.SortOrder) == "DESC" {
		sortOrder = "DESC"
	}

	return fmt.Sprintf("ORDER BY %s %s", sortBy, sortOrder)
}
