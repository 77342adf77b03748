// Package repo 实现分类与生产商的数据访问层。
package repo

import (
	"database/sql"
	"fmt"

	"github.com/pharmaops/pharmacy_server/internal/domain"
)

// CategoryRepository 定义药品分类数据访问接口
type CategoryRepository interface {
	Create(c *domain.Category) error
	GetByID(id int64) (*domain.Category, error)
	GetByName(name string) (*domain.Category, error)
	List() ([]*domain.Category, error)
	Update(c *domain.Category) error
	Delete(id int64) error
}

// ManufacturerRepository 定义生产商数据访问接口
type ManufacturerRepository interface {
	Create(m *domain.Manufacturer) error
	GetByID(id int64) (*domain.Manufacturer, error)
	GetByName(name string) (*domain.Manufacturer, error)
	List() ([]*domain.Manufacturer, error)
	Update(m *domain.Manufacturer) error
	Delete(id int64) error
}

type categoryRepo struct {
	db *sql.DB
}

// NewCategoryRepository 创建分类仓储实例
func NewCategoryRepository(db *sql.DB) CategoryRepository {
	return &categoryRepo{db: db}
}

const categoryColumns = `id, name, description, created_at, updated_at`

func scanCategory(row interface{ Scan(...any) error }) (*domain.Category, error) {
	c := &domain.Category{}
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create 创建分类
func (r *categoryRepo) Create(c *domain.Category) error {
	result, err := r.db.Exec(`INSERT INTO categories (name, description) VALUES (?, ?)`, c.Name, c.Description)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	c.ID = id
	return nil
}

// GetByID 根据ID获取分类
func (r *categoryRepo) GetByID(id int64) (*domain.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories WHERE id = ?`, categoryColumns)

	c, err := scanCategory(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get category by id: %w", err)
	}
	return c, nil
}

// GetByName 根据名称获取分类
func (r *categoryRepo) GetByName(name string) (*domain.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories WHERE name = ?`, categoryColumns)

	c, err := scanCategory(r.db.QueryRow(query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get category by name: %w", err)
	}
	return c, nil
}

// List 获取全部分类，按名称排序
func (r *categoryRepo) List() ([]*domain.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories ORDER BY name ASC`, categoryColumns)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []*domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// Update 更新分类
func (r *categoryRepo) Update(c *domain.Category) error {
	query := `UPDATE categories SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := r.db.Exec(query, c.Name, c.Description, c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("category not found")
	}
	return nil
}

// Delete 删除分类。
// 引用该分类的药品由外键 ON DELETE SET NULL 置空，不会级联删除。
func (r *categoryRepo) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("category not found")
	}
	return nil
}

type manufacturerRepo struct {
	db *sql.DB
}

// NewManufacturerRepository 创建生产商仓储实例
func NewManufacturerRepository(db *sql.DB) ManufacturerRepository {
	return &manufacturerRepo{db: db}
}

const manufacturerColumns = `id, name, country, contact, created_at, updated_at`

func scanManufacturer(row interface{ Scan(...any) error }) (*domain.Manufacturer, error) {
	m := &domain.Manufacturer{}
	err := row.Scan(&m.ID, &m.Name, &m.Country, &m.Contact, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create 创建生产商
func (r *manufacturerRepo) Create(m *domain.Manufacturer) error {
	result, err := r.db.Exec(`INSERT INTO manufacturers (name, country, contact) VALUES (?, ?, ?)`,
		m.Name, m.Country, m.Contact)
	if err != nil {
		return fmt.Errorf("create manufacturer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	m.ID = id
	return nil
}

// GetByID 根据ID获取生产商
func (r *manufacturerRepo) GetByID(id int64) (*domain.Manufacturer, error) {
	query := fmt.Sprintf(`SELECT %s FROM manufacturers WHERE id = ?`, manufacturerColumns)

	m, err := scanManufacturer(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get manufacturer by id: %w", err)
	}
	return m, nil
}

// GetByName 根据名称获取生产商
func (r *manufacturerRepo) GetByName(name string) (*domain.Manufacturer, error) {
	query := fmt.Sprintf(`SELECT %s FROM manufacturers WHERE name = ?`, manufacturerColumns)

	m, err := scanManufacturer(r.db.QueryRow(query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get manufacturer by name: %w", err)
	}
	return m, nil
}

// List 获取全部生产商，按名称排序
func (r *manufacturerRepo) List() ([]*domain.Manufacturer, error) {
	query := fmt.Sprintf(`SELECT %s FROM manufacturers ORDER BY name ASC`, manufacturerColumns)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query manufacturers: %w", err)
	}
	defer rows.Close()

	var manufacturers []*domain.Manufacturer
	for rows.Next() {
		m, err := scanManufacturer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manufacturer: %w", err)
		}
		manufacturers = append(manufacturers, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manufacturers: %w", err)
	}
	return manufacturers, nil
}

// Update 更新生产商
func (r *manufacturerRepo) Update(m *domain.Manufacturer) error {
	query := `UPDATE manufacturers SET name = ?, country = ?, contact = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := r.db.Exec(query, m.Name, m.Country, m.Contact, m.ID)
	if err != nil {
		return fmt.Errorf("update manufacturer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("manufacturer not found")
	}
	return nil
}

// Delete 删除生产商。
// 引用该生产商的药品由外键 ON DELETE SET NULL 置空，不会级联删除。
func (r *manufacturerRepo) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM manufacturers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete manufacturer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("manufacturer not found")
	}
	return nil
}
