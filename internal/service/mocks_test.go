package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/repo"
)

// fakeTxRunner runs the callback without a real transaction.
// The mock repositories below ignore the *sql.Tx parameter.
type fakeTxRunner struct {
	beginErr error
}

func (f *fakeTxRunner) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	return fn(nil)
}

// Mock UserRepository for testing
type mockUserRepository struct {
	users    map[int64]*domain.User
	emailMap map[string]*domain.User
	nextID   int64
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users:    make(map[int64]*domain.User),
		emailMap: make(map[string]*domain.User),
		nextID:   1,
	}
}

func (m *mockUserRepository) Create(user *domain.User) error {
	if _, exists := m.emailMap[user.Email]; exists {
		return errors.New("email already exists")
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user
	m.emailMap[user.Email] = user
	return nil
}

func (m *mockUserRepository) GetByID(id int64) (*domain.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepository) GetByEmail(email string) (*domain.User, error) {
	return m.emailMap[email], nil
}

func (m *mockUserRepository) Update(user *domain.User) error {
	if _, exists := m.users[user.ID]; !exists {
		return errors.New("user not found")
	}
	m.users[user.ID] = user
	m.emailMap[user.Email] = user
	return nil
}

func (m *mockUserRepository) List(req *domain.UserListRequest) ([]*domain.User, int64, error) {
	var result []*domain.User
	for _, user := range m.users {
		if req.Role != nil && user.Role != *req.Role {
			continue
		}
		if req.IsActive != nil && user.IsActive != *req.IsActive {
			continue
		}
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, int64(len(result)), nil
}

func (m *mockUserRepository) UpdateRole(userID int64, role domain.UserRole) error {
	user, exists := m.users[userID]
	if !exists {
		return errors.New("user not found")
	}
	user.Role = role
	return nil
}

func (m *mockUserRepository) UpdateStatus(userID int64, isActive bool) error {
	user, exists := m.users[userID]
	if !exists {
		return errors.New("user not found")
	}
	user.IsActive = isActive
	return nil
}

// Mock DrugRepository for testing
type mockDrugRepository struct {
	drugs  map[int64]*domain.Drug
	skuMap map[string]*domain.Drug
	nextID int64

	updateErr      error
	updateStockErr error
}

func newMockDrugRepository() *mockDrugRepository {
	return &mockDrugRepository{
		drugs:  make(map[int64]*domain.Drug),
		skuMap: make(map[string]*domain.Drug),
		nextID: 1,
	}
}

func (m *mockDrugRepository) Create(drug *domain.Drug) error {
	if _, exists := m.skuMap[drug.SKU]; exists {
		return errors.New("sku already exists")
	}
	drug.ID = m.nextID
	m.nextID++
	m.drugs[drug.ID] = drug
	m.skuMap[drug.SKU] = drug
	return nil
}

func (m *mockDrugRepository) GetByID(id int64) (*domain.Drug, error) {
	return m.drugs[id], nil
}

func (m *mockDrugRepository) GetBySKU(sku string) (*domain.Drug, error) {
	return m.skuMap[sku], nil
}

func (m *mockDrugRepository) Update(drug *domain.Drug) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	existing, exists := m.drugs[drug.ID]
	if !exists {
		return errors.New("drug not found")
	}
	if existing.Version != drug.Version {
		return repo.ErrVersionConflict
	}
	drug.Version++
	m.drugs[drug.ID] = drug
	m.skuMap[drug.SKU] = drug
	return nil
}

func (m *mockDrugRepository) Deactivate(id int64) error {
	drug, exists := m.drugs[id]
	if !exists {
		return errors.New("drug not found")
	}
	drug.IsActive = false
	return nil
}

func (m *mockDrugRepository) List(req *domain.DrugListRequest) ([]*domain.Drug, int64, error) {
	var result []*domain.Drug
	for _, drug := range m.drugs {
		result = append(result, drug)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, int64(len(result)), nil
}

func (m *mockDrugRepository) ListExpiringSoon(days int) ([]*domain.Drug, error) {
	now := time.Now()
	var result []*domain.Drug
	for _, drug := range m.drugs {
		if drug.IsActive && drug.IsExpiringSoon(now, days) {
			result = append(result, drug)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockDrugRepository) Stats() (*domain.InventoryStats, error) {
	stats := &domain.InventoryStats{}
	for _, drug := range m.drugs {
		stats.TotalDrugs++
		if drug.IsActive {
			stats.ActiveDrugs++
		}
		if drug.IsLowStock() {
			stats.LowStockCount++
		}
		if drug.IsOutOfStock() {
			stats.OutOfStockCount++
		}
		stats.TotalStockValue += float64(drug.QuantityInStock) * drug.UnitPrice
	}
	return stats, nil
}

func (m *mockDrugRepository) GetForUpdateInTx(tx *sql.Tx, id int64) (*domain.Drug, error) {
	return m.drugs[id], nil
}

func (m *mockDrugRepository) UpdateStockInTx(tx *sql.Tx, drugID, newQuantity int64) error {
	if m.updateStockErr != nil {
		return m.updateStockErr
	}
	drug, exists := m.drugs[drugID]
	if !exists {
		return errors.New("drug not found")
	}
	drug.QuantityInStock = newQuantity
	return nil
}

// Mock StockTransactionRepository for testing
type mockStockTransactionRepository struct {
	transactions []*domain.StockTransaction
	nextID       int64

	createErr error
}

func newMockStockTransactionRepository() *mockStockTransactionRepository {
	return &mockStockTransactionRepository{nextID: 1}
}

func (m *mockStockTransactionRepository) CreateInTx(tx *sql.Tx, st *domain.StockTransaction) error {
	if m.createErr != nil {
		return m.createErr
	}
	st.ID = m.nextID
	m.nextID++
	st.CreatedAt = time.Now()
	m.transactions = append(m.transactions, st)
	return nil
}

func (m *mockStockTransactionRepository) GetByID(id int64) (*domain.StockTransaction, error) {
	for _, st := range m.transactions {
		if st.ID == id {
			return st, nil
		}
	}
	return nil, nil
}

func (m *mockStockTransactionRepository) List(req *domain.StockTransactionListRequest) ([]*domain.StockTransaction, int64, error) {
	var result []*domain.StockTransaction
	for _, st := range m.transactions {
		if req.DrugID != nil && st.DrugID != *req.DrugID {
			continue
		}
		if req.Type != nil && st.Type != *req.Type {
			continue
		}
		result = append(result, st)
	}
	return result, int64(len(result)), nil
}

// Mock PrescriptionRepository for testing
type mockPrescriptionRepository struct {
	prescriptions map[int64]*domain.Prescription
	numberMap     map[string]*domain.Prescription
	nextID        int64
	nextItemID    int64
}

func newMockPrescriptionRepository() *mockPrescriptionRepository {
	return &mockPrescriptionRepository{
		prescriptions: make(map[int64]*domain.Prescription),
		numberMap:     make(map[string]*domain.Prescription),
		nextID:        1,
		nextItemID:    1,
	}
}

func (m *mockPrescriptionRepository) Create(p *domain.Prescription) error {
	if _, exists := m.numberMap[p.PrescriptionNumber]; exists {
		return errors.New("number already exists")
	}
	p.ID = m.nextID
	m.nextID++
	for _, item := range p.Items {
		item.ID = m.nextItemID
		m.nextItemID++
		item.PrescriptionID = p.ID
	}
	m.prescriptions[p.ID] = p
	m.numberMap[p.PrescriptionNumber] = p
	return nil
}

func (m *mockPrescriptionRepository) GetByID(id int64) (*domain.Prescription, error) {
	return m.prescriptions[id], nil
}

func (m *mockPrescriptionRepository) ExistsByNumber(number string) (bool, error) {
	_, exists := m.numberMap[number]
	return exists, nil
}

func (m *mockPrescriptionRepository) List(req *domain.PrescriptionListRequest) ([]*domain.Prescription, int64, error) {
	var result []*domain.Prescription
	for _, p := range m.prescriptions {
		if req.PatientID != nil && p.PatientID != *req.PatientID {
			continue
		}
		if req.DoctorID != nil && p.DoctorID != *req.DoctorID {
			continue
		}
		if req.Status != nil && p.Status != *req.Status {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, int64(len(result)), nil
}

func (m *mockPrescriptionRepository) GetForUpdateInTx(tx *sql.Tx, id int64) (*domain.Prescription, error) {
	return m.prescriptions[id], nil
}

func (m *mockPrescriptionRepository) UpdateItemFilledInTx(tx *sql.Tx, itemID, newFilled int64) error {
	for _, p := range m.prescriptions {
		for _, item := range p.Items {
			if item.ID == itemID {
				item.QuantityFilled = newFilled
				return nil
			}
		}
	}
	return errors.New("prescription item not found")
}

func (m *mockPrescriptionRepository) UpdateStatusInTx(tx *sql.Tx, p *domain.Prescription) error {
	if _, exists := m.prescriptions[p.ID]; !exists {
		return errors.New("prescription not found")
	}
	p.Version++
	m.prescriptions[p.ID] = p
	return nil
}

func (m *mockPrescriptionRepository) Cancel(id int64) (bool, error) {
	p, exists := m.prescriptions[id]
	if !exists {
		return false, nil
	}
	if p.Status != domain.PrescriptionStatusPending && p.Status != domain.PrescriptionStatusPartiallyFilled {
		return false, nil
	}
	p.Status = domain.PrescriptionStatusCancelled
	return true, nil
}

// Mock SaleRepository for testing
type mockSaleRepository struct {
	sales     map[int64]*domain.Sale
	payments  []*domain.Payment
	numberMap map[string]*domain.Sale
	nextID    int64

	createErr error
}

func newMockSaleRepository() *mockSaleRepository {
	return &mockSaleRepository{
		sales:     make(map[int64]*domain.Sale),
		numberMap: make(map[string]*domain.Sale),
		nextID:    1,
	}
}

func (m *mockSaleRepository) GetByID(id int64) (*domain.Sale, error) {
	return m.sales[id], nil
}

func (m *mockSaleRepository) ExistsByNumber(number string) (bool, error) {
	_, exists := m.numberMap[number]
	return exists, nil
}

func (m *mockSaleRepository) List(req *domain.SaleListRequest) ([]*domain.Sale, int64, error) {
	var result []*domain.Sale
	for _, s := range m.sales {
		if req.PatientID != nil && (s.PatientID == nil || *s.PatientID != *req.PatientID) {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, int64(len(result)), nil
}

func (m *mockSaleRepository) Stats(from, to time.Time) (*domain.SalesStats, error) {
	stats := &domain.SalesStats{ByMethod: make(map[domain.PaymentMethod]float64)}
	for _, s := range m.sales {
		stats.SaleCount++
		stats.TotalRevenue += s.TotalAmount
		stats.TotalProfit += s.TotalProfit()
		stats.ByMethod[s.PaymentMethod] += s.TotalAmount
	}
	return stats, nil
}

func (m *mockSaleRepository) CreateInTx(tx *sql.Tx, s *domain.Sale) error {
	if m.createErr != nil {
		return m.createErr
	}
	s.ID = m.nextID
	m.nextID++
	for i, item := range s.Items {
		item.ID = int64(i + 1)
		item.SaleID = s.ID
	}
	m.sales[s.ID] = s
	m.numberMap[s.InvoiceNumber] = s
	return nil
}

func (m *mockSaleRepository) CreatePaymentInTx(tx *sql.Tx, p *domain.Payment) error {
	p.ID = int64(len(m.payments) + 1)
	m.payments = append(m.payments, p)
	return nil
}

// Mock CategoryRepository for testing
type mockCategoryRepository struct {
	categories map[int64]*domain.Category
	nameMap    map[string]*domain.Category
	nextID     int64
}

func newMockCategoryRepository() *mockCategoryRepository {
	return &mockCategoryRepository{
		categories: make(map[int64]*domain.Category),
		nameMap:    make(map[string]*domain.Category),
		nextID:     1,
	}
}

func (m *mockCategoryRepository) Create(c *domain.Category) error {
	c.ID = m.nextID
	m.nextID++
	m.categories[c.ID] = c
	m.nameMap[c.Name] = c
	return nil
}

func (m *mockCategoryRepository) GetByID(id int64) (*domain.Category, error) {
	return m.categories[id], nil
}

func (m *mockCategoryRepository) GetByName(name string) (*domain.Category, error) {
	return m.nameMap[name], nil
}

func (m *mockCategoryRepository) List() ([]*domain.Category, error) {
	result := make([]*domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockCategoryRepository) Update(c *domain.Category) error {
	old, ok := m.categories[c.ID]
	if !ok {
		return errors.New("category not found")
	}
	delete(m.nameMap, old.Name)
	m.categories[c.ID] = c
	m.nameMap[c.Name] = c
	return nil
}

func (m *mockCategoryRepository) Delete(id int64) error {
	c, ok := m.categories[id]
	if !ok {
		return errors.New("category not found")
	}
	delete(m.nameMap, c.Name)
	delete(m.categories, id)
	return nil
}

// Mock ManufacturerRepository for testing
type mockManufacturerRepository struct {
	manufacturers map[int64]*domain.Manufacturer
	nameMap       map[string]*domain.Manufacturer
	nextID        int64
}

func newMockManufacturerRepository() *mockManufacturerRepository {
	return &mockManufacturerRepository{
		manufacturers: make(map[int64]*domain.Manufacturer),
		nameMap:       make(map[string]*domain.Manufacturer),
		nextID:        1,
	}
}

func (m *mockManufacturerRepository) Create(mf *domain.Manufacturer) error {
	mf.ID = m.nextID
	m.nextID++
	m.manufacturers[mf.ID] = mf
	m.nameMap[mf.Name] = mf
	return nil
}

func (m *mockManufacturerRepository) GetByID(id int64) (*domain.Manufacturer, error) {
	return m.manufacturers[id], nil
}

func (m *mockManufacturerRepository) GetByName(name string) (*domain.Manufacturer, error) {
	return m.nameMap[name], nil
}

func (m *mockManufacturerRepository) List() ([]*domain.Manufacturer, error) {
	result := make([]*domain.Manufacturer, 0, len(m.manufacturers))
	for _, mf := range m.manufacturers {
		result = append(result, mf)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockManufacturerRepository) Update(mf *domain.Manufacturer) error {
	old, ok := m.manufacturers[mf.ID]
	if !ok {
		return errors.New("manufacturer not found")
	}
	delete(m.nameMap, old.Name)
	m.manufacturers[mf.ID] = mf
	m.nameMap[mf.Name] = mf
	return nil
}

func (m *mockManufacturerRepository) Delete(id int64) error {
	mf, ok := m.manufacturers[id]
	if !ok {
		return errors.New("manufacturer not found")
	}
	delete(m.nameMap, mf.Name)
	delete(m.manufacturers, id)
	return nil
}
