package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
)

type saleFixture struct {
	svc              SaleService
	saleRepo         *mockSaleRepository
	drugRepo         *mockDrugRepository
	stockTxRepo      *mockStockTransactionRepository
	prescriptionRepo *mockPrescriptionRepository
	userRepo         *mockUserRepository
	patient          *domain.User
}

func newSaleFixture(t *testing.T) *saleFixture {
	t.Helper()

	saleRepo := newMockSaleRepository()
	drugRepo := newMockDrugRepository()
	stockTxRepo := newMockStockTransactionRepository()
	prescriptionRepo := newMockPrescriptionRepository()
	userRepo := newMockUserRepository()

	patient := &domain.User{Email: "patient@example.com", Role: domain.UserRolePatient, IsActive: true}
	if err := userRepo.Create(patient); err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	svc := NewSaleService(&fakeTxRunner{}, saleRepo, drugRepo, stockTxRepo, prescriptionRepo, userRepo, zap.NewNop())
	return &saleFixture{
		svc:              svc,
		saleRepo:         saleRepo,
		drugRepo:         drugRepo,
		stockTxRepo:      stockTxRepo,
		prescriptionRepo: prescriptionRepo,
		userRepo:         userRepo,
		patient:          patient,
	}
}

func TestCheckout(t *testing.T) {
	f := newSaleFixture(t)
	drug := seedDrug(f.drugRepo, 10)

	sale, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
		PatientID:     f.patient.ID,
		Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 2}},
		AmountPaid:    30,
		PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}

	if len(sale.InvoiceNumber) != 12 || sale.InvoiceNumber[:4] != "INV-" {
		t.Errorf("invoice number = %q, want INV- prefix with 8 char suffix", sale.InvoiceNumber)
	}
	// unit 10, selling 15, qty 2: total 30, change 0, profit 10
	if sale.Subtotal != 30 || sale.TotalAmount != 30 {
		t.Errorf("subtotal/total = %v/%v, want 30/30", sale.Subtotal, sale.TotalAmount)
	}
	if sale.ChangeGiven != 0 {
		t.Errorf("change = %v, want 0", sale.ChangeGiven)
	}
	if sale.TotalProfit() != 10 {
		t.Errorf("profit = %v, want 10", sale.TotalProfit())
	}
	if len(sale.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(sale.Items))
	}
	item := sale.Items[0]
	if item.UnitPrice != 10 || item.SellingPrice != 15 || item.TotalPrice != 30 {
		t.Errorf("price snapshot = %+v, want unit 10 / selling 15 / total 30", item)
	}

	// stock moved and a SALE ledger entry references the invoice
	if drug.QuantityInStock != 8 {
		t.Errorf("stock = %d, want 8", drug.QuantityInStock)
	}
	if len(f.stockTxRepo.transactions) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(f.stockTxRepo.transactions))
	}
	st := f.stockTxRepo.transactions[0]
	if st.Type != domain.StockTransactionSale || st.Quantity != 2 || st.TotalAmount != 20 {
		t.Errorf("ledger entry = %+v, want SALE qty 2 total 20", st)
	}
	if st.Reference == nil || *st.Reference != sale.InvoiceNumber {
		t.Error("ledger entry must reference the invoice number")
	}

	// payment recorded against the sale
	if len(f.saleRepo.payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(f.saleRepo.payments))
	}
	payment := f.saleRepo.payments[0]
	if payment.SaleID != sale.ID || payment.Amount != 30 || payment.ReceivedByID != pharmacistActor().ID {
		t.Errorf("payment = %+v", payment)
	}
}

func TestCheckout_ChangeGiven(t *testing.T) {
	f := newSaleFixture(t)
	drug := seedDrug(f.drugRepo, 10)

	sale, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
		WalkInName:    "Jane Doe",
		Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
		Discount:      5,
		AmountPaid:    20,
		PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}

	// selling 15 - discount 5 = 10, paid 20 gives 10 back
	if sale.TotalAmount != 10 {
		t.Errorf("total = %v, want 10", sale.TotalAmount)
	}
	if sale.ChangeGiven != 10 {
		t.Errorf("change = %v, want 10", sale.ChangeGiven)
	}
	if sale.PatientID != nil {
		t.Error("walk-in sale must not carry a patient id")
	}
}

func TestCheckout_InsufficientStockAtomic(t *testing.T) {
	f := newSaleFixture(t)
	first := seedDrug(f.drugRepo, 10)
	second := &domain.Drug{
		SKU: "IBU-200", Name: "Ibuprofen 200mg",
		UnitPrice: 2, SellingPrice: 4, QuantityInStock: 1, IsActive: true,
	}
	if err := f.drugRepo.Create(second); err != nil {
		t.Fatalf("seed drug: %v", err)
	}

	_, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
		WalkInName: "Jane Doe",
		Items: []*domain.CheckoutItemRequest{
			{DrugID: first.ID, Quantity: 2},
			{DrugID: second.ID, Quantity: 5},
		},
		AmountPaid:    100,
		PaymentMethod: domain.PaymentMethodCash,
	})
	if !errs.Is(err, errs.KindInsufficientStock) {
		t.Fatalf("error kind = %v, want insufficient stock", errs.KindOf(err))
	}

	// no line may be applied when any line fails
	if first.QuantityInStock != 10 || second.QuantityInStock != 1 {
		t.Errorf("stock = %d/%d, want 10/1 (checkout must be all-or-nothing)",
			first.QuantityInStock, second.QuantityInStock)
	}
	if len(f.stockTxRepo.transactions) != 0 {
		t.Errorf("ledger entries = %d, want 0", len(f.stockTxRepo.transactions))
	}
	if len(f.saleRepo.sales) != 0 || len(f.saleRepo.payments) != 0 {
		t.Error("no sale or payment may be recorded on a failed checkout")
	}
}

func TestCheckout_Validation(t *testing.T) {
	f := newSaleFixture(t)
	drug := seedDrug(f.drugRepo, 10)

	rx := &domain.Drug{
		SKU: "MOR-10", Name: "Morphine 10mg",
		UnitPrice: 20, SellingPrice: 30, QuantityInStock: 5,
		RequiresPrescription: true, IsActive: true,
	}
	if err := f.drugRepo.Create(rx); err != nil {
		t.Fatalf("seed drug: %v", err)
	}

	tests := []struct {
		name     string
		actor    *domain.User
		req      *domain.CheckoutRequest
		wantKind errs.Kind
	}{
		{
			name:  "patient cannot checkout",
			actor: patientActor(),
			req: &domain.CheckoutRequest{
				WalkInName:    "x",
				Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
				PaymentMethod: domain.PaymentMethodCash,
			},
			wantKind: errs.KindPermission,
		},
		{
			name:  "no items",
			actor: pharmacistActor(),
			req: &domain.CheckoutRequest{
				WalkInName:    "x",
				PaymentMethod: domain.PaymentMethodCash,
			},
			wantKind: errs.KindValidation,
		},
		{
			name:  "duplicate drug lines",
			actor: pharmacistActor(),
			req: &domain.CheckoutRequest{
				WalkInName: "x",
				Items: []*domain.CheckoutItemRequest{
					{DrugID: drug.ID, Quantity: 1},
					{DrugID: drug.ID, Quantity: 2},
				},
				PaymentMethod: domain.PaymentMethodCash,
			},
			wantKind: errs.KindValidation,
		},
		{
			name:  "invalid payment method",
			actor: pharmacistActor(),
			req: &domain.CheckoutRequest{
				WalkInName:    "x",
				Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
				PaymentMethod: "BARTER",
			},
			wantKind: errs.KindValidation,
		},
		{
			name:  "walk-in without name",
			actor: pharmacistActor(),
			req: &domain.CheckoutRequest{
				Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
				PaymentMethod: domain.PaymentMethodCash,
			},
			wantKind: errs.KindValidation,
		},
		{
			name:  "negative discount",
			actor: pharmacistActor(),
			req: &domain.CheckoutRequest{
				WalkInName:    "x",
				Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
				Discount:      -1,
				PaymentMethod: domain.PaymentMethodCash,
			},
			wantKind: errs.KindValidation,
		},
		{
			name:  "prescription-only drug without prescription",
			actor: pharmacistActor(),
			req: &domain.CheckoutRequest{
				WalkInName:    "x",
				Items:         []*domain.CheckoutItemRequest{{DrugID: rx.ID, Quantity: 1}},
				AmountPaid:    30,
				PaymentMethod: domain.PaymentMethodCash,
			},
			wantKind: errs.KindValidation,
		},
		{
			name:  "unknown patient",
			actor: pharmacistActor(),
			req: &domain.CheckoutRequest{
				PatientID:     404,
				Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
				PaymentMethod: domain.PaymentMethodCash,
			},
			wantKind: errs.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Checkout(context.Background(), tt.actor, tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if errs.KindOf(err) != tt.wantKind {
				t.Errorf("error kind = %v, want %v", errs.KindOf(err), tt.wantKind)
			}
			if drug.QuantityInStock != 10 {
				t.Errorf("stock = %d, want 10 (rejected checkout must not move stock)", drug.QuantityInStock)
			}
		})
	}
}

func TestCheckout_DiscountExceedsTotal(t *testing.T) {
	f := newSaleFixture(t)
	drug := seedDrug(f.drugRepo, 10)

	_, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
		WalkInName:    "Jane Doe",
		Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
		Discount:      100,
		AmountPaid:    15,
		PaymentMethod: domain.PaymentMethodCash,
	})
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("error kind = %v, want validation", errs.KindOf(err))
	}
	if len(f.saleRepo.sales) != 0 {
		t.Error("rejected checkout must not record a sale")
	}
}

func TestCheckout_WithPrescription(t *testing.T) {
	f := newSaleFixture(t)

	rx := &domain.Drug{
		SKU: "MOR-10", Name: "Morphine 10mg",
		UnitPrice: 20, SellingPrice: 30, QuantityInStock: 5,
		RequiresPrescription: true, IsActive: true,
	}
	if err := f.drugRepo.Create(rx); err != nil {
		t.Fatalf("seed drug: %v", err)
	}

	prescription := &domain.Prescription{
		PrescriptionNumber: "RX-TESTONLY",
		PatientID:          f.patient.ID,
		DoctorID:           3,
		Status:             domain.PrescriptionStatusPending,
		ValidUntil:         time.Now().AddDate(0, 1, 0),
	}
	if err := f.prescriptionRepo.Create(prescription); err != nil {
		t.Fatalf("seed prescription: %v", err)
	}

	sale, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
		PatientID:      f.patient.ID,
		PrescriptionID: prescription.ID,
		Items:          []*domain.CheckoutItemRequest{{DrugID: rx.ID, Quantity: 1}},
		AmountPaid:     30,
		PaymentMethod:  domain.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if sale.PrescriptionID == nil || *sale.PrescriptionID != prescription.ID {
		t.Error("sale must record the linked prescription")
	}

	t.Run("cancelled prescription rejected", func(t *testing.T) {
		prescription.Status = domain.PrescriptionStatusCancelled
		_, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
			PatientID:      f.patient.ID,
			PrescriptionID: prescription.ID,
			Items:          []*domain.CheckoutItemRequest{{DrugID: rx.ID, Quantity: 1}},
			AmountPaid:     30,
			PaymentMethod:  domain.PaymentMethodCard,
		})
		if !errs.Is(err, errs.KindInvalidState) {
			t.Errorf("error kind = %v, want invalid state", errs.KindOf(err))
		}
	})

	t.Run("prescription of another patient rejected", func(t *testing.T) {
		other := &domain.User{Email: "other@example.com", Role: domain.UserRolePatient, IsActive: true}
		if err := f.userRepo.Create(other); err != nil {
			t.Fatalf("seed patient: %v", err)
		}
		prescription.Status = domain.PrescriptionStatusPending
		_, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
			PatientID:      other.ID,
			PrescriptionID: prescription.ID,
			Items:          []*domain.CheckoutItemRequest{{DrugID: rx.ID, Quantity: 1}},
			AmountPaid:     30,
			PaymentMethod:  domain.PaymentMethodCard,
		})
		if !errs.Is(err, errs.KindValidation) {
			t.Errorf("error kind = %v, want validation", errs.KindOf(err))
		}
	})
}

func TestCheckout_SaleCreateFailureRollsBack(t *testing.T) {
	f := newSaleFixture(t)
	drug := seedDrug(f.drugRepo, 10)
	f.saleRepo.createErr = errors.New("db gone")

	_, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
		WalkInName:    "Jane Doe",
		Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
		AmountPaid:    15,
		PaymentMethod: domain.PaymentMethodCash,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.KindOf(err) != errs.KindInternal {
		t.Errorf("error kind = %v, want internal", errs.KindOf(err))
	}
	if len(f.saleRepo.sales) != 0 {
		t.Error("failed checkout must not leave a sale behind")
	}
}

func TestGetSale_PatientScope(t *testing.T) {
	f := newSaleFixture(t)
	drug := seedDrug(f.drugRepo, 10)

	sale, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
		PatientID:     f.patient.ID,
		Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
		AmountPaid:    15,
		PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}

	// the buyer sees their own sale
	got, err := f.svc.GetSale(f.patient, sale.ID)
	if err != nil {
		t.Fatalf("GetSale() error = %v", err)
	}
	if got.ID != sale.ID {
		t.Errorf("sale id = %d, want %d", got.ID, sale.ID)
	}

	// another patient does not
	other := &domain.User{Email: "other@example.com", Role: domain.UserRolePatient, IsActive: true}
	if err := f.userRepo.Create(other); err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	if _, err := f.svc.GetSale(other, sale.ID); !errs.Is(err, errs.KindPermission) {
		t.Errorf("error kind = %v, want permission", errs.KindOf(err))
	}

	if _, err := f.svc.GetSale(pharmacistActor(), 404); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("error kind = %v, want not found", errs.KindOf(err))
	}
}

func TestListSales_PatientScope(t *testing.T) {
	f := newSaleFixture(t)
	drug := seedDrug(f.drugRepo, 10)

	checkout := func(patientID int64, walkIn string) {
		t.Helper()
		_, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
			PatientID:     patientID,
			WalkInName:    walkIn,
			Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 1}},
			AmountPaid:    15,
			PaymentMethod: domain.PaymentMethodCash,
		})
		if err != nil {
			t.Fatalf("Checkout() error = %v", err)
		}
	}

	checkout(f.patient.ID, "")
	checkout(0, "Jane Doe")

	result, err := f.svc.ListSales(pharmacistActor(), &domain.SaleListRequest{})
	if err != nil {
		t.Fatalf("ListSales() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("pharmacist total = %d, want 2", result.Total)
	}

	result, err = f.svc.ListSales(f.patient, &domain.SaleListRequest{})
	if err != nil {
		t.Fatalf("ListSales() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("patient total = %d, want 1 (own purchases only)", result.Total)
	}

	if _, err := f.svc.ListSales(doctorActor(), &domain.SaleListRequest{}); !errs.Is(err, errs.KindPermission) {
		t.Errorf("doctor list kind = %v, want permission", errs.KindOf(err))
	}
}

func TestSaleStats(t *testing.T) {
	f := newSaleFixture(t)
	drug := seedDrug(f.drugRepo, 10)

	if _, err := f.svc.Checkout(context.Background(), pharmacistActor(), &domain.CheckoutRequest{
		WalkInName:    "Jane Doe",
		Items:         []*domain.CheckoutItemRequest{{DrugID: drug.ID, Quantity: 2}},
		AmountPaid:    30,
		PaymentMethod: domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}

	from := time.Now().AddDate(0, 0, -1)
	to := time.Now().AddDate(0, 0, 1)

	stats, err := f.svc.Stats(pharmacistActor(), from, to)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.SaleCount != 1 || stats.TotalRevenue != 30 || stats.TotalProfit != 10 {
		t.Errorf("stats = %+v, want 1 sale, revenue 30, profit 10", stats)
	}
	if stats.ByMethod[domain.PaymentMethodCash] != 30 {
		t.Errorf("cash revenue = %v, want 30", stats.ByMethod[domain.PaymentMethodCash])
	}

	if _, err := f.svc.Stats(pharmacistActor(), to, from); !errs.Is(err, errs.KindValidation) {
		t.Errorf("inverted range kind = %v, want validation", errs.KindOf(err))
	}

	if _, err := f.svc.Stats(doctorActor(), from, to); !errs.Is(err, errs.KindPermission) {
		t.Errorf("doctor stats kind = %v, want permission", errs.KindOf(err))
	}
}
