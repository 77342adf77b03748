package service

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
	"github.com/pharmaops/pharmacy_server/internal/repo"
)

func newDrugFixture() (DrugService, *mockDrugRepository) {
	drugRepo := newMockDrugRepository()
	svc := NewDrugService(drugRepo, 30, zap.NewNop())
	return svc, drugRepo
}

func TestCreateDrug(t *testing.T) {
	svc, _ := newDrugFixture()

	view, err := svc.CreateDrug(pharmacistActor(), &domain.CreateDrugRequest{
		SKU:          "AMX-500",
		Name:         "Amoxicillin 500mg",
		UnitPrice:    10,
		SellingPrice: 15,
		ReorderLevel: 5,
	})
	if err != nil {
		t.Fatalf("CreateDrug() error = %v", err)
	}

	// new drugs start at zero stock, intake goes through the ledger
	if view.QuantityInStock != 0 {
		t.Errorf("stock = %d, want 0", view.QuantityInStock)
	}
	if !view.IsActive {
		t.Error("new drug must be active")
	}
	if view.StockStatusValue != domain.StockStatusOutOfStock {
		t.Errorf("stock status = %s, want OUT_OF_STOCK", view.StockStatusValue)
	}

	// duplicate SKU
	if _, err := svc.CreateDrug(pharmacistActor(), &domain.CreateDrugRequest{
		SKU: "AMX-500", Name: "Other", UnitPrice: 1, SellingPrice: 2,
	}); !errors.Is(err, ErrDrugExists) {
		t.Errorf("duplicate sku error = %v, want ErrDrugExists", err)
	}
}

func TestCreateDrug_Validation(t *testing.T) {
	svc, _ := newDrugFixture()

	tests := []struct {
		name     string
		actor    *domain.User
		req      *domain.CreateDrugRequest
		wantKind errs.Kind
	}{
		{
			name:     "patient cannot create",
			actor:    patientActor(),
			req:      &domain.CreateDrugRequest{SKU: "X", Name: "X"},
			wantKind: errs.KindPermission,
		},
		{
			name:     "missing sku",
			actor:    pharmacistActor(),
			req:      &domain.CreateDrugRequest{Name: "X"},
			wantKind: errs.KindValidation,
		},
		{
			name:     "missing name",
			actor:    pharmacistActor(),
			req:      &domain.CreateDrugRequest{SKU: "X"},
			wantKind: errs.KindValidation,
		},
		{
			name:     "negative price",
			actor:    pharmacistActor(),
			req:      &domain.CreateDrugRequest{SKU: "X", Name: "X", UnitPrice: -1, SellingPrice: 2},
			wantKind: errs.KindValidation,
		},
		{
			name:     "zero price",
			actor:    pharmacistActor(),
			req:      &domain.CreateDrugRequest{SKU: "X", Name: "X", UnitPrice: 1, SellingPrice: 0},
			wantKind: errs.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateDrug(tt.actor, tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if errs.KindOf(err) != tt.wantKind {
				t.Errorf("error kind = %v, want %v", errs.KindOf(err), tt.wantKind)
			}
		})
	}
}

func TestUpdateDrug(t *testing.T) {
	svc, drugRepo := newDrugFixture()
	drug := seedDrug(drugRepo, 10)

	newPrice := 18.0
	view, err := svc.UpdateDrug(pharmacistActor(), drug.ID, &domain.UpdateDrugRequest{
		SellingPrice: &newPrice,
	})
	if err != nil {
		t.Fatalf("UpdateDrug() error = %v", err)
	}
	if view.SellingPrice != 18 {
		t.Errorf("selling price = %v, want 18", view.SellingPrice)
	}
	// catalog updates never touch stock
	if view.QuantityInStock != 10 {
		t.Errorf("stock = %d, want 10", view.QuantityInStock)
	}

	// prices must stay strictly positive
	zero := 0.0
	if _, err := svc.UpdateDrug(pharmacistActor(), drug.ID, &domain.UpdateDrugRequest{
		SellingPrice: &zero,
	}); !errs.Is(err, errs.KindValidation) {
		t.Errorf("zero price error kind = %v, want validation", errs.KindOf(err))
	}

	if _, err := svc.UpdateDrug(pharmacistActor(), 404, &domain.UpdateDrugRequest{}); !errors.Is(err, ErrDrugNotFound) {
		t.Errorf("unknown drug error = %v, want ErrDrugNotFound", err)
	}
}

func TestUpdateDrug_VersionConflict(t *testing.T) {
	svc, drugRepo := newDrugFixture()
	drug := seedDrug(drugRepo, 10)

	// simulate a concurrent writer bumping the version after our read
	drugRepo.updateErr = repo.ErrVersionConflict

	name := "Renamed"
	_, err := svc.UpdateDrug(pharmacistActor(), drug.ID, &domain.UpdateDrugRequest{Name: &name})
	if !errs.Is(err, errs.KindConflict) {
		t.Errorf("error kind = %v, want conflict", errs.KindOf(err))
	}
}

func TestDeactivateDrug(t *testing.T) {
	svc, drugRepo := newDrugFixture()
	drug := seedDrug(drugRepo, 10)

	if err := svc.DeactivateDrug(pharmacistActor(), drug.ID); err != nil {
		t.Fatalf("DeactivateDrug() error = %v", err)
	}
	if drug.IsActive {
		t.Error("drug must be inactive after deactivation")
	}

	if err := svc.DeactivateDrug(patientActor(), drug.ID); !errs.Is(err, errs.KindPermission) {
		t.Errorf("error kind = %v, want permission", errs.KindOf(err))
	}
	if err := svc.DeactivateDrug(pharmacistActor(), 404); !errors.Is(err, ErrDrugNotFound) {
		t.Errorf("unknown drug error = %v, want ErrDrugNotFound", err)
	}
}

func TestListExpiringSoon(t *testing.T) {
	svc, drugRepo := newDrugFixture()

	soon := time.Now().AddDate(0, 0, 10)
	far := time.Now().AddDate(1, 0, 0)
	past := time.Now().AddDate(0, 0, -1)

	seed := func(sku string, expiry *time.Time) {
		_ = drugRepo.Create(&domain.Drug{
			SKU: sku, Name: sku, UnitPrice: 1, SellingPrice: 2,
			ExpiryDate: expiry, IsActive: true,
		})
	}
	seed("SOON", &soon)
	seed("FAR", &far)
	seed("PAST", &past)
	seed("NONE", nil)

	views, err := svc.ListExpiringSoon(pharmacistActor())
	if err != nil {
		t.Fatalf("ListExpiringSoon() error = %v", err)
	}
	if len(views) != 1 || views[0].SKU != "SOON" {
		t.Errorf("expiring = %d drugs, want only SOON", len(views))
	}

	if _, err := svc.ListExpiringSoon(patientActor()); !errs.Is(err, errs.KindPermission) {
		t.Errorf("error kind = %v, want permission", errs.KindOf(err))
	}
}

func TestInventoryStats(t *testing.T) {
	svc, drugRepo := newDrugFixture()

	_ = drugRepo.Create(&domain.Drug{
		SKU: "A", Name: "A", UnitPrice: 10, SellingPrice: 15,
		QuantityInStock: 100, ReorderLevel: 5, IsActive: true,
	})
	_ = drugRepo.Create(&domain.Drug{
		SKU: "B", Name: "B", UnitPrice: 2, SellingPrice: 4,
		QuantityInStock: 3, ReorderLevel: 5, IsActive: true,
	})
	_ = drugRepo.Create(&domain.Drug{
		SKU: "C", Name: "C", UnitPrice: 1, SellingPrice: 2,
		QuantityInStock: 0, ReorderLevel: 5, IsActive: false,
	})

	stats, err := svc.Stats(pharmacistActor())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalDrugs != 3 || stats.ActiveDrugs != 2 {
		t.Errorf("drugs = %d/%d active, want 3/2", stats.TotalDrugs, stats.ActiveDrugs)
	}
	// zero-stock drugs count as low stock too, they need reordering most
	if stats.LowStockCount != 2 || stats.OutOfStockCount != 1 {
		t.Errorf("low/out = %d/%d, want 2/1", stats.LowStockCount, stats.OutOfStockCount)
	}
	if stats.TotalStockValue != 100*10+3*2 {
		t.Errorf("stock value = %v, want 1006", stats.TotalStockValue)
	}

	if _, err := svc.Stats(patientActor()); !errs.Is(err, errs.KindPermission) {
		t.Errorf("error kind = %v, want permission", errs.KindOf(err))
	}
}
