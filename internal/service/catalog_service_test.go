package service

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
)

func newCatalogFixture() (CatalogService, *mockCategoryRepository, *mockManufacturerRepository) {
	categoryRepo := newMockCategoryRepository()
	manufacturerRepo := newMockManufacturerRepository()
	svc := NewCatalogService(categoryRepo, manufacturerRepo, zap.NewNop())
	return svc, categoryRepo, manufacturerRepo
}

func TestCreateCategory(t *testing.T) {
	svc, _, _ := newCatalogFixture()

	category, err := svc.CreateCategory(pharmacistActor(), &domain.CreateCategoryRequest{
		Name:        "Antibiotics",
		Description: "Antibacterial drugs",
	})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if category.ID == 0 {
		t.Error("category ID not assigned")
	}

	// duplicate name
	if _, err := svc.CreateCategory(pharmacistActor(), &domain.CreateCategoryRequest{
		Name: "Antibiotics",
	}); !errors.Is(err, ErrCategoryExists) {
		t.Errorf("duplicate name error = %v, want ErrCategoryExists", err)
	}

	// empty name
	if _, err := svc.CreateCategory(pharmacistActor(), &domain.CreateCategoryRequest{
		Name: "   ",
	}); errs.KindOf(err) != errs.KindValidation {
		t.Errorf("empty name error = %v, want validation error", err)
	}

	// patients cannot manage the catalog
	if _, err := svc.CreateCategory(patientActor(), &domain.CreateCategoryRequest{
		Name: "Analgesics",
	}); errs.KindOf(err) != errs.KindPermission {
		t.Errorf("patient create error = %v, want permission error", err)
	}
}

func TestUpdateCategory(t *testing.T) {
	svc, _, _ := newCatalogFixture()

	created, err := svc.CreateCategory(pharmacistActor(), &domain.CreateCategoryRequest{Name: "Antibiotics"})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if _, err := svc.CreateCategory(pharmacistActor(), &domain.CreateCategoryRequest{Name: "Analgesics"}); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}

	newDesc := "Beta-lactam antibiotics"
	updated, err := svc.UpdateCategory(pharmacistActor(), created.ID, &domain.UpdateCategoryRequest{
		Description: &newDesc,
	})
	if err != nil {
		t.Fatalf("UpdateCategory() error = %v", err)
	}
	if updated.Description != newDesc {
		t.Errorf("description = %q, want %q", updated.Description, newDesc)
	}

	// renaming onto another category's name conflicts
	taken := "Analgesics"
	if _, err := svc.UpdateCategory(pharmacistActor(), created.ID, &domain.UpdateCategoryRequest{
		Name: &taken,
	}); !errors.Is(err, ErrCategoryExists) {
		t.Errorf("rename to taken name error = %v, want ErrCategoryExists", err)
	}

	// unknown ID
	if _, err := svc.UpdateCategory(pharmacistActor(), 999, &domain.UpdateCategoryRequest{
		Description: &newDesc,
	}); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("unknown ID error = %v, want ErrCategoryNotFound", err)
	}
}

func TestDeleteCategory(t *testing.T) {
	svc, categoryRepo, _ := newCatalogFixture()

	created, err := svc.CreateCategory(pharmacistActor(), &domain.CreateCategoryRequest{Name: "Antibiotics"})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}

	if err := svc.DeleteCategory(patientActor(), created.ID); errs.KindOf(err) != errs.KindPermission {
		t.Errorf("patient delete error = %v, want permission error", err)
	}

	if err := svc.DeleteCategory(pharmacistActor(), created.ID); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
	if len(categoryRepo.categories) != 0 {
		t.Error("category not removed")
	}

	if err := svc.DeleteCategory(pharmacistActor(), created.ID); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("second delete error = %v, want ErrCategoryNotFound", err)
	}
}

func TestListCategories(t *testing.T) {
	svc, _, _ := newCatalogFixture()

	for _, name := range []string{"Vitamins", "Antibiotics", "Analgesics"} {
		if _, err := svc.CreateCategory(pharmacistActor(), &domain.CreateCategoryRequest{Name: name}); err != nil {
			t.Fatalf("CreateCategory(%s) error = %v", name, err)
		}
	}

	categories, err := svc.ListCategories()
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(categories) != 3 {
		t.Fatalf("len = %d, want 3", len(categories))
	}
	// ordered by name
	if categories[0].Name != "Analgesics" || categories[2].Name != "Vitamins" {
		t.Errorf("unexpected order: %s, %s, %s", categories[0].Name, categories[1].Name, categories[2].Name)
	}
}

func TestCreateManufacturer(t *testing.T) {
	svc, _, _ := newCatalogFixture()

	manufacturer, err := svc.CreateManufacturer(pharmacistActor(), &domain.CreateManufacturerRequest{
		Name:    "Novapharm",
		Country: "DE",
		Contact: "sales@novapharm.example",
	})
	if err != nil {
		t.Fatalf("CreateManufacturer() error = %v", err)
	}
	if manufacturer.ID == 0 {
		t.Error("manufacturer ID not assigned")
	}

	if _, err := svc.CreateManufacturer(pharmacistActor(), &domain.CreateManufacturerRequest{
		Name: "Novapharm",
	}); !errors.Is(err, ErrManufacturerExists) {
		t.Errorf("duplicate name error = %v, want ErrManufacturerExists", err)
	}

	if _, err := svc.CreateManufacturer(patientActor(), &domain.CreateManufacturerRequest{
		Name: "Other Labs",
	}); errs.KindOf(err) != errs.KindPermission {
		t.Errorf("patient create error = %v, want permission error", err)
	}
}

func TestUpdateManufacturer(t *testing.T) {
	svc, _, _ := newCatalogFixture()

	created, err := svc.CreateManufacturer(pharmacistActor(), &domain.CreateManufacturerRequest{
		Name:    "Novapharm",
		Country: "DE",
	})
	if err != nil {
		t.Fatalf("CreateManufacturer() error = %v", err)
	}

	country := "CH"
	contact := "support@novapharm.example"
	updated, err := svc.UpdateManufacturer(pharmacistActor(), created.ID, &domain.UpdateManufacturerRequest{
		Country: &country,
		Contact: &contact,
	})
	if err != nil {
		t.Fatalf("UpdateManufacturer() error = %v", err)
	}
	if updated.Country != "CH" || updated.Contact != contact {
		t.Errorf("update not applied: %+v", updated)
	}

	if _, err := svc.UpdateManufacturer(pharmacistActor(), 999, &domain.UpdateManufacturerRequest{
		Country: &country,
	}); !errors.Is(err, ErrManufacturerNotFound) {
		t.Errorf("unknown ID error = %v, want ErrManufacturerNotFound", err)
	}
}

func TestDeleteManufacturer(t *testing.T) {
	svc, _, manufacturerRepo := newCatalogFixture()

	created, err := svc.CreateManufacturer(pharmacistActor(), &domain.CreateManufacturerRequest{Name: "Novapharm"})
	if err != nil {
		t.Fatalf("CreateManufacturer() error = %v", err)
	}

	if err := svc.DeleteManufacturer(pharmacistActor(), created.ID); err != nil {
		t.Fatalf("DeleteManufacturer() error = %v", err)
	}
	if len(manufacturerRepo.manufacturers) != 0 {
		t.Error("manufacturer not removed")
	}

	if err := svc.DeleteManufacturer(pharmacistActor(), created.ID); !errors.Is(err, ErrManufacturerNotFound) {
		t.Errorf("second delete error = %v, want ErrManufacturerNotFound", err)
	}
}
