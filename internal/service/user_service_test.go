package service

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/errs"
)

func adminActor() *domain.User {
	return &domain.User{ID: 1, Email: "admin@example.com", Role: domain.UserRoleAdmin, IsActive: true}
}

func newUserFixture() (UserService, *mockUserRepository) {
	userRepo := newMockUserRepository()
	svc := NewUserService(userRepo, zap.NewNop())
	return svc, userRepo
}

func TestRegister(t *testing.T) {
	svc, _ := newUserFixture()

	user, err := svc.Register(&domain.RegisterRequest{
		Email:     "  Alice@Example.COM ",
		Password:  "password123",
		FirstName: "Alice",
		LastName:  "Smith",
		Role:      domain.UserRoleAdmin, // must be ignored for self-registration
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if user.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized lowercase", user.Email)
	}
	if user.Role != domain.UserRolePatient {
		t.Errorf("role = %s, want PATIENT (self-registration is always patient)", user.Role)
	}
	if !user.IsActive {
		t.Error("new user must be active")
	}
	if user.PasswordHash == "password123" || user.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newUserFixture()

	if _, err := svc.Register(&domain.RegisterRequest{Email: "", Password: "password123"}); !errs.Is(err, errs.KindValidation) {
		t.Errorf("empty email kind = %v, want validation", errs.KindOf(err))
	}
	if _, err := svc.Register(&domain.RegisterRequest{Email: "a@b.com", Password: "short"}); !errs.Is(err, errs.KindValidation) {
		t.Errorf("short password kind = %v, want validation", errs.KindOf(err))
	}

	if _, err := svc.Register(&domain.RegisterRequest{Email: "a@b.com", Password: "password123"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := svc.Register(&domain.RegisterRequest{Email: "A@B.com", Password: "password123"}); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate email error = %v, want ErrUserExists", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newUserFixture()

	registered, err := svc.Register(&domain.RegisterRequest{Email: "bob@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	t.Run("success", func(t *testing.T) {
		user, err := svc.Login(&domain.LoginRequest{Email: "Bob@Example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if user.ID != registered.ID {
			t.Errorf("user id = %d, want %d", user.ID, registered.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.Login(&domain.LoginRequest{Email: "bob@example.com", Password: "wrongpass1"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		if _, err := svc.Login(&domain.LoginRequest{Email: "nobody@example.com", Password: "password123"}); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("error = %v, want ErrUserNotFound", err)
		}
	})

	t.Run("inactive account", func(t *testing.T) {
		registered.IsActive = false
		defer func() { registered.IsActive = true }()
		if _, err := svc.Login(&domain.LoginRequest{Email: "bob@example.com", Password: "password123"}); !errors.Is(err, ErrUserInactive) {
			t.Errorf("error = %v, want ErrUserInactive", err)
		}
	})
}

func TestCreateUser_Admin(t *testing.T) {
	svc, _ := newUserFixture()

	user, err := svc.CreateUser(adminActor(), &domain.RegisterRequest{
		Email:    "pharm@example.com",
		Password: "password123",
		Role:     domain.UserRolePharmacist,
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.Role != domain.UserRolePharmacist {
		t.Errorf("role = %s, want PHARMACIST", user.Role)
	}

	// omitted role defaults to patient
	user, err = svc.CreateUser(adminActor(), &domain.RegisterRequest{
		Email:    "someone@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.Role != domain.UserRolePatient {
		t.Errorf("role = %s, want PATIENT", user.Role)
	}

	if _, err := svc.CreateUser(adminActor(), &domain.RegisterRequest{
		Email: "x@example.com", Password: "password123", Role: "SUPERUSER",
	}); !errs.Is(err, errs.KindValidation) {
		t.Errorf("invalid role kind = %v, want validation", errs.KindOf(err))
	}

	if _, err := svc.CreateUser(pharmacistActor(), &domain.RegisterRequest{
		Email: "y@example.com", Password: "password123",
	}); !errs.Is(err, errs.KindPermission) {
		t.Errorf("non-admin kind = %v, want permission", errs.KindOf(err))
	}
}

func TestUpdateUser_Admin(t *testing.T) {
	svc, _ := newUserFixture()

	user, err := svc.CreateUser(adminActor(), &domain.RegisterRequest{
		Email:    "staff@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	newRole := domain.UserRoleReceptionist
	inactive := false
	updated, err := svc.UpdateUser(adminActor(), user.ID, &domain.UpdateUserRequest{
		Role:     &newRole,
		IsActive: &inactive,
	})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated.Role != domain.UserRoleReceptionist || updated.IsActive {
		t.Errorf("updated = role %s active %v, want RECEPTIONIST inactive", updated.Role, updated.IsActive)
	}

	badRole := domain.UserRole("WIZARD")
	if _, err := svc.UpdateUser(adminActor(), user.ID, &domain.UpdateUserRequest{Role: &badRole}); !errs.Is(err, errs.KindValidation) {
		t.Errorf("invalid role kind = %v, want validation", errs.KindOf(err))
	}
	if _, err := svc.UpdateUser(adminActor(), 404, &domain.UpdateUserRequest{}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.UpdateUser(pharmacistActor(), user.ID, &domain.UpdateUserRequest{}); !errs.Is(err, errs.KindPermission) {
		t.Errorf("non-admin kind = %v, want permission", errs.KindOf(err))
	}
}

func TestListUsers_Admin(t *testing.T) {
	svc, _ := newUserFixture()

	for _, req := range []*domain.RegisterRequest{
		{Email: "a@example.com", Password: "password123", Role: domain.UserRolePharmacist},
		{Email: "b@example.com", Password: "password123"},
		{Email: "c@example.com", Password: "password123"},
	} {
		if _, err := svc.CreateUser(adminActor(), req); err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
	}

	result, err := svc.ListUsers(adminActor(), &domain.UserListRequest{})
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if result.Total != 3 {
		t.Errorf("total = %d, want 3", result.Total)
	}

	role := domain.UserRolePharmacist
	result, err = svc.ListUsers(adminActor(), &domain.UserListRequest{Role: &role})
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("pharmacist total = %d, want 1", result.Total)
	}

	if _, err := svc.ListUsers(doctorActor(), &domain.UserListRequest{}); !errs.Is(err, errs.KindPermission) {
		t.Errorf("non-admin kind = %v, want permission", errs.KindOf(err))
	}
}
