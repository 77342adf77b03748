package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/cache"
	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/service"
)

// mockJWTService 是用于测试的JWT服务模拟实现
type mockJWTService struct {
	validTokens   map[string]*service.Claims
	expiredTokens map[string]bool
}

func newMockJWTService() *mockJWTService {
	return &mockJWTService{
		validTokens:   make(map[string]*service.Claims),
		expiredTokens: make(map[string]bool),
	}
}

func (m *mockJWTService) addUser(user *domain.User) (accessToken string) {
	accessToken = "mock_access_token_" + user.Email
	m.validTokens[accessToken] = &service.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Type:   "access",
	}
	return accessToken
}

func (m *mockJWTService) GenerateTokenPair(user *domain.User) (*service.TokenPair, error) {
	return &service.TokenPair{AccessToken: m.addUser(user)}, nil
}

func (m *mockJWTService) ValidateAccessToken(tokenString string) (*service.Claims, error) {
	if m.expiredTokens[tokenString] {
		return nil, service.ErrTokenExpired
	}
	claims, ok := m.validTokens[tokenString]
	if !ok || claims.Type != "access" {
		return nil, service.ErrInvalidToken
	}
	return claims, nil
}

func (m *mockJWTService) ValidateRefreshToken(tokenString string) (*service.Claims, error) {
	return nil, service.ErrInvalidToken
}

func (m *mockJWTService) RefreshTokenPair(refreshToken string) (*service.TokenPair, error) {
	return nil, service.ErrInvalidToken
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := newMockJWTService()
	token := jwtService.addUser(&domain.User{ID: 7, Email: "pharm@example.com", Role: domain.UserRolePharmacist})
	expired := "expired_token"
	jwtService.expiredTokens[expired] = true

	var captured *domain.User
	handler := AuthMiddleware(jwtService, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "valid token", authHeader: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "missing header", authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "no bearer prefix", authHeader: token, wantStatus: http.StatusUnauthorized},
		{name: "empty token", authHeader: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", authHeader: "Bearer bogus", wantStatus: http.StatusUnauthorized},
		{name: "expired token", authHeader: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captured = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/drugs", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if captured == nil || captured.ID != 7 || captured.Email != "pharm@example.com" {
					t.Errorf("context user = %+v, want user 7", captured)
				}
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	jwtService := newMockJWTService()
	pharmacist := jwtService.addUser(&domain.User{ID: 7, Email: "pharm@example.com", Role: domain.UserRolePharmacist})
	patient := jwtService.addUser(&domain.User{ID: 9, Email: "patient@example.com", Role: domain.UserRolePatient})

	auth := AuthMiddleware(jwtService, zap.NewNop())
	guard := RequireRole(zap.NewNop(), domain.UserRoleAdmin, domain.UserRolePharmacist)
	handler := auth(guard(okHandler()))

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{name: "pharmacist allowed", token: pharmacist, wantStatus: http.StatusOK},
		{name: "patient forbidden", token: patient, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	t.Run("missing user in context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		guard(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestIdempotency(t *testing.T) {
	store := cache.NewMemoryCache()
	handler := Idempotency(store, time.Minute, zap.NewNop())(okHandler())

	post := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := post("order-1"); got != http.StatusOK {
		t.Errorf("first request status = %d, want 200", got)
	}
	// same key within the window is a duplicate
	if got := post("order-1"); got != http.StatusConflict {
		t.Errorf("duplicate request status = %d, want 409", got)
	}
	if got := post("order-2"); got != http.StatusOK {
		t.Errorf("new key status = %d, want 200", got)
	}
	// requests without a key are never blocked
	if got := post(""); got != http.StatusOK {
		t.Errorf("keyless request status = %d, want 200", got)
	}
	if got := post(""); got != http.StatusOK {
		t.Errorf("second keyless request status = %d, want 200", got)
	}

	t.Run("GET passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil)
		req.Header.Set(HeaderIdempotencyKey, "order-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}
