package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken("home-assistant", RoleOperator, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateAccessToken() returned empty token")
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "home-assistant" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "home-assistant")
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken("cli", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != DefaultTokenTTL {
		t.Errorf("TTL = %v, want %v", ttl, DefaultTokenTTL)
	}
}

func TestGenerateAccessToken_Invalid(t *testing.T) {
	if _, err := GenerateAccessToken("", RoleAdmin, testSecret, time.Hour); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("GenerateAccessToken(no subject) error = %v, want ErrTokenInvalid", err)
	}
	if _, err := GenerateAccessToken("cli", Role("root"), testSecret, time.Hour); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("GenerateAccessToken(bad role) error = %v, want ErrInvalidRole", err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateAccessToken("cli", RoleAdmin, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	// base returns claims that parse; each case breaks one thing.
	base := func() CustomClaims {
		return CustomClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    Issuer,
				Subject:   "cli",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: RoleAdmin,
		}
	}
	if _, err := ParseToken(signClaims(t, base(), jwt.SigningMethodHS256), testSecret); err != nil {
		t.Fatalf("ParseToken(base) error = %v", err)
	}

	expired := base()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := base()
	noExpiry.ExpiresAt = nil
	noRole := base()
	noRole.Role = ""
	noSubject := base()
	noSubject.Subject = ""
	foreign := base()
	foreign.Issuer = "some-other-service"

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "another-secret-key-at-least-32-characters"},
		{"garbage", "not-a-valid-jwt", testSecret},
		{"expired", signClaims(t, expired, jwt.SigningMethodHS256), testSecret},
		{"no expiry", signClaims(t, noExpiry, jwt.SigningMethodHS256), testSecret},
		{"missing role", signClaims(t, noRole, jwt.SigningMethodHS256), testSecret},
		{"missing subject", signClaims(t, noSubject, jwt.SigningMethodHS256), testSecret},
		{"foreign issuer", signClaims(t, foreign, jwt.SigningMethodHS256), testSecret},
		{"wrong algorithm", signClaims(t, base(), jwt.SigningMethodHS512), testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func signClaims(t *testing.T, claims CustomClaims, method jwt.SigningMethod) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

// =============================================================================
// Permissions
// =============================================================================

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermCameraRead, true},
		{RoleViewer, PermCameraOperate, false},
		{RoleOperator, PermCameraOperate, true},
		{RoleOperator, PermCameraConfigure, false},
		{RoleAdmin, PermCameraConfigure, true},
		{RoleAdmin, PermSettingsManage, true},
		{Role("root"), PermCameraRead, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleViewer)
	perms[0] = PermSettingsManage
	if HasPermission(RoleViewer, PermSettingsManage) {
		t.Error("PermissionsForRole() exposed the internal slice")
	}
}
