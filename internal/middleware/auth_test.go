package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/requestdata"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authRouter(t *testing.T, captured **requestdata.RequestData) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	am := NewAuthMiddleware(log, testSecret)

	router := gin.New()
	router.GET("/protected", am.RequireAuth(), func(c *gin.Context) {
		if captured != nil {
			*captured = requestdata.GetRequestData(c.Request.Context())
		}
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequireAuthMissingToken(t *testing.T) {
	router := authRouter(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthBadSignature(t *testing.T) {
	router := authRouter(t, nil)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "someone"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthMissingSubject(t *testing.T) {
	router := authRouter(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"workspace": uuid.NewString()}))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without an actor, got %d", rec.Code)
	}
}

func TestRequireAuthPopulatesRequestData(t *testing.T) {
	var rd *requestdata.RequestData
	router := authRouter(t, &rd)
	ws := uuid.New()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "alice", "workspace": ws.String()}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rd == nil {
		t.Fatalf("expected request data on the context")
	}
	if rd.ActorID != "alice" {
		t.Fatalf("expected actor alice, got %q", rd.ActorID)
	}
	if rd.WorkspaceID != ws {
		t.Fatalf("expected workspace claim, got %s", rd.WorkspaceID)
	}
}

func TestRequireAuthQueryParamToken(t *testing.T) {
	var rd *requestdata.RequestData
	router := authRouter(t, &rd)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected?token="+signToken(t, jwt.MapClaims{"sub": "bob"}), nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rd == nil || rd.ActorID != "bob" {
		t.Fatalf("expected actor bob via query token, got %+v", rd)
	}
}
