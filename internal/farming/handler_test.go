package farming

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/craftlink/sentinel/internal/authz"
)

type mockCaseService struct {
	mock.Mock
}

func (m *mockCaseService) GetCase(ctx context.Context, caseKey string) (*FarmingCase, error) {
	args := m.Called(ctx, caseKey)
	farmingCase, _ := args.Get(0).(*FarmingCase)
	return farmingCase, args.Error(1)
}

func (m *mockCaseService) ListCases(ctx context.Context, status CaseStatus, limit, offset int) ([]*FarmingCase, int64, error) {
	args := m.Called(ctx, status, limit, offset)
	cases, _ := args.Get(0).([]*FarmingCase)
	return cases, args.Get(1).(int64), args.Error(2)
}

func (m *mockCaseService) ResolveCase(ctx context.Context, caseKey string, resolvedBy uuid.UUID, status CaseStatus, resolution string) error {
	args := m.Called(ctx, caseKey, resolvedBy, status, resolution)
	return args.Error(0)
}

func (m *mockCaseService) AppealCase(ctx context.Context, caseKey string, reason string) error {
	args := m.Called(ctx, caseKey, reason)
	return args.Error(0)
}

type stubAuthorizer struct {
	decision authz.Decision
	err      error
}

func (s *stubAuthorizer) Authorize(ctx context.Context, userID uuid.UUID) (authz.Decision, error) {
	return s.decision, s.err
}

func newCaseRouter(service CaseService, authorizer authz.Authorizer, callerID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if callerID != "" {
			c.Set("user_id", callerID)
		}
		c.Next()
	})
	handler := NewHandler(service, nil, authorizer)
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func adminAuthorizer() *stubAuthorizer {
	return &stubAuthorizer{decision: authz.Decision{Allowed: true, Role: authz.AdminRole}}
}

func TestListCasesRequiresAuthentication(t *testing.T) {
	router := newCaseRouter(new(mockCaseService), adminAuthorizer(), "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cases", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListCasesRejectsNonAdmin(t *testing.T) {
	authorizer := &stubAuthorizer{decision: authz.Decision{Allowed: false, Role: "seller"}}
	router := newCaseRouter(new(mockCaseService), authorizer, uuid.NewString())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cases", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListCasesReturnsPaginatedCases(t *testing.T) {
	service := new(mockCaseService)
	service.On("ListCases", mock.Anything, StatusDetected, 20, 0).
		Return([]*FarmingCase{{CaseKey: "k1", Status: StatusDetected, Severity: SeverityHigh}}, int64(1), nil)

	router := newCaseRouter(service, adminAuthorizer(), uuid.NewString())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cases?status=detected", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool          `json:"success"`
		Data    []FarmingCase `json:"data"`
		Total   int64         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, int64(1), body.Total)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "k1", body.Data[0].CaseKey)
}

func TestGetCaseNotFound(t *testing.T) {
	service := new(mockCaseService)
	service.On("GetCase", mock.Anything, "missing").Return(nil, assert.AnError)

	router := newCaseRouter(service, adminAuthorizer(), uuid.NewString())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cases/missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResolveCasePassesVerdictToService(t *testing.T) {
	adminID := uuid.New()
	service := new(mockCaseService)
	service.On("ResolveCase", mock.Anything, "case-1", adminID, StatusFalsePositive, "shared household").
		Return(nil)

	router := newCaseRouter(service, adminAuthorizer(), adminID.String())

	payload, _ := json.Marshal(ResolveCaseRequest{Status: StatusFalsePositive, Resolution: "shared household"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cases/case-1/resolve", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestResolveCaseRejectsMissingFields(t *testing.T) {
	router := newCaseRouter(new(mockCaseService), adminAuthorizer(), uuid.NewString())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cases/case-1/resolve", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppealCase(t *testing.T) {
	service := new(mockCaseService)
	service.On("AppealCase", mock.Anything, "case-2", "new evidence").Return(nil)

	router := newCaseRouter(service, adminAuthorizer(), uuid.NewString())

	payload, _ := json.Marshal(AppealCaseRequest{Reason: "new evidence"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cases/case-2/appeal", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}
