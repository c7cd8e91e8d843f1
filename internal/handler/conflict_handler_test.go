package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-attendance-api/internal/dto"
	"github.com/noah-isme/church-attendance-api/internal/models"
	"github.com/noah-isme/church-attendance-api/internal/middleware"
	appErrors "github.com/noah-isme/church-attendance-api/pkg/errors"
)

type conflictServiceStub struct {
	cases      []models.ConflictCase
	pagination *models.Pagination
	listReq    *dto.ConflictListRequest
	resolveReq *dto.ResolveConflictRequest
	resolveErr error
	sweep      *dto.SweepResponse
	sweepErr   error
}

func (s *conflictServiceStub) ListOpen(_ context.Context, req dto.ConflictListRequest) ([]models.ConflictCase, *models.Pagination, error) {
	s.listReq = &req
	return s.cases, s.pagination, nil
}

func (s *conflictServiceStub) Resolve(_ context.Context, req dto.ResolveConflictRequest) error {
	s.resolveReq = &req
	return s.resolveErr
}

func (s *conflictServiceStub) TriggerSweep(context.Context) (*dto.SweepResponse, error) {
	return s.sweep, s.sweepErr
}

func TestConflictHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &conflictServiceStub{
		cases:      []models.ConflictCase{{MemberID: "m1", Date: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)}},
		pagination: &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11},
	}
	handler := NewConflictHandler(stub)

	c, w := newGinContext(http.MethodGet, "/attendance/conflicts?memberId=m1&page=2&limit=10&from=2024-03-01", nil)
	c.Set(middleware.ContextUserKey, adminClaims())
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.listReq)
	assert.Equal(t, "m1", stub.listReq.MemberID)
	assert.Equal(t, 2, stub.listReq.Page)
	assert.Equal(t, 10, stub.listReq.PageSize)
	require.NotNil(t, stub.listReq.From)
	assert.Nil(t, stub.listReq.To)
	assert.Empty(t, stub.listReq.Entity, "admins are not scoped")

	body := decodeEnvelope(t, w)
	assert.Equal(t, float64(11), body["pagination"].(map[string]interface{})["total_count"])
}

func TestConflictHandlerListRejectsBadQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &conflictServiceStub{}
	handler := NewConflictHandler(stub)

	for _, query := range []string{"page=abc", "limit=-1", "from=03/01/2024"} {
		c, w := newGinContext(http.MethodGet, "/attendance/conflicts?"+query, nil)
		c.Set(middleware.ContextUserKey, adminClaims())
		handler.List(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
	assert.Nil(t, stub.listReq)
}

func TestConflictHandlerResolve(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &conflictServiceStub{}
	handler := NewConflictHandler(stub)

	payload, _ := json.Marshal(dto.ResolveConflictRequest{
		MemberID: "m1", TribeFactID: "f1", DepartmentFactID: "f2", Date: "2024-03-03",
		TribeValue: models.BoolPtr(true), DepartmentValue: models.BoolPtr(true),
	})
	c, w := newGinContext(http.MethodPost, "/attendance/conflicts/resolve", payload)
	c.Set(middleware.ContextUserKey, adminClaims())
	handler.Resolve(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, stub.resolveReq)
	assert.Equal(t, "f2", stub.resolveReq.DepartmentFactID)
}

func TestConflictHandlerResolveMapsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &conflictServiceStub{resolveErr: appErrors.Clone(appErrors.ErrNotFound, "conflict not found")}
	handler := NewConflictHandler(stub)

	payload, _ := json.Marshal(map[string]interface{}{"member_id": "m1"})
	c, w := newGinContext(http.MethodPost, "/attendance/conflicts/resolve", payload)
	c.Set(middleware.ContextUserKey, adminClaims())
	handler.Resolve(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConflictHandlerScopesManagersToTheirEntity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &conflictServiceStub{pagination: &models.Pagination{Page: 1, PageSize: 20}}
	handler := NewConflictHandler(stub)
	manager := &models.JWTClaims{UserID: "lead", Role: models.RoleTribeManager, EntityID: "t1"}

	c, w := newGinContext(http.MethodGet, "/attendance/conflicts?memberId=m1", nil)
	c.Set(middleware.ContextUserKey, manager)
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.listReq)
	assert.Equal(t, models.EntityTribe, stub.listReq.Entity)
	assert.Equal(t, "t1", stub.listReq.EntityID)

	payload, _ := json.Marshal(dto.ResolveConflictRequest{
		MemberID: "m1", TribeFactID: "f1", DepartmentFactID: "f2", Date: "2024-03-03",
		TribeValue: models.BoolPtr(false), DepartmentValue: models.BoolPtr(false),
	})
	c, w = newGinContext(http.MethodPost, "/attendance/conflicts/resolve", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "dept", Role: models.RoleDepartmentManager, EntityID: "d1"})
	handler.Resolve(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, stub.resolveReq)
	assert.Equal(t, models.EntityDepartment, stub.resolveReq.Entity)
	assert.Equal(t, "d1", stub.resolveReq.EntityID)
}

func TestConflictHandlerRejectsCallersWithoutScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &conflictServiceStub{}
	handler := NewConflictHandler(stub)

	c, w := newGinContext(http.MethodGet, "/attendance/conflicts", nil)
	handler.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	for _, claims := range []*models.JWTClaims{
		{UserID: "lead", Role: models.RoleTribeManager},
		{UserID: "member", Role: models.RoleMember, EntityID: "t1"},
	} {
		c, w = newGinContext(http.MethodPost, "/attendance/conflicts/resolve", []byte(`{}`))
		c.Set(middleware.ContextUserKey, claims)
		handler.Resolve(c)
		assert.Equal(t, http.StatusForbidden, w.Code, string(claims.Role))
	}
	assert.Nil(t, stub.listReq)
	assert.Nil(t, stub.resolveReq)
}

func TestConflictHandlerSweep(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewConflictHandler(&conflictServiceStub{sweep: &dto.SweepResponse{JobID: "sweep-1", Status: "QUEUED"}})

	c, w := newGinContext(http.MethodPost, "/attendance/conflicts/sweep", nil)
	handler.Sweep(c)
	assert.Equal(t, http.StatusAccepted, w.Code)

	handler = NewConflictHandler(&conflictServiceStub{sweepErr: appErrors.ErrUnavailable})
	c, w = newGinContext(http.MethodPost, "/attendance/conflicts/sweep", nil)
	handler.Sweep(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
