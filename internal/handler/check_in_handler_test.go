package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maap-api/internal/middleware"
	"github.com/noah-isme/maap-api/internal/models"
	"github.com/noah-isme/maap-api/internal/service"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
)

type apiEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func employeeClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-1", TeammateID: "tm-1", OrganizationID: "org-1", Role: models.RoleEmployee}
}

func managerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-9", TeammateID: "mgr-1", OrganizationID: "org-1", Role: models.RoleManager}
}

// newTestContext builds a gin context carrying claims (if any), a JSON body and route params.
func newTestContext(method, target string, body interface{}, claims *models.JWTClaims, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

type fakeCheckInService struct {
	checkIn     *models.CheckIn
	err         error
	ready       bool
	lastKind    models.CheckInKind
	lastSave    service.SaveSideInput
	lastFinal   service.FinalizeInput
	lastActor   string
	lastHistory models.CheckInHistoryFilter
}

func (f *fakeCheckInService) OpenOrCreate(_ context.Context, kind models.CheckInKind, teammateID, itemID string) (*models.CheckIn, error) {
	f.lastKind = kind
	if f.err != nil {
		return nil, f.err
	}
	return &models.CheckIn{ID: "ci-1", Kind: kind, TeammateID: teammateID, ItemID: itemID}, nil
}

func (f *fakeCheckInService) Get(context.Context, string) (*models.CheckIn, error) {
	return f.checkIn, f.err
}

func (f *fakeCheckInService) SaveSide(_ context.Context, input service.SaveSideInput, actor string) (*models.CheckIn, error) {
	f.lastSave = input
	f.lastActor = actor
	return f.checkIn, f.err
}

func (f *fakeCheckInService) ReadyForFinalization(*models.CheckIn) bool { return f.ready }

func (f *fakeCheckInService) Finalize(_ context.Context, input service.FinalizeInput, actor string) (*models.CheckIn, error) {
	f.lastFinal = input
	f.lastActor = actor
	return f.checkIn, f.err
}

func (f *fakeCheckInService) History(_ context.Context, filter models.CheckInHistoryFilter) ([]models.CheckIn, error) {
	f.lastHistory = filter
	return []models.CheckIn{}, f.err
}

func TestCheckInHandlerOpenNormalizesKind(t *testing.T) {
	svc := &fakeCheckInService{}
	h := NewCheckInHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/check-ins/open",
		map[string]string{"kind": "Assignment", "teammate_id": "tm-1", "item_id": "asg-1"}, employeeClaims(), nil)
	h.Open(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.CheckInKindAssignment, svc.lastKind)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, string(env.Data), `"id":"ci-1"`)
}

func TestCheckInHandlerRequiresIdentity(t *testing.T) {
	h := NewCheckInHandler(&fakeCheckInService{})

	c, rec := newTestContext(http.MethodGet, "/check-ins/ci-1", nil, nil, gin.Params{{Key: "id", Value: "ci-1"}})
	h.Get(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckInHandlerManagerSideNeedsManager(t *testing.T) {
	svc := &fakeCheckInService{checkIn: &models.CheckIn{ID: "ci-1"}}
	h := NewCheckInHandler(svc)
	params := gin.Params{{Key: "id", Value: "ci-1"}, {Key: "side", Value: "manager"}}
	rating := "exceeding"

	c, rec := newTestContext(http.MethodPut, "/check-ins/ci-1/sides/manager", map[string]interface{}{"rating": rating}, employeeClaims(), params)
	h.SaveSide(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newTestContext(http.MethodPut, "/check-ins/ci-1/sides/manager",
		map[string]interface{}{"rating": rating, "mark_complete": true}, managerClaims(), params)
	h.SaveSide(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SideManager, svc.lastSave.Side)
	require.NotNil(t, svc.lastSave.Rating)
	assert.Equal(t, rating, *svc.lastSave.Rating)
	assert.True(t, svc.lastSave.MarkComplete)
	assert.Equal(t, "mgr-1", svc.lastActor)
}

func TestCheckInHandlerSaveSidePropagatesDomainErrors(t *testing.T) {
	svc := &fakeCheckInService{err: appErrors.ErrAlreadyFinalized}
	h := NewCheckInHandler(svc)

	c, rec := newTestContext(http.MethodPut, "/check-ins/ci-1/sides/employee",
		map[string]interface{}{"notes": "done"}, employeeClaims(), gin.Params{{Key: "id", Value: "ci-1"}, {Key: "side", Value: "employee"}})
	h.SaveSide(c)

	assert.Equal(t, appErrors.ErrAlreadyFinalized.Status, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrAlreadyFinalized.Code, env.Error.Code)
}

func TestCheckInHandlerReady(t *testing.T) {
	h := NewCheckInHandler(&fakeCheckInService{checkIn: &models.CheckIn{ID: "ci-1"}, ready: true})

	c, rec := newTestContext(http.MethodGet, "/check-ins/ci-1/ready", nil, employeeClaims(), gin.Params{{Key: "id", Value: "ci-1"}})
	h.Ready(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"check_in_id":"ci-1","ready":true}`, string(decodeEnvelope(t, rec).Data))
}

func TestCheckInHandlerFinalizePassesActor(t *testing.T) {
	svc := &fakeCheckInService{checkIn: &models.CheckIn{ID: "ci-1"}}
	h := NewCheckInHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/check-ins/ci-1/finalize",
		map[string]string{"final_rating": "meeting", "shared_notes": "steady quarter"}, managerClaims(), gin.Params{{Key: "id", Value: "ci-1"}})
	h.Finalize(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.FinalizeInput{CheckInID: "ci-1", FinalRating: "meeting", SharedNotes: "steady quarter"}, svc.lastFinal)
	assert.Equal(t, "mgr-1", svc.lastActor)
}

func TestCheckInHandlerHistoryScopes(t *testing.T) {
	svc := &fakeCheckInService{}
	h := NewCheckInHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/check-ins/history?kind=Position&limit=5", nil, employeeClaims(), nil)
	h.History(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.CheckInHistoryFilter{Kind: models.CheckInKindPosition, TeammateID: "tm-1", Limit: 5}, svc.lastHistory)

	c, rec = newTestContext(http.MethodGet, "/check-ins/history?teammate_id=tm-2", nil, employeeClaims(), nil)
	h.History(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/check-ins/history?teammate_id=tm-2", nil, managerClaims(), nil)
	h.History(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tm-2", svc.lastHistory.TeammateID)

	c, rec = newTestContext(http.MethodGet, "/check-ins/history?limit=-1", nil, employeeClaims(), nil)
	h.History(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Error.Fields, "limit")
}
