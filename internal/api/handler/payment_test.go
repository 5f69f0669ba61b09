package handler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/campus_forum_server/internal/model"
	"github.com/qs3c/campus_forum_server/internal/model/dto"
	"github.com/qs3c/campus_forum_server/internal/pkg/response"
	"github.com/qs3c/campus_forum_server/internal/service"
	"github.com/qs3c/campus_forum_server/internal/testutil"
)

func TestPaymentHandler_FullFlow(t *testing.T) {
	env := setupTestEnv(t)
	user := testutil.TestUser(t, env.db)
	resource := testutil.TestResource(t, env.db, user.ID)

	var session model.PaymentSession
	decode(t, env.do(t, "POST", fmt.Sprintf("/api/v1/resources/%d/unlock/initiate", resource.ID), user.ID, nil), &session)
	assert.Equal(t, model.SessionPending, session.Status)
	assert.NotEmpty(t, session.SessionID)

	before := time.Now().UTC()
	var processing model.PaymentSession
	decode(t, env.do(t, "POST", "/api/v1/payments/sessions/"+session.SessionID+"/process", user.ID, nil), &processing)
	assert.Equal(t, model.SessionProcessing, processing.Status)

	jobs := env.queue.pushed()
	require.Len(t, jobs, 1)
	assert.Equal(t, session.SessionID, jobs[0].SessionID)
	assert.Equal(t, user.ID, jobs[0].UserID)
	assert.False(t, jobs[0].ProcessAt.Before(before.Add(3*time.Second)))

	var verified dto.VerifyResponse
	decode(t, env.do(t, "POST", "/api/v1/payments/sessions/"+session.SessionID+"/verify", user.ID, nil), &verified)
	assert.Equal(t, model.SessionSucceeded, verified.Session.Status)
	require.NotNil(t, verified.Entitlement)
	assert.Equal(t, session.SessionID, verified.Entitlement.SourceSessionID)

	var access dto.AccessResponse
	decode(t, env.do(t, "GET", fmt.Sprintf("/api/v1/resources/%d/access", resource.ID), user.ID, nil), &access)
	assert.True(t, access.IsLocked)
	assert.True(t, access.Entitled)

	// 已解锁后再次发起
	resp := env.do(t, "POST", fmt.Sprintf("/api/v1/resources/%d/unlock/initiate", resource.ID), user.ID, nil)
	assert.Equal(t, response.CodeAlreadyEntitled, resp.Code)

	var entitlements []model.Entitlement
	decode(t, env.do(t, "GET", "/api/v1/user/entitlements", user.ID, nil), &entitlements)
	assert.Len(t, entitlements, 1)
}

func TestPaymentHandler_VerifyFailureOutcome(t *testing.T) {
	env := setupTestEnv(t)
	user := testutil.TestUser(t, env.db)
	resource := testutil.TestResource(t, env.db, user.ID)

	var session model.PaymentSession
	decode(t, env.do(t, "POST", fmt.Sprintf("/api/v1/resources/%d/unlock/initiate", resource.ID), user.ID, nil), &session)
	env.do(t, "POST", "/api/v1/payments/sessions/"+session.SessionID+"/process", user.ID, nil)

	failed := false
	var verified dto.VerifyResponse
	decode(t, env.do(t, "POST", "/api/v1/payments/sessions/"+session.SessionID+"/verify", user.ID, dto.VerifyRequest{Outcome: &failed}), &verified)
	assert.Equal(t, model.SessionFailed, verified.Session.Status)
	assert.Nil(t, verified.Entitlement)

	// 终态会话再次 verify
	resp := env.do(t, "POST", "/api/v1/payments/sessions/"+session.SessionID+"/verify", user.ID, nil)
	assert.Equal(t, response.CodeSessionResolved, resp.Code)

	var data ErrorData
	require.NoError(t, jsonUnmarshal(resp.Data, &data))
	assert.Equal(t, service.KindSessionAlreadyResolved, data.Kind)
	assert.False(t, data.Retryable)
}

func TestPaymentHandler_VerifyPendingIsInvalidTransition(t *testing.T) {
	env := setupTestEnv(t)
	user := testutil.TestUser(t, env.db)
	resource := testutil.TestResource(t, env.db, user.ID)

	var session model.PaymentSession
	decode(t, env.do(t, "POST", fmt.Sprintf("/api/v1/resources/%d/unlock/initiate", resource.ID), user.ID, nil), &session)

	resp := env.do(t, "POST", "/api/v1/payments/sessions/"+session.SessionID+"/verify", user.ID, nil)
	assert.Equal(t, response.CodeInvalidTransition, resp.Code)

	var data ErrorData
	require.NoError(t, jsonUnmarshal(resp.Data, &data))
	assert.True(t, data.Retryable)
}

func TestPaymentHandler_ProcessExpiredSession(t *testing.T) {
	env := setupTestEnv(t)
	user := testutil.TestUser(t, env.db)
	resource := testutil.TestResource(t, env.db, user.ID)

	stale := testutil.TestSession(t, env.db, user.ID, resource.ID, model.SessionPending, time.Now().UTC().Add(-time.Hour), 15*time.Minute)

	resp := env.do(t, "POST", "/api/v1/payments/sessions/"+stale.SessionID+"/process", user.ID, nil)
	assert.Equal(t, response.CodeSessionExpired, resp.Code)
	assert.Empty(t, env.queue.pushed())

	var stored model.PaymentSession
	decode(t, env.do(t, "GET", "/api/v1/payments/sessions/"+stale.SessionID, user.ID, nil), &stored)
	assert.Equal(t, model.SessionExpired, stored.Status)
}

func TestPaymentHandler_EnqueueFailureStillProcesses(t *testing.T) {
	env := setupTestEnv(t)
	env.queue.err = errors.New("redis down")
	user := testutil.TestUser(t, env.db)
	resource := testutil.TestResource(t, env.db, user.ID)

	var session model.PaymentSession
	decode(t, env.do(t, "POST", fmt.Sprintf("/api/v1/resources/%d/unlock/initiate", resource.ID), user.ID, nil), &session)

	var processing model.PaymentSession
	decode(t, env.do(t, "POST", "/api/v1/payments/sessions/"+session.SessionID+"/process", user.ID, nil), &processing)
	assert.Equal(t, model.SessionProcessing, processing.Status)
}

func TestPaymentHandler_SessionOwnership(t *testing.T) {
	env := setupTestEnv(t)
	owner := testutil.TestUser(t, env.db)
	other := testutil.TestUser(t, env.db)
	resource := testutil.TestResource(t, env.db, owner.ID)

	var session model.PaymentSession
	decode(t, env.do(t, "POST", fmt.Sprintf("/api/v1/resources/%d/unlock/initiate", resource.ID), owner.ID, nil), &session)

	for _, path := range []string{
		"/api/v1/payments/sessions/" + session.SessionID,
	} {
		resp := env.do(t, "GET", path, other.ID, nil)
		assert.Equal(t, response.CodeResourceNotFound, resp.Code)
	}
	for _, action := range []string{"process", "verify"} {
		resp := env.do(t, "POST", "/api/v1/payments/sessions/"+session.SessionID+"/"+action, other.ID, nil)
		assert.Equal(t, response.CodeResourceNotFound, resp.Code, action)
	}

	resp := env.do(t, "GET", "/api/v1/payments/sessions/missing", owner.ID, nil)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestPaymentHandler_CollegeRestriction(t *testing.T) {
	env := setupTestEnv(t)
	uploader := testutil.TestUser(t, env.db, testutil.WithCollege(1))
	outsider := testutil.TestUser(t, env.db, testutil.WithCollege(2))
	moderator := testutil.TestUser(t, env.db, testutil.WithRole(model.RoleModerator))
	resource := testutil.TestResource(t, env.db, uploader.ID, testutil.WithResourceCollege(1))

	path := fmt.Sprintf("/api/v1/resources/%d/unlock/initiate", resource.ID)

	resp := env.do(t, "POST", path, outsider.ID, nil)
	assert.Equal(t, response.CodePermissionDenied, resp.Code)

	var session model.PaymentSession
	decode(t, env.do(t, "POST", path, moderator.ID, nil), &session)
	assert.Equal(t, moderator.ID, session.UserID)

	resp = env.do(t, "POST", "/api/v1/resources/99999/unlock/initiate", uploader.ID, nil)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)

	resp = env.do(t, "POST", "/api/v1/resources/abc/unlock/initiate", uploader.ID, nil)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestPaymentHandler_List(t *testing.T) {
	env := setupTestEnv(t)
	user := testutil.TestUser(t, env.db)
	resource := testutil.TestResource(t, env.db, user.ID)

	for i := 0; i < 3; i++ {
		resp := env.do(t, "POST", fmt.Sprintf("/api/v1/resources/%d/unlock/initiate", resource.ID), user.ID, nil)
		require.Equal(t, response.CodeSuccess, resp.Code)
	}

	var page struct {
		Total    int64                  `json:"total"`
		Page     int                    `json:"page"`
		PageSize int                    `json:"page_size"`
		Items    []model.PaymentSession `json:"items"`
	}
	decode(t, env.do(t, "GET", "/api/v1/payments/sessions?page=1&page_size=2", user.ID, nil), &page)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.PageSize)
	assert.Len(t, page.Items, 2)
}
