package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

func (e *testEnv) addResponse(userID, id string, submittedAt time.Time) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	owner := userID
	e.store.state.responses[id] = domain.AssessmentResponse{
		ID:          id,
		UserID:      &owner,
		Assessment:  "readiness",
		Answers:     map[string]any{"q1": "b"},
		SubmittedAt: submittedAt,
	}
}

func (e *testEnv) submit(t *testing.T, userID string, requestType domain.PrivacyRequestType, details map[string]any) string {
	t.Helper()
	id, err := e.privacy.HandlePrivacyRequest(context.Background(), PrivacyRequestInput{UserID: userID, Type: requestType, Details: details})
	if err != nil {
		t.Fatalf("submit %s: %v", requestType, err)
	}
	return id
}

// drain waits for background processing to finish.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.privacy.Shutdown(ctx); err != nil {
		t.Fatalf("drain privacy service: %v", err)
	}
}

func TestAccessRequestProducesExport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerUser(t, "access@example.com")
	env.login(t, "access@example.com")
	env.addResponse(user.ID, "resp-1", env.clock.Now())

	id := env.submit(t, user.ID, domain.PrivacyRequestAccess, nil)
	env.drain(t)

	request, err := env.privacy.RequestStatus(ctx, id, user.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if request.Status != domain.PrivacyStatusCompleted || request.CompletedAt == nil {
		t.Fatalf("expected completed request, got %+v", request)
	}
	export, ok := request.ResponseData["export"].(domain.DataExport)
	if !ok {
		t.Fatalf("expected data export in response, got %T", request.ResponseData["export"])
	}
	if export.Profile["email"] != "access@example.com" || export.Profile["phone"] != "+254700123456" {
		t.Fatalf("unexpected profile export %v", export.Profile)
	}
	if export.Sessions.Active != 1 || len(export.Consents) != 1 || len(export.Responses) != 1 {
		t.Fatalf("unexpected export contents %+v", export)
	}
	if len(env.publisher.resolved) != 1 {
		t.Fatalf("expected resolution event published")
	}
}

func TestErasureBlockedByLegalHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerUser(t, "held@example.com")

	if _, err := env.privacy.PlaceLegalHold(ctx, user.ID, "pending litigation", nil); err != nil {
		t.Fatalf("place hold: %v", err)
	}
	id := env.submit(t, user.ID, domain.PrivacyRequestErasure, nil)

	request, err := env.privacy.ProcessDataErasureRequest(ctx, id)
	if !errors.Is(err, ErrLegalHoldActive) {
		t.Fatalf("expected legal hold error, got %v", err)
	}
	if request.Status != domain.PrivacyStatusRejected || request.Reason == nil || *request.Reason != rejectLegalHold {
		t.Fatalf("expected rejected request with legal hold reason, got %+v", request)
	}
	if _, err := env.store.users().GetByID(ctx, user.ID); err != nil {
		t.Fatalf("expected user kept under legal hold: %v", err)
	}
}

func TestExpiredLegalHoldDoesNotBlockErasure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerUser(t, "expired-hold@example.com")

	until := env.clock.Now().Add(time.Hour)
	if _, err := env.privacy.PlaceLegalHold(ctx, user.ID, "audit", &until); err != nil {
		t.Fatalf("place hold: %v", err)
	}
	env.clock.Advance(2 * time.Hour)

	id := env.submit(t, user.ID, domain.PrivacyRequestErasure, nil)
	if _, err := env.privacy.ProcessDataErasureRequest(ctx, id); err != nil {
		t.Fatalf("erasure after hold expired: %v", err)
	}
}

func TestErasureRemovesEveryReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerUser(t, "erase@example.com")
	login := env.login(t, "erase@example.com")
	env.addResponse(user.ID, "resp-1", env.clock.Now())

	id := env.submit(t, user.ID, domain.PrivacyRequestErasure, nil)
	request, err := env.privacy.ProcessDataErasureRequest(ctx, id)
	if err != nil {
		t.Fatalf("erasure: %v", err)
	}
	if request.Status != domain.PrivacyStatusCompleted {
		t.Fatalf("expected completed erasure, got %s", request.Status)
	}

	if _, err := env.store.users().GetByID(ctx, user.ID); err == nil {
		t.Fatalf("expected user removed")
	}
	if _, err := env.sessions.ValidateSession(ctx, login.Session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session revoked, got %v", err)
	}
	responses, _ := env.store.responseRepo().ListByUser(ctx, user.ID)
	consents, _ := env.store.consentRepo().ListByUser(ctx, user.ID)
	if len(responses) != 0 || len(consents) != 0 {
		t.Fatalf("expected responses and consents removed, got %d and %d", len(responses), len(consents))
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	for _, event := range env.store.state.audit {
		if event.UserID != nil && *event.UserID == user.ID {
			t.Fatalf("audit event %s still references erased user", event.Type)
		}
	}
}

func TestErasureRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerUser(t, "partial@example.com")
	login := env.login(t, "partial@example.com")
	env.addResponse(user.ID, "resp-1", env.clock.Now())
	env.store.fail("requests.Update.completed", errInjected)

	id := env.submit(t, user.ID, domain.PrivacyRequestErasure, nil)
	request, err := env.privacy.ProcessDataErasureRequest(ctx, id)
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if request.Status != domain.PrivacyStatusRejected || *request.Reason != rejectErasureFailed {
		t.Fatalf("expected rejected request, got %+v", request)
	}

	if _, err := env.store.users().GetByID(ctx, user.ID); err != nil {
		t.Fatalf("expected user restored by rollback: %v", err)
	}
	responses, _ := env.store.responseRepo().ListByUser(ctx, user.ID)
	if len(responses) != 1 {
		t.Fatalf("expected responses restored by rollback, got %d", len(responses))
	}
	if _, err := env.sessions.ValidateSession(ctx, login.Session.ID); err != nil {
		t.Fatalf("expected session untouched by failed erasure: %v", err)
	}
}

func TestRectificationUpdatesWhitelistedFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerUser(t, "rectify@example.com")

	id := env.submit(t, user.ID, domain.PrivacyRequestRectification, map[string]any{
		"fields": map[string]any{"first_name": "Augusta", "phone": "+15550100"},
	})
	if _, err := env.privacy.ProcessRectificationRequest(ctx, id); err != nil {
		t.Fatalf("rectify: %v", err)
	}

	profile, _ := env.auth.Profile(ctx, user.ID)
	if *profile.FirstName != "Augusta" || *profile.Phone != "+15550100" {
		t.Fatalf("unexpected profile after rectification: %+v", profile)
	}
	stored, _ := env.store.users().GetByID(ctx, user.ID)
	if strings.Contains(*stored.Phone, "5550100") {
		t.Fatalf("expected rectified phone encrypted at rest")
	}

	bad := env.submit(t, user.ID, domain.PrivacyRequestRectification, map[string]any{
		"fields": map[string]any{"email": "other@example.com"},
	})
	request, err := env.privacy.ProcessRectificationRequest(ctx, bad)
	if err == nil || request.Status != domain.PrivacyStatusRejected {
		t.Fatalf("expected non-whitelisted field rejected, got %+v %v", request, err)
	}
}

func TestRestrictionAndObjectionRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerUser(t, "object@example.com")
	if _, err := env.consents.RecordConsent(ctx, ConsentInput{UserID: user.ID, Type: domain.ConsentMarketing, Given: true}); err != nil {
		t.Fatalf("marketing consent: %v", err)
	}

	env.submit(t, user.ID, domain.PrivacyRequestRestriction, nil)
	objection := env.submit(t, user.ID, domain.PrivacyRequestObjection, nil)
	env.drain(t)

	if err := env.consents.ProcessingRestricted(ctx, user.ID); !errors.Is(err, ErrProcessingRestricted) {
		t.Fatalf("expected restriction flag set, got %v", err)
	}

	request, _ := env.privacy.GetRequest(ctx, objection)
	if request.Status != domain.PrivacyStatusCompleted {
		t.Fatalf("expected objection completed, got %s", request.Status)
	}
	withdrawn, _ := request.ResponseData["withdrawn"].([]string)
	if len(withdrawn) != 1 || withdrawn[0] != string(domain.ConsentMarketing) {
		t.Fatalf("expected marketing consent withdrawn, got %v", request.ResponseData)
	}
}

func TestPrivacyRequestAccessControlAndLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.registerUser(t, "owner@example.com")
	other := env.registerUser(t, "other@example.com")

	if _, err := env.privacy.HandlePrivacyRequest(ctx, PrivacyRequestInput{UserID: owner.ID, Type: "forget-me"}); !errors.Is(err, ErrInvalidPrivacyRequest) {
		t.Fatalf("expected invalid request type, got %v", err)
	}

	id := env.submit(t, owner.ID, domain.PrivacyRequestErasure, nil)
	if _, err := env.privacy.RequestStatus(ctx, id, other.ID); !errors.Is(err, ErrPrivacyRequestNotFound) {
		t.Fatalf("expected foreign request hidden, got %v", err)
	}

	env.drain(t)
	if _, err := env.privacy.ProcessDataErasureRequest(ctx, id); err != nil {
		t.Fatalf("erasure: %v", err)
	}
	if _, err := env.privacy.ProcessDataErasureRequest(ctx, id); !errors.Is(err, ErrPrivacyRequestClosed) {
		t.Fatalf("expected closed request, got %v", err)
	}

	queued := env.submit(t, other.ID, domain.PrivacyRequestAccess, nil)
	request, _ := env.privacy.GetRequest(ctx, queued)
	if request.Status != domain.PrivacyStatusPending {
		t.Fatalf("expected request left pending after shutdown, got %s", request.Status)
	}
}
