package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
)

func TestLogAuditEventStampsAndValidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event, err := env.audit.LogAuditEvent(ctx, domain.AuditEvent{Type: "  report.viewed "})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if event.ID == "" || !event.CreatedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected id and timestamp stamped, got %+v", event)
	}
	if event.Risk != domain.RiskLow || event.Type != "report.viewed" || event.Source != defaultAuditSource {
		t.Fatalf("unexpected defaults %+v", event)
	}

	if _, err := env.audit.LogAuditEvent(ctx, domain.AuditEvent{}); !errors.Is(err, ErrAuditEventInvalid) {
		t.Fatalf("expected missing type rejected, got %v", err)
	}
	if _, err := env.audit.LogAuditEvent(ctx, domain.AuditEvent{Type: "x", Risk: "extreme"}); !errors.Is(err, ErrAuditEventInvalid) {
		t.Fatalf("expected unknown risk rejected, got %v", err)
	}

	env.store.fail("audit.Insert", errInjected)
	if _, err := env.audit.LogAuditEvent(ctx, domain.AuditEvent{Type: "x"}); !errors.Is(err, errInjected) {
		t.Fatalf("expected persistence failure surfaced, got %v", err)
	}
}

func TestHighRiskEventRaisesAlert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var delivered []domain.SecurityAlert
	env.audit.OnAlert(func(_ context.Context, alert domain.SecurityAlert) {
		delivered = append(delivered, alert)
	})

	userID := "user-9"
	if _, err := env.audit.LogAuditEvent(ctx, domain.AuditEvent{Type: "admin.export", Risk: domain.RiskCritical, UserID: &userID}); err != nil {
		t.Fatalf("log: %v", err)
	}
	if _, err := env.audit.LogAuditEvent(ctx, domain.AuditEvent{Type: "profile.viewed", Risk: domain.RiskMedium}); err != nil {
		t.Fatalf("log: %v", err)
	}

	alerts := env.store.alertsOfType(domain.AlertHighRiskEvent)
	if len(alerts) != 1 {
		t.Fatalf("expected one high risk alert, got %d", len(alerts))
	}
	if alerts[0].Severity != domain.SeverityCritical || alerts[0].Details["user_id"] != userID {
		t.Fatalf("unexpected alert %+v", alerts[0])
	}
	if len(delivered) != 1 || len(env.publisher.alerts) != 1 || len(env.notifier.alerts) != 1 {
		t.Fatalf("expected callback, bus and notifier delivery")
	}
	if len(env.publisher.audit) != 2 {
		t.Fatalf("expected both events published, got %d", len(env.publisher.audit))
	}
}

func TestFailedLoginThresholdAlertsOnce(t *testing.T) {
	env := newTestEnv(t, withAuditSettings(config.AuditSettings{
		FailedLoginThreshold: 3,
		FailedLoginWindow:    15 * time.Minute,
		RecentBufferSize:     10,
	}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.audit.LogAuditEvent(ctx, domain.AuditEvent{
			Type:    domain.EventLoginFailed,
			Risk:    domain.RiskMedium,
			Payload: failedLoginPayload("Target@Example.com", "invalid_credentials"),
		})
		if err != nil {
			t.Fatalf("log failure %d: %v", i, err)
		}
		env.clock.Advance(time.Minute)
	}

	alerts := env.store.alertsOfType(domain.AlertExcessiveFailures)
	if len(alerts) != 1 {
		t.Fatalf("expected a single threshold alert, got %d", len(alerts))
	}
	if alerts[0].Details["count"] != 3 {
		t.Fatalf("expected alert at the threshold, got %v", alerts[0].Details)
	}
}

func TestLogDataAccessRatesBulkPersonalDataHigh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bulk, err := env.audit.LogDataAccess(ctx, DataAccessInput{UserID: "user-1", Resource: "users", Operation: "read", RecordCount: 150, PersonalData: true})
	if err != nil {
		t.Fatalf("log bulk: %v", err)
	}
	if bulk.Risk != domain.RiskHigh {
		t.Fatalf("expected bulk personal read rated high, got %s", bulk.Risk)
	}

	export, _ := env.audit.LogDataAccess(ctx, DataAccessInput{Resource: "reports", Operation: "export", RecordCount: 1})
	if export.Risk != domain.RiskMedium {
		t.Fatalf("expected export of non-personal data rated medium, got %s", export.Risk)
	}

	read, _ := env.audit.LogDataAccess(ctx, DataAccessInput{Resource: "reports", Operation: "read", RecordCount: 1})
	if read.Risk != domain.RiskLow {
		t.Fatalf("expected plain read rated low, got %s", read.Risk)
	}

	failure, _ := env.audit.LogSystemEvent(ctx, SystemEventInput{Component: "scheduler", Message: "job crashed", Err: errInjected})
	if failure.Risk != domain.RiskMedium || failure.Source != "scheduler" || failure.Payload["error"] != errInjected.Error() {
		t.Fatalf("unexpected system event %+v", failure)
	}
}

func TestUserAuditTrailLimits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, action := range []string{"open", "edit", "save", "close"} {
		if _, err := env.audit.LogUserInteraction(ctx, InteractionInput{UserID: "user-1", Action: action}); err != nil {
			t.Fatalf("log %s: %v", action, err)
		}
	}
	env.audit.LogUserInteraction(ctx, InteractionInput{UserID: "user-2", Action: "open"})

	trail, err := env.audit.UserAuditTrail(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(trail) != 2 || trail[0].Payload["action"] != "close" {
		t.Fatalf("expected two newest events, got %+v", trail)
	}

	all, _ := env.audit.UserAuditTrail(ctx, "user-1", 0)
	if len(all) != 4 {
		t.Fatalf("expected default limit to include every event, got %d", len(all))
	}

	if _, err := env.audit.UserAuditTrail(ctx, " ", 10); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	recent, _ := env.audit.RecentEvents(ctx, 3)
	if len(recent) != 3 || recent[0].UserID == nil || *recent[0].UserID != "user-2" {
		t.Fatalf("expected ring buffer newest first, got %+v", recent)
	}
}

func TestAcknowledgeAndResolveAlert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alert, err := env.audit.RaiseAlert(ctx, "manual_review", domain.SeverityWarning, "check this", nil)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	acked, err := env.audit.AcknowledgeAlert(ctx, alert.ID)
	if err != nil || acked.AcknowledgedAt == nil {
		t.Fatalf("acknowledge: %+v %v", acked, err)
	}
	first := *acked.AcknowledgedAt

	env.clock.Advance(time.Hour)
	again, _ := env.audit.AcknowledgeAlert(ctx, alert.ID)
	if !again.AcknowledgedAt.Equal(first) {
		t.Fatalf("expected acknowledgement stamped once")
	}

	resolved, err := env.audit.ResolveAlert(ctx, alert.ID)
	if err != nil || resolved.ResolvedAt == nil || resolved.Open() {
		t.Fatalf("resolve: %+v %v", resolved, err)
	}

	if _, err := env.audit.AcknowledgeAlert(ctx, "missing"); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("expected unknown alert, got %v", err)
	}
}

func TestAlertNotificationsAreThrottled(t *testing.T) {
	env := newTestEnv(t, withAuditSettings(config.AuditSettings{
		RecentBufferSize:            10,
		AlertNotificationsPerMinute: 1,
		AlertNotificationBurst:      1,
	}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.audit.RaiseAlert(ctx, "burst", domain.SeverityInfo, "noisy", nil); err != nil {
			t.Fatalf("raise: %v", err)
		}
	}
	if len(env.store.alertsOfType("burst")) != 3 {
		t.Fatalf("expected every alert persisted")
	}
	if len(env.notifier.alerts) != 1 {
		t.Fatalf("expected notifications throttled to one, got %d", len(env.notifier.alerts))
	}
}
