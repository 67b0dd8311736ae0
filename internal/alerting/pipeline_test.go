package alerting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/directory"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/notification"
	"github.com/stanstork/beacon/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDeliverer struct {
	mu         sync.Mutex
	deliveries []notification.Delivery
	fail       map[models.Channel]bool
}

func (d *recordingDeliverer) Deliver(_ context.Context, delivery notification.Delivery) models.DeliveryAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery)
	if d.fail[delivery.Channel] {
		return models.DeliveryAttempt{Channel: delivery.Channel, Status: models.DeliveryFailed, AttemptCount: 3, LastError: "gateway down"}
	}
	return models.DeliveryAttempt{Channel: delivery.Channel, Status: models.DeliverySent, AttemptCount: 1}
}

type failingPreferences struct{}

func (failingPreferences) Get(context.Context, string) (models.NotificationPreference, error) {
	return models.NotificationPreference{}, repository.Unavailable("get preferences", fmt.Errorf("connection refused"))
}

func (failingPreferences) Upsert(context.Context, models.NotificationPreference) (models.NotificationPreference, error) {
	return models.NotificationPreference{}, repository.Unavailable("upsert preferences", fmt.Errorf("connection refused"))
}

type harness struct {
	rules       *repository.MemoryRuleRepository
	preferences repository.PreferenceRepository
	store       notification.Service
	deliverer   *recordingDeliverer
	pipeline    *Pipeline
}

func newHarness(t *testing.T, prefs repository.PreferenceRepository) *harness {
	t.Helper()
	if prefs == nil {
		prefs = repository.NewMemoryPreferenceRepository(nil)
	}
	h := &harness{
		rules:       repository.NewMemoryRuleRepository(nil),
		preferences: prefs,
		store:       notification.NewService(repository.NewMemoryNotificationRepository(nil), zerolog.Nop()),
		deliverer:   &recordingDeliverer{fail: map[models.Channel]bool{}},
	}
	dir := directory.New(repository.NewMemoryRecipientRepository(
		models.Recipient{UserID: "ana", Email: "ana@example.com", Phone: "+15550101", Roles: []string{"finance"}},
		models.Recipient{UserID: "ben", Email: "ben@example.com", Phone: "+15550102", Roles: []string{"finance", "ops"}},
	))
	resolver, err := NewResolver("UTC", zerolog.Nop())
	require.NoError(t, err)

	h.pipeline = NewPipeline(PipelineConfig{
		Evaluator:   NewEvaluator(h.rules, zerolog.Nop()),
		Directory:   dir,
		Preferences: h.preferences,
		Resolver:    resolver,
		Store:       h.store,
		Dispatcher:  notification.NewDispatcher(h.deliverer, zerolog.Nop()),
	}, zerolog.Nop())
	return h
}

func (h *harness) addRule(t *testing.T, rule models.AlertRule) models.AlertRule {
	t.Helper()
	created, err := h.rules.Create(context.Background(), rule)
	require.NoError(t, err)
	return created
}

func largePaymentRule(recipients ...models.RecipientRef) models.AlertRule {
	return models.AlertRule{
		Name:        "Large payment failed",
		Description: "Payment of {{amount}} failed",
		Enabled:     true,
		EventType:   "payment_failed",
		Conditions:  []models.Condition{{Field: "amount", Operator: models.OperatorGreaterThan, Value: 100}},
		Actions: models.RuleActions{
			Channels:   []models.Channel{models.ChannelEmail, models.ChannelInApp},
			Recipients: recipients,
			Priority:   models.PriorityHigh,
		},
	}
}

func (h *harness) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	got, err := h.store.Query(context.Background(), userID, models.NotificationFilter{Limit: models.MaxNotificationLimit})
	require.NoError(t, err)
	return got
}

func TestPipeline_ScenarioA_MatchingPayment(t *testing.T) {
	h := newHarness(t, nil)
	rule := h.addRule(t, largePaymentRule(models.RecipientRef{Kind: models.RecipientRole, Value: "finance"}))

	result, err := h.pipeline.Process(context.Background(), models.Event{
		Type:   "payment_failed",
		Fields: map[string]interface{}{"amount": 250},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{rule.ID}, result.MatchedRules)
	require.Len(t, result.Notifications, 2)

	for _, user := range []string{"ana", "ben"} {
		got := h.notificationsFor(t, user)
		require.Len(t, got, 1, user)
		assert.Equal(t, models.PriorityHigh, got[0].Priority)
		assert.Equal(t, "Large payment failed", got[0].Title)
		assert.Equal(t, "Payment of 250 failed", got[0].Message)
		assert.Equal(t, models.CategoryBilling, got[0].Category)
		assert.Equal(t, rule.ID, got[0].Metadata["rule_id"])
	}
	for _, out := range result.Notifications {
		assert.Subset(t, []models.Channel{models.ChannelEmail, models.ChannelInApp}, out.Channels)
		require.Len(t, out.Attempts, 2)
	}
	assert.Len(t, h.deliverer.deliveries, 2)
}

func TestPipeline_ScenarioB_BelowThreshold(t *testing.T) {
	h := newHarness(t, nil)
	h.addRule(t, largePaymentRule(models.RecipientRef{Kind: models.RecipientRole, Value: "finance"}))

	result, err := h.pipeline.Process(context.Background(), models.Event{
		Type:   "payment_failed",
		Fields: map[string]interface{}{"amount": 50},
	})
	require.NoError(t, err)
	assert.Empty(t, result.MatchedRules)
	assert.Empty(t, h.notificationsFor(t, "ana"))
	assert.Empty(t, h.deliverer.deliveries)
}

func TestPipeline_ScenarioC_QuietHoursKeepsInApp(t *testing.T) {
	h := newHarness(t, nil)
	rule := largePaymentRule(models.RecipientRef{Kind: models.RecipientUser, Value: "ana"})
	rule.Actions.Channels = []models.Channel{models.ChannelSMS, models.ChannelInApp}
	rule.Actions.Priority = models.PriorityMedium
	h.addRule(t, rule)

	pref := models.DefaultPreference("ana")
	pref.QuietHours = quiet("22:00", "06:00", "")
	_, err := h.preferences.Upsert(context.Background(), pref)
	require.NoError(t, err)

	result, err := h.pipeline.Process(context.Background(), models.Event{
		Type:       "payment_failed",
		Fields:     map[string]interface{}{"amount": 250},
		OccurredAt: time.Date(2026, 2, 3, 23, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, []models.Channel{models.ChannelInApp}, result.Notifications[0].Channels)
	assert.Equal(t, []models.Channel{models.ChannelSMS}, result.Notifications[0].Suppressed)
	assert.Len(t, h.notificationsFor(t, "ana"), 1)
	assert.Empty(t, h.deliverer.deliveries)
}

func TestPipeline_ScenarioD_CriticalBypassesQuietHours(t *testing.T) {
	h := newHarness(t, nil)
	rule := largePaymentRule(models.RecipientRef{Kind: models.RecipientUser, Value: "ana"})
	rule.Actions.Channels = []models.Channel{models.ChannelSMS, models.ChannelInApp}
	rule.Actions.Priority = models.PriorityCritical
	h.addRule(t, rule)

	pref := models.DefaultPreference("ana")
	pref.QuietHours = quiet("22:00", "06:00", "")
	_, err := h.preferences.Upsert(context.Background(), pref)
	require.NoError(t, err)

	result, err := h.pipeline.Process(context.Background(), models.Event{
		Type:       "payment_failed",
		Fields:     map[string]interface{}{"amount": 250},
		OccurredAt: time.Date(2026, 2, 3, 23, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, []models.Channel{models.ChannelSMS, models.ChannelInApp}, result.Notifications[0].Channels)
	require.Len(t, h.deliverer.deliveries, 1)
	assert.Equal(t, models.ChannelSMS, h.deliverer.deliveries[0].Channel)
	assert.Equal(t, "+15550101", h.deliverer.deliveries[0].Message().To)
}

func TestPipeline_DisabledRuleNeverFires(t *testing.T) {
	h := newHarness(t, nil)
	rule := largePaymentRule(models.RecipientRef{Kind: models.RecipientUser, Value: "ana"})
	rule.Enabled = false
	h.addRule(t, rule)

	result, err := h.pipeline.Process(context.Background(), models.Event{Type: "payment_failed", Fields: map[string]interface{}{"amount": 250}})
	require.NoError(t, err)
	assert.Empty(t, result.Notifications)
	assert.Empty(t, h.notificationsFor(t, "ana"))
}

func TestPipeline_AllMatchingRulesFireInOrder(t *testing.T) {
	h := newHarness(t, nil)
	first := h.addRule(t, largePaymentRule(models.RecipientRef{Kind: models.RecipientUser, Value: "ana"}))
	catchAll := largePaymentRule(models.RecipientRef{Kind: models.RecipientUser, Value: "ana"})
	catchAll.Name = "Any payment failed"
	catchAll.Conditions = nil
	second := h.addRule(t, catchAll)

	result, err := h.pipeline.Process(context.Background(), models.Event{Type: "payment_failed", Fields: map[string]interface{}{"amount": 250}})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, result.MatchedRules)
	assert.Len(t, h.notificationsFor(t, "ana"), 2)
}

func TestPipeline_RecipientsAreDeduplicatedPerRule(t *testing.T) {
	h := newHarness(t, nil)
	h.addRule(t, largePaymentRule(
		models.RecipientRef{Kind: models.RecipientRole, Value: "finance"},
		models.RecipientRef{Kind: models.RecipientUser, Value: "ana"},
	))

	result, err := h.pipeline.Process(context.Background(), models.Event{Type: "payment_failed", Fields: map[string]interface{}{"amount": 250}})
	require.NoError(t, err)
	assert.Len(t, result.Notifications, 2)
	assert.Len(t, h.notificationsFor(t, "ana"), 1)
}

func TestPipeline_UnresolvableRecipientIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.addRule(t, largePaymentRule(
		models.RecipientRef{Kind: models.RecipientUser, Value: "ghost"},
		models.RecipientRef{Kind: models.RecipientUser, Value: "ben"},
	))

	result, err := h.pipeline.Process(context.Background(), models.Event{Type: "payment_failed", Fields: map[string]interface{}{"amount": 250}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unresolved)
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, "ben", result.Notifications[0].UserID)
}

func TestPipeline_OptOutDropsRecipient(t *testing.T) {
	h := newHarness(t, nil)
	h.addRule(t, largePaymentRule(models.RecipientRef{Kind: models.RecipientRole, Value: "finance"}))

	pref := models.DefaultPreference("ben")
	pref.EventPreferences["payment_failed"] = models.EventPreference{Enabled: false}
	_, err := h.preferences.Upsert(context.Background(), pref)
	require.NoError(t, err)

	result, err := h.pipeline.Process(context.Background(), models.Event{Type: "payment_failed", Fields: map[string]interface{}{"amount": 250}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dropped)
	assert.Len(t, h.notificationsFor(t, "ana"), 1)
	assert.Empty(t, h.notificationsFor(t, "ben"))
}

func TestPipeline_FailedChannelKeepsInAppRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.deliverer.fail[models.ChannelEmail] = true
	h.addRule(t, largePaymentRule(models.RecipientRef{Kind: models.RecipientUser, Value: "ana"}))

	result, err := h.pipeline.Process(context.Background(), models.Event{Type: "payment_failed", Fields: map[string]interface{}{"amount": 250}})
	require.NoError(t, err)
	require.Len(t, result.Notifications, 1)
	attempts := result.Notifications[0].Attempts
	require.Len(t, attempts, 2)
	assert.Equal(t, models.DeliveryFailed, attempts[0].Status)
	assert.Equal(t, models.DeliverySent, attempts[1].Status)
	assert.Len(t, h.notificationsFor(t, "ana"), 1)
}

func TestPipeline_PreferenceStoreFailureIsRetryableAndWritesNothing(t *testing.T) {
	h := newHarness(t, failingPreferences{})
	h.addRule(t, largePaymentRule(models.RecipientRef{Kind: models.RecipientUser, Value: "ana"}))

	_, err := h.pipeline.Process(context.Background(), models.Event{Type: "payment_failed", Fields: map[string]interface{}{"amount": 250}})
	require.Error(t, err)
	assert.True(t, repository.IsRetryable(err))
	assert.Empty(t, h.notificationsFor(t, "ana"))
}

func TestPipeline_RejectsEventWithoutType(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.pipeline.Process(context.Background(), models.Event{})
	assert.Error(t, err)
}

// gatedDeliverer holds each delivery until released and records the context
// state it saw at that point.
type gatedDeliverer struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (d *gatedDeliverer) Deliver(ctx context.Context, delivery notification.Delivery) models.DeliveryAttempt {
	close(d.started)
	<-d.release
	d.ctxErr = ctx.Err()
	if d.ctxErr != nil {
		return models.DeliveryAttempt{Channel: delivery.Channel, Status: models.DeliveryFailed, AttemptCount: 1, LastError: d.ctxErr.Error()}
	}
	return models.DeliveryAttempt{Channel: delivery.Channel, Status: models.DeliverySent, AttemptCount: 1}
}

func TestPipeline_DeliveryOutlivesCallerCancellation(t *testing.T) {
	h := newHarness(t, nil)
	h.addRule(t, largePaymentRule(models.RecipientRef{Kind: models.RecipientUser, Value: "ana"}))
	gate := &gatedDeliverer{started: make(chan struct{}), release: make(chan struct{})}
	h.pipeline.dispatcher = notification.NewDispatcher(gate, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	type processed struct {
		result Result
		err    error
	}
	done := make(chan processed, 1)
	go func() {
		result, err := h.pipeline.Process(ctx, models.Event{Type: "payment_failed", Fields: map[string]interface{}{"amount": 500}})
		done <- processed{result, err}
	}()

	select {
	case <-gate.started:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never started")
	}
	cancel()
	close(gate.release)

	var got processed
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not finish")
	}
	require.NoError(t, got.err)
	assert.NoError(t, gate.ctxErr)
	require.Len(t, got.result.Notifications, 1)
	for _, attempt := range got.result.Notifications[0].Attempts {
		assert.Equal(t, models.DeliverySent, attempt.Status, attempt.Channel)
	}
}
