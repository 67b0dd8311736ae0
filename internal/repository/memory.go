package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stanstork/beacon/internal/models"
)

// Clock returns the current time. Memory repositories take one so tests can pin it.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// MemoryRuleRepository keeps rules in insertion order behind a copy-on-write snapshot.
// Readers never wait on writers; a reader may see the state from just before a write.
type MemoryRuleRepository struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]models.AlertRule]
	now      Clock
}

func NewMemoryRuleRepository(now Clock) *MemoryRuleRepository {
	if now == nil {
		now = utcNow
	}
	r := &MemoryRuleRepository{now: now}
	empty := []models.AlertRule{}
	r.snapshot.Store(&empty)
	return r
}

func (r *MemoryRuleRepository) load() []models.AlertRule {
	return *r.snapshot.Load()
}

func (r *MemoryRuleRepository) Create(_ context.Context, rule models.AlertRule) (models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now()
	rule.ID = uuid.NewString()
	rule.Name = strings.TrimSpace(rule.Name)
	rule.EventType = strings.TrimSpace(rule.EventType)
	rule.CreatedAt = ts
	rule.UpdatedAt = ts
	rule = cloneRule(rule)

	current := r.load()
	next := make([]models.AlertRule, len(current), len(current)+1)
	copy(next, current)
	next = append(next, rule)
	r.snapshot.Store(&next)
	return cloneRule(rule), nil
}

func (r *MemoryRuleRepository) Get(_ context.Context, ruleID string) (models.AlertRule, error) {
	for _, rule := range r.load() {
		if rule.ID == ruleID {
			return cloneRule(rule), nil
		}
	}
	return models.AlertRule{}, ErrNotFound
}

func (r *MemoryRuleRepository) List(_ context.Context) ([]models.AlertRule, error) {
	current := r.load()
	out := make([]models.AlertRule, 0, len(current))
	for _, rule := range current {
		out = append(out, cloneRule(rule))
	}
	return out, nil
}

func (r *MemoryRuleRepository) ListEnabledByEventType(_ context.Context, eventType string) ([]models.AlertRule, error) {
	out := []models.AlertRule{}
	for _, rule := range r.load() {
		if rule.Enabled && rule.EventType == eventType {
			out = append(out, cloneRule(rule))
		}
	}
	return out, nil
}

func (r *MemoryRuleRepository) Update(_ context.Context, ruleID string, patch models.RulePatch) (models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	for i, rule := range current {
		if rule.ID != ruleID {
			continue
		}
		updated := cloneRule(patch.Apply(rule))
		updated.UpdatedAt = r.now()

		next := make([]models.AlertRule, len(current))
		copy(next, current)
		next[i] = updated
		r.snapshot.Store(&next)
		return cloneRule(updated), nil
	}
	return models.AlertRule{}, ErrNotFound
}

func (r *MemoryRuleRepository) Delete(_ context.Context, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	for i, rule := range current {
		if rule.ID != ruleID {
			continue
		}
		next := make([]models.AlertRule, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		r.snapshot.Store(&next)
		return nil
	}
	return ErrNotFound
}

func cloneRule(rule models.AlertRule) models.AlertRule {
	rule.Conditions = append([]models.Condition{}, rule.Conditions...)
	rule.Actions.Channels = append([]models.Channel{}, rule.Actions.Channels...)
	rule.Actions.Recipients = append([]models.RecipientRef{}, rule.Actions.Recipients...)
	return rule
}

// MemoryPreferenceRepository stores preference documents behind a copy-on-write map.
type MemoryPreferenceRepository struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[map[string]models.NotificationPreference]
	now      Clock
}

func NewMemoryPreferenceRepository(now Clock) *MemoryPreferenceRepository {
	if now == nil {
		now = utcNow
	}
	r := &MemoryPreferenceRepository{now: now}
	empty := map[string]models.NotificationPreference{}
	r.snapshot.Store(&empty)
	return r
}

func (r *MemoryPreferenceRepository) Get(_ context.Context, userID string) (models.NotificationPreference, error) {
	pref, ok := (*r.snapshot.Load())[userID]
	if !ok {
		return models.NotificationPreference{}, ErrNotFound
	}
	return clonePreference(pref), nil
}

func (r *MemoryPreferenceRepository) Upsert(_ context.Context, pref models.NotificationPreference) (models.NotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pref = clonePreference(pref)
	pref.UpdatedAt = r.now()

	current := *r.snapshot.Load()
	next := make(map[string]models.NotificationPreference, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[pref.UserID] = pref
	r.snapshot.Store(&next)
	return clonePreference(pref), nil
}

func clonePreference(pref models.NotificationPreference) models.NotificationPreference {
	events := make(map[string]models.EventPreference, len(pref.EventPreferences))
	for k, v := range pref.EventPreferences {
		v.Channels = append([]models.Channel{}, v.Channels...)
		events[k] = v
	}
	pref.EventPreferences = events
	if pref.QuietHours != nil {
		quiet := *pref.QuietHours
		pref.QuietHours = &quiet
	}
	return pref
}

type userBucket struct {
	mu    sync.RWMutex
	items []models.Notification
}

// MemoryNotificationRepository shards notifications per user so one user's
// writes never contend with another's.
type MemoryNotificationRepository struct {
	mu      sync.RWMutex
	buckets map[string]*userBucket
	now     Clock
}

func NewMemoryNotificationRepository(now Clock) *MemoryNotificationRepository {
	if now == nil {
		now = utcNow
	}
	return &MemoryNotificationRepository{buckets: map[string]*userBucket{}, now: now}
}

func (r *MemoryNotificationRepository) bucket(userID string, create bool) *userBucket {
	r.mu.RLock()
	b, ok := r.buckets[userID]
	r.mu.RUnlock()
	if ok || !create {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.buckets[userID]; !ok {
		b = &userBucket{}
		r.buckets[userID] = b
	}
	return b
}

func (r *MemoryNotificationRepository) Create(_ context.Context, notif models.Notification) (models.Notification, error) {
	notif.ID = uuid.NewString()
	notif.UserID = strings.TrimSpace(notif.UserID)
	notif.CreatedAt = r.now()
	notif.Metadata = cloneMetadata(notif.Metadata)

	b := r.bucket(notif.UserID, true)
	b.mu.Lock()
	b.items = append(b.items, notif)
	b.mu.Unlock()

	notif.Metadata = cloneMetadata(notif.Metadata)
	return notif, nil
}

func (r *MemoryNotificationRepository) Get(_ context.Context, userID, notificationID string) (models.Notification, error) {
	b := r.bucket(userID, false)
	if b == nil {
		return models.Notification{}, ErrNotFound
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, n := range b.items {
		if n.ID == notificationID {
			n.Metadata = cloneMetadata(n.Metadata)
			return n, nil
		}
	}
	return models.Notification{}, ErrNotFound
}

func (r *MemoryNotificationRepository) MarkRead(_ context.Context, userID, notificationID string) (bool, error) {
	b := r.bucket(userID, false)
	if b == nil {
		return false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].ID == notificationID {
			if b.items[i].Read {
				return false, nil
			}
			b.items[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryNotificationRepository) MarkAllRead(_ context.Context, userID string) (int64, error) {
	b := r.bucket(userID, false)
	if b == nil {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var changed int64
	for i := range b.items {
		if !b.items[i].Read {
			b.items[i].Read = true
			changed++
		}
	}
	return changed, nil
}

func (r *MemoryNotificationRepository) Delete(_ context.Context, userID, notificationID string) (bool, error) {
	b := r.bucket(userID, false)
	if b == nil {
		return false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].ID == notificationID {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryNotificationRepository) Query(_ context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, error) {
	filter = filter.Normalize()
	out := []models.Notification{}

	b := r.bucket(userID, false)
	if b == nil {
		return out, nil
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	category := strings.TrimSpace(filter.Category)

	b.mu.RLock()
	matched := make([]models.Notification, 0, len(b.items))
	for i := len(b.items) - 1; i >= 0; i-- {
		n := b.items[i]
		if category != "" && n.Category != category {
			continue
		}
		if filter.Read != nil && n.Read != *filter.Read {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(n.Title), search) && !strings.Contains(strings.ToLower(n.Message), search) {
			continue
		}
		n.Metadata = cloneMetadata(n.Metadata)
		matched = append(matched, n)
	}
	b.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return out, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return append(out, matched[filter.Offset:end]...), nil
}

func (r *MemoryNotificationRepository) Stats(_ context.Context, userID string) (models.NotificationStats, error) {
	stats := models.NewNotificationStats()
	b := r.bucket(userID, false)
	if b == nil {
		return stats, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, n := range b.items {
		stats.Total++
		if !n.Read {
			stats.Unread++
		}
		stats.ByPriority[n.Priority]++
	}
	return stats, nil
}

func cloneMetadata(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type MemoryRecipientRepository struct {
	mu         sync.RWMutex
	recipients map[string]models.Recipient
}

func NewMemoryRecipientRepository(seed ...models.Recipient) *MemoryRecipientRepository {
	r := &MemoryRecipientRepository{recipients: map[string]models.Recipient{}}
	for _, rec := range seed {
		r.recipients[rec.UserID] = rec
	}
	return r
}

func (r *MemoryRecipientRepository) Get(_ context.Context, userID string) (models.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recipients[userID]
	if !ok {
		return models.Recipient{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRecipientRepository) ListByRole(_ context.Context, role string) ([]models.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Recipient
	for _, rec := range r.recipients {
		for _, held := range rec.Roles {
			if held == role {
				out = append(out, rec)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *MemoryRecipientRepository) Upsert(_ context.Context, recipient models.Recipient) (models.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recipient.Roles = append([]string(nil), recipient.Roles...)
	r.recipients[recipient.UserID] = recipient
	return recipient, nil
}
