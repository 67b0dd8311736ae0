package alerting

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver("UTC", zerolog.Nop())
	require.NoError(t, err)
	return r
}

func ruleWith(priority models.Priority, channels ...models.Channel) models.AlertRule {
	return models.AlertRule{
		ID:        "rule-1",
		EventType: "sla_breach",
		Actions:   models.RuleActions{Channels: channels, Priority: priority},
	}
}

func quiet(start, end string, tz string) *models.QuietHours {
	s, _ := models.ParseTimeOfDay(start)
	e, _ := models.ParseTimeOfDay(end)
	return &models.QuietHours{Enabled: true, Start: s, End: e, Timezone: tz}
}

var at2300UTC = time.Date(2026, 1, 15, 23, 0, 0, 0, time.UTC)

func TestResolveWithoutPreferenceKeepsRuleChannels(t *testing.T) {
	res := newTestResolver(t).Resolve(ruleWith(models.PriorityHigh, models.ChannelEmail, models.ChannelInApp),
		models.DefaultPreference("u-1"), at2300UTC)
	assert.False(t, res.Dropped)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelInApp}, res.Channels)
}

func TestResolveIntersectsWithEventPreference(t *testing.T) {
	pref := models.DefaultPreference("u-1")
	pref.EventPreferences["sla_breach"] = models.EventPreference{Enabled: true, Channels: []models.Channel{models.ChannelInApp, models.ChannelSlack}}

	res := newTestResolver(t).Resolve(ruleWith(models.PriorityHigh, models.ChannelEmail, models.ChannelSlack, models.ChannelInApp), pref, at2300UTC)
	assert.Equal(t, []models.Channel{models.ChannelSlack, models.ChannelInApp}, res.Channels)
}

func TestResolveDisabledEntryDropsRecipient(t *testing.T) {
	pref := models.DefaultPreference("u-1")
	pref.EventPreferences["sla_breach"] = models.EventPreference{Enabled: false, Channels: []models.Channel{models.ChannelEmail}}

	res := newTestResolver(t).Resolve(ruleWith(models.PriorityCritical, models.ChannelEmail), pref, at2300UTC)
	assert.True(t, res.Dropped)
	assert.Empty(t, res.Channels)
}

func TestResolveQuietHoursSuppressesInterruptive(t *testing.T) {
	pref := models.DefaultPreference("u-1")
	pref.QuietHours = quiet("22:00", "06:00", "")

	res := newTestResolver(t).Resolve(ruleWith(models.PriorityMedium, models.ChannelSMS, models.ChannelInApp), pref, at2300UTC)
	assert.Equal(t, []models.Channel{models.ChannelInApp}, res.Channels)
	assert.Equal(t, []models.Channel{models.ChannelSMS}, res.Suppressed)
}

func TestResolveQuietHoursNeverDropsInAppOrEmail(t *testing.T) {
	pref := models.DefaultPreference("u-1")
	pref.QuietHours = quiet("22:00", "06:00", "")

	res := newTestResolver(t).Resolve(ruleWith(models.PriorityLow,
		models.ChannelEmail, models.ChannelPush, models.ChannelSlack, models.ChannelInApp), pref, at2300UTC)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelSlack, models.ChannelInApp}, res.Channels)
	assert.Equal(t, []models.Channel{models.ChannelPush}, res.Suppressed)
}

func TestResolveCriticalBypassesQuietHours(t *testing.T) {
	pref := models.DefaultPreference("u-1")
	pref.QuietHours = quiet("22:00", "06:00", "")

	res := newTestResolver(t).Resolve(ruleWith(models.PriorityCritical, models.ChannelSMS, models.ChannelPush, models.ChannelInApp), pref, at2300UTC)
	assert.Equal(t, []models.Channel{models.ChannelSMS, models.ChannelPush, models.ChannelInApp}, res.Channels)
	assert.Empty(t, res.Suppressed)
}

func TestResolveQuietHoursUsesRecipientTimezone(t *testing.T) {
	pref := models.DefaultPreference("u-1")
	// 23:00 UTC is 08:00 in Tokyo, outside the window.
	pref.QuietHours = quiet("22:00", "06:00", "Asia/Tokyo")
	res := newTestResolver(t).Resolve(ruleWith(models.PriorityMedium, models.ChannelSMS, models.ChannelInApp), pref, at2300UTC)
	assert.Equal(t, []models.Channel{models.ChannelSMS, models.ChannelInApp}, res.Channels)

	// 13:00 UTC is 22:00 in Tokyo, inside the window.
	res = newTestResolver(t).Resolve(ruleWith(models.PriorityMedium, models.ChannelSMS, models.ChannelInApp), pref,
		time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC))
	assert.Equal(t, []models.Channel{models.ChannelInApp}, res.Channels)
}

func TestResolveDisabledQuietHours(t *testing.T) {
	pref := models.DefaultPreference("u-1")
	pref.QuietHours = quiet("22:00", "06:00", "")
	pref.QuietHours.Enabled = false

	res := newTestResolver(t).Resolve(ruleWith(models.PriorityLow, models.ChannelSMS), pref, at2300UTC)
	assert.Equal(t, []models.Channel{models.ChannelSMS}, res.Channels)
}

func TestNewResolverRejectsUnknownTimezone(t *testing.T) {
	_, err := NewResolver("Nowhere/Special", zerolog.Nop())
	assert.Error(t, err)
}
