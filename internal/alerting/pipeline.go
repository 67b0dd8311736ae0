package alerting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/directory"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/notification"
	"github.com/stanstork/beacon/internal/repository"
)

// Outcome is what one recipient got from one rule firing.
type Outcome struct {
	RuleID         string                   `json:"rule_id"`
	UserID         string                   `json:"user_id"`
	NotificationID string                   `json:"notification_id"`
	Channels       []models.Channel         `json:"channels"`
	Suppressed     []models.Channel         `json:"suppressed,omitempty"`
	Attempts       []models.DeliveryAttempt `json:"attempts"`
}

type Result struct {
	EventType     string    `json:"event_type"`
	MatchedRules  []string  `json:"matched_rules"`
	Notifications []Outcome `json:"notifications"`
	// Dropped counts recipients who opted out of the event type.
	Dropped int `json:"dropped"`
	// Unresolved counts recipient references the directory could not resolve.
	Unresolved int `json:"unresolved"`
}

type Pipeline struct {
	evaluator   *Evaluator
	directory   directory.Directory
	preferences repository.PreferenceRepository
	resolver    *Resolver
	store       notification.Service
	dispatcher  *notification.Dispatcher
	logger      zerolog.Logger
	now         func() time.Time
}

type PipelineConfig struct {
	Evaluator   *Evaluator
	Directory   directory.Directory
	Preferences repository.PreferenceRepository
	Resolver    *Resolver
	Store       notification.Service
	Dispatcher  *notification.Dispatcher
	Now         func() time.Time
}

func NewPipeline(cfg PipelineConfig, logger zerolog.Logger) *Pipeline {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		evaluator:   cfg.Evaluator,
		directory:   cfg.Directory,
		preferences: cfg.Preferences,
		resolver:    cfg.Resolver,
		store:       cfg.Store,
		dispatcher:  cfg.Dispatcher,
		logger:      logger.With().Str("component", "pipeline").Logger(),
		now:         now,
	}
}

type plannedNotification struct {
	rule       models.AlertRule
	recipient  models.Recipient
	resolution Resolution
}

// Process runs one event through matching, preference resolution, storage and
// delivery. Every read happens before the first write, so a store failure during
// planning leaves nothing behind and the event can be retried as a whole.
func (p *Pipeline) Process(ctx context.Context, evt models.Event) (Result, error) {
	evt.Type = strings.TrimSpace(evt.Type)
	if evt.Type == "" {
		return Result{}, fmt.Errorf("event type is required")
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = p.now()
	}
	result := Result{EventType: evt.Type, MatchedRules: []string{}, Notifications: []Outcome{}}

	rules, err := p.evaluator.Match(ctx, evt)
	if err != nil {
		return result, errors.Wrap(err, "match rules")
	}

	var plan []plannedNotification
	prefs := map[string]models.NotificationPreference{}
	for _, rule := range rules {
		result.MatchedRules = append(result.MatchedRules, rule.ID)

		recipients, unresolved := p.recipients(ctx, rule)
		result.Unresolved += unresolved
		for _, rec := range recipients {
			pref, ok := prefs[rec.UserID]
			if !ok {
				pref, err = p.preference(ctx, rec.UserID)
				if err != nil {
					return result, err
				}
				prefs[rec.UserID] = pref
			}
			res := p.resolver.Resolve(rule, pref, evt.OccurredAt)
			if res.Dropped {
				result.Dropped++
				p.logger.Debug().Str("rule_id", rule.ID).Str("user_id", rec.UserID).Msg("recipient opted out of event type")
				continue
			}
			plan = append(plan, plannedNotification{rule: rule, recipient: rec, resolution: res})
		}
	}

	// Once writing starts, storage and delivery run to completion even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	outcomes := make([]*Outcome, len(plan))
	for i, item := range plan {
		notif, err := p.store.Create(ctx, buildNotification(item.rule, item.recipient, item.resolution, evt))
		if err != nil {
			p.logger.Error().Err(err).Str("rule_id", item.rule.ID).Str("user_id", item.recipient.UserID).Msg("failed to store notification")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		outcomes[i] = &Outcome{
			RuleID:         item.rule.ID,
			UserID:         item.recipient.UserID,
			NotificationID: notif.ID,
			Channels:       item.resolution.Channels,
			Suppressed:     item.resolution.Suppressed,
		}

		wg.Add(1)
		go func(out *Outcome, notif models.Notification, rec models.Recipient) {
			defer wg.Done()
			out.Attempts = p.dispatcher.Dispatch(ctx, notif, rec, out.Channels)
		}(outcomes[i], notif, item.recipient)
	}
	wg.Wait()

	for _, out := range outcomes {
		if out != nil {
			result.Notifications = append(result.Notifications, *out)
		}
	}

	p.logger.Info().
		Str("event_type", evt.Type).
		Int("matched_rules", len(result.MatchedRules)).
		Int("notifications", len(result.Notifications)).
		Int("dropped", result.Dropped).
		Int("unresolved", result.Unresolved).
		Msg("event processed")
	return result, firstErr
}

// recipients resolves every reference of the rule, once per user.
func (p *Pipeline) recipients(ctx context.Context, rule models.AlertRule) ([]models.Recipient, int) {
	seen := map[string]bool{}
	var (
		out        []models.Recipient
		unresolved int
	)
	for _, ref := range rule.Actions.Recipients {
		recs, err := p.directory.Resolve(ctx, ref)
		if err != nil {
			unresolved++
			p.logger.Warn().Err(err).Str("rule_id", rule.ID).Str("recipient", ref.String()).Msg("skipping unresolvable recipient")
			continue
		}
		if len(recs) == 0 {
			p.logger.Warn().Str("rule_id", rule.ID).Str("recipient", ref.String()).Msg("recipient reference matched nobody")
		}
		for _, rec := range recs {
			if rec.UserID == "" || seen[rec.UserID] {
				continue
			}
			seen[rec.UserID] = true
			out = append(out, rec)
		}
	}
	return out, unresolved
}

func (p *Pipeline) preference(ctx context.Context, userID string) (models.NotificationPreference, error) {
	pref, err := p.preferences.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.DefaultPreference(userID), nil
	}
	if err != nil {
		return models.NotificationPreference{}, errors.Wrapf(err, "load preferences for %s", userID)
	}
	return pref, nil
}

func buildNotification(rule models.AlertRule, rec models.Recipient, res Resolution, evt models.Event) models.Notification {
	message := renderTemplate(rule.Description, evt)
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("%s event matched rule %q", evt.Type, rule.Name)
	}

	channels := make([]string, 0, len(res.Channels))
	for _, c := range res.Channels {
		channels = append(channels, string(c))
	}
	metadata := map[string]interface{}{
		"rule_id":     rule.ID,
		"event_type":  evt.Type,
		"occurred_at": evt.OccurredAt.UTC().Format(time.RFC3339),
		"channels":    channels,
	}
	if len(evt.Fields) > 0 {
		metadata["fields"] = evt.Fields
	}
	if len(res.Suppressed) > 0 {
		suppressed := make([]string, 0, len(res.Suppressed))
		for _, c := range res.Suppressed {
			suppressed = append(suppressed, string(c))
		}
		metadata["suppressed"] = suppressed
	}

	return models.Notification{
		UserID:   rec.UserID,
		Title:    rule.Name,
		Message:  message,
		Category: models.CategoryFor(evt.Type),
		Priority: rule.Actions.Priority,
		Metadata: metadata,
	}
}
