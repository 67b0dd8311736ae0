package ingest

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
)

// Simulator emits plausible domain events on a fixed interval. It stands in
// for real producers in local setups.
type Simulator struct {
	interval time.Duration
	rnd      *rand.Rand
	now      func() time.Time
	logger   zerolog.Logger
}

func NewSimulator(interval time.Duration, seed int64, logger zerolog.Logger) *Simulator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		interval: interval,
		rnd:      rand.New(rand.NewSource(seed)),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "simulator").Logger(),
	}
}

func (s *Simulator) Name() string { return "simulator" }

func (s *Simulator) Run(ctx context.Context, handle Handler) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", s.interval).Msg("event simulator started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("event simulator stopped")
			return nil
		case <-ticker.C:
			evt := s.Next()
			if err := handle(ctx, evt); err != nil {
				s.logger.Warn().Err(err).Str("event_type", evt.Type).Msg("simulated event failed")
			}
		}
	}
}

var simulatedSeverities = []string{"low", "medium", "high", "critical"}

// Next builds one random event.
func (s *Simulator) Next() models.Event {
	evt := models.Event{OccurredAt: s.now()}
	switch s.rnd.Intn(5) {
	case 0:
		evt.Type = "payment_failed"
		evt.Fields = map[string]interface{}{
			"amount":      s.rnd.Intn(1000) + 1,
			"currency":    "USD",
			"customer_id": uuid.NewString(),
		}
	case 1:
		evt.Type = "trial_expiring"
		evt.Fields = map[string]interface{}{
			"days_left": s.rnd.Intn(7) + 1,
			"plan":      []string{"starter", "team", "business"}[s.rnd.Intn(3)],
		}
	case 2:
		evt.Type = "sla_breach"
		evt.Fields = map[string]interface{}{
			"ticket_id":       uuid.NewString(),
			"minutes_overdue": s.rnd.Intn(240),
			"priority":        []string{"p1", "p2", "p3"}[s.rnd.Intn(3)],
		}
	case 3:
		evt.Type = "security_incident"
		evt.Fields = map[string]interface{}{
			"severity": simulatedSeverities[s.rnd.Intn(len(simulatedSeverities))],
			"source":   "waf",
			"tags":     []string{"login", "bruteforce"},
		}
	default:
		evt.Type = "cpu_high"
		evt.Fields = map[string]interface{}{
			"host":    []string{"api-1", "api-2", "worker-1"}[s.rnd.Intn(3)],
			"percent": 50 + s.rnd.Float64()*50,
		}
	}
	return evt
}
