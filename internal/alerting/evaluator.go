package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/repository"
)

// Evaluator decides which stored rules fire for an event.
type Evaluator struct {
	rules  repository.RuleRepository
	logger zerolog.Logger
}

func NewEvaluator(rules repository.RuleRepository, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		rules:  rules,
		logger: logger.With().Str("component", "rule_evaluator").Logger(),
	}
}

// Match returns every enabled rule for the event type whose conditions all hold,
// in the order the rules were created.
func (e *Evaluator) Match(ctx context.Context, evt models.Event) ([]models.AlertRule, error) {
	candidates, err := e.rules.ListEnabledByEventType(ctx, evt.Type)
	if err != nil {
		return nil, err
	}
	matched := make([]models.AlertRule, 0, len(candidates))
	for _, rule := range candidates {
		if rule.Enabled && rule.EventType == evt.Type && e.Matches(rule, evt) {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

// Matches evaluates the rule's conditions against evt. A malformed condition never holds.
func (e *Evaluator) Matches(rule models.AlertRule, evt models.Event) bool {
	for i, cond := range rule.Conditions {
		if reason := cond.Malformed(); reason != "" {
			e.logger.Warn().
				Str("rule_id", rule.ID).
				Int("condition_index", i).
				Str("reason", reason).
				Msg("malformed rule condition never matches")
			return false
		}
		if !evaluate(cond, evt) {
			return false
		}
	}
	return true
}

func evaluate(cond models.Condition, evt models.Event) bool {
	field, ok := evt.Field(cond.Field)
	if !ok {
		return false
	}
	switch cond.Operator {
	case models.OperatorEquals:
		return valuesEqual(field, cond.Value)
	case models.OperatorGreaterThan, models.OperatorLessThan:
		c, ok := compareNumbers(field, cond.Value)
		if !ok {
			return false
		}
		if cond.Operator == models.OperatorGreaterThan {
			return c > 0
		}
		return c < 0
	case models.OperatorContains:
		return contains(field, cond.Value)
	}
	return false
}

// valuesEqual compares by kind: numbers numerically, strings and bools directly.
// Values of different kinds are never equal.
func valuesEqual(a, b interface{}) bool {
	if _, ok := toNumber(a); ok {
		c, ok := compareNumbers(a, b)
		return ok && c == 0
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func contains(field, value interface{}) bool {
	if s, ok := field.(string); ok {
		sub, ok := value.(string)
		return ok && strings.Contains(s, sub)
	}
	rv := reflect.ValueOf(field)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if valuesEqual(rv.Index(i).Interface(), value) {
			return true
		}
	}
	return false
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// compareNumbers orders two numeric values. Integers compare exactly at any
// size; anything fractional compares as float64.
func compareNumbers(a, b interface{}) (int, bool) {
	if ia, ok := toInteger(a); ok {
		if ib, ok := toInteger(b); ok {
			return ia.Cmp(ib), true
		}
	}
	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	if !okA || !okB {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	}
	return 0, true
}

func toInteger(v interface{}) (*big.Int, bool) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case float32:
		return integralFloat(float64(n))
	case float64:
		return integralFloat(n)
	case json.Number:
		if i, ok := new(big.Int).SetString(string(n), 10); ok {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return integralFloat(f)
	}
	return nil, false
}

func integralFloat(f float64) (*big.Int, bool) {
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return nil, false
	}
	i, _ := big.NewFloat(f).Int(nil)
	return i, true
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// renderTemplate replaces {{field}} with the event's field value. Unknown fields stay as written.
func renderTemplate(text string, evt models.Event) string {
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		v, ok := evt.Field(name)
		if !ok {
			return match
		}
		return fmt.Sprint(v)
	})
}
