package models

import (
	"fmt"
	"strings"
	"time"
)

type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
)

func (o Operator) IsValid() bool {
	switch o {
	case OperatorEquals, OperatorGreaterThan, OperatorLessThan, OperatorContains:
		return true
	}
	return false
}

// Condition is one field test within a rule. All conditions of a rule are ANDed.
type Condition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Malformed reports why the condition can never be evaluated, or "" if it is well formed.
func (c Condition) Malformed() string {
	if strings.TrimSpace(c.Field) == "" {
		return "missing field"
	}
	if !c.Operator.IsValid() {
		return fmt.Sprintf("unknown operator %q", c.Operator)
	}
	return ""
}

type RecipientKind string

const (
	RecipientUser    RecipientKind = "user"
	RecipientRole    RecipientKind = "role"
	RecipientAddress RecipientKind = "address"
)

// RecipientRef points at one user, every user holding a role, or a literal address.
type RecipientRef struct {
	Kind  RecipientKind `json:"kind"`
	Value string        `json:"value"`
}

func (r RecipientRef) String() string {
	return string(r.Kind) + ":" + r.Value
}

type RuleActions struct {
	Channels   []Channel      `json:"channels"`
	Recipients []RecipientRef `json:"recipients"`
	Priority   Priority       `json:"priority"`
}

type AlertRule struct {
	ID          string      `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Description string      `json:"description" db:"description"`
	Enabled     bool        `json:"enabled" db:"enabled"`
	EventType   string      `json:"event_type" db:"event_type"`
	Conditions  []Condition `json:"conditions" db:"conditions"`
	Actions     RuleActions `json:"actions"`
	CreatedBy   string      `json:"created_by" db:"created_by"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// Validate checks a rule before it is written.
func (r AlertRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.EventType) == "" {
		return fmt.Errorf("event_type is required")
	}
	if err := validateConditions(r.Conditions); err != nil {
		return err
	}
	return validateActions(r.Actions)
}

func validateConditions(conditions []Condition) error {
	for i, c := range conditions {
		if reason := c.Malformed(); reason != "" {
			return fmt.Errorf("condition %d: %s", i, reason)
		}
	}
	return nil
}

func validateActions(a RuleActions) error {
	if !a.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", a.Priority)
	}
	if len(a.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for _, c := range a.Channels {
		if !c.IsValid() {
			return fmt.Errorf("invalid channel %q", c)
		}
	}
	if len(a.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	for _, ref := range a.Recipients {
		switch ref.Kind {
		case RecipientUser, RecipientRole, RecipientAddress:
		default:
			return fmt.Errorf("invalid recipient kind %q", ref.Kind)
		}
		if strings.TrimSpace(ref.Value) == "" {
			return fmt.Errorf("recipient %s has no value", ref.Kind)
		}
	}
	return nil
}

// RulePatch carries the fields of a single update call. Nil fields are left untouched.
type RulePatch struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Enabled     *bool        `json:"enabled,omitempty"`
	EventType   *string      `json:"event_type,omitempty"`
	Conditions  *[]Condition `json:"conditions,omitempty"`
	Actions     *RuleActions `json:"actions,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p RulePatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Enabled == nil &&
		p.EventType == nil && p.Conditions == nil && p.Actions == nil
}

// Apply returns a copy of rule with the patch fields merged in.
func (p RulePatch) Apply(rule AlertRule) AlertRule {
	if p.Name != nil {
		rule.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		rule.Description = *p.Description
	}
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}
	if p.EventType != nil {
		rule.EventType = strings.TrimSpace(*p.EventType)
	}
	if p.Conditions != nil {
		rule.Conditions = append([]Condition(nil), (*p.Conditions)...)
	}
	if p.Actions != nil {
		rule.Actions = *p.Actions
		rule.Actions.Channels = NormalizeChannels(p.Actions.Channels)
	}
	return rule
}

// Validate checks the fields the patch sets.
func (p RulePatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if p.EventType != nil && strings.TrimSpace(*p.EventType) == "" {
		return fmt.Errorf("event_type must not be empty")
	}
	if p.Conditions != nil {
		if err := validateConditions(*p.Conditions); err != nil {
			return err
		}
	}
	if p.Actions != nil {
		return validateActions(*p.Actions)
	}
	return nil
}
