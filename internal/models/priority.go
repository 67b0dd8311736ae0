package models

import "strings"

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

var priorityRank = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Rank returns the ordinal of p, or 0 for an unknown priority.
func (p Priority) Rank() int {
	return priorityRank[p]
}

func (p Priority) IsValid() bool {
	_, ok := priorityRank[p]
	return ok
}

func ParsePriority(raw string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	return p, p.IsValid()
}
