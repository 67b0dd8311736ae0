package models

const (
	CategoryBilling    = "billing"
	CategoryOperations = "operations"
	CategorySecurity   = "security"
)

var eventCategories = map[string]string{
	"payment_failed":    CategoryBilling,
	"payment_succeeded": CategoryBilling,
	"trial_expiring":    CategoryBilling,
	"trial_expired":     CategoryBilling,
	"sla_breach":        CategoryOperations,
	"sla_warning":       CategoryOperations,
	"security_incident": CategorySecurity,
	"login_anomaly":     CategorySecurity,
}

// CategoryFor maps an event type to the category notifications are filed under.
// Unknown event types are their own category.
func CategoryFor(eventType string) string {
	if c, ok := eventCategories[eventType]; ok {
		return c
	}
	return eventType
}
