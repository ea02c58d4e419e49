package events

// Topic constants for budget activity recorded by the platform.
const (
	TopicBudgetCreated    = "budget.created"
	TopicBudgetSaved      = "budget.saved"
	TopicBudgetRestored   = "budget.restored"
	TopicBudgetShared     = "budget.shared"
	TopicBudgetCustomized = "budget.customized"
	TopicBudgetDeleted    = "budget.deleted"
	TopicBudgetRepriced   = "budget.repriced"
)

// DefaultTopics returns the canonical list of activity topics.
func DefaultTopics() []string {
	return []string{
		TopicBudgetCreated,
		TopicBudgetSaved,
		TopicBudgetRestored,
		TopicBudgetShared,
		TopicBudgetCustomized,
		TopicBudgetDeleted,
		TopicBudgetRepriced,
	}
}
