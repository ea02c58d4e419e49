package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesComputedTotal counts stateless quote calculations by property type.
	QuotesComputedTotal *prometheus.CounterVec
	// BudgetSavesTotal counts budget save outcomes (created, consolidated, noop).
	BudgetSavesTotal *prometheus.CounterVec
	// VersionConflictRetries counts version-number conflicts that triggered a retry.
	VersionConflictRetries prometheus.Counter
	// ShareViewsTotal counts shared-link resolutions.
	ShareViewsTotal prometheus.Counter
	// RepriceTotal counts budget reprice outcomes after catalog edits.
	RepriceTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesComputedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_computed_total",
			Help:      "Count of quote total calculations by property type.",
		}, []string{"property_type"})
		BudgetSavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_saves_total",
			Help:      "Count of budget save outcomes.",
		}, []string{"outcome"})
		VersionConflictRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflict_retries_total",
			Help:      "Number of version append conflicts that were retried.",
		})
		ShareViewsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_views_total",
			Help:      "Number of budgets resolved through shared links.",
		})
		RepriceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_reprice_total",
			Help:      "Count of budget reprice outcomes after catalog changes.",
		}, []string{"result"})

		mustRegisterCollector(reg, QuotesComputedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuotesComputedTotal = v
			}
		})
		mustRegisterCollector(reg, BudgetSavesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BudgetSavesTotal = v
			}
		})
		mustRegisterCollector(reg, VersionConflictRetries, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				VersionConflictRetries = v
			}
		})
		mustRegisterCollector(reg, ShareViewsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ShareViewsTotal = v
			}
		})
		mustRegisterCollector(reg, RepriceTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RepriceTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
