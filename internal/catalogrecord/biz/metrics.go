package biz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
)

var (
	// operationsTotal counts lifecycle operations by outcome
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metax",
			Subsystem: "catalog_record",
			Name:      "operations_total",
			Help:      "Catalog record lifecycle operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// versionsCreatedTotal counts forks
	versionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metax",
			Subsystem: "catalog_record",
			Name:      "versions_created_total",
			Help:      "New dataset versions created, by trigger",
		},
		[]string{"trigger"},
	)

	// identifierConflictsTotal counts rejected preferred identifiers by sub-case
	identifierConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metax",
			Subsystem: "catalog_record",
			Name:      "identifier_conflicts_total",
			Help:      "Preferred identifier rejections by reason",
		},
		[]string{"reason"},
	)

	// alternateSetChangesTotal counts alternate record set transitions
	alternateSetChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metax",
			Subsystem: "alternate_record_set",
			Name:      "changes_total",
			Help:      "Alternate record set changes by action",
		},
		[]string{"action"},
	)

	eventPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "metax",
		Subsystem: "catalog_record",
		Name:      "event_publish_failures_total",
		Help:      "Lifecycle events that could not be delivered",
	})
)

func observeOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if apperrors.IsClientError(apperrors.ExtractCode(err)) {
			outcome = "rejected"
		}
	}
	operationsTotal.WithLabelValues(op, outcome).Inc()
}
