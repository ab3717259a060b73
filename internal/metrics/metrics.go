// Package metrics holds the Prometheus counters for votes, badges, logins and
// analyses.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Votes counts vote operations by outcome (new, changed, removed).
	Votes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biaslens_votes_total",
		Help: "Vote operations by outcome",
	}, []string{"operation"})

	// BadgesAwarded counts badge rows written, by badge name.
	BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biaslens_badges_awarded_total",
		Help: "Badges awarded by badge name",
	}, []string{"badge"})

	// Analyses counts analysis submissions by final status.
	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biaslens_analyses_total",
		Help: "Analysis requests by status",
	}, []string{"status"})

	// Logins counts sign-in events by streak outcome.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biaslens_logins_total",
		Help: "Sign-in events by streak outcome",
	}, []string{"outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
