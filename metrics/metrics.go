/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entitywork"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	contextsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "started_total",
			Help:      "Contexts started, by transaction scope (root, joined, dependent)",
		},
		[]string{"scope"},
	)

	contextCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "commits_total",
			Help:      "Context commits by transaction scope and result",
		},
		[]string{"scope", "result"},
	)

	contextCommitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "commit_duration_seconds",
			Help:      "Duration of context commits including provider flushes",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"scope"},
	)

	contextRollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "rollbacks_total",
			Help:      "Transactions abandoned by explicit rollback or by closing an uncommitted context",
		},
		[]string{"scope"},
	)

	asyncCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "async_commands_total",
			Help:      "Commands run on dependent clones, by result",
		},
		[]string{"result"},
	)

	factoryStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider_factory",
			Name:      "starts_total",
			Help:      "Provider factory start attempts by factory and result",
		},
		[]string{"factory", "result"},
	)

	factoryStartDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider_factory",
			Name:      "start_duration_seconds",
			Help:      "Duration of provider factory startup",
		},
		[]string{"factory"},
	)
)

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

func RecordContextStarted(scope string) {
	contextsStarted.WithLabelValues(scope).Inc()
}

// RecordCommit counts a commit attempt. A failed commit also counts as a rollback.
func RecordCommit(scope string, err error, duration time.Duration) {
	contextCommits.WithLabelValues(scope, result(err)).Inc()
	contextCommitDuration.WithLabelValues(scope).Observe(duration.Seconds())
	if err != nil {
		contextRollbacks.WithLabelValues(scope).Inc()
	}
}

func RecordRollback(scope string) {
	contextRollbacks.WithLabelValues(scope).Inc()
}

func RecordAsyncCommand(err error) {
	asyncCommands.WithLabelValues(result(err)).Inc()
}

func RecordFactoryStart(factory string, err error, duration time.Duration) {
	factoryStarts.WithLabelValues(factory, result(err)).Inc()
	factoryStartDuration.WithLabelValues(factory).Observe(duration.Seconds())
}
