// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttestationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rustchain_attestations_total",
		Help: "Attestation submissions by outcome.",
	}, []string{"outcome"})

	ChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rustchain_challenges_issued_total",
		Help: "Challenge nonces issued.",
	})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rustchain_transfers_total",
		Help: "Transfer attempts by outcome.",
	}, []string{"outcome"})

	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rustchain_settlements_total",
		Help: "Epochs settled.",
	})

	CurrentEpoch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rustchain_current_epoch",
		Help: "Epoch the clock currently reports.",
	})

	EnrolledMiners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rustchain_enrolled_miners",
		Help: "Miners enrolled in the current epoch.",
	})

	ClockAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rustchain_clock_anomalies_total",
		Help: "Wall-clock regressions clamped by the schedule clock.",
	})
)
