// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cdss

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// evaluationsTotal counts verdicts by status
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdss_evaluations_total",
		Help: "Total action evaluations by verdict status",
	}, []string{"status"})

	// guardrailShortCircuits counts hard-block short circuits
	guardrailShortCircuits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdss_guardrail_short_circuits_total",
		Help: "Total evaluations stopped by a guardrail hard block",
	})
)
