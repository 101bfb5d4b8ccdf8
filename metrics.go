// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package multipart

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	segmentsParsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multipart",
			Subsystem: "parser",
			Name:      "segments_parsed_total",
			Help:      "Total number of multipart segments whose header block was fully parsed.",
		},
	)

	bodyBytesParsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multipart",
			Subsystem: "parser",
			Name:      "body_bytes_total",
			Help:      "Total number of segment body bytes delivered via BodyChunk events.",
		},
	)

	limitViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multipart",
			Subsystem: "parser",
			Name:      "limit_violations_total",
			Help:      "Total number of times a configured Limits field aborted a parse.",
		},
		[]string{"limit"},
	)

	parseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multipart",
			Subsystem: "parser",
			Name:      "errors_total",
			Help:      "Total number of parse failures by error kind.",
		},
		[]string{"kind"},
	)
)

// recordError increments the errors_total counter and, for
// KindLimitReached, the limit_violations_total counter keyed by the
// exceeded limit's name.
func recordError(err *Error) {
	if err == nil || err.Kind == KindNone {
		return
	}
	parseErrors.WithLabelValues(err.Kind.String()).Inc()
	if err.Kind == KindLimitReached && err.Limit != "" {
		limitViolations.WithLabelValues(err.Limit).Inc()
	}
}
