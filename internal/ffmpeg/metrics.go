// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsforge_encoder_start_total",
		Help: "Total number of encoder process starts",
	}, []string{"result"})

	exitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsforge_encoder_exit_total",
		Help: "Total number of encoder process exits",
	}, []string{"reason"})
)
