package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decoder metrics
	framesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reel_frames_decoded_total",
		Help: "Total frames produced by the decoder",
	})

	decodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_decode_errors_total",
		Help: "Decoder errors by kind",
	}, []string{"kind"})

	decodeForwardFrames = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reel_decode_forward_frames",
		Help:    "Frames decoded to satisfy one frame request",
		Buckets: prometheus.ExponentialBuckets(1, 2, 11), // 1 to 1024 frames
	})

	// Frame cache metrics
	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_frame_cache_requests_total",
		Help: "Frame cache lookups by result",
	}, []string{"result"})

	cacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_frame_cache_evictions_total",
		Help: "Frames evicted from the cache, by side of the playback position",
	}, []string{"side"})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reel_frame_cache_entries",
		Help: "Frames currently held in the cache",
	})

	// Player metrics
	seeksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_seeks_total",
		Help: "Frame requests by how they were served (cached, near, far)",
	}, []string{"kind"})

	framesEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reel_frames_emitted_total",
		Help: "FrameReady events published",
	})

	playbackRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reel_playback_rate",
		Help: "Current playback rate multiplier",
	})

	playerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reel_player_state",
		Help: "Player state (0 idle, 1 stopped, 2 playing)",
	})

	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_loads_total",
		Help: "Video loads by result",
	}, []string{"result"})

	eventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reel_events_dropped_total",
		Help: "FrameReady events dropped because a subscriber fell behind",
	})

	// Registry metrics
	heartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_registry_heartbeats_total",
		Help: "Session registry heartbeats by result",
	}, []string{"result"})
)

func IncFramesDecoded() {
	framesDecodedTotal.Inc()
}

// IncDecodeError counts an error of the given decoder kind.
func IncDecodeError(kind string) {
	decodeErrorsTotal.WithLabelValues(kind).Inc()
}

func ObserveDecodeForward(frames int) {
	decodeForwardFrames.Observe(float64(frames))
}

func RecordCacheLookup(hit bool) {
	if hit {
		cacheRequestsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheRequestsTotal.WithLabelValues("miss").Inc()
}

// IncCacheEviction counts an eviction; behind reports whether the evicted
// frame was behind the playback direction.
func IncCacheEviction(behind bool) {
	if behind {
		cacheEvictionsTotal.WithLabelValues("behind").Inc()
		return
	}
	cacheEvictionsTotal.WithLabelValues("ahead").Inc()
}

func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

func IncSeek(kind string) {
	seeksTotal.WithLabelValues(kind).Inc()
}

func IncFramesEmitted() {
	framesEmittedTotal.Inc()
}

func SetPlaybackRate(rate float64) {
	playbackRate.Set(rate)
}

func SetPlayerState(state int) {
	playerState.Set(float64(state))
}

func IncLoad(ok bool) {
	if ok {
		loadsTotal.WithLabelValues("ok").Inc()
		return
	}
	loadsTotal.WithLabelValues("error").Inc()
}

func IncEventsDropped() {
	eventsDroppedTotal.Inc()
}

func IncHeartbeat(err error) {
	if err != nil {
		heartbeatsTotal.WithLabelValues("error").Inc()
		return
	}
	heartbeatsTotal.WithLabelValues("ok").Inc()
}
