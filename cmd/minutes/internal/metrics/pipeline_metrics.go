package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UtterancesTotal 分段器输出的语音片段计数
	// Labels: outcome (sealed/filtered), reason (silence/max_length/stream_end)
	UtterancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_utterances_total",
			Help: "Total number of utterances produced by the segmenter",
		},
		[]string{"outcome", "reason"},
	)

	// SegmentsTotal 写入转写稿的片段计数
	// Labels: status (ok/failed/degraded/abandoned)
	SegmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_transcript_segments_total",
			Help: "Total number of transcript segments appended by status",
		},
		[]string{"status"},
	)

	// TranscriptionErrorsTotal 转写错误计数
	// Labels: error_code (ENGINE_UNAVAILABLE/DECODE_FAILURE/...)
	TranscriptionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_transcription_errors_total",
			Help: "Total number of transcription errors by error code",
		},
		[]string{"error_code"},
	)

	// RepeatedSegmentsTotal 疑似重复（幻觉）片段计数
	RepeatedSegmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minutes_repeated_segments_total",
			Help: "Total number of segments flagged as near-duplicates of the previous one",
		},
	)

	// QueueDepth 等待转写的片段数量
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minutes_transcription_queue_depth",
			Help: "Number of sealed utterances waiting for transcription",
		},
	)

	// QueueOverflowTotal 队列超过软上限的次数（片段从不丢弃）
	QueueOverflowTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minutes_transcription_queue_overflow_total",
			Help: "Number of enqueues that found the queue above its soft cap",
		},
	)

	// ProcessingDuration 处理耗时直方图（秒）
	// Labels: stage (transcribe/correct/extract)
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s
	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minutes_processing_duration_seconds",
			Help:    "Processing duration in seconds by pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// MissingSectionsTotal 模型输出缺失的纪要章节计数
	// Labels: section (overview/discussion_points/...)
	MissingSectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_summary_missing_sections_total",
			Help: "Total number of summary sections missing from backend output",
		},
		[]string{"section"},
	)

	// EngineDegraded 当前是否使用降级引擎（0=否，1=是）
	EngineDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minutes_engine_degraded",
			Help: "Whether utterances are routed to the degraded engine (0=no, 1=yes)",
		},
	)
)

// RecordUtterance 记录分段器输出
func RecordUtterance(filtered bool, reason string) {
	outcome := "sealed"
	if filtered {
		outcome = "filtered"
	}
	UtterancesTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordSegment 记录追加到转写稿的片段
func RecordSegment(status string, repeated bool) {
	SegmentsTotal.WithLabelValues(status).Inc()
	if repeated {
		RepeatedSegmentsTotal.Inc()
	}
}

// RecordTranscriptionError 记录转写错误
func RecordTranscriptionError(errorCode string) {
	TranscriptionErrorsTotal.WithLabelValues(errorCode).Inc()
}

// SetQueueDepth 设置队列深度，超过软上限时计数
func SetQueueDepth(depth, softCap int) {
	QueueDepth.Set(float64(depth))
	if softCap > 0 && depth > softCap {
		QueueOverflowTotal.Inc()
	}
}

// RecordDuration 记录阶段耗时（秒）
func RecordDuration(stage string, durationSeconds float64) {
	ProcessingDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordMissingSection 记录缺失的纪要章节
func RecordMissingSection(section string) {
	MissingSectionsTotal.WithLabelValues(section).Inc()
}

// SetEngineDegraded 设置降级状态
func SetEngineDegraded(degraded bool) {
	if degraded {
		EngineDegraded.Set(1)
	} else {
		EngineDegraded.Set(0)
	}
}
