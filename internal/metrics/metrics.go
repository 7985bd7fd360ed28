package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestTotal 文档入库次数，按结果区分
	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfchat",
		Name:      "ingest_total",
		Help:      "Total number of document ingestions by result.",
	}, []string{"result"})

	// IngestDuration 入库耗时
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pdfchat",
		Name:      "ingest_duration_seconds",
		Help:      "Document ingestion duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// IngestChunks 单次入库产生的分块数
	IngestChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pdfchat",
		Name:      "ingest_chunks",
		Help:      "Number of chunks produced per ingestion.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// QueryTotal 问答请求次数，按结果区分
	QueryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfchat",
		Name:      "query_total",
		Help:      "Total number of ask requests by result.",
	}, []string{"result"})

	// QueryDuration 问答耗时
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pdfchat",
		Name:      "query_duration_seconds",
		Help:      "Ask request duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// RetrievedChunks 单次检索命中的分块数
	RetrievedChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pdfchat",
		Name:      "retrieved_chunks",
		Help:      "Number of chunks retrieved per ask request.",
		Buckets:   prometheus.LinearBuckets(0, 1, 17),
	})
)
