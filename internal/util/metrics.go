package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_created_total",
		Help: "Total number of products listed",
	})

	ProductViewsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_views_resolved_total",
		Help: "Product views resolved for a viewer, by display status",
	}, []string{"display_status"})

	NegotiationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "negotiations_created_total",
		Help: "Total number of negotiation drafts created",
	})

	NegotiationTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiations_transitions_total",
		Help: "Negotiation status transitions, by target status",
	}, []string{"status"})

	NegotiationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiations_failed_total",
		Help: "Negotiation operations refused or failed",
	}, []string{"reason"})

	MessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Total number of chat messages stored",
	})

	ClaimLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "claim_latency_seconds",
		Help:    "Latency of product claim operations",
		Buckets: prometheus.DefBuckets,
	})

	ClaimsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claims_failed_total",
		Help: "Total number of failed product claims",
	}, []string{"reason"})

	SettlementRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_rejections_total",
		Help: "Pending requests rejected because an involved product was traded away",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
