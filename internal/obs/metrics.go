package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// TokenRequestTotal counts token lookups by outcome (cache_hit, granted, error).
	TokenRequestTotal *prometheus.CounterVec
	// ProviderCallTotal counts outbound provider calls by operation and result.
	ProviderCallTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by strategy and result.
	CheckoutTotal *prometheus.CounterVec
	// CallbackTotal counts inbound callback reconciliations by kind and outcome.
	CallbackTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the gateway's Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		TokenRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_request_total",
			Help:      "Count of bearer token lookups by outcome.",
		}, []string{"outcome"})
		ProviderCallTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_call_total",
			Help:      "Count of outbound provider API calls by operation and result.",
		}, []string{"operation", "result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by strategy and result.",
		}, []string{"strategy", "result"})
		CallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_total",
			Help:      "Count of reconciled provider callbacks by kind and outcome.",
		}, []string{"kind", "outcome"})

		mustRegisterCollector(reg, TokenRequestTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TokenRequestTotal = v
			}
		})
		mustRegisterCollector(reg, ProviderCallTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ProviderCallTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, CallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CallbackTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
