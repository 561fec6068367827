// internal/oauth/metrics.go
package oauth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	codesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomsle_authorization_codes_issued_total",
		Help: "Total number of authorization codes issued",
	})
	tokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomsle_token_sets_issued_total",
		Help: "Total number of token sets issued on exchange",
	})
	authorizeDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomsle_authorize_denials_total",
		Help: "Total number of denied authorization requests",
	})
	exchangeDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomsle_exchange_denials_total",
		Help: "Total number of denied token exchanges",
	})
)
