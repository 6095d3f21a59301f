// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Package middleware provides the HTTP middleware of the debug API.

  - RequestID: tags each request with an X-Request-ID and a request-scoped logger
  - PrometheusMetrics: counts requests and observes latency per chi route pattern

Both are chi-style func(http.Handler) http.Handler and are applied globally:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Metrics are labelled with the matched route pattern rather than the raw
path, so /api/v1/services/{name}/stop stays one series however many
services exist.
*/
package middleware
