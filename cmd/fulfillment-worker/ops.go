package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/fulfillment"
	"github.com/drfirst/go-intake/internal/infrastructure/redpanda"
	"github.com/drfirst/go-intake/internal/observability/metrics"
	"github.com/drfirst/go-intake/pkg/circuitbreaker"
	"github.com/drfirst/go-intake/pkg/idempotency"
	"github.com/drfirst/go-intake/pkg/workerpool"
)

// opsHandler serves the operational endpoints of the worker.
type opsHandler struct {
	brokers  []string
	groupID  string
	svc      *fulfillment.Service
	consumer *redpanda.Consumer
	producer *redpanda.Producer
	inbox    *idempotency.Inbox
	breakers *circuitbreaker.Manager
	admin    *redpanda.Admin
	logger   *zap.Logger
}

type workerStats struct {
	Pool     workerpool.Stats              `json:"pool"`
	Consumer redpanda.ConsumerStats        `json:"consumer"`
	Producer redpanda.ProducerStats        `json:"producer"`
	Inbox    *idempotency.InboxStats       `json:"inbox,omitempty"`
	Lag      map[string]map[int32]int64    `json:"lag,omitempty"`
	Breakers []circuitbreaker.HealthStatus `json:"breakers"`
	Errors   []string                      `json:"errors,omitempty"`
}

func (h opsHandler) routes() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Get("/stats", h.stats)
	return r
}

func (h opsHandler) health(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Healthy() {
		http.Error(w, "queue backing up", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

func (h opsHandler) ready(w http.ResponseWriter, r *http.Request) {
	if err := redpanda.HealthCheck(r.Context(), h.brokers); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

func (h opsHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out := workerStats{
		Pool:     h.svc.Stats(),
		Consumer: h.consumer.Stats(),
		Producer: h.producer.Stats(),
		Breakers: h.breakers.Health(),
	}
	var err error
	if out.Inbox, err = h.inbox.GetStats(ctx); err != nil {
		out.Errors = append(out.Errors, "inbox: "+err.Error())
	}
	if out.Lag, err = h.admin.GetConsumerGroupLag(ctx, h.groupID); err != nil {
		out.Errors = append(out.Errors, "lag: "+err.Error())
	}
	if len(out.Errors) > 0 {
		h.logger.Warn("incomplete worker stats", zap.Strings("errors", out.Errors))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
