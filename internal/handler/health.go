package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type check struct {
	name string
	ping func(ctx context.Context) error
}

type HealthHandler struct {
	checks []check
}

// NewHealthHandler checks Postgres and, when configured, Redis and RabbitMQ.
func NewHealthHandler(dbPool *pgxpool.Pool, redisClient *redis.Client, amqpConn *amqp.Connection) *HealthHandler {
	h := &HealthHandler{}
	h.add("postgres", dbPool.Ping)
	if redisClient != nil {
		h.add("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	if amqpConn != nil {
		h.add("rabbitmq", func(context.Context) error {
			if amqpConn.IsClosed() {
				return amqp.ErrClosed
			}
			return nil
		})
	}
	return h
}

func (h *HealthHandler) add(name string, ping func(ctx context.Context) error) {
	h.checks = append(h.checks, check{name: name, ping: ping})
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := gin.H{"status": "ok"}
	status := http.StatusOK
	for _, chk := range h.checks {
		if err := chk.ping(ctx); err != nil {
			resp[chk.name] = "unavailable"
			resp["status"] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		resp[chk.name] = "connected"
	}
	c.JSON(status, resp)
}
