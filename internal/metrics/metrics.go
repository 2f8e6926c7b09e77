package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "canvas"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// Rooms 활성 보드 룸 수
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms_active",
		Help:      "Number of boards with at least one connected member",
	})

	// Connections 보드에 참여 중인 연결 수
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "room_connections",
		Help:      "Number of connections joined to a board",
	})

	// Events 처리한 WebSocket 이벤트 (event, result)
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_events_total",
		Help:      "WebSocket events handled by the room hub",
	}, []string{"event", "result"})

	// EventLatency 이벤트 처리 시간
	EventLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ws_event_duration_seconds",
		Help:      "Time spent handling a WebSocket event",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"event"})

	// LockTransitions 락 상태 변화 (granted, denied, renewed, released, expired, invalidated)
	LockTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lock_transitions_total",
		Help:      "Advisory lock state transitions",
	}, []string{"transition"})

	// DroppedFrames 송신 큐 포화로 버린 프레임
	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_dropped_frames_total",
		Help:      "Outbound frames dropped because a connection's send queue was full",
	})
)

// Middleware HTTP 요청 메트릭 기록 (라우트 패턴 기준)
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := c.Route().Path
		labels := prometheus.Labels{
			"method": c.Method(),
			"path":   path,
			"status": strconv.Itoa(status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler Prometheus 기본 레지스트리 노출
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
