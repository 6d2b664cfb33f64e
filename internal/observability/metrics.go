package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "chat_gateway"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "REST requests served, by route and status.",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	grpcHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "handled_total",
	}, []string{"grpc_service", "grpc_method", "grpc_code"})

	socketConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "socket",
		Name:      "connections",
		Help:      "Open Socket.IO connections.",
	}, []string{"kind"})

	socketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "socket",
		Name:      "events_total",
		Help:      "Client events and connection lifecycle events.",
	}, []string{"kind", "event"})

	socketKicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "socket",
		Name:      "slow_consumer_kicks_total",
		Help:      "Connections closed because their send queue was full.",
	})

	eventLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "event_duration_seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"event"})

	fanoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "fanout_failures_total",
		Help:      "Per-receiver notification failures, by stage.",
	}, []string{"stage"})

	onlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "online_users",
	})

	amqpPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "amqp",
		Name:      "publish_errors_total",
	}, []string{"routing_key"})
)

// HTTPMetricsMiddleware records count and latency per matched route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// GRPCServerMetricsUnaryInterceptor counts handled unary calls by status code.
func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		service, method := splitFullMethod(info.FullMethod)
		grpcHandled.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok || service == "" || method == "" {
		return "unknown", "unknown"
	}
	return service, method
}

func IncWSActive(kind string) { socketConnections.WithLabelValues(kind).Inc() }

func DecWSActive(kind string) { socketConnections.WithLabelValues(kind).Dec() }

func IncWSEvent(kind, event string) { socketEvents.WithLabelValues(kind, event).Inc() }

func IncWSKick() { socketKicks.Inc() }

// ObserveEvent records how long a client event handler ran.
func ObserveEvent(event string, started time.Time) {
	eventLatency.WithLabelValues(event).Observe(time.Since(started).Seconds())
}

func IncFanoutFailure(stage string) { fanoutFailures.WithLabelValues(stage).Inc() }

func IncPresenceOnline() { onlineUsers.Inc() }

func DecPresenceOnline() { onlineUsers.Dec() }

func IncAMQPPublishError(routingKey string) { amqpPublishErrors.WithLabelValues(routingKey).Inc() }
