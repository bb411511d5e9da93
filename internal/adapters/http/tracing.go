package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/classroom/internal/pkg/logging"
)

var httpTracer = otel.Tracer("github.com/samirrijal/classroom/internal/adapters/http")

// TracingMiddleware opens a server span per request, continuing any W3C
// trace context sent by the caller, and tags the request logger with the
// trace ID.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		carrier := propagation.HeaderCarrier(nethttp.Header(c.GetReqHeaders()))
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)

		ctx, span := httpTracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Method()),
				attribute.String("url.path", c.Path()),
			),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("trace_id", sc.TraceID().String()))
		}
		c.SetUserContext(ctx)

		err := c.Next()
		span.SetName(c.Method() + " " + c.Route().Path)

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
			span.RecordError(err)
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, nethttp.StatusText(status))
		}
		return err
	}
}
