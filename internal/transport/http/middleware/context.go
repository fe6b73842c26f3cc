package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/logger"
	"github.com/arklim/identity-server/internal/transport/codec"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// CorrelationIDHeader carries an opaque client correlation id.
	CorrelationIDHeader = "X-Correlation-ID"

	requestContextKey = "request_context"
	principalKey      = "principal"
)

// RequestContext holds request-scoped information
type RequestContext struct {
	RequestID     uuid.UUID
	CorrelationID string
	IP            string
	UserAgent     string
}

// RequestID assigns each request an id, reusing a well-formed X-Request-ID header,
// and stores it in the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID, err := uuid.Parse(c.GetHeader(RequestIDHeader))
		if err != nil {
			reqID = uuid.New()
		}

		c.Writer.Header().Set(RequestIDHeader, reqID.String())
		ctx := logger.ContextWithRequestID(c.Request.Context(), reqID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Set(requestContextKey, &RequestContext{
			RequestID:     reqID,
			CorrelationID: c.GetHeader(CorrelationIDHeader),
			IP:            c.ClientIP(),
			UserAgent:     c.Request.UserAgent(),
		})

		c.Next()
	}
}

// GetRequestContext retrieves the full request context
func GetRequestContext(c *gin.Context) *RequestContext {
	if v, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := v.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// GetPrincipal returns the principal asserted by the request's access token, or nil.
func GetPrincipal(c *gin.Context) *command.PrincipalRef {
	if v, exists := c.Get(principalKey); exists {
		if ref, ok := v.(*command.PrincipalRef); ok {
			return ref
		}
	}
	return nil
}

// AbortWithFailure stops the chain with a JSON error reply in the command reply shape.
func AbortWithFailure(c *gin.Context, code domain.ErrorCode, message string) {
	reqCtx := GetRequestContext(c)
	resp := command.Reject(code, message)
	resp.RequestID = reqCtx.RequestID
	resp.CorrelationID = reqCtx.CorrelationID
	status := resp.Error.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, codec.NewReply(resp))
}

func requestIDFromContext(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}
