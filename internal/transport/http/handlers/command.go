package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/command/handlers"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/transport/codec"
	"github.com/arklim/identity-server/internal/transport/http/middleware"
)

// MaxFrameBytes bounds the size of a request frame.
const MaxFrameBytes = 1 << 20

// Executor runs a decoded request through the command pipeline.
type Executor interface {
	Execute(ctx context.Context, req command.Request) command.Response
}

// CommandHandler accepts command envelopes over HTTP.
type CommandHandler struct {
	executor Executor
}

// NewCommandHandler constructs a command handler backed by executor.
func NewCommandHandler(executor Executor) *CommandHandler {
	return &CommandHandler{executor: executor}
}

// Execute decodes one envelope from the body and replies in the same format. JSON is
// the default; application/cbor bodies are answered in CBOR.
func (h *CommandHandler) Execute(c *gin.Context) {
	f := requestFormat(c.GetHeader("Content-Type"))
	reqCtx := middleware.GetRequestContext(c)

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxFrameBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(c, f, reqCtx, domain.Failf(domain.ErrProtocol, "frame exceeds %d bytes", MaxFrameBytes))
			return
		}
		writeFailure(c, f, reqCtx, domain.Fail(domain.ErrIO, "failed to read request body").WithCause(err))
		return
	}

	req, err := codec.Decode(f, data)
	if err != nil {
		writeFailure(c, f, reqCtx, err)
		return
	}
	h.run(c, f, reqCtx, req)
}

// EmailPermit confirms a pending email operation from the link in a challenge mail.
func (h *CommandHandler) EmailPermit(c *gin.Context) {
	h.run(c, codec.JSON, middleware.GetRequestContext(c), command.Request{
		Command: handlers.EmailPermit{
			Token:     c.Query("token"),
			Operation: c.Query("operation"),
		},
	})
}

// EmailDeny cancels a pending email operation from the link in a challenge mail.
func (h *CommandHandler) EmailDeny(c *gin.Context) {
	h.run(c, codec.JSON, middleware.GetRequestContext(c), command.Request{
		Command: handlers.EmailDeny{Token: c.Query("token")},
	})
}

func (h *CommandHandler) run(c *gin.Context, f codec.Format, reqCtx *middleware.RequestContext, req command.Request) {
	if req.RequestID == uuid.Nil {
		req.RequestID = reqCtx.RequestID
	}
	if req.CorrelationID == "" {
		req.CorrelationID = reqCtx.CorrelationID
	}
	req.Principal = middleware.GetPrincipal(c)
	req.RemoteAddress = reqCtx.IP
	req.UserAgent = reqCtx.UserAgent

	writeReply(c, f, h.executor.Execute(c.Request.Context(), req))
}

func requestFormat(contentType string) codec.Format {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && mediaType == codec.CBOR.ContentType() {
		return codec.CBOR
	}
	return codec.JSON
}
