package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/transport/codec"
	"github.com/arklim/identity-server/internal/transport/http/middleware"
)

// writeReply renders resp in f. Successful commands answer 200; failures use the
// status carried by the error body.
func writeReply(c *gin.Context, f codec.Format, resp command.Response) {
	status := http.StatusOK
	outcome := "OK"
	if resp.Error != nil {
		status = resp.Error.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		outcome = string(resp.Error.Code)
	}
	c.Set(middleware.OutcomeKey, outcome)
	if resp.RequestID != uuid.Nil {
		c.Header(middleware.RequestIDHeader, resp.RequestID.String())
	}

	data, err := codec.EncodeReply(f, resp)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, f.ContentType(), data)
}

// writeFailure renders a failure raised before the pipeline ran.
func writeFailure(c *gin.Context, f codec.Format, reqCtx *middleware.RequestContext, err error) {
	reply := codec.RejectReply(reqCtx.RequestID, reqCtx.CorrelationID, err)
	c.Set(middleware.OutcomeKey, string(reply.Error.Code))

	data, encErr := f.Marshal(reply)
	if encErr != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(reply.Error.Status, f.ContentType(), data)
}
