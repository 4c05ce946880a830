package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/snipara/rlm/models"
)

// SSEHandlers streams one tool execution as server-sent events. The stream
// always carries exactly three events: start, then result or error, then
// done.
type SSEHandlers struct {
	runner *Runner
}

func NewSSEHandlers(runner *Runner) *SSEHandlers {
	return &SSEHandlers{runner: runner}
}

// Handle serves GET and POST /v1/:project/mcp/sse. GET callers pass the
// tool name and JSON-encoded params as query strings; POST callers send the
// same {tool, params} body as the plain endpoint.
func (h *SSEHandlers) Handle(c *gin.Context) {
	principal, err := h.runner.admit(c)
	if err != nil {
		abortAdmission(c, err)
		return
	}

	var req executeToolRequest
	if c.Request.Method == http.MethodGet {
		req.Tool = c.Query("tool")
		if v := c.Query("params"); v != "" {
			req.Params = json.RawMessage(v)
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if req.Tool == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tool is required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("start", gin.H{"tool": req.Tool})
	c.Writer.Flush()

	hc := h.runner.handlerContext(c.Request.Context(), c, principal)
	res, err := h.runner.run(c.Request.Context(), principal, hc, models.ToolName(req.Tool), req.Params)
	if err != nil {
		c.SSEvent("error", gin.H{"error": sanitizeError(err)})
	} else {
		c.SSEvent("result", gin.H{
			"result": res.Data,
			"usage": gin.H{
				"input_tokens":  res.InputTokens,
				"output_tokens": res.OutputTokens,
			},
		})
	}

	c.SSEvent("done", gin.H{})
	c.Writer.Flush()
}
