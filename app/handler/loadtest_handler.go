package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"intelliscale/app/middleware"
	"intelliscale/internal/service"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/loadgen"
	"intelliscale/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	wsWriteWait         = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards are served from another origin
	},
}

// streamFrame one message of the live metric stream
type streamFrame struct {
	Type loadgen.EventType `json:"type"`
	Data interface{}       `json:"data"`
}

// loadTestView load test with its derived progress
type loadTestView struct {
	*interfaces.LoadTest
	ProgressPercent float64 `json:"progress_percent"`
}

func viewOf(test *interfaces.LoadTest) loadTestView {
	return loadTestView{LoadTest: test, ProgressPercent: test.ProgressPercent()}
}

func frameOf(ev loadgen.Event) streamFrame {
	if ev.Type == loadgen.EventComplete {
		return streamFrame{Type: ev.Type, Data: ev.Test}
	}
	return streamFrame{Type: ev.Type, Data: ev.Metric}
}

// LoadTestHandler handles load test operations
type LoadTestHandler struct {
	loadTestService *service.LoadTestService
}

// NewLoadTestHandler creates load test handler
func NewLoadTestHandler(loadTestService *service.LoadTestService) *LoadTestHandler {
	return &LoadTestHandler{
		loadTestService: loadTestService,
	}
}

// Start starts a load test against a running container
// @Summary Start load test
// @Description Validates the request, persists the test and runs it in the background
// @Tags LoadTest
// @Accept json
// @Produce json
// @Param request body interfaces.StartLoadTestRequest true "Load test"
// @Success 201 {object} interfaces.LoadTest
// @Router /api/v1/loadtest/start [post]
func (h *LoadTestHandler) Start(c *gin.Context) {
	var req interfaces.StartLoadTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	test, err := h.loadTestService.StartLoadTest(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, "start load test", err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(test))
}

// Get gets a load test, with live counters while it runs
// @Summary Get load test
// @Tags LoadTest
// @Produce json
// @Param id path int true "Load test ID"
// @Success 200 {object} interfaces.LoadTest
// @Router /api/v1/loadtest/{id} [get]
func (h *LoadTestHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	test, err := h.loadTestService.GetLoadTest(c.Request.Context(), id)
	if err != nil {
		respondError(c, "get load test", err)
		return
	}
	c.JSON(http.StatusOK, viewOf(test))
}

// History lists the caller's load tests, newest first
// @Summary Load test history
// @Tags LoadTest
// @Produce json
// @Param container_id query string false "Container ID"
// @Param limit query int false "Limit (default 20, max 200)"
// @Success 200 {array} interfaces.LoadTest
// @Router /api/v1/loadtest/history [get]
func (h *LoadTestHandler) History(c *gin.Context) {
	limit := intQuery(c, "limit", defaultHistoryLimit)
	if limit == 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	tests, err := h.loadTestService.ListHistory(c.Request.Context(), middleware.UserID(c), c.Query("container_id"), limit)
	if err != nil {
		respondError(c, "list load tests", err)
		return
	}
	c.JSON(http.StatusOK, tests)
}

// Metrics returns the recorded metric samples of a test in time order
// @Summary Load test metrics
// @Tags LoadTest
// @Produce json
// @Param id path int true "Load test ID"
// @Success 200 {array} interfaces.LoadTestMetric
// @Router /api/v1/loadtest/{id}/metrics [get]
func (h *LoadTestHandler) Metrics(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	metrics, err := h.loadTestService.GetMetrics(c.Request.Context(), id)
	if err != nil {
		respondError(c, "get load test metrics", err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// Cancel cancels a running load test
// @Summary Cancel load test
// @Tags LoadTest
// @Produce json
// @Param id path int true "Load test ID"
// @Success 200 {object} interfaces.LoadTest
// @Router /api/v1/loadtest/{id} [delete]
// @Router /api/v1/loadtest/{id}/cancel [post]
func (h *LoadTestHandler) Cancel(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	test, err := h.loadTestService.CancelLoadTest(c.Request.Context(), id)
	if err != nil {
		respondError(c, "cancel load test", err)
		return
	}
	logger.InfoCtx(c.Request.Context(), "load test %d cancelled by user %d", id, middleware.UserID(c))
	c.JSON(http.StatusOK, viewOf(test))
}

// Stream pushes live samples as server-sent events.
// Events: "metric" per sample, "complete" with the final test once it ends.
// @Summary Stream load test metrics (SSE)
// @Tags LoadTest
// @Produce text/event-stream
// @Param id path int true "Load test ID"
// @Router /api/v1/loadtest/{id}/metrics/stream [get]
func (h *LoadTestHandler) Stream(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	sub, snapshot, err := h.loadTestService.Subscribe(c.Request.Context(), id)
	if err != nil {
		respondError(c, "subscribe to load test", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	if sub == nil {
		// already over, or running on another instance
		c.SSEvent(string(loadgen.EventComplete), snapshot)
		c.Writer.Flush()
		return
	}
	defer sub.Close()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			frame := frameOf(ev)
			c.SSEvent(string(frame.Type), frame.Data)
			return ev.Type != loadgen.EventComplete
		}
	})
}

// StreamWS pushes live samples over a WebSocket as JSON frames {"type","data"}
// @Summary Stream load test metrics (WebSocket)
// @Tags LoadTest
// @Param id path int true "Load test ID"
// @Router /api/v1/loadtest/{id}/metrics/ws [get]
func (h *LoadTestHandler) StreamWS(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	sub, snapshot, err := h.loadTestService.Subscribe(c.Request.Context(), id)
	if err != nil {
		respondError(c, "subscribe to load test", err)
		return
	}
	if sub != nil {
		defer sub.Close()
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upgrade to websocket: %v", err)
		return
	}
	defer ws.Close()

	if sub == nil {
		h.writeFrame(c, ws, streamFrame{Type: loadgen.EventComplete, Data: snapshot})
		return
	}

	// the client never sends; reading only detects it going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			logger.DebugCtx(c.Request.Context(), "websocket client of load test %d went away", id)
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if !h.writeFrame(c, ws, frameOf(ev)) {
				return
			}
			if ev.Type == loadgen.EventComplete {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "load test finished"),
					time.Now().Add(wsWriteWait))
				return
			}
		}
	}
}

func (h *LoadTestHandler) writeFrame(c *gin.Context, ws *websocket.Conn, frame streamFrame) bool {
	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := ws.WriteJSON(frame); err != nil {
		logger.DebugCtx(c.Request.Context(), "failed to write websocket frame: %v", err)
		return false
	}
	return true
}
