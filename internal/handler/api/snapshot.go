// Package api exposes the read surface the dashboard views consume.
package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"TradeDeck/internal/broadcast"
	"TradeDeck/internal/domain/models"
	"TradeDeck/internal/domain/repository"
	xhttp "TradeDeck/pkg/http"
	"TradeDeck/pkg/logger"
	"TradeDeck/pkg/util"
)

// ConnectionReporter exposes the top-level connection indicator.
type ConnectionReporter interface {
	Overall() models.ConnectionState
}

// SnapshotHandler serves the aggregated state over REST and websocket.
type SnapshotHandler struct {
	log      *logger.Logger
	reader   repository.SnapshotReader
	conn     ConnectionReporter
	bcast    *broadcast.Broadcaster
	upgrader websocket.Upgrader
}

// NewSnapshotHandler creates the handler.
func NewSnapshotHandler(log *logger.Logger, reader repository.SnapshotReader, conn ConnectionReporter, bcast *broadcast.Broadcaster) *SnapshotHandler {
	return &SnapshotHandler{
		log:    log,
		reader: reader,
		conn:   conn,
		bcast:  bcast,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes implements xhttp.Handler.
func (h *SnapshotHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/snapshot", h.getSnapshot)
	g.GET("/health", h.getHealth)
	g.GET("/positions", h.getPositions)
	g.GET("/trades", h.getTrades)
	g.GET("/logs", h.getLogs)
	g.GET("/consensus", h.getConsensus)
	g.GET("/stream", h.stream)
	e.GET("/readyz", h.readyz)
}

type snapshotResponse struct {
	Connection models.ConnectionState `json:"connection"`
	Snapshot   *models.Snapshot       `json:"snapshot"`
}

func (h *SnapshotHandler) getSnapshot(c echo.Context) error {
	return xhttp.SuccessResponse(c, snapshotResponse{
		Connection: h.conn.Overall(),
		Snapshot:   h.reader.Read(),
	})
}

func (h *SnapshotHandler) getHealth(c echo.Context) error {
	snap := h.reader.Read()
	return xhttp.SuccessResponse(c, map[string]any{
		"connection":      h.conn.Overall(),
		"overall_healthy": snap.Derived.OverallHealthy,
		"sources":         snap.AgentHealth,
		"as_of":           snap.AsOf,
	})
}

func (h *SnapshotHandler) getPositions(c echo.Context) error {
	snap := h.reader.Read()
	positions := make([]*models.PositionUpdate, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		positions = append(positions, p)
	}
	return xhttp.SuccessResponse(c, positions)
}

func (h *SnapshotHandler) getTrades(c echo.Context) error {
	snap := h.reader.Read()
	return xhttp.SuccessResponse(c, tail(snap.RecentTrades, limitParam(c)))
}

func (h *SnapshotHandler) getLogs(c echo.Context) error {
	snap := h.reader.Read()
	logs := snap.RecentLogs
	if level := c.QueryParam("level"); level != "" {
		filtered := make([]*models.LogEvent, 0, len(logs))
		for _, l := range logs {
			if string(l.Level) == level {
				filtered = append(filtered, l)
			}
		}
		logs = filtered
	}
	return xhttp.SuccessResponse(c, tail(logs, limitParam(c)))
}

func (h *SnapshotHandler) getConsensus(c echo.Context) error {
	snap := h.reader.Read()
	return xhttp.SuccessResponse(c, tail(snap.ConsensusHistory, limitParam(c)))
}

// readyz writes the real status code so orchestration probes can read it.
func (h *SnapshotHandler) readyz(c echo.Context) error {
	if h.conn.Overall() == models.StateDisconnected {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "no sources connected"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// stream upgrades to websocket and pushes every committed snapshot. A slow
// client only ever skips to the newest snapshot; it cannot stall ingestion.
func (h *SnapshotHandler) stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	writeErr := make(chan struct{})
	send := func(snap *models.Snapshot) {
		if err := conn.WriteJSON(snapshotResponse{
			Connection: h.conn.Overall(),
			Snapshot:   snap,
		}); err != nil {
			select {
			case writeErr <- struct{}{}:
			default:
			}
		}
	}

	send(h.reader.Read())
	unsubscribe := h.bcast.Subscribe(send)
	defer unsubscribe()
	defer conn.Close()

	// drain client frames to notice the close handshake
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-writeErr:
	case <-readDone:
	}
	return nil
}

func limitParam(c echo.Context) int {
	return util.ParseIntDefault(c.QueryParam("limit"), 0)
}

// tail returns the last n items, or all of them when n <= 0.
func tail[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}
