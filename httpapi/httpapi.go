// Package httpapi is the read-only HTTP API over the catalog, the running
// arenas and the game history.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/persistence"
	"github.com/wfunc/minigame/services"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

type Handler struct {
	catalog   *minigame.Catalog
	arenas    *arena.Manager
	history   *services.History
	snapshots persistence.SnapshotStore
}

// NewHandler creates the API. snapshots may be nil; it serves arenas that
// are no longer live.
func NewHandler(catalog *minigame.Catalog, arenas *arena.Manager, history *services.History, snapshots persistence.SnapshotStore) *Handler {
	return &Handler{
		catalog:   catalog,
		arenas:    arenas,
		history:   history,
		snapshots: snapshots,
	}
}

// Router builds the gin engine with every route.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", h.Health)
	r.GET("/minigames", h.ListMinigames)
	r.GET("/minigames/:name", h.GetMinigame)
	r.GET("/arenas", h.ListArenas)
	r.GET("/arenas/:id", h.GetArena)
	r.GET("/records", h.ListRecords)
	r.GET("/players/:id/history", h.PlayerHistory)
	return r
}

// Serve runs the API on addr until ctx is done.
func (h *Handler) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Router(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Log.Infof("HTTP API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"arenas":    h.arenas.Count(),
		"minigames": len(h.catalog.List()),
	})
}

func (h *Handler) ListMinigames(c *gin.Context) {
	list := h.catalog.List()
	infos := make([]minigame.Info, 0, len(list))
	for _, mg := range list {
		infos = append(infos, mg.Describe())
	}
	c.JSON(http.StatusOK, gin.H{"minigames": infos})
}

func (h *Handler) GetMinigame(c *gin.Context) {
	mg, ok := h.catalog.Get(c.Param("name"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": minigame.ErrUnknownMinigame.Error()})
		return
	}
	c.JSON(http.StatusOK, mg.Describe())
}

func (h *Handler) ListArenas(c *gin.Context) {
	list := h.arenas.List()
	if name := c.Query("minigame"); name != "" {
		list = h.arenas.ListByMinigame(name)
	}
	snapshots := make([]arena.Snapshot, 0, len(list))
	for _, a := range list {
		snapshots = append(snapshots, a.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{"arenas": snapshots})
}

// GetArena returns a live arena, or its last persisted snapshot.
func (h *Handler) GetArena(c *gin.Context) {
	id := c.Param("id")
	if a, ok := h.arenas.Get(id); ok {
		c.JSON(http.StatusOK, a.Snapshot())
		return
	}

	if h.snapshots != nil {
		snapshot, err := h.snapshots.LoadSnapshot(c.Request.Context(), id)
		if err == nil {
			c.JSON(http.StatusOK, snapshot)
			return
		}
		if !errors.Is(err, persistence.ErrRecordNotFound) {
			logger.Log.Errorf("load snapshot of arena %s: %v", id, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "storage-error"})
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": arena.ErrArenaNotFound.Error()})
}

func (h *Handler) ListRecords(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	records, err := h.history.Recent(c.Request.Context(), c.Query("minigame"), limit)
	if err != nil {
		logger.Log.Errorf("list records: %v", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "storage-error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) PlayerHistory(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	player := c.Param("id")

	stats, err := h.history.PlayerStats(c.Request.Context(), player)
	if err != nil {
		logger.Log.Errorf("stats of player %s: %v", player, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "storage-error"})
		return
	}
	games, err := h.history.PlayerHistory(c.Request.Context(), player, limit)
	if err != nil {
		logger.Log.Errorf("history of player %s: %v", player, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "storage-error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "games": games})
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-limit"})
		return 0, false
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, true
}
