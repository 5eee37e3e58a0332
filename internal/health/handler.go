// Package health exposes a read-only HTTP surface over the migration engine:
// liveness plus the applied and available migration listings.
package health

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/consensuslabs/warehouse-migrate/internal/logger"
	"github.com/consensuslabs/warehouse-migrate/migrate"
)

// Handler serves the status endpoints.
type Handler struct {
	engine *migrate.Engine
	logger logger.Logger
}

// NewHandler creates a status handler over a constructed engine.
func NewHandler(engine *migrate.Engine, log logger.Logger) *Handler {
	return &Handler{engine: engine, logger: log}
}

// RegisterRoutes mounts the status endpoints on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HandleHealthCheck)
	v1 := r.Group("/api/v1")
	v1.GET("/migrations", h.HandleAppliedMigrations)
	v1.GET("/migrations/files", h.HandleMigrationFiles)
}

// HandleHealthCheck reports process liveness.
func (h *Handler) HandleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleAppliedMigrations returns the ledger names in insertion order. An
// optional batch query parameter filters to one batch.
func (h *Handler) HandleAppliedMigrations(c *gin.Context) {
	var batch []int64
	if raw := c.Query("batch"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "batch must be an integer"})
			return
		}
		batch = append(batch, n)
	}

	applied, err := h.engine.Applied(c.Request.Context(), batch...)
	if err != nil {
		h.logger.LogError(err, "failed to read applied migrations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read applied migrations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

// HandleMigrationFiles returns the sorted catalog filenames.
func (h *Handler) HandleMigrationFiles(c *gin.Context) {
	files, err := h.engine.ScriptFiles()
	if err != nil {
		h.logger.LogError(err, "failed to list migration files")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list migration files"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}
