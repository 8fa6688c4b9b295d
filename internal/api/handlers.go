package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"asset-manager/config"
	"asset-manager/internal/manager"
	"asset-manager/internal/policy"
)

// signalRequest is the inbound signal payload. Status carries the
// client's current position snapshot.
type signalRequest struct {
	Symbol    string            `json:"symbol" binding:"required"`
	Direction string            `json:"direction" binding:"required"`
	Strength  float64           `json:"strength"`
	Price     float64           `json:"price"`
	Status    []policy.Position `json:"status"`
}

// handleSignal queues a trading signal for the manager.
func (s *Server) handleSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig := manager.Signal{
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Strength:  req.Strength,
		Price:     req.Price,
	}
	if err := s.manager.OnSignal(sig, req.Status); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

// handleUpdatePositions replaces the manager's position snapshot and
// mirrors it to the cache.
func (s *Server) handleUpdatePositions(c *gin.Context) {
	var positions []policy.Position
	if err := c.ShouldBindJSON(&positions); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.manager.UpdatePositions(positions)
	if s.snapshots != nil {
		s.snapshots.Save(c.Request.Context(), positions)
	}

	c.JSON(http.StatusOK, gin.H{"count": len(positions)})
}

// handleUpdateConfig merges a partial configuration change, effective
// from the next tick.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var patch config.ManagerConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	merged := s.manager.UpdateConfig(patch)
	c.JSON(http.StatusOK, merged)
}

// handleGetConfig returns the current manager configuration.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Config())
}

// handleEnable starts the automation loop.
func (s *Server) handleEnable(c *gin.Context) {
	if err := s.manager.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

// handleDisable stops the automation loop. An execution already in
// flight completes before the manager goes idle.
func (s *Server) handleDisable(c *gin.Context) {
	s.manager.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

// handleStatus returns the manager status snapshot.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.GetStatus())
}

// handleHealth returns the portfolio health report.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Health())
}

// handlePendingActions lists actions awaiting execution.
func (s *Server) handlePendingActions(c *gin.Context) {
	actions := s.manager.Store().Pending()
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

// handleExecutedActions lists recently executed actions still held in
// memory.
func (s *Server) handleExecutedActions(c *gin.Context) {
	actions := s.manager.Store().Executed()
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

// handleActionHistory returns the Postgres audit trail.
func (s *Server) handleActionHistory(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "audit log disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := s.audit.History(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// handleExecuteAction manually triggers one pending action by id.
func (s *Server) handleExecuteAction(c *gin.Context) {
	id := c.Param("id")

	summary, err := s.manager.ExecuteAction(c.Request.Context(), id)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, manager.ErrActionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"executed": summary.Executed,
		"failed":   summary.Failed,
	})
}
