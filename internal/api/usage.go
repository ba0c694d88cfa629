package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/models"
	"github.com/AI2HU/chatstats/internal/shared"
)

// getToday handles GET /api/v1/usage/today
func (s *Server) getToday(c *gin.Context) {
	rows, err := s.router.TodaySnapshot(c.Request.Context())
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "Failed to read usage: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date": time.Now().UTC().Format(models.DateFormat),
		"rows": rows,
	})
}

// listEntities handles GET /api/v1/usage/entities
func (s *Server) listEntities(c *gin.Context) {
	all, err := s.store.GetAll(c.Request.Context())
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "Failed to list entities: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"entities": all})
}

// getEntity handles GET /api/v1/usage/entities/:id with an optional
// ?date=YYYY-MM-DD filter for a single bucket
func (s *Server) getEntity(c *gin.Context) {
	entityID := c.Param("id")

	stats, err := s.store.Get(c.Request.Context(), entityID)
	if errors.Is(err, db.ErrNotFound) {
		s.errorResponse(c, http.StatusNotFound, "Entity not found: "+entityID)
		return
	}
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "Failed to get entity: "+err.Error())
		return
	}

	if date := shared.ParseDateFilter(c); date != "" {
		bucket, ok := stats.DailyData[date]
		if !ok {
			bucket = &models.DailyBucket{}
		}
		c.JSON(http.StatusOK, gin.H{
			"entity_id":   stats.EntityID,
			"entity_name": stats.EntityName,
			"date":        date,
			"bucket":      bucket,
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
