package shared

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AI2HU/chatstats/internal/models"
)

// ParseDateFilter parses the date query parameter and returns a normalized
// YYYY-MM-DD string, or empty when absent or malformed
func ParseDateFilter(c *gin.Context) string {
	dateStr := c.Query("date")
	if dateStr == "" {
		return ""
	}

	t, err := time.Parse(models.DateFormat, dateStr)
	if err != nil {
		return ""
	}
	return t.Format(models.DateFormat)
}
