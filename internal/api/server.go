package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/router"
)

// Server exposes the usage ingestion and display endpoints over HTTP. The
// host chat application pushes its lifecycle events in; display surfaces
// pull snapshots out.
type Server struct {
	router     *router.Router
	store      db.Store
	engine     *gin.Engine
	corsOrigin string
}

// NewServer creates a new API server
func NewServer(rt *router.Router, store db.Store, corsOrigin string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:     rt,
		store:      store,
		engine:     gin.New(),
		corsOrigin: corsOrigin,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.corsMiddleware())
	s.setupRoutes()

	return s
}

// Run starts the HTTP server on the given address
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler returns the underlying HTTP handler, used in tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	v1 := s.engine.Group("/api/v1")

	v1.GET("/health", s.health)

	usage := v1.Group("/usage")
	{
		usage.GET("/today", s.getToday)
		usage.GET("/entities", s.listEntities)
		usage.GET("/entities/:id", s.getEntity)
	}

	events := v1.Group("/events")
	{
		events.POST("/chat-changed", s.postChatChanged)
		events.POST("/message", s.postMessage)
		events.POST("/prompt", s.postPrompt)
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := s.corsOrigin
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.errorResponse(c, http.StatusServiceUnavailable, "Storage unavailable: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}
