package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-core/internal/supervisor"
	"fleet-core/internal/worker"
	"fleet-core/pkg/db"
	"fleet-core/pkg/logger"
)

// Fleet is the operational surface the HTTP layer drives.
type Fleet interface {
	CreateWorkers(count int, cfg worker.Config) (int, error)
	StopWorker(id, reason string) error
	StopAllWorkers(reason string) int
	StopSymbol(symbol string) error
	ListWorkers() []worker.Status
	GetSummary(ctx context.Context) supervisor.Summary
}

// Server wires the HTTP endpoints around the supervisor.
type Server struct {
	Router    *gin.Engine
	Fleet     Fleet
	Journal   *db.Journal
	JWTSecret string
	AdminHash string
}

// NewServer builds the router with the middleware stack and routes.
func NewServer(fleet Fleet, journal *db.Journal, jwtSecret, adminHash string) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())

	s := &Server{
		Router:    r,
		Fleet:     fleet,
		Journal:   journal,
		JWTSecret: jwtSecret,
		AdminHash: adminHash,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/workers", s.createWorkers)
			protected.GET("/workers", s.listWorkers)
			protected.DELETE("/workers/:id", s.stopWorker)
			protected.POST("/workers/stop-all", s.stopAllWorkers)
			protected.DELETE("/symbols/:symbol", s.stopSymbol)
			protected.GET("/summary", s.getSummary)
			protected.GET("/trades", s.getTrades)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createWorkers(c *gin.Context) {
	var req struct {
		Count  int           `json:"count"`
		Config worker.Config `json:"config"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	started, err := s.Fleet.CreateWorkers(req.Count, req.Config)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_CONFIG",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"started": started})
}

func (s *Server) listWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workers": s.Fleet.ListWorkers()})
}

func (s *Server) stopWorker(c *gin.Context) {
	id := c.Param("id")
	if err := s.Fleet.StopWorker(id, "api request"); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "UNKNOWN_WORKER",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": id})
}

func (s *Server) stopAllWorkers(c *gin.Context) {
	n := s.Fleet.StopAllWorkers("api request")
	c.JSON(http.StatusOK, gin.H{"stopped": n})
}

func (s *Server) stopSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.Fleet.StopSymbol(symbol); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "UNKNOWN_SYMBOL",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": symbol})
}

func (s *Server) getSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.Fleet.GetSummary(c.Request.Context()))
}

func (s *Server) getTrades(c *gin.Context) {
	if s.Journal == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []db.Trade{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trades, err := s.Journal.ListTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}

// RequestLogger logs every API request with timing and status.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Infof("api: %s %s | %d | %v | %s",
			method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}
