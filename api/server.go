// Package api is the HTTP control plane: read-only snapshots of the running
// strategy plus the operational controls (throttle, pause, resume, flatten).
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"hedgegrid/config"
	"hedgegrid/grid"
	"hedgegrid/logger"
	"hedgegrid/store"
	"hedgegrid/trader"
)

const tokenTTL = 24 * time.Hour

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	strategy   *trader.Strategy
	st         *store.Store // may be nil
	httpServer *http.Server
	port       int

	jwtSecret     string
	adminPassword string
}

// NewServer creates the API server around a running strategy.
func NewServer(s *trader.Strategy, st *store.Store, port int) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	srv := &Server{
		router:        router,
		strategy:      s,
		st:            st,
		port:          port,
		jwtSecret:     config.Get().JWTSecret,
		adminPassword: config.Get().AdminPassword,
	}
	srv.setupRoutes()
	return srv
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/login", s.handleLogin)

		protected := api.Group("/", s.authMiddleware())
		{
			protected.GET("/status", s.handleStatus)
			protected.GET("/ladders", s.handleLadders)
			protected.GET("/orders", s.handleOrders)
			protected.GET("/cycles", s.handleCycles)
			protected.GET("/equity-history", s.handleEquityHistory)

			protected.POST("/throttle", s.handleSetThrottle)
			protected.POST("/pause", s.handlePause)
			protected.POST("/resume", s.handleResume)
			protected.POST("/flatten", s.handleFlatten)
		}
	}
}

// Start launches the HTTP server in the background.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[API] server error: %v", err)
		}
	}()
	logger.Infof("[API] listening on :%d", s.port)
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ============================================================
// Auth
// ============================================================

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if s.adminPassword == "" || req.Password != s.adminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	claims := jwt.MapClaims{
		"sub": "admin",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// authMiddleware JWT authentication middleware
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization format"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenParts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ============================================================
// Read-only handlers
// ============================================================

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	paused, reason := s.strategy.Ops().Paused()
	throttle, _ := s.strategy.Ops().Throttle().Float64()
	c.JSON(http.StatusOK, gin.H{
		"strategy_id":  s.strategy.ID(),
		"symbol":       s.strategy.Symbol(),
		"venue":        s.strategy.Venue().Name(),
		"paused":       paused,
		"pause_reason": reason,
		"throttle":     throttle,
		"flattening":   s.strategy.Ops().Flattening(),
		"regime":       s.strategy.Ops().Ladders().Regime,
	})
}

func (s *Server) handleLadders(c *gin.Context) {
	c.JSON(http.StatusOK, s.strategy.Ops().Ladders())
}

func (s *Server) handleOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.strategy.Ops().Orders()})
}

func (s *Server) handleCycles(c *gin.Context) {
	if s.st == nil {
		c.JSON(http.StatusOK, gin.H{"cycles": []interface{}{}})
		return
	}
	cycles, err := s.st.Cycle().Recent(s.strategy.Symbol(), 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles})
}

func (s *Server) handleEquityHistory(c *gin.Context) {
	if s.st == nil {
		c.JSON(http.StatusOK, gin.H{"equity": []interface{}{}})
		return
	}
	snaps, err := s.st.Equity().Recent(500)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": snaps})
}

// ============================================================
// Control handlers
// ============================================================

func (s *Server) handleSetThrottle(c *gin.Context) {
	var req struct {
		Value float64 `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.strategy.Ops().SetThrottle(req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Warnf("[API] throttle set to %.2f", req.Value)
	c.JSON(http.StatusOK, gin.H{"throttle": req.Value})
}

func (s *Server) handlePause(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "paused via API"
	}
	s.strategy.Ops().Pause(req.Reason)
	logger.Warnf("[API] trading paused: %s", req.Reason)
	c.JSON(http.StatusOK, gin.H{"paused": true, "reason": req.Reason})
}

func (s *Server) handleResume(c *gin.Context) {
	s.strategy.Ops().Resume()
	logger.Warnf("[API] trading resumed")
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Server) handleFlatten(c *gin.Context) {
	var req struct {
		Side string `json:"side"` // "LONG", "SHORT" or "ALL"
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var (
		status trader.FlattenStatus
		err    error
	)
	if strings.EqualFold(req.Side, "ALL") {
		status, err = s.strategy.FlattenAll(c.Request.Context())
	} else {
		side, perr := grid.ParseSide(strings.ToUpper(req.Side))
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
			return
		}
		status, err = s.strategy.Flatten(c.Request.Context(), side)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "status": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
