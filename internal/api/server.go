package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/terminal-bench/remitter/internal/auth"
	"github.com/terminal-bench/remitter/internal/remitter"
)

// Server exposes the payroll ledger over HTTP
type Server struct {
	router      *gin.Engine
	ledger      *remitter.Ledger
	auth        *auth.Service
	rdb         *redis.Client
	hub         *Hub
	rateLimiter *RateLimiter
}

// Config holds server configuration
type Config struct {
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// RateLimiter implements a sliding-window request limit per client IP
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// Allow checks if a request is allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	requests := rl.requests[key]
	valid := make([]time.Time, 0)
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// NewServer creates the HTTP server. rdb and hub may be nil; caching,
// idempotency and the event feed degrade gracefully without them.
func NewServer(cfg Config, ledger *remitter.Ledger, authSvc *auth.Service, rdb *redis.Client, hub *Hub) *Server {
	if cfg.RateLimitMax == 0 {
		cfg.RateLimitMax = 100
	}
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = time.Minute
	}

	s := &Server{
		router: gin.Default(),
		ledger: ledger,
		auth:   authSvc,
		rdb:    rdb,
		hub:    hub,
		rateLimiter: &RateLimiter{
			requests: make(map[string][]time.Time),
			limit:    cfg.RateLimitMax,
			window:   cfg.RateLimitWindow,
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.rateLimitMiddleware())
	s.router.Use(s.tracingMiddleware())

	// Health check
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		// Queries
		v1.GET("/state", s.getState)
		v1.GET("/contractors/:id", s.getContractor)
		v1.GET("/contractors/:id/owed", s.getOwedSalary)
		v1.GET("/contractors/:id/payable", s.getMaxPayable)
		v1.GET("/contractors/:id/authorization", s.getAuthorization)
		v1.GET("/wallets/:wallet", s.getContractorID)

		// Registry
		v1.POST("/contractors", s.authMiddleware(), s.addContractor)
		v1.PATCH("/contractors/:id/name", s.authMiddleware(), s.changeName)
		v1.PATCH("/contractors/:id/wallet", s.authMiddleware(), s.changeWallet)
		v1.PATCH("/contractors/:id/salary", s.authMiddleware(), s.changeSalary)
		v1.PATCH("/contractors/:id/starting-cycle", s.authMiddleware(), s.changeStartingCycle)
		v1.POST("/contractors/:id/plan", s.authMiddleware(), s.addPaymentPlan)
		v1.DELETE("/contractors/:id", s.authMiddleware(), s.terminateContractor)
		v1.POST("/contractors/:id/agents", s.authMiddleware(), s.authorizeAgent)

		// Authorization ledger
		v1.POST("/contractors/:id/credits", s.authMiddleware(), s.addCredit)
		v1.POST("/contractors/:id/debits", s.authMiddleware(), s.addDebit)
		v1.POST("/contractors/:id/authorized-payments", s.authMiddleware(), s.addAuthorizedPayment)
		v1.POST("/contractors/:id/credits/pay", s.authMiddleware(), s.payCredit)

		// Settlement
		v1.POST("/payments", s.authMiddleware(), s.sendPayment)

		// Cycle
		v1.POST("/cycle/advance", s.advanceCycle)
		v1.POST("/state/update", s.updateState)

		// Configuration
		v1.POST("/config/default-auth", s.authMiddleware(), s.setDefaultAuth)
		v1.POST("/config/max-salary", s.authMiddleware(), s.setMaxSalary)
		v1.POST("/config/admins", s.authMiddleware(), s.setAdmin)
		v1.POST("/config/super-admin", s.authMiddleware(), s.setSuperAdmin)

		// WebSocket event feed
		v1.GET("/ws", s.authMiddleware(), s.handleWebSocket)
	}
}

// Start starts the server
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Middleware

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("wallet", claims.Wallet)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !s.rateLimiter.Allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// caller returns the authenticated wallet address set by authMiddleware
func caller(c *gin.Context) string {
	return c.MustGet("wallet").(string)
}

// errStatus maps ledger errors to HTTP status codes
func errStatus(err error) int {
	switch {
	case errors.Is(err, remitter.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, remitter.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, remitter.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, remitter.ErrDuplicateWallet),
		errors.Is(err, remitter.ErrTerminated),
		errors.Is(err, remitter.ErrCycleConflict),
		errors.Is(err, remitter.ErrPlanActive),
		errors.Is(err, remitter.ErrLimitExceeded):
		return http.StatusConflict
	case errors.Is(err, remitter.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errStatus(err), gin.H{"error": err.Error()})
}
