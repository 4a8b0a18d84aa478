package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Request types

type AddContractorRequest struct {
	Name          string          `json:"name" binding:"required"`
	Wallet        string          `json:"wallet" binding:"required"`
	Salary        decimal.Decimal `json:"salary" binding:"required"`
	StartingCycle uint64          `json:"starting_cycle"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

type WalletRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

type StartingCycleRequest struct {
	StartingCycle uint64 `json:"starting_cycle"`
}

type PaymentPlanRequest struct {
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Installments uint64          `json:"installments" binding:"required"`
}

type AgentRequest struct {
	Wallet    string `json:"wallet" binding:"required"`
	Authorize *bool  `json:"authorize" binding:"required"`
}

type SendPaymentRequest struct {
	ContractorID uint64          `json:"contractor_id" binding:"required"`
	To           string          `json:"to" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
}

type UpdateStateRequest struct {
	IDs []uint64 `json:"ids" binding:"required"`
}

type AdminRequest struct {
	Wallet  string `json:"wallet" binding:"required"`
	IsAdmin *bool  `json:"is_admin" binding:"required"`
}

func contractorID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contractor ID"})
		return 0, false
	}
	return id, true
}

// Handlers

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.cachedState(c.Request.Context()))
}

func (s *Server) getContractor(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}

	view, err := s.ledger.ViewContractor(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) getOwedSalary(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}

	owed, cycles, err := s.ledger.OwedSalary(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owed": owed, "cycles": cycles})
}

func (s *Server) getMaxPayable(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}

	payable, err := s.ledger.MaxPayable(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payable": payable})
}

func (s *Server) getAuthorization(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}

	headroom, err := s.ledger.CheckAuthorization(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": headroom})
}

func (s *Server) getContractorID(c *gin.Context) {
	id, err := s.ledger.GetID(c.Param("wallet"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) addContractor(c *gin.Context) {
	var req AddContractorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	id, err := s.ledger.AddContractor(c.Request.Context(), caller(c), req.Name, req.Wallet, req.Salary, req.StartingCycle)
	if err != nil {
		abortWithError(c, err)
		return
	}

	s.invalidateState(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) changeName(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.ChangeName(c.Request.Context(), caller(c), id, req.Name)
	})
}

func (s *Server) changeWallet(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.ChangeWallet(c.Request.Context(), caller(c), id, req.Wallet)
	})
}

func (s *Server) changeSalary(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.ChangeSalary(c.Request.Context(), caller(c), id, req.Amount)
	})
}

func (s *Server) changeStartingCycle(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req StartingCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.ChangeStartingCycle(c.Request.Context(), caller(c), id, req.StartingCycle)
	})
}

func (s *Server) addPaymentPlan(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req PaymentPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.AddPaymentPlan(c.Request.Context(), caller(c), id, req.Amount, req.Installments)
	})
}

func (s *Server) terminateContractor(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	s.mutate(c, func() error {
		return s.ledger.TerminateContractor(c.Request.Context(), caller(c), id)
	})
}

func (s *Server) authorizeAgent(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.AuthorizeAgent(c.Request.Context(), caller(c), id, req.Wallet, *req.Authorize)
	})
}

func (s *Server) addCredit(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.AddCredit(c.Request.Context(), caller(c), id, req.Amount)
	})
}

func (s *Server) addDebit(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.AddDebit(c.Request.Context(), caller(c), id, req.Amount)
	})
}

func (s *Server) addAuthorizedPayment(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.AddAuthorizedPayment(c.Request.Context(), caller(c), id, req.Amount)
	})
}

func (s *Server) payCredit(c *gin.Context) {
	id, ok := contractorID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.guarded(c, func() error {
		return s.ledger.PayCredit(c.Request.Context(), caller(c), id, req.Amount)
	})
}

func (s *Server) sendPayment(c *gin.Context) {
	var req SendPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.guarded(c, func() error {
		return s.ledger.SendPayment(c.Request.Context(), caller(c), req.ContractorID, req.To, req.Amount)
	})
}

func (s *Server) advanceCycle(c *gin.Context) {
	cycle, err := s.ledger.AdvanceCycle(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	s.invalidateState(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"cycle": cycle})
}

func (s *Server) updateState(c *gin.Context) {
	var req UpdateStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.UpdateState(c.Request.Context(), req.IDs)
	})
}

func (s *Server) setDefaultAuth(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.SetDefaultAuth(c.Request.Context(), caller(c), req.Amount)
	})
}

func (s *Server) setMaxSalary(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.SetMaxSalary(c.Request.Context(), caller(c), req.Amount)
	})
}

func (s *Server) setAdmin(c *gin.Context) {
	var req AdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.SetAdmin(c.Request.Context(), caller(c), req.Wallet, *req.IsAdmin)
	})
}

func (s *Server) setSuperAdmin(c *gin.Context) {
	var req WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s.mutate(c, func() error {
		return s.ledger.SetSuperAdmin(c.Request.Context(), caller(c), req.Wallet)
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event feed disabled"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.hub.register(caller(c), conn)
}

// mutate runs a ledger mutation and answers with a generic ok payload
func (s *Server) mutate(c *gin.Context, fn func() error) {
	if err := fn(); err != nil {
		abortWithError(c, err)
		return
	}

	s.invalidateState(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// guarded runs a settlement operation behind the Idempotency-Key check so a
// retried request cannot pay twice
func (s *Server) guarded(c *gin.Context, fn func() error) {
	key := c.GetHeader("Idempotency-Key")

	fresh, err := s.claimIdempotencyKey(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency store unavailable"})
		return
	}
	if !fresh {
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate request"})
		return
	}

	if err := fn(); err != nil {
		s.releaseIdempotencyKey(c.Request.Context(), key)
		abortWithError(c, err)
		return
	}

	s.invalidateState(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
