// SPDX-License-Identifier: MIT

package rpc

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rustchain/metrics"
	"rustchain/types"
)

// Services are the core collaborators the HTTP layer translates for.
type Services struct {
	Clock    *types.Clock
	Registry *types.ChallengeRegistry
	Attest   *types.AttestationService
	Settle   *types.SettlementEngine
	Ledger   *types.Ledger
}

// Server is the node's HTTP API. Handlers stay thin: decode, call the
// engine, map the error code to a status.
type Server struct {
	svc      Services
	engine   *gin.Engine
	log      *zap.Logger
	adminKey string
}

func NewServer(svc Services, adminKey string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		svc:      svc,
		engine:   gin.New(),
		log:      log.Named("rpc"),
		adminKey: adminKey,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), RequestID(), RequestLogger(s.log))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/epoch", s.handleEpoch)
	r.GET("/epoch/:epoch/state", s.handleEpochState)
	r.GET("/api/stats", s.handleStats)

	r.POST("/attest/challenge", s.handleChallenge)
	r.POST("/attest/submit", s.handleSubmit)
	r.POST("/epoch/enroll", s.handleEnroll)

	r.GET("/balance/:address", s.handleBalance)
	r.POST("/wallet/transfer/signed", s.handleSignedTransfer)
	r.GET("/wallet/ledger", s.handleLedger)

	admin := r.Group("/", AdminRequired(s.adminKey))
	admin.POST("/wallet/transfer", s.handleInternalTransfer)
	admin.GET("/wallet/balances/all", s.handleAllBalances)
	admin.POST("/rewards/settle", s.handleSettle)
}

// Handler exposes the router; the node mounts it on its own
// http.Server so shutdown can drain in-flight requests.
func (s *Server) Handler() http.Handler { return s.engine }

// ---- handlers ----

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleEpoch(c *gin.Context) {
	p := s.svc.Clock.Now()
	metrics.CurrentEpoch.Set(float64(p.Epoch))
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleEpochState(c *gin.Context) {
	var epoch uint64
	if err := parseUintParam(c.Param("epoch"), &epoch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid epoch"})
		return
	}
	state, err := s.svc.Settle.State(epoch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleStats(c *gin.Context) {
	p := s.svc.Clock.Now()
	enrolled, err := s.svc.Settle.Enrollments(p.Epoch)
	if err != nil {
		s.fail(c, err)
		return
	}
	metrics.EnrolledMiners.Set(float64(len(enrolled)))
	c.JSON(http.StatusOK, gin.H{
		"epoch":           p.Epoch,
		"slot":            p.Slot,
		"enrolled_miners": len(enrolled),
		"epoch_pot":       types.FormatRTC(s.svc.Settle.Pot()),
		"challenges_live": s.svc.Registry.Len(),
	})
}

func (s *Server) handleChallenge(c *gin.Context) {
	var req struct {
		Miner string `json:"miner_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ch := s.svc.Registry.Issue(types.MinerID(req.Miner))
	metrics.ChallengesIssued.Inc()
	c.JSON(http.StatusOK, ch)
}

func (s *Server) handleSubmit(c *gin.Context) {
	var sub types.AttestationSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := s.svc.Attest.Submit(&sub)
	if err != nil {
		metrics.AttestationsTotal.WithLabelValues("error").Inc()
		s.fail(c, err)
		return
	}
	if res.Accepted {
		metrics.AttestationsTotal.WithLabelValues("accepted").Inc()
	} else {
		metrics.AttestationsTotal.WithLabelValues("rejected").Inc()
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleEnroll(c *gin.Context) {
	var req struct {
		Miner   string `json:"miner_id"`
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	addr, err := types.ParseAddress(req.Address)
	if err != nil {
		s.fail(c, err)
		return
	}
	p := s.svc.Clock.Now()
	enr, err := s.svc.Settle.Enroll(types.MinerID(req.Miner), addr, p.Epoch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, enr)
}

func (s *Server) handleBalance(c *gin.Context) {
	addr, err := types.ParseAddress(c.Param("address"))
	if err != nil {
		s.fail(c, err)
		return
	}
	bal, err := s.svc.Ledger.Balance(addr)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": addr,
		"balance": bal,
		"rtc":     types.FormatRTC(bal),
	})
}

func (s *Server) handleSignedTransfer(c *gin.Context) {
	var tr types.SignedTransfer
	if err := c.ShouldBindJSON(&tr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	p := s.svc.Clock.Now()
	if err := s.svc.Ledger.ApplySignedTransfer(&tr, p.Epoch); err != nil {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		s.fail(c, err)
		return
	}
	metrics.TransfersTotal.WithLabelValues("applied").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "applied", "amount": tr.Amount})
}

func (s *Server) handleInternalTransfer(c *gin.Context) {
	var tr types.InternalTransfer
	if err := c.ShouldBindJSON(&tr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	p := s.svc.Clock.Now()
	if err := s.svc.Ledger.ApplyInternalTransfer(&tr, p.Epoch); err != nil {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		s.fail(c, err)
		return
	}
	metrics.TransfersTotal.WithLabelValues("applied").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "applied", "amount": tr.Amount})
}

func (s *Server) handleAllBalances(c *gin.Context) {
	balances, err := s.svc.Ledger.AllBalances()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (s *Server) handleLedger(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		var n uint64
		if err := parseUintParam(v, &n); err != nil || n == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = int(n)
	}
	entries, err := s.svc.Ledger.AuditTrail(limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleSettle(c *gin.Context) {
	var req struct {
		Epoch *uint64 `json:"epoch"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var epoch uint64
	if req.Epoch != nil {
		epoch = *req.Epoch
	} else {
		p := s.svc.Clock.Now()
		if p.Epoch == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no completed epoch yet"})
			return
		}
		epoch = p.Epoch - 1
	}
	state, err := s.svc.Settle.Settle(epoch)
	if err != nil {
		s.fail(c, err)
		return
	}
	metrics.SettlementsTotal.Inc()
	c.JSON(http.StatusOK, state)
}

// fail maps the error taxonomy onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch types.CodeOf(err) {
	case types.ErrCodeValidation, types.ErrCodeResource:
		status = http.StatusBadRequest
	case types.ErrCodeAuthentication:
		status = http.StatusUnauthorized
	case types.ErrCodeAuthorization:
		status = http.StatusForbidden
	case types.ErrCodeReplay, types.ErrCodeConflict:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseUintParam(s string, out *uint64) error {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return types.NewError(types.ErrCodeValidation, "not a number")
	}
	*out = n
	return nil
}
