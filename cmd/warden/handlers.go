package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/corpus"
	"github.com/wardenhq/warden/detect/engine"
	"github.com/wardenhq/warden/enforce"
)

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/_health", s.handleHealthCheck)

	// platform event ingest
	e.POST("/v1/messages/evaluate", s.handleEvaluate)
	e.POST("/v1/events/membership", s.handleMembershipEvent)
	e.POST("/v1/events/private-contact", s.handlePrivateContactEvent)

	// moderation and configuration
	e.POST("/admin/actions", s.handleExecuteAction)
	e.GET("/admin/actions/:account", s.handleListActions)
	e.GET("/admin/decisions/:id", s.handleGetDecision)
	e.POST("/admin/decisions/:id/review", s.handleReviewDecision)
	e.POST("/admin/corpus/samples", s.handleAddCorpusSample)
	e.GET("/admin/checks/:check/config", s.handleGetCheckConfig)
	e.PUT("/admin/checks/:check/config", s.handlePutCheckConfig)
	e.PUT("/admin/communities/:id/training-mode", s.handleSetTrainingMode)
	e.GET("/admin/audit/:account", s.handleAuditQuery)
}

type healthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Message string `json:"msg,omitempty"`
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error("healthcheck can't connect to database", "err", err)
		return c.JSON(http.StatusInternalServerError, healthStatus{Status: "error", Version: versioninfo.Short(), Message: "can't connect to database"})
	}
	return c.JSON(http.StatusOK, healthStatus{Status: "ok", Version: versioninfo.Short()})
}

type evaluateRequest struct {
	MessageID   string   `json:"message_id"`
	AccountID   string   `json:"account_id"`
	CommunityID string   `json:"community_id"`
	Text        string   `json:"text"`
	Edited      bool     `json:"edited"`
	MediaRefs   []string `json:"media_refs,omitempty"`
}

type evaluateResponse struct {
	DecisionID    string               `json:"decision_id"`
	Verdict       string               `json:"verdict"`
	NetConfidence int                  `json:"net_confidence"`
	EditVersion   int                  `json:"edit_version"`
	Results       []detect.CheckResult `json:"results"`
}

func (s *Server) handleEvaluate(c echo.Context) error {
	var req evaluateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MessageID == "" || req.AccountID == "" || req.CommunityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message_id, account_id, and community_id are required")
	}

	dec, err := s.engine.Evaluate(c.Request().Context(), &detect.Content{
		MessageID:   req.MessageID,
		AccountID:   req.AccountID,
		CommunityID: req.CommunityID,
		Text:        req.Text,
		Edited:      req.Edited,
		MediaRefs:   req.MediaRefs,
	})
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrStaleEdit):
			return echo.NewHTTPError(http.StatusConflict, "a newer edit of this message was already evaluated")
		case errors.Is(err, engine.ErrNoVerdict):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "no checks available to reach a verdict")
		}
		return err
	}

	if dec.Verdict == detect.VerdictSpam {
		s.similarity.Learn(req.Text)
	}

	return c.JSON(http.StatusOK, evaluateResponse{
		DecisionID:    dec.ID,
		Verdict:       string(dec.Verdict),
		NetConfidence: dec.NetConfidence,
		EditVersion:   dec.EditVersion,
		Results:       dec.Results,
	})
}

type membershipEvent struct {
	AccountID   string `json:"account_id"`
	CommunityID string `json:"community_id"`
	Admin       bool   `json:"admin"`
	Left        bool   `json:"left"`
}

func (s *Server) handleMembershipEvent(c echo.Context) error {
	var ev membershipEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if ev.AccountID == "" || ev.CommunityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account_id and community_id are required")
	}
	ctx := c.Request().Context()
	if ev.Left {
		if err := s.store.RemoveMembership(ctx, ev.AccountID, ev.CommunityID); err != nil {
			return err
		}
	} else {
		if err := s.store.PutMembership(ctx, ev.AccountID, ev.CommunityID, ev.Admin); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePrivateContactEvent(c echo.Context) error {
	var ev struct {
		AccountID string `json:"account_id"`
	}
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if ev.AccountID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account_id is required")
	}
	if err := s.store.MarkPrivateContact(c.Request().Context(), ev.AccountID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type actionRequest struct {
	AccountID       string `json:"account_id"`
	Executor        string `json:"executor"`
	Kind            string `json:"kind"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Reason          string `json:"reason,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	CommunityID     string `json:"community_id,omitempty"`
}

type actionResponse struct {
	CommunitiesAffected int    `json:"communities_affected"`
	ExpiresAt           string `json:"expires_at,omitempty"`
	TrustRevoked        bool   `json:"trust_revoked,omitempty"`
	NotifiedVia         string `json:"notified_via"`
	PartialError        string `json:"partial_error,omitempty"`
}

func (s *Server) handleExecuteAction(c echo.Context) error {
	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	out, err := s.orchestrator.Execute(c.Request().Context(), enforce.Intent{
		AccountID:   req.AccountID,
		Executor:    req.Executor,
		Kind:        enforce.ActionKind(req.Kind),
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
		Reason:      req.Reason,
		MessageID:   req.MessageID,
		CommunityID: req.CommunityID,
	})
	if err != nil {
		switch {
		case errors.Is(err, enforce.ErrUnknownKind),
			errors.Is(err, enforce.ErrDurationRequired),
			errors.Is(err, enforce.ErrDurationForbidden),
			errors.Is(err, enforce.ErrMissingTarget),
			errors.Is(err, enforce.ErrMissingExecutor):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, enforce.ErrProtectedTarget):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return err
	}

	resp := actionResponse{
		CommunitiesAffected: out.CommunitiesAffected,
		TrustRevoked:        out.TrustRevoked,
		NotifiedVia:         string(out.NotifiedVia),
	}
	if out.ExpiresAt != nil {
		resp.ExpiresAt = out.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if out.FirstErr != nil {
		resp.PartialError = out.FirstErr.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

type actionSummary struct {
	ID        uint   `json:"id"`
	Kind      string `json:"kind"`
	Issuer    string `json:"issuer"`
	Reason    string `json:"reason,omitempty"`
	State     string `json:"state"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func (s *Server) handleListActions(c echo.Context) error {
	records, err := s.store.ActionsForAccount(c.Request().Context(), c.Param("account"))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	out := make([]actionSummary, len(records))
	for i, rec := range records {
		out[i] = actionSummary{
			ID:       rec.ID,
			Kind:     string(rec.Kind),
			Issuer:   rec.Issuer,
			Reason:   rec.Reason,
			State:    string(rec.State(now)),
			IssuedAt: rec.IssuedAt.UTC().Format(time.RFC3339),
		}
		if rec.ExpiresAt != nil {
			out[i].ExpiresAt = rec.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetDecision(c echo.Context) error {
	dec, err := s.store.GetDecision(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no such decision")
		}
		return err
	}
	return c.JSON(http.StatusOK, dec)
}

type reviewRequest struct {
	TrainingEligible bool `json:"training_eligible"`
}

// handleReviewDecision records a human reviewer's call on whether a decision
// may feed the training corpus.
func (s *Server) handleReviewDecision(c echo.Context) error {
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := s.store.SetTrainingEligible(c.Request().Context(), c.Param("id"), req.TrainingEligible)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no such decision")
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type corpusSampleRequest struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// handleAddCorpusSample stores a human-labeled training example. Manual
// samples are retained indefinitely.
func (s *Server) handleAddCorpusSample(c echo.Context) error {
	var req corpusSampleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	label := detect.Verdict(req.Label)
	if label != detect.VerdictSpam && label != detect.VerdictClean {
		return echo.NewHTTPError(http.StatusBadRequest, "label must be spam or clean")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	err := s.store.InsertSample(c.Request().Context(), corpus.Sample{
		Label:  label,
		Source: corpus.SourceManual,
		Text:   req.Text,
	})
	if err != nil {
		return err
	}
	if label == detect.VerdictSpam {
		s.similarity.Learn(req.Text)
	}
	return c.NoContent(http.StatusNoContent)
}

type checkConfigBody struct {
	CommunityID string             `json:"community_id,omitempty"`
	Enabled     bool               `json:"enabled"`
	UseGlobal   bool               `json:"use_global,omitempty"`
	Threshold   int                `json:"threshold"`
	AlwaysRun   bool               `json:"always_run,omitempty"`
	Params      map[string]float64 `json:"params,omitempty"`
}

func (s *Server) handleGetCheckConfig(c echo.Context) error {
	name := detect.CheckName(c.Param("check"))
	if _, ok := s.engine.Checks.Get(name); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown check")
	}
	communityID := c.QueryParam("community")
	cfg, err := s.store.GetCheckConfig(c.Request().Context(), name, communityID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no config at this scope")
	}
	return c.JSON(http.StatusOK, checkConfigBody{
		CommunityID: communityID,
		Enabled:     cfg.Enabled,
		UseGlobal:   cfg.UseGlobal,
		Threshold:   cfg.Threshold,
		AlwaysRun:   cfg.AlwaysRun,
		Params:      cfg.Params,
	})
}

func (s *Server) handlePutCheckConfig(c echo.Context) error {
	name := detect.CheckName(c.Param("check"))
	if _, ok := s.engine.Checks.Get(name); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown check")
	}
	var body checkConfigBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := s.store.PutCheckConfig(c.Request().Context(), name, body.CommunityID, detect.EffectiveConfig{
		Enabled:   body.Enabled,
		UseGlobal: body.UseGlobal,
		Threshold: body.Threshold,
		AlwaysRun: body.AlwaysRun,
		Params:    body.Params,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSetTrainingMode(c echo.Context) error {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.store.SetTrainingMode(c.Request().Context(), c.Param("id"), body.Enabled); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAuditQuery(c echo.Context) error {
	events, err := s.store.AuditForTarget(c.Request().Context(), c.Param("account"), 200)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}
