package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/enforce"
)

var (
	// ErrNoVerdict means no checks could run at all. Callers must treat
	// this as "no decision could be made", never as a clean verdict.
	ErrNoVerdict = errors.New("no checks ran: unable to reach a verdict")
	// ErrStaleEdit means a newer edit of the same message was already
	// evaluated; the late decision is discarded.
	ErrStaleEdit = errors.New("stale edit version for message")
)

// DecisionStore is the persistence surface the engine needs.
type DecisionStore interface {
	// LatestEditVersion returns 0 when the message was never evaluated.
	LatestEditVersion(ctx context.Context, messageID string) (int, error)
	// InsertDecision must reject decisions whose EditVersion is not
	// greater than every stored version for the message, returning an
	// error wrapping ErrStaleEdit.
	InsertDecision(ctx context.Context, d *detect.Decision) error
	TrainingMode(ctx context.Context, communityID string) (bool, error)
}

// CorpusFeed receives decisions for the training corpus.
type CorpusFeed interface {
	Record(ctx context.Context, d *detect.Decision, text string) error
}

// Enforcer executes an enforcement intent. Implemented by the orchestrator.
type Enforcer interface {
	Execute(ctx context.Context, intent enforce.Intent) (enforce.Outcome, error)
}

// AuditSink appends decision and enforcement events. Append-only.
type AuditSink interface {
	AppendAudit(ctx context.Context, actor, target, action, outcome, detail string) error
}

// Engine runs the enabled checks for a piece of content concurrently,
// aggregates their verdicts under the policy, and (outside training mode)
// hands auto-enforceable decisions to the orchestrator.
type Engine struct {
	Logger   *slog.Logger
	Checks   *detect.Registry
	Resolver *ScopeResolver
	Policy   Policy
	Store    DecisionStore
	Corpus   CorpusFeed
	Enforcer Enforcer
	Audit    AuditSink

	// CheckTimeout bounds each individual check; a hung check degrades to
	// a neutral result instead of stalling the evaluation.
	CheckTimeout time.Duration
	// EvalTimeout bounds the whole evaluation.
	EvalTimeout time.Duration
	// MaxConcurrent bounds check fan-out, mostly to respect external
	// service rate limits.
	MaxConcurrent int
}

func (eng *Engine) checkTimeout() time.Duration {
	if eng.CheckTimeout > 0 {
		return eng.CheckTimeout
	}
	return 5 * time.Second
}

func (eng *Engine) evalTimeout() time.Duration {
	if eng.EvalTimeout > 0 {
		return eng.EvalTimeout
	}
	return 30 * time.Second
}

type plannedCheck struct {
	check detect.Check
	cfg   detect.EffectiveConfig
	// enforcing is false when the check only runs because of AlwaysRun.
	enforcing bool
}

// plan resolves effective config for every registered check and decides
// which ones run.
func (eng *Engine) plan(ctx context.Context, communityID string) ([]plannedCheck, error) {
	var planned []plannedCheck
	for _, c := range eng.Checks.All() {
		cfg, err := eng.Resolver.Resolve(ctx, c.Name(), communityID)
		if err != nil {
			return nil, err
		}
		if !cfg.Enabled && !cfg.AlwaysRun {
			continue
		}
		planned = append(planned, plannedCheck{check: c, cfg: cfg, enforcing: cfg.Enabled})
	}
	return planned, nil
}

// Evaluate runs the check ensemble over one piece of content and returns
// the persisted decision. A single check's failure never blocks the
// decision; engine-level failure (no checks at all) is a hard error.
func (eng *Engine) Evaluate(ctx context.Context, content *detect.Content) (dec *detect.Decision, err error) {
	// recover panics from check execution, like an HTTP server would
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("evaluation panic", "err", r, "message", content.MessageID, "account", content.AccountID)
			err = fmt.Errorf("evaluation panic: %v", r)
		}
	}()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, eng.evalTimeout())
	defer cancel()

	planned, err := eng.plan(ctx, content.CommunityID)
	if err != nil {
		return nil, err
	}
	if len(planned) == 0 {
		return nil, ErrNoVerdict
	}

	scored := eng.runChecks(ctx, planned, content)
	if ctx.Err() != nil {
		// cancelled mid-flight: report cancellation, not a partial verdict
		return nil, ctx.Err()
	}

	net := eng.Policy.NetConfidence(scored)
	class := eng.Policy.Classify(net)
	verdict := eng.Policy.Verdict(net)

	latest, err := eng.Store.LatestEditVersion(ctx, content.MessageID)
	if err != nil {
		return nil, fmt.Errorf("reading edit version: %w", err)
	}

	results := make([]detect.CheckResult, len(scored))
	for i, s := range scored {
		results[i] = s.result
	}

	dec = &detect.Decision{
		ID:            uuid.NewString(),
		MessageID:     content.MessageID,
		AccountID:     content.AccountID,
		CommunityID:   content.CommunityID,
		CreatedAt:     time.Now().UTC(),
		Verdict:       verdict,
		NetConfidence: net,
		Results:       results,
		Source:        detect.SourceAutomatic,
		EditVersion:   latest + 1,
		// automated decisions are training-eligible only when fully
		// confident; a reviewer flips the flag for everything else
		TrainingEligible: class == ClassAutoEnforce || (verdict == detect.VerdictClean && allVoted(scored)),
	}

	training, err := eng.Store.TrainingMode(ctx, content.CommunityID)
	if err != nil {
		return nil, fmt.Errorf("reading training mode: %w", err)
	}

	if err := eng.Store.InsertDecision(ctx, dec); err != nil {
		return nil, fmt.Errorf("persisting decision: %w", err)
	}

	detail := fmt.Sprintf("net=%d class=%s edit=%d msg=%s", net, class, dec.EditVersion, content.MessageID)
	if spam := dec.SpamResults(); len(spam) > 0 {
		names := make([]string, len(spam))
		for i, r := range spam {
			names[i] = string(r.Check)
		}
		detail += " spam_checks=" + strings.Join(names, ",")
	}
	eng.appendAudit(ctx, "warden:engine", content.AccountID, "decision", string(verdict), detail)

	if eng.Corpus != nil && dec.TrainingEligible {
		if cerr := eng.Corpus.Record(ctx, dec, content.Text); cerr != nil {
			eng.Logger.Warn("corpus record failed", "decision", dec.ID, "err", cerr)
		}
	}

	if class == ClassAutoEnforce {
		if training {
			eng.Logger.Info("training mode: suppressing enforcement",
				"community", content.CommunityID, "decision", dec.ID, "net", net)
		} else {
			eng.autoEnforce(ctx, dec, content)
		}
	}

	evalDuration.Observe(time.Since(start).Seconds())
	evalCount.WithLabelValues(string(verdict), string(class)).Inc()
	eng.Logger.Debug("evaluation complete", "decision", dec.ID, "verdict", verdict, "net", net, "class", class, "checks", len(results))
	return dec, nil
}

func allVoted(scored []scoredResult) bool {
	for _, s := range scored {
		if s.result.Verdict == detect.VerdictNeutral {
			return false
		}
	}
	return true
}

// runChecks fans the planned checks out concurrently. Each check gets its
// own timeout; errors and timeouts degrade to neutral results.
func (eng *Engine) runChecks(ctx context.Context, planned []plannedCheck, content *detect.Content) []scoredResult {
	scored := make([]scoredResult, len(planned))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if eng.MaxConcurrent > 0 {
		g.SetLimit(eng.MaxConcurrent)
	}
	for i, pc := range planned {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, eng.checkTimeout())
			defer cancel()

			start := time.Now()
			res, err := pc.check.Evaluate(cctx, content, pc.cfg)
			if err != nil {
				eng.Logger.Warn("check failed", "check", pc.check.Name(), "err", err)
				checkErrorCount.WithLabelValues(string(pc.check.Name())).Inc()
				res = detect.NeutralResult(pc.check.Name(), time.Since(start))
			}
			checkDuration.WithLabelValues(string(pc.check.Name())).Observe(res.Elapsed.Seconds())

			mu.Lock()
			scored[i] = scoredResult{result: res, threshold: pc.cfg.Threshold, enforcing: pc.enforcing}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // check goroutines never return errors; they degrade
	return scored
}

// autoEnforce hands a confident spam decision to the orchestrator.
// Enforcement failure is logged and audited, never raised back through
// Evaluate; the decision itself already stands.
func (eng *Engine) autoEnforce(ctx context.Context, dec *detect.Decision, content *detect.Content) {
	if eng.Enforcer == nil {
		return
	}
	intent := enforce.Intent{
		AccountID:   content.AccountID,
		Executor:    "warden:auto",
		Kind:        enforce.KindBan,
		Reason:      fmt.Sprintf("automatic detection: spam confidence %d", dec.NetConfidence),
		MessageID:   content.MessageID,
		CommunityID: content.CommunityID,
	}
	out, err := eng.Enforcer.Execute(ctx, intent)
	if err != nil {
		eng.Logger.Error("auto-enforcement failed", "decision", dec.ID, "account", content.AccountID, "err", err)
		eng.appendAudit(ctx, intent.Executor, intent.AccountID, string(intent.Kind), "error", err.Error())
		return
	}
	autoEnforceCount.Inc()
	eng.appendAudit(ctx, intent.Executor, intent.AccountID, string(intent.Kind), "ok",
		fmt.Sprintf("communities=%d notified=%s", out.CommunitiesAffected, out.NotifiedVia))
}

func (eng *Engine) appendAudit(ctx context.Context, actor, target, action, outcome, detail string) {
	if eng.Audit == nil {
		return
	}
	if err := eng.Audit.AppendAudit(ctx, actor, target, action, outcome, detail); err != nil {
		eng.Logger.Error("audit append failed", "action", action, "target", target, "err", err)
	}
}
