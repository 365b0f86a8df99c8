// Package execution turns trade intents into confirmed fills by racing
// several submission paths with escalating fees and slippage.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/solana"
)

// Router errors.
var (
	ErrInvalidIntent = errors.New("invalid trade intent")
	ErrInFlight      = errors.New("intent already executing")
	ErrTxFailed      = errors.New("transaction failed on chain")
)

// AttemptStatus is the outcome of one path within one round.
type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	AttemptTimeout   AttemptStatus = "timeout"
	AttemptSkipped   AttemptStatus = "skipped"
	AttemptCancelled AttemptStatus = "cancelled"
)

// Attempt records one path submission.
type Attempt struct {
	IntentID  string        `json:"intent_id"`
	Path      domain.Path   `json:"path"`
	Round     int           `json:"round"`
	Endpoint  string        `json:"endpoint,omitempty"`
	Signature string        `json:"signature,omitempty"`
	Status    AttemptStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`

	sub *Submission
}

// Result is the outcome of Execute.
type Result struct {
	Fill      *domain.Fill
	Attempts  []Attempt
	Duplicate bool // intent was already filled
}

// AttemptObserver is notified of every finished attempt.
type AttemptObserver func(Attempt)

// Chain is the RPC surface used to confirm and settle submissions.
type Chain interface {
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error)
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// Options configures a Router.
type Options struct {
	Config   Config
	Paths    []Submitter
	Chain    Chain
	Owner    string
	Fees     *FeeTuner
	Tips     *TipPolicy
	Pause    *AutoPause
	Observer AttemptObserver
	Logger   zerolog.Logger
}

// Router executes intents across paths.
type Router struct {
	cfg      Config
	paths    []Submitter
	chain    Chain
	owner    string
	fees     *FeeTuner
	tips     *TipPolicy
	pause    *AutoPause
	observer AttemptObserver
	log      zerolog.Logger
	now      func() time.Time
	late     chan *domain.Fill

	mu       sync.Mutex
	byIntent map[string]*domain.Fill
	bySig    map[string]*domain.Fill
	inflight map[string]bool
}

// NewRouter creates a Router. Missing tuners get default configs.
func NewRouter(opts Options) (*Router, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Paths) == 0 {
		return nil, ErrNoPaths
	}
	if opts.Fees == nil {
		opts.Fees = NewFeeTuner(opts.Config.Fee)
	}
	if opts.Tips == nil {
		opts.Tips = NewTipPolicy(opts.Config.Tip)
	}
	if opts.Pause == nil {
		opts.Pause = NewAutoPause(opts.Config.Pause, opts.Logger)
	}
	return &Router{
		cfg:      opts.Config,
		paths:    opts.Paths,
		chain:    opts.Chain,
		owner:    opts.Owner,
		fees:     opts.Fees,
		tips:     opts.Tips,
		pause:    opts.Pause,
		observer: opts.Observer,
		log:      opts.Logger.With().Str("component", "execution").Logger(),
		now:      time.Now,
		late:     make(chan *domain.Fill, 16),
		byIntent: make(map[string]*domain.Fill),
		bySig:    make(map[string]*domain.Fill),
		inflight: make(map[string]bool),
	}, nil
}

// Late delivers fills of cancelled submissions that landed anyway.
func (r *Router) Late() <-chan *domain.Fill { return r.late }

// Paused reports whether new entries are blocked and why.
func (r *Router) Paused() (bool, string) {
	ok, reason := r.pause.Allowed()
	return !ok, reason
}

// PauseStatus returns the auto-pause snapshot.
func (r *Router) PauseStatus() PauseStatus { return r.pause.Status() }

// Pause exposes the auto-pause controller.
func (r *Router) Pause() *AutoPause { return r.pause }

// Execute runs intent to a fill or to ErrExecutionFailed. An intent already
// filled returns its fill with Duplicate set.
func (r *Router) Execute(ctx context.Context, intent *domain.TradeIntent) (*Result, error) {
	if intent == nil || intent.ID == "" || intent.Token == "" || intent.AmountIn == 0 {
		return nil, ErrInvalidIntent
	}

	r.mu.Lock()
	if f, ok := r.byIntent[intent.ID]; ok {
		r.mu.Unlock()
		return &Result{Fill: f, Duplicate: true}, nil
	}
	if r.inflight[intent.ID] {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInFlight, intent.ID)
	}
	r.inflight[intent.ID] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, intent.ID)
		r.mu.Unlock()
	}()

	if !intent.Constraints.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, intent.Constraints.Deadline)
		defer cancel()
	}

	log := r.log.With().Str("intent", intent.ID).Str("token", intent.Token).Str("side", string(intent.Side)).Logger()
	res := &Result{}
	for round := 0; round <= r.cfg.MaxRetries; round++ {
		if ctx.Err() != nil {
			break
		}
		p := r.params(intent, round)
		log.Debug().Int("round", round).Int("slippage_bps", p.SlippageBps).
			Uint64("priority_fee", p.PriorityFee).Uint64("tip", p.TipLamports).Msg("execution round")

		win, attempts, orphans := r.race(ctx, intent, p, round)
		res.Attempts = append(res.Attempts, attempts...)
		if len(orphans) > 0 {
			go r.watchLate(ctx, intent, orphans)
		}
		if win != nil {
			fill := r.settle(ctx, intent, win)
			r.record(fill)
			r.fees.Record(OutcomeSuccess)
			r.pause.RecordSuccess()
			res.Fill = fill
			log.Info().Str("path", string(fill.Path)).Str("signature", fill.Signature).
				Uint64("out", fill.OutAmount).Int("round", round).Msg("intent filled")
			return res, nil
		}
		r.fees.Record(roundOutcome(attempts))
	}

	r.pause.RecordFailure()
	log.Error().Int("attempts", len(res.Attempts)).Msg("execution exhausted")
	return res, fmt.Errorf("%w: intent %s after %d attempts", domain.ErrExecutionFailed, intent.ID, len(res.Attempts))
}

func roundOutcome(attempts []Attempt) Outcome {
	for _, a := range attempts {
		if a.Status == AttemptTimeout {
			return OutcomeTimeout
		}
	}
	return OutcomeFailure
}

// params derives round parameters. Slippage climbs by SlippageStepBps per
// round up to the lower of the configured and intent ceilings. Rounds spent
// by earlier intents for the same trade count towards the escalation.
func (r *Router) params(intent *domain.TradeIntent, round int) Params {
	step := round + max(intent.PriorAttempts, 0)
	base, ceiling := r.cfg.BaseSlippageBps, r.cfg.MaxSlippageBps
	if intent.Emergency {
		base, ceiling = r.cfg.PanicBaseSlippageBps, r.cfg.PanicMaxSlippageBps
	}
	if limit := intent.Constraints.MaxSlippageBps; limit > 0 && limit < ceiling {
		ceiling = limit
	}
	slippage := min(base+step*r.cfg.SlippageStepBps, ceiling)

	fee := min(r.fees.Current()+uint64(step)*r.cfg.PriorityFeeStep, r.fees.Max())

	impact := r.cfg.MaxImpactBps
	if intent.Constraints.MaxImpactBps > 0 {
		impact = intent.Constraints.MaxImpactBps
	}
	return Params{
		Round:        round,
		PriorityFee:  fee,
		TipLamports:  r.tips.Tip(intent.Emergency, intent.Side == domain.SideBuy, step),
		SlippageBps:  slippage,
		MaxImpactBps: impact,
		Panic:        intent.Emergency,
	}
}

type outcome struct {
	idx int
	att Attempt
}

// race starts the first path, hedges with the next one on failure or after
// HedgeDelay, and stops at the first confirmed submission. It waits for
// every launched path before returning.
func (r *Router) race(ctx context.Context, intent *domain.TradeIntent, p Params, round int) (*Attempt, []Attempt, []Attempt) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan outcome, len(r.paths))
	launched := 0
	launch := func() {
		idx := launched
		launched++
		path := r.paths[idx]
		go func() {
			att := r.attempt(ctx, rctx, path, intent, p, round)
			results <- outcome{idx: idx, att: att}
		}()
	}

	launch()
	pending := 1
	hedge := time.NewTimer(r.cfg.HedgeDelay)
	defer hedge.Stop()

	var (
		winner  *Attempt
		done    []outcome
		orphans []Attempt
	)
	for pending > 0 {
		select {
		case o := <-results:
			pending--
			done = append(done, o)
			if o.att.Status == AttemptSucceeded && winner == nil {
				att := o.att
				winner = &att
				cancel()
				continue
			}
			if winner == nil && launched < len(r.paths) {
				launch()
				pending++
				hedge.Reset(r.cfg.HedgeDelay)
			}
		case <-hedge.C:
			if winner == nil && launched < len(r.paths) {
				launch()
				pending++
				hedge.Reset(r.cfg.HedgeDelay)
			}
		}
	}

	sort.Slice(done, func(i, j int) bool { return done[i].idx < done[j].idx })
	attempts := make([]Attempt, 0, len(done))
	for _, o := range done {
		switch {
		case winner != nil && o.att.Status == AttemptSucceeded && o.att.Signature != winner.Signature:
			r.log.Warn().Str("intent", intent.ID).Str("path", string(o.att.Path)).Msg("second path also landed")
			orphans = append(orphans, o.att)
		case o.att.Status != AttemptSucceeded && o.att.sub != nil && !o.att.sub.Simulated:
			// Submitted but unconfirmed: it may still land.
			orphans = append(orphans, o.att)
		}
		attempts = append(attempts, o.att)
		if r.observer != nil {
			r.observer(o.att)
		}
	}
	return winner, attempts, orphans
}

func (r *Router) attempt(parent, rctx context.Context, path Submitter, intent *domain.TradeIntent, p Params, round int) Attempt {
	att := Attempt{IntentID: intent.ID, Path: path.Path(), Round: round, Started: r.now()}
	actx, cancel := context.WithTimeout(rctx, r.cfg.AttemptTimeout)
	defer cancel()

	sub, err := path.Submit(actx, intent, p)
	if err == nil {
		att.sub = sub
		att.Endpoint = sub.Endpoint
		att.Signature = sub.Signature
		if !sub.Simulated {
			err = r.confirm(actx, sub.Signature)
		}
	}
	att.Duration = r.now().Sub(att.Started)

	switch {
	case err == nil:
		att.Status = AttemptSucceeded
	case errors.Is(err, ErrSkipped):
		att.Status = AttemptSkipped
	case rctx.Err() != nil && parent.Err() == nil:
		att.Status = AttemptCancelled
	case errors.Is(err, context.DeadlineExceeded):
		att.Status = AttemptTimeout
	case errors.Is(err, context.Canceled):
		att.Status = AttemptCancelled
	default:
		att.Status = AttemptFailed
	}
	if err != nil {
		att.Error = err.Error()
	}
	return att
}

// confirm polls until sig lands, fails on chain or ctx ends.
func (r *Router) confirm(ctx context.Context, sig string) error {
	if r.chain == nil {
		return nil
	}
	ticker := time.NewTicker(r.cfg.ConfirmPoll)
	defer ticker.Stop()
	for {
		statuses, err := r.chain.GetSignatureStatuses(ctx, []string{sig})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %v", ErrTxFailed, st.Err)
			}
			if st.Landed() {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// settle turns a confirmed attempt into a fill, reading actual balance
// changes when the transaction can be fetched and quoted amounts otherwise.
func (r *Router) settle(ctx context.Context, intent *domain.TradeIntent, win *Attempt) *domain.Fill {
	sub := win.sub
	fill := &domain.Fill{
		IntentID:    intent.ID,
		Token:       intent.Token,
		Side:        intent.Side,
		InAmount:    intent.AmountIn,
		OutAmount:   sub.ExpectedOut,
		Path:        win.Path,
		Endpoint:    sub.Endpoint,
		FeeLamports: sub.FeeLamports,
		TipLamports: sub.TipLamports,
		Signature:   sub.Signature,
		Timestamp:   r.now(),
	}

	if !sub.Simulated && r.chain != nil && r.owner != "" {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SettleTimeout)
		tx := r.fetch(sctx, sub.Signature)
		cancel()
		if d, ok := solana.OwnerDelta(tx, r.owner, intent.Token); ok {
			fill.FeeLamports = d.Fee
			switch intent.Side {
			case domain.SideBuy:
				if d.Tokens.Sign() > 0 && d.Tokens.IsUint64() {
					fill.OutAmount = d.Tokens.Uint64()
				}
			case domain.SideSell:
				if got := d.Lamports + int64(d.Fee); got > 0 {
					fill.OutAmount = uint64(got)
				}
			}
		} else {
			r.log.Warn().Str("signature", sub.Signature).Msg("settling from quote, transaction not available")
		}
	}
	fill.Price = FillPrice(fill)
	return fill
}

func (r *Router) fetch(ctx context.Context, sig string) *solana.Transaction {
	ticker := time.NewTicker(r.cfg.ConfirmPoll)
	defer ticker.Stop()
	for {
		tx, err := r.chain.GetTransaction(ctx, sig)
		if err == nil && tx != nil {
			return tx
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// FillPrice is lamports per raw token unit.
func FillPrice(f *domain.Fill) decimal.Decimal {
	lamports, tokens := f.InAmount, f.OutAmount
	if f.Side == domain.SideSell {
		lamports, tokens = f.OutAmount, f.InAmount
	}
	if tokens == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(lamports)).Div(decimal.NewFromInt(int64(tokens)))
}

func (r *Router) record(f *domain.Fill) {
	r.mu.Lock()
	r.byIntent[f.IntentID] = f
	r.bySig[f.Signature] = f
	r.mu.Unlock()
}

// RecordLate registers a fill that landed after its attempt was abandoned.
// It returns false when the signature is already known.
func (r *Router) RecordLate(f *domain.Fill) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySig[f.Signature]; ok {
		return false
	}
	r.bySig[f.Signature] = f
	if _, ok := r.byIntent[f.IntentID]; !ok {
		r.byIntent[f.IntentID] = f
	}
	return true
}

// watchLate follows submissions that were sent but not confirmed in their
// attempt (cancelled, timed out or failed) for LateWatch and reports any
// that land on Late.
func (r *Router) watchLate(ctx context.Context, intent *domain.TradeIntent, orphans []Attempt) {
	if r.chain == nil || r.cfg.LateWatch <= 0 {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.LateWatch)
	defer cancel()
	for _, a := range orphans {
		if a.sub == nil || a.sub.Simulated {
			continue
		}
		if err := r.confirm(wctx, a.Signature); err != nil {
			continue
		}
		fill := r.settle(wctx, intent, &a)
		if !r.RecordLate(fill) {
			continue
		}
		r.log.Warn().Str("intent", intent.ID).Str("signature", fill.Signature).Msg("late fill landed")
		select {
		case r.late <- fill:
		default:
			r.log.Error().Str("signature", fill.Signature).Msg("late fill dropped, channel full")
		}
	}
}
