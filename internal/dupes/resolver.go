// Package dupes implementa la resolución de cuentas duplicadas: grupos de
// candidatos que comparten email se cruzan contra Auth0 (fuente autoritativa,
// consultada al momento de resolver) para decidir cuál conservar.
package dupes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/mudanza/internal/auth0"
	"github.com/dropDatabas3/mudanza/internal/dispatch"
	"github.com/dropDatabas3/mudanza/internal/domain/types"
	"github.com/dropDatabas3/mudanza/internal/ledger"
	"github.com/dropDatabas3/mudanza/internal/metrics"
	"github.com/dropDatabas3/mudanza/internal/observability/logger"
)

// Action es la disposición de un grupo. Cada decisión va a EXACTAMENTE uno de
// los tres sinks, elegido solo por la acción.
type Action string

const (
	ActionKeep         Action = "keep"
	ActionManualReview Action = "manual_review"
	ActionSkip         Action = "skip"
)

// Decision es el veredicto de un grupo de email. Se escribe una sola vez.
type Decision struct {
	Email  string `json:"email"`
	Action Action `json:"action"`
	// Duplicates lista TODOS los candidatos del grupo, sea cual sea la acción.
	Duplicates []Candidate `json:"duplicates"`
	// Chosen está presente sii action ∈ {keep, manual_review}. Para
	// manual_review es una sugerencia: el humano confirma.
	Chosen               *Candidate  `json:"chosenCandidate,omitempty"`
	Auth0Account         *auth0.User `json:"auth0Account,omitempty"`
	Reason               string      `json:"reason"`
	RequiresManualReview bool        `json:"requiresManualReview"`
}

// Summary es el objeto terminal del batch.
type Summary struct {
	TotalEmails int `json:"totalEmails"`
	Actions     struct {
		Keep         int `json:"keep"`
		ManualReview int `json:"manual_review"`
		Skip         int `json:"skip"`
	} `json:"actions"`
}

// Sinks son los tres destinos disjuntos de decisiones.
type Sinks struct {
	Keep         *ledger.Writer
	ManualReview *ledger.Writer
	Skip         *ledger.Writer
}

func (s Sinks) forAction(a Action) *ledger.Writer {
	switch a {
	case ActionKeep:
		return s.Keep
	case ActionManualReview:
		return s.ManualReview
	default:
		return s.Skip
	}
}

// Params fija el batch de resolución (mismo patrón dispatch/backoff que la
// migración).
type Params struct {
	Concurrency       int
	DefaultRetryAfter time.Duration
	MaxRetries        int
	RunID             string
}

// Resolver corre el batch de resolución.
type Resolver struct {
	a0    *auth0.Client
	p     Params
	sinks Sinks
	log   *zap.Logger
}

func NewResolver(a0 *auth0.Client, p Params, sinks Sinks) *Resolver {
	return &Resolver{
		a0:    a0,
		p:     p,
		sinks: sinks,
		log:   logger.With(logger.Component("dupes"), logger.RunID(p.RunID)),
	}
}

// Run procesa todos los grupos bajo el tope de concurrencia, con el mismo
// protocolo de backoff ante rate limits de Auth0, y retorna el summary.
func (r *Resolver) Run(ctx context.Context, groups []Group) (*Summary, error) {
	var keep, review, skip atomic.Int64

	var fatalMu sync.Mutex
	var fatalErr error
	setFatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
	}
	fatal := func() error {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		return fatalErr
	}

	d := dispatch.New(ctx, r.p.Concurrency, dispatch.WithActiveGauge(func(n int) {
		metrics.ActiveTasks.Set(float64(n))
	}))
	b := dispatch.NewBackoff(d, r.p.DefaultRetryAfter, dispatch.WithPauseHook(func() {
		metrics.RateLimitPauses.Inc()
	}))

	r.log.Info("duplicate resolution started", logger.Count(len(groups)))

	for _, g := range groups {
		if fatal() != nil {
			break
		}
		d.WaitUntilBelow(r.p.Concurrency)
		r.submit(d, b, g, &keep, &review, &skip, setFatal)
	}
	d.DrainToIdle()

	if err := fatal(); err != nil {
		return nil, err
	}

	sum := &Summary{TotalEmails: len(groups)}
	sum.Actions.Keep = int(keep.Load())
	sum.Actions.ManualReview = int(review.Load())
	sum.Actions.Skip = int(skip.Load())

	r.log.Info("duplicate resolution finished",
		logger.Int("total_emails", sum.TotalEmails),
		logger.Int("keep", sum.Actions.Keep),
		logger.Int("manual_review", sum.Actions.ManualReview),
		logger.Int("skip", sum.Actions.Skip))
	return sum, nil
}

func (r *Resolver) submit(d *dispatch.Dispatcher, b *dispatch.Backoff, g Group, keep, review, skip *atomic.Int64, setFatal func(error)) {
	attempts := 0
	var t dispatch.Task
	t = func(ctx context.Context) {
		users, err := r.a0.UsersByEmail(ctx, g.Email)
		if err != nil {
			rl, ok := types.AsRateLimit(err)
			if !ok {
				setFatal(fmt.Errorf("group %s: %w", g.Email, err))
				return
			}
			attempts++
			if r.p.MaxRetries > 0 && attempts > r.p.MaxRetries {
				setFatal(fmt.Errorf("group %s: gave up after %d rate-limited attempts", g.Email, attempts))
				return
			}
			b.Throttle(t, rl.RetryAfter)
			return
		}

		dec := Resolve(g, users)
		if err := r.sinks.forAction(dec.Action).Append(dec); err != nil {
			setFatal(err)
			return
		}
		metrics.Decisions.WithLabelValues(string(dec.Action)).Inc()
		switch dec.Action {
		case ActionKeep:
			keep.Add(1)
		case ActionManualReview:
			review.Add(1)
		case ActionSkip:
			skip.Add(1)
		}
		r.log.Debug("group resolved",
			logger.Email(g.Email),
			logger.Action(string(dec.Action)),
			logger.String("reason", dec.Reason))
	}
	d.Submit(t)
}

// Resolve es la política de decisión pura sobre un grupo y el resultado de la
// consulta autoritativa. Determinista: mismo input, misma decisión.
func Resolve(g Group, authoritative []auth0.User) Decision {
	byID := make(map[string]*auth0.User, len(authoritative))
	for i := range authoritative {
		byID[authoritative[i].UserID] = &authoritative[i]
	}

	// Sobrevivientes: candidatos cuyo auth0Sub todavía existe upstream.
	// Conserva el orden de entrada.
	var survivors []Candidate
	for _, c := range g.Candidates {
		if _, ok := byID[c.Auth0Sub]; ok {
			survivors = append(survivors, c)
		}
	}

	dec := Decision{Email: g.Email, Duplicates: g.Candidates}

	switch len(survivors) {
	case 0:
		dec.Action = ActionSkip
		dec.Reason = "all accounts deleted upstream"
	case 1:
		dec.Action = ActionKeep
		dec.Chosen = &survivors[0]
		dec.Auth0Account = byID[survivors[0].Auth0Sub]
		dec.Reason = "single surviving account"
	default:
		// Orden sugerido: login count desc; empate por last_login desc, y una
		// cuenta con timestamp siempre arriba de una sin. sort estable ⇒ los
		// empates totales conservan el orden de entrada.
		sort.SliceStable(survivors, func(i, j int) bool {
			a, b := byID[survivors[i].Auth0Sub], byID[survivors[j].Auth0Sub]
			if a.LoginsCount != b.LoginsCount {
				return a.LoginsCount > b.LoginsCount
			}
			switch {
			case a.LastLogin != nil && b.LastLogin == nil:
				return true
			case a.LastLogin == nil && b.LastLogin != nil:
				return false
			case a.LastLogin == nil && b.LastLogin == nil:
				return false
			default:
				return a.LastLogin.After(*b.LastLogin)
			}
		})
		dec.Action = ActionManualReview
		dec.RequiresManualReview = true
		dec.Chosen = &survivors[0]
		dec.Auth0Account = byID[survivors[0].Auth0Sub]
		dec.Reason = fmt.Sprintf("%d accounts survive, manual review required", len(survivors))
	}
	return dec
}
