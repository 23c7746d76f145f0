// Package migration rewrites legacy-shaped documents into the current
// shape. Detection is structural, every rewrite carries a version
// precondition and re-checks the predicate first, so runs can be repeated
// or interrupted at any point.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Domenick1991/charterbooking/internal/apperr"
	"github.com/Domenick1991/charterbooking/internal/clock"
	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/domain"
)

type Kind string

const (
	KindQuoteRequests Kind = domain.CollectionQuoteRequests
	KindQuotes        Kind = domain.CollectionQuotes
	KindBookings      Kind = domain.CollectionBookings
	KindInvoices      Kind = domain.CollectionInvoices
)

// Kinds lists the migratable collections.
func Kinds() []Kind {
	return []Kind{KindQuoteRequests, KindQuotes, KindBookings, KindInvoices}
}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", apperr.Validation("parse migration kind", "unknown kind %q", s)
}

// Mutex keeps a single migration runner per kind.
type Mutex interface {
	Lock(ctx context.Context, name string) (func(context.Context) error, error)
}

type ReportCache interface {
	GetReport(ctx context.Context, kind string) (*domain.MigrationProgress, error)
	SetReport(ctx context.Context, p domain.MigrationProgress) error
	InvalidateReport(ctx context.Context, kind string) error
}

const (
	defaultBatchSize   = 100
	defaultCooldown    = time.Second
	defaultConcurrency = 8
	defaultCurrency    = "ZAR"
	defaultRequestTTL  = 24 * time.Hour
)

var defaultCommissionRate = decimal.RequireFromString("0.03")

type Engine struct {
	store docstore.Store
	clock clock.Clock
	log   *zap.Logger
	mutex Mutex
	cache ReportCache

	batchSize      int
	cooldown       time.Duration
	concurrency    int
	commissionRate decimal.Decimal
	currency       string
	requestTTL     time.Duration
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.cooldown = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithMutex(m Mutex) Option {
	return func(e *Engine) { e.mutex = m }
}

func WithReportCache(c ReportCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithCommissionRate sets the rate used to backfill offer commissions.
func WithCommissionRate(rate decimal.Decimal) Option {
	return func(e *Engine) { e.commissionRate = rate }
}

func WithCurrency(code string) Option {
	return func(e *Engine) {
		if code != "" {
			e.currency = code
		}
	}
}

func WithRequestTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.requestTTL = d
		}
	}
}

func NewEngine(store docstore.Store, c clock.Clock, opts ...Option) *Engine {
	if c == nil {
		c = clock.Real{}
	}
	e := &Engine{
		store:          store,
		clock:          c,
		log:            zap.NewNop(),
		batchSize:      defaultBatchSize,
		cooldown:       defaultCooldown,
		concurrency:    defaultConcurrency,
		commissionRate: defaultCommissionRate,
		currency:       defaultCurrency,
		requestTTL:     defaultRequestTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// RunReport summarizes one MigrateAll run.
type RunReport struct {
	Kind     Kind      `json:"kind"`
	Scanned  int       `json:"scanned"`
	Migrated int       `json:"migrated"`
	Current  int       `json:"current"`
	Failed   int       `json:"failed"`
	Batches  int       `json:"batches"`
	Failures []Failure `json:"failures"`
}

func (r *RunReport) fail(id string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{ID: id, Error: err.Error()})
}

// MigrateOne migrates a single document. It reports false when the
// document already has the current shape.
func (e *Engine) MigrateOne(ctx context.Context, kind Kind, id string) (bool, error) {
	const op = "migrate one"
	doc, err := e.store.Get(ctx, string(kind), id)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, apperr.Wrap(apperr.KindNotFound, op, err)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !IsLegacy(kind, doc) {
		return false, nil
	}
	patch, err := e.Transform(ctx, kind, doc)
	if err != nil {
		return false, apperr.Wrap(apperr.KindMigrationFailure, op, err)
	}
	if err := e.store.Update(ctx, string(kind), id, patch); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return false, apperr.Wrap(apperr.KindConflict, op, err)
		}
		return false, apperr.Wrap(apperr.KindMigrationFailure, op, err)
	}
	e.invalidate(ctx, kind)
	e.log.Info("document migrated", zap.String("kind", string(kind)), zap.String("id", id))
	return true, nil
}

// MigrateAll walks the collection in id order, one batch at a time: fetch,
// transform the legacy documents concurrently, commit the batch, cool down.
func (e *Engine) MigrateAll(ctx context.Context, kind Kind) (RunReport, error) {
	const op = "migrate all"
	report := RunReport{Kind: kind, Failures: []Failure{}}

	if e.mutex != nil {
		unlock, err := e.mutex.Lock(ctx, string(kind))
		if err != nil {
			return report, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				e.log.Warn("release migration lock", zap.String("kind", string(kind)), zap.Error(err))
			}
		}()
	}

	after := ""
	for {
		docs, err := e.store.Query(ctx, string(kind), docstore.Query{Limit: e.batchSize, AfterID: after})
		if err != nil {
			return report, fmt.Errorf("%s: fetch %s: %w", op, kind, err)
		}
		if len(docs) == 0 {
			break
		}
		report.Batches++
		report.Scanned += len(docs)
		after = docID(docs[len(docs)-1])

		migrated := report.Migrated
		if err := e.runBatch(ctx, kind, docs, &report); err != nil {
			return report, err
		}
		// Progress polled mid-run must see each committed batch.
		if report.Migrated > migrated {
			e.invalidate(ctx, kind)
		}
		if len(docs) < e.batchSize {
			break
		}
		if err := e.clock.Sleep(ctx, e.cooldown); err != nil {
			return report, err
		}
	}

	e.log.Info("migration finished",
		zap.String("kind", string(kind)),
		zap.Int("scanned", report.Scanned),
		zap.Int("migrated", report.Migrated),
		zap.Int("failed", report.Failed),
		zap.Int("batches", report.Batches),
	)
	return report, nil
}

type planned struct {
	id    string
	patch docstore.Patch
	err   error
	skip  bool
}

func (e *Engine) runBatch(ctx context.Context, kind Kind, docs []docstore.Document, report *RunReport) error {
	plans := make([]planned, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, doc := range docs {
		i, doc := i, doc
		plans[i].id = docID(doc)
		if !IsLegacy(kind, doc) {
			plans[i].skip = true
			continue
		}
		g.Go(func() error {
			patch, err := e.Transform(gctx, kind, doc)
			plans[i].patch, plans[i].err = patch, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var (
		ops []docstore.Operation
		ids []string
	)
	for _, p := range plans {
		switch {
		case p.skip:
			report.Current++
		case p.err != nil:
			report.fail(p.id, apperr.Wrap(apperr.KindMigrationFailure, "transform", p.err))
			e.log.Warn("transform failed", zap.String("kind", string(kind)), zap.String("id", p.id), zap.Error(p.err))
		default:
			ops = append(ops, docstore.Update(string(kind), p.id, p.patch))
			ids = append(ids, p.id)
		}
	}
	if len(ops) == 0 {
		return nil
	}

	err := e.store.CommitBatch(ctx, ops)
	if err == nil {
		report.Migrated += len(ops)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// One bad document fails the whole batch; retry each on its own.
	e.log.Warn("batch commit failed, retrying per document", zap.String("kind", string(kind)), zap.Error(err))
	for i, o := range ops {
		if err := e.store.Update(ctx, o.Collection, o.ID, o.Patch); err != nil {
			report.fail(ids[i], apperr.Wrap(apperr.KindMigrationFailure, "commit", err))
			continue
		}
		report.Migrated++
	}
	return nil
}

// Report classifies every document of kind. Cached reports are served
// until a migration invalidates them or they expire.
func (e *Engine) Report(ctx context.Context, kind Kind) (domain.MigrationProgress, error) {
	if e.cache != nil {
		cached, err := e.cache.GetReport(ctx, string(kind))
		if err != nil {
			e.log.Warn("read cached report", zap.String("kind", string(kind)), zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	p := domain.MigrationProgress{Kind: string(kind)}
	after := ""
	for {
		docs, err := e.store.Query(ctx, string(kind), docstore.Query{Limit: e.batchSize, AfterID: after})
		if err != nil {
			return p, fmt.Errorf("report %s: %w", kind, err)
		}
		for _, doc := range docs {
			p.Total++
			if IsLegacy(kind, doc) {
				p.Legacy++
			}
		}
		if len(docs) < e.batchSize {
			break
		}
		after = docID(docs[len(docs)-1])
	}
	p.Comprehensive = p.Total - p.Legacy
	p.ProgressPercent = progressPercent(p.Comprehensive, p.Total)
	p.GeneratedAt = e.clock.Now()

	if e.cache != nil {
		if err := e.cache.SetReport(ctx, p); err != nil {
			e.log.Warn("cache report", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	return p, nil
}

// progressPercent is comprehensive/total as a percentage with two
// decimals. An empty collection is fully migrated.
func progressPercent(comprehensive, total int) float64 {
	if total == 0 {
		return 100
	}
	return decimal.NewFromInt(int64(comprehensive)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}

func (e *Engine) invalidate(ctx context.Context, kind Kind) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateReport(context.WithoutCancel(ctx), string(kind)); err != nil {
		e.log.Warn("invalidate report", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func docID(doc docstore.Document) string {
	id, _ := doc[docstore.IDField].(string)
	return id
}
