package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"settleflow/internal/cache"
	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/services"
)

type (
	// CashflowAggregator builds monthly cashflow reports.
	CashflowAggregator interface {
		Aggregate(ctx context.Context, q services.CashflowQuery) (*core.CashflowReport, error)
		Location() *time.Location
	}

	SalesReporter interface {
		DailySales(ctx context.Context, from, to time.Time) ([]core.DailyAmount, error)
	}

	GapAuditor interface {
		MissingSettlements(ctx context.Context) ([]core.SettlementGap, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Deps are the services behind the routes.
type Deps struct {
	Cashflow CashflowAggregator
	Sales    SalesReporter
	Audit    GapAuditor
	Store    Pinger
}

// Options tune the server. Zero values take the defaults.
type Options struct {
	RequestsPerMinute int
	CacheSize         int
	CacheTTL          time.Duration
	SalesWindowDays   int
	ReadTimeout       time.Duration
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CacheSize <= 0 {
		o.CacheSize = 100
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Minute
	}
	if o.SalesWindowDays <= 0 {
		o.SalesWindowDays = 30
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 15 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Server struct {
	http.Server
	deps    Deps
	opts    Options
	logger  *log.Logger
	limiter *rateLimiter
	metrics *securityMetrics

	reports      *cache.LRUCache[*core.CashflowReport]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures the routes and returns a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options, logger *log.Logger) *Server {
	opts = opts.withDefaults()
	logger = log.OrDefault(logger, log.ComponentHTTP)

	s := &Server{
		deps:         deps,
		opts:         opts,
		logger:       logger,
		limiter:      newRateLimiter(opts.RequestsPerMinute),
		metrics:      &securityMetrics{},
		reports:      cache.NewLRUCache[*core.CashflowReport](opts.CacheSize, opts.CacheTTL),
		cacheManager: cache.NewManager(logger),
	}
	s.cacheManager.Register(s.reports)

	api := http.NewServeMux()
	api.HandleFunc("/api/cashflow", s.handleCashflow)
	api.HandleFunc("/api/settlements/gaps", s.handleGaps)
	api.HandleFunc("/api/sales/daily", s.handleDailySales)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/", s.limiter.middleware(s.metrics)(api))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           log.Middleware(logger)(withSecurityHeaders(mux)),
		ReadHeaderTimeout: opts.ReadTimeout,
		ReadTimeout:       opts.ReadTimeout,
	}
	return s
}

// Start launches the background cleanup loops. ListenAndServe is left to the caller.
func (s *Server) Start() {
	s.limiter.start()
	s.cacheManager.StartCleanup(10 * time.Minute)
}

// Shutdown stops the cleanup loops and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		s.cacheManager.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(ctx, "Health check failed", log.FieldError, err)
			ServiceUnavailableError("store unavailable").Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

type binJSON struct {
	Month      string          `json:"month"`
	Label      string          `json:"label"`
	Left       time.Time       `json:"left"`
	Right      time.Time       `json:"right"`
	Capex      decimal.Decimal `json:"capex"`
	Opex       decimal.Decimal `json:"opex"`
	Total      decimal.Decimal `json:"total"`
	Cumulative decimal.Decimal `json:"cumulative"`
	Count      int             `json:"count"`
}

type recordJSON struct {
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Class       string          `json:"class"`
	Source      string          `json:"source"`
	Description string          `json:"description,omitempty"`
}

type cashflowJSON struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Class    string          `json:"class"`
	Total    decimal.Decimal `json:"total"`
	Unbinned int             `json:"unbinned"`
	Bins     []binJSON       `json:"bins"`
	Records  []recordJSON    `json:"records,omitempty"`
}

func newCashflowJSON(rep *core.CashflowReport, withRecords bool) cashflowJSON {
	out := cashflowJSON{
		From:     rep.From,
		To:       rep.To,
		Class:    string(rep.Class),
		Total:    rep.Total,
		Unbinned: rep.Unbinned,
		Bins:     make([]binJSON, len(rep.Bins)),
	}
	for i, b := range rep.Bins {
		out.Bins[i] = binJSON{
			Month:      b.Bin.Key(),
			Label:      b.Bin.Label(),
			Left:       b.Bin.Left,
			Right:      b.Bin.Right,
			Capex:      b.Capex,
			Opex:       b.Opex,
			Total:      b.Total,
			Cumulative: b.Cumulative,
			Count:      b.Count,
		}
	}
	if withRecords {
		out.Records = make([]recordJSON, len(rep.Records))
		for i, r := range rep.Records {
			out.Records[i] = recordJSON{
				Date:        r.Date,
				Amount:      r.Amount,
				Class:       string(r.Class),
				Source:      string(r.Source),
				Description: r.Description,
			}
		}
	}
	return out
}

func (s *Server) handleCashflow(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	query := r.URL.Query()
	rng, err := ParseRangeParams(query, s.deps.Cashflow.Location())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	class, err := ParseClassParam(query)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx := r.Context()
	logger := log.FromContext(ctx)
	key := reportKey(rng, class)
	rep, ok := s.reports.Get(key)
	if ok {
		logger.DebugContext(ctx, "Cashflow cache hit", log.FieldClass, class)
	} else {
		rep, err = s.deps.Cashflow.Aggregate(ctx, services.CashflowQuery{From: rng.From, To: rng.To, Class: class})
		if err != nil {
			logger.ErrorContext(ctx, "Cashflow report failed", log.FieldError, err, log.FieldClass, class)
			FromError(err).Write(w)
			return
		}
		s.reports.Set(key, rep)
	}
	withRecords := strings.EqualFold(query.Get("records"), "true")
	NewResponse().JSON(newCashflowJSON(rep, withRecords)).Write(w)
}

// reportKey identifies a cached report. Open bounds are keyed as such and
// age out with the cache TTL.
func reportKey(rng RangeParams, class core.ClassFilter) string {
	bound := func(t *time.Time) string {
		if t == nil {
			return "open"
		}
		return t.Format(time.RFC3339Nano)
	}
	return string(class) + "|" + bound(rng.From) + "|" + bound(rng.To)
}

type gapJSON struct {
	AfterID  int64     `json:"after_id"`
	BeforeID int64     `json:"before_id"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Overlap  bool      `json:"overlap"`
}

func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	gaps, err := s.deps.Audit.MissingSettlements(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Settlement audit failed", log.FieldError, err)
		FromError(err).Write(w)
		return
	}
	out := make([]gapJSON, len(gaps))
	for i, g := range gaps {
		out[i] = gapJSON{AfterID: g.AfterID, BeforeID: g.BeforeID, From: g.From, To: g.To, Overlap: g.Overlap()}
	}
	NewResponse().JSON(map[string]any{"count": len(out), "gaps": out}).Write(w)
}

type dailyJSON struct {
	Day    string          `json:"day"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleDailySales(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	rng, err := ParseRangeParams(r.URL.Query(), s.deps.Cashflow.Location())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	to := s.opts.Now()
	if rng.To != nil {
		to = *rng.To
	}
	from := to.AddDate(0, 0, -(s.opts.SalesWindowDays - 1))
	if rng.From != nil {
		from = *rng.From
	}

	days, err := s.deps.Sales.DailySales(r.Context(), from, to)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Daily sales failed", log.FieldError, err)
		FromError(err).Write(w)
		return
	}
	out := make([]dailyJSON, len(days))
	total := decimal.Zero
	for i, d := range days {
		out[i] = dailyJSON{Day: d.Day.Format(time.DateOnly), Amount: d.Amount}
		total = total.Add(d.Amount)
	}
	NewResponse().JSON(map[string]any{"days": out, "total": total}).Write(w)
}
