// Package sandbox runs read-only SQL on a fixed pool of worker goroutines,
// each pinning one connection per database, under a per-query time limit.
package sandbox

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joe-ervin05/litebrowse/tools"
	"github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("sandbox is closed")

// Opener opens a read-only connection pool for a named database.
type Opener interface {
	Open(name string) (*sql.DB, error)
}

// Options configures a Pool.
type Options struct {
	Workers   int           // Number of worker goroutines, at least 1
	TimeLimit time.Duration // Default per-query limit
	Logger    *slog.Logger
}

// Request is one statement to run.
type Request struct {
	Database   string
	SQL        string
	Params     map[string]any // Bound by name
	TimeLimit  time.Duration  // Zero uses the pool default
	TruncateAt int            // Keep at most this many rows; zero keeps all
}

// Result holds the rows of a finished statement.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]Cell `json:"rows"`
	Truncated bool     `json:"truncated"`
}

type jobResult struct {
	res *Result
	err error
}

type job struct {
	ctx  context.Context
	req  Request
	done chan jobResult
}

// Pool dispatches requests to its workers.
type Pool struct {
	opener    Opener
	timeLimit time.Duration
	logger    *slog.Logger

	jobs   chan *job
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu          sync.Mutex
	generations map[string]uint64
}

// New starts the workers.
func New(opener Opener, opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = tools.Logger
	}

	p := &Pool{
		opener:      opener,
		timeLimit:   opts.TimeLimit,
		logger:      opts.Logger,
		jobs:        make(chan *job),
		closed:      make(chan struct{}),
		generations: make(map[string]uint64),
	}
	for i := 0; i < opts.Workers; i++ {
		w := &worker{id: i, pool: p, conns: make(map[string]*pinned)}
		p.wg.Add(1)
		go w.loop()
	}
	return p
}

// TimeLimit is the default per-query limit.
func (p *Pool) TimeLimit() time.Duration {
	return p.timeLimit
}

// Execute runs req on the next free worker.
func (p *Pool) Execute(ctx context.Context, req Request) (*Result, error) {
	j := &job{ctx: ctx, req: req, done: make(chan jobResult, 1)}

	select {
	case p.jobs <- j:
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.done:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset makes every worker reopen its connection to db before its next use.
func (p *Pool) Reset(db string) {
	p.mu.Lock()
	p.generations[db]++
	p.mu.Unlock()
	p.logger.Debug("sandbox connections reset", "database", db)
}

func (p *Pool) generation(db string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generations[db]
}

// Close stops the workers and closes their connections.
func (p *Pool) Close() error {
	p.once.Do(func() { close(p.closed) })
	p.wg.Wait()
	return nil
}

// pinned is a worker's connection to one database.
type pinned struct {
	db   *sql.DB
	conn *sql.Conn
	gen  uint64
}

func (c *pinned) close() {
	c.conn.Close()
	c.db.Close()
}

type worker struct {
	id    int
	pool  *Pool
	conns map[string]*pinned
}

func (w *worker) loop() {
	defer w.pool.wg.Done()
	defer func() {
		for _, c := range w.conns {
			c.close()
		}
	}()

	for {
		select {
		case <-w.pool.closed:
			return
		case j := <-w.pool.jobs:
			res, err := w.run(j.ctx, j.req)
			j.done <- jobResult{res, err}
		}
	}
}

// conn returns the worker's connection to name, reopening it when the pool
// generation moved on.
func (w *worker) conn(ctx context.Context, name string) (*sql.Conn, error) {
	gen := w.pool.generation(name)
	if c, ok := w.conns[name]; ok {
		if c.gen == gen {
			return c.conn, nil
		}
		c.close()
		delete(w.conns, name)
	}

	db, err := w.pool.opener.Open(name)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	w.conns[name] = &pinned{db: db, conn: conn, gen: gen}
	return conn, nil
}

func (w *worker) drop(name string) {
	if c, ok := w.conns[name]; ok {
		c.close()
		delete(w.conns, name)
	}
}

func (w *worker) run(ctx context.Context, req Request) (*Result, error) {
	limit := req.TimeLimit
	if limit <= 0 {
		limit = w.pool.timeLimit
	}
	// only the time limit stops a running statement
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), limit)
	defer cancel()

	conn, err := w.conn(qctx, req.Database)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := query(qctx, conn, req)
	if err != nil {
		if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
			w.drop(req.Database)
		}
		return nil, classify(qctx, req.SQL, err)
	}

	w.pool.logger.Debug("query finished",
		"worker", w.id,
		"database", req.Database,
		"rows", len(res.Rows),
		"truncated", res.Truncated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func query(ctx context.Context, conn *sql.Conn, req Request) (*Result, error) {
	rows, err := conn.QueryContext(ctx, req.SQL, namedArgs(req.Params)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: cols, Rows: [][]Cell{}}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if req.TruncateAt > 0 && len(res.Rows) == req.TruncateAt {
			res.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]Cell, len(cols))
		for i, v := range values {
			row[i] = CellOf(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// namedArgs binds params by name in a stable order.
func namedArgs(params map[string]any) []any {
	if len(params) == 0 {
		return nil
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, len(names))
	for i, name := range names {
		args[i] = sql.Named(name, params[name])
	}
	return args
}

// classify maps a driver error to the public taxonomy.
func classify(qctx context.Context, statement string, err error) error {
	if IsInterrupt(err) || qctx.Err() != nil {
		return tools.QueryInterruptedErr(statement)
	}
	return tools.QueryErr(err)
}

// IsInterrupt reports whether err came from a query stopped at its deadline.
func IsInterrupt(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, tools.ErrQueryInterrupted) {
		return true
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrInterrupt
	}
	return false
}
