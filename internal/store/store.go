package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// DefaultCharset is the connection character set used for MySQL.
const DefaultCharset = "utf8mb4"

func init() {
	// sqlx only knows the cgo driver name "sqlite3".
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config holds the options recognized when acquiring a connection.
// Path is used by sqlite; Host, Name, User, Password and Charset by mysql.
type Config struct {
	Driver   string
	Path     string
	Host     string
	Name     string
	User     string
	Password string
	Charset  string
}

func (c Config) target() string {
	if c.Driver == DriverMySQL {
		return c.Host + "/" + c.Name
	}
	return c.Path
}

func (c Config) dsn() (string, error) {
	switch c.Driver {
	case DriverSQLite, "":
		if strings.TrimSpace(c.Path) == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		return c.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	case DriverMySQL:
		if c.Host == "" || c.Name == "" || c.User == "" {
			return "", fmt.Errorf("mysql host, database name and username are required")
		}
		charset := c.Charset
		if charset == "" {
			charset = DefaultCharset
		}
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = c.Host
		mc.DBName = c.Name
		mc.User = c.User
		mc.Passwd = c.Password
		mc.ParseTime = true
		mc.Loc = time.UTC
		// Zero-row updates are reported as failures, so count matched rows
		// instead of changed ones.
		mc.ClientFoundRows = true
		mc.Params = map[string]string{"charset": charset}
		return mc.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", c.Driver)
	}
}

// Option configures a Store or a repository.
type Option func(*options)

type options struct {
	now func() time.Time
	log *slog.Logger
}

// WithClock sets the clock used for creation timestamps and for deciding
// whether an evaluation is active.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used by the store and its repositories.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store owns the shared database handle and the three entity repositories
// built on top of it.
type Store struct {
	db      *sqlx.DB
	dialect dialect
	opts    options

	evaluations  *EvaluationRepository
	questions    *QuestionRepository
	alternatives *AlternativeRepository
}

// Open acquires a connection for cfg, verifies it and applies pending
// migrations. A failure to reach the database is reported as a
// *ConnectionError.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, &ConnectionError{Driver: cfg.Driver, Target: cfg.target(), Err: err}
	}

	db, err := sqlx.Open(d.driverName, dsn)
	if err != nil {
		return nil, &ConnectionError{Driver: cfg.Driver, Target: cfg.target(), Err: err}
	}
	if cfg.Driver == DriverSQLite && strings.HasPrefix(cfg.Path, ":memory:") {
		// Every new connection would see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Driver: cfg.Driver, Target: cfg.target(), Err: err}
	}

	s := New(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.opts.log.Info("opened database", "driver", cfg.Driver, "target", cfg.target())
	return s, nil
}

// New wraps an already opened handle. It does not run migrations.
func New(db *sqlx.DB, opts ...Option) *Store {
	d, err := dialectFor(db.DriverName())
	if err != nil {
		d = sqliteDialect
	}
	s := &Store{db: db, dialect: d, opts: newOptions(opts)}
	s.evaluations = NewEvaluationRepository(db, opts...)
	s.questions = NewQuestionRepository(db, opts...)
	s.alternatives = NewAlternativeRepository(db, opts...)
	return s
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the shared handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Evaluations returns the evaluation repository.
func (s *Store) Evaluations() *EvaluationRepository {
	return s.evaluations
}

// Questions returns the question repository.
func (s *Store) Questions() *QuestionRepository {
	return s.questions
}

// Alternatives returns the alternative repository.
func (s *Store) Alternatives() *AlternativeRepository {
	return s.alternatives
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
