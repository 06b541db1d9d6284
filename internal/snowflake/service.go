package snowflake

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"tablekeeper/pkg/errors"
)

// DefaultTimeout bounds a single warehouse call when Config.Timeout is unset.
const DefaultTimeout = 60 * time.Second

// Service provides the read-mostly warehouse operations the catalog tools need
type Service struct {
	db        *sql.DB
	config    Config
	connected bool
	logger    *slog.Logger
	retry     *errors.RetryConfig
}

// Config holds Snowflake connection configuration
type Config struct {
	Account        string
	Username       string
	Password       string
	PrivateKeyPath string
	Database       string
	Schema         string
	Warehouse      string
	Role           string
	Timeout        time.Duration
}

// NewService creates a new Snowflake service. A nil logger discards records.
func NewService(config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	retry := errors.DefaultRetryConfig()
	retry.Logger = logger

	return &Service{
		config: config,
		logger: logger,
		retry:  retry,
	}
}

// NewServiceWithDB wraps an already open handle, for tests and callers that
// manage the pool themselves.
func NewServiceWithDB(db *sql.DB, config Config, logger *slog.Logger) *Service {
	s := NewService(config, logger)
	s.db = db
	s.connected = true
	return s
}

// DSN builds the gosnowflake connection string. Key-pair authentication is
// used when a private key path is configured.
func (s *Service) DSN() (string, error) {
	cfg := &gosnowflake.Config{
		Account:      s.config.Account,
		User:         s.config.Username,
		Password:     s.config.Password,
		Database:     s.config.Database,
		Schema:       s.config.Schema,
		Warehouse:    s.config.Warehouse,
		Role:         s.config.Role,
		LoginTimeout: s.timeout(),
	}

	if s.config.PrivateKeyPath != "" {
		key, err := loadPrivateKey(s.config.PrivateKeyPath)
		if err != nil {
			return "", err
		}
		cfg.Authenticator = gosnowflake.AuthTypeJwt
		cfg.PrivateKey = key
		cfg.Password = ""
	}

	dsn, err := gosnowflake.DSN(cfg)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid Snowflake connection parameters").
			WithContext("account", s.config.Account)
	}
	return dsn, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path) // #nosec G304 - configured key path
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileNotFound, "Failed to read private key").
			WithContext("path", path)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "Private key is not PEM encoded").
			WithContext("path", path)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to parse PKCS#8 private key").
			WithContext("path", path).
			WithSuggestions("Encrypted keys are not supported; export the key unencrypted in PKCS#8 form")
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "Private key is not an RSA key").
			WithContext("path", path)
	}
	return key, nil
}

// Connect establishes a connection to Snowflake, retrying transient failures.
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	dsn, err := s.DSN()
	if err != nil {
		return err
	}

	return errors.Retry(ctx, s.retry, func(ctx context.Context) error {
		db, err := sql.Open("snowflake", dsn)
		if err != nil {
			return errors.ConnectionError("Failed to open Snowflake connection", err).
				WithContext("account", s.config.Account).
				WithContext("warehouse", s.config.Warehouse)
		}

		db.SetMaxOpenConns(2)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(10 * time.Minute)

		pingCtx, cancel := s.withTimeout(ctx)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			db.Close()

			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "authentication") || strings.Contains(msg, "incorrect username or password") {
				return errors.New(errors.ErrCodeAuthenticationFailed, "Authentication failed").
					WithContext("user", s.config.Username).
					WithSuggestions(
						"Verify SNOWFLAKE_USER and SNOWFLAKE_PASSWORD",
						"Check if your account is locked",
						"Use SNOWFLAKE_PRIVATE_KEY_PATH for key-pair authentication",
					)
			}

			return errors.ConnectionError("Failed to connect to Snowflake", err).
				WithContext("account", s.config.Account).
				AsRecoverable()
		}

		s.logger.Debug("connected to snowflake",
			"account", s.config.Account,
			"warehouse", s.config.Warehouse,
			"database", s.config.Database)

		s.db = db
		s.connected = true
		return nil
	})
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	s.connected = false
	return nil
}

// SessionInfo describes the connected session.
type SessionInfo struct {
	User      string
	Account   string
	Version   string
	Role      string
	Warehouse string
	Database  string
	Schema    string
}

const sessionQuery = "SELECT CURRENT_USER(), CURRENT_ACCOUNT(), CURRENT_VERSION(), CURRENT_ROLE(), " +
	"CURRENT_WAREHOUSE(), CURRENT_DATABASE(), CURRENT_SCHEMA()"

// Session returns the identity and context of the current session.
func (s *Service) Session(ctx context.Context) (*SessionInfo, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var user, account, version, role, warehouse, database, schema sql.NullString
	err := s.db.QueryRowContext(ctx, sessionQuery).
		Scan(&user, &account, &version, &role, &warehouse, &database, &schema)
	if err != nil {
		return nil, errors.SQLError("Failed to read session info", sessionQuery, err)
	}

	return &SessionInfo{
		User:      user.String,
		Account:   account.String,
		Version:   version.String,
		Role:      role.String,
		Warehouse: warehouse.String,
		Database:  database.String,
		Schema:    schema.String,
	}, nil
}

// Result holds the outcome of one executed statement.
type Result struct {
	Columns []string
	// Rows holds at most the requested number of rows; NULLs are invalid
	// NullStrings.
	Rows [][]sql.NullString
	// RowCount counts every row the statement returned.
	RowCount int
	Duration time.Duration
}

// Query executes stmt and keeps up to maxRows rows of its result. A negative
// maxRows keeps every row. Statements without a result set still return the
// driver's status rows. Only ctx bounds the statement; the metadata timeout
// does not apply.
func (s *Service) Query(ctx context.Context, stmt string, maxRows int) (*Result, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, errors.SQLError("Statement failed", stmt, err)
	}
	defer rows.Close()

	result, err := collect(rows, maxRows)
	if err != nil {
		return nil, errors.SQLError("Failed to read statement result", stmt, err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func collect(rows *sql.Rows, maxRows int) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		result.RowCount++
		if maxRows < 0 || len(result.Rows) < maxRows {
			result.Rows = append(result.Rows, values)
		}
	}

	return result, rows.Err()
}

func (s *Service) ensureConnected() error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to database").
			WithSuggestions("Call Connect() before running queries")
	}
	return nil
}

func (s *Service) timeout() time.Duration {
	if s.config.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.config.Timeout
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout())
}

// ValidateConfig reports missing required connection parameters
func ValidateConfig(config Config) error {
	var missing []string
	if config.Username == "" {
		missing = append(missing, "SNOWFLAKE_USER")
	}
	if config.Password == "" && config.PrivateKeyPath == "" {
		missing = append(missing, "SNOWFLAKE_PASSWORD")
	}
	if config.Account == "" {
		missing = append(missing, "SNOWFLAKE_ACCOUNT")
	}
	if len(missing) > 0 {
		return errors.ConfigMissingError(missing)
	}
	return nil
}
