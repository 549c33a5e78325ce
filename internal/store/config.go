package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultPort            = 3306
	defaultPoolSize        = 5
)

// ErrHostEmpty is returned when a Config has no host set.
var ErrHostEmpty = errors.New("database host cannot be empty")

// Config holds MySQL connection configuration with production-ready
// defaults. Host/user/password/database/port mirror the pipeline's
// [MySQL] config-file section; PoolName is informational only (MySQL's Go
// driver has no notion of named pools, unlike the Python connector this
// pipeline replaces).
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	PoolName string
	PoolSize int

	dsn string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewConfig builds a Config from the given MySQL connection parameters,
// applying production-ready pool defaults. Port 0 and PoolSize 0 fall back
// to their documented defaults.
func NewConfig(host string, port int, user, password, database string) *Config {
	if port == 0 {
		port = defaultPort
	}
	c := &Config{
		Host:            host,
		Port:            port,
		User:            user,
		Password:        password,
		Database:        database,
		PoolSize:        defaultPoolSize,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
	c.dsn = c.buildDSN()
	return c
}

func (c *Config) buildDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Validate checks that the configuration has enough information to dial a
// connection.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrHostEmpty
	}
	return nil
}

// MaskDSN returns the DSN with the password redacted, safe for logging.
func (c *Config) MaskDSN() string {
	if c.Password == "" {
		return c.dsn
	}
	return strings.Replace(c.dsn, c.User+":"+c.Password+"@", c.User+":***@", 1)
}
