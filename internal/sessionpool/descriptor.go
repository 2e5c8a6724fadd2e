// Package sessionpool implements the bounded database session pool: a
// configurable floor of pre-opened sessions, a ceiling on total sessions,
// idle reaping, and — on exhaustion — a one-shot off-pool session
// fabricated directly from the connection descriptor rather than a
// surfaced error.
package sessionpool

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Kind identifies the backend driver family for a connection descriptor.
type Kind string

const (
	MySQL  Kind = "MySQL"
	ODBC   Kind = "ODBC"
	SQLite Kind = "SQLite"
	// MSSQL is not part of the base backend kinds but is carried for
	// parity with the pooling stack this package is adapted from.
	MSSQL Kind = "MSSQL"
)

// Descriptor is the database connection descriptor: backend kind,
// connection parameters, and the pool sizing/timeout knobs that govern
// it. Server-style kinds (MySQL, ODBC, MSSQL) use Host/Port/Username/
// Password/Compress; the file-style kind (SQLite) only uses Name as a
// relative path under the sqlite/ state directory.
type Descriptor struct {
	Type     Kind   `yaml:"type"`
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Host     string `yaml:"ip"`
	Port     int    `yaml:"port"`
	Compress bool   `yaml:"compress"`

	MinSessions int           `yaml:"min_sessions"`
	MaxSessions int           `yaml:"max_sessions"`
	IdleTime    time.Duration `yaml:"idle_time"`

	// AcquireTimeout bounds how long Acquire blocks on a full pool before
	// falling back to an off-pool session.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// IsServerStyle reports whether this descriptor addresses a networked
// server (as opposed to a local file-style backend).
func (d *Descriptor) IsServerStyle() bool {
	return d.Type != SQLite
}

// itoa avoids importing strconv at call sites building DSNs by hand, in
// keeping with how this connection descriptor type has always formatted
// its own addresses.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	digits := make([]byte, 0, 10)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// driverAndDSN resolves the database/sql driver name and DSN for this
// descriptor's Type. Driver selection is the pool's concern, not the
// protocol handlers'.
func (d *Descriptor) driverAndDSN() (driver, dsn string) {
	switch d.Type {
	case MySQL:
		dsn = d.Username + ":" + d.Password + "@tcp(" + d.Host + ":" + itoa(d.Port) + ")/" + d.Name
		if d.Compress {
			dsn += "?compress=true"
		}
		return "mysql", dsn
	case ODBC:
		dsn = "DRIVER={MySQL ODBC Driver};SERVER=" + d.Host + "," + itoa(d.Port) +
			";DATABASE=" + d.Name + ";UID=" + d.Username + ";PWD=" + d.Password
		return "odbc", dsn
	case MSSQL:
		dsn = "sqlserver://" + d.Username + ":" + d.Password + "@" + d.Host + ":" + itoa(d.Port) +
			"?database=" + d.Name
		return "sqlserver", dsn
	case SQLite:
		return "sqlite", "sqlite/" + d.Name
	default:
		return "", ""
	}
}

// Ping opens a short-lived connection against this descriptor and pings
// it, independent of any pool — used by the health checker, which needs
// to observe raw backend reachability rather than pool state.
func (d *Descriptor) Ping(ctx context.Context) error {
	driver, dsn := d.driverAndDSN()
	if driver == "" {
		return fmt.Errorf("unknown backend kind %q", d.Type)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	defer db.Close()
	return db.PingContext(ctx)
}
