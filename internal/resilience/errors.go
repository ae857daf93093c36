package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes that signal a condition worth retrying.
var transientPgCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"55P03": {}, // lock_not_available
	"57P03": {}, // cannot_connect_now (server starting up)
}

// IsTransient reports whether the error looks like a temporary database or
// network condition that a retry can clear.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := transientPgCodes[pgErr.Code]; ok {
			return true
		}
		// class 08: connection exceptions
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// SQLite surfaces lock contention as wrapped string errors.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"database is locked",
		"database table is locked",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
