// Package dbcheck verifies that the demo's PostgreSQL database accepts
// connections and carries the application's schema.
package dbcheck

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"coffeectl/internal/config"
	"coffeectl/pkg/logging"

	"github.com/jackc/pgx/v5"
)

// OrdersTable is the table the demo application stores orders in.
const OrdersTable = "orders"

// Info is what a successful check learned about the database.
type Info struct {
	ServerVersion string        `json:"serverVersion" yaml:"serverVersion"`
	Database      string        `json:"database" yaml:"database"`
	User          string        `json:"user" yaml:"user"`
	OrdersTable   bool          `json:"ordersTable" yaml:"ordersTable"`
	Orders        int64         `json:"orders" yaml:"orders"`
	Latency       time.Duration `json:"latency" yaml:"latency"`
}

// DSN builds a connection URL for cfg. A non-empty host or a positive port
// replace the configured ones, which is how a port-forward is plugged in.
func DSN(cfg config.DatabaseConfig, host string, port int) string {
	if host == "" {
		host = cfg.Host
	}
	if port <= 0 {
		port = cfg.Port
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + cfg.Name,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	q.Set("connect_timeout", "10")
	u.RawQuery = q.Encode()
	return u.String()
}

// Check connects to dsn, pings the server and inspects the schema.
func Check(ctx context.Context, dsn string) (Info, error) {
	var info Info
	start := time.Now()

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return info, fmt.Errorf("invalid database connection string: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return info, fmt.Errorf("connecting to %s:%d: %w", connConfig.Host, connConfig.Port, err)
	}
	defer conn.Close(context.Background())

	if err := conn.Ping(ctx); err != nil {
		return info, fmt.Errorf("ping: %w", err)
	}
	info.Latency = time.Since(start)

	if err := conn.QueryRow(ctx, "SHOW server_version").Scan(&info.ServerVersion); err != nil {
		return info, fmt.Errorf("reading server version: %w", err)
	}
	if err := conn.QueryRow(ctx, "SELECT current_database(), current_user").Scan(&info.Database, &info.User); err != nil {
		return info, fmt.Errorf("reading session info: %w", err)
	}
	if err := conn.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", "public."+OrdersTable).Scan(&info.OrdersTable); err != nil {
		return info, fmt.Errorf("looking up table %s: %w", OrdersTable, err)
	}
	if info.OrdersTable {
		query := fmt.Sprintf("SELECT count(*) FROM %s", pgx.Identifier{"public", OrdersTable}.Sanitize())
		if err := conn.QueryRow(ctx, query).Scan(&info.Orders); err != nil {
			return info, fmt.Errorf("counting %s: %w", OrdersTable, err)
		}
	}

	logging.Debug("DBCheck", "PostgreSQL %s, database %s as %s, %s table present: %t",
		info.ServerVersion, info.Database, info.User, OrdersTable, info.OrdersTable)
	return info, nil
}
