package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// InsertChannel is the NOTIFY channel raised by the qx_events insert trigger.
const InsertChannel = "qx_events_insert"

// ChangeFeed implements domain.ChangeFeed with LISTEN/NOTIFY on a dedicated
// pooled connection.
type ChangeFeed struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	backoff time.Duration
}

// NewChangeFeed creates a ChangeFeed.
func NewChangeFeed(pool *pgxpool.Pool, logger *slog.Logger) *ChangeFeed {
	return &ChangeFeed{
		pool:    pool,
		logger:  logger.With(slog.String("component", "pg_change_feed")),
		backoff: 2 * time.Second,
	}
}

// Changes listens for inserts until ctx is done. A dropped connection is
// re-established after a short pause.
func (f *ChangeFeed) Changes(ctx context.Context) (<-chan domain.Change, error) {
	conn, err := f.listen(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Change, 64)
	go func() {
		defer close(out)
		for {
			err := f.pump(ctx, conn, out)
			f.release(conn)
			if ctx.Err() != nil {
				return
			}
			f.logger.WarnContext(ctx, "change feed interrupted", slog.String("error", err.Error()))

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(f.backoff):
				}
				conn, err = f.listen(ctx)
				if err == nil {
					break
				}
				f.logger.WarnContext(ctx, "change feed reconnect failed", slog.String("error", err.Error()))
			}
		}
	}()
	return out, nil
}

func (f *ChangeFeed) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: change feed: acquire: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+InsertChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("postgres: change feed: listen: %w", err)
	}
	return conn, nil
}

// release clears the LISTEN registration before the connection goes back to
// the pool.
func (f *ChangeFeed) release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = conn.Exec(ctx, "UNLISTEN *")
	conn.Release()
}

func (f *ChangeFeed) pump(ctx context.Context, conn *pgxpool.Conn, out chan<- domain.Change) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		change := domain.Change{Table: "qx_events", ID: n.Payload, Applied: time.Now().UTC()}
		select {
		case out <- change:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Compile-time interface check.
var _ domain.ChangeFeed = (*ChangeFeed)(nil)
