package sessionwatcher

import (
	"context"
	"database/sql"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run listens to key-expiry events and removes the Postgres mirror row for
// each lapsed session. Run must be started once at service boot.
func Run(ctx context.Context, rdb *redis.Client, db *sql.DB) {
	_ = rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
	ps := rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-ps.Channel():
			if !strings.HasPrefix(m.Payload, "sess:") {
				continue
			}
			id := strings.TrimPrefix(m.Payload, "sess:")
			if _, err := db.ExecContext(ctx,
				`DELETE FROM sessions WHERE session_id = $1`, id); err != nil {
				zap.L().Warn("sessionwatcher.delete", zap.Error(err))
			}
		}
	}
}
