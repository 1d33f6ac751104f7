package jobcontroller

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NotifyKind distinguishes an insert notification (a new pending job) from
// an update notification (a running job's canceled_at may have changed).
type NotifyKind string

const (
	NotifyInsert NotifyKind = "insert"
	NotifyUpdate NotifyKind = "update"
)

// Notification is a parsed payload off the channel (spec §4.7, §6: payload
// grammar ("insert"|"update") ":" integer).
type Notification struct {
	Kind  NotifyKind
	JobID int64
}

// parsePayload decodes a raw NOTIFY payload. Any payload that does not
// split into exactly two colon-separated fields, or whose kind/id are not
// recognized, is rejected so the caller can log and drop it rather than
// let a malformed payload crash the listener.
func parsePayload(payload string) (Notification, error) {
	parts := strings.SplitN(payload, ":", 2)
	if len(parts) != 2 {
		return Notification{}, fmt.Errorf("malformed payload %q: expected exactly one ':'", payload)
	}

	kind := NotifyKind(parts[0])
	if kind != NotifyInsert && kind != NotifyUpdate {
		return Notification{}, fmt.Errorf("malformed payload %q: unknown kind %q", payload, parts[0])
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Notification{}, fmt.Errorf("malformed payload %q: %w", payload, err)
	}

	return Notification{Kind: kind, JobID: id}, nil
}

// Listen holds a dedicated connection open for the lifetime of ctx,
// executing LISTEN once and forwarding every well-formed notification it
// receives to handle. The connection is acquired from pool but held
// outside the pool's normal borrow/release cycle, matching how LISTEN
// requires a single long-lived session rather than a pooled one.
func Listen(ctx context.Context, pool *pgxpool.Pool, channel string, log zerolog.Logger, handle func(Notification)) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", pgxIdentifier(channel))); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	log.Info().Str("channel", channel).Msg("listening for job notifications")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		note, err := parsePayload(n.Payload)
		if err != nil {
			log.Warn().Err(err).Str("channel", n.Channel).Msg("dropping malformed notification payload")
			continue
		}

		handle(note)
	}
}

func pgxIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
