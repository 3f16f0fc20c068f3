package events

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	adminsdk "cfgadmin/sdk/go"
)

// Writer appends client writes to the journal table. It is an
// adminsdk.Observer.
type Writer struct {
	DB     *sql.DB
	Now    func() time.Time
	Logger *zap.Logger
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, ev adminsdk.WriteEvent) error {
	at := ev.At
	if at.IsZero() {
		if w.Now == nil {
			w.Now = time.Now
		}
		at = w.Now()
	}
	ts := at.UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO journal(event_id,ts,family,entity_id,method,path,status,etag) VALUES (?,?,?,?,?,?,?,?)`,
		uuid.NewString(), ts, ev.Family, nullable(ev.ID), ev.Method, ev.Path, ev.Status, nullable(ev.ETag))
	return err
}

// Observe records ev in its own transaction. Failures are only logged.
func (w Writer) Observe(ctx context.Context, ev adminsdk.WriteEvent) {
	if err := w.record(ctx, ev); err != nil {
		w.logger().Warn("journal write failed",
			zap.String("family", ev.Family), zap.String("id", ev.ID), zap.Error(err))
	}
}

func (w Writer) record(ctx context.Context, ev adminsdk.WriteEvent) error {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func (w Writer) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
