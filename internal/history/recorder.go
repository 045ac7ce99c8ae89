// Package history persists delivered chat messages to Postgres in the
// background so the receive loop never waits on the database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Open connects to the chat Postgres instance.
func Open(host, port, user, pass, database string) (*sql.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		user, pass, host, port, database,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(time.Minute)
	return db, db.Ping()
}

type Entry struct {
	RoomID     string
	SenderID   int64
	ReceiverID int64
	Text       string
	SentAt     time.Time
}

// Recorder buffers delivered messages and flushes them in batched
// transactions. Record never blocks: when the buffer is full the entry is
// dropped and counted, not queued.
type Recorder struct {
	ch chan Entry
}

const (
	bufferSize    = 1024
	batchMax      = 100
	flushInterval = 2 * time.Second
)

// Run starts the drain loop and returns the Recorder. The loop exits when
// ctx is done; entries still buffered at that point are flushed best-effort.
func Run(ctx context.Context, db *sql.DB) *Recorder {
	rec := &Recorder{ch: make(chan Entry, bufferSize)}
	go rec.drain(ctx, db)
	return rec
}

// Record queues one delivered message.
func (r *Recorder) Record(roomID string, senderID, receiverID int64, text string) {
	select {
	case r.ch <- Entry{
		RoomID:     roomID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		SentAt:     time.Now().UTC(),
	}:
	default:
		zap.L().Warn("history.buffer_full", zap.String("room", roomID))
	}
}

func (r *Recorder) drain(ctx context.Context, db *sql.DB) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	// The final flush must survive ctx cancellation.
	pctx := context.WithoutCancel(ctx)

	batch := make([]Entry, 0, batchMax)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := persist(pctx, db, batch); err != nil {
			zap.L().Warn("history.persist", zap.Error(err), zap.Int("dropped", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case e := <-r.ch:
			batch = append(batch, e)
			if len(batch) >= batchMax {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func persist(ctx context.Context, db *sql.DB, entries []Entry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO chat_messages (room_id, sender_id, receiver_id, message, sent_at)
	             VALUES ($1, $2, $3, $4, $5)`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, ins, e.RoomID, e.SenderID, e.ReceiverID, e.Text, e.SentAt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
