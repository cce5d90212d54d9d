package repo

import (
	"context"
	"fmt"
	"time"

	"autotrader/internal/models"
	"autotrader/pkg/db"

	"github.com/jackc/pgx/v5"
)

const watcherColumns = `id, family, symbol, interval, expression, status, chat_id, last_notification`

// Watchers implements the watcher store over postgres. Both families
// (alarm/alert) live in one table discriminated by the family column.
type Watchers struct {
	tx db.TxManager
}

func NewWatchers(tx db.TxManager) *Watchers {
	return &Watchers{tx: tx}
}

func (r *Watchers) Add(ctx context.Context, w models.Watcher) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Watchers.Add: %w", err)
		}
	}()
	_, err = r.tx.Conn().Exec(ctx, `
		INSERT INTO watchers (`+watcherColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		w.ID, w.Family, w.Symbol, w.Interval, w.Expression, w.Status, w.ChatID, w.LastNotification,
	)
	return err
}

func (r *Watchers) Update(ctx context.Context, w models.Watcher) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Watchers.Update: %w", err)
		}
	}()
	tag, err := r.tx.Conn().Exec(ctx, `
		UPDATE watchers SET
			family = $2, symbol = $3, interval = $4, expression = $5,
			status = $6, chat_id = $7, last_notification = $8
		WHERE id = $1`,
		w.ID, w.Family, w.Symbol, w.Interval, w.Expression, w.Status, w.ChatID, w.LastNotification,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateLastNotification persists only the notification timestamp; the
// monitor loop calls this after every successful send.
func (r *Watchers) UpdateLastNotification(ctx context.Context, id string, at time.Time) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Watchers.UpdateLastNotification: %w", err)
		}
	}()
	_, err = r.tx.Conn().Exec(ctx,
		`UPDATE watchers SET last_notification = $2 WHERE id = $1`, id, at)
	return err
}

func (r *Watchers) Delete(ctx context.Context, id string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Watchers.Delete: %w", err)
		}
	}()
	_, err = r.tx.Conn().Exec(ctx, `DELETE FROM watchers WHERE id = $1`, id)
	return err
}

func (r *Watchers) GetByID(ctx context.Context, id string) (w models.Watcher, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Watchers.GetByID: %w", err)
		}
	}()
	row := r.tx.Conn().QueryRow(ctx, `SELECT `+watcherColumns+` FROM watchers WHERE id = $1`, id)
	return scanWatcher(row)
}

func (r *Watchers) GetActive(ctx context.Context) (out []models.Watcher, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Watchers.GetActive: %w", err)
		}
	}()
	rows, err := r.tx.Conn().Query(ctx,
		`SELECT `+watcherColumns+` FROM watchers WHERE status = $1`, models.StatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		w, err := scanWatcher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWatcher(row pgx.Row) (models.Watcher, error) {
	var w models.Watcher
	err := row.Scan(&w.ID, &w.Family, &w.Symbol, &w.Interval, &w.Expression, &w.Status, &w.ChatID, &w.LastNotification)
	return w, err
}
