package repo

import (
	"context"
	"fmt"

	"autotrader/internal/models"
	"autotrader/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const strategyColumns = `id, symbol, account, kind, amount, volatility, leverage, status,
	target_price, quantity, order_id, has_open_order, order_placed_at, last_trade_date, is_traded_today`

// ErrStrategyExists is returned by Add when a strategy already holds
// the (symbol, account) slot.
var ErrStrategyExists = errors.New("strategy already exists for symbol and account")

// Strategies implements the strategy store over postgres.
type Strategies struct {
	tx db.TxManager
}

func NewStrategies(tx db.TxManager) *Strategies {
	return &Strategies{tx: tx}
}

// Add inserts a strategy, holding the one-per-(symbol, account)
// invariant: the existence check and the insert run in one transaction
// so two concurrent creations cannot both slip past the check.
func (r *Strategies) Add(ctx context.Context, s models.Strategy) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Strategies.Add: %w", err)
		}
	}()
	return r.tx.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var exists bool
		row := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM strategies WHERE symbol = $1 AND account = $2)`,
			s.Symbol, s.Account)
		if err := row.Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrStrategyExists
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO strategies (`+strategyColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			s.ID, s.Symbol, s.Account, s.Kind, s.Amount, s.Volatility, s.Leverage, s.Status,
			s.TargetPrice, s.Quantity, s.OrderID, s.HasOpenOrder, s.OrderPlacedAt, s.LastTradeDate, s.IsTradedToday,
		)
		return err
	})
}

func (r *Strategies) Update(ctx context.Context, s models.Strategy) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Strategies.Update: %w", err)
		}
	}()
	tag, err := r.tx.Conn().Exec(ctx, `
		UPDATE strategies SET
			symbol = $2, account = $3, kind = $4, amount = $5, volatility = $6,
			leverage = $7, status = $8, target_price = $9, quantity = $10,
			order_id = $11, has_open_order = $12, order_placed_at = $13,
			last_trade_date = $14, is_traded_today = $15
		WHERE id = $1`,
		s.ID, s.Symbol, s.Account, s.Kind, s.Amount, s.Volatility, s.Leverage, s.Status,
		s.TargetPrice, s.Quantity, s.OrderID, s.HasOpenOrder, s.OrderPlacedAt, s.LastTradeDate, s.IsTradedToday,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Strategies) Delete(ctx context.Context, id string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Strategies.Delete: %w", err)
		}
	}()
	_, err = r.tx.Conn().Exec(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	return err
}

func (r *Strategies) GetByID(ctx context.Context, id string) (s models.Strategy, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Strategies.GetByID: %w", err)
		}
	}()
	row := r.tx.Conn().QueryRow(ctx, `SELECT `+strategyColumns+` FROM strategies WHERE id = $1`, id)
	return scanStrategy(row)
}

// GetActive returns all strategies in running status, for the startup
// reconciliation pass.
func (r *Strategies) GetActive(ctx context.Context) (out []models.Strategy, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Strategies.GetActive: %w", err)
		}
	}()
	rows, err := r.tx.Conn().Query(ctx,
		`SELECT `+strategyColumns+` FROM strategies WHERE status = $1`, models.StatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanStrategy(row pgx.Row) (models.Strategy, error) {
	var s models.Strategy
	err := row.Scan(
		&s.ID, &s.Symbol, &s.Account, &s.Kind, &s.Amount, &s.Volatility, &s.Leverage, &s.Status,
		&s.TargetPrice, &s.Quantity, &s.OrderID, &s.HasOpenOrder, &s.OrderPlacedAt, &s.LastTradeDate, &s.IsTradedToday,
	)
	return s, err
}
