package store

import (
	"context"
	"fmt"
)

// NextInstanceNumber allocates the next recording instance number for a
// source spool, creating the counter at 1 on first use.
func (s *Store) NextInstanceNumber(ctx context.Context, spoolNumber string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin counter tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instance_counters (spool_number, next_instance) VALUES (?, 1)
		 ON CONFLICT (spool_number) DO NOTHING`, spoolNumber); err != nil {
		return 0, fmt.Errorf("seed counter: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT next_instance FROM instance_counters WHERE spool_number = ?`, spoolNumber,
	).Scan(&next); err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE instance_counters SET next_instance = ? WHERE spool_number = ?`,
		next+1, spoolNumber); err != nil {
		return 0, fmt.Errorf("advance counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit counter: %w", err)
	}
	return next, nil
}

// ResetInstanceNumber rewinds a spool's counter so tentatively allocated
// instance numbers that were never used do not leave gaps.
func (s *Store) ResetInstanceNumber(ctx context.Context, spoolNumber string, next int) error {
	if next < 1 {
		next = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instance_counters (spool_number, next_instance) VALUES (?, ?)
		 ON CONFLICT (spool_number) DO UPDATE SET next_instance = excluded.next_instance`,
		spoolNumber, next)
	if err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return nil
}
