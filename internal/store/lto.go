package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateLTOSession inserts a tape export session row.
func (s *Store) CreateLTOSession(ctx context.Context, recorderName, barcode string) (*LTOSessionRow, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lto_sessions (recorder_name, barcode, created_at, status) VALUES (?, ?, ?, ?)`,
		recorderName, barcode, formatTime(now), string(LTOSessionOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("insert lto session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &LTOSessionRow{
		ID:           id,
		RecorderName: recorderName,
		Barcode:      barcode,
		CreatedAt:    now,
		Status:       LTOSessionOpen,
	}, nil
}

// ReplaceLTOFiles deletes any previously synthesized batch for a session and
// inserts the given rows, assigning their ids.
func (s *Store) ReplaceLTOFiles(ctx context.Context, sessionID int64, files []*LTOFileRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lto files tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lto_files WHERE lto_session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear lto files: %w", err)
	}
	for _, file := range files {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lto_files (
				lto_session_id, sequence, tape_filename, cache_filename, status,
				size, duration, ingest_format, spool_number, item_number,
				programme_number, magazine_prefix, production_code, programme_title
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID,
			file.Sequence,
			file.TapeFilename,
			file.CacheFilename,
			string(file.Status),
			file.Size,
			file.Duration,
			nullableString(file.IngestFormat),
			nullableString(file.Source.SpoolNumber),
			file.Source.ItemNumber,
			nullableString(file.Source.ProgrammeNumber),
			nullableString(file.Source.MagazinePrefix),
			nullableString(file.Source.ProductionCode),
			nullableString(file.Source.ProgrammeTitle),
		)
		if err != nil {
			return fmt.Errorf("insert lto file %q: %w", file.TapeFilename, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		file.ID = id
		file.LTOSessionID = sessionID
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lto files: %w", err)
	}
	return nil
}

// UpdateLTOFileStatus persists one file's transfer status transition.
func (s *Store) UpdateLTOFileStatus(ctx context.Context, id int64, status TransferStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lto_files SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update lto file status: %w", err)
	}
	return nil
}

// CompleteLTOSession marks a tape export session completed.
func (s *Store) CompleteLTOSession(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lto_sessions SET status = ? WHERE id = ?`, string(LTOSessionCompleted), id)
	if err != nil {
		return fmt.Errorf("complete lto session: %w", err)
	}
	return nil
}

// AbortLTOSession marks a tape export session aborted.
func (s *Store) AbortLTOSession(ctx context.Context, id int64, initiator AbortInitiator, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lto_sessions SET status = ?, abort_initiator = ?, abort_reason = ? WHERE id = ?`,
		string(LTOSessionAborted), string(initiator), nullableString(reason), id)
	if err != nil {
		return fmt.Errorf("abort lto session: %w", err)
	}
	return nil
}

// LTOSessionsByStatus returns a recorder's export sessions in a given state.
func (s *Store) LTOSessionsByStatus(ctx context.Context, recorderName string, status LTOSessionStatus) ([]*LTOSessionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorder_name, barcode, created_at, status, abort_initiator, abort_reason
		 FROM lto_sessions WHERE recorder_name = ? AND status = ? ORDER BY id`,
		recorderName, string(status))
	if err != nil {
		return nil, fmt.Errorf("query lto sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*LTOSessionRow
	for rows.Next() {
		var (
			session    LTOSessionRow
			createdRaw string
			statusStr  string
			initiator  sql.NullString
			reason     sql.NullString
		)
		if err := rows.Scan(&session.ID, &session.RecorderName, &session.Barcode,
			&createdRaw, &statusStr, &initiator, &reason); err != nil {
			return nil, err
		}
		session.Status = LTOSessionStatus(statusStr)
		session.AbortInitiator = AbortInitiator(initiator.String)
		session.AbortReason = reason.String
		if created, err := parseTimeString(createdRaw); err == nil {
			session.CreatedAt = created
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// LTOFilesForSession returns a session's file rows in tape order.
func (s *Store) LTOFilesForSession(ctx context.Context, sessionID int64) ([]*LTOFileRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lto_session_id, sequence, tape_filename, cache_filename, status,
		        size, duration, ingest_format, spool_number, item_number,
		        programme_number, magazine_prefix, production_code, programme_title
		 FROM lto_files WHERE lto_session_id = ? ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query lto files: %w", err)
	}
	defer rows.Close()

	var files []*LTOFileRow
	for rows.Next() {
		var (
			file       LTOFileRow
			statusStr  string
			format     sql.NullString
			spool      sql.NullString
			progNumber sql.NullString
			magPrefix  sql.NullString
			prodCode   sql.NullString
			title      sql.NullString
		)
		if err := rows.Scan(&file.ID, &file.LTOSessionID, &file.Sequence,
			&file.TapeFilename, &file.CacheFilename, &statusStr,
			&file.Size, &file.Duration, &format, &spool, &file.Source.ItemNumber,
			&progNumber, &magPrefix, &prodCode, &title); err != nil {
			return nil, err
		}
		file.Status = TransferStatus(statusStr)
		file.IngestFormat = format.String
		file.Source.SpoolNumber = spool.String
		file.Source.ProgrammeNumber = progNumber.String
		file.Source.MagazinePrefix = magPrefix.String
		file.Source.ProductionCode = prodCode.String
		file.Source.ProgrammeTitle = title.String
		files = append(files, &file)
	}
	return files, rows.Err()
}
