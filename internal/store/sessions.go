package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession inserts a new recording session row with a fresh
// correlation uuid.
func (s *Store) CreateSession(ctx context.Context, comments string) (*SessionRow, error) {
	now := time.Now().UTC()
	sessionUUID := uuid.NewString()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (uuid, created_at, comments, status) VALUES (?, ?, ?, ?)`,
		sessionUUID, formatTime(now), nullableString(comments), string(SessionRecording),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &SessionRow{ID: id, UUID: sessionUUID, CreatedAt: now, Comments: comments, Status: SessionRecording}, nil
}

// GetSession fetches a session row by id. Returns ErrNotFound when absent.
func (s *Store) GetSession(ctx context.Context, id int64) (*SessionRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, uuid, created_at, comments, status, abort_initiator, abort_reason, vtr_errors, dropouts
		 FROM sessions WHERE id = ?`, id)
	var (
		session    SessionRow
		createdRaw string
		comments   sql.NullString
		statusStr  string
		initiator  sql.NullString
		reason     sql.NullString
	)
	if err := row.Scan(&session.ID, &session.UUID, &createdRaw, &comments, &statusStr,
		&initiator, &reason, &session.VTRErrors, &session.Dropouts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.Comments = comments.String
	session.Status = SessionStatus(statusStr)
	session.AbortInitiator = AbortInitiator(initiator.String)
	session.AbortReason = reason.String
	if created, err := parseTimeString(createdRaw); err == nil {
		session.CreatedAt = created
	}
	return &session, nil
}

// CompleteSession marks a session row completed with final defect counts.
func (s *Store) CompleteSession(ctx context.Context, id int64, comments string, vtrErrors, dropouts int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, comments = ?, vtr_errors = ?, dropouts = ? WHERE id = ?`,
		string(SessionCompleted), nullableString(comments), vtrErrors, dropouts, id,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// AbortSession marks a session row aborted with the initiator and reason.
func (s *Store) AbortSession(ctx context.Context, id int64, initiator AbortInitiator, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, abort_initiator = ?, abort_reason = ? WHERE id = ?`,
		string(SessionAborted), string(initiator), nullableString(reason), id,
	)
	if err != nil {
		return fmt.Errorf("abort session: %w", err)
	}
	return nil
}

// DeleteSession removes a session row entirely; destination rows cascade.
// Used when a session is aborted before recording ever started.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

const destinationColumns = `id, session_id, kind, filename, browse_filename, pse_filename,
	ingest_format, size, duration, material_uid, file_uid, barcode, spool_number,
	item_number, programme_number, magazine_prefix, production_code, programme_title, pse_result`

// CreateDestination inserts a destination row and assigns its id.
func (s *Store) CreateDestination(ctx context.Context, dest *DestinationRow) error {
	if dest == nil {
		return errors.New("destination is nil")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO destinations (
			session_id, kind, filename, browse_filename, pse_filename, ingest_format,
			size, duration, material_uid, file_uid, barcode, spool_number, item_number,
			programme_number, magazine_prefix, production_code, programme_title, pse_result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dest.SessionID,
		string(dest.Kind),
		nullableString(dest.Filename),
		nullableString(dest.BrowseFilename),
		nullableString(dest.PSEFilename),
		nullableString(dest.IngestFormat),
		dest.Size,
		dest.Duration,
		nullableString(dest.MaterialUID),
		nullableString(dest.FileUID),
		nullableString(dest.Barcode),
		nullableString(dest.Source.SpoolNumber),
		dest.Source.ItemNumber,
		nullableString(dest.Source.ProgrammeNumber),
		nullableString(dest.Source.MagazinePrefix),
		nullableString(dest.Source.ProductionCode),
		nullableString(dest.Source.ProgrammeTitle),
		dest.PSEResult,
	)
	if err != nil {
		return fmt.Errorf("insert destination: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	dest.ID = id
	return nil
}

// UpdateDestination persists the mutable fields of a destination row.
func (s *Store) UpdateDestination(ctx context.Context, dest *DestinationRow) error {
	if dest == nil {
		return errors.New("destination is nil")
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE destinations
		 SET filename = ?, browse_filename = ?, pse_filename = ?, size = ?, duration = ?,
		     material_uid = ?, file_uid = ?, pse_result = ?
		 WHERE id = ?`,
		nullableString(dest.Filename),
		nullableString(dest.BrowseFilename),
		nullableString(dest.PSEFilename),
		dest.Size,
		dest.Duration,
		nullableString(dest.MaterialUID),
		nullableString(dest.FileUID),
		dest.PSEResult,
		dest.ID,
	)
	if err != nil {
		return fmt.Errorf("update destination: %w", err)
	}
	return nil
}

// DestinationsForSession returns a session's destination rows ordered by id.
func (s *Store) DestinationsForSession(ctx context.Context, sessionID int64) ([]*DestinationRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+destinationColumns+` FROM destinations WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query destinations: %w", err)
	}
	defer rows.Close()

	var dests []*DestinationRow
	for rows.Next() {
		dest, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		dests = append(dests, dest)
	}
	return dests, rows.Err()
}

// GetDestination fetches one destination row by id.
func (s *Store) GetDestination(ctx context.Context, id int64) (*DestinationRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+destinationColumns+` FROM destinations WHERE id = ?`, id)
	dest, err := scanDestination(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get destination: %w", err)
	}
	return dest, nil
}

func scanDestination(scanner interface{ Scan(dest ...any) error }) (*DestinationRow, error) {
	var (
		dest        DestinationRow
		kindStr     string
		filename    sql.NullString
		browse      sql.NullString
		pse         sql.NullString
		format      sql.NullString
		materialUID sql.NullString
		fileUID     sql.NullString
		barcode     sql.NullString
		spool       sql.NullString
		progNumber  sql.NullString
		magPrefix   sql.NullString
		prodCode    sql.NullString
		title       sql.NullString
	)
	if err := scanner.Scan(
		&dest.ID,
		&dest.SessionID,
		&kindStr,
		&filename,
		&browse,
		&pse,
		&format,
		&dest.Size,
		&dest.Duration,
		&materialUID,
		&fileUID,
		&barcode,
		&spool,
		&dest.Source.ItemNumber,
		&progNumber,
		&magPrefix,
		&prodCode,
		&title,
		&dest.PSEResult,
	); err != nil {
		return nil, err
	}
	dest.Kind = DestinationKind(kindStr)
	dest.Filename = filename.String
	dest.BrowseFilename = browse.String
	dest.PSEFilename = pse.String
	dest.IngestFormat = format.String
	dest.MaterialUID = materialUID.String
	dest.FileUID = fileUID.String
	dest.Barcode = barcode.String
	dest.Source.SpoolNumber = spool.String
	dest.Source.ProgrammeNumber = progNumber.String
	dest.Source.MagazinePrefix = magPrefix.String
	dest.Source.ProductionCode = prodCode.String
	dest.Source.ProgrammeTitle = title.String
	return &dest, nil
}
