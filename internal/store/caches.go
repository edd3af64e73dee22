package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LoadCache returns the cache row for a recorder and directory path.
// Returns ErrNotFound when no row exists.
func (s *Store) LoadCache(ctx context.Context, recorderName, path string) (*CacheRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, recorder_name, path FROM caches WHERE recorder_name = ? AND path = ?`,
		recorderName, path,
	)
	var cache CacheRow
	if err := row.Scan(&cache.ID, &cache.RecorderName, &cache.Path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load cache row: %w", err)
	}
	return &cache, nil
}

// CreateCache inserts a cache row for a recorder and directory path.
func (s *Store) CreateCache(ctx context.Context, recorderName, path string) (*CacheRow, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO caches (recorder_name, path) VALUES (?, ?)`,
		recorderName, path,
	)
	if err != nil {
		return nil, fmt.Errorf("insert cache row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &CacheRow{ID: id, RecorderName: recorderName, Path: path}, nil
}

const cacheItemColumns = `id, cache_id, destination_id, filename, browse_filename, pse_filename,
	ingest_format, size, duration, session_id, session_created_at, session_comments,
	session_status, spool_number, item_number, programme_number, magazine_prefix,
	production_code, programme_title, pse_result`

// CacheItems returns every cache item row belonging to a cache.
func (s *Store) CacheItems(ctx context.Context, cacheID int64) ([]*CacheItemRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cacheItemColumns+` FROM cache_items WHERE cache_id = ? ORDER BY id`, cacheID)
	if err != nil {
		return nil, fmt.Errorf("query cache items: %w", err)
	}
	defer rows.Close()

	var items []*CacheItemRow
	for rows.Next() {
		item, err := scanCacheItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FindCacheItem looks up one cache item by cache id and filename.
// Returns ErrNotFound when absent.
func (s *Store) FindCacheItem(ctx context.Context, cacheID int64, filename string) (*CacheItemRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cacheItemColumns+` FROM cache_items WHERE cache_id = ? AND filename = ?`,
		cacheID, filename)
	item, err := scanCacheItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find cache item: %w", err)
	}
	return item, nil
}

// SaveCacheItem inserts a cache item row and assigns its id.
func (s *Store) SaveCacheItem(ctx context.Context, item *CacheItemRow) error {
	if item == nil {
		return errors.New("cache item is nil")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_items (
			cache_id, destination_id, filename, browse_filename, pse_filename,
			ingest_format, size, duration, session_id, session_created_at,
			session_comments, session_status, spool_number, item_number,
			programme_number, magazine_prefix, production_code, programme_title,
			pse_result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.CacheID,
		item.DestinationID,
		item.Filename,
		nullableString(item.BrowseFilename),
		nullableString(item.PSEFilename),
		nullableString(item.IngestFormat),
		item.Size,
		item.Duration,
		item.SessionID,
		formatTime(item.SessionCreatedAt),
		nullableString(item.SessionComments),
		string(item.SessionStatus),
		nullableString(item.Source.SpoolNumber),
		item.Source.ItemNumber,
		nullableString(item.Source.ProgrammeNumber),
		nullableString(item.Source.MagazinePrefix),
		nullableString(item.Source.ProductionCode),
		nullableString(item.Source.ProgrammeTitle),
		item.PSEResult,
	)
	if err != nil {
		return fmt.Errorf("insert cache item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	item.ID = id
	return nil
}

// UpdateCacheItem persists the mutable projection fields of a cache item.
func (s *Store) UpdateCacheItem(ctx context.Context, item *CacheItemRow) error {
	if item == nil {
		return errors.New("cache item is nil")
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE cache_items
		 SET size = ?, duration = ?, session_status = ?, session_comments = ?, pse_result = ?
		 WHERE id = ?`,
		item.Size, item.Duration, string(item.SessionStatus),
		nullableString(item.SessionComments), item.PSEResult, item.ID,
	)
	if err != nil {
		return fmt.Errorf("update cache item: %w", err)
	}
	return nil
}

// DeleteCacheItem removes a cache item row by id. Reports whether a row was
// actually deleted.
func (s *Store) DeleteCacheItem(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete cache item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteCacheItemByName removes a cache item row by cache id and filename.
func (s *Store) DeleteCacheItemByName(ctx context.Context, cacheID int64, filename string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_items WHERE cache_id = ? AND filename = ?`, cacheID, filename)
	if err != nil {
		return false, fmt.Errorf("delete cache item by name: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanCacheItem(scanner interface{ Scan(dest ...any) error }) (*CacheItemRow, error) {
	var (
		item          CacheItemRow
		browse        sql.NullString
		pse           sql.NullString
		format        sql.NullString
		createdRaw    string
		comments      sql.NullString
		statusStr     string
		spool         sql.NullString
		progNumber    sql.NullString
		magPrefix     sql.NullString
		prodCode      sql.NullString
		progTitle     sql.NullString
	)
	if err := scanner.Scan(
		&item.ID,
		&item.CacheID,
		&item.DestinationID,
		&item.Filename,
		&browse,
		&pse,
		&format,
		&item.Size,
		&item.Duration,
		&item.SessionID,
		&createdRaw,
		&comments,
		&statusStr,
		&spool,
		&item.Source.ItemNumber,
		&progNumber,
		&magPrefix,
		&prodCode,
		&progTitle,
		&item.PSEResult,
	); err != nil {
		return nil, err
	}
	item.BrowseFilename = browse.String
	item.PSEFilename = pse.String
	item.IngestFormat = format.String
	item.SessionComments = comments.String
	item.SessionStatus = SessionStatus(statusStr)
	item.Source.SpoolNumber = spool.String
	item.Source.ProgrammeNumber = progNumber.String
	item.Source.MagazinePrefix = magPrefix.String
	item.Source.ProductionCode = prodCode.String
	item.Source.ProgrammeTitle = progTitle.String
	if created, err := parseTimeString(createdRaw); err == nil {
		item.SessionCreatedAt = created
	}
	return &item, nil
}
