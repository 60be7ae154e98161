package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"cheqr/backend/internal/attendance/domain"
	"cheqr/backend/internal/clock"
)

// Postgres error codes the store maps to domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const sessionColumns = `id, course_id, course_code, course_name, lecturer_id, issued_at, expires_at`

// PostgresRepository stores sessions in attendance_sessions and scans in attendance_scans.
// The unique (session_id, student_id) constraint is the duplicate gate.
type PostgresRepository struct {
	db  *sql.DB
	loc *time.Location
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
// Timestamps read back are expressed in loc (nil selects clock.ReferenceZone).
func NewPostgresRepository(db *sql.DB, loc *time.Location) *PostgresRepository {
	if loc == nil {
		loc = clock.ReferenceZone
	}
	return &PostgresRepository{db: db, loc: loc}
}

// Create inserts s. A duplicate (course_id, issued_at, expires_at) returns domain.ErrSessionExists.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attendance_sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.CourseID, s.CourseCode, s.CourseName, s.LecturerID, s.IssuedAt, s.ExpiresAt)
	if isPgError(err, pgUniqueViolation) {
		return domain.ErrSessionExists
	}
	return err
}

// GetByID returns the session for id with its scans, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := r.scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id))
	if err != nil || s == nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, student_id, scanned_at FROM attendance_scans WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		s.Scans = append(s.Scans, rec)
	}
	return s, rows.Err()
}

// FindLive returns the newest session for courseID still live strictly after now, or nil.
func (r *PostgresRepository) FindLive(ctx context.Context, courseID string, now time.Time) (*domain.Session, error) {
	return r.scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM attendance_sessions
		 WHERE course_id = $1 AND expires_at > $2
		 ORDER BY issued_at DESC LIMIT 1`, courseID, now))
}

// FindByWindow returns the session matching courseID and the exact window, or nil.
func (r *PostgresRepository) FindByWindow(ctx context.Context, courseID string, issuedAt, expiresAt time.Time) (*domain.Session, error) {
	return r.scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM attendance_sessions
		 WHERE course_id = $1 AND issued_at = $2 AND expires_at = $3`, courseID, issuedAt, expiresAt))
}

// AppendScanIfAbsent inserts the scan as a single conditional statement, so racing duplicates cannot both succeed.
func (r *PostgresRepository) AppendScanIfAbsent(ctx context.Context, sessionID, studentID string, scannedAt time.Time) (*domain.ScanRecord, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO attendance_scans (session_id, student_id, scanned_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, student_id) DO NOTHING`, sessionID, studentID, scannedAt)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrAlreadyRecorded
	}
	return &domain.ScanRecord{SessionID: sessionID, StudentID: studentID, ScannedAt: scannedAt.In(r.loc)}, nil
}

// ListByCourse returns sessions for courseID newest first, each with its scans in arrival order.
func (r *PostgresRepository) ListByCourse(ctx context.Context, courseID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM attendance_sessions WHERE course_id = $1 ORDER BY issued_at DESC`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	byID := make(map[string]*domain.Session)
	for rows.Next() {
		s, err := r.scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		byID[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	scans, err := r.db.QueryContext(ctx,
		`SELECT sc.session_id, sc.student_id, sc.scanned_at
		 FROM attendance_scans sc JOIN attendance_sessions s ON s.id = sc.session_id
		 WHERE s.course_id = $1 ORDER BY sc.seq`, courseID)
	if err != nil {
		return nil, err
	}
	defer scans.Close()
	for scans.Next() {
		rec, err := r.scanRecord(scans)
		if err != nil {
			return nil, err
		}
		if s := byID[rec.SessionID]; s != nil {
			s.Scans = append(s.Scans, rec)
		}
	}
	return out, scans.Err()
}

// CountScansSince counts scans for courseID recorded at or after since.
func (r *PostgresRepository) CountScansSince(ctx context.Context, courseID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_scans sc JOIN attendance_sessions s ON s.id = sc.session_id
		 WHERE s.course_id = $1 AND sc.scanned_at >= $2`, courseID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count scans: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession maps a single-row query; sql.ErrNoRows becomes (nil, nil).
func (r *PostgresRepository) scanSession(row *sql.Row) (*domain.Session, error) {
	s, err := r.scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *PostgresRepository) scanSessionRow(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.CourseID, &s.CourseCode, &s.CourseName, &s.LecturerID, &s.IssuedAt, &s.ExpiresAt); err != nil {
		return nil, err
	}
	s.IssuedAt = s.IssuedAt.In(r.loc)
	s.ExpiresAt = s.ExpiresAt.In(r.loc)
	return &s, nil
}

func (r *PostgresRepository) scanRecord(row rowScanner) (domain.ScanRecord, error) {
	var rec domain.ScanRecord
	if err := row.Scan(&rec.SessionID, &rec.StudentID, &rec.ScannedAt); err != nil {
		return rec, err
	}
	rec.ScannedAt = rec.ScannedAt.In(r.loc)
	return rec, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
