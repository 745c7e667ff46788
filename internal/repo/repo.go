package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"petscreen/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict signals a stale optimistic-concurrency token on
	// a sputum submission.
	ErrVersionConflict = errors.New("version conflict")
)

// Step names used as keys in application_steps and in audit events.
const (
	StepApplicant        = "applicant"
	StepTravel           = "travel"
	StepMedicalScreening = "medical-screening"
	StepChestXray        = "chest-xray"
	StepSputumDecision   = "sputum-decision"
	StepSputum           = "sputum"
	StepTbCertificate    = "tb-certificate"
)

// ApplicationRow is the applications table row without step documents.
type ApplicationRow struct {
	ID        string
	ClinicID  string
	CreatedAt string
	UpdatedAt string
}

func (r Repo) InsertApplicationTx(ctx context.Context, tx *sql.Tx, row ApplicationRow) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO applications(id,clinic_id,created_at,updated_at) VALUES (?,?,?,?)`,
		row.ID, nullable(row.ClinicID), row.CreatedAt, row.UpdatedAt)
	return err
}

func (r Repo) GetApplicationRow(ctx context.Context, id string) (ApplicationRow, error) {
	var row ApplicationRow
	var clinic sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,clinic_id,created_at,updated_at FROM applications WHERE id=?`, id).
		Scan(&row.ID, &clinic, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return row, ErrNotFound
	}
	if err != nil {
		return row, err
	}
	if clinic.Valid {
		row.ClinicID = clinic.String
	}
	return row, nil
}

func (r Repo) GetApplicationRowTx(ctx context.Context, tx *sql.Tx, id string) (ApplicationRow, error) {
	var row ApplicationRow
	var clinic sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,clinic_id,created_at,updated_at FROM applications WHERE id=?`, id).
		Scan(&row.ID, &clinic, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return row, ErrNotFound
	}
	if err != nil {
		return row, err
	}
	if clinic.Valid {
		row.ClinicID = clinic.String
	}
	return row, nil
}

func (r Repo) ListApplications(ctx context.Context, clinicID string, limit int) ([]ApplicationRow, error) {
	clauses := []string{"1=1"}
	var args []any
	if clinicID != "" {
		clauses = append(clauses, "clinic_id=?")
		args = append(args, clinicID)
	}
	query := `SELECT id,clinic_id,created_at,updated_at FROM applications WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ApplicationRow
	for rows.Next() {
		var row ApplicationRow
		var clinic sql.NullString
		if err := rows.Scan(&row.ID, &clinic, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		if clinic.Valid {
			row.ClinicID = clinic.String
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

func (r Repo) TouchApplicationTx(ctx context.Context, tx *sql.Tx, id, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE applications SET updated_at=? WHERE id=?`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteApplication(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM applications WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStepDoc unmarshals the stored JSON document for one step into out.
func (r Repo) GetStepDoc(ctx context.Context, applicationID, step string, out any) error {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT doc_json FROM application_steps WHERE application_id=? AND step=?`, applicationID, step).Scan(&payload)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), out)
}

func (r Repo) GetStepDocTx(ctx context.Context, tx *sql.Tx, applicationID, step string, out any) error {
	var payload string
	err := tx.QueryRowContext(ctx, `SELECT doc_json FROM application_steps WHERE application_id=? AND step=?`, applicationID, step).Scan(&payload)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), out)
}

// UpsertStepDocTx stores a step document, replacing any previous one.
func (r Repo) UpsertStepDocTx(ctx context.Context, tx *sql.Tx, applicationID, step string, doc any, now string) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s doc: %w", step, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO application_steps(application_id,step,doc_json,updated_at) VALUES (?,?,?,?)
ON CONFLICT(application_id,step) DO UPDATE SET doc_json=excluded.doc_json, updated_at=excluded.updated_at`,
		applicationID, step, string(payload), now)
	return err
}

// GetSputum returns the sputum aggregate and its version counter.
func (r Repo) GetSputum(ctx context.Context, applicationID string) (domain.SputumAggregate, int64, error) {
	return scanSputum(r.DB.QueryRowContext(ctx, `SELECT doc_json,version FROM sputum_state WHERE application_id=?`, applicationID))
}

func (r Repo) GetSputumTx(ctx context.Context, tx *sql.Tx, applicationID string) (domain.SputumAggregate, int64, error) {
	return scanSputum(tx.QueryRowContext(ctx, `SELECT doc_json,version FROM sputum_state WHERE application_id=?`, applicationID))
}

func scanSputum(row *sql.Row) (domain.SputumAggregate, int64, error) {
	var payload string
	var version int64
	err := row.Scan(&payload, &version)
	if err == sql.ErrNoRows {
		return domain.SputumAggregate{}, 0, ErrNotFound
	}
	if err != nil {
		return domain.SputumAggregate{}, 0, err
	}
	var agg domain.SputumAggregate
	if err := json.Unmarshal([]byte(payload), &agg); err != nil {
		return domain.SputumAggregate{}, 0, err
	}
	return agg, version, nil
}

// InsertSputumTx seeds the sputum row for a fresh application at version 0.
func (r Repo) InsertSputumTx(ctx context.Context, tx *sql.Tx, applicationID string, agg domain.SputumAggregate, now string) error {
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal sputum doc: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO sputum_state(application_id,doc_json,version,updated_at) VALUES (?,?,0,?)`,
		applicationID, string(payload), now)
	return err
}

// SaveSputumTx writes the aggregate without touching the version counter.
// Used by the collection and results steps, which only stage data.
func (r Repo) SaveSputumTx(ctx context.Context, tx *sql.Tx, applicationID string, agg domain.SputumAggregate, now string) error {
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal sputum doc: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE sputum_state SET doc_json=?, updated_at=? WHERE application_id=?`,
		string(payload), now, applicationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmitSputumTx writes the aggregate and bumps the version counter, but
// only when the caller's expected version matches the stored one.
func (r Repo) SubmitSputumTx(ctx context.Context, tx *sql.Tx, applicationID string, agg domain.SputumAggregate, expectedVersion int64, now string) (int64, error) {
	payload, err := json.Marshal(agg)
	if err != nil {
		return 0, fmt.Errorf("marshal sputum doc: %w", err)
	}
	newVersion := expectedVersion + 1
	res, err := tx.ExecContext(ctx, `UPDATE sputum_state SET doc_json=?, version=?, updated_at=? WHERE application_id=? AND version=?`,
		string(payload), newVersion, now, applicationID, expectedVersion)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, _, err := r.GetSputumTx(ctx, tx, applicationID); errors.Is(err, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, ErrVersionConflict
	}
	return newVersion, nil
}

// LatestEvents returns the most recent events, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int, applicationID, evtType, step string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, applicationID, evtType, step)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, applicationID, evtType, step string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if applicationID != "" {
		clauses = append(clauses, "application_id=?")
		args = append(args, applicationID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if step != "" {
		clauses = append(clauses, "step=?")
		args = append(args, step)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,application_id,step,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, applicationID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if applicationID != "" {
		clauses = append(clauses, "application_id=?")
		args = append(args, applicationID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,application_id,step,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var appID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &appID, &e.Step, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if appID.Valid {
			e.ApplicationID = appID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context, applicationID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if applicationID != "" {
		query += ` WHERE application_id=?`
		args = append(args, applicationID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpsertConsent stores an actor's cookie banner decision.
func (r Repo) UpsertConsent(ctx context.Context, actorID string, decision domain.CookieConsent, now string) error {
	if decision != domain.ConsentAccepted && decision != domain.ConsentRejected {
		return fmt.Errorf("decision must be accepted or rejected")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO consents(actor_id,decision,updated_at) VALUES (?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET decision=excluded.decision, updated_at=excluded.updated_at`,
		actorID, string(decision), now)
	return err
}

// GetConsent returns an actor's stored decision, ErrNotFound when unset.
func (r Repo) GetConsent(ctx context.Context, actorID string) (domain.CookieConsent, error) {
	var decision string
	err := r.DB.QueryRowContext(ctx, `SELECT decision FROM consents WHERE actor_id=?`, actorID).Scan(&decision)
	if err == sql.ErrNoRows {
		return domain.ConsentUnset, ErrNotFound
	}
	if err != nil {
		return domain.ConsentUnset, err
	}
	return domain.CookieConsent(decision), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
