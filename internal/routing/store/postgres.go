package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"crisis-routing/internal/models"
)

// PostgresRecordStore persists routing records in an isolated table, apart
// from family-facing data.
type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

func (s *PostgresRecordStore) Create(ctx context.Context, record *models.RoutingRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO routing_records
			(id, signal_id, partner_id, jurisdiction, status, used_fallback,
			 started_at, sent_at, acknowledged_at, partner_reference, attempts, last_error, annotations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		record.ID, record.SignalID, record.PartnerID, record.Jurisdiction,
		string(record.Status), record.UsedFallback, record.StartedAt,
		record.SentAt, record.AcknowledgedAt, record.PartnerReference,
		record.Attempts, record.LastError, pq.Array(record.Annotations),
	)
	if err != nil {
		return fmt.Errorf("insert routing record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, id string) (*models.RoutingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, signal_id, partner_id, jurisdiction, status, used_fallback,
		       started_at, sent_at, acknowledged_at, partner_reference, attempts, last_error, annotations
		FROM routing_records WHERE id = $1`, id)
	return scanRecord(row)
}

// Transition reads the record, checks the move is a legal forward step, and
// writes with the previous status in the predicate so concurrent writers
// cannot race a record past a terminal state.
func (s *PostgresRecordStore) Transition(ctx context.Context, id string, next models.RoutingStatus, apply func(*models.RoutingRecord)) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if record.Status.IsTerminal() {
		return ErrTerminal
	}
	if !record.Status.CanTransition(next) {
		return ErrInvalidTransition
	}

	prev := record.Status
	record.Status = next
	if apply != nil {
		apply(record)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE routing_records
		SET status = $1, partner_id = $2, used_fallback = $3, sent_at = $4,
		    acknowledged_at = $5, partner_reference = $6, attempts = $7, last_error = $8
		WHERE id = $9 AND status = $10`,
		string(record.Status), record.PartnerID, record.UsedFallback,
		record.SentAt, record.AcknowledgedAt, record.PartnerReference,
		record.Attempts, record.LastError, id, string(prev),
	)
	if err != nil {
		return fmt.Errorf("update routing record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update routing record: %w", err)
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *PostgresRecordStore) Annotate(ctx context.Context, id, note string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE routing_records SET annotations = array_append(annotations, $1) WHERE id = $2`,
		note, id)
	if err != nil {
		return fmt.Errorf("annotate routing record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("annotate routing record: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresRecordStore) ListStale(ctx context.Context, cutoff time.Time) ([]*models.RoutingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, signal_id, partner_id, jurisdiction, status, used_fallback,
		       started_at, sent_at, acknowledged_at, partner_reference, attempts, last_error, annotations
		FROM routing_records
		WHERE status NOT IN ('sent', 'failed') AND started_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale records: %w", err)
	}
	defer rows.Close()

	var records []*models.RoutingRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.RoutingRecord, error) {
	var record models.RoutingRecord
	var status string
	var partnerID, partnerRef, lastError sql.NullString
	var sentAt, ackedAt sql.NullTime
	var annotations pq.StringArray

	err := row.Scan(
		&record.ID, &record.SignalID, &partnerID, &record.Jurisdiction,
		&status, &record.UsedFallback, &record.StartedAt, &sentAt, &ackedAt,
		&partnerRef, &record.Attempts, &lastError, &annotations,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan routing record: %w", err)
	}

	record.Status = models.RoutingStatus(status)
	record.PartnerID = partnerID.String
	record.PartnerReference = partnerRef.String
	record.LastError = lastError.String
	record.Annotations = annotations
	if sentAt.Valid {
		record.SentAt = &sentAt.Time
	}
	if ackedAt.Valid {
		record.AcknowledgedAt = &ackedAt.Time
	}
	return &record, nil
}

// PostgresPartnerStore reads the externally managed partner tables.
type PostgresPartnerStore struct {
	db *sql.DB
}

func NewPostgresPartnerStore(db *sql.DB) *PostgresPartnerStore {
	return &PostgresPartnerStore{db: db}
}

func (s *PostgresPartnerStore) Registry(ctx context.Context) (*models.PartnerRegistry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT jurisdiction_map, fallback_partners FROM partner_registry LIMIT 1`)

	var rawMap []byte
	var fallback pq.StringArray
	if err := row.Scan(&rawMap, &fallback); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan partner registry: %w", err)
	}

	registry := models.PartnerRegistry{FallbackPartners: fallback}
	if err := json.Unmarshal(rawMap, &registry.JurisdictionMap); err != nil {
		return nil, fmt.Errorf("decode jurisdiction map: %w", err)
	}
	return &registry, nil
}

func (s *PostgresPartnerStore) Partners(ctx context.Context) ([]models.CrisisPartnerConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT partner_id, name, status, webhook_url, public_key,
		       jurisdictions, is_fallback, priority, key_expires_at
		FROM crisis_partners`)
	if err != nil {
		return nil, fmt.Errorf("query partners: %w", err)
	}
	defer rows.Close()

	var partners []models.CrisisPartnerConfig
	for rows.Next() {
		var partner models.CrisisPartnerConfig
		var jurisdictions pq.StringArray
		var keyExpiresAt sql.NullTime
		if err := rows.Scan(
			&partner.PartnerID, &partner.Name, &partner.Status,
			&partner.WebhookURL, &partner.PublicKey, &jurisdictions,
			&partner.IsFallback, &partner.Priority, &keyExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		partner.Jurisdictions = jurisdictions
		if keyExpiresAt.Valid {
			t := keyExpiresAt.Time
			partner.KeyExpiresAt = &t
		}
		partners = append(partners, partner)
	}
	return partners, rows.Err()
}
