package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"leadpipe/internal/leadmodel"
)

// leadRow mirrors the sales.leads row shape used by the CRM repo's
// LeadRepository, adapted to the lead-generation domain's fields.
type leadRow struct {
	LeadID         string `db:"lead_id"`
	SourceID       string `db:"source_id"`
	SourceURL      string `db:"source_url"`
	SourceRecordID string `db:"source_record_id"`

	Title        string  `db:"title"`
	Description  string  `db:"description"`
	MarketSector string  `db:"market_sector"`
	ProjectStage string  `db:"project_stage"`

	LocationCity  sql.NullString  `db:"location_city"`
	LocationState sql.NullString  `db:"location_state"`
	LocationCounty sql.NullString `db:"location_county"`

	EstimatedAmount   sql.NullFloat64 `db:"estimated_amount"`
	EstimatedCurrency sql.NullString  `db:"estimated_currency"`
	EstimatedSqFt     sql.NullFloat64 `db:"estimated_sq_ft"`

	ConfidenceScore float64 `db:"confidence_score"`
	QualityScore    float64 `db:"quality_score"`
	Priority        string  `db:"priority"`
	WinProbability  float64 `db:"win_probability"`

	CompanyJSON  sql.NullString `db:"company_json"`
	ContactsJSON sql.NullString `db:"contacts_json"`

	Status         string       `db:"status"`
	ValidatedAt    sql.NullTime `db:"validated_at"`
	EnrichedAt     sql.NullTime `db:"enriched_at"`
	ExportedAt     sql.NullTime `db:"exported_at"`
	ArchivedAt     sql.NullTime `db:"archived_at"`
	Notes          string       `db:"notes"`
	ExportAttempts int          `db:"export_attempts"`
	ExportRecordIDsJSON sql.NullString `db:"export_record_ids_json"`

	FirstSeenAt   time.Time `db:"first_seen_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

// PostgresStore is the production LeadStore, grounded on the CRM repo's
// sqlx/lib-pq repository pattern (LeadRepository / common.go helpers),
// adapted from a multi-tenant sales-lead schema to the single-tenant
// lead-generation schema of this module.
type PostgresStore struct {
	db  *sqlx.DB
	cfg Config

	locks sync.Map // per-canonical-key *sync.Mutex, spec §4.7
	now   func() time.Time
}

// NewPostgresStore wraps an already-opened *sqlx.DB. Schema migration is
// out of scope (spec.md Non-goals); callers are expected to have applied
// the `leads`/`dedup_records` DDL out-of-band.
func NewPostgresStore(db *sqlx.DB, cfg Config) *PostgresStore {
	cfg.applyDefaults()
	return &PostgresStore{db: db, cfg: cfg, now: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, lead leadmodel.Lead) error {
	row, err := toRow(lead)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO leads (
			lead_id, source_id, source_url, source_record_id,
			title, description, market_sector, project_stage,
			location_city, location_state, location_county,
			estimated_amount, estimated_currency, estimated_sq_ft,
			confidence_score, quality_score, priority, win_probability,
			company_json, contacts_json,
			status, validated_at, enriched_at, exported_at, archived_at,
			notes, export_attempts, export_record_ids_json,
			first_seen_at, last_updated_at
		) VALUES (
			:lead_id, :source_id, :source_url, :source_record_id,
			:title, :description, :market_sector, :project_stage,
			:location_city, :location_state, :location_county,
			:estimated_amount, :estimated_currency, :estimated_sq_ft,
			:confidence_score, :quality_score, :priority, :win_probability,
			:company_json, :contacts_json,
			:status, :validated_at, :enriched_at, :exported_at, :archived_at,
			:notes, :export_attempts, :export_record_ids_json,
			:first_seen_at, :last_updated_at
		)`

	if _, err := sqlx.NamedExecContext(ctx, s.db, query, row); err != nil {
		return fmt.Errorf("store: create lead: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, leadID string) (leadmodel.Lead, error) {
	const query = `SELECT * FROM leads WHERE lead_id = $1`
	var row leadRow
	if err := sqlx.GetContext(ctx, s.db, &row, query, leadID); err != nil {
		if err == sql.ErrNoRows {
			return leadmodel.Lead{}, ErrNotFound
		}
		return leadmodel.Lead{}, fmt.Errorf("store: get lead: %w", err)
	}
	return fromRow(row)
}

func (s *PostgresStore) Update(ctx context.Context, lead leadmodel.Lead) error {
	row, err := toRow(lead)
	if err != nil {
		return err
	}

	const query = `
		UPDATE leads SET
			source_id = :source_id, source_url = :source_url, source_record_id = :source_record_id,
			title = :title, description = :description, market_sector = :market_sector, project_stage = :project_stage,
			location_city = :location_city, location_state = :location_state, location_county = :location_county,
			estimated_amount = :estimated_amount, estimated_currency = :estimated_currency, estimated_sq_ft = :estimated_sq_ft,
			confidence_score = :confidence_score, quality_score = :quality_score, priority = :priority, win_probability = :win_probability,
			company_json = :company_json, contacts_json = :contacts_json,
			status = :status, validated_at = :validated_at, enriched_at = :enriched_at, exported_at = :exported_at, archived_at = :archived_at,
			notes = :notes, export_attempts = :export_attempts, export_record_ids_json = :export_record_ids_json,
			last_updated_at = :last_updated_at
		WHERE lead_id = :lead_id`

	result, err := sqlx.NamedExecContext(ctx, s.db, query, row)
	if err != nil {
		return fmt.Errorf("store: update lead: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, leadID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE lead_id = $1`, leadID)
	if err != nil {
		return fmt.Errorf("store: delete lead: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordDedup(ctx context.Context, rec leadmodel.DedupRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	const query = `
		INSERT INTO dedup_records (duplicate_lead_id, canonical_lead_id, similarity, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, query, rec.DuplicateLeadID, rec.CanonicalLeadID, rec.Similarity, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: record dedup: %w", err)
	}
	return nil
}

// FindNearDuplicate runs the three-tier match procedure of spec §4.7.
// Tiers 1 and 2 are exact SQL lookups; tier 3 pulls candidates within the
// lookback window and scores them in-process since token-set similarity
// has no natural SQL expression over this schema.
func (s *PostgresStore) FindNearDuplicate(ctx context.Context, candidate leadmodel.Lead) (*DuplicateMatch, error) {
	if candidate.SourceURL != "" {
		var leadID string
		err := sqlx.GetContext(ctx, s.db, &leadID, `SELECT lead_id FROM leads WHERE source_url = $1 LIMIT 1`, candidate.SourceURL)
		if err == nil {
			return &DuplicateMatch{CanonicalLeadID: leadID, Similarity: 1}, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("store: find by source_url: %w", err)
		}
	}

	if candidate.SourceRecordID != "" {
		var leadID string
		err := sqlx.GetContext(ctx, s.db, &leadID,
			`SELECT lead_id FROM leads WHERE source_id = $1 AND source_record_id = $2 LIMIT 1`,
			candidate.SourceID, candidate.SourceRecordID)
		if err == nil {
			return &DuplicateMatch{CanonicalLeadID: leadID, Similarity: 1}, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("store: find by source_record_id: %w", err)
		}
	}

	cutoff := s.now().Add(-s.cfg.LookbackWindow)
	var rows []leadRow
	err := sqlx.SelectContext(ctx, s.db,
		&rows, `SELECT * FROM leads WHERE first_seen_at >= $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: select lookback candidates: %w", err)
	}

	cTitle, cLoc := candidate.NormalizedTitleLocation()
	var best *DuplicateMatch
	for _, row := range rows {
		existing, err := fromRow(row)
		if err != nil {
			continue
		}
		eTitle, eLoc := existing.NormalizedTitleLocation()
		sim := titleLocationSimilarity(cTitle, cLoc, eTitle, eLoc)
		if sim >= s.cfg.SimilarityThreshold && (best == nil || sim > best.Similarity) {
			best = &DuplicateMatch{CanonicalLeadID: existing.LeadID, Similarity: sim}
		}
	}
	return best, nil
}

// Upsert wraps the dedup-search-then-write sequence in a per-canonical
// in-process lock plus a single read-committed transaction (spec §4.7:
// "hold a short per-canonical lock to prevent duplicate inserts under
// concurrency"; §5 names the store as the single-writer shared resource,
// so the in-process lock is the binding constraint — the transaction
// exists for crash-atomicity, not for concurrency control).
func (s *PostgresStore) Upsert(ctx context.Context, candidate leadmodel.Lead) (UpsertResult, error) {
	title, loc := candidate.NormalizedTitleLocation()
	lock := s.lockFor(title + "|" + loc)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("store: begin upsert tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	result, err := s.upsertTx(ctx, tx, candidate)
	if err != nil {
		_ = tx.Rollback()
		return UpsertResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("store: commit upsert tx: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) upsertTx(ctx context.Context, tx *sqlx.Tx, candidate leadmodel.Lead) (UpsertResult, error) {
	match, err := s.findNearDuplicateTx(ctx, tx, candidate)
	if err != nil {
		return UpsertResult{}, err
	}

	if match == nil {
		if candidate.FirstSeenAt.IsZero() {
			candidate.FirstSeenAt = s.now().UTC()
		}
		candidate.LastUpdatedAt = s.now().UTC()
		candidate.Status = leadmodel.StatusNew
		row, err := toRow(candidate)
		if err != nil {
			return UpsertResult{}, err
		}
		const insert = `
			INSERT INTO leads (
				lead_id, source_id, source_url, source_record_id,
				title, description, market_sector, project_stage,
				location_city, location_state, location_county,
				estimated_amount, estimated_currency, estimated_sq_ft,
				confidence_score, quality_score, priority, win_probability,
				company_json, contacts_json,
				status, validated_at, enriched_at, exported_at, archived_at,
				notes, export_attempts, export_record_ids_json,
				first_seen_at, last_updated_at
			) VALUES (
				:lead_id, :source_id, :source_url, :source_record_id,
				:title, :description, :market_sector, :project_stage,
				:location_city, :location_state, :location_county,
				:estimated_amount, :estimated_currency, :estimated_sq_ft,
				:confidence_score, :quality_score, :priority, :win_probability,
				:company_json, :contacts_json,
				:status, :validated_at, :enriched_at, :exported_at, :archived_at,
				:notes, :export_attempts, :export_record_ids_json,
				:first_seen_at, :last_updated_at
			)`
		if _, err := sqlx.NamedExecContext(ctx, tx, insert, row); err != nil {
			return UpsertResult{}, fmt.Errorf("store: insert new lead: %w", err)
		}
		return UpsertResult{Lead: candidate, Created: true}, nil
	}

	var existingRow leadRow
	if err := sqlx.GetContext(ctx, tx, &existingRow, `SELECT * FROM leads WHERE lead_id = $1`, match.CanonicalLeadID); err != nil {
		return UpsertResult{}, fmt.Errorf("store: load canonical lead: %w", err)
	}
	existing, err := fromRow(existingRow)
	if err != nil {
		return UpsertResult{}, err
	}

	rec := leadmodel.DedupRecord{
		DuplicateLeadID: candidate.LeadID,
		CanonicalLeadID: existing.LeadID,
		Similarity:      match.Similarity,
		CreatedAt:       s.now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dedup_records (duplicate_lead_id, canonical_lead_id, similarity, created_at) VALUES ($1,$2,$3,$4)`,
		rec.DuplicateLeadID, rec.CanonicalLeadID, rec.Similarity, rec.CreatedAt); err != nil {
		return UpsertResult{}, fmt.Errorf("store: insert dedup record: %w", err)
	}

	if isTerminal(existing.Status) {
		return UpsertResult{Lead: existing, Created: false, Duplicate: match}, nil
	}

	if statusRankLess(existing.Status, leadmodel.StatusEnriched) {
		mergeConservative(&existing, candidate)
		row, err := toRow(existing)
		if err != nil {
			return UpsertResult{}, err
		}
		const update = `
			UPDATE leads SET
				title = :title, description = :description, market_sector = :market_sector, project_stage = :project_stage,
				location_city = :location_city, location_state = :location_state, location_county = :location_county,
				estimated_amount = :estimated_amount, estimated_currency = :estimated_currency, estimated_sq_ft = :estimated_sq_ft,
				confidence_score = :confidence_score, company_json = :company_json, contacts_json = :contacts_json,
				notes = :notes, last_updated_at = :last_updated_at
			WHERE lead_id = :lead_id`
		if _, err := sqlx.NamedExecContext(ctx, tx, update, row); err != nil {
			return UpsertResult{}, fmt.Errorf("store: merge existing lead: %w", err)
		}
	}
	return UpsertResult{Lead: existing, Created: false, Duplicate: match}, nil
}

func (s *PostgresStore) findNearDuplicateTx(ctx context.Context, tx *sqlx.Tx, candidate leadmodel.Lead) (*DuplicateMatch, error) {
	if candidate.SourceURL != "" {
		var leadID string
		err := sqlx.GetContext(ctx, tx, &leadID, `SELECT lead_id FROM leads WHERE source_url = $1 LIMIT 1`, candidate.SourceURL)
		if err == nil {
			return &DuplicateMatch{CanonicalLeadID: leadID, Similarity: 1}, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("store: find by source_url: %w", err)
		}
	}
	if candidate.SourceRecordID != "" {
		var leadID string
		err := sqlx.GetContext(ctx, tx, &leadID,
			`SELECT lead_id FROM leads WHERE source_id = $1 AND source_record_id = $2 LIMIT 1`,
			candidate.SourceID, candidate.SourceRecordID)
		if err == nil {
			return &DuplicateMatch{CanonicalLeadID: leadID, Similarity: 1}, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("store: find by source_record_id: %w", err)
		}
	}

	cutoff := s.now().Add(-s.cfg.LookbackWindow)
	var rows []leadRow
	if err := sqlx.SelectContext(ctx, tx, &rows, `SELECT * FROM leads WHERE first_seen_at >= $1`, cutoff); err != nil {
		return nil, fmt.Errorf("store: select lookback candidates: %w", err)
	}

	cTitle, cLoc := candidate.NormalizedTitleLocation()
	var best *DuplicateMatch
	for _, row := range rows {
		existing, err := fromRow(row)
		if err != nil {
			continue
		}
		eTitle, eLoc := existing.NormalizedTitleLocation()
		sim := titleLocationSimilarity(cTitle, cLoc, eTitle, eLoc)
		if sim >= s.cfg.SimilarityThreshold && (best == nil || sim > best.Similarity) {
			best = &DuplicateMatch{CanonicalLeadID: existing.LeadID, Similarity: sim}
		}
	}
	return best, nil
}

// ListPendingExport returns up to limit Leads at status=enriched, ordered
// oldest-last-updated-first (mirrors the CRM repo's LeadRepository.List).
func (s *PostgresStore) ListPendingExport(ctx context.Context, limit int) ([]leadmodel.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []leadRow
	err := sqlx.SelectContext(ctx, s.db,
		&rows, `SELECT * FROM leads WHERE status = $1 ORDER BY last_updated_at ASC LIMIT $2`,
		string(leadmodel.StatusEnriched), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list pending export: %w", err)
	}
	out := make([]leadmodel.Lead, 0, len(rows))
	for _, row := range rows {
		lead, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, nil
}

func (s *PostgresStore) lockFor(key string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func toRow(lead leadmodel.Lead) (leadRow, error) {
	companyJSON, err := marshalPtr(lead.Company)
	if err != nil {
		return leadRow{}, fmt.Errorf("store: marshal company: %w", err)
	}
	contactsJSON, err := marshalOmitEmpty(lead.Contacts)
	if err != nil {
		return leadRow{}, fmt.Errorf("store: marshal contacts: %w", err)
	}
	exportIDsJSON, err := marshalOmitEmpty(lead.ExportRecordIDs)
	if err != nil {
		return leadRow{}, fmt.Errorf("store: marshal export record ids: %w", err)
	}

	row := leadRow{
		LeadID: lead.LeadID, SourceID: lead.SourceID, SourceURL: lead.SourceURL, SourceRecordID: lead.SourceRecordID,
		Title: lead.Title, Description: lead.Description,
		MarketSector: string(lead.MarketSector), ProjectStage: string(lead.ProjectStage),
		LocationCity: nullString(lead.Location.City), LocationState: nullString(lead.Location.State), LocationCounty: nullString(lead.Location.County),
		ConfidenceScore: lead.ConfidenceScore, QualityScore: lead.QualityScore,
		Priority: string(lead.Priority), WinProbability: lead.WinProbability,
		CompanyJSON: companyJSON, ContactsJSON: contactsJSON,
		Status: string(lead.Status),
		ValidatedAt: nullTime(lead.ValidatedAt), EnrichedAt: nullTime(lead.EnrichedAt),
		ExportedAt: nullTime(lead.ExportedAt), ArchivedAt: nullTime(lead.ArchivedAt),
		Notes: lead.Notes, ExportAttempts: lead.ExportAttempts, ExportRecordIDsJSON: exportIDsJSON,
		FirstSeenAt: lead.FirstSeenAt, LastUpdatedAt: lead.LastUpdatedAt,
	}
	if lead.EstimatedValue != nil {
		row.EstimatedAmount = sql.NullFloat64{Float64: lead.EstimatedValue.Amount, Valid: true}
		row.EstimatedCurrency = sql.NullString{String: lead.EstimatedValue.Currency, Valid: true}
	}
	if lead.EstimatedSize != nil {
		row.EstimatedSqFt = sql.NullFloat64{Float64: lead.EstimatedSize.SquareFeet, Valid: true}
	}
	return row, nil
}

func fromRow(row leadRow) (leadmodel.Lead, error) {
	lead := leadmodel.Lead{
		LeadID: row.LeadID, SourceID: row.SourceID, SourceURL: row.SourceURL, SourceRecordID: row.SourceRecordID,
		Title: row.Title, Description: row.Description,
		MarketSector: leadmodel.MarketSector(row.MarketSector), ProjectStage: leadmodel.ProjectStage(row.ProjectStage),
		Location: leadmodel.Location{City: row.LocationCity.String, State: row.LocationState.String, County: row.LocationCounty.String},
		ConfidenceScore: row.ConfidenceScore, QualityScore: row.QualityScore,
		Priority: leadmodel.Priority(row.Priority), WinProbability: row.WinProbability,
		Status: leadmodel.LeadStatus(row.Status),
		Notes: row.Notes, ExportAttempts: row.ExportAttempts,
		FirstSeenAt: row.FirstSeenAt, LastUpdatedAt: row.LastUpdatedAt,
	}
	if row.ValidatedAt.Valid {
		lead.ValidatedAt = row.ValidatedAt.Time
	}
	if row.EnrichedAt.Valid {
		lead.EnrichedAt = row.EnrichedAt.Time
	}
	if row.ExportedAt.Valid {
		lead.ExportedAt = row.ExportedAt.Time
	}
	if row.ArchivedAt.Valid {
		lead.ArchivedAt = row.ArchivedAt.Time
	}
	if row.EstimatedAmount.Valid {
		lead.EstimatedValue = &leadmodel.Money{Amount: row.EstimatedAmount.Float64, Currency: row.EstimatedCurrency.String}
	}
	if row.EstimatedSqFt.Valid {
		lead.EstimatedSize = &leadmodel.Area{SquareFeet: row.EstimatedSqFt.Float64}
	}
	if row.CompanyJSON.Valid {
		var c leadmodel.Company
		if err := json.Unmarshal([]byte(row.CompanyJSON.String), &c); err != nil {
			return leadmodel.Lead{}, fmt.Errorf("store: unmarshal company: %w", err)
		}
		lead.Company = &c
	}
	if row.ContactsJSON.Valid {
		if err := json.Unmarshal([]byte(row.ContactsJSON.String), &lead.Contacts); err != nil {
			return leadmodel.Lead{}, fmt.Errorf("store: unmarshal contacts: %w", err)
		}
	}
	if row.ExportRecordIDsJSON.Valid {
		if err := json.Unmarshal([]byte(row.ExportRecordIDsJSON.String), &lead.ExportRecordIDs); err != nil {
			return leadmodel.Lead{}, fmt.Errorf("store: unmarshal export record ids: %w", err)
		}
	}
	return lead, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func marshalPtr(v *leadmodel.Company) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func marshalOmitEmpty(v interface{}) (sql.NullString, error) {
	switch t := v.(type) {
	case []leadmodel.Contact:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
