package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/repository"
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type executable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

// Ensure Repository satisfies the interface
var _ repository.Repository = &Repository{}

type Repository struct {
	queryable
	executable
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db, db}
}

func NewRepositoryTx(tx *sql.Tx) *Repository {
	return &Repository{tx, tx}
}

const triggerColumns = "id, crm_type, crm_id, crm_order, medication, rx_id, rx_number, type, raw, opened, shipped, adhoc_type, created_at, updated_at"

func (r *Repository) GetPriorTrigger(ctx context.Context, crmType, crmID, medication, excludeOrder string) (*models.Trigger, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(triggerColumns).From("triggers")
	sb.Where(sb.Equal("crm_type", crmType), sb.Equal("crm_id", crmID),
		sb.Equal("medication", medication), sb.NotEqual("crm_order", excludeOrder))
	sb.OrderBy("created_at").Desc().Limit(1)

	query, args := sb.Build()
	return r.scanTrigger(r.QueryRowContext(ctx, query, args...))
}

func (r *Repository) GetLatestTrigger(ctx context.Context, crmType, crmID string) (*models.Trigger, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(triggerColumns).From("triggers")
	sb.Where(sb.Equal("crm_type", crmType), sb.Equal("crm_id", crmID))
	sb.OrderBy("created_at").Desc().Limit(1)

	query, args := sb.Build()
	return r.scanTrigger(r.QueryRowContext(ctx, query, args...))
}

func (r *Repository) GetTriggerByID(ctx context.Context, id uint) (*models.Trigger, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(triggerColumns).From("triggers")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	return r.scanTrigger(r.QueryRowContext(ctx, query, args...))
}

func (r *Repository) scanTrigger(row *sql.Row) (*models.Trigger, error) {
	var (
		t                   models.Trigger
		rxNumber, adhocType sql.NullString
		opened, shipped     sql.NullTime
	)
	err := row.Scan(&t.ID, &t.CRMType, &t.CRMID, &t.CRMOrder, &t.Medication,
		&t.RxID, &rxNumber, &t.Type, &t.Raw, &opened, &shipped, &adhocType,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrTriggerNotFound
		}
		return nil, err
	}
	t.RxNumber, t.AdhocType = rxNumber.String, adhocType.String
	if opened.Valid {
		t.Opened = &opened.Time
	}
	if shipped.Valid {
		t.Shipped = &shipped.Time
	}
	return &t, nil
}

const upsertTriggerQuery = `INSERT INTO triggers (crm_type, crm_id, crm_order, medication, rx_id, rx_number, type, raw, adhoc_type, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
ON CONFLICT (crm_type, crm_id, crm_order, medication) DO UPDATE
SET rx_id = EXCLUDED.rx_id, rx_number = EXCLUDED.rx_number, type = EXCLUDED.type, raw = EXCLUDED.raw, adhoc_type = EXCLUDED.adhoc_type, updated_at = NOW()`

func (r *Repository) UpsertTrigger(ctx context.Context, trigger models.Trigger) error {
	_, err := r.ExecContext(ctx, upsertTriggerQuery,
		trigger.CRMType, trigger.CRMID, trigger.CRMOrder, trigger.Medication,
		trigger.RxID, trigger.RxNumber, trigger.Type, trigger.Raw, trigger.AdhocType)
	return err
}

const updateTriggerShippedQuery = `UPDATE triggers
SET shipped = $1, opened = COALESCE(opened, $1), updated_at = NOW()
WHERE id = $2`

func (r *Repository) UpdateTriggerShipped(ctx context.Context, id uint, shipped time.Time) error {
	result, err := r.ExecContext(ctx, updateTriggerShippedQuery, shipped, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrTriggerNotFound
	}
	return nil
}

const upsertEligibilityQuery = `INSERT INTO eligibilities (customer_id, member_since, member_thru, created_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW())
ON CONFLICT (customer_id) DO UPDATE
SET member_thru = EXCLUDED.member_thru, updated_at = NOW()`

func (r *Repository) UpsertEligibility(ctx context.Context, elig models.Eligibility) error {
	_, err := r.ExecContext(ctx, upsertEligibilityQuery,
		elig.CustomerID, elig.MemberSince, elig.MemberThru)
	return err
}

func (r *Repository) GetEligibilities(ctx context.Context, thruCutoff time.Time) ([]models.Eligibility, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("customer_id", "member_since", "member_thru", "created_at", "updated_at")
	sb.From("eligibilities")
	sb.Where(sb.GreaterEqualThan("member_thru", thruCutoff))
	sb.OrderBy("customer_id").Asc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eligs []models.Eligibility
	for rows.Next() {
		var e models.Eligibility
		if err := rows.Scan(&e.CustomerID, &e.MemberSince, &e.MemberThru,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		eligs = append(eligs, e)
	}
	return eligs, rows.Err()
}

func (r *Repository) GetRxNumber(ctx context.Context, memberID string) (*models.RxNumber, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("member_id", "rx_number").From("rx_numbers")
	sb.Where(sb.Equal("member_id", memberID))

	query, args := sb.Build()
	var rx models.RxNumber
	if err := r.QueryRowContext(ctx, query, args...).Scan(&rx.MemberID, &rx.Number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrRxNumberNotFound
		}
		return nil, err
	}
	return &rx, nil
}

const upsertRxNumberQuery = `INSERT INTO rx_numbers (member_id, rx_number)
VALUES ($1, $2)
ON CONFLICT (member_id) DO UPDATE SET rx_number = EXCLUDED.rx_number`

func (r *Repository) UpsertRxNumber(ctx context.Context, rx models.RxNumber) error {
	_, err := r.ExecContext(ctx, upsertRxNumberQuery, rx.MemberID, rx.Number)
	return err
}

const upsertOutboundQuery = `INSERT INTO outbounds (crm_type, crm_id, crm_order, queue, reason, ready, wd_trigger_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
ON CONFLICT (crm_type, crm_id, queue) DO UPDATE
SET crm_order = EXCLUDED.crm_order, reason = EXCLUDED.reason, ready = EXCLUDED.ready, wd_trigger_id = EXCLUDED.wd_trigger_id, updated_at = NOW()`

func (r *Repository) UpsertOutbound(ctx context.Context, ob models.Outbound) error {
	var triggerID interface{}
	if ob.TriggerID != nil {
		triggerID = *ob.TriggerID
	}
	_, err := r.ExecContext(ctx, upsertOutboundQuery,
		ob.CRMType, ob.CRMID, ob.CRMOrder, ob.Queue, ob.Reason, ob.Ready, triggerID)
	return err
}

func (r *Repository) GetOutboundByID(ctx context.Context, id uint) (*models.Outbound, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "crm_type", "crm_id", "crm_order", "queue", "reason", "ready", "wd_trigger_id", "created_at", "updated_at")
	sb.From("outbounds").Where(sb.Equal("id", id))

	query, args := sb.Build()
	var (
		ob        models.Outbound
		crmOrder  sql.NullString
		triggerID sql.NullInt64
	)
	err := r.QueryRowContext(ctx, query, args...).Scan(&ob.ID, &ob.CRMType,
		&ob.CRMID, &crmOrder, &ob.Queue, &ob.Reason, &ob.Ready, &triggerID,
		&ob.CreatedAt, &ob.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrOutboundNotFound
		}
		return nil, err
	}
	ob.CRMOrder = crmOrder.String
	if triggerID.Valid {
		tid := uint(triggerID.Int64)
		ob.TriggerID = &tid
	}
	return &ob, nil
}

func (r *Repository) UpdateOutboundReady(ctx context.Context, id uint, ready bool) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("outbounds")
	ub.Set(ub.Assign("ready", ready))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrOutboundNotUpdated
	}
	return nil
}

func (r *Repository) DeleteOutbound(ctx context.Context, id uint) error {
	db := sqlFlavor.NewDeleteBuilder().DeleteFrom("outbounds")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

const insertNeverStartedQuery = `INSERT INTO never_starteds (crm_type, crm_id, queue, ready, created_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (crm_type, crm_id, queue) DO NOTHING`

func (r *Repository) InsertNeverStarted(ctx context.Context, ns models.NeverStarted) error {
	_, err := r.ExecContext(ctx, insertNeverStartedQuery,
		ns.CRMType, ns.CRMID, ns.Queue, ns.Ready)
	return err
}

const insertAdHocQuery = `INSERT INTO adhocs (crm_type, crm_id, crm_order, type, wd_trigger_id, memo_user, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (crm_type, crm_id, crm_order, type) DO NOTHING`

func (r *Repository) InsertAdHoc(ctx context.Context, adhoc models.AdHoc) error {
	var triggerID sql.NullInt64
	if adhoc.TriggerID != 0 {
		triggerID = sql.NullInt64{Int64: int64(adhoc.TriggerID), Valid: true}
	}
	_, err := r.ExecContext(ctx, insertAdHocQuery,
		adhoc.CRMType, adhoc.CRMID, adhoc.CRMOrder, adhoc.Type,
		triggerID, adhoc.MemoUser)
	return err
}

const createFeedbackFileQuery = `INSERT INTO feedback_files (name, report, timestamp, import_status)
VALUES ($1, $2, $3, $4) RETURNING id`

func (r *Repository) CreateFeedbackFile(ctx context.Context, file *models.FeedbackFile) error {
	return r.QueryRowContext(ctx, createFeedbackFileQuery,
		file.Name, file.Report, file.Timestamp, file.ImportStatus).Scan(&file.ID)
}

func (r *Repository) UpdateFeedbackFileStatus(ctx context.Context, id uint, status string) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("feedback_files")
	ub.Set(ub.Assign("import_status", status))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

// The lease acquire is a single check-and-set statement so concurrent
// scheduler instances race inside the database, not the process.
const acquireLeaseQuery = `INSERT INTO job_leases (name, holder, expires_at)
VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
ON CONFLICT (name) DO UPDATE
SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
WHERE job_leases.expires_at < NOW()`

func (r *Repository) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	result, err := r.ExecContext(ctx, acquireLeaseQuery, name, holder, int64(ttl.Seconds()))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

const releaseLeaseQuery = `DELETE FROM job_leases WHERE name = $1 AND holder = $2`

func (r *Repository) ReleaseLease(ctx context.Context, name, holder string) error {
	_, err := r.ExecContext(ctx, releaseLeaseQuery, name, holder)
	return err
}
