package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Execution listing limits.
const (
	defaultExecutionLimit = 20
	maxExecutionLimit     = 200
)

// Repository defines strategy and execution record persistence.
//
// Strategy definitions are authored elsewhere; the engine only reads them,
// plus CreateStrategy/DeleteStrategy for fixtures and tooling. Execution
// records are owned by the engine.
type Repository interface {
	// Strategies
	GetStrategy(ctx context.Context, id string) (*Strategy, error)
	ListStrategyIDs(ctx context.Context, kind TriggerKind, projectID string) ([]string, error)
	CreateStrategy(ctx context.Context, s *Strategy) error
	DeleteStrategy(ctx context.Context, id string) error

	// Execution records
	CreateExecution(ctx context.Context, rec *ExecutionRecord) error
	UpdateExecution(ctx context.Context, rec *ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*ExecutionRecord, error)
	ListExecutions(ctx context.Context, strategyID string, limit int) ([]ExecutionRecord, error)
	PurgeExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
//
// Every method drains and closes its result set before issuing the next
// query, so a firing never holds more than one pooled connection at a time.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetStrategy loads a strategy with its groups, conditions and actions,
// each sorted by order.
func (r *SQLiteRepository) GetStrategy(ctx context.Context, id string) (*Strategy, error) {
	var (
		s                          Strategy
		ownerID, ownerEmail, descr sql.NullString
		enabled                    int
		kind                       string
		createdAt, updatedAt       string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, owner_id, owner_email, name, description, enabled,
			trigger_kind, created_at, updated_at
		FROM strategies WHERE id = ?`, id,
	).Scan(&s.ID, &s.ProjectID, &ownerID, &ownerEmail, &s.Name, &descr, &enabled,
		&kind, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyNotFound
		}
		return nil, fmt.Errorf("querying strategy: %w", err)
	}
	s.OwnerID = ownerID.String
	s.OwnerEmail = ownerEmail.String
	s.Description = descr.String
	s.Enabled = enabled != 0
	s.TriggerKind = TriggerKind(kind)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)

	if s.Groups, err = r.loadGroups(ctx, id); err != nil {
		return nil, err
	}
	if s.Actions, err = r.loadActions(ctx, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepository) loadGroups(ctx context.Context, strategyID string) ([]ConditionGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, logical_operator, sort_order
		FROM condition_groups WHERE strategy_id = ?
		ORDER BY sort_order, id`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("querying condition groups: %w", err)
	}
	groups := []ConditionGroup{}
	index := make(map[string]int)
	for rows.Next() {
		g := ConditionGroup{StrategyID: strategyID, Conditions: []Condition{}}
		var op string
		if err := rows.Scan(&g.ID, &op, &g.Order); err != nil {
			rows.Close() //nolint:errcheck,sqlclosecheck // Closing on scan failure
			return nil, fmt.Errorf("scanning condition group: %w", err)
		}
		g.Operator = LogicalOperator(op)
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterating condition groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT c.id, c.group_id, c.sort_order, c.data_source, c.operator, c.threshold_kind,
			c.sensor_id, c.device_id, c.device_attribute, c.threshold_static,
			c.threshold_sensor_id, c.threshold_device_id, c.threshold_device_attribute
		FROM conditions c
		JOIN condition_groups g ON g.id = c.group_id
		WHERE g.strategy_id = ?
		ORDER BY c.sort_order, c.id`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("querying conditions: %w", err)
	}
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			rows.Close() //nolint:errcheck,sqlclosecheck // Closing on scan failure
			return nil, fmt.Errorf("scanning condition: %w", err)
		}
		if i, ok := index[c.GroupID]; ok {
			groups[i].Conditions = append(groups[i].Conditions, c)
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterating conditions: %w", err)
	}
	return groups, nil
}

func (r *SQLiteRepository) loadActions(ctx context.Context, strategyID string) ([]Action, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sort_order, kind, actuator_id, command_payload_template,
			recipient_kind, recipient_value, message_template,
			webhook_url, webhook_method, webhook_headers_template, webhook_payload_template
		FROM actions WHERE strategy_id = ?
		ORDER BY sort_order, id`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	actions := []Action{}
	for rows.Next() {
		a := Action{StrategyID: strategyID}
		var (
			kind                                         string
			actuatorID, payloadTmpl, recipientKind       sql.NullString
			recipientValue, messageTmpl, webhookURL      sql.NullString
			webhookMethod, headersTmpl, webhookPayloadTm sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Order, &kind, &actuatorID, &payloadTmpl,
			&recipientKind, &recipientValue, &messageTmpl,
			&webhookURL, &webhookMethod, &headersTmpl, &webhookPayloadTm); err != nil {
			rows.Close() //nolint:errcheck,sqlclosecheck // Closing on scan failure
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		a.Kind = ActionKind(kind)
		a.ActuatorID = actuatorID.String
		a.CommandPayloadTemplate = payloadTmpl.String
		a.RecipientKind = RecipientKind(recipientKind.String)
		a.RecipientValue = recipientValue.String
		a.MessageTemplate = messageTmpl.String
		a.WebhookURL = webhookURL.String
		a.WebhookMethod = webhookMethod.String
		a.WebhookHeadersTemplate = headersTmpl.String
		a.WebhookPayloadTemplate = webhookPayloadTm.String
		actions = append(actions, a)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return actions, nil
}

// ListStrategyIDs returns the IDs of strategies with the given trigger kind.
// An empty projectID matches every project. Disabled strategies are
// included; the engine gates on enablement at firing time.
func (r *SQLiteRepository) ListStrategyIDs(ctx context.Context, kind TriggerKind, projectID string) ([]string, error) {
	query := `SELECT id FROM strategies WHERE trigger_kind = ?`
	args := []any{string(kind)}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying strategies: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning strategy id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating strategies: %w", err)
	}
	return ids, nil
}

// CreateStrategy validates and inserts a strategy with its groups,
// conditions and actions in one transaction. Missing IDs are generated.
func (r *SQLiteRepository) CreateStrategy(ctx context.Context, s *Strategy) error { //nolint:gocognit // nested insert of the strategy tree
	if err := ValidateStrategy(s); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = GenerateID()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO strategies (id, project_id, owner_id, owner_email, name, description,
			enabled, trigger_kind, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, nullableString(s.OwnerID), nullableString(s.OwnerEmail),
		s.Name, nullableString(s.Description), boolToInt(s.Enabled), string(s.TriggerKind),
		s.CreatedAt.UTC().Format(time.RFC3339), s.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrStrategyExists
		}
		return fmt.Errorf("inserting strategy: %w", err)
	}

	for gi := range s.Groups {
		g := &s.Groups[gi]
		if g.ID == "" {
			g.ID = GenerateID()
		}
		g.StrategyID = s.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO condition_groups (id, strategy_id, logical_operator, sort_order) VALUES (?, ?, ?, ?)`,
			g.ID, s.ID, string(g.Operator), g.Order,
		); err != nil {
			return fmt.Errorf("inserting condition group: %w", err)
		}

		for ci := range g.Conditions {
			c := &g.Conditions[ci]
			if c.ID == "" {
				c.ID = GenerateID()
			}
			c.GroupID = g.ID
			if c.ThresholdKind == "" {
				c.ThresholdKind = ThresholdStatic
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conditions (id, group_id, sort_order, data_source, operator, threshold_kind,
					sensor_id, device_id, device_attribute, threshold_static,
					threshold_sensor_id, threshold_device_id, threshold_device_attribute)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, g.ID, c.Order, string(c.Source), string(c.Operator), string(c.ThresholdKind),
				nullableString(c.SensorID), nullableString(c.DeviceID), nullableString(c.DeviceAttribute),
				nullableString(c.ThresholdStatic), nullableString(c.ThresholdSensorID),
				nullableString(c.ThresholdDeviceID), nullableString(c.ThresholdDeviceAttribute),
			); err != nil {
				return fmt.Errorf("inserting condition: %w", err)
			}
		}
	}

	for ai := range s.Actions {
		a := &s.Actions[ai]
		if a.ID == "" {
			a.ID = GenerateID()
		}
		a.StrategyID = s.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO actions (id, strategy_id, sort_order, kind, actuator_id, command_payload_template,
				recipient_kind, recipient_value, message_template,
				webhook_url, webhook_method, webhook_headers_template, webhook_payload_template)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, s.ID, a.Order, string(a.Kind), nullableString(a.ActuatorID),
			nullableString(a.CommandPayloadTemplate), nullableString(string(a.RecipientKind)),
			nullableString(a.RecipientValue), nullableString(a.MessageTemplate),
			nullableString(a.WebhookURL), nullableString(a.WebhookMethod),
			nullableString(a.WebhookHeadersTemplate), nullableString(a.WebhookPayloadTemplate),
		); err != nil {
			return fmt.Errorf("inserting action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing strategy: %w", err)
	}
	return nil
}

// DeleteStrategy removes a strategy; its groups, conditions and actions
// cascade. Execution records are kept.
func (r *SQLiteRepository) DeleteStrategy(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting strategy: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrStrategyNotFound
	}
	return nil
}

// CreateExecution inserts a new execution record.
func (r *SQLiteRepository) CreateExecution(ctx context.Context, rec *ExecutionRecord) error {
	triggerJSON, resultsJSON, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_records (id, strategy_id, strategy_name, status,
			trigger_context, results, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StrategyID, rec.StrategyName, string(rec.Status),
		triggerJSON, resultsJSON, rec.CreatedAt.UTC().Format(time.RFC3339),
		nullableTime(rec.StartedAt), nullableTime(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting execution record: %w", err)
	}
	return nil
}

// UpdateExecution writes the status, results and timestamps of a record.
// Only pending and processing records can change: a finalized record
// returns ErrExecutionFinalized and is left untouched.
func (r *SQLiteRepository) UpdateExecution(ctx context.Context, rec *ExecutionRecord) error {
	_, resultsJSON, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE execution_records
		SET status = ?, results = ?, started_at = ?, completed_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')`,
		string(rec.Status), resultsJSON,
		nullableTime(rec.StartedAt), nullableTime(rec.CompletedAt), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating execution record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err = r.db.QueryRowContext(ctx, `SELECT 1 FROM execution_records WHERE id = ?`, rec.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrExecutionNotFound
		}
		if err != nil {
			return fmt.Errorf("checking execution record: %w", err)
		}
		return ErrExecutionFinalized
	}
	return nil
}

// executionColumns selects a record plus whether its strategy still exists.
const executionColumns = `e.id, e.strategy_id, e.strategy_name, e.status, e.trigger_context,
	e.results, e.created_at, e.started_at, e.completed_at, s.id IS NOT NULL`

// GetExecution retrieves an execution record by ID. Records whose strategy
// was deleted report DeletedStrategyName.
func (r *SQLiteRepository) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+`
		FROM execution_records e
		LEFT JOIN strategies s ON s.id = e.strategy_id
		WHERE e.id = ?`, id)
	rec, err := scanExecutionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("querying execution record: %w", err)
	}
	return rec, nil
}

// ListExecutions returns the most recent records of a strategy, newest first.
func (r *SQLiteRepository) ListExecutions(ctx context.Context, strategyID string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = defaultExecutionLimit
	}
	if limit > maxExecutionLimit {
		limit = maxExecutionLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM execution_records e
		LEFT JOIN strategies s ON s.id = e.strategy_id
		WHERE e.strategy_id = ?
		ORDER BY e.created_at DESC, e.rowid DESC
		LIMIT ?`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying execution records: %w", err)
	}
	defer rows.Close()

	records := []ExecutionRecord{}
	for rows.Next() {
		rec, err := scanExecutionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating execution records: %w", err)
	}
	return records, nil
}

// PurgeExecutionsBefore deletes records created before cutoff and returns
// how many were removed.
func (r *SQLiteRepository) PurgeExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM execution_records WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("purging execution records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// ─── Scanning ──────────────────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCondition(scanner rowScanner) (Condition, error) {
	var (
		c                                       Condition
		source, op, thresholdKind               string
		sensorID, deviceID, deviceAttr, static  sql.NullString
		tSensorID, tDeviceID, tDeviceAttr       sql.NullString
	)
	if err := scanner.Scan(&c.ID, &c.GroupID, &c.Order, &source, &op, &thresholdKind,
		&sensorID, &deviceID, &deviceAttr, &static,
		&tSensorID, &tDeviceID, &tDeviceAttr); err != nil {
		return Condition{}, err
	}
	c.Source = DataSource(source)
	c.Operator = Operator(op)
	c.ThresholdKind = ThresholdKind(thresholdKind)
	c.SensorID = sensorID.String
	c.DeviceID = deviceID.String
	c.DeviceAttribute = deviceAttr.String
	c.ThresholdStatic = static.String
	c.ThresholdSensorID = tSensorID.String
	c.ThresholdDeviceID = tDeviceID.String
	c.ThresholdDeviceAttribute = tDeviceAttr.String
	return c, nil
}

func scanExecutionRow(scanner rowScanner) (*ExecutionRecord, error) {
	var (
		rec                     ExecutionRecord
		status, triggerJSON     string
		resultsJSON, createdAt  string
		startedAt, completedAt  sql.NullString
		strategyExists          bool
	)
	if err := scanner.Scan(&rec.ID, &rec.StrategyID, &rec.StrategyName, &status,
		&triggerJSON, &resultsJSON, &createdAt, &startedAt, &completedAt, &strategyExists); err != nil {
		return nil, err
	}

	rec.Status = ExecutionStatus(status)
	rec.CreatedAt = parseTime(createdAt)
	rec.StartedAt = parseNullableTime(startedAt)
	rec.CompletedAt = parseNullableTime(completedAt)
	if !strategyExists {
		rec.StrategyName = DeletedStrategyName
	}

	rec.Trigger = TriggerContext{}
	if err := json.Unmarshal([]byte(triggerJSON), &rec.Trigger); err != nil {
		return nil, fmt.Errorf("unmarshalling trigger context: %w", err)
	}
	rec.Results = []ActionResult{}
	if err := json.Unmarshal([]byte(resultsJSON), &rec.Results); err != nil {
		return nil, fmt.Errorf("unmarshalling action results: %w", err)
	}
	return &rec, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func marshalRecord(rec *ExecutionRecord) (triggerJSON, resultsJSON string, err error) {
	trigger := rec.Trigger
	if trigger == nil {
		trigger = TriggerContext{}
	}
	t, err := json.Marshal(trigger)
	if err != nil {
		return "", "", fmt.Errorf("marshalling trigger context: %w", err)
	}
	results := rec.Results
	if results == nil {
		results = []ActionResult{}
	}
	res, err := json.Marshal(results)
	if err != nil {
		return "", "", fmt.Errorf("marshalling action results: %w", err)
	}
	return string(t), string(res), nil
}

// closeRows reports the iteration error, if any, then closes rows.
func closeRows(rows *sql.Rows) error {
	iterErr := rows.Err()
	closeErr := rows.Close()
	if iterErr != nil {
		return iterErr
	}
	return closeErr
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "primary key")
}
