package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/util"
)

// sqlBase implements the domain stores over database/sql. SQLite and Postgres
// differ only in placeholder syntax, which rebind handles.
type sqlBase struct {
	db       *sql.DB
	name     string
	numbered bool
}

// rebind rewrites ? placeholders to $1..$n for Postgres.
func (b *sqlBase) rebind(query string) string {
	if !b.numbered {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// recordPayload is the JSON column holding the kind-specific part of a record.
type recordPayload struct {
	Mood   *models.MoodLog       `json:"mood,omitempty"`
	Chat   *models.ChatTurn      `json:"chat,omitempty"`
	Selfie *models.SelfieEmotion `json:"selfie,omitempty"`
}

func (b *sqlBase) AppendRecord(ctx context.Context, rec models.InteractionRecord) (models.InteractionRecord, error) {
	if err := rec.Validate(); err != nil {
		return rec, err
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.ID == "" {
		rec.ID = util.NewRecordID(util.PrefixInteraction, rec.Timestamp)
	}
	payload, err := json.Marshal(recordPayload{Mood: rec.Mood, Chat: rec.Chat, Selfie: rec.Selfie})
	if err != nil {
		return rec, fmt.Errorf("failed to marshal record payload: %w", err)
	}
	_, err = b.db.ExecContext(ctx, b.rebind(
		`INSERT INTO interactions (id, user_id, kind, ts, payload_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.UserID, string(rec.Kind), rec.Timestamp, string(payload), time.Now().UTC())
	if err != nil {
		slog.Error(b.name+".AppendRecord failed", "error", err, "userID", rec.UserID, "kind", rec.Kind)
		return rec, fmt.Errorf("failed to insert %s record for %s: %w", rec.Kind, rec.UserID, err)
	}
	slog.Debug(b.name+".AppendRecord succeeded", "id", rec.ID, "userID", rec.UserID, "kind", rec.Kind)
	return rec, nil
}

func (b *sqlBase) QueryRecords(ctx context.Context, userID string, kind models.RecordKind, tr models.TimeRange) ([]models.InteractionRecord, error) {
	query := `SELECT id, user_id, kind, ts, payload_json FROM interactions WHERE user_id = ? AND kind = ?`
	args := []interface{}{userID, string(kind)}
	if !tr.From.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, tr.From.UTC())
	}
	if !tr.To.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, tr.To.UTC())
	}
	query += ` ORDER BY ts ASC, id ASC`

	rows, err := b.db.QueryContext(ctx, b.rebind(query), args...)
	if err != nil {
		slog.Error(b.name+".QueryRecords query failed", "error", err, "userID", userID, "kind", kind)
		return nil, fmt.Errorf("failed to query %s records: %w", kind, err)
	}
	defer rows.Close()

	var out []models.InteractionRecord
	for rows.Next() {
		var (
			rec     models.InteractionRecord
			kindStr string
			payload string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &kindStr, &rec.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		rec.Kind = models.RecordKind(kindStr)
		rec.Timestamp = rec.Timestamp.UTC()
		var p recordPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			slog.Warn(b.name+".QueryRecords skipping undecodable record", "id", rec.ID, "error", err)
			continue
		}
		rec.Mood, rec.Chat, rec.Selfie = p.Mood, p.Chat, p.Selfie
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	slog.Debug(b.name+".QueryRecords succeeded", "userID", userID, "kind", kind, "count", len(out))
	return out, nil
}

func (b *sqlBase) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, b.rebind(
		`SELECT DISTINCT user_id FROM interactions WHERE ts >= ? ORDER BY user_id`), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (b *sqlBase) AppendAssessment(ctx context.Context, a models.RiskAssessment) error {
	if err := models.ValidateUserID(a.UserID); err != nil {
		return err
	}
	if !a.Level.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidRiskLevel, a.Level)
	}
	if a.ID == "" {
		a.ID = util.NewRecordID(util.PrefixAssessment, a.Timestamp)
	}
	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}
	features, err := a.FeaturesJSON()
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, b.rebind(
		`INSERT INTO risk_assessments (id, user_id, ts, score, level, factors_json, features_json, confidence, method, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.Timestamp.UTC(), a.Score, string(a.Level), string(factors), features,
		a.Confidence, string(a.Method), a.ExpiresAt.UTC())
	if err != nil {
		slog.Error(b.name+".AppendAssessment failed", "error", err, "userID", a.UserID)
		return fmt.Errorf("failed to insert assessment for %s: %w", a.UserID, err)
	}
	slog.Debug(b.name+".AppendAssessment succeeded", "id", a.ID, "userID", a.UserID, "level", a.Level)
	return nil
}

func (b *sqlBase) LatestAssessment(ctx context.Context, userID string) (*models.RiskAssessment, error) {
	row := b.db.QueryRowContext(ctx, b.rebind(
		`SELECT id, user_id, ts, score, level, factors_json, features_json, confidence, method, expires_at
		 FROM risk_assessments WHERE user_id = ? AND expires_at > ? ORDER BY ts DESC, id DESC LIMIT 1`),
		userID, time.Now().UTC())
	var (
		a                 models.RiskAssessment
		level, method     string
		factors, features string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Timestamp, &a.Score, &level, &factors, &features, &a.Confidence, &method, &a.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(b.name+".LatestAssessment failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get latest assessment: %w", err)
	}
	a.Level = models.RiskLevel(level)
	a.Method = models.ScoringMethod(method)
	a.Timestamp, a.ExpiresAt = a.Timestamp.UTC(), a.ExpiresAt.UTC()
	if err := json.Unmarshal([]byte(factors), &a.Factors); err != nil {
		return nil, fmt.Errorf("failed to decode factors: %w", err)
	}
	a.Features = map[string]float64{}
	if features != "" {
		if err := json.Unmarshal([]byte(features), &a.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features: %w", err)
		}
	}
	return &a, nil
}

func (b *sqlBase) AppendIntervention(ctx context.Context, iv models.Intervention) error {
	if err := models.ValidateUserID(iv.UserID); err != nil {
		return err
	}
	if iv.ID == "" {
		return models.ErrEmptyInterventionID
	}
	factors, err := json.Marshal(iv.RiskFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}
	channels, err := json.Marshal(iv.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}
	_, err = b.db.ExecContext(ctx, b.rebind(
		`INSERT INTO interventions (id, user_id, ts, risk_level, risk_score, risk_factors_json, message, type, channels_json, user_responded, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		iv.ID, iv.UserID, iv.Timestamp.UTC(), string(iv.RiskLevel), iv.RiskScore, string(factors), iv.Message,
		string(iv.Type), string(channels), iv.UserResponded, iv.ExpiresAt.UTC())
	if err != nil {
		slog.Error(b.name+".AppendIntervention failed", "error", err, "userID", iv.UserID)
		return fmt.Errorf("failed to insert intervention for %s: %w", iv.UserID, err)
	}
	slog.Debug(b.name+".AppendIntervention succeeded", "id", iv.ID, "userID", iv.UserID, "level", iv.RiskLevel)
	return nil
}

func (b *sqlBase) LatestIntervention(ctx context.Context, userID string) (*models.Intervention, error) {
	row := b.db.QueryRowContext(ctx, b.rebind(
		`SELECT id, user_id, ts, risk_level, risk_score, risk_factors_json, message, type, channels_json, user_responded, expires_at
		 FROM interventions WHERE user_id = ? AND expires_at > ? ORDER BY ts DESC, id DESC LIMIT 1`),
		userID, time.Now().UTC())
	var (
		iv                models.Intervention
		level, typ        string
		factors, channels string
	)
	err := row.Scan(&iv.ID, &iv.UserID, &iv.Timestamp, &level, &iv.RiskScore, &factors, &iv.Message,
		&typ, &channels, &iv.UserResponded, &iv.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(b.name+".LatestIntervention failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get latest intervention: %w", err)
	}
	iv.RiskLevel = models.RiskLevel(level)
	iv.Type = models.InterventionType(typ)
	iv.Timestamp, iv.ExpiresAt = iv.Timestamp.UTC(), iv.ExpiresAt.UTC()
	if err := json.Unmarshal([]byte(factors), &iv.RiskFactors); err != nil {
		return nil, fmt.Errorf("failed to decode risk factors: %w", err)
	}
	if err := json.Unmarshal([]byte(channels), &iv.Channels); err != nil {
		return nil, fmt.Errorf("failed to decode channels: %w", err)
	}
	return &iv, nil
}

func (b *sqlBase) MarkResponded(ctx context.Context, interventionID string) error {
	if interventionID == "" {
		return models.ErrEmptyInterventionID
	}
	res, err := b.db.ExecContext(ctx, b.rebind(
		`UPDATE interventions SET user_responded = ? WHERE id = ? AND expires_at > ?`),
		true, interventionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark intervention %s responded: %w", interventionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("intervention %s: %w", interventionID, models.ErrNotFound)
	}
	slog.Debug(b.name+".MarkResponded succeeded", "id", interventionID)
	return nil
}

func (b *sqlBase) SetInterventionChannels(ctx context.Context, interventionID string, channels []string) error {
	if interventionID == "" {
		return models.ErrEmptyInterventionID
	}
	if channels == nil {
		channels = []string{}
	}
	data, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}
	res, err := b.db.ExecContext(ctx, b.rebind(
		`UPDATE interventions SET channels_json = ? WHERE id = ?`), string(data), interventionID)
	if err != nil {
		return fmt.Errorf("failed to update channels of intervention %s: %w", interventionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("intervention %s: %w", interventionID, models.ErrNotFound)
	}
	return nil
}

func (b *sqlBase) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := b.db.QueryRowContext(ctx, b.rebind(
		`SELECT user_id, user_name, pet_name, personality FROM user_profiles WHERE user_id = ?`), userID).
		Scan(&p.UserID, &p.UserName, &p.PetName, &p.Personality)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (b *sqlBase) SaveProfile(ctx context.Context, p models.UserProfile) error {
	if err := models.ValidateUserID(p.UserID); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx, b.rebind(
		`INSERT INTO user_profiles (user_id, user_name, pet_name, personality, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET user_name = excluded.user_name, pet_name = excluded.pet_name,
		 personality = excluded.personality, updated_at = excluded.updated_at`),
		p.UserID, p.UserName, p.PetName, p.Personality, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save profile for %s: %w", p.UserID, err)
	}
	return nil
}

func (b *sqlBase) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for _, table := range []string{"risk_assessments", "interventions"} {
		res, err := b.db.ExecContext(ctx, b.rebind(`DELETE FROM `+table+` WHERE expires_at <= ?`), now.UTC())
		if err != nil {
			return total, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if total > 0 {
		slog.Info(b.name+".PurgeExpired", "removed", total)
	}
	return total, nil
}

// Close closes the database connection.
func (b *sqlBase) Close() error {
	slog.Debug("Closing " + b.name + " database connection")
	if err := b.db.Close(); err != nil {
		slog.Error("Failed to close "+b.name+" database", "error", err)
		return err
	}
	return nil
}
