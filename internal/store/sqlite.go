package store

import (
	"context"
	"database/sql"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/model"
)

// Fixed-width UTC timestamps so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps the insight history in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB

	entropyMu sync.Mutex
	entropy   *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeStorage, "create db dir")
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "open db")
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "migrate")
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) newID(at time.Time) string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS insight_history (
		id                 TEXT PRIMARY KEY,
		session_id         TEXT NOT NULL DEFAULT '',
		created_at         TEXT NOT NULL,
		delta              INTEGER NOT NULL,
		viewer_count       INTEGER NOT NULL,
		prev_count         INTEGER NOT NULL,
		segment_text       TEXT NOT NULL,
		segment_hash       TEXT NOT NULL,
		topic              TEXT NOT NULL,
		context_label      TEXT NOT NULL,
		emotion            TEXT,
		emotion_score      REAL,
		emotional_label    TEXT NOT NULL,
		next_move          TEXT NOT NULL,
		quality            TEXT NOT NULL,
		source             TEXT NOT NULL,
		latency_ms         INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_insight_created ON insight_history(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_insight_topic ON insight_history(topic);
	CREATE INDEX IF NOT EXISTS idx_insight_session ON insight_history(session_id);

	CREATE TABLE IF NOT EXISTS insight_feedback (
		id                  TEXT PRIMARY KEY,
		insight_id          TEXT NOT NULL UNIQUE,
		streamer_id         TEXT NOT NULL DEFAULT '',
		created_at          TEXT NOT NULL,
		rating              INTEGER,
		followed_advice     INTEGER,
		subsequent_delta    INTEGER,
		time_to_feedback_ms INTEGER,
		outcome_30s         INTEGER,
		outcome_60s         INTEGER,
		action_taken        TEXT,
		context_before      TEXT,
		context_after       TEXT,
		feedback_text       TEXT
	);
	`)
	return err
}

// SaveInsights writes a batch in one transaction. Rows with an existing id are ignored.
func (s *SQLiteStore) SaveInsights(ctx context.Context, insights []model.Insight) error {
	if len(insights) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorage, "begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO insight_history (
			id, session_id, created_at, delta, viewer_count, prev_count,
			segment_text, segment_hash, topic, context_label, emotion, emotion_score,
			emotional_label, next_move, quality, source, latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorage, "prepare insert")
	}
	defer stmt.Close()

	for _, in := range insights {
		id := in.ID
		if id == "" {
			id = s.newID(in.Timestamp)
		}
		var emotion sql.NullString
		var score sql.NullFloat64
		if in.Emotion != "" {
			emotion = sql.NullString{String: in.Emotion, Valid: true}
			score = sql.NullFloat64{Float64: in.EmotionScore, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			id, in.SessionID, in.Timestamp.UTC().Format(timeLayout), in.Delta, in.ViewerCount, in.PrevCount,
			in.SegmentText, in.SegmentHash, string(in.Topic), in.ContextLabel, emotion, score,
			in.EmotionalLabel, in.NextMove, string(in.CorrelationQuality), in.Source, in.LatencyMs,
		)
		if err != nil {
			return apperrors.Wrapf(err, apperrors.CodeStorage, "insert insight %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorage, "commit")
	}
	return nil
}

// ListInsights returns the most recent insights, newest first.
func (s *SQLiteStore) ListInsights(ctx context.Context, limit int) ([]model.Insight, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, created_at, delta, viewer_count, prev_count,
			segment_text, segment_hash, topic, context_label, emotion, emotion_score,
			emotional_label, next_move, quality, source, latency_ms
		FROM insight_history ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "list insights")
	}
	defer rows.Close()

	var out []model.Insight
	for rows.Next() {
		var (
			in        model.Insight
			createdAt string
			topic     string
			quality   string
			emotion   sql.NullString
			score     sql.NullFloat64
		)
		if err := rows.Scan(
			&in.ID, &in.SessionID, &createdAt, &in.Delta, &in.ViewerCount, &in.PrevCount,
			&in.SegmentText, &in.SegmentHash, &topic, &in.ContextLabel, &emotion, &score,
			&in.EmotionalLabel, &in.NextMove, &quality, &in.Source, &in.LatencyMs,
		); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeStorage, "scan insight")
		}
		in.Timestamp, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeStorage, "parse created_at %q", createdAt)
		}
		in.Topic = model.Topic(topic)
		in.CorrelationQuality = model.Quality(quality)
		in.Emotion = emotion.String
		in.EmotionScore = score.Float64
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "iterate insights")
	}
	return out, nil
}

// TopicStat aggregates stored insights for one topic.
type TopicStat struct {
	Topic    model.Topic `json:"topic"`
	Count    int         `json:"count"`
	Spikes   int         `json:"spikes"`
	Dumps    int         `json:"dumps"`
	AvgDelta float64     `json:"avgDelta"`
	AIShare  float64     `json:"aiShare"`
	LastSeen time.Time   `json:"lastSeen"`
}

// TopicStats returns per-topic aggregates ordered by insight count.
func (s *SQLiteStore) TopicStats(ctx context.Context) ([]TopicStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic,
			COUNT(*) AS cnt,
			SUM(CASE WHEN delta > 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN delta < 0 THEN 1 ELSE 0 END),
			AVG(delta),
			AVG(CASE WHEN quality = ? THEN 1.0 ELSE 0.0 END),
			MAX(created_at)
		FROM insight_history GROUP BY topic ORDER BY cnt DESC, topic`, string(model.QualityAIEnhanced))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "topic stats")
	}
	defer rows.Close()

	var out []TopicStat
	for rows.Next() {
		var (
			st       TopicStat
			topic    string
			lastSeen string
		)
		if err := rows.Scan(&topic, &st.Count, &st.Spikes, &st.Dumps, &st.AvgDelta, &st.AIShare, &lastSeen); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeStorage, "scan topic stats")
		}
		st.Topic = model.Topic(topic)
		if t, err := time.Parse(timeLayout, lastSeen); err == nil {
			st.LastSeen = t
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "iterate topic stats")
	}
	return out, nil
}
