// Package knowledge 用 SQLite 持久化通过质量校验的数据条目，
// 供后续批次检索参考和质量统计。
// Package knowledge persists quality-validated dataset entries in SQLite
// for reference search and quality statistics.
package knowledge

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"datasmith/internal/dataset"
)

// DefaultMinScore 入库的最低综合分
// DefaultMinScore is the minimum overall score for storage.
const DefaultMinScore = 0.5

// Store 基于 SQLite (WAL 模式) 的知识库
// Store is the SQLite-backed knowledge base, using WAL mode.
type Store struct {
	db   *sql.DB
	path string
}

// StoredEntry 已入库的条目及其评分
// StoredEntry is a persisted entry with its scores.
type StoredEntry struct {
	ID        string        `json:"id"`
	UseCase   string        `json:"use_case"`
	Format    dataset.Format `json:"format"`
	Entry     dataset.Entry `json:"entry"`
	Scores    Scores        `json:"scores"`
	CreatedAt string        `json:"created_at"`
}

// ProcessingStats 一次入库处理的统计
// ProcessingStats summarizes one processing pass.
type ProcessingStats struct {
	TotalProcessed int     `json:"total_processed"`
	Stored         int     `json:"stored"`
	Rejected       int     `json:"rejected"`
	AverageScore   float64 `json:"average_score"`
}

// SearchFilter 检索过滤条件。零值字段不过滤。
// SearchFilter filters searches. Zero-valued fields do not filter.
type SearchFilter struct {
	Query    string
	UseCase  string
	Format   dataset.Format
	MinScore float64
	Limit    int
}

// UsageStats 知识库整体统计
// UsageStats is the knowledge base's aggregate statistics.
type UsageStats struct {
	TotalEntries   int                    `json:"total_entries"`
	AverageOverall float64                `json:"average_overall"`
	ByFormat       map[dataset.Format]int `json:"by_format"`
}

// NewStore 创建并初始化知识库数据库
// NewStore creates and initializes the knowledge base database.
func NewStore(dbPath string) (*Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("knowledge db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: dbPath}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id                TEXT PRIMARY KEY,
		use_case          TEXT NOT NULL DEFAULT '',
		format            TEXT NOT NULL,
		content           TEXT NOT NULL,
		search_text       TEXT NOT NULL DEFAULT '',
		relevance         REAL NOT NULL DEFAULT 0,
		coherence         REAL NOT NULL DEFAULT 0,
		completeness      REAL NOT NULL DEFAULT 0,
		format_compliance REAL NOT NULL DEFAULT 0,
		overall           REAL NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_use_case ON entries(use_case);
	CREATE INDEX IF NOT EXISTS idx_entries_format ON entries(format);
	CREATE INDEX IF NOT EXISTS idx_entries_overall ON entries(overall);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ProcessEntries 评分并入库达标条目，返回处理统计。
// minScore <= 0 时使用 DefaultMinScore。
// ProcessEntries scores entries and stores those above the threshold,
// returning the pass statistics. A minScore <= 0 means DefaultMinScore.
func (s *Store) ProcessEntries(useCase string, format dataset.Format, objective string, entries []dataset.Entry, minScore float64) (ProcessingStats, error) {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	stats := ProcessingStats{TotalProcessed: len(entries)}
	if len(entries) == 0 {
		return stats, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return stats, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO entries (id, use_case, format, content, search_text,
			relevance, coherence, completeness, format_compliance, overall, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return stats, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := nowUTC()
	var sum float64
	for i, entry := range entries {
		scores := ScoreEntry(entry, format, objective)
		sum += scores.Overall
		if scores.Overall < minScore {
			stats.Rejected++
			continue
		}
		content, marshalErr := json.Marshal(entry)
		if marshalErr != nil {
			stats.Rejected++
			continue
		}
		if _, err := stmt.Exec(uuid.NewString(), useCase, string(format), string(content),
			strings.ToLower(entryText(entry)),
			scores.Relevance, scores.Coherence, scores.Completeness,
			scores.FormatCompliance, scores.Overall, now); err != nil {
			return stats, fmt.Errorf("insert entry %d: %w", i, err)
		}
		stats.Stored++
	}
	stats.AverageScore = sum / float64(len(entries))

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}

// Search 按过滤条件检索条目，按综合分降序
// Search retrieves entries matching the filter, ordered by overall score
// descending.
func (s *Store) Search(filter SearchFilter) ([]StoredEntry, error) {
	query := `
		SELECT id, use_case, format, content, relevance, coherence,
			completeness, format_compliance, overall, created_at
		FROM entries WHERE 1=1`
	var args []any

	if q := strings.TrimSpace(filter.Query); q != "" {
		query += " AND search_text LIKE ?"
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	if filter.UseCase != "" {
		query += " AND use_case = ?"
		args = append(args, filter.UseCase)
	}
	if filter.Format != "" {
		query += " AND format = ?"
		args = append(args, string(filter.Format))
	}
	if filter.MinScore > 0 {
		query += " AND overall >= ?"
		args = append(args, filter.MinScore)
	}
	query += " ORDER BY overall DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	var out []StoredEntry
	for rows.Next() {
		var e StoredEntry
		var format, content string
		if err := rows.Scan(&e.ID, &e.UseCase, &format, &content,
			&e.Scores.Relevance, &e.Scores.Coherence, &e.Scores.Completeness,
			&e.Scores.FormatCompliance, &e.Scores.Overall, &e.CreatedAt); err != nil {
			continue
		}
		e.Format = dataset.Format(format)
		if err := json.Unmarshal([]byte(content), &e.Entry); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats 返回整体统计
// Stats returns the aggregate statistics.
func (s *Store) Stats() (UsageStats, error) {
	stats := UsageStats{ByFormat: map[dataset.Format]int{}}

	row := s.db.QueryRow("SELECT COUNT(*), COALESCE(AVG(overall), 0) FROM entries")
	if err := row.Scan(&stats.TotalEntries, &stats.AverageOverall); err != nil {
		return stats, fmt.Errorf("aggregate stats: %w", err)
	}

	rows, err := s.db.Query("SELECT format, COUNT(*) FROM entries GROUP BY format")
	if err != nil {
		return stats, fmt.Errorf("per-format stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var format string
		var count int
		if err := rows.Scan(&format, &count); err != nil {
			continue
		}
		stats.ByFormat[dataset.Format(format)] = count
	}
	return stats, rows.Err()
}

// ImprovementSuggestions 根据薄弱维度给出改进建议
// ImprovementSuggestions derives improvement advice from the weakest
// scoring dimensions for a use case.
func (s *Store) ImprovementSuggestions(useCase string) ([]string, error) {
	query := `
		SELECT COALESCE(AVG(relevance), 0), COALESCE(AVG(coherence), 0),
			COALESCE(AVG(completeness), 0), COALESCE(AVG(format_compliance), 0),
			COUNT(*)
		FROM entries`
	var args []any
	if useCase != "" {
		query += " WHERE use_case = ?"
		args = append(args, useCase)
	}

	var relevance, coherence, completeness, compliance float64
	var count int
	row := s.db.QueryRow(query, args...)
	if err := row.Scan(&relevance, &coherence, &completeness, &compliance, &count); err != nil {
		return nil, fmt.Errorf("dimension averages: %w", err)
	}
	if count == 0 {
		return []string{"No validated entries yet. Generate a dataset first to collect quality data."}, nil
	}

	var out []string
	if relevance < 0.7 {
		out = append(out, "Add domain context to the objective so generated entries stay on topic.")
	}
	if coherence < 0.7 {
		out = append(out, "Ask for longer, self-contained answers; many entries are too terse.")
	}
	if completeness < 0.8 {
		out = append(out, "Some entries are missing required fields. Reduce batch size so the model follows the schema.")
	}
	if compliance < 0.8 {
		out = append(out, "Format compliance is low. Consider a model with stronger JSON output.")
	}
	if len(out) == 0 {
		out = append(out, "Quality dimensions look healthy. Increase target entries to grow the dataset.")
	}
	return out, nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
