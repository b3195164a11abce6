// Package export 把生成的数据集写成 JSONL 文件
// Package export writes generated datasets to JSONL files.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"datasmith/internal/dataset"
)

// ErrCancelled 用户取消了保存
// ErrCancelled means the user cancelled the save.
var ErrCancelled = errors.New("export cancelled")

// ErrNoEntries 没有可导出的条目
// ErrNoEntries means there is nothing to export.
var ErrNoEntries = errors.New("no entries to export")

// Result 一次导出的结果
// Result describes one finished export.
type Result struct {
	Path    string `json:"path"`
	Written int    `json:"written"`
	Skipped int    `json:"skipped"`
}

// WriteJSONL 将满足格式的条目逐行写出，返回写出与跳过的数量。
// 不满足必需字段的条目被跳过而不是中断导出。
// WriteJSONL writes format-conforming entries line by line and returns
// the written and skipped counts. Entries missing required fields are
// skipped rather than aborting the export.
func WriteJSONL(w io.Writer, entries []dataset.Entry, format dataset.Format) (written, skipped int, err error) {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if !format.Valid(e) {
			skipped++
			continue
		}
		if err := enc.Encode(e); err != nil {
			return written, skipped, fmt.Errorf("encode entry: %w", err)
		}
		written++
	}
	return written, skipped, nil
}

// Dataset 去重后写入 path，父目录自动创建
// Dataset dedups the entries and writes them to path, creating parent
// directories as needed.
func Dataset(path string, entries []dataset.Entry, format dataset.Format) (Result, error) {
	if len(entries) == 0 {
		return Result{}, ErrNoEntries
	}
	entries = dataset.Dedup(entries)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	written, skipped, err := WriteJSONL(f, entries, format)
	if err != nil {
		return Result{}, err
	}
	if written == 0 {
		return Result{}, fmt.Errorf("%w: every entry failed %s validation", ErrNoEntries, format)
	}
	return Result{Path: path, Written: written, Skipped: skipped}, nil
}

// DefaultDir 默认导出目录：~/Downloads，找不到则当前目录
// DefaultDir is the default export directory: ~/Downloads, or the
// working directory when no home is known.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// DefaultFilename 带时间戳的导出文件名
// DefaultFilename is the timestamped export file name.
func DefaultFilename(format dataset.Format, now time.Time) string {
	return fmt.Sprintf("dataset_%s_%s.jsonl", format, now.UTC().Format("20060102_150405"))
}

// NormalizePath 补全缺失的 .jsonl 扩展名并展开 ~
// NormalizePath adds a missing .jsonl extension and expands a leading ~.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if path != "" && !strings.HasSuffix(strings.ToLower(path), ".jsonl") {
		path += ".jsonl"
	}
	return path
}
