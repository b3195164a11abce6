package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"

	"datasmith/internal/dataset"
)

// PathResolver 决定导出文件的最终路径
// PathResolver decides the export file's final path.
type PathResolver interface {
	// Resolve 返回保存路径；用户取消时返回 ErrCancelled
	// Resolve returns the save path, or ErrCancelled when the user
	// backs out.
	Resolve(format dataset.Format) (string, error)
}

// InteractiveResolver 终端里用 readline 询问保存路径；
// stdin 不是终端时直接落到默认目录。
// InteractiveResolver asks for the save path over readline when stdin is
// a terminal, and falls straight through to the default directory
// otherwise.
type InteractiveResolver struct {
	Dir string
	Now func() time.Time
}

func (r InteractiveResolver) Resolve(format dataset.Format) (string, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	dir := r.Dir
	if dir == "" {
		dir = DefaultDir()
	}
	fallback := filepath.Join(dir, DefaultFilename(format, now()))

	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return fallback, nil
	}

	rl, err := readline.New(fmt.Sprintf("Save dataset to [%s]: ", fallback))
	if err != nil {
		return fallback, nil
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		// Ctrl-C / Ctrl-D 视为取消 / Ctrl-C and Ctrl-D cancel the save.
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("read save path: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return fallback, nil
	}
	return NormalizePath(line), nil
}

// FixedResolver 总是返回同一路径，用于非交互导出
// FixedResolver always returns the same path, for non-interactive exports.
type FixedResolver struct {
	Path string
}

func (r FixedResolver) Resolve(dataset.Format) (string, error) {
	if strings.TrimSpace(r.Path) == "" {
		return "", fmt.Errorf("export path is empty")
	}
	return NormalizePath(r.Path), nil
}
