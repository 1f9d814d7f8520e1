package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"courier_mesh/internal/domain"
)

var ErrForbiddenFileOperation = errors.New("file operation is forbidden by policy")

type Policy interface {
	CanWriteReport(ctx context.Context, relPath string) (bool, string, error)
}

type ChangeLogger interface {
	LogReportFile(ctx context.Context, entry domain.ReportFileLog) error
}

// Gateway writes status reports below a fixed root directory. Every attempt,
// allowed or not, is logged.
type Gateway struct {
	root   string
	policy Policy
	logger ChangeLogger
}

func NewGateway(root string, policy Policy, logger ChangeLogger) (*Gateway, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create root path: %w", err)
	}
	return &Gateway{
		root:   absRoot,
		policy: policy,
		logger: logger,
	}, nil
}

func (g *Gateway) Root() string {
	return g.root
}

func (g *Gateway) WriteFile(ctx context.Context, relPath string, content []byte) error {
	absPath, normalized, err := g.resolve(relPath)
	if err != nil {
		_ = g.logger.LogReportFile(ctx, domain.ReportFileLog{
			Path:      relPath,
			Allowed:   false,
			Reason:    err.Error(),
			CreatedAt: time.Now().UTC(),
		})
		return err
	}

	allowed, reason, err := g.policy.CanWriteReport(ctx, normalized)
	if err != nil {
		return fmt.Errorf("policy check write file: %w", err)
	}
	if !allowed {
		_ = g.logger.LogReportFile(ctx, domain.ReportFileLog{
			Path:      normalized,
			Allowed:   false,
			Reason:    reason,
			CreatedAt: time.Now().UTC(),
		})
		return fmt.Errorf("%w: %s", ErrForbiddenFileOperation, reason)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(absPath, content, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	if err := g.logger.LogReportFile(ctx, domain.ReportFileLog{
		Path:      normalized,
		Allowed:   true,
		Reason:    "allowed",
		Bytes:     len(content),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("log file write: %w", err)
	}
	return nil
}

func (g *Gateway) ReadFile(_ context.Context, relPath string) ([]byte, error) {
	absPath, _, err := g.resolve(relPath)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return content, nil
}

func (g *Gateway) resolve(relPath string) (absolute string, normalized string, err error) {
	normalized = strings.ReplaceAll(strings.TrimSpace(relPath), "\\", "/")
	normalized = strings.TrimPrefix(normalized, "./")
	normalized = strings.TrimPrefix(normalized, "/")
	if normalized == "" || normalized == "." {
		return "", "", fmt.Errorf("invalid relative path %q", relPath)
	}

	abs := filepath.Join(g.root, filepath.FromSlash(normalized))
	absClean := filepath.Clean(abs)
	absRoot := filepath.Clean(g.root)

	rel, err := filepath.Rel(absRoot, absClean)
	if err != nil {
		return "", "", fmt.Errorf("resolve relative path: %w", err)
	}
	if strings.HasPrefix(rel, "..") || rel == "." {
		return "", "", fmt.Errorf("path escapes report root: %q", relPath)
	}
	return absClean, strings.ReplaceAll(rel, "\\", "/"), nil
}
