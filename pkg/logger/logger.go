package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/mr-tron/base58"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the application logger should behave. File outputs
// rotate according to Rotation; "stdout" and "stderr" never rotate.
type Config struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Rotation    Rotation    `json:"rotation"`
	Audit       AuditConfig `json:"audit"`
}

// Rotation 控制文件输出的切割策略，零值使用默认值。
type Rotation struct {
	MaxSizeMB  int  `json:"max_size_mb"`
	MaxBackups int  `json:"max_backups"`
	MaxAgeDays int  `json:"max_age_days"`
	Compress   bool `json:"compress"`
}

func (r Rotation) withDefaults() Rotation {
	if r.MaxSizeMB <= 0 {
		r.MaxSizeMB = 100
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = 7
	}
	if r.MaxAgeDays <= 0 {
		r.MaxAgeDays = 30
	}
	return r
}

// AuditConfig controls audit log output behaviour. Audit entries record tool
// invocations that push transactions and access-control decisions.
type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	Rotation
}

// Attribute keys whose values never reach a log sink. Matching ignores case.
var redactedKeys = map[string]struct{}{
	"private_key":   {},
	"privatekey":    {},
	"api_key":       {},
	"authorization": {},
}

const redacted = "[REDACTED]"

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
	initialised   bool
)

// Init configures the global logger instances. Calling it again replaces
// the previous configuration and closes its file sinks.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	previous := closers
	closers = nil

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}
	handler, err := buildHandler(cfg.Format, cfg.OutputPaths, cfg.Rotation, opts)
	if err != nil {
		closers = previous
		return err
	}

	logger := slog.New(handler)
	audit := logger
	if cfg.Audit.Enabled {
		audit, err = buildAuditLogger(cfg.Audit)
		if err != nil {
			closeAll(closers)
			closers = previous
			return err
		}
	}

	defaultLogger = logger
	auditLogger = audit
	initialised = true
	closeAll(previous)
	return nil
}

// redact hides sensitive attributes by key, and masks anything inside a
// string or error value that looks like an Antelope private key regardless of
// the key it is logged under.
func redact(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(attr.Key)]; ok {
		return slog.String(attr.Key, redacted)
	}
	switch attr.Value.Kind() {
	case slog.KindString:
		if masked, ok := maskPrivateKeys(attr.Value.String()); ok {
			return slog.String(attr.Key, masked)
		}
	case slog.KindAny:
		if err, isErr := attr.Value.Any().(error); isErr && err != nil {
			if masked, ok := maskPrivateKeys(err.Error()); ok {
				return slog.String(attr.Key, masked)
			}
		}
	}
	return attr
}

// privateKeyPattern 匹配 PVT_K1_ 私钥以及独立出现的 51 位 WIF 候选串。
var privateKeyPattern = regexp.MustCompile(`PVT_K1_[1-9A-HJ-NP-Za-km-z]+|\b5[1-9A-HJ-NP-Za-km-z]{50}\b`)

// maskPrivateKeys replaces every private key found in value and reports
// whether anything was replaced.
func maskPrivateKeys(value string) (string, bool) {
	if !strings.Contains(value, "PVT_K1_") && !strings.Contains(value, "5") {
		return value, false
	}
	var hit bool
	masked := privateKeyPattern.ReplaceAllStringFunc(value, func(match string) string {
		if strings.HasPrefix(match, "PVT_K1_") || isWIF(match) {
			hit = true
			return redacted
		}
		return match
	})
	return masked, hit
}

// isWIF reports whether value decodes as a legacy WIF key (base58 of
// 0x80 | 32 byte secret | 4 byte checksum). Checksums are not verified.
func isWIF(value string) bool {
	raw, err := base58.Decode(value)
	return err == nil && len(raw) == 37 && raw[0] == 0x80
}

func buildHandler(format string, outputs []string, rotation Rotation, opts *slog.HandlerOptions) (slog.Handler, error) {
	writers := make([]io.Writer, 0, len(outputs))
	if len(outputs) == 0 {
		writers = append(writers, os.Stdout)
	}
	for _, out := range outputs {
		switch strings.ToLower(out) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			file, err := rotatingFile(out, rotation)
			if err != nil {
				closeAll(closers)
				return nil, err
			}
			closers = append(closers, file)
			writers = append(writers, file)
		}
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(writer, opts), nil
	}
	return slog.NewTextHandler(writer, opts), nil
}

func buildAuditLogger(cfg AuditConfig) (*slog.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	file, err := rotatingFile(cfg.Path, cfg.Rotation)
	if err != nil {
		return nil, err
	}
	closers = append(closers, file)
	// 审计日志固定 JSON 与 info 级别，不受应用日志配置影响。
	return slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelInfo, ReplaceAttr: redact})), nil
}

// rotatingFile 确保目录存在并返回按大小切割的文件写入器。
func rotatingFile(path string, rotation Rotation) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", path, err)
	}
	rotation = rotation.withDefaults()
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func closeAll(list []io.Closer) error {
	var err error
	for _, c := range list {
		err = errors.Join(err, c.Close())
	}
	return err
}

// L returns the structured logger instance, initialising a stdout text
// logger on first use.
func L() *slog.Logger {
	mu.Lock()
	ready := initialised
	mu.Unlock()
	if !ready {
		_ = Init(Config{})
	}
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

// Audit returns the audit logger. Without a dedicated audit sink it shares
// the application logger.
func Audit() *slog.Logger {
	mu.Lock()
	audit := auditLogger
	mu.Unlock()
	if audit == nil {
		return L()
	}
	return audit
}

// Sync closes file sinks. Loggers stay usable but fall back to their last
// writers, so Sync belongs at process shutdown.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	err := closeAll(closers)
	closers = nil
	return err
}

// Named returns a child logger tagged with the provided component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}
