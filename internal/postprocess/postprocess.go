// Package postprocess 在音频写入缓存后对其做原地处理（重编码）。
// 处理失败只记录日志，不影响任务结果。
package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/iabetor/stemgen/internal/logger"
)

// Processor 对已写入的文件做原地处理。
type Processor interface {
	Process(ctx context.Context, path string) error
}

// ProcessorFunc 让普通函数实现 Processor。
type ProcessorFunc func(ctx context.Context, path string) error

// Process 调用 f。
func (f ProcessorFunc) Process(ctx context.Context, path string) error { return f(ctx, path) }

// Noop 不做任何处理。
type Noop struct{}

// Process 直接返回 nil。
func (Noop) Process(context.Context, string) error { return nil }

// Error 包装一次后处理失败，便于日志区分。
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("后处理 %s 失败: %v", e.Path, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Config 后处理配置。
type Config struct {
	Disabled   bool
	Bitrate    string // 如 32k
	Format     string // ffmpeg -f 参数，如 mp3
	FFmpegPath string
}

// New 根据配置返回处理器。关闭或码率与格式都为空时返回 Noop。
func New(cfg Config) Processor {
	if cfg.Disabled || (cfg.Bitrate == "" && cfg.Format == "") {
		return Noop{}
	}
	return NewFFmpeg(cfg.FFmpegPath, cfg.Bitrate, cfg.Format)
}

// FFmpeg 调用 ffmpeg 把文件重编码到指定码率和格式。
type FFmpeg struct {
	bin     string
	bitrate string
	format  string
}

// NewFFmpeg 创建 ffmpeg 处理器。bin 为空时使用 PATH 中的 ffmpeg。
func NewFFmpeg(bin, bitrate, format string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin, bitrate: bitrate, format: format}
}

// Process 编码到同目录临时文件，成功后 rename 覆盖原文件。
// 临时文件沿用原扩展名，未指定 format 时 ffmpeg 据此选择输出格式。
// 失败时删除临时文件，原文件保持不变。
func (f *FFmpeg) Process(ctx context.Context, path string) error {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+strings.TrimSuffix(base, ext)+".pp-*"+ext)
	if err != nil {
		return &Error{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := f.encode(ctx, path, tmpPath); err != nil {
		os.Remove(tmpPath)
		return &Error{Path: path, Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &Error{Path: path, Err: err}
	}
	return nil
}

func (f *FFmpeg) encode(ctx context.Context, src, dst string) error {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", src}
	if f.bitrate != "" {
		args = append(args, "-b:a", f.bitrate)
	}
	if f.format != "" {
		args = append(args, "-f", f.format)
	}
	args = append(args, dst)

	logger.Debugf("[postprocess] %s %s", f.bin, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, f.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("%s 执行失败: %w: %s", f.bin, err, s)
		}
		return fmt.Errorf("%s 执行失败: %w", f.bin, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s 输出为空", f.bin)
	}
	return nil
}
