package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// writeAtomic 把 data 写入 dest，读者只会看到完整文件或看不到文件。
func writeAtomic(dest string, data []byte) error {
	return stageAndPromote(dest, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// stageAndPromote 在 dest 同目录创建临时文件，由 fill 写入内容，
// 落盘后 rename 到 dest。任何一步失败都会删除临时文件。
func stageAndPromote(dest string, fill func(io.Writer) error) (err error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err = fill(tmp); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	// CreateTemp 默认 0600，静态资源需要可读
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("重命名到 %s 失败: %w", dest, err)
	}
	return nil
}
