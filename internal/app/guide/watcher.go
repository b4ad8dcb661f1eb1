package guide

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce 文件变更后等待多久再重新加载
const DefaultDebounce = 2 * time.Second

// Watch 监听本地节目单文件，文件被写入或替换后重新加载。
// 监听的是文件所在目录，以兼容先写临时文件再重命名的更新方式。
func Watch(ctx context.Context, loader *Loader, path string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return err
	}

	logger := zap.L()
	go func() {
		defer watcher.Close()

		timer := time.NewTimer(debounce)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("The guide watcher has been stopped.")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					timer.Reset(debounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("The guide watcher reported an error.", zap.Error(err))
			case <-timer.C:
				logger.Info("The guide file has changed, reload it.", zap.String("path", absPath))
				if _, err := loader.Load(ctx, absPath); err != nil {
					logger.Error("Failed to reload the guide.", zap.Error(err))
				}
			}
		}
	}()

	return nil
}
