package router

import (
	"context"
	"time"

	"epg/internal/app/guide"

	"go.uber.org/zap"
)

// Schedule 按固定间隔从source重新加载节目单，ctx取消后停止
func Schedule(ctx context.Context, loader *guide.Loader, source string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("The guide reload task has been stopped.")
				return
			case <-ticker.C:
				// 加载失败时保留原有的节目单，等待下一次调度
				result, err := loader.Load(ctx, source)
				if err != nil {
					logger.Error("Failed to reload the guide, keep the current one.", zap.String("source", source), zap.Error(err))
					continue
				}
				logger.Info("The guide reload task has been completed.",
					zap.Int("channels", result.ChannelCount),
					zap.Int("programs", result.ProgramCount),
					zap.Int("removed", result.Removed))
			}
		}
	}()
}
