package cmds

import (
	"fmt"

	"epg/internal/app/epg"
	"epg/internal/app/guide"
	"epg/internal/app/router"
	"epg/internal/pkg/metrics"

	"github.com/spf13/cobra"
)

var port int

func NewServeCLI() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "启动HTTP服务，提供节目单查询、搜索及导出等接口。",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.New()
			loader := guide.NewLoader(epg.NewStore(), loaderOptions(), m)

			// 创建并启动HTTP服务
			r, err := router.NewEngine(cmd.Context(), conf, loader, m)
			if err != nil {
				return err
			}
			if err = r.Run(fmt.Sprintf(":%d", port)); err != nil {
				return err
			}

			return nil
		},
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP服务的监听端口。")

	return serveCmd
}

// loaderOptions 根据配置文件生成加载选项
func loaderOptions() guide.Options {
	return guide.Options{
		MaxSizeBytes:  conf.Guide.MaxSizeBytes,
		DefaultOffset: conf.Guide.Offset,
		HTTPTimeout:   conf.Guide.HttpTimeout,
		Headers:       conf.Guide.Headers,
		ChExcludeRule: conf.Guide.ChExcludeRule,
	}
}
