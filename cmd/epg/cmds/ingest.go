package cmds

import (
	"os"
	"strings"

	"epg/internal/app/epg"
	"epg/internal/app/guide"
	"epg/internal/app/xmltv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	inFile  string
	outFile string
	backDay int
)

func NewIngestCLI() *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "解析XMLTV节目单，输出统计信息，并可导出为规范化的XMLTV文件。",
		RunE: func(cmd *cobra.Command, args []string) error {
			// L()：获取全局logger
			logger := zap.L()

			source := inFile
			if source == "" {
				source = conf.Guide.Source
			}

			// 加载节目单
			loader := guide.NewLoader(epg.NewStore(), loaderOptions(), nil)
			result, err := loader.Load(cmd.Context(), source)
			if err != nil {
				return err
			}

			logger.Sugar().Infof("A total of %d channels and %d programs have been ingested, %d programs skipped (%v), %d channels excluded, truncated: %t.",
				result.ChannelCount, result.ProgramCount, result.Skipped, result.SkippedByReason, result.Excluded, result.Truncated)

			if outFile == "" {
				return nil
			}

			// 导出节目单
			file, err := os.Create(outFile)
			if err != nil {
				logger.Error("Failed to create a file.", zap.Error(err))
				return err
			}
			defer file.Close()

			var since int64
			if backDay > 0 {
				since = result.LoadedAt.AddDate(0, 0, -backDay).UnixMilli()
			}
			tv := xmltv.FromStore(loader.Store(), conf.Guide.Offset, since)
			if strings.HasSuffix(outFile, ".gz") {
				err = xmltv.WriteGzip(file, tv)
			} else {
				err = xmltv.Write(file, tv)
			}
			if err != nil {
				logger.Error("Failed to write to file.", zap.Error(err))
				return err
			}

			logger.Sugar().Infof("A total of %d programs have been written to the file %s.", len(tv.Programmes), outFile)
			return nil
		},
	}

	ingestCmd.Flags().StringVarP(&inFile, "file", "f", "", "节目单来源，本地文件路径或HTTP地址，缺省使用配置文件中的来源。")
	ingestCmd.Flags().StringVarP(&outFile, "output", "o", "", "导出的XMLTV文件路径，以.gz结尾时进行gzip压缩。")
	ingestCmd.Flags().IntVarP(&backDay, "back-day", "b", 0, "导出时保留过去几天的节目单，<=0时全部导出。")

	return ingestCmd
}
