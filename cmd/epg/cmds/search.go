package cmds

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"epg/internal/app/epg"
	"epg/internal/app/guide"

	"github.com/spf13/cobra"
)

var (
	limit    int
	from, to int64
)

func NewSearchCLI() *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "按关键字搜索节目。",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			// 可选的时间范围
			var tr *epg.TimeRange
			if from > 0 || to > 0 {
				if from >= to {
					return errors.New("--from must be earlier than --to")
				}
				tr = &epg.TimeRange{Start: from, End: to}
			}

			loader := guide.NewLoader(epg.NewStore(), loaderOptions(), nil)
			if _, err := loader.Load(cmd.Context(), conf.Guide.Source); err != nil {
				return err
			}

			if limit <= 0 {
				limit = conf.Search.DefaultLimit
			}
			if limit > conf.Search.MaxLimit {
				limit = conf.Search.MaxLimit
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(loader.Store().SearchPrograms(query, tr, limit))
		},
	}

	searchCmd.Flags().IntVarP(&limit, "limit", "l", 0, "返回结果的最大条数，缺省使用配置文件中的值。")
	searchCmd.Flags().Int64Var(&from, "from", 0, "时间范围的开始时间（毫秒时间戳）。")
	searchCmd.Flags().Int64Var(&to, "to", 0, "时间范围的结束时间（毫秒时间戳）。")

	return searchCmd
}
