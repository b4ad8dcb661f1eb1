package cmds

import (
	"encoding/json"
	"os"
	"time"

	"epg/internal/app/epg"
	"epg/internal/app/guide"

	"github.com/spf13/cobra"
)

var nowAt string

func NewNowCLI() *cobra.Command {
	nowCmd := &cobra.Command{
		Use:   "now [channel...]",
		Short: "查询频道当前及下一个节目，缺省查询全部频道。",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := guide.NewLoader(epg.NewStore(), loaderOptions(), nil)
			if _, err := loader.Load(cmd.Context(), conf.Guide.Source); err != nil {
				return err
			}

			// 查询时间，缺省为当前时间
			at := time.Now()
			if nowAt != "" {
				t, err := time.ParseInLocation("2006-01-02 15:04", nowAt, conf.Guide.Offset.Location())
				if err != nil {
					return err
				}
				at = t
			}

			ids := args
			if len(ids) == 0 {
				ids = loader.Store().GetChannelIDs()
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(loader.Store().GetNowNext(ids, at.UnixMilli()))
		},
	}

	nowCmd.Flags().StringVarP(&nowAt, "time", "t", "", "查询时间，e.g `2024-01-01 20:00`，缺省为当前时间。")

	return nowCmd
}
