package cmds

import (
	"os"
	"path/filepath"

	"epg/internal/app/config"
	"epg/internal/pkg/logging"
	"epg/internal/pkg/util"

	"github.com/spf13/cobra"
)

var (
	cfgFile string

	conf *config.Config
)

func init() {
	cobra.OnInitialize(initConfig)
}

func NewRootCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "epg",
		Short:         "EPG节目单工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(NewServeCLI())
	rootCmd.AddCommand(NewIngestCLI())
	rootCmd.AddCommand(NewNowCLI())
	rootCmd.AddCommand(NewSearchCLI())
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML配置文件的路径")

	return rootCmd
}

// initConfig 初始化配置文件及日志
func initConfig() {
	var err error
	var fPath string

	cfgHome, err := util.GetCurrentAbPathByExecutable()
	cobra.CheckErr(err)

	if cfgFile != "" {
		// 使用命令参数中的配置文件
		fPath = cfgFile
	} else {
		fPath = filepath.Join(cfgHome, "config.yml")

		// 写入缺省配置文件
		if _, err = os.Stat(fPath); os.IsNotExist(err) {
			err = config.CreateDefaultCfg(fPath)
			cobra.CheckErr(err)
		}
	}

	// 读取配置文件
	conf, err = config.Load(fPath)
	cobra.CheckErr(err)

	// 初始化日志，相对路径以程序所在目录为准
	conf.Log.FileName = util.ResolvePath(cfgHome, conf.Log.FileName)
	logging.InitLogger(&conf.Log)

	// 校验配置文件
	cobra.CheckErr(conf.Validate())
}
