package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "subsync",
		Short:         "字幕分句、翻译与播放同步",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return configError(err) })

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "配置文件路径（.toml/.yaml）；缺省读取 ./subsync.toml 或 ./subsync.yaml（若存在）")
	pf.StringVar(&a.logLevel, "log-level", "", "日志等级 debug|info|warn|error（覆盖配置）")
	pf.BoolVar(&a.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.BoolVar(&a.trace, "trace", false, "将 span 写入 logs/trace.jsonl")

	rootCmd.AddCommand(newTranslateCommand(a))
	rootCmd.AddCommand(newMergeCommand(a))
	rootCmd.AddCommand(newPlayCommand(a))
	rootCmd.AddCommand(newInitConfigCommand(a))
	return rootCmd
}
