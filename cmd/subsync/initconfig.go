package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cfgpkg "subsync/internal/config"
	"subsync/pkg/contract"
)

func newInitConfigCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在目录中生成默认配置与 .env 模板（已存在则跳过，不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			var ext string
			switch cfgpkg.Format(format) {
			case cfgpkg.FormatTOML:
				ext = ".toml"
			case cfgpkg.FormatYAML:
				ext = ".yaml"
			default:
				return configError(fmt.Errorf("format %q: %w", format, contract.ErrInvalidInput))
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configError(fmt.Errorf("生成默认配置失败: %w", err))
			}
			cfg := cfgpkg.DefaultTemplateConfig()
			body, err := cfgpkg.Marshal(cfg, cfgpkg.Format(format))
			if err != nil {
				return configError(err)
			}
			if err := a.writeNew(filepath.Join(dir, "subsync"+ext), body); err != nil {
				return configError(fmt.Errorf("生成默认配置失败: %w", err))
			}
			env := cfgpkg.EnvTemplate(cfg) + "\n# 供应商凭据（由 provider options 的 api_key_env 引用）\nOPENAI_API_KEY=\nGOOGLE_API_KEY=\n"
			if err := a.writeNew(filepath.Join(dir, ".env"), []byte(env)); err != nil {
				_, _ = fmt.Fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(cfgpkg.FormatTOML), "配置格式 toml|yaml")
	return cmd
}

// writeNew 仅创建新文件；已存在时跳过并提示。
func (a *app) writeNew(path string, body []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			_, _ = fmt.Fprintf(a.stderr, "已存在，跳过: %s\n", path)
			return nil
		}
		return err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "已生成: %s\n", path)
	return f.Close()
}
