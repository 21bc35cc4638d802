package main

import (
	"chatpdf-go/pkg/token"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Mint an access token for a user",
	Long: `用户体系由外部负责，本命令按配置中的 jwt.secret 为指定用户签发 token，
便于本地调试与脚本调用。`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(args[0])
	if err != nil {
		return err
	}
	cmd.Println(tok)
	return nil
}
