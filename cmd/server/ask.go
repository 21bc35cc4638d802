package main

import (
	"encoding/json"
	"fmt"

	"chatpdf-go/pkg/log"

	"github.com/spf13/cobra"
)

var (
	askUser string
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask [file-id] [question]",
	Short: "Ask a question about a document",
	Long: `在命令行中对一个文档提问。与 HTTP 接口走同一条问答流程，
问题与回答都会写入对话历史。`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askUser, "user", "u", "", "文档所属用户 ID")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "以 JSON 输出回答与引用片段")
	_ = askCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.chatService.AnswerQuestion(ctx, args[0], askUser, args[1])
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Println(answer.Answer)
	for _, s := range answer.Sources {
		cmd.Printf("  [p.%d #%d] %.3f\n", s.Page, s.Index, s.Score)
	}
	return nil
}
