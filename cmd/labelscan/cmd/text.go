package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// textCmd resolves already recognized label text.
var textCmd = &cobra.Command{
	Use:   "text [text...]",
	Short: "Resolve recognized label text",
	Long: `Resolve label text that was recognized elsewhere. The arguments are joined
with spaces; with no arguments, or with "-", the text is read from stdin.

Examples:
  labelscan text "PROD-00007 Organic Apples LOT A-100 EXP 2026-03-15"
  echo "Greek Yogurt 500g" | labelscan text --format text`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if len(args) == 0 || text == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("no text provided")
		}

		cfg := GetConfig()
		b := baseBuilder(cfg)
		if cmd.Flags().Changed("strict") {
			strict, _ := cmd.Flags().GetBool("strict")
			b.WithStrict(strict)
		}
		p, err := b.Build()
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}
		defer func() { _ = p.Close() }()

		_, snap, err := openCatalog(commandContext(cmd), cfg)
		if err != nil {
			return err
		}
		return writeRecords(cmd, []record{newRecord("", p.ResolveText(text, snap))})
	},
}

func init() {
	rootCmd.AddCommand(textCmd)

	textCmd.Flags().Bool("strict", false, "only accept exact matches on catalog ids")
	addOutputFlags(textCmd)
}
