package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// decodeCmd resolves a structured code payload without any image.
var decodeCmd = &cobra.Command{
	Use:   "decode <payload>",
	Short: "Resolve a decoded barcode or QR payload",
	Long: `Resolve the payload of a barcode or QR code that was decoded elsewhere.

URLs with id/batchCode/exp query parameters, JSON objects, PALLET: and BATCH:
prefixes and bare catalog ids are recognized. Text recognition never runs.

Examples:
  labelscan decode "https://labels.example.com/p?id=PROD-00007&batchCode=L-77"
  labelscan decode '{"productId":"PROD-00002","exp":"2026-05-01"}'
  labelscan decode PALLET:PROD-00008 --format text`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := strings.TrimSpace(args[0])
		if payload == "" {
			return errors.New("payload is empty")
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
		return writeRecords(cmd, []record{newRecord("", p.ResolvePayload(payload, snap))})
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().Bool("strict", false, "only accept exact matches on catalog ids")
	addOutputFlags(decodeCmd)
}
