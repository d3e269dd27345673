package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// mixedCmd resolves the second label of a pallet carrying several products.
var mixedCmd = &cobra.Command{
	Use:   "mixed",
	Short: "Resolve the primary and secondary labels of a mixed pallet",
	Long: `Resolve a pallet that may carry more than one product.

The primary label is resolved first. When --pallet-products lists the product
ids on the pallet and the primary product is the only one, the second pass is
skipped. Otherwise the secondary label is resolved independently; a secondary
that resolves to the same product as the primary is reported as ambiguous
with reason duplicate_in_mixed_batch.

Each label is given as a payload, an image, text, or a payload plus an image.

Examples:
  labelscan mixed --pallet PAL-1 --primary-payload PALLET:PROD-00007 --secondary-image second.jpg
  labelscan mixed --pallet PAL-2 --pallet-products PROD-00007,PROD-00008 \
    --primary-text "Organic Apples" --secondary-text "Organic Pears"`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runMixedCommand,
}

// mixedResult is the JSON form of a mixed pallet resolution.
type mixedResult struct {
	PalletID        string                   `json:"pallet_id"`
	NeedsSecondPass bool                     `json:"needs_second_pass"`
	Primary         *pipeline.OutcomeView    `json:"primary,omitempty"`
	Mixed           *pipeline.MixedBatchView `json:"mixed,omitempty"`
}

func runMixedCommand(cmd *cobra.Command, _ []string) error {
	palletID, _ := cmd.Flags().GetString("pallet")
	palletID = strings.TrimSpace(palletID)
	if palletID == "" {
		return errors.New("--pallet is required")
	}
	palletProducts, _ := cmd.Flags().GetStringSlice("pallet-products")

	primaryReq, err := labelFromFlags(cmd, "primary")
	if err != nil {
		return err
	}
	if primaryReq == nil {
		return errors.New("primary label is empty: set --primary-payload, --primary-image or --primary-text")
	}

	cfg := GetConfig()
	b, err := newBuilder(cfg)
	if err != nil {
		return err
	}
	p, err := b.Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	ctx := commandContext(cmd)
	_, snap, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}

	primary, err := p.Resolve(ctx, *primaryReq, snap)
	if err != nil {
		return fmt.Errorf("failed to resolve primary label: %w", err)
	}

	res := mixedResult{PalletID: palletID, NeedsSecondPass: true}
	if len(palletProducts) > 0 {
		res.NeedsSecondPass = pipeline.NeedsSecondPass(primary, palletProducts)
	}
	if !res.NeedsSecondPass {
		view := primary.View()
		res.Primary = &view
		return writeMixed(cmd, res)
	}

	secondaryReq, err := labelFromFlags(cmd, "secondary")
	if err != nil {
		return err
	}
	if secondaryReq == nil {
		return errors.New("secondary label is empty: set --secondary-payload, --secondary-image or --secondary-text")
	}

	mixed, err := p.ResolveMixed(ctx, palletID, primary, *secondaryReq, snap)
	if err != nil {
		return fmt.Errorf("failed to resolve secondary label: %w", err)
	}
	view := mixed.View()
	res.Mixed = &view
	return writeMixed(cmd, res)
}

// labelFromFlags builds a request from the --<role>-payload/-image/-text
// flags. It returns nil when none is set.
func labelFromFlags(cmd *cobra.Command, role string) (*pipeline.Request, error) {
	payload, _ := cmd.Flags().GetString(role + "-payload")
	imagePath, _ := cmd.Flags().GetString(role + "-image")
	text, _ := cmd.Flags().GetString(role + "-text")

	req := pipeline.Request{Payload: strings.TrimSpace(payload), Text: strings.TrimSpace(text)}
	if imagePath != "" {
		img, _, err := utils.LoadImage(imagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s image %s: %w", role, imagePath, err)
		}
		req.Capture = &pipeline.Capture{Image: img, Source: pipeline.SourceUpload}
	}
	if req.Payload == "" && req.Capture == nil && req.Text == "" {
		return nil, nil //nolint:nilnil // an absent label is not an error here
	}
	return &req, nil
}

func writeMixed(cmd *cobra.Command, res mixedResult) error {
	format, file, err := outputSettings(cmd)
	if err != nil {
		return err
	}

	var b strings.Builder
	if format == outputFormatJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON output: %w", err)
		}
		b.Write(data)
		b.WriteByte('\n')
	} else {
		_, _ = fmt.Fprintf(&b, "pallet %s (second pass: %t)\n", res.PalletID, res.NeedsSecondPass)
		if res.Primary != nil {
			writeTextRecord(&b, record{Name: "primary", Outcome: *res.Primary})
		}
		if res.Mixed != nil {
			writeTextRecord(&b, record{Name: "primary", Outcome: res.Mixed.Primary})
			writeTextRecord(&b, record{Name: "secondary", Outcome: res.Mixed.Secondary})
		}
	}

	return emit(cmd, file, b.String())
}

func init() {
	rootCmd.AddCommand(mixedCmd)

	mixedCmd.Flags().String("pallet", "", "pallet id")
	mixedCmd.Flags().StringSlice("pallet-products", nil, "product ids known to be on the pallet")
	for _, role := range []string{"primary", "secondary"} {
		mixedCmd.Flags().String(role+"-payload", "", role+" label barcode/QR payload")
		mixedCmd.Flags().String(role+"-image", "", role+" label image file")
		mixedCmd.Flags().String(role+"-text", "", role+" label recognized text")
	}
	addOutputFlags(mixedCmd)
}
