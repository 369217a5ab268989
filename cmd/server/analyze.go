package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onfert/analyst/internal/models"
	"github.com/onfert/analyst/internal/report"
)

func analyzeCommand(a *app) *cobra.Command {
	soil := models.DefaultSoilData()
	var (
		imagePath string
		save      bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one soil sample and print the recommendation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateRecommender(); err != nil {
				return err
			}
			image, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			ctx := cmd.Context()
			svc, cleanup, err := a.newAnalysisService(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.Analyze(ctx, soil, image)
			if err != nil {
				return err
			}
			if save {
				if result, err = svc.Save(ctx, result.ID); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				result.ImagePreview = ""
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintf(out, "Recomendação: %s\n", result.Result.ProductRecommendation)
			fmt.Fprintf(out, "Confiança:    %s\n", report.FormatConfidence(result.Result.Confidence))
			fmt.Fprintf(out, "Raciocínio:   %s\n", result.Result.Reasoning)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&imagePath, "image", "", "JPEG or PNG photo of the crop or soil")
	f.StringVar(&soil.Crop, "crop", soil.Crop, "crop")
	f.StringVar(&soil.SoilType, "soil-type", soil.SoilType, "soil type")
	f.Float64Var(&soil.PH, "ph", soil.PH, "soil pH")
	f.Float64Var(&soil.Nitrogen, "nitrogen", soil.Nitrogen, "nitrogen (mg/dm³)")
	f.Float64Var(&soil.Phosphorus, "phosphorus", soil.Phosphorus, "phosphorus (mg/dm³)")
	f.Float64Var(&soil.Potassium, "potassium", soil.Potassium, "potassium (mg/dm³)")
	f.StringVar(&soil.History, "history", soil.History, "field history")
	f.StringVar(&soil.Climate, "climate", soil.Climate, "climate")
	f.BoolVar(&save, "save", false, "save the analysis and publish it")
	f.BoolVar(&asJSON, "json", false, "print the analysis as JSON")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}
