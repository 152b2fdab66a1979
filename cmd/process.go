package main

import (
	"encoding/json"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearclaim/docintel/internal/model"
)

var (
	processFile      string
	processKind      string
	processTenant    string
	processClaimType string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a single document through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind := model.DocumentKind(processKind)
		if !kind.Valid() {
			return eris.Errorf("invalid kind %q (policy, estimate, measurement_report)", processKind)
		}

		data, err := os.ReadFile(processFile)
		if err != nil {
			return eris.Wrap(err, "read document")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mediaType := mime.TypeByExtension(filepath.Ext(processFile))
		if mediaType == "" {
			mediaType = "application/pdf"
		}

		ref := uuid.New().String()
		if err := env.Store.PutDocument(ctx, ref, mediaType, data); err != nil {
			return eris.Wrap(err, "store document")
		}

		run, err := env.Store.CreateRun(ctx, &model.PipelineRun{
			TenantID:    processTenant,
			DocumentRef: ref,
			Kind:        kind,
			ClaimType:   processClaimType,
		})
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		zap.L().Info("run created",
			zap.String("run_id", run.ID),
			zap.String("kind", string(kind)))

		final, err := env.Runner.Process(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "process run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	processCmd.Flags().StringVarP(&processFile, "file", "f", "", "path to the document (required)")
	processCmd.Flags().StringVarP(&processKind, "kind", "k", "policy", "document kind: policy, estimate, measurement_report")
	processCmd.Flags().StringVarP(&processTenant, "tenant", "t", "", "tenant identifier (required)")
	processCmd.Flags().StringVar(&processClaimType, "claim-type", "", "claim type focus, e.g. hail, wind, water")
	_ = processCmd.MarkFlagRequired("file")
	_ = processCmd.MarkFlagRequired("tenant")

	rootCmd.AddCommand(processCmd)
}
