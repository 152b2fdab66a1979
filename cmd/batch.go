package main

import (
	"context"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearclaim/docintel/internal/model"
)

var (
	batchDir       string
	batchKind      string
	batchTenant    string
	batchClaimType string
	batchLimit     int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process a directory of documents concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		kind := model.DocumentKind(batchKind)
		if !kind.Valid() {
			return eris.Errorf("invalid kind %q (policy, estimate, measurement_report)", batchKind)
		}

		files, err := collectDocuments(batchDir)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return processBatch(ctx, env, files, kind)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchDir, "dir", "d", "", "directory of documents to process (required)")
	batchCmd.Flags().StringVarP(&batchKind, "kind", "k", "policy", "document kind: policy, estimate, measurement_report")
	batchCmd.Flags().StringVarP(&batchTenant, "tenant", "t", "", "tenant identifier (required)")
	batchCmd.Flags().StringVar(&batchClaimType, "claim-type", "", "claim type focus, e.g. hail, wind, water")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of documents to process (0 = all)")
	_ = batchCmd.MarkFlagRequired("dir")
	_ = batchCmd.MarkFlagRequired("tenant")

	rootCmd.AddCommand(batchCmd)
}

// collectDocuments lists processable files in dir, sorted for stable order.
func collectDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrap(err, "read batch directory")
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// processBatch runs the pipeline for each file concurrently. Individual
// document failures are logged and counted, never abort the batch.
func processBatch(ctx context.Context, env *pipelineEnv, files []string, kind model.DocumentKind) error {
	if len(files) == 0 {
		zap.L().Info("no documents found")
		return nil
	}
	if batchLimit > 0 && len(files) > batchLimit {
		files = files[:batchLimit]
	}

	concurrency := cfg.Batch.MaxConcurrentDocuments
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(files)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, file := range files {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", file))

			run, err := submitDocument(gctx, env, file, kind)
			if err != nil {
				failed.Add(1)
				log.Error("submit failed", zap.Error(err))
				return nil
			}

			final, err := env.Runner.Process(gctx, run.ID)
			if err != nil {
				failed.Add(1)
				log.Error("processing failed", zap.String("run_id", run.ID), zap.Error(err))
				return nil
			}
			if final.Status == model.RunStatusFailed {
				failed.Add(1)
				log.Warn("run failed", zap.String("run_id", run.ID), zap.String("reason", final.Error))
				return nil
			}

			succeeded.Add(1)
			log.Info("run complete", zap.String("run_id", run.ID))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

func submitDocument(ctx context.Context, env *pipelineEnv, file string, kind model.DocumentKind) (*model.PipelineRun, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, eris.Wrap(err, "read document")
	}

	mediaType := mime.TypeByExtension(filepath.Ext(file))
	if mediaType == "" {
		mediaType = "application/pdf"
	}

	ref := uuid.New().String()
	if err := env.Store.PutDocument(ctx, ref, mediaType, data); err != nil {
		return nil, eris.Wrap(err, "store document")
	}

	return env.Store.CreateRun(ctx, &model.PipelineRun{
		TenantID:    batchTenant,
		DocumentRef: ref,
		Kind:        kind,
		ClaimType:   batchClaimType,
	})
}
