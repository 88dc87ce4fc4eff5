package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/gcp"
	"github.com/joseph-ayodele/labreports/internal/llm"
	"github.com/joseph-ayodele/labreports/internal/llm/openai"
	"github.com/joseph-ayodele/labreports/internal/llm/vertex"
	repo "github.com/joseph-ayodele/labreports/internal/repository"
	"github.com/joseph-ayodele/labreports/internal/vision"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

// models holds the text and vision chat models. Both are nil with LLM_PROVIDER=none,
// which leaves text extraction to the rule parser and disables the vision path.
type models struct {
	Text   llm.ChatModel
	Vision llm.ChatModel
	closer func() error
}

func newModels(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*models, error) {
	switch cfg.LLM.Provider {
	case "openai":
		text := openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
		vis := openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.Vision.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			ImageDetail: cfg.Vision.Detail,
			MaxTokens:   cfg.Vision.MaxTokens,
		}, logger)
		return &models{Text: text, Vision: vis}, nil
	case "vertex":
		c, err := vertex.NewClient(ctx, vertex.Config{
			ProjectID:   cfg.GCP.ProjectID,
			Region:      cfg.GCP.Region,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   int32(cfg.Vision.MaxTokens),
		}, logger)
		if err != nil {
			return nil, err
		}
		return &models{Text: c, Vision: c, closer: c.Close}, nil
	case "none":
		logger.Warn("no LLM provider configured, using rule-based extraction only")
		return &models{}, nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
}

func (m *models) visionExtractor(cfg *common.Config, logger *slog.Logger) *vision.Extractor {
	if m.Vision == nil {
		return nil
	}
	return vision.NewExtractor(m.Vision, vision.Config{
		MaxTokens:   cfg.Vision.MaxTokens,
		Concurrency: cfg.Vision.Concurrency,
	}, logger)
}

func (m *models) Close() {
	if m.closer != nil {
		_ = m.closer()
	}
}

// newCheckpointStore picks the workflow checkpoint backend named by
// CHECKPOINT_BACKEND. The returned func releases backend resources.
func newCheckpointStore(ctx context.Context, cfg *common.Config, db *repo.DB, logger *slog.Logger) (workflow.CheckpointStore, func(), error) {
	switch cfg.Workflow.CheckpointBackend {
	case "sql":
		return repo.NewCheckpointRepository(db, logger), func() {}, nil
	case "firestore":
		fc, err := gcp.NewFirestoreClient(ctx, cfg.GCP.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		store := gcp.NewCheckpointStore(fc, cfg.GCP.CheckpointCollection, logger)
		return store, func() { _ = fc.Close() }, nil
	case "memory":
		logger.Warn("checkpoints are kept in memory and lost on restart")
		return workflow.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Workflow.CheckpointBackend)
}
