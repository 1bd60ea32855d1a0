package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/orchestrator"
	"github.com/ahrav/go-taxa/internal/store"
)

var (
	classifyTaxonomyID string
	classifySessionID  string
	classifySingle     bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify unclassified items into the taxonomy",
	Long: `Classify pulls unclassified items in batches and runs each batch
through the ensemble classifier, descending recursively into matched
branches. With --single-batch the session ends after one batch;
otherwise it keeps pulling batches until no unclassified items remain,
then suspends awaiting the next batch (resume later with "taxa resume").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, classifySingle)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx := cmd.Context()
		sessionID := classifySessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		src := newBatchSource(a.items, a.cfg.InitialBatchSize)
		batch, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			cmd.Println("No unclassified items.")
			return nil
		}

		result, err := a.engine.ClassifyBatch(ctx, sessionID, classifyTaxonomyID, batch)
		if err != nil {
			return err
		}
		reportBatch(cmd, result)

		for result.Interrupt != nil && result.Interrupt.Awaiting == domain.AwaitNextBatch {
			batch, err = src.Next(ctx)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				cmd.Printf("Session %s suspended awaiting next batch.\n", sessionID)
				return nil
			}
			result, err = a.engine.Resume(ctx, sessionID, batch)
			if err != nil {
				return err
			}
			reportBatch(cmd, result)
		}

		cmd.Printf("Session %s finished.\n", sessionID)
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a suspended classification session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, classifySingle)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx := cmd.Context()
		sessionID := args[0]
		src := newBatchSource(a.items, a.cfg.InitialBatchSize)
		for {
			batch, err := src.Next(ctx)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				cmd.Printf("No unclassified items; session %s remains suspended.\n", sessionID)
				return nil
			}
			result, err := a.engine.Resume(ctx, sessionID, batch)
			if err != nil {
				return err
			}
			reportBatch(cmd, result)
			if result.Interrupt == nil {
				cmd.Printf("Session %s finished.\n", sessionID)
				return nil
			}
		}
	},
}

// batchSource pulls batches of unclassified items, skipping ids it already
// handed out. An item whose ensemble abstained stays unclassified in the
// store; without the skip the loop would re-pull the identical batch and
// spend the full ensemble on it forever.
type batchSource struct {
	items store.ItemStore
	limit int
	tried map[string]struct{}
}

func newBatchSource(items store.ItemStore, limit int) *batchSource {
	return &batchSource{
		items: items,
		limit: limit,
		tried: make(map[string]struct{}),
	}
}

// Next returns the next batch of unclassified, not-yet-attempted items.
// An empty batch means every remaining unclassified item was already
// attempted this run.
func (s *batchSource) Next(ctx context.Context) ([]domain.Item, error) {
	all, err := s.items.List(ctx, store.ItemFilter{Unclassified: true})
	if err != nil {
		return nil, err
	}
	batch := make([]domain.Item, 0, s.limit)
	for _, item := range all {
		if _, ok := s.tried[item.ID]; ok {
			continue
		}
		s.tried[item.ID] = struct{}{}
		batch = append(batch, item)
		if s.limit > 0 && len(batch) >= s.limit {
			break
		}
	}
	return batch, nil
}

func reportBatch(cmd *cobra.Command, result *orchestrator.BatchResult) {
	classified := 0
	for _, item := range result.Items {
		if len(item.ClassifiedAs) > 0 {
			classified++
		}
	}
	cmd.Printf("Batch done: %d/%d items classified across %d levels.\n",
		classified, len(result.Items), result.Rounds)
}

func init() {
	classifyCmd.Flags().StringVar(&classifyTaxonomyID, "taxonomy", "", "taxonomy id (required)")
	classifyCmd.Flags().StringVar(&classifySessionID, "session", "", "session id (generated when empty)")
	classifyCmd.Flags().BoolVar(&classifySingle, "single-batch", false, "finish after one batch")
	_ = classifyCmd.MarkFlagRequired("taxonomy")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(resumeCmd)
}
