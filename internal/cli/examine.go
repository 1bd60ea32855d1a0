package cli

import (
	"errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-taxa/internal/reduce"
	"github.com/ahrav/go-taxa/internal/store"
)

var (
	examineTaxonomyID string
	examineForce      []string
)

// examineMeta is the per-taxonomy examination bookkeeping.
type examineMeta struct {
	ExaminedNodeIDs []string `json:"examined_node_ids"`
	ExcludedNodeIDs []string `json:"excluded_node_ids"`
}

var examineCmd = &cobra.Command{
	Use:   "examine",
	Short: "Split overloaded low-confidence nodes into children",
	Long: `Examine selects nodes that accumulated many members with low average
confidence, asks a model to propose child nodes for each, and re-votes
the members against the new children. Selected nodes are recorded so
they are not examined again; use --force to examine specific nodes
regardless of thresholds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx := cmd.Context()
		tax, err := a.taxonomies.Get(ctx, examineTaxonomyID)
		if err != nil {
			return err
		}
		nodes, err := a.nodes.ListAll(ctx, tax.ID)
		if err != nil {
			return err
		}

		metaKey := "examine/" + tax.ID
		var meta examineMeta
		if err := a.meta.Get(ctx, metaKey, &meta); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		result, err := a.examiner().Run(ctx, uuid.NewString(), *tax,
			nodes, meta.ExaminedNodeIDs, meta.ExcludedNodeIDs, examineForce)
		if err != nil {
			return err
		}
		if len(result.ExaminedIDs) == 0 {
			cmd.Println("No nodes eligible for examination.")
			return nil
		}

		nodes = reduce.Nodes(nodes, result.Nodes)
		if err := a.nodes.ReplaceAll(ctx, tax.ID, nodes); err != nil {
			return err
		}

		if len(result.Items) > 0 {
			ids := make([]string, 0, len(result.Items))
			for _, item := range result.Items {
				ids = append(ids, item.ID)
			}
			existing, err := a.items.ListByIDs(ctx, ids)
			if err != nil {
				return err
			}
			merged := reduce.Items(existing, result.Items)
			if err := a.items.Put(ctx, merged...); err != nil {
				return err
			}
		}

		meta.ExaminedNodeIDs = append(meta.ExaminedNodeIDs, result.ExaminedIDs...)
		if err := a.meta.Set(ctx, metaKey, meta); err != nil {
			return err
		}

		cmd.Printf("Examined %d nodes, created %d children.\n",
			len(result.ExaminedIDs), len(result.Nodes))
		return nil
	},
}

func init() {
	examineCmd.Flags().StringVar(&examineTaxonomyID, "taxonomy", "", "taxonomy id (required)")
	examineCmd.Flags().StringArrayVar(&examineForce, "force", nil, "node id to examine regardless of thresholds, repeatable")
	_ = examineCmd.MarkFlagRequired("taxonomy")

	rootCmd.AddCommand(examineCmd)
}
