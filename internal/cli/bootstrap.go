package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/store"
)

var (
	bootstrapTaxonomyID string
	bootstrapSampleSize int
	bootstrapAuto       bool
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Generate a taxonomy's initial node tree from sample items",
	Long: `Bootstrap proposes a node tree from a sample of stored items and the
taxonomy's aspect. When the taxonomy has validation rules, each proposal
is checked against them; failures either loop automatically with
validator feedback (--auto) or prompt for guidance. Answering "pass"
accepts the current tree as-is.`,
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
		tax, err := a.taxonomies.Get(ctx, bootstrapTaxonomyID)
		if err != nil {
			return err
		}
		sample, err := a.items.List(ctx, store.ItemFilter{
			Unclassified: true,
			Limit:        bootstrapSampleSize,
		})
		if err != nil {
			return err
		}
		if len(sample) == 0 {
			return fmt.Errorf("no items to bootstrap from; add items first")
		}

		b := a.bootstrapper(!bootstrapAuto)
		session, err := b.Run(ctx, *tax, sample)
		if err != nil {
			return err
		}

		stdin := bufio.NewReader(os.Stdin)
		for !session.Done {
			if session.Interrupt == nil {
				return fmt.Errorf("session neither done nor suspended")
			}
			cmd.Printf("\n%s\n> ", session.Interrupt.Prompt)
			line, err := stdin.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read guidance: %w", err)
			}
			session, err = b.Resume(ctx, session, strings.TrimSpace(line))
			if err != nil {
				return err
			}
		}

		if err := a.nodes.ReplaceAll(ctx, tax.ID, session.Nodes); err != nil {
			return err
		}
		cmd.Printf("Taxonomy %s bootstrapped with %d nodes:\n", tax.ID, len(session.Nodes))
		printTree(cmd, session.Nodes, domain.RootNodeID, 0)
		return nil
	},
}

func printTree(cmd *cobra.Command, nodes []domain.Node, parentID string, depth int) {
	for _, n := range domain.ChildrenOf(nodes, parentID) {
		cmd.Printf("%s- %s\n", strings.Repeat("  ", depth), n.Label)
		printTree(cmd, nodes, n.ID, depth+1)
	}
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapTaxonomyID, "taxonomy", "", "taxonomy id (required)")
	bootstrapCmd.Flags().IntVar(&bootstrapSampleSize, "sample", 50, "number of items to sample")
	bootstrapCmd.Flags().BoolVar(&bootstrapAuto, "auto", false, "loop on validator feedback instead of prompting")
	_ = bootstrapCmd.MarkFlagRequired("taxonomy")

	rootCmd.AddCommand(bootstrapCmd)
}
