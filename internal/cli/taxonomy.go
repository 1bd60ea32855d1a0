package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-taxa/internal/domain"
)

var (
	taxonomyAspect string
	taxonomyRules  []string
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Manage taxonomies",
}

var taxonomyCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a taxonomy with a root node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newStorageApp(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx := cmd.Context()
		tax := domain.Taxonomy{
			ID:     args[0],
			Aspect: taxonomyAspect,
			Rules:  taxonomyRules,
		}
		if err := a.taxonomies.Put(ctx, tax); err != nil {
			return err
		}
		if err := a.nodes.ReplaceAll(ctx, tax.ID, []domain.Node{domain.RootNode()}); err != nil {
			return err
		}
		cmd.Printf("Created taxonomy %s\n", tax.ID)
		return nil
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage content items",
}

var itemsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Add items from a file, one item per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newStorageApp(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open items file: %w", err)
		}
		defer func() { _ = f.Close() }()

		var items []domain.Item
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
		for scanner.Scan() {
			content := strings.TrimSpace(scanner.Text())
			if content == "" {
				continue
			}
			items = append(items, domain.Item{
				ID:      uuid.NewString(),
				Content: content,
			})
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read items file: %w", err)
		}
		if len(items) == 0 {
			return fmt.Errorf("no items found in %s", args[0])
		}

		if err := a.items.Put(cmd.Context(), items...); err != nil {
			return err
		}
		cmd.Printf("Added %d items\n", len(items))
		return nil
	},
}

func init() {
	taxonomyCreateCmd.Flags().StringVar(&taxonomyAspect, "aspect", "", "aspect the taxonomy focuses on (required)")
	taxonomyCreateCmd.Flags().StringArrayVar(&taxonomyRules, "rule", nil, "validation rule, repeatable")
	_ = taxonomyCreateCmd.MarkFlagRequired("aspect")

	taxonomyCmd.AddCommand(taxonomyCreateCmd)
	rootCmd.AddCommand(taxonomyCmd)

	itemsCmd.AddCommand(itemsAddCmd)
	rootCmd.AddCommand(itemsCmd)
}
