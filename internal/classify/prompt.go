package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/llm/transport"
)

const branchSystemTemplate = `You are a classification agent. You will be given an item and classify it into one or more child nodes in the taxonomy.

This taxonomy is created for the following aspect:
%s

Here are the child nodes you'll be classifying the item into. Note that there is a parent node in which the item is already classified into. You'll be classify the provided item into one or more children nodes.

%s

Important Notes!
%s`

const branchUserTemplate = `Here is the item you need to classify:
%s

Important Notes!
%s`

var importantNotes = "- " + strings.Join([]string{
	"An item can be classified into multiple nodes horizontally.",
	"If the item doesn't belong to any of the children nodes, don't try to shoehorn it into a node. Return an empty list.",
	"You should examine all the children nodes one by one, judging whether the item belongs to the node or not.",
}, "\n- ")

// buildBranchPrompt renders the system and user messages for one
// (item, branch) case. nodes must already carry the short ids shown to
// the model.
func buildBranchPrompt(
	ctx context.Context,
	examples ExampleSource,
	cfg Config,
	tax domain.Taxonomy,
	nodes []domain.Node,
	parentID string,
	item domain.Item,
) ([]transport.Message, error) {
	formatted, err := formatBranch(ctx, examples, cfg, nodes, parentID)
	if err != nil {
		return nil, err
	}
	return []transport.Message{
		{
			Role:    transport.RoleSystem,
			Content: fmt.Sprintf(branchSystemTemplate, tax.Aspect, formatted, importantNotes),
		},
		{
			Role:    transport.RoleUser,
			Content: fmt.Sprintf(branchUserTemplate, formatItem(item), importantNotes),
		},
	}, nil
}

func formatItem(item domain.Item) string {
	return fmt.Sprintf("<Item>\n%s\n</Item>", item.Content)
}

// formatBranch renders the parent node and its children, each with id,
// label, description, and up to cfg.NumExamples exemplary member items.
func formatBranch(
	ctx context.Context,
	examples ExampleSource,
	cfg Config,
	nodes []domain.Node,
	parentID string,
) (string, error) {
	parent, ok := domain.FindNode(nodes, parentID)
	if !ok {
		return "", fmt.Errorf("parent node %s not found", parentID)
	}
	children := domain.ChildrenOf(nodes, parentID)
	if len(children) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoChildren, parentID)
	}

	parentBlock, err := formatNode(ctx, examples, cfg, parent)
	if err != nil {
		return "", err
	}
	childBlocks := make([]string, 0, len(children))
	for _, child := range children {
		block, err := formatNode(ctx, examples, cfg, child)
		if err != nil {
			return "", err
		}
		childBlocks = append(childBlocks, block)
	}

	return fmt.Sprintf("<ParentNode>\n%s\n</ParentNode>\n\n<ChildNodes>\n%s\n</ChildNodes>",
		parentBlock, strings.Join(childBlocks, "\n\n")), nil
}

func formatNode(ctx context.Context, examples ExampleSource, cfg Config, node domain.Node) (string, error) {
	lines := []string{
		fmt.Sprintf("Id: %s", node.ID),
		fmt.Sprintf("Label: %s", node.Label),
		fmt.Sprintf("Description: %s", node.Description),
	}

	if examples != nil && cfg.NumExamples > 0 {
		var exampleIDs []string
		for _, m := range node.Members {
			if m.UsedAsExample {
				exampleIDs = append(exampleIDs, m.ItemID)
			}
		}
		if len(exampleIDs) > 0 {
			rendered, err := formatExamples(ctx, examples, cfg, exampleIDs)
			if err != nil {
				return "", err
			}
			if rendered != "" {
				lines = append(lines, "Exemplary Items:\n"+rendered)
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

func formatExamples(ctx context.Context, examples ExampleSource, cfg Config, ids []string) (string, error) {
	items, err := examples.ListByIDs(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("fetch example items: %w", err)
	}
	if len(items) > cfg.NumExamples {
		items = items[:cfg.NumExamples]
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		content := item.Content
		truncated := len(content) > cfg.MaxExampleLength
		if truncated {
			content = content[:cfg.MaxExampleLength]
		}
		content = strings.TrimSpace(strings.ReplaceAll(content, "\n", " "))
		if truncated {
			content += "..."
		}
		lines = append(lines, "- "+content)
	}
	return strings.Join(lines, "\n"), nil
}
