package bootstrap

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/ensemble"
	"github.com/ahrav/go-taxa/internal/llm/transport"
)

var importantRules = "Important Rules:\n- " + strings.Join([]string{
	"This is not a classification task. You are creating a taxonomy. Don't try to put items in the examples of the class node unless it is a representative example.",
	"Often times, you may create multiple layers of nodes. Think if the final layer of nodes can capture the nuances of the class. If not, create more layers under them.",
	"Create at least 3 layers of nodes.",
	"Try to make the first layer of nodes cover high-level aspects, getting more detailed as you go deeper.",
	"Ideally, the first layer should not have more than 5 nodes.",
	"Don't include the nodes that are already in the taxonomy in your response.",
	"Follow the provided json output schema strictly.",
}, "\n- ")

const systemTemplate = `You are a classification agent. You will be given a list of items. Your goal is to create a taxonomy for the items. (Note that this is not a classification task. You are creating a taxonomy.)

The taxonomy you'll create has the following aspect that you should focus on:
%s

The taxonomy has a single root node. It can have many children nodes. Each node is where the items will be classified. The depth of node can go as deep as you want.

%s`

const userTemplate = `You currently have the following nodes in the taxonomy:
%s

And here are the items from which you'll create the taxonomy:
%s

%s`

// initialHistory seeds the conversation with the aspect, the current
// (abbreviated) tree, and the sample items.
func initialHistory(tax domain.Taxonomy, nodes []domain.Node, items []domain.Item) ([]transport.Message, error) {
	abbreviated, _, err := ensemble.AbbreviateNodes(nodes)
	if err != nil {
		return nil, err
	}
	return []transport.Message{
		{
			Role:    transport.RoleSystem,
			Content: fmt.Sprintf(systemTemplate, tax.Aspect, importantRules),
		},
		{
			Role:    transport.RoleUser,
			Content: fmt.Sprintf(userTemplate, formatNodes(abbreviated), formatItems(items), importantRules),
		},
	}, nil
}

func formatNodes(nodes []domain.Node) string {
	blocks := make([]string, 0, len(nodes))
	for _, n := range nodes {
		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("Id: %s", n.ID),
			fmt.Sprintf("Parent Node ID: %s", orNone(n.ParentID)),
			fmt.Sprintf("Label: %s", n.Label),
			fmt.Sprintf("Description: %s", n.Description),
		}, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func formatItems(items []domain.Item) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("<Item>%s</Item>", item.Content))
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
