// Package cards publishes append-only data cards for built datasets
// and renders them as markdown.
package cards

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// Publisher writes data cards to the document store.
type Publisher struct {
	store  docstore.Store
	logger *logging.Logger
}

// NewPublisher wires a Publisher.
func NewPublisher(store docstore.Store, logger *logging.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

// PublishDataCard appends a card for the dataset build. Cards are never
// updated in place; each build adds a new one.
func (p *Publisher) PublishDataCard(ctx context.Context, ds *docstore.Dataset, summary string) (*docstore.Card, error) {
	card := &docstore.Card{
		CardID:    uuid.NewString(),
		DatasetID: ds.DatasetID,
		Title:     ds.Name,
		Summary:   summary,
		Classes:   ds.Spec.Classes,
		Counts:    ds.SliceStats,
		License:   ds.Spec.License,
	}
	if err := p.store.InsertCard(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to publish data card: %w", err)
	}

	p.logger.Info(ctx, "published data card",
		zap.String("dataset_id", ds.DatasetID),
		zap.String("card_id", card.CardID))
	return card, nil
}

// FormatMarkdown renders a card as a DATA_CARD.md document.
func FormatMarkdown(card *docstore.Card) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Data Card: %s\n\n", card.Title)
	if card.Summary != "" {
		fmt.Fprintf(&sb, "%s\n\n", card.Summary)
	}

	sb.WriteString("## Classes\n\n")
	for _, class := range card.Classes {
		fmt.Fprintf(&sb, "- %s\n", class)
	}
	sb.WriteString("\n## Counts\n\n")
	sb.WriteString("| class | items |\n|---|---|\n")

	classes := make([]string, 0, len(card.Counts))
	for class := range card.Counts {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	total := 0
	for _, class := range classes {
		fmt.Fprintf(&sb, "| %s | %d |\n", class, card.Counts[class])
		total += card.Counts[class]
	}
	fmt.Fprintf(&sb, "| **total** | **%d** |\n", total)

	if card.License != "" {
		fmt.Fprintf(&sb, "\n## License\n\n%s\n", card.License)
	}
	if !card.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "\nGenerated %s.\n", card.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return sb.String()
}
