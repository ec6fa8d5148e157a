package domain

import "time"

type Product struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	BasePriceCents int64            `json:"base_price_cents"`
	Images         []string         `json:"images"`
	Pipeline       []StepDefinition `json:"fulfillment_pipeline"`
	CreatedAt      time.Time        `json:"created_at"`
}

type Variant struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
}

// StepDefinition is one step of a product's fulfillment pipeline.
type StepDefinition struct {
	ID                     string   `json:"id"`
	Label                  string   `json:"label"`
	RequiredMetadataFields []string `json:"required_metadata_fields"`
}

// Step looks up a pipeline step by id.
func (p Product) Step(stepID string) (StepDefinition, bool) {
	for _, s := range p.Pipeline {
		if s.ID == stepID {
			return s, true
		}
	}
	return StepDefinition{}, false
}

func (p Product) StepIDs() []string {
	ids := make([]string, 0, len(p.Pipeline))
	for _, s := range p.Pipeline {
		ids = append(ids, s.ID)
	}
	return ids
}

// MissingMetadata returns the required fields absent from metadata, in
// definition order. Empty values count as absent.
func (s StepDefinition) MissingMetadata(metadata map[string]string) []string {
	var missing []string
	for _, field := range s.RequiredMetadataFields {
		if metadata[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
