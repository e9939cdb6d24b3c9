// Package business holds the per-business configuration consumed by the
// routing pipeline: intents, catalog, FAQ, scripts, and the pluggable
// matcher/builder hooks. Everything here is read-only at request time.
package business

import "strings"

// ProductStatus is the catalog lifecycle state of a product.
type ProductStatus string

const (
	ProductActive       ProductStatus = "active"
	ProductDiscontinued ProductStatus = "discontinued"
	ProductPreorder     ProductStatus = "preorder"
)

// Product is one catalog entry.
type Product struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Tags        []string      `json:"tags,omitempty"`
	Price       float64       `json:"price"`
	Category    string        `json:"category"`
	Status      ProductStatus `json:"status"`
	Description string        `json:"description,omitempty"`

	// RecommendedAlternative names the replacement product for
	// discontinued entries.
	RecommendedAlternative string `json:"recommended_alternative,omitempty"`
}

// IntentDefinition is one configurable intent with its trigger keywords.
type IntentDefinition struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Active           bool     `json:"active"`
	Triggers         []string `json:"triggers"`
	Policy           string   `json:"policy,omitempty"`
	ResponseTemplate string   `json:"response_template,omitempty"`
	Priority         int      `json:"priority"`
}

// FAQEntry pairs an ordered keyword set with its canned answer.
// Entries are evaluated in configured order; the first entry whose
// keyword set hits the message wins.
type FAQEntry struct {
	Keywords []string `json:"keywords"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
}

// KnowledgeDoc is a keyword-triggered knowledge-base document.
type KnowledgeDoc struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
	Content  string   `json:"content"`
}

// SaleScript is a keyword-triggered canned admin script.
type SaleScript struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Reply    string   `json:"reply"`
}

// CategoryTrigger maps a catalog category to its detection keywords.
// The pseudo-category "budget" is synthesized from price-cap phrasing
// rather than the catalog.
type CategoryTrigger struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// DiscontinuedMapping describes a discontinued product and what to
// recommend instead.
type DiscontinuedMapping struct {
	Product     *Product
	Replacement *Product
}

// Matchers are the pluggable predicate hooks the cascade calls.
// A Config without explicit matchers gets the defaults built from its
// own data (see defaults.go).
type Matchers struct {
	AdminEscalation func(msg string) bool
	VATRefund       func(msg string) bool
	StockInquiry    func(msg string) bool
	Discontinued    func(msg string) *DiscontinuedMapping
	SaleScript      func(msg string) *SaleScript
	KnowledgeDoc    func(msg string) *KnowledgeDoc
	SearchProducts  func(msg string) []*Product
}

// Builders render the fixed business responses for the safety layers.
type Builders struct {
	AdminEscalation func() string
	VATRefund       func() string
	StockCheck      func(p *Product) string
	Discontinued    func(m *DiscontinuedMapping) string
}

// Config is the full read-only configuration for one business.
type Config struct {
	BusinessID   string
	BusinessName string

	Intents           []*IntentDefinition
	Products          []*Product
	FAQEntries        []*FAQEntry
	KnowledgeDocs     []*KnowledgeDoc
	SaleScripts       []*SaleScript
	CategoryShortcuts []string
	CategoryTriggers  []CategoryTrigger

	Matchers *Matchers
	Builders *Builders

	DefaultFallbackMessage string
}

// ProductByID returns the product with the given id, or nil.
func (c *Config) ProductByID(id string) *Product {
	for _, p := range c.Products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ProductByName returns the product whose display name matches
// case-insensitively, or nil.
func (c *Config) ProductByName(name string) *Product {
	for _, p := range c.Products {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// Categories returns the distinct catalog categories with their product
// counts, in first-seen order.
func (c *Config) Categories() ([]string, map[string]int) {
	counts := make(map[string]int)
	var order []string
	for _, p := range c.Products {
		if p.Category == "" {
			continue
		}
		if _, seen := counts[p.Category]; !seen {
			order = append(order, p.Category)
		}
		counts[p.Category]++
	}
	return order, counts
}
