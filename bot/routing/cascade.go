package routing

import (
	"log/slog"
	"strings"

	"github.com/warintorn/shoptalk/bot/business"
)

// OffHoursAnnotator optionally decorates fallback copy for a business
// outside its staffed hours (e.g. appending expected reply times).
type OffHoursAnnotator func(content string) string

// Pipeline is the fixed-order, short-circuiting chain of matcher
// layers. It owns no mutable request state: every Route call builds its
// own context and trace, so one Pipeline serves concurrent requests.
type Pipeline struct {
	clock    Clock
	handlers *HandlerRegistry

	// offHours maps business id to its optional annotator; businesses
	// without an entry get plain fallback copy.
	offHours map[string]OffHoursAnnotator
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock injects a clock; tests use this for deterministic timings.
func WithClock(c Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithHandlerRegistry replaces the built-in intent-handler registry.
func WithHandlerRegistry(r *HandlerRegistry) Option {
	return func(p *Pipeline) { p.handlers = r }
}

// WithOffHoursAnnotators installs the per-business off-hours table.
func WithOffHoursAnnotators(table map[string]OffHoursAnnotator) Option {
	return func(p *Pipeline) { p.offHours = table }
}

// NewPipeline creates a pipeline with the canonical layer order.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		clock:    SystemClock{},
		handlers: NewHandlerRegistry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// categoryBrowseKeywords trigger the generic catalog overview.
var categoryBrowseKeywords = []string{
	"ขายอะไร", "มีอะไรขาย", "มีสินค้าอะไร", "มีรุ่นไหนบ้าง", "ดูสินค้าทั้งหมด",
	"what do you sell", "catalog",
}

// budgetPseudoCategoryKeywords synthesize the "budget" pseudo-category
// for category detection.
var budgetPseudoCategoryKeywords = []string{"งบ", "ไม่เกิน", "budget", "ราคาประหยัด"}

// Route evaluates the cascade for one message. Layers run in ascending
// order; the first match halts evaluation; every layer contributes
// exactly one trace step.
func (p *Pipeline) Route(req *Request) *Result {
	// Resolved copy: the caller's config is shared across requests and
	// is never written here.
	cfg := req.Config.WithDefaults()

	tb := NewTraceBuilder(p.clock, req.CurrentMessage)
	msg := req.CurrentMessage
	lower := strings.ToLower(msg)

	// Layer 0: context extraction always runs and is never terminal.
	start := p.clock.Now()
	cc := ExtractContext(req.History, msg, cfg)
	tb.Record(LayerContextExtraction, StatusChecked, start, map[string]any{"summary": cc.Summary})

	finish := func(layer int, content, intent string, res *Result) *Result {
		res.Content = content
		res.Trace = tb.Finish(layer, intent, ModeRule)
		slog.Debug("chat.route",
			"business", cfg.BusinessID,
			"final_layer", layer,
			"layer_name", LayerName(layer),
			"intent", intent,
		)
		return res
	}

	// Layer 1: admin escalation.
	start = p.clock.Now()
	if cfg.Matchers.AdminEscalation(msg) {
		tb.Record(LayerAdminEscalation, StatusMatched, start, nil)
		return finish(LayerAdminEscalation, cfg.Builders.AdminEscalation(), "", &Result{IsAdminEscalation: true})
	}
	tb.Record(LayerAdminEscalation, StatusChecked, start, nil)

	// Layer 2: VAT refund refusal.
	start = p.clock.Now()
	if cfg.Matchers.VATRefund(msg) {
		tb.Record(LayerVATRefund, StatusMatched, start, nil)
		return finish(LayerVATRefund, cfg.Builders.VATRefund(), "", &Result{})
	}
	tb.Record(LayerVATRefund, StatusChecked, start, nil)

	// Layer 3: stock inquiry. Stock levels are never asserted; the
	// reply defers to the team whether or not a product is in context.
	start = p.clock.Now()
	if cfg.Matchers.StockInquiry(msg) {
		details := map[string]any{}
		if cc.ActiveProduct != nil {
			details["product"] = cc.ActiveProduct.ID
		}
		tb.Record(LayerStockInquiry, StatusMatched, start, details)
		return finish(LayerStockInquiry, cfg.Builders.StockCheck(cc.ActiveProduct), "", &Result{})
	}
	tb.Record(LayerStockInquiry, StatusChecked, start, nil)

	// Layer 4: discontinued product.
	start = p.clock.Now()
	if dm := cfg.Matchers.Discontinued(msg); dm != nil {
		tb.Record(LayerDiscontinued, StatusMatched, start, map[string]any{"product": dm.Product.ID})
		return finish(LayerDiscontinued, cfg.Builders.Discontinued(dm), "", &Result{})
	}
	tb.Record(LayerDiscontinued, StatusChecked, start, nil)

	// Layer 5: context continuation. Only attempted on a follow-up with
	// an active product; falls through when no topic template applies.
	start = p.clock.Now()
	if cc.IsFollowUp && cc.ActiveProduct != nil {
		if content := renderTopicAnswer(cc.RecentTopic, cc.ActiveProduct, cc); content != "" {
			tb.Record(LayerContextContinuation, StatusMatched, start, map[string]any{
				"topic":   string(cc.RecentTopic),
				"product": cc.ActiveProduct.ID,
			})
			return finish(LayerContextContinuation, content, "", &Result{})
		}
		tb.Record(LayerContextContinuation, StatusChecked, start, map[string]any{"topic": string(cc.RecentTopic)})
	} else {
		tb.Record(LayerContextContinuation, StatusSkipped, start, nil)
	}

	// Layer 6: intent engine.
	start = p.clock.Now()
	scores := ScoreIntents(msg, cfg)
	if top := ClassifyIntent(msg, cfg, 0); top != nil {
		content, handled := p.runIntent(top, msg, cc, cfg)
		if handled {
			tb.Record(LayerIntentEngine, StatusMatched, start, map[string]any{
				"intent":   top.Intent.ID,
				"score":    top.Score,
				"triggers": top.MatchedTriggers,
			})
			res := &Result{IsCancelEscalation: top.Intent.ID == "cancel_order"}
			return finish(LayerIntentEngine, content, top.Intent.ID, res)
		}
		// Handler deliberately passed through.
		tb.Record(LayerIntentEngine, StatusChecked, start, map[string]any{"intent": top.Intent.ID, "score": top.Score})
	} else {
		tb.Record(LayerIntentEngine, StatusChecked, start, nil)
	}

	// Layer 7: sale scripts.
	start = p.clock.Now()
	if script := cfg.Matchers.SaleScript(msg); script != nil {
		tb.Record(LayerSaleScript, StatusMatched, start, map[string]any{"script": script.ID})
		return finish(LayerSaleScript, script.Reply, "", &Result{})
	}
	tb.Record(LayerSaleScript, StatusChecked, start, nil)

	// Layer 8: knowledge base.
	start = p.clock.Now()
	if doc := cfg.Matchers.KnowledgeDoc(msg); doc != nil {
		tb.Record(LayerKnowledgeBase, StatusMatched, start, map[string]any{"doc": doc.ID})
		return finish(LayerKnowledgeBase, doc.Content, "", &Result{})
	}
	tb.Record(LayerKnowledgeBase, StatusChecked, start, nil)

	// Layer 9: FAQ. Keyword sets are evaluated in configured order; the
	// first set with a keyword hit and a real answer wins.
	start = p.clock.Now()
	if answer, q := matchFAQ(msg, cfg); answer != "" {
		tb.Record(LayerFAQSearch, StatusMatched, start, map[string]any{"question": q})
		return finish(LayerFAQSearch, answer, "", &Result{})
	}
	tb.Record(LayerFAQSearch, StatusChecked, start, nil)

	// Layer 10: full-text product search.
	start = p.clock.Now()
	if hits := cfg.Matchers.SearchProducts(msg); len(hits) > 0 {
		tb.Record(LayerProductSearch, StatusMatched, start, map[string]any{"hits": len(hits)})
		return finish(LayerProductSearch, renderSearchHits(hits), "", &Result{})
	}
	tb.Record(LayerProductSearch, StatusChecked, start, nil)

	// Layer 11: category browse.
	start = p.clock.Now()
	if containsAnyKeyword(lower, categoryBrowseKeywords) {
		if content := renderCategoryList(cfg); content != "" {
			tb.Record(LayerCategoryBrowse, StatusMatched, start, nil)
			return finish(LayerCategoryBrowse, content, "", &Result{})
		}
	}
	tb.Record(LayerCategoryBrowse, StatusChecked, start, nil)

	// Layer 12: category-specific detection, then the clarification
	// engine as a second pass of the same layer.
	start = p.clock.Now()
	if content, cat := p.matchCategory(msg, lower, cc, cfg); content != "" {
		tb.Record(LayerCategoryDetect, StatusMatched, start, map[string]any{"category": cat})
		return finish(LayerCategoryDetect, content, "", &Result{})
	}
	if cl := BuildClarification(msg, scores, cc, cfg); cl != nil {
		tb.Record(LayerCategoryDetect, StatusMatched, start, map[string]any{"clarify": true})
		return finish(LayerCategoryDetect, cl.Question, "", &Result{ClarifyOptions: cl.Options})
	}
	tb.Record(LayerCategoryDetect, StatusChecked, start, nil)

	// Layer 13: context fallback.
	start = p.clock.Now()
	if cc.ActiveProduct != nil && len(req.History) > 2 {
		tb.Record(LayerContextFallback, StatusMatched, start, map[string]any{"product": cc.ActiveProduct.ID})
		return finish(LayerContextFallback, renderContextFallback(cc.ActiveProduct), "", &Result{})
	}
	tb.Record(LayerContextFallback, StatusSkipped, start, nil)

	// Layer 14: default fallback, unconditional.
	start = p.clock.Now()
	content := cfg.DefaultFallbackMessage
	if annotate, ok := p.offHours[cfg.BusinessID]; ok && annotate != nil {
		content = annotate(content)
	}
	tb.Record(LayerDefaultFallback, StatusMatched, start, nil)
	return finish(LayerDefaultFallback, content, "", &Result{})
}

// runIntent dispatches a classified intent to its registered handler,
// falling back to the configured response template.
func (p *Pipeline) runIntent(top *IntentScore, msg string, cc *ConversationContext, cfg *business.Config) (string, bool) {
	if h := p.handlers.Lookup(top.Intent.ID); h != nil {
		return h(&HandlerInput{Message: msg, Context: cc, Config: cfg, Score: top})
	}
	if tpl := top.Intent.ResponseTemplate; tpl != "" {
		return renderTemplate(tpl, cc, cfg), true
	}
	return "", false
}

// renderTemplate substitutes the small set of supported placeholders.
func renderTemplate(tpl string, cc *ConversationContext, cfg *business.Config) string {
	out := strings.ReplaceAll(tpl, "{{business_name}}", cfg.BusinessName)
	product := ""
	if cc != nil && cc.ActiveProduct != nil {
		product = cc.ActiveProduct.Name
	}
	return strings.ReplaceAll(out, "{{product}}", product)
}

func matchFAQ(msg string, cfg *business.Config) (answer, question string) {
	lower := strings.ToLower(msg)
	for _, entry := range cfg.FAQEntries {
		if entry.Answer == "" {
			continue
		}
		if containsAnyKeyword(lower, entry.Keywords) {
			return entry.Answer, entry.Question
		}
	}
	return "", ""
}

func renderSearchHits(hits []*business.Product) string {
	if len(hits) <= 2 {
		cards := make([]string, 0, len(hits))
		for _, p := range hits {
			cards = append(cards, renderProductCard(p))
		}
		return strings.Join(cards, "\n\n")
	}
	return renderProductSummary(hits)
}

// matchCategory checks configured per-category triggers plus the
// synthetic budget pseudo-category.
func (p *Pipeline) matchCategory(msg, lower string, cc *ConversationContext, cfg *business.Config) (content, category string) {
	for _, trigger := range cfg.CategoryTriggers {
		if !containsAnyKeyword(lower, trigger.Keywords) {
			continue
		}
		var inCat []*business.Product
		for _, prod := range cfg.Products {
			if prod.Category == trigger.Category {
				inCat = append(inCat, prod)
			}
		}
		if len(inCat) == 0 {
			continue
		}
		return renderProductSummary(inCat), trigger.Category
	}

	if containsAnyKeyword(lower, budgetPseudoCategoryKeywords) {
		if answer, ok := handleBudgetRecommend(&HandlerInput{Message: msg, Context: cc, Config: cfg}); ok {
			return answer, "budget"
		}
	}
	return "", ""
}

func containsAnyKeyword(lowerMsg string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lowerMsg, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
