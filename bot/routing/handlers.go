package routing

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/warintorn/shoptalk/bot/business"
)

// HandlerInput is what an intent handler gets to work with.
type HandlerInput struct {
	Message string
	Context *ConversationContext
	Config  *business.Config
	Score   *IntentScore
}

// IntentHandler produces the reply for a classified intent. Returning
// handled=false passes the message through to later cascade layers.
type IntentHandler func(in *HandlerInput) (content string, handled bool)

// HandlerRegistry maps intent ids to handler strategies. Intents with
// no registered handler fall back to their configured response
// template.
type HandlerRegistry struct {
	handlers map[string]IntentHandler
}

// NewHandlerRegistry returns a registry preloaded with the built-in
// handlers.
func NewHandlerRegistry() *HandlerRegistry {
	r := &HandlerRegistry{handlers: make(map[string]IntentHandler)}
	r.Register("budget_recommend", handleBudgetRecommend)
	r.Register("catalog_browse", handleCatalogBrowse)
	r.Register("compare_models", handleCompareModels)
	r.Register("cancel_order", handleCancelOrder)
	return r
}

// Register installs (or replaces) the handler for an intent id.
func (r *HandlerRegistry) Register(intentID string, h IntentHandler) {
	r.handlers[intentID] = h
}

// Lookup returns the handler for an intent id, or nil.
func (r *HandlerRegistry) Lookup(intentID string) IntentHandler {
	return r.handlers[intentID]
}

var budgetAmountRegex = regexp.MustCompile(`(\d[\d,]*)`)

// parseBudget extracts the price cap from a budget question. Amounts
// like "5,000" or shorthand "5k"/"5พัน"/"2หมื่น" are recognized.
func parseBudget(message string) (float64, bool) {
	lower := strings.ToLower(message)
	m := budgetAmountRegex.FindString(lower)
	if m == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	rest := lower[strings.Index(lower, m)+len(m):]
	switch {
	case strings.HasPrefix(rest, "k") || strings.HasPrefix(rest, "พัน"):
		amount *= 1000
	case strings.HasPrefix(rest, "หมื่น"):
		amount *= 10000
	case strings.HasPrefix(rest, "แสน"):
		amount *= 100000
	}
	return amount, true
}

// handleBudgetRecommend filters active products under the stated budget
// and recommends the closest matches, priciest first.
func handleBudgetRecommend(in *HandlerInput) (string, bool) {
	budget, ok := parseBudget(in.Message)
	if !ok {
		// No concrete amount in the message; let later layers handle it.
		return "", false
	}

	var fits []*business.Product
	for _, p := range in.Config.Products {
		if p.Status == business.ProductActive && p.Price <= budget {
			fits = append(fits, p)
		}
	}
	if len(fits) == 0 {
		return fmt.Sprintf("งบ %.0f บาทตอนนี้ยังไม่มีรุ่นที่พอดีเลยค่ะ เดี๋ยวแอดมินช่วยหาตัวเลือกใกล้เคียงให้นะคะ", budget), true
	}

	sort.SliceStable(fits, func(i, j int) bool { return fits[i].Price > fits[j].Price })
	if len(fits) > productSummaryLimit {
		fits = fits[:productSummaryLimit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "งบ %.0f บาท แนะนำรุ่นเหล่านี้เลยค่ะ 😊\n", budget)
	for i, p := range fits {
		fmt.Fprintf(&b, "%d. **%s** — %.0f บาท\n", i+1, p.Name, p.Price)
	}
	return strings.TrimRight(b.String(), "\n"), true
}

// handleCatalogBrowse renders the category overview.
func handleCatalogBrowse(in *HandlerInput) (string, bool) {
	content := renderCategoryList(in.Config)
	if content == "" {
		return "", false
	}
	return content, true
}

// handleCompareModels compares products mentioned in the message first,
// then falls back to recently discussed ones.
func handleCompareModels(in *HandlerInput) (string, bool) {
	products := in.Config.MentionedProducts(in.Message)
	if len(products) < 2 && in.Context != nil {
		products = in.Context.RecentProducts
	}
	if len(products) < 2 {
		return "", false
	}
	return renderCompareTable(products), true
}

// handleCancelOrder defers to a human but flags the escalation so the
// transport layer can page the admin immediately.
func handleCancelOrder(in *HandlerInput) (string, bool) {
	return "รับเรื่องยกเลิกออเดอร์แล้วค่ะ เดี๋ยวแอดมินติดต่อกลับเพื่อยืนยันนะคะ 🙏", true
}
