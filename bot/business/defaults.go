package business

import (
	"fmt"
	"strings"
)

// Default keyword vocabularies for the Thai retail chat domain. A
// business can replace any of these wholesale by supplying its own
// Matchers; these cover the common storefront phrasing.
var (
	adminEscalationKeywords = []string{
		"แอดมิน", "คุยกับคน", "คุยกับพนักงาน", "เจ้าหน้าที่",
		"ติดต่อพนักงาน", "ขอสายคน", "admin", "talk to a human", "human agent",
	}
	vatRefundKeywords = []string{
		"vat refund", "tax refund", "คืน vat", "คืนภาษี", "ขอใบกำกับย้อนหลัง",
	}
	stockInquiryKeywords = []string{
		"มีของไหม", "มีของมั้ย", "มีสต็อก", "มีสต๊อก", "ของพร้อมส่ง",
		"พร้อมส่งไหม", "มีสินค้าไหม", "เหลือไหม", "in stock", "สินค้าหมด",
	}
)

// containsAny reports whether msg contains any of the keywords,
// case-insensitively.
func containsAny(msg string, keywords []string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// ApplyDefaults fills any nil matcher or builder with the stock
// implementation derived from the config's own data. Safe to call more
// than once.
func (c *Config) ApplyDefaults() {
	if c.Matchers == nil {
		c.Matchers = &Matchers{}
	}
	m := c.Matchers
	if m.AdminEscalation == nil {
		m.AdminEscalation = func(msg string) bool {
			return containsAny(msg, adminEscalationKeywords)
		}
	}
	if m.VATRefund == nil {
		m.VATRefund = func(msg string) bool {
			return containsAny(msg, vatRefundKeywords)
		}
	}
	if m.StockInquiry == nil {
		m.StockInquiry = func(msg string) bool {
			return containsAny(msg, stockInquiryKeywords)
		}
	}
	if m.Discontinued == nil {
		m.Discontinued = c.matchDiscontinued
	}
	if m.SaleScript == nil {
		m.SaleScript = c.matchSaleScript
	}
	if m.KnowledgeDoc == nil {
		m.KnowledgeDoc = c.matchKnowledgeDoc
	}
	if m.SearchProducts == nil {
		m.SearchProducts = c.searchProducts
	}

	if c.Builders == nil {
		c.Builders = &Builders{}
	}
	b := c.Builders
	if b.AdminEscalation == nil {
		b.AdminEscalation = func() string {
			return "รับทราบค่ะ เดี๋ยวแอดมินจะเข้ามาตอบโดยเร็วที่สุดนะคะ 🙏"
		}
	}
	if b.VATRefund == nil {
		b.VATRefund = func() string {
			return "ขออภัยค่ะ ทางร้านไม่รองรับการทำ VAT Refund สำหรับนักท่องเที่ยวนะคะ"
		}
	}
	if b.StockCheck == nil {
		b.StockCheck = func(p *Product) string {
			// Stock levels are never asserted here; the reply always
			// defers to the team.
			if p != nil {
				return fmt.Sprintf("ขอเช็คสต็อก %s กับทีมงานก่อนนะคะ เดี๋ยวรีบแจ้งกลับค่ะ 🙏", p.Name)
			}
			return "ขอเช็คสต็อกกับทีมงานก่อนนะคะ เดี๋ยวรีบแจ้งกลับค่ะ 🙏"
		}
	}
	if b.Discontinued == nil {
		b.Discontinued = func(dm *DiscontinuedMapping) string {
			if dm == nil || dm.Product == nil {
				return ""
			}
			msg := fmt.Sprintf("%s ทางแบรนด์เลิกผลิตแล้วค่ะ", dm.Product.Name)
			if dm.Replacement != nil {
				msg += fmt.Sprintf(" แนะนำรุ่นทดแทน %s (%.0f บาท) แทนนะคะ", dm.Replacement.Name, dm.Replacement.Price)
			}
			return msg
		}
	}

	if c.DefaultFallbackMessage == "" {
		c.DefaultFallbackMessage = "ขอบคุณที่ติดต่อเข้ามานะคะ แอดมินจะรีบตอบกลับโดยเร็วที่สุดค่ะ 🙏"
	}
}

// WithDefaults returns a config with every matcher and builder
// resolved. The receiver is never written: callers sharing one Config
// across concurrent requests stay race-free. Matcher and builder
// structs are copied before filling so partial overrides on the
// original are preserved there.
func (c *Config) WithDefaults() *Config {
	dup := *c
	if c.Matchers != nil {
		m := *c.Matchers
		dup.Matchers = &m
	}
	if c.Builders != nil {
		b := *c.Builders
		dup.Builders = &b
	}
	dup.ApplyDefaults()
	return &dup
}

// matchDiscontinued matches the message against discontinued products
// and resolves their recommended replacement.
func (c *Config) matchDiscontinued(msg string) *DiscontinuedMapping {
	lower := strings.ToLower(msg)
	for _, p := range c.Products {
		if p.Status != ProductDiscontinued {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(p.Name)) {
			continue
		}
		dm := &DiscontinuedMapping{Product: p}
		if p.RecommendedAlternative != "" {
			if alt := c.ProductByID(p.RecommendedAlternative); alt != nil {
				dm.Replacement = alt
			} else if alt := c.ProductByName(p.RecommendedAlternative); alt != nil {
				dm.Replacement = alt
			}
		}
		return dm
	}
	return nil
}

func (c *Config) matchSaleScript(msg string) *SaleScript {
	for _, s := range c.SaleScripts {
		if containsAny(msg, s.Keywords) {
			return s
		}
	}
	return nil
}

func (c *Config) matchKnowledgeDoc(msg string) *KnowledgeDoc {
	for _, d := range c.KnowledgeDocs {
		if containsAny(msg, d.Keywords) {
			return d
		}
	}
	return nil
}

// searchProducts is a simple full-text match over name, tags, and
// description, preserving catalog order.
func (c *Config) searchProducts(msg string) []*Product {
	lower := strings.ToLower(msg)
	var hits []*Product
	for _, p := range c.Products {
		if c.productMentioned(lower, p) {
			hits = append(hits, p)
		}
	}
	return hits
}

// productMentioned reports whether the lowercased message references the
// product by name or by a tag. Tags shorter than 4 characters are
// skipped to avoid false positives on short generic words.
func (c *Config) productMentioned(lowerMsg string, p *Product) bool {
	if strings.Contains(lowerMsg, strings.ToLower(p.Name)) {
		return true
	}
	for _, tag := range p.Tags {
		if len([]rune(tag)) < 4 {
			continue
		}
		if strings.Contains(lowerMsg, strings.ToLower(tag)) {
			return true
		}
	}
	return false
}

// MentionedProducts returns catalog products referenced in text, in
// catalog order.
func (c *Config) MentionedProducts(text string) []*Product {
	return c.searchProducts(text)
}
