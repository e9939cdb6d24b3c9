package routing

import (
	"fmt"
	"strings"

	"github.com/warintorn/shoptalk/bot/business"
)

// Response rendering for catalog-backed layers. Formatting mirrors what
// the admin UI shows next to the chat transcript, so changes here are
// user-visible copy changes.

func renderProductCard(p *business.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", p.Name)
	fmt.Fprintf(&b, "ราคา %.0f บาท\n", p.Price)
	if p.Category != "" {
		fmt.Fprintf(&b, "หมวดหมู่: %s\n", p.Category)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "%s\n", p.Description)
	}
	switch p.Status {
	case business.ProductPreorder:
		b.WriteString("สินค้าพรีออเดอร์ค่ะ\n")
	case business.ProductDiscontinued:
		b.WriteString("รุ่นนี้เลิกผลิตแล้วนะคะ\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

const productSummaryLimit = 3

// renderProductSummary shows the top matches plus an overflow count.
func renderProductSummary(products []*business.Product) string {
	var b strings.Builder
	b.WriteString("เจอสินค้าที่เกี่ยวข้องหลายรายการค่ะ 😊\n")
	shown := products
	if len(shown) > productSummaryLimit {
		shown = shown[:productSummaryLimit]
	}
	for i, p := range shown {
		fmt.Fprintf(&b, "%d. **%s** — %.0f บาท\n", i+1, p.Name, p.Price)
	}
	if extra := len(products) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "และอีก %d รายการ พิมพ์ชื่อรุ่นที่สนใจได้เลยค่ะ", extra)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderCompareTable renders a markdown comparison of two or more
// products: price, category, and status columns.
func renderCompareTable(products []*business.Product) string {
	var b strings.Builder
	b.WriteString("เปรียบเทียบให้แล้วค่ะ 😊\n\n")
	b.WriteString("| รุ่น | ราคา | หมวดหมู่ | สถานะ |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, p := range products {
		fmt.Fprintf(&b, "| %s | %.0f บาท | %s | %s |\n", p.Name, p.Price, p.Category, statusLabel(p.Status))
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusLabel(s business.ProductStatus) string {
	switch s {
	case business.ProductActive:
		return "วางจำหน่าย"
	case business.ProductDiscontinued:
		return "เลิกผลิต"
	case business.ProductPreorder:
		return "พรีออเดอร์"
	}
	return string(s)
}

func renderCategoryList(cfg *business.Config) string {
	order, counts := cfg.Categories()
	if len(order) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s มีสินค้าหมวดหมู่เหล่านี้ค่ะ 😊\n", cfg.BusinessName)
	for _, cat := range order {
		fmt.Fprintf(&b, "• %s (%d รายการ)\n", cat, counts[cat])
	}
	b.WriteString("สนใจหมวดไหนบอกได้เลยนะคะ")
	return b.String()
}

// renderTopicAnswer renders the follow-up continuation reply for the
// active product. Returns "" when no template applies to the topic so
// the continuation layer can fall through.
func renderTopicAnswer(topic Topic, p *business.Product, cc *ConversationContext) string {
	if p == nil {
		return ""
	}
	switch topic {
	case TopicPrice:
		return fmt.Sprintf("**%s** ราคา %.0f บาทค่ะ 😊", p.Name, p.Price)
	case TopicWarranty:
		return fmt.Sprintf("**%s** มีประกันศูนย์ 1 ปีเต็มค่ะ เคลมได้ที่ร้านเลยนะคะ", p.Name)
	case TopicShipping:
		return fmt.Sprintf("**%s** จัดส่งทั่วประเทศค่ะ กทม. 1-2 วัน ต่างจังหวัด 2-4 วันนะคะ", p.Name)
	case TopicSpecs:
		if p.Description != "" {
			return fmt.Sprintf("รายละเอียด **%s**:\n%s", p.Name, p.Description)
		}
		return fmt.Sprintf("เดี๋ยวส่งสเปคเต็มของ **%s** ให้นะคะ รอสักครู่ค่ะ", p.Name)
	case TopicInstallment:
		return fmt.Sprintf("**%s** ผ่อน 0%% ได้สูงสุด 10 เดือนผ่านบัตรเครดิตที่ร่วมรายการค่ะ", p.Name)
	case TopicPromotion:
		return fmt.Sprintf("ตอนนี้ **%s** มีโปรพิเศษอยู่ค่ะ ทักแอดมินเพื่อรับส่วนลดได้เลยนะคะ", p.Name)
	case TopicStock:
		// Never assert stock levels; always defer to the team.
		return fmt.Sprintf("ขอเช็คสต็อก %s กับทีมงานก่อนนะคะ เดี๋ยวรีบแจ้งกลับค่ะ 🙏", p.Name)
	case TopicOrder:
		return fmt.Sprintf("สนใจ **%s** สั่งซื้อได้เลยค่ะ แจ้งชื่อ-ที่อยู่-เบอร์โทร แล้วเลือกโอน/เก็บปลายทางได้เลยนะคะ", p.Name)
	case TopicCompare:
		if cc != nil && len(cc.RecentProducts) >= 2 {
			return renderCompareTable(cc.RecentProducts)
		}
		return ""
	}
	return ""
}

// renderContextFallback answers generically about the active product.
func renderContextFallback(p *business.Product) string {
	return fmt.Sprintf("เกี่ยวกับ **%s** (%.0f บาท) สอบถามราคา สเปค การจัดส่ง หรือโปรโมชั่นเพิ่มเติมได้เลยนะคะ 😊", p.Name, p.Price)
}
