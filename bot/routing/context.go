package routing

import (
	"fmt"
	"strings"

	"github.com/warintorn/shoptalk/bot/business"
	"github.com/warintorn/shoptalk/plugin/markdown"
)

// Topic is one entry of the fixed conversation-topic vocabulary.
type Topic string

const (
	TopicNone        Topic = ""
	TopicPrice       Topic = "price"
	TopicWarranty    Topic = "warranty"
	TopicShipping    Topic = "shipping"
	TopicSpecs       Topic = "specs"
	TopicInstallment Topic = "installment"
	TopicPromotion   Topic = "promotion"
	TopicStock       Topic = "stock"
	TopicCompare     Topic = "compare"
	TopicOrder       Topic = "order"
)

// topicKeywords is the fixed, ordered topic vocabulary. Earlier entries
// win ties, so more specific topics come before broader ones.
var topicKeywords = []struct {
	topic    Topic
	keywords []string
}{
	{TopicCompare, []string{"เปรียบเทียบ", "เทียบ", "ต่างกัน", "รุ่นไหนดี", "ตัวไหนดี", "compare", "ดีกว่า"}},
	{TopicInstallment, []string{"ผ่อน", "ผ่อนชำระ", "กี่งวด", "installment", "0%"}},
	{TopicWarranty, []string{"ประกัน", "รับประกัน", "เคลม", "warranty"}},
	{TopicPromotion, []string{"โปรโมชั่น", "โปรโมชัน", "โปร", "ลดราคา", "ส่วนลด", "ของแถม", "promotion"}},
	{TopicShipping, []string{"จัดส่ง", "ค่าส่ง", "ขนส่ง", "กี่วันถึง", "ส่งยังไง", "ส่งไว", "shipping", "delivery"}},
	{TopicStock, []string{"สต็อก", "สต๊อก", "มีของ", "พร้อมส่ง", "เหลือไหม", "stock"}},
	{TopicOrder, []string{"สั่งซื้อ", "สั่งยังไง", "โอนเงิน", "ชำระเงิน", "เก็บปลายทาง", "order"}},
	{TopicSpecs, []string{"สเปค", "สเป็ค", "รายละเอียด", "ขนาด", "น้ำหนัก", "วัสดุ", "spec"}},
	{TopicPrice, []string{"ราคา", "เท่าไหร่", "เท่าไร", "กี่บาท", "แพงไหม", "price", "how much"}},
}

// continuationPhrases flag a follow-up at any message length; they are
// explicit continuations of the current subject.
var continuationPhrases = []string{
	"ราคาเท่าไหร่", "เท่าไหร่", "กี่บาท", "แล้วประกัน", "แล้วส่ง",
	"ตัวนี้", "อันนี้", "รุ่นนี้", "ขอดูเพิ่ม", "แล้วถ้า", "ล่ะ",
}

// shortAffirmations are follow-ups only when the whole message is short;
// inside a long message they carry no continuation signal.
var shortAffirmations = []string{
	"ครับ", "ค่ะ", "คะ", "จ้า", "โอเค", "ok", "ได้", "สนใจ", "เอา", "ดี",
}

// ConversationContext is the per-request view of the conversation,
// derived fresh from the caller-supplied history. It has no
// cross-request lifetime.
type ConversationContext struct {
	RecentProducts     []*business.Product
	ActiveProduct      *business.Product
	RecentTopic        Topic
	IsFollowUp         bool
	RecentUserMessages []string
	Summary            string
}

const historyScanWindow = 8

// ExtractContext derives the conversation context from history and the
// current message. Pure function of its inputs: identical inputs yield
// an identical context.
func ExtractContext(history []Message, current string, cfg *business.Config) *ConversationContext {
	cc := &ConversationContext{}

	window := history
	if len(window) > historyScanWindow {
		window = window[len(window)-historyScanWindow:]
	}

	seen := make(map[string]bool)
	for _, msg := range window {
		for _, p := range cfg.MentionedProducts(msg.Content) {
			if !seen[p.ID] {
				seen[p.ID] = true
				cc.RecentProducts = append(cc.RecentProducts, p)
			}
		}
		if msg.Role == RoleAssistant {
			// Bold spans recover products the assistant itself surfaced
			// even when the plain-text scan misses them.
			for _, span := range markdown.BoldSpans(msg.Content) {
				if p := cfg.ProductByName(strings.TrimSpace(span)); p != nil && !seen[p.ID] {
					seen[p.ID] = true
					cc.RecentProducts = append(cc.RecentProducts, p)
				}
			}
		}
		if msg.Role == RoleUser {
			cc.RecentUserMessages = append(cc.RecentUserMessages, msg.Content)
		}
	}
	if n := len(cc.RecentUserMessages); n > 3 {
		cc.RecentUserMessages = cc.RecentUserMessages[n-3:]
	}

	if n := len(cc.RecentProducts); n > 0 {
		cc.ActiveProduct = cc.RecentProducts[n-1]
	}

	cc.RecentTopic = detectTopic(current)
	cc.IsFollowUp = detectFollowUp(history, current)
	cc.Summary = summarize(cc)

	return cc
}

// detectTopic returns the first topic whose keyword set intersects the
// message; earlier vocabulary entries win.
func detectTopic(message string) Topic {
	lower := strings.ToLower(message)
	for _, entry := range topicKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.topic
			}
		}
	}
	return TopicNone
}

// detectFollowUp applies the two-part follow-up test: explicit
// continuation phrases count at any length, bare affirmations only when
// the message is short.
func detectFollowUp(history []Message, current string) bool {
	if len(history) <= 1 {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(current))
	for _, phrase := range continuationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	if len([]rune(lower)) < 40 {
		for _, word := range shortAffirmations {
			if strings.Contains(lower, word) {
				return true
			}
		}
	}
	return false
}

func summarize(cc *ConversationContext) string {
	active := "-"
	if cc.ActiveProduct != nil {
		active = cc.ActiveProduct.Name
	}
	topic := "-"
	if cc.RecentTopic != TopicNone {
		topic = string(cc.RecentTopic)
	}
	return fmt.Sprintf("active=%s topic=%s follow_up=%t products=%d",
		active, topic, cc.IsFollowUp, len(cc.RecentProducts))
}
