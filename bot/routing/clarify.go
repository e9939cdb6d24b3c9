package routing

import (
	"fmt"
	"strings"

	"github.com/warintorn/shoptalk/bot/business"
)

// Clarification is the question-plus-options prompt produced when a
// message is too ambiguous to route.
type Clarification struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// clarifySkipList covers bare greetings, affirmations, and lone
// punctuation: those read better with the default courtesy reply than
// with a clarifying question.
var clarifySkipList = map[string]bool{
	"สวัสดี": true, "สวัสดีครับ": true, "สวัสดีค่ะ": true, "หวัดดี": true,
	"ครับ": true, "ค่ะ": true, "คะ": true, "จ้า": true, "โอเค": true,
	"ok": true, "okay": true, "hi": true, "hello": true, "hey": true,
	"ขอบคุณ": true, "ขอบคุณครับ": true, "ขอบคุณค่ะ": true, "thanks": true,
	"?": true, "??": true, "???": true, ".": true, "..": true, "...": true,
}

const maxClarifyOptions = 4

var genericClarifyOptions = []string{
	"ดูสินค้าทั้งหมด",
	"สอบถามราคา",
	"คุยกับแอดมิน",
}

// BuildClarification decides whether to ask a clarifying question.
// It fires only in the narrow ambiguous case: no intent signal at all,
// no active product, and a message long enough to be a real question.
// Everything else is left to later cascade layers.
func BuildClarification(message string, scores []IntentScore, cc *ConversationContext, cfg *business.Config) *Clarification {
	if len(scores) > 0 && scores[0].Score > 0 {
		return nil
	}
	if cc != nil && cc.ActiveProduct != nil {
		return nil
	}

	trimmed := strings.TrimSpace(message)
	if len([]rune(trimmed)) <= 1 {
		return nil
	}
	if clarifySkipList[strings.ToLower(trimmed)] {
		return nil
	}

	options := cfg.CategoryShortcuts
	if len(options) == 0 {
		options = genericClarifyOptions
	}
	if len(options) > maxClarifyOptions {
		options = options[:maxClarifyOptions]
	}

	question := fmt.Sprintf("สวัสดีค่ะ ยินดีต้อนรับสู่ %s 😊 ไม่แน่ใจว่าลูกค้าสนใจเรื่องไหนคะ เลือกดูได้เลยค่ะ", cfg.BusinessName)
	return &Clarification{
		Question: question,
		Options:  append([]string(nil), options...),
	}
}
