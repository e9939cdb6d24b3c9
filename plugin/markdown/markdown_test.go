package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoldSpans(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected []string
	}{
		{
			name:     "single span",
			source:   "แนะนำ **iPhone 15** เลยค่ะ",
			expected: []string{"iPhone 15"},
		},
		{
			name:     "multiple spans in order",
			source:   "มี **iPhone 15** กับ **Galaxy S24** ให้เลือกค่ะ",
			expected: []string{"iPhone 15", "Galaxy S24"},
		},
		{
			name:     "spans across lines",
			source:   "1. **iPhone 15**\n2. **iPad Air**",
			expected: []string{"iPhone 15", "iPad Air"},
		},
		{
			name:     "no bold",
			source:   "ไม่มีตัวหนาเลย",
			expected: nil,
		},
		{
			name:     "single-star italics excluded",
			source:   "นี่คือ *ตัวเอียง* ไม่ใช่ตัวหนา",
			expected: nil,
		},
		{
			name:     "empty source",
			source:   "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BoldSpans(tt.source))
		})
	}
}
