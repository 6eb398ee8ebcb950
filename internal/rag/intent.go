package rag

import (
	"regexp"
	"strings"
	"sync"
)

// IntentGeneral 未命中任何关键词时的兜底意图
const IntentGeneral = "general"

// IntentIntegration 集成/API 类意图,检索与回答阶段对其执行更严格的门控
const IntentIntegration = "integration"

// intentKeywords 意图标签到关键词列表的映射
var intentKeywords = map[string][]string{
	IntentIntegration: {
		"integrate", "integration", "api", "connect", "connection", "webhook",
		"shopify", "woocommerce", "stripe", "paypal", "payment gateway",
		"whatsapp", "telegram", "slack", "zapier", "ifttt", "automation",
	},
	"billing": {
		"billing", "invoice", "payment", "subscription", "plan", "pricing",
		"cost", "price", "charge", "fee", "refund", "cancel", "renew",
	},
	"account": {
		"account", "profile", "settings", "preferences", "user", "login",
		"signup", "register", "authentication", "auth",
	},
	"password_reset": {
		"password", "reset", "forgot", "change password", "update password",
		"password reset link", "expire", "expiry",
	},
	"pricing": {
		"pricing", "price", "plan", "cost", "subscription", "tier", "starter",
		"pro", "enterprise", "monthly", "yearly", "billing",
	},
}

// stopWords 直接匹配检查时忽略的常见词
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "to": {}, "of": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "for": {}, "with": {}, "how": {}, "what": {},
	"when": {}, "where": {}, "why": {}, "do": {}, "does": {},
}

var wordRe = regexp.MustCompile(`\b\w+\b`)

// IntentClassifier 基于关键词的粗粒度意图分类器
// 关键词按词边界匹配,正则按需编译并缓存
type IntentClassifier struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// NewIntentClassifier 创建意图分类器
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Detect 识别问题中的意图,未命中任何关键词时返回 [general]
func (c *IntentClassifier) Detect(query string) []string {
	queryLower := strings.ToLower(query)
	var detected []string

	for intent, keywords := range intentKeywords {
		for _, kw := range keywords {
			if c.keywordPattern(kw).MatchString(queryLower) {
				detected = append(detected, intent)
				break
			}
		}
	}

	if len(detected) == 0 {
		detected = []string{IntentGeneral}
	}
	return detected
}

// Keywords 返回一组意图的全部关键词
func (c *IntentClassifier) Keywords(intents []string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, intent := range intents {
		for _, kw := range intentKeywords[intent] {
			keywords[kw] = struct{}{}
		}
	}
	return keywords
}

// DirectMatch 判断检索结果是否在词面上支撑查询
// 向量相似度本身不足以支撑高风险意图,至少一个分块需要同时包含意图关键词
// 和 ≥2 个查询非停用词;查询只有一个非停用词时要求该词精确出现
func (c *IntentClassifier) DirectMatch(query string, chunks []string, keywords map[string]struct{}) bool {
	if len(chunks) == 0 {
		return false
	}

	queryLower := strings.ToLower(query)
	importantWords := importantQueryWords(queryLower)

	if keywords == nil {
		keywords = c.Keywords(c.Detect(query))
	}

	for _, chunk := range chunks {
		chunkLower := strings.ToLower(chunk)

		if len(keywords) > 0 {
			found := false
			for kw := range keywords {
				if c.keywordPattern(kw).MatchString(chunkLower) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}

		switch {
		case len(importantWords) >= 2:
			matches := 0
			for word := range importantWords {
				if strings.Contains(chunkLower, word) {
					matches++
				}
			}
			if matches >= 2 {
				return true
			}
		case len(importantWords) == 1:
			for word := range importantWords {
				if c.keywordPattern(word).MatchString(chunkLower) {
					return true
				}
			}
		}
	}

	return false
}

// LenientMatch 宽松的词面检查:任一分块包含至少一个查询非停用词
func LenientMatch(query string, chunks []string) bool {
	importantWords := importantQueryWords(strings.ToLower(query))
	if len(importantWords) == 0 {
		return false
	}

	for _, chunk := range chunks {
		chunkLower := strings.ToLower(chunk)
		for word := range importantWords {
			if strings.Contains(chunkLower, word) {
				return true
			}
		}
	}
	return false
}

// HasIntegrationIntent 判断问题是否属于集成/API 类
func HasIntegrationIntent(query string, intents []string) bool {
	for _, intent := range intents {
		if intent == IntentIntegration {
			return true
		}
	}
	return strings.Contains(strings.ToLower(query), "api")
}

func (c *IntentClassifier) keywordPattern(keyword string) *regexp.Regexp {
	c.mu.RLock()
	if re, ok := c.patterns[keyword]; ok {
		c.mu.RUnlock()
		return re
	}
	c.mu.RUnlock()

	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(keyword)) + `\b`)

	c.mu.Lock()
	c.patterns[keyword] = re
	c.mu.Unlock()
	return re
}

func importantQueryWords(queryLower string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(queryLower, -1) {
		if _, stop := stopWords[w]; !stop {
			words[w] = struct{}{}
		}
	}
	return words
}
