package classify

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// KeywordClassifier is the deterministic fallback used when no NLU service
// is configured: keyword intents plus "<qty> <name>" item extraction. It
// covers the happy conversational paths; anything richer comes from the
// external classifier.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var (
	startWords   = []string{"pedido", "pedir", "order", "oi", "olá", "ola"}
	confirmWords = []string{"confirmar", "confirma", "sim", "fechar", "fechou", "ok"}
	cancelWords  = []string{"cancelar", "cancela", "desistir"}
	menuWords    = []string{"cardápio", "cardapio", "menu"}

	removePattern = regexp.MustCompile(`^remover?\s+(\d+)$`)
	choicePattern = regexp.MustCompile(`^(\d+)$`)
	itemPattern   = regexp.MustCompile(`(?:(\d+)\s*x?\s+)?([\p{L}][\p{L}\s-]*)`)
)

func (c *KeywordClassifier) Classify(_ context.Context, text string, convCtx Context) (*Result, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	valid := Validation{IsValid: true, IsComplete: true}

	if m := choicePattern.FindStringSubmatch(normalized); m != nil {
		choice, _ := strconv.Atoi(m[1])
		return &Result{Intent: IntentChoose, Choice: choice, Validation: valid}, nil
	}
	if m := removePattern.FindStringSubmatch(normalized); m != nil {
		index, _ := strconv.Atoi(m[1])
		return &Result{Intent: IntentRemoveItem, Choice: index, Validation: valid}, nil
	}
	if containsAny(normalized, cancelWords) {
		return &Result{Intent: IntentCancel, Validation: valid}, nil
	}
	if containsAny(normalized, confirmWords) {
		return &Result{Intent: IntentConfirm, Validation: valid}, nil
	}
	if containsAny(normalized, menuWords) {
		return &Result{Intent: IntentViewMenu, Validation: valid}, nil
	}
	if convCtx.State == "" || convCtx.State == "IDLE" {
		if containsAny(normalized, startWords) {
			return &Result{Intent: IntentStartOrder, Validation: valid}, nil
		}
		return &Result{Intent: IntentUnknown, Validation: valid}, nil
	}

	items := extractItems(normalized)
	if len(items) == 0 {
		return &Result{Intent: IntentUnknown, Validation: valid}, nil
	}
	return &Result{Intent: IntentAddItem, Items: items, Validation: valid}, nil
}

func extractItems(text string) []ExtractedItem {
	var items []ExtractedItem
	for _, part := range strings.Split(text, " e ") {
		for _, piece := range strings.Split(part, ",") {
			piece = strings.TrimSpace(piece)
			m := itemPattern.FindStringSubmatch(piece)
			if m == nil {
				continue
			}
			quantity := 1
			if m[1] != "" {
				if q, err := strconv.Atoi(m[1]); err == nil {
					quantity = q
				}
			}
			name := strings.TrimSpace(m[2])
			if name == "" {
				continue
			}
			items = append(items, ExtractedItem{Name: name, Quantity: quantity})
		}
	}
	return items
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
