package classify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapfood/zapfood/internal/classify"
)

func classifyText(t *testing.T, text string, convCtx classify.Context) *classify.Result {
	t.Helper()
	result, err := classify.NewKeywordClassifier().Classify(context.Background(), text, convCtx)
	require.NoError(t, err)
	return result
}

func TestKeywordClassifier_Intents(t *testing.T) {
	inCart := classify.Context{State: "ADDING_ITEMS"}

	tests := []struct {
		text    string
		convCtx classify.Context
		want    classify.Intent
	}{
		{"quero fazer um pedido", classify.Context{}, classify.IntentStartOrder},
		{"Oi", classify.Context{State: "IDLE"}, classify.IntentStartOrder},
		{"bom dia", classify.Context{}, classify.IntentUnknown},
		{"confirmar", inCart, classify.IntentConfirm},
		{"Sim", inCart, classify.IntentConfirm},
		{"cancelar", inCart, classify.IntentCancel},
		{"quero cancelar o pedido", inCart, classify.IntentCancel},
		{"cardápio", inCart, classify.IntentViewMenu},
		{"cardapio", inCart, classify.IntentViewMenu},
		{"menu por favor", inCart, classify.IntentViewMenu},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			result := classifyText(t, tt.text, tt.convCtx)
			assert.Equal(t, tt.want, result.Intent)
		})
	}
}

func TestKeywordClassifier_NumberIsAChoice(t *testing.T) {
	result := classifyText(t, "2", classify.Context{State: "RESOLVING_AMBIGUITY"})
	assert.Equal(t, classify.IntentChoose, result.Intent)
	assert.Equal(t, 2, result.Choice)

	// Surrounding whitespace does not change the reading.
	result = classifyText(t, "  3 ", classify.Context{State: "SELECTING_RESTAURANT"})
	assert.Equal(t, classify.IntentChoose, result.Intent)
	assert.Equal(t, 3, result.Choice)
}

func TestKeywordClassifier_Remove(t *testing.T) {
	result := classifyText(t, "remover 2", classify.Context{State: "ADDING_ITEMS"})
	assert.Equal(t, classify.IntentRemoveItem, result.Intent)
	assert.Equal(t, 2, result.Choice)

	result = classifyText(t, "remove 1", classify.Context{State: "ADDING_ITEMS"})
	assert.Equal(t, classify.IntentRemoveItem, result.Intent)
	assert.Equal(t, 1, result.Choice)
}

func TestKeywordClassifier_ExtractsItems(t *testing.T) {
	inCart := classify.Context{State: "ADDING_ITEMS"}

	tests := []struct {
		text string
		want []classify.ExtractedItem
	}{
		{
			text: "2 x-burger",
			want: []classify.ExtractedItem{{Name: "x-burger", Quantity: 2}},
		},
		{
			text: "2x pizza calabresa",
			want: []classify.ExtractedItem{{Name: "pizza calabresa", Quantity: 2}},
		},
		{
			text: "pizza margherita",
			want: []classify.ExtractedItem{{Name: "pizza margherita", Quantity: 1}},
		},
		{
			text: "2 x-burger e 1 refrigerante",
			want: []classify.ExtractedItem{
				{Name: "x-burger", Quantity: 2},
				{Name: "refrigerante", Quantity: 1},
			},
		},
		{
			text: "pizza, refrigerante",
			want: []classify.ExtractedItem{
				{Name: "pizza", Quantity: 1},
				{Name: "refrigerante", Quantity: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			result := classifyText(t, tt.text, inCart)
			require.Equal(t, classify.IntentAddItem, result.Intent)
			assert.Equal(t, tt.want, result.Items)
		})
	}
}

func TestKeywordClassifier_FreeTextOutsideConversationIsUnknown(t *testing.T) {
	// Item-looking text with no active session must not add items.
	result := classifyText(t, "2 x-burger", classify.Context{State: "IDLE"})
	assert.Equal(t, classify.IntentUnknown, result.Intent)
	assert.Empty(t, result.Items)
}
