package categorizer

import "strings"

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

// prices is keyed by model prefix so dated model ids resolve to their family.
var prices = []struct {
	prefix string
	price  Price
}{
	{"claude-opus-4", Price{Input: 15, Output: 75}},
	{"claude-sonnet-4", Price{Input: 3, Output: 15}},
	{"claude-haiku-4", Price{Input: 1, Output: 5}},
	{"claude-3-5-haiku", Price{Input: 0.8, Output: 4}},
	{"gemini-2.5-pro", Price{Input: 1.25, Output: 10}},
	{"gemini-2.5-flash-lite", Price{Input: 0.10, Output: 0.40}},
	{"gemini-2.5-flash", Price{Input: 0.30, Output: 2.50}},
	{"gemini-2.0-flash", Price{Input: 0.10, Output: 0.40}},
}

// PriceFor returns the price for model, or false when the model is unknown.
func PriceFor(model string) (Price, bool) {
	model = strings.ToLower(model)
	for _, p := range prices {
		if strings.HasPrefix(model, p.prefix) {
			return p.price, true
		}
	}
	return Price{}, false
}

// Cost computes the USD cost of a call. Unknown models cost zero.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := PriceFor(model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / 1_000_000
}
