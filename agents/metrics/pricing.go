/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"sort"
	"strings"
)

// Price is the USD cost per million tokens.
type Price struct {
	Prompt     float64
	Completion float64
}

// prices are matched by longest model-name prefix.
var prices = map[string]Price{
	"claude-opus-4":     {Prompt: 15, Completion: 75},
	"claude-sonnet-4":   {Prompt: 3, Completion: 15},
	"claude-3-7-sonnet": {Prompt: 3, Completion: 15},
	"claude-3-5-sonnet": {Prompt: 3, Completion: 15},
	"claude-haiku-4":    {Prompt: 1, Completion: 5},
	"claude-3-5-haiku":  {Prompt: 0.8, Completion: 4},
	"gemini-2.5-pro":    {Prompt: 1.25, Completion: 10},
	"gemini-2.5-flash":  {Prompt: 0.3, Completion: 2.5},
	"gemini-2.0-flash":  {Prompt: 0.1, Completion: 0.4},
	"gpt-4.1":           {Prompt: 2, Completion: 8},
	"gpt-4.1-mini":      {Prompt: 0.4, Completion: 1.6},
	"gpt-4o":            {Prompt: 2.5, Completion: 10},
	"gpt-4o-mini":       {Prompt: 0.15, Completion: 0.6},
	"gpt-5":             {Prompt: 1.25, Completion: 10},
	"o3":                {Prompt: 2, Completion: 8},
	"o4-mini":           {Prompt: 1.1, Completion: 4.4},
}

var pricePrefixes = func() []string {
	keys := make([]string, 0, len(prices))
	for k := range prices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}()

// PriceFor returns the price of a model, ignoring any "provider/" prefix and
// Vertex version suffixes such as "@20250514".
func PriceFor(model string) (Price, bool) {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.ToLower(model)
	for _, prefix := range pricePrefixes {
		if strings.HasPrefix(model, prefix) {
			return prices[prefix], true
		}
	}
	return Price{}, false
}

// Cost estimates the USD cost of a completion. Unknown models cost nothing.
func Cost(model string, promptTokens, completionTokens int64) float64 {
	p, ok := PriceFor(model)
	if !ok {
		return 0
	}
	return (float64(promptTokens)*p.Prompt + float64(completionTokens)*p.Completion) / 1_000_000
}
