// Package llm is the AI fallback tier: the shared prompt, repair and
// decoding of model output, and a Pool that fails over between providers.
package llm

import "fmt"

// SystemPrompt asks for the extraction contract as bare JSON.
const SystemPrompt = `You are a JSON parser for cryptocurrency trading signals written in Turkish, English or both. Return ONLY valid JSON.

OUTPUT FORMAT - return exactly this structure:
{"symbol": "BTCUSDT", "side": "LONG", "entry": [42000.0], "tp": [43000.0, 44000.0], "sl": 40000.0, "leverage": 10, "confidence": 0.9}

OR, if the message is not a trade signal:
{"signal": false}

RULES:
1. Return only the JSON object, no explanations, no markdown.
2. Use double quotes for strings and property names.
3. side is "LONG" or "SHORT".
4. entry and tp are arrays of numbers; sl and leverage are numbers or null.
5. Numbers use "." as the decimal point. Turkish "0,125" is 0.125; "112k" and "112 bin" are 112000.
6. Append USDT to bare tickers: "BTC" becomes "BTCUSDT".
7. confidence is between 0.0 and 1.0.`

// UserPrompt wraps the raw message for the model.
func UserPrompt(text string) string {
	return fmt.Sprintf("Parse this trading signal:\n\n%s", text)
}
