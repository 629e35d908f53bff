package interfaces

// SymbolOracle answers whether a trading pair such as "BTCUSDT" is listed.
type SymbolOracle interface {
	Exists(symbol string) bool
}
