package calculate

// MACD returns the MACD line, its signal line and the histogram for the newest
// price. All three are nil until the signal line has its own full seed window
// on top of the slow EMA.
func MACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) (*float64, *float64, *float64) {
	if fastPeriod <= 0 || slowPeriod <= 0 || signalPeriod <= 0 {
		return nil, nil, nil
	}

	longest := fastPeriod
	if slowPeriod > longest {
		longest = slowPeriod
	}

	// Cannot calculate MACD with insufficient data
	if len(prices) < longest+signalPeriod {
		return nil, nil, nil
	}

	fastEMA := EMA(prices, fastPeriod)
	slowEMA := EMA(prices, slowPeriod)

	// MACD history starts where both EMAs are defined
	macdHistory := make([]float64, 0, len(prices)-longest+1)
	for i := longest - 1; i < len(prices); i++ {
		fast := fastEMA[i-(fastPeriod-1)]
		slow := slowEMA[i-(slowPeriod-1)]
		macdHistory = append(macdHistory, fast-slow)
	}

	signalLine := EMA(macdHistory, signalPeriod)
	if len(signalLine) == 0 {
		return nil, nil, nil
	}

	macd := macdHistory[len(macdHistory)-1]
	signal := signalLine[len(signalLine)-1]

	return ptr(macd), ptr(signal), ptr(macd - signal)
}
