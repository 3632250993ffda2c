package models

// EventEffect is the effect a market event applies to a stock. Implementations
// are dispatched by type switch in the tick engine, which keeps the set of
// effect kinds closed and checked at compile time.
type EventEffect interface {
	isEventEffect()
}

// PriceChangePercent applies an instantaneous percentage shock to the price.
type PriceChangePercent struct {
	Percent float64
}

// EarningsModifier scales the fundamental value by an earnings multiplier.
type EarningsModifier struct {
	Modifier float64
}

// ScaledFixed shifts the price by an absolute amount.
type ScaledFixed struct {
	Amount float64
}

// LevelChange shifts the fundamental value by an absolute amount.
type LevelChange struct {
	Delta float64
}

func (PriceChangePercent) isEventEffect() {}
func (EarningsModifier) isEventEffect()   {}
func (ScaledFixed) isEventEffect()        {}
func (LevelChange) isEventEffect()        {}

// EventSentiment classifies a random event for reporting.
type EventSentiment string

const (
	SentimentPositive EventSentiment = "positive"
	SentimentNegative EventSentiment = "negative"
)

// RandomEvent is one entry of the native-stock event catalogue. Events with a
// non-empty Industry only fire for stocks of that industry. ValueMin/ValueMax
// bound the sampled price shock; Message is a template where {name}, {id} and
// {value} are expanded at fire time.
type RandomEvent struct {
	Sentiment EventSentiment
	ValueMin  float64
	ValueMax  float64
	Message   string
	Weight    float64
	Industry  string
}

// Notice is a broadcast market bulletin emitted by the tick engine.
type Notice struct {
	StockID string
	Text    string
}
