package domain

// Category identifies one event category. Natural keys are only ever
// compared within a single category.
type Category string

const (
	CategorySale         Category = "sale"
	CategoryRegistration Category = "registration"
	CategoryBid          Category = "bid"
)

// Categories lists all known categories in a stable order.
var Categories = []Category{CategorySale, CategoryRegistration, CategoryBid}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategorySale, CategoryRegistration, CategoryBid:
		return true
	}
	return false
}

// Currency is the denomination of an event's value.
type Currency string

const (
	CurrencyETH  Currency = "ETH"
	CurrencyWETH Currency = "WETH"
	CurrencyUSDC Currency = "USDC"
	CurrencyDAI  Currency = "DAI"
)

// Stable reports whether the currency is a USD-pegged stablecoin.
// Stablecoin-denominated events use an absolute USD minimum instead of
// the tag-based threshold lookup.
func (c Currency) Stable() bool {
	return c == CurrencyUSDC || c == CurrencyDAI
}
