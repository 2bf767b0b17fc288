// Package domain contains the core types shared by every module.
// It has no infrastructure dependencies.
package domain

// Currency represents an ISO-4217 currency code
type Currency string

const (
	CurrencyTWD Currency = "TWD"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyEUR Currency = "EUR"
	CurrencyHKD Currency = "HKD"
	CurrencyJPY Currency = "JPY"
)

// HomeCurrencyDefault is the reporting currency unless configured otherwise.
const HomeCurrencyDefault = CurrencyTWD

// StockMarket identifies the exchange a ticker trades on.
// The same ticker on two markets is two distinct positions.
type StockMarket string

const (
	MarketTW StockMarket = "TW"
	MarketUS StockMarket = "US"
	MarketUK StockMarket = "UK"
	MarketEU StockMarket = "EU"
)

// ValidMarket reports whether m is one of the supported markets.
func ValidMarket(m StockMarket) bool {
	switch m {
	case MarketTW, MarketUS, MarketUK, MarketEU:
		return true
	}
	return false
}

// TransactionType is the kind of a stock transaction.
type TransactionType string

const (
	TransactionBuy        TransactionType = "Buy"
	TransactionSell       TransactionType = "Sell"
	TransactionSplit      TransactionType = "Split"
	TransactionAdjustment TransactionType = "Adjustment"
)

// ValidTransactionType reports whether t is a known stock transaction type.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionSplit, TransactionAdjustment:
		return true
	}
	return false
}

// CurrencyTransactionType is the kind of a ledger cash event.
type CurrencyTransactionType string

const (
	CurrencyTxExchangeBuy    CurrencyTransactionType = "ExchangeBuy"
	CurrencyTxExchangeSell   CurrencyTransactionType = "ExchangeSell"
	CurrencyTxSpend          CurrencyTransactionType = "Spend"
	CurrencyTxInterest       CurrencyTransactionType = "Interest"
	CurrencyTxInitialBalance CurrencyTransactionType = "InitialBalance"
	CurrencyTxOtherIncome    CurrencyTransactionType = "OtherIncome"
	CurrencyTxDeposit        CurrencyTransactionType = "Deposit"
	CurrencyTxWithdraw       CurrencyTransactionType = "Withdraw"
	CurrencyTxOtherExpense   CurrencyTransactionType = "OtherExpense"
)

// IsCredit reports whether the type moves foreign currency into the ledger.
func (t CurrencyTransactionType) IsCredit() bool {
	switch t {
	case CurrencyTxExchangeBuy, CurrencyTxInterest, CurrencyTxInitialBalance,
		CurrencyTxOtherIncome, CurrencyTxDeposit:
		return true
	}
	return false
}

// IsDebit reports whether the type moves foreign currency out of the ledger.
func (t CurrencyTransactionType) IsDebit() bool {
	switch t {
	case CurrencyTxExchangeSell, CurrencyTxSpend, CurrencyTxWithdraw, CurrencyTxOtherExpense:
		return true
	}
	return false
}

// EstablishesLayer reports whether the type pushes a LIFO cost layer
// (requires homeAmount so the layer has an acquisition rate).
func (t CurrencyTransactionType) EstablishesLayer() bool {
	return t == CurrencyTxExchangeBuy || t == CurrencyTxInitialBalance
}

// ConsumesLayers reports whether the type pops LIFO cost layers.
func (t CurrencyTransactionType) ConsumesLayers() bool {
	return t == CurrencyTxExchangeSell || t == CurrencyTxSpend
}

// RequiresHomeAmount reports whether the type must carry homeAmount and
// exchangeRate on a foreign ledger.
func (t CurrencyTransactionType) RequiresHomeAmount() bool {
	switch t {
	case CurrencyTxExchangeBuy, CurrencyTxExchangeSell, CurrencyTxInitialBalance:
		return true
	}
	return false
}

// IsExternalCashFlow reports whether the type counts as a contribution for
// Modified Dietz / TWR. Buy cost is never a contribution.
func (t CurrencyTransactionType) IsExternalCashFlow() bool {
	switch t {
	case CurrencyTxInitialBalance, CurrencyTxDeposit, CurrencyTxWithdraw:
		return true
	}
	return false
}

// AllowedOnForeignLedger is the validation matrix row for foreign ledgers.
func (t CurrencyTransactionType) AllowedOnForeignLedger() bool {
	switch t {
	case CurrencyTxExchangeBuy, CurrencyTxExchangeSell, CurrencyTxSpend,
		CurrencyTxInterest, CurrencyTxInitialBalance, CurrencyTxOtherIncome,
		CurrencyTxOtherExpense:
		return true
	}
	return false
}

// AllowedOnHomeLedger is the validation matrix row for home-currency ledgers.
func (t CurrencyTransactionType) AllowedOnHomeLedger() bool {
	switch t {
	case CurrencyTxDeposit, CurrencyTxWithdraw, CurrencyTxInterest,
		CurrencyTxSpend, CurrencyTxOtherIncome, CurrencyTxOtherExpense:
		return true
	}
	return false
}

// BalanceAction is the policy applied when a stock Buy is linked to a ledger
// whose balance cannot cover the cost.
type BalanceAction string

const (
	BalanceActionNone   BalanceAction = "None"   // reject on insufficient balance
	BalanceActionMargin BalanceAction = "Margin" // allow the balance to go negative
	BalanceActionTopUp  BalanceAction = "TopUp"  // insert a covering credit first
)

// ValidBalanceAction reports whether a is a known policy.
func ValidBalanceAction(a BalanceAction) bool {
	switch a {
	case BalanceActionNone, BalanceActionMargin, BalanceActionTopUp:
		return true
	}
	return false
}

// FundSource states where the cash for a stock transaction comes from.
type FundSource string

const (
	FundSourceNone           FundSource = "None"
	FundSourceCurrencyLedger FundSource = "CurrencyLedger"
)

// RateSource labels how an effective exchange rate was derived.
type RateSource string

const (
	RateSourceLIFO    RateSource = "lifo"
	RateSourceMarket  RateSource = "market"
	RateSourceBlended RateSource = "blended"
)

// PriceType distinguishes the two valuation points a year report needs.
type PriceType string

const (
	PriceTypeYearStart PriceType = "YearStart"
	PriceTypeYearEnd   PriceType = "YearEnd"
)
