package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Валюты без дробной части (Stripe передает их суммы как есть)
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

func currencyExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(currency)]; ok {
		return 0
	}
	return 2
}

// MinorToMajor переводит сумму из минимальных единиц (центы) в основные
func MinorToMajor(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -currencyExponent(currency))
}

// FormatAmount форматирует сумму для описаний аудита, например "150.00 MXN"
func FormatAmount(amount int64, currency string) string {
	exp := currencyExponent(currency)
	s := MinorToMajor(amount, currency).StringFixed(exp)
	if currency == "" {
		return s
	}
	return s + " " + strings.ToUpper(currency)
}
