package updater

import (
	"sort"
	"strconv"
	"strings"
)

// symmetricBetTypes sort their combination ascending before joining,
// because e.g. quinella "1-2" and "2-1" are the same bet; asymmetric bet
// types preserve the order the API returned (first place matters).
var symmetricBetTypes = map[string]bool{
	"quinella":      true,
	"trio":          true,
	"quinellaPlace": true,
}

// defaultOddsType is the type code applied when the API omits a bet row's
// type field, keyed by bet type.
var defaultOddsType = map[string]int{
	"exacta":          6,
	"quinella":        7,
	"quinellaPlace":   5,
	"trifecta":        8,
	"trio":            9,
	"bracketExacta":   1,
	"bracketQuinella": 2,
}

// DefaultOddsType returns the type code to use when the API response
// omits it for betType.
func DefaultOddsType(betType string) int {
	return defaultOddsType[betType]
}

// OddsKey canonicalizes a bet combination into the stored key string:
// ascending-numeric join for symmetric bet types, order-preserving join
// otherwise.
func OddsKey(betType string, combination []int) string {
	numbers := combination
	if symmetricBetTypes[betType] {
		numbers = append([]int(nil), combination...)
		sort.Ints(numbers)
	}
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "-")
}
