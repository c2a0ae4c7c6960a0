package stellar

// accountAddressLength is the length of a Stellar account address in its
// strkey representation (e.g. "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H").
const accountAddressLength = 56

// accountAddressPrefix is the version-byte character for account addresses.
const accountAddressPrefix = 'G'

// IsValidAddress reports whether s has the shape of a Stellar account
// address: exactly 56 characters, a leading 'G', and the remainder drawn from
// the RFC 4648 base32 alphabet (A-Z, 2-7). It is a pure predicate with no
// I/O; it is the single gate applied to every account-identifier field before
// an intent is trusted.
func IsValidAddress(s string) bool {
	if len(s) != accountAddressLength {
		return false
	}
	if s[0] != accountAddressPrefix {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '2' || c > '7') {
			return false
		}
	}
	return true
}
