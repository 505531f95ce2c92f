package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AccountSize is the width of an account address in bytes.
const AccountSize = 20

// Account is the address of a transaction signer.
type Account [AccountSize]byte

// ZeroAccount is the sentinel "from" of a creation record. No key hashes to it.
var ZeroAccount Account

// AccountFromBytes copies b into an Account
func AccountFromBytes(b []byte) (Account, error) {
	var a Account
	if len(b) != AccountSize {
		return a, errorf(KindInvalidArgument, "account must be %d bytes, got %d", AccountSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAccount decodes a hex address, with or without a 0x prefix
func ParseAccount(s string) (Account, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Account{}, errorf(KindInvalidArgument, "invalid account %q: %v", s, err)
	}
	return AccountFromBytes(b)
}

func (a Account) IsZero() bool {
	return a == ZeroAccount
}

func (a Account) String() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}

func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Account) UnmarshalText(text []byte) error {
	parsed, err := ParseAccount(string(text))
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	*a = parsed
	return nil
}
