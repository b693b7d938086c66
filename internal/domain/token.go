package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPathLen is the number of tokens in a routed path. The route is the
// round trip t1 -> t2 -> t3 -> t1, so quoting and swapping always use four
// path entries built from these three tokens.
const TokenPathLen = 3

// Token is one entry of the configured token path.
type Token struct {
	Symbol  string
	Address common.Address
}

// TokenPath is the ordered 3-token route fixed at startup.
type TokenPath []Token

// ParseTokenPath parses a "sym:0x..,sym:0x..,sym:0x.." list into a TokenPath.
// Symbols are upper-cased; addresses must be valid 20-byte hex. The path must
// contain exactly TokenPathLen entries.
func ParseTokenPath(s string) (TokenPath, error) {
	var path TokenPath
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, addr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: entry %q, want sym:address", ErrBadTokenPath, part)
		}
		sym = strings.ToUpper(strings.TrimSpace(sym))
		addr = strings.TrimSpace(addr)
		if sym == "" {
			return nil, fmt.Errorf("%w: entry %q has an empty symbol", ErrBadTokenPath, part)
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: token %s has invalid address %q", ErrBadTokenPath, sym, addr)
		}
		path = append(path, Token{Symbol: sym, Address: common.HexToAddress(addr)})
	}
	if len(path) != TokenPathLen {
		return nil, fmt.Errorf("%w: %d entries, want %d", ErrBadTokenPath, len(path), TokenPathLen)
	}
	return path, nil
}

// RoundTrip returns the four swap-path addresses [t1, t2, t3, t1].
func (p TokenPath) RoundTrip() []common.Address {
	if len(p) != TokenPathLen {
		return nil
	}
	return []common.Address{p[0].Address, p[1].Address, p[2].Address, p[0].Address}
}

// Symbols returns the token symbols in path order.
func (p TokenPath) Symbols() []string {
	out := make([]string, len(p))
	for i, t := range p {
		out[i] = t.Symbol
	}
	return out
}

func (p TokenPath) String() string {
	return strings.Join(p.Symbols(), "/")
}
