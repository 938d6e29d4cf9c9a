package decoder

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/BICAS-web3/Backend/internal/model"
)

// Schema is a game's decoding schema parsed into a usable form: the ordered
// ABI argument list for the event's data payload plus the field names the
// decoded values are zipped with.
type Schema struct {
	Game    model.Game
	Address common.Address
	SigHash common.Hash

	args  abi.Arguments
	names []string
}

// ParseSchema validates and compiles a game descriptor. EventTypes must be a
// JSON array of primitive ABI type strings with exactly as many entries as
// EventNames has space-separated names.
func ParseSchema(game model.Game) (*Schema, error) {
	if !common.IsHexAddress(game.Address) {
		return nil, fmt.Errorf("game %d: invalid contract address %q", game.ID, game.Address)
	}

	sig := game.EventSignature
	if !strings.HasPrefix(sig, "0x") || len(sig) != 66 {
		return nil, fmt.Errorf("game %d: invalid event signature %q", game.ID, sig)
	}

	var typeNames []string
	if err := json.Unmarshal([]byte(game.EventTypes), &typeNames); err != nil {
		return nil, fmt.Errorf("game %d: parse event types: %w", game.ID, err)
	}

	names := strings.Fields(game.EventNames)
	if len(names) != len(typeNames) {
		return nil, fmt.Errorf("game %d: %d types but %d names", game.ID, len(typeNames), len(names))
	}

	args := make(abi.Arguments, 0, len(typeNames))
	for i, tn := range typeNames {
		typ, err := abi.NewType(tn, "", nil)
		if err != nil {
			return nil, fmt.Errorf("game %d: bad abi type %q: %w", game.ID, tn, err)
		}
		args = append(args, abi.Argument{Name: names[i], Type: typ})
	}

	return &Schema{
		Game:    game,
		Address: common.HexToAddress(game.Address),
		SigHash: common.HexToHash(sig),
		args:    args,
		names:   names,
	}, nil
}

// Decode applies positional ABI decoding of an event data payload and zips
// the values with the schema's field names. It has no side effects.
func (s *Schema) Decode(data []byte) (Fields, error) {
	values, err := s.args.UnpackValues(data)
	if err != nil {
		return nil, fmt.Errorf("unpack event data: %w", err)
	}
	if len(values) != len(s.names) {
		return nil, fmt.Errorf("decoded %d values, schema has %d names", len(values), len(s.names))
	}

	fields := make(Fields, len(values))
	for i, name := range s.names {
		fields[name] = values[i]
	}
	return fields, nil
}

// Encode packs field values back into an event payload. The inverse of
// Decode, used by tests and replay tooling.
func (s *Schema) Encode(values ...interface{}) ([]byte, error) {
	return s.args.Pack(values...)
}

// Fields maps schema field names to decoded values. Absence of a name is an
// ordinary condition: whether a field is required depends on the event phase,
// so callers check presence at the point of use.
type Fields map[string]interface{}

// Uint returns the named field as a big integer. Small unsigned ABI types
// decode to native Go integers, which are widened here.
func (f Fields) Uint(name string) (*big.Int, bool) {
	v, ok := f[name]
	if !ok {
		return nil, false
	}
	switch n := v.(type) {
	case *big.Int:
		return n, true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	default:
		return nil, false
	}
}

// Address returns the named field as an address.
func (f Fields) Address(name string) (common.Address, bool) {
	v, ok := f[name]
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
