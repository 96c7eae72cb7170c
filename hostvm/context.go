package hostvm

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
	"gopkg.in/yaml.v3"

	"github.com/rafaelescrich/mutago/abi"
)

// Context is the chain and transaction view a guest observes during one
// invocation. It can be loaded from YAML.
type Context struct {
	Origin  string `yaml:"origin"`
	Caller  string `yaml:"caller"`
	Address string `yaml:"address"`
	TxHash  string `yaml:"tx_hash"`
	TxNonce string `yaml:"tx_nonce"`

	CycleLimit uint64 `yaml:"cycle_limit"`
	CyclePrice uint64 `yaml:"cycle_price"`
	CyclesUsed uint64 `yaml:"cycles_used"`
	// SyscallCost is charged to CyclesUsed on every gate call.
	SyscallCost uint64 `yaml:"syscall_cost"`

	BlockHeight uint64 `yaml:"block_height"`
	Timestamp   uint64 `yaml:"timestamp"`
	IsInit      bool   `yaml:"is_init"`

	Args  string `yaml:"args"`
	Extra string `yaml:"extra"`

	// Storage seeds the contract's key/value state.
	Storage map[string]string `yaml:"storage"`
}

func keccakHash(s string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(s))
	return common.BytesToHash(h.Sum(nil)).Hex()
}

// DefaultContext returns a context with fixed test addresses, hashes derived
// from constant seeds and a generous cycle budget.
func DefaultContext() Context {
	return Context{
		Origin:      common.BytesToAddress([]byte{0x03}).Hex(),
		Caller:      common.BytesToAddress([]byte{0x03}).Hex(),
		Address:     common.BytesToAddress([]byte{0x04}).Hex(),
		TxHash:      keccakHash("mutago/tx_hash"),
		TxNonce:     keccakHash("mutago/tx_nonce"),
		CycleLimit:  1_000_000_000,
		CyclePrice:  1,
		BlockHeight: 100,
		Timestamp:   1596260006,
	}
}

func validAddress(s string) bool {
	return len(s) == abi.AddressHexLen && strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

func validHash(s string) bool {
	if len(s) != abi.HashHexLen {
		return false
	}
	_, err := hexutil.Decode(s)
	return err == nil
}

// Validate checks that every address and hash has the exact hex width the
// guest reads.
func (c Context) Validate() error {
	for name, v := range map[string]string{"origin": c.Origin, "caller": c.Caller, "address": c.Address} {
		if !validAddress(v) {
			return fmt.Errorf("%w: %s %q is not a %d-char hex address", ErrInvalidContext, name, v, abi.AddressHexLen)
		}
	}
	for name, v := range map[string]string{"tx_hash": c.TxHash, "tx_nonce": c.TxNonce} {
		if !validHash(v) {
			return fmt.Errorf("%w: %s %q is not a %d-char hex hash", ErrInvalidContext, name, v, abi.HashHexLen)
		}
	}
	return nil
}

// LoadContext reads a YAML context file. Fields missing from the file keep
// their DefaultContext values.
func LoadContext(path string) (Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Context{}, fmt.Errorf("read context: %w", err)
	}
	return ParseContext(data)
}

// ParseContext decodes YAML over DefaultContext and validates the result.
func ParseContext(data []byte) (Context, error) {
	ctx := DefaultContext()
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return Context{}, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}
	if err := ctx.Validate(); err != nil {
		return Context{}, err
	}
	return ctx, nil
}
