// Package abi holds the call-code registry shared by guest programs and the
// Muta RISC-V host. Changing a value here breaks the binary protocol with
// every deployed host.
package abi

import "sort"

// Call codes, passed as the last gate operand.
const (
	SysExit = 93

	SysDebug    = 2000
	SysAssert   = 2001
	SysLoadArgs = 2002
	SysRet      = 2003

	SysCycleLimit  = 3000
	SysCyclePrice  = 3001
	SysCycleUsed   = 3002
	SysOrigin      = 3003
	SysCaller      = 3004
	SysAddress     = 3005
	SysIsInit      = 3006
	SysBlockHeight = 3007
	SysExtra       = 3008
	SysTimestamp   = 3009
	SysEmitEvent   = 3010
	SysTxHash      = 3011
	SysTxNonce     = 3012

	SysGetStorage   = 4000
	SysSetStorage   = 4001
	SysContractCall = 4002
	SysServiceCall  = 4003
	SysServiceRead  = 4004
	SysServiceWrite = 4005
)

// Fixed widths of the hex text fields written by the host.
const (
	AddressHexLen = 42 // "0x" + 20 bytes
	HashHexLen    = 66 // "0x" + 32 bytes
)

var codeNames = map[uint64]string{
	SysExit:         "exit",
	SysDebug:        "debug",
	SysAssert:       "assert",
	SysLoadArgs:     "load_args",
	SysRet:          "ret",
	SysCycleLimit:   "cycle_limit",
	SysCyclePrice:   "cycle_price",
	SysCycleUsed:    "cycle_used",
	SysOrigin:       "origin",
	SysCaller:       "caller",
	SysAddress:      "address",
	SysIsInit:       "is_init",
	SysBlockHeight:  "block_height",
	SysExtra:        "extra",
	SysTimestamp:    "timestamp",
	SysEmitEvent:    "emit_event",
	SysTxHash:       "tx_hash",
	SysTxNonce:      "tx_nonce",
	SysGetStorage:   "get_storage",
	SysSetStorage:   "set_storage",
	SysContractCall: "contract_call",
	SysServiceCall:  "service_call",
	SysServiceRead:  "service_read",
	SysServiceWrite: "service_write",
}

// Name returns the registry name of code and whether the code is known.
func Name(code uint64) (string, bool) {
	name, ok := codeNames[code]
	return name, ok
}

// Codes returns every registered call code in ascending order.
func Codes() []uint64 {
	codes := make([]uint64, 0, len(codeNames))
	for c := range codeNames {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
