package mutago

import (
	"unsafe"

	"github.com/rafaelescrich/mutago/abi"
)

// --- Operand encoding ---

// bytesPtr returns the address of b's first byte as an operand word, or 0 for
// an empty slice. The host may read or write at most the paired length.
func bytesPtr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	pin(b)
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

// cString copies s into a new NUL-terminated byte slice. The host reads debug,
// assert, service and method strings C-style.
func cString(s string) []byte {
	c := make([]byte, len(s)+1)
	copy(c, s)
	return c
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// lengthResult checks the actual output length reported by the host against
// the capacity of buf.
func lengthResult(actual uint64, buf []byte) (uint64, error) {
	if actual > uint64(len(buf)) {
		return 0, LengthNotEnough(actual)
	}
	return actual, nil
}

// --- Process control ---

// Exit terminates the program with code. 0 means success. The host never
// returns control.
func Exit(code uint64) {
	syscall(code, 0, 0, 0, 0, 0, 0, abi.SysExit)
	for {
	}
}

// Debug writes s to the host debug channel.
func Debug(s string) {
	c := cString(s)
	syscall(bytesPtr(c), 0, 0, 0, 0, 0, 0, abi.SysDebug)
}

// Assert asks the host to abort the program with msg unless ok holds.
func Assert(ok bool, msg string) {
	c := cString(msg)
	syscall(boolWord(ok), bytesPtr(c), 0, 0, 0, 0, 0, abi.SysAssert)
}

// Ret sets the program's return payload.
func Ret(data []byte) {
	syscall(bytesPtr(data), uint64(len(data)), 0, 0, 0, 0, 0, abi.SysRet)
}

// --- Input ---

// LoadArgs copies the call arguments into buf and returns their length.
// If buf is too small the error carries the actual length and buf contents
// are unspecified.
func LoadArgs(buf []byte) (uint64, error) {
	n := syscall(bytesPtr(buf), uint64(len(buf)), 0, 0, 0, 0, 0, abi.SysLoadArgs)
	return lengthResult(n, buf)
}

// LoadExtra copies the transaction extra data into buf, like LoadArgs.
func LoadExtra(buf []byte) (uint64, error) {
	n := syscall(bytesPtr(buf), uint64(len(buf)), 0, 0, 0, 0, 0, abi.SysExtra)
	return lengthResult(n, buf)
}

// --- Cycle accounting ---

// CycleLimit returns the cycle budget of the invocation.
func CycleLimit() uint64 {
	return syscall(0, 0, 0, 0, 0, 0, 0, abi.SysCycleLimit)
}

// CyclePrice returns the price of one cycle.
func CyclePrice() uint64 {
	return syscall(0, 0, 0, 0, 0, 0, 0, abi.SysCyclePrice)
}

// CycleUsed returns the cycles consumed so far, including this call.
func CycleUsed() uint64 {
	return syscall(0, 0, 0, 0, 0, 0, 0, abi.SysCycleUsed)
}

// --- Chain and transaction metadata ---

func readAddress(code uint64) string {
	var addr [abi.AddressHexLen]byte
	syscall(bytesPtr(addr[:]), 0, 0, 0, 0, 0, 0, code)
	return string(addr[:])
}

func readHash(code uint64) string {
	var hash [abi.HashHexLen]byte
	syscall(bytesPtr(hash[:]), 0, 0, 0, 0, 0, 0, code)
	return string(hash[:])
}

// Origin returns the hex address of the account that signed the transaction.
func Origin() string {
	return readAddress(abi.SysOrigin)
}

// Caller returns the hex address of the immediate caller.
func Caller() string {
	return readAddress(abi.SysCaller)
}

// Address returns the hex address of the running contract.
func Address() string {
	return readAddress(abi.SysAddress)
}

// IsInit reports whether the contract is running its deployment call.
func IsInit() bool {
	return syscall(0, 0, 0, 0, 0, 0, 0, abi.SysIsInit) != 0
}

// BlockHeight returns the height of the block being executed.
func BlockHeight() uint64 {
	return syscall(0, 0, 0, 0, 0, 0, 0, abi.SysBlockHeight)
}

// Timestamp returns the block timestamp in seconds.
func Timestamp() uint64 {
	return syscall(0, 0, 0, 0, 0, 0, 0, abi.SysTimestamp)
}

// TxHash returns the 0x-prefixed hash of the current transaction.
func TxHash() string {
	return readHash(abi.SysTxHash)
}

// TxNonce returns the 0x-prefixed nonce of the current transaction.
func TxNonce() string {
	return readHash(abi.SysTxNonce)
}

// --- Storage ---

// GetStorage copies the value stored under key into buf and returns its
// length. An absent key yields length 0.
func GetStorage(key, buf []byte) (uint64, error) {
	n := syscall(bytesPtr(key), uint64(len(key)), bytesPtr(buf), uint64(len(buf)), 0, 0, 0, abi.SysGetStorage)
	return lengthResult(n, buf)
}

// SetStorage stores value under key, replacing any previous value.
func SetStorage(key, value []byte) {
	syscall(bytesPtr(key), uint64(len(key)), bytesPtr(value), uint64(len(value)), 0, 0, 0, abi.SysSetStorage)
}

// --- Cross-contract and service calls ---

// ContractCall invokes the contract at address with args and copies its
// return payload into ret.
func ContractCall(address *[abi.AddressHexLen]byte, args, ret []byte) (uint64, error) {
	n := syscall(bytesPtr(address[:]), bytesPtr(args), uint64(len(args)), bytesPtr(ret), uint64(len(ret)), 0, 0, abi.SysContractCall)
	return lengthResult(n, ret)
}

func serviceInvoke(code uint64, service, method string, payload, ret []byte) (uint64, error) {
	s, m := cString(service), cString(method)
	n := syscall(bytesPtr(s), bytesPtr(m), bytesPtr(payload), uint64(len(payload)), bytesPtr(ret), uint64(len(ret)), 0, code)
	return lengthResult(n, ret)
}

// ServiceCall invokes method on a host service and copies the response into ret.
func ServiceCall(service, method string, payload, ret []byte) (uint64, error) {
	return serviceInvoke(abi.SysServiceCall, service, method, payload, ret)
}

// ServiceRead is ServiceCall restricted to read-only service methods.
func ServiceRead(service, method string, payload, ret []byte) (uint64, error) {
	return serviceInvoke(abi.SysServiceRead, service, method, payload, ret)
}

// ServiceWrite is ServiceCall for state-changing service methods.
func ServiceWrite(service, method string, payload, ret []byte) (uint64, error) {
	return serviceInvoke(abi.SysServiceWrite, service, method, payload, ret)
}

// --- Events ---

// EmitEvent publishes event under name to the host event log.
func EmitEvent(name, event []byte) {
	syscall(bytesPtr(name), uint64(len(name)), bytesPtr(event), uint64(len(event)), 0, 0, 0, abi.SysEmitEvent)
}
