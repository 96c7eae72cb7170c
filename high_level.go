package mutago

import (
	"unicode/utf8"

	"github.com/rafaelescrich/mutago/abi"
)

// BufSize is the capacity of the scratch buffer used by the high-level
// helpers. Outputs longer than this fail with a length-not-enough error;
// callers needing more use the raw wrappers with a larger buffer.
const BufSize = 1024

func copyOut(buf []byte, n uint64) []byte {
	out := make([]byte, n)
	copy(out, buf[:n])
	return out
}

func toString(b []byte, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// LoadArgsBytes returns the call arguments.
func LoadArgsBytes() ([]byte, error) {
	var buf [BufSize]byte
	n, err := LoadArgs(buf[:])
	if err != nil {
		return nil, err
	}
	return copyOut(buf[:], n), nil
}

// LoadArgsString returns the call arguments as UTF-8 text.
func LoadArgsString() (string, error) {
	return toString(LoadArgsBytes())
}

// LoadExtraBytes returns the transaction extra data.
func LoadExtraBytes() ([]byte, error) {
	var buf [BufSize]byte
	n, err := LoadExtra(buf[:])
	if err != nil {
		return nil, err
	}
	return copyOut(buf[:], n), nil
}

// LoadExtraString returns the transaction extra data as UTF-8 text.
func LoadExtraString() (string, error) {
	return toString(LoadExtraBytes())
}

// GetStorageBytes returns the value stored under key, empty if absent.
func GetStorageBytes(key []byte) ([]byte, error) {
	var buf [BufSize]byte
	n, err := GetStorage(key, buf[:])
	if err != nil {
		return nil, err
	}
	return copyOut(buf[:], n), nil
}

// GetStorageString returns the value stored under key as UTF-8 text.
func GetStorageString(key string) (string, error) {
	return toString(GetStorageBytes([]byte(key)))
}

// SetStorageBytes stores value under key.
func SetStorageBytes(key, value []byte) {
	SetStorage(key, value)
}

// SetStorageString stores value under key.
func SetStorageString(key, value string) {
	SetStorage([]byte(key), []byte(value))
}

// EmitEventBytes emits event under name.
func EmitEventBytes(name, event []byte) {
	EmitEvent(name, event)
}

// EmitEventString emits event under name.
func EmitEventString(name, event string) {
	EmitEvent([]byte(name), []byte(event))
}

// ContractCallString calls the contract at address and returns its payload.
// The address must be exactly AddressHexLen bytes of hex text.
func ContractCallString(address, args string) (string, error) {
	if len(address) != abi.AddressHexLen {
		return "", ErrInvalidAddress
	}
	var addr [abi.AddressHexLen]byte
	copy(addr[:], address)
	var buf [BufSize]byte
	n, err := ContractCall(&addr, []byte(args), buf[:])
	if err != nil {
		return "", err
	}
	return toString(copyOut(buf[:], n), nil)
}

type serviceFunc func(service, method string, payload, ret []byte) (uint64, error)

func serviceString(call serviceFunc, service, method, payload string) (string, error) {
	var buf [BufSize]byte
	n, err := call(service, method, []byte(payload), buf[:])
	if err != nil {
		return "", err
	}
	return toString(copyOut(buf[:], n), nil)
}

// ServiceCallString invokes method on service and returns the response.
func ServiceCallString(service, method, payload string) (string, error) {
	return serviceString(ServiceCall, service, method, payload)
}

// ServiceReadString is ServiceCallString for read-only methods.
func ServiceReadString(service, method, payload string) (string, error) {
	return serviceString(ServiceRead, service, method, payload)
}

// ServiceWriteString is ServiceCallString for state-changing methods.
func ServiceWriteString(service, method, payload string) (string, error) {
	return serviceString(ServiceWrite, service, method, payload)
}
