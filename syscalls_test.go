package mutago

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaelescrich/mutago/abi"
	"github.com/rafaelescrich/mutago/hostvm"
)

// recordingGate captures the operands of each call and, for pointer operands
// the test is interested in, the memory they reference at call time.
type recordingGate struct {
	calls [][8]uint64
	cstr  []string
	ret   uint64
}

func (g *recordingGate) Syscall(a0, a1, a2, a3, a4, a5, a6, code uint64) uint64 {
	ops := [8]uint64{a0, a1, a2, a3, a4, a5, a6, code}
	g.calls = append(g.calls, ops)
	switch code {
	case abi.SysDebug:
		g.cstr = append(g.cstr, rawCString(a0))
	case abi.SysAssert:
		g.cstr = append(g.cstr, rawCString(a1))
	}
	return g.ret
}

func rawCString(ptr uint64) string {
	s, err := hostvm.ReadCString(processMemory{}, ptr)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return s
}

func useGate(t *testing.T, g Gate) {
	t.Helper()
	prev := SetGate(g)
	t.Cleanup(func() { SetGate(prev) })
}

func TestDebugPassesNulTerminatedString(t *testing.T) {
	g := &recordingGate{}
	useGate(t, g)

	Debug("hello")

	require.Len(t, g.calls, 1)
	ops := g.calls[0]
	assert.EqualValues(t, abi.SysDebug, ops[7])
	assert.NotZero(t, ops[0])
	for _, op := range ops[1:7] {
		assert.Zero(t, op)
	}
	assert.Equal(t, []string{"hello"}, g.cstr)
}

func TestAssertCarriesTruthOperandFirst(t *testing.T) {
	g := &recordingGate{}
	useGate(t, g)

	Assert(true, "fine")
	Assert(false, "broken")

	require.Len(t, g.calls, 2)
	assert.EqualValues(t, 1, g.calls[0][0])
	assert.EqualValues(t, 0, g.calls[1][0])
	assert.EqualValues(t, abi.SysAssert, g.calls[1][7])
	assert.Equal(t, []string{"fine", "broken"}, g.cstr)
}

func TestFixedOutputCalls(t *testing.T) {
	tests := []struct {
		name string
		code uint64
		call func() uint64
	}{
		{"CycleLimit", abi.SysCycleLimit, CycleLimit},
		{"CyclePrice", abi.SysCyclePrice, CyclePrice},
		{"CycleUsed", abi.SysCycleUsed, CycleUsed},
		{"BlockHeight", abi.SysBlockHeight, BlockHeight},
		{"Timestamp", abi.SysTimestamp, Timestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &recordingGate{ret: 4242}
			useGate(t, g)

			assert.EqualValues(t, 4242, tt.call())
			require.Len(t, g.calls, 1)
			assert.Equal(t, [8]uint64{0, 0, 0, 0, 0, 0, 0, tt.code}, g.calls[0])
		})
	}
}

func TestIsInit(t *testing.T) {
	g := &recordingGate{}
	useGate(t, g)
	assert.False(t, IsInit())

	g.ret = 7
	assert.True(t, IsInit())
}

func TestEmitEventUsesItsOwnCode(t *testing.T) {
	g := &recordingGate{}
	useGate(t, g)

	EmitEvent([]byte("name"), []byte("payload"))

	require.Len(t, g.calls, 1)
	ops := g.calls[0]
	assert.EqualValues(t, abi.SysEmitEvent, ops[7])
	assert.EqualValues(t, 4, ops[1])
	assert.EqualValues(t, 7, ops[3])
}

func TestBufferOutputLengthNotEnough(t *testing.T) {
	mock := NewMockRuntime()
	UseRuntime(mock)
	mock.Context.Args = "0123456789"
	mock.Context.Extra = "0123456789"
	mock.Storage.Set([]byte("k"), []byte("0123456789"))
	mock.RegisterContract(mock.Context.Address, func(args []byte) ([]byte, error) {
		return []byte("0123456789"), nil
	})
	mock.RegisterService("asset", func(req hostvm.ServiceRequest) ([]byte, error) {
		return []byte("0123456789"), nil
	})

	calls := map[string]func(buf []byte) (uint64, error){
		"LoadArgs":  LoadArgs,
		"LoadExtra": LoadExtra,
		"GetStorage": func(buf []byte) (uint64, error) {
			return GetStorage([]byte("k"), buf)
		},
		"ContractCall": func(buf []byte) (uint64, error) {
			var addr [abi.AddressHexLen]byte
			copy(addr[:], mock.Context.Address)
			return ContractCall(&addr, []byte("x"), buf)
		},
		"ServiceCall": func(buf []byte) (uint64, error) {
			return ServiceCall("asset", "get", nil, buf)
		},
		"ServiceRead": func(buf []byte) (uint64, error) {
			return ServiceRead("asset", "get", nil, buf)
		},
		"ServiceWrite": func(buf []byte) (uint64, error) {
			return ServiceWrite("asset", "set", []byte("p"), buf)
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			small := make([]byte, 4)
			_, err := call(small)
			require.Error(t, err)
			assert.Equal(t, LengthNotEnough(10), err)
			assert.ErrorIs(t, err, ErrLengthNotEnough)
			n, ok := RequiredLen(err)
			assert.True(t, ok)
			assert.EqualValues(t, 10, n)

			exact := make([]byte, 10)
			n, err = call(exact)
			require.NoError(t, err)
			assert.EqualValues(t, 10, n)
			assert.Equal(t, "0123456789", string(exact[:n]))

			empty := make([]byte, 0)
			_, err = call(empty)
			assert.Equal(t, LengthNotEnough(10), err)
		})
	}
}

func TestHostWritesNoMoreThanCapacity(t *testing.T) {
	mock := NewMockRuntime()
	UseRuntime(mock)
	mock.Context.Args = "abcdef"

	buf := []byte("XXXXXXXXXX")
	_, err := LoadArgs(buf[:3])
	require.Error(t, err)
	assert.Equal(t, "abcXXXXXXX", string(buf))
}

func TestMetadataFixedWidth(t *testing.T) {
	mock := NewMockRuntime()
	UseRuntime(mock)

	assert.Equal(t, mock.Context.Origin, Origin())
	assert.Equal(t, mock.Context.Caller, Caller())
	assert.Equal(t, mock.Context.Address, Address())
	assert.Len(t, Address(), abi.AddressHexLen)

	assert.Equal(t, mock.Context.TxHash, TxHash())
	assert.Equal(t, mock.Context.TxNonce, TxNonce())
	assert.Len(t, TxNonce(), abi.HashHexLen)
}

func TestEnvironmentQueries(t *testing.T) {
	mock := NewMockRuntime()
	UseRuntime(mock)
	mock.Context.CycleLimit = 500
	mock.Context.CyclePrice = 3
	mock.Context.CyclesUsed = 10
	mock.Context.SyscallCost = 2
	mock.Context.BlockHeight = 77
	mock.Context.Timestamp = 1600000000
	mock.Context.IsInit = true

	assert.EqualValues(t, 500, CycleLimit())
	assert.EqualValues(t, 3, CyclePrice())
	// three calls charged so far, including this one
	assert.EqualValues(t, 16, CycleUsed())
	assert.EqualValues(t, 77, BlockHeight())
	assert.EqualValues(t, 1600000000, Timestamp())
	assert.True(t, IsInit())
}

func TestStorageRoundTrip(t *testing.T) {
	mock := NewMockRuntime()
	UseRuntime(mock)

	key := []byte{1, 2, 3, 4, 5}
	value := []byte{10, 20, 30, 40, 50}
	SetStorage(key, value)

	buf := make([]byte, BufSize)
	n, err := GetStorage(key, buf)
	require.NoError(t, err)
	assert.Equal(t, value, buf[:n])
	assert.Equal(t, value, mock.Storage.Get(key))
}

func TestSetReturnData(t *testing.T) {
	mock := NewMockRuntime()
	UseRuntime(mock)

	Ret([]byte{10, 20, 30, 40, 50})
	assert.Equal(t, []byte{10, 20, 30, 40, 50}, mock.Outcome().Return)
}

func TestServiceRequestFields(t *testing.T) {
	mock := NewMockRuntime()
	UseRuntime(mock)

	var got hostvm.ServiceRequest
	mock.RegisterService("metadata", func(req hostvm.ServiceRequest) ([]byte, error) {
		got = req
		return []byte("ok"), nil
	})

	buf := make([]byte, 8)
	n, err := ServiceWrite("metadata", "update", []byte(`{"a":1}`), buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf[:n]))
	assert.Equal(t, hostvm.ServiceWrite, got.Kind)
	assert.Equal(t, "metadata", got.Service)
	assert.Equal(t, "update", got.Method)
	assert.Equal(t, `{"a":1}`, string(got.Payload))
}

func TestContractCallStringRejectsBadAddress(t *testing.T) {
	g := &recordingGate{}
	useGate(t, g)

	for _, addr := range []string{"", "0x12", "0x00000000000000000000000000000000000000090"} {
		_, err := ContractCallString(addr, "args")
		assert.ErrorIs(t, err, ErrInvalidAddress, addr)
	}
	assert.Empty(t, g.calls, "a bad address never reaches the host")
}

func TestContractCallSendsAddressOperand(t *testing.T) {
	mock := NewMockRuntime()
	UseRuntime(mock)
	callee := "0x0000000000000000000000000000000000000009"
	mock.RegisterContract(callee, func(args []byte) ([]byte, error) {
		return args, nil
	})

	var addr [abi.AddressHexLen]byte
	copy(addr[:], callee)
	ret := make([]byte, 8)
	n, err := ContractCall(&addr, []byte("pong"), ret)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(ret[:n]))
}

func TestMockMemoryResolvesOnlyCallOperands(t *testing.T) {
	unrelated := make([]byte, 16)
	unrelatedAddr := uint64(uintptr(unsafe.Pointer(&unrelated[0])))

	var inCall, outside, tail error
	var got []byte
	useGate(t, GateFunc(func(a0, a1, a2, a3, a4, a5, a6, code uint64) uint64 {
		got, inCall = processMemory{}.Read(a0, a1)
		_, outside = processMemory{}.Read(unrelatedAddr, 4)
		_, tail = processMemory{}.Read(a0+1, a1)
		return 0
	}))

	Ret([]byte("payload"))

	require.NoError(t, inCall)
	assert.Equal(t, "payload", string(got))
	assert.ErrorIs(t, outside, hostvm.ErrMemoryAccess)
	assert.ErrorIs(t, tail, hostvm.ErrMemoryAccess, "reads may not run past the operand")
	assert.Empty(t, operands, "operands are released after the call")

	_, err := processMemory{}.Read(unrelatedAddr, 4)
	assert.ErrorIs(t, err, hostvm.ErrMemoryAccess)
}

func TestOperandsReleasedWhenGuestIsStopped(t *testing.T) {
	mock := NewMockRuntime()
	out := mock.Run(func() {
		Assert(false, "stop here")
	})

	var ae *hostvm.AssertionError
	require.ErrorAs(t, out.Err, &ae)
	assert.Empty(t, operands)
}

func TestNoHostAttachedPanics(t *testing.T) {
	prev := SetGate(nil)
	defer SetGate(prev)

	assert.Panics(t, func() { BlockHeight() })
}
