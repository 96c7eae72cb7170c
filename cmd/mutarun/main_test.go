package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaelescrich/mutago/abi"
	"github.com/rafaelescrich/mutago/hostvm"
	"github.com/rafaelescrich/mutago/wasmhost/wasmtest"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func execute(t *testing.T, args ...string) (int, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	code, err := root.execute()
	return code, stdout.String(), err
}

func TestRunCommand(t *testing.T) {
	guest := writeFile(t, "guest.wasm", wasmtest.Guest([]wasmtest.Call{
		wasmtest.Op(abi.SysLoadArgs, 64, 16),
		wasmtest.Op(abi.SysDebug, 64),
		wasmtest.Op(abi.SysEmitEvent, 16, 4, 32, 2),
		wasmtest.Op(abi.SysRet, 48, 4),
		wasmtest.Op(abi.SysExit, 4),
	},
		wasmtest.Segment{Offset: 16, Data: "Tick"},
		wasmtest.Segment{Offset: 32, Data: "{}"},
		wasmtest.Segment{Offset: 48, Data: "done"},
	))
	ctxFile := writeFile(t, "ctx.yaml", []byte("block_height: 5\nargs: ignored\n"))

	code, out, err := execute(t, "run", guest, "--context", ctxFile, "--args", "hello")
	require.NoError(t, err)
	assert.Equal(t, 4, code)
	assert.Contains(t, out, "exit code: 4\n")
	assert.Contains(t, out, `return: "done"`)
	assert.Contains(t, out, "debug: hello\n")
	assert.Contains(t, out, "event: Tick {}\n")
}

func TestRunCommandErrors(t *testing.T) {
	_, _, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.wasm"))
	assert.Error(t, err)

	guest := writeFile(t, "guest.wasm", wasmtest.Guest([]wasmtest.Call{wasmtest.Op(abi.SysExit, 0)}))
	badCtx := writeFile(t, "ctx.yaml", []byte(`origin: "0x12"`))
	_, _, err = execute(t, "run", guest, "--context", badCtx)
	assert.ErrorIs(t, err, hostvm.ErrInvalidContext)

	_, _, err = execute(t, "run")
	assert.Error(t, err)
}

func TestRunCommandGuestFault(t *testing.T) {
	guest := writeFile(t, "guest.wasm", wasmtest.Guest([]wasmtest.Call{wasmtest.Op(1)}))

	code, out, err := execute(t, "run", guest)
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "stopped: ")
}

func TestRunCommandGuestTrap(t *testing.T) {
	guest := writeFile(t, "guest.wasm", wasmtest.Module{
		Calls:  []wasmtest.Call{wasmtest.Op(abi.SysRet, 16, 4)},
		Data:   []wasmtest.Segment{{Offset: 16, Data: "done"}},
		Stdout: "panic: boom\n",
		Trap:   true,
	}.Build())

	code, out, err := execute(t, "run", guest)
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "exit code: 1\n")
	assert.Contains(t, out, "stopped: wasmhost: guest trapped")
	assert.Contains(t, out, "return: \"\"\n")
	assert.Contains(t, out, "debug: panic: boom\n")
}

func TestCodesCommand(t *testing.T) {
	_, out, err := execute(t, "codes")
	require.NoError(t, err)
	assert.Contains(t, out, "   93  exit\n")
	assert.Contains(t, out, " 4005  service_write\n")
	assert.Equal(t, len(abi.Codes()), bytes.Count([]byte(out), []byte("\n")))
}

func TestGuestExitCode(t *testing.T) {
	assert.Equal(t, 0, guestExitCode(hostvm.Outcome{Exited: true}))
	assert.Equal(t, 42, guestExitCode(hostvm.Outcome{Exited: true, ExitCode: 42}))
	assert.Equal(t, 1, guestExitCode(hostvm.Outcome{}))
}
