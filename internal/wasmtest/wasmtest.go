// Package wasmtest assembles tiny WASI command modules for tests.
//
// Every module imports fd_read (func 0), fd_write (func 1) and proc_exit
// (func 2) from wasi_snapshot_preview1, exports one page of memory and a
// _start function (func 3) whose body is supplied by the caller.
package wasmtest

import "encoding/binary"

// Scratch addresses used by the generated code
const (
	nwrittenAddr = 4096
	stdinIovec   = 2048
	stdinBuf     = 2560
	stdinNread   = 2056
	stdoutIovec  = 2064
)

// Module accumulates data segments and the body of _start
type Module struct {
	data []segment
	body []byte
	next uint32
}

type segment struct {
	offset uint32
	bytes  []byte
}

// New starts an empty module
func New() *Module {
	return &Module{}
}

// Write appends code that writes msg to fd
func (m *Module) Write(fd uint32, msg string) *Module {
	base := m.next
	seg := make([]byte, 8+len(msg))
	binary.LittleEndian.PutUint32(seg[0:], base+8)
	binary.LittleEndian.PutUint32(seg[4:], uint32(len(msg)))
	copy(seg[8:], msg)
	m.data = append(m.data, segment{offset: base, bytes: seg})
	m.next = (base + uint32(len(seg)) + 3) &^ 3

	m.body = append(m.body, i32Const(int32(fd))...)
	m.body = append(m.body, i32Const(int32(base))...)
	m.body = append(m.body, i32Const(1)...)
	m.body = append(m.body, i32Const(nwrittenAddr)...)
	m.body = append(m.body, 0x10, 0x01, 0x1a) // call fd_write; drop
	return m
}

// Echo appends code that copies up to 256 bytes of stdin to stdout
func (m *Module) Echo() *Module {
	iov := make([]byte, 8)
	binary.LittleEndian.PutUint32(iov[0:], stdinBuf)
	binary.LittleEndian.PutUint32(iov[4:], 256)
	m.data = append(m.data, segment{offset: stdinIovec, bytes: iov})

	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, stdinBuf)
	m.data = append(m.data, segment{offset: stdoutIovec, bytes: out})

	// fd_read(0, stdinIovec, 1, stdinNread)
	m.body = append(m.body, i32Const(0)...)
	m.body = append(m.body, i32Const(stdinIovec)...)
	m.body = append(m.body, i32Const(1)...)
	m.body = append(m.body, i32Const(stdinNread)...)
	m.body = append(m.body, 0x10, 0x00, 0x1a)

	// stdout iovec length = nread
	m.body = append(m.body, i32Const(stdoutIovec+4)...)
	m.body = append(m.body, i32Const(stdinNread)...)
	m.body = append(m.body, 0x28, 0x02, 0x00) // i32.load
	m.body = append(m.body, 0x36, 0x02, 0x00) // i32.store

	// fd_write(1, stdoutIovec, 1, nwritten)
	m.body = append(m.body, i32Const(1)...)
	m.body = append(m.body, i32Const(stdoutIovec)...)
	m.body = append(m.body, i32Const(1)...)
	m.body = append(m.body, i32Const(nwrittenAddr)...)
	m.body = append(m.body, 0x10, 0x01, 0x1a)
	return m
}

// Exit appends a proc_exit call
func (m *Module) Exit(code uint32) *Module {
	m.body = append(m.body, i32Const(int32(code))...)
	m.body = append(m.body, 0x10, 0x02)
	return m
}

// Trap appends an unreachable instruction
func (m *Module) Trap() *Module {
	m.body = append(m.body, 0x00)
	return m
}

// Spin appends an infinite loop
func (m *Module) Spin() *Module {
	m.body = append(m.body, 0x03, 0x40, 0x0c, 0x00, 0x0b)
	return m
}

// Bytes encodes the module
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	i32 := byte(0x7f)
	types := vec(
		[]byte{0x60, 0x04, i32, i32, i32, i32, 0x01, i32}, // (i32 x4) -> i32
		[]byte{0x60, 0x00, 0x00},                          // () -> ()
		[]byte{0x60, 0x01, i32, 0x00},                     // (i32) -> ()
	)
	out = append(out, section(1, types)...)

	imports := vec(
		importFunc("fd_read", 0),
		importFunc("fd_write", 0),
		importFunc("proc_exit", 2),
	)
	out = append(out, section(2, imports)...)

	out = append(out, section(3, vec([]byte{0x01}))...)
	out = append(out, section(5, vec([]byte{0x00, 0x01}))...)

	exports := vec(
		append(name("memory"), 0x02, 0x00),
		append(name("_start"), 0x00, 0x03),
	)
	out = append(out, section(7, exports)...)

	code := append([]byte{0x00}, m.body...) // no locals
	code = append(code, 0x0b)
	out = append(out, section(10, vec(append(uleb(uint32(len(code))), code...)))...)

	if len(m.data) > 0 {
		segs := make([][]byte, len(m.data))
		for i, d := range m.data {
			s := []byte{0x00}
			s = append(s, i32Const(int32(d.offset))...)
			s = append(s, 0x0b)
			s = append(s, uleb(uint32(len(d.bytes)))...)
			segs[i] = append(s, d.bytes...)
		}
		out = append(out, section(11, vec(segs...))...)
	}
	return out
}

// Stdout builds a module that prints msg to stdout and returns
func Stdout(msg string) []byte {
	return New().Write(1, msg).Bytes()
}

func importFunc(field string, typeIdx byte) []byte {
	b := name("wasi_snapshot_preview1")
	b = append(b, name(field)...)
	return append(b, 0x00, typeIdx)
}

func i32Const(v int32) []byte {
	return append([]byte{0x41}, sleb(v)...)
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(body)))...)
	return append(out, body...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
