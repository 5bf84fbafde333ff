package emu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	rax = 0
	rdx = 2
	rsp = 4
	rbp = 5
)

// returnSentinel is the return address pushed before entering the entry
// function; returning to it stops the machine.
const returnSentinel = ^uint64(0)

var (
	ErrStepLimit    = errors.New("step limit exceeded")
	ErrDivideByZero = errors.New("division by zero")
)

type CPU struct {
	Regs     [16]uint64
	Mem      []byte
	PC       int
	Steps    int
	MaxSteps int
	Halted   bool

	prog *Program
	// operands of the last cmp
	cmpA, cmpB int64
}

// NewCPU creates a machine with memSize bytes of memory. A maxSteps of 0
// means no limit.
func NewCPU(prog *Program, memSize, maxSteps int) *CPU {
	return &CPU{prog: prog, Mem: make([]byte, memSize), MaxSteps: maxSteps}
}

// Run assembles code and calls main, returning its result
func Run(code string, memSize, maxSteps int) (int64, error) {
	prog, err := Assemble(code)
	if err != nil {
		return 0, err
	}
	return NewCPU(prog, memSize, maxSteps).Call("main")
}

// Call runs the function at label with up to six integer arguments and
// returns rax
func (c *CPU) Call(label string, args ...int64) (int64, error) {
	entry, ok := c.prog.Entry(label)
	if !ok {
		return 0, fmt.Errorf("undefined function '%s'", label)
	}
	argRegs := []int{7, 6, 2, 1, 8, 9}
	if len(args) > len(argRegs) {
		return 0, fmt.Errorf("too many arguments to '%s'", label)
	}
	for i, a := range args {
		c.Regs[argRegs[i]] = uint64(a)
	}

	// The entry function starts like any other callee: rsp+8 is 16-byte
	// aligned once the return address is pushed.
	c.Regs[rsp] = uint64(len(c.Mem)) &^ 15
	if err := c.push(returnSentinel); err != nil {
		return 0, err
	}
	c.PC = entry
	c.Halted = false

	for !c.Halted {
		if c.MaxSteps > 0 && c.Steps >= c.MaxSteps {
			return 0, ErrStepLimit
		}
		if err := c.Step(); err != nil {
			return 0, err
		}
	}
	return int64(c.Regs[rax]), nil
}

func (c *CPU) memSlice(addr uint64, size int) ([]byte, error) {
	if addr > uint64(len(c.Mem)) || uint64(len(c.Mem))-addr < uint64(size) {
		return nil, fmt.Errorf("memory access out of bounds at 0x%x", addr)
	}
	return c.Mem[addr : addr+uint64(size)], nil
}

func (c *CPU) Read(addr uint64, size int) (uint64, error) {
	b, err := c.memSlice(addr, size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *CPU) Write(addr uint64, size int, val uint64) error {
	b, err := c.memSlice(addr, size)
	if err != nil {
		return err
	}
	switch size {
	case 1:
		b[0] = byte(val)
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(val))
	default:
		binary.LittleEndian.PutUint64(b, val)
	}
	return nil
}

func (c *CPU) push(val uint64) error {
	c.Regs[rsp] -= 8
	return c.Write(c.Regs[rsp], 8, val)
}

func (c *CPU) pop() (uint64, error) {
	val, err := c.Read(c.Regs[rsp], 8)
	c.Regs[rsp] += 8
	return val, err
}

// setReg writes a register with x86 width rules: 32-bit writes clear the
// upper half, 8-bit writes keep the other bytes.
func (c *CPU) setReg(op operand, val uint64) {
	switch op.size {
	case 4:
		c.Regs[op.reg] = uint64(uint32(val))
	case 1:
		c.Regs[op.reg] = c.Regs[op.reg]&^0xff | val&0xff
	default:
		c.Regs[op.reg] = val
	}
}

func (c *CPU) effectiveAddr(op operand) uint64 {
	return c.Regs[op.reg] + uint64(op.imm)
}

// value reads a register, immediate or memory operand. Memory without a
// size prefix takes the width of the other operand.
func (c *CPU) value(op operand, width int) (uint64, error) {
	switch op.kind {
	case opImm:
		return uint64(op.imm), nil
	case opReg:
		v := c.Regs[op.reg]
		switch op.size {
		case 4:
			return uint64(uint32(v)), nil
		case 1:
			return v & 0xff, nil
		}
		return v, nil
	case opMem:
		size := op.size
		if size == 0 {
			size = width
		}
		return c.Read(c.effectiveAddr(op), size)
	}
	return 0, fmt.Errorf("operand '%s' has no value", op.name)
}

func (c *CPU) fault(in *instr, err error) error {
	return fmt.Errorf("line %d (%s): %w", in.lineNo, in.mnemonic, err)
}

// Step executes one instruction
func (c *CPU) Step() error {
	if c.PC < 0 || c.PC >= len(c.prog.instrs) {
		return fmt.Errorf("program counter out of range: %d", c.PC)
	}
	in := &c.prog.instrs[c.PC]
	c.PC++
	c.Steps++

	if err := c.exec(in); err != nil {
		return c.fault(in, err)
	}
	return nil
}

func (c *CPU) exec(in *instr) error {
	ops := in.ops
	switch in.mnemonic {
	case "nop":
	case "push":
		v, err := c.value(ops[0], 8)
		if err != nil {
			return err
		}
		return c.push(v)
	case "pop":
		v, err := c.pop()
		if err != nil {
			return err
		}
		c.setReg(ops[0], v)

	case "mov":
		dst, src := ops[0], ops[1]
		if dst.kind == opMem {
			size := dst.size
			if size == 0 {
				size = src.size
			}
			if size == 0 {
				size = 8
			}
			v, err := c.value(src, size)
			if err != nil {
				return err
			}
			return c.Write(c.effectiveAddr(dst), size, v)
		}
		v, err := c.value(src, dst.size)
		if err != nil {
			return err
		}
		c.setReg(dst, v)
	case "movsxd":
		v, err := c.value(ops[1], 4)
		if err != nil {
			return err
		}
		c.setReg(ops[0], uint64(int64(int32(v))))
	case "movzb":
		v, err := c.value(ops[1], 1)
		if err != nil {
			return err
		}
		c.setReg(ops[0], v&0xff)
	case "lea":
		if ops[1].kind != opMem {
			return fmt.Errorf("lea needs a memory operand")
		}
		c.setReg(ops[0], c.effectiveAddr(ops[1]))

	case "add", "sub", "imul":
		a, err := c.value(ops[0], 8)
		if err != nil {
			return err
		}
		b, err := c.value(ops[1], 8)
		if err != nil {
			return err
		}
		switch in.mnemonic {
		case "add":
			c.setReg(ops[0], a+b)
		case "sub":
			c.setReg(ops[0], a-b)
		default:
			c.setReg(ops[0], uint64(int64(a)*int64(b)))
		}
	case "cqo":
		if int64(c.Regs[rax]) < 0 {
			c.Regs[rdx] = ^uint64(0)
		} else {
			c.Regs[rdx] = 0
		}
	case "idiv":
		d, err := c.value(ops[0], 8)
		if err != nil {
			return err
		}
		if d == 0 {
			return ErrDivideByZero
		}
		// rdx:rax is always a sign extension of rax here
		n := int64(c.Regs[rax])
		c.Regs[rax] = uint64(n / int64(d))
		c.Regs[rdx] = uint64(n % int64(d))

	case "cmp":
		a, err := c.value(ops[0], 8)
		if err != nil {
			return err
		}
		b, err := c.value(ops[1], 8)
		if err != nil {
			return err
		}
		c.cmpA, c.cmpB = int64(a), int64(b)
	case "sete", "setne", "setl", "setle", "setg", "setge":
		var v uint64
		if c.condition(in.mnemonic[3:]) {
			v = 1
		}
		c.setReg(ops[0], v)

	case "jmp":
		c.PC = ops[0].target
	case "je", "jne":
		if c.condition(in.mnemonic[1:]) {
			c.PC = ops[0].target
		}
	case "call":
		if err := c.push(uint64(c.PC)); err != nil {
			return err
		}
		c.PC = ops[0].target
	case "ret":
		addr, err := c.pop()
		if err != nil {
			return err
		}
		if addr == returnSentinel {
			c.Halted = true
			return nil
		}
		c.PC = int(addr)
	default:
		return fmt.Errorf("unsupported instruction")
	}
	return nil
}

func (c *CPU) condition(cc string) bool {
	switch cc {
	case "e":
		return c.cmpA == c.cmpB
	case "ne":
		return c.cmpA != c.cmpB
	case "l":
		return c.cmpA < c.cmpB
	case "le":
		return c.cmpA <= c.cmpB
	case "g":
		return c.cmpA > c.cmpB
	case "ge":
		return c.cmpA >= c.cmpB
	}
	return false
}
