// Package emu assembles and executes the amd64 subset produced by the x86
// backend, so compiled programs can be run without a system toolchain.
package emu

import (
	"fmt"
	"strconv"
	"strings"
)

type operandKind int

const (
	opNone operandKind = iota
	opReg
	opImm
	opMem
	opLabel
)

type operand struct {
	kind operandKind
	reg  int // register index, or base register for opMem
	size int // access width in bytes for opReg and opMem
	imm  int64
	// target is the resolved instruction index for opLabel
	target int
	name   string
}

type instr struct {
	lineNo   int
	mnemonic string
	ops      []operand
}

// Program is assembled code: a flat instruction list and the index each
// label points at.
type Program struct {
	instrs []instr
	labels map[string]int
}

// Entry returns the instruction index of a label
func (p *Program) Entry(label string) (int, bool) {
	idx, ok := p.labels[label]
	return idx, ok
}

var registers = map[string]struct{ idx, size int }{}

func init() {
	names64 := []string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi"}
	names32 := []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}
	names8 := []string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil"}
	for i := range names64 {
		registers[names64[i]] = struct{ idx, size int }{i, 8}
		registers[names32[i]] = struct{ idx, size int }{i, 4}
		registers[names8[i]] = struct{ idx, size int }{i, 1}
	}
	for i := 8; i < 16; i++ {
		registers[fmt.Sprintf("r%d", i)] = struct{ idx, size int }{i, 8}
		registers[fmt.Sprintf("r%dd", i)] = struct{ idx, size int }{i, 4}
		registers[fmt.Sprintf("r%db", i)] = struct{ idx, size int }{i, 1}
	}
}

var jumpOps = map[string]bool{"jmp": true, "je": true, "jne": true, "call": true}

// Assemble resolves labels in a first pass and parses operands in a second
func Assemble(code string) (*Program, error) {
	lines := strings.Split(code, "\n")
	p := &Program{labels: make(map[string]int)}

	var parsed []instr
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " \t") {
			lbl := strings.TrimSuffix(line, ":")
			if _, exists := p.labels[lbl]; exists {
				return nil, fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			p.labels[lbl] = len(parsed)
			continue
		}
		if line[0] == '.' {
			// assembler directives carry no runtime behaviour
			continue
		}
		mnemonic, rest, _ := strings.Cut(line, " ")
		in := instr{lineNo: lineNo, mnemonic: strings.ToLower(mnemonic)}
		if rest = strings.TrimSpace(rest); rest != "" {
			for _, field := range strings.Split(rest, ",") {
				in.ops = append(in.ops, operand{name: strings.TrimSpace(field)})
			}
		}
		parsed = append(parsed, in)
	}

	for i := range parsed {
		in := &parsed[i]
		for j := range in.ops {
			op, err := p.parseOperand(in.ops[j].name, jumpOps[in.mnemonic])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", in.lineNo, err)
			}
			in.ops[j] = op
		}
		if err := checkArity(in); err != nil {
			return nil, err
		}
	}
	p.instrs = parsed
	return p, nil
}

func (p *Program) parseOperand(text string, isJump bool) (operand, error) {
	if isJump {
		target, ok := p.labels[text]
		if !ok {
			return operand{}, fmt.Errorf("undefined label '%s'", text)
		}
		return operand{kind: opLabel, target: target, name: text}, nil
	}

	if open := strings.IndexByte(text, '['); open >= 0 {
		return parseMem(text, open)
	}
	if r, ok := registers[text]; ok {
		return operand{kind: opReg, reg: r.idx, size: r.size, name: text}, nil
	}
	if v, err := strconv.ParseInt(text, 0, 64); err == nil {
		return operand{kind: opImm, imm: v, name: text}, nil
	}
	return operand{}, fmt.Errorf("invalid operand '%s'", text)
}

// parseMem parses [reg], [reg+N] and [reg-N] with an optional
// "byte|dword|qword ptr" prefix
func parseMem(text string, open int) (operand, error) {
	size := 0
	switch strings.TrimSpace(text[:open]) {
	case "":
	case "byte ptr":
		size = 1
	case "dword ptr":
		size = 4
	case "qword ptr":
		size = 8
	default:
		return operand{}, fmt.Errorf("invalid size prefix in '%s'", text)
	}
	if !strings.HasSuffix(text, "]") {
		return operand{}, fmt.Errorf("unterminated memory operand '%s'", text)
	}
	inner := strings.ReplaceAll(text[open+1:len(text)-1], " ", "")

	base, disp := inner, int64(0)
	if idx := strings.IndexAny(inner, "+-"); idx > 0 {
		v, err := strconv.ParseInt(inner[idx:], 0, 64)
		if err != nil {
			return operand{}, fmt.Errorf("invalid displacement in '%s'", text)
		}
		base, disp = inner[:idx], v
	}
	r, ok := registers[base]
	if !ok || r.size != 8 {
		return operand{}, fmt.Errorf("invalid base register in '%s'", text)
	}
	return operand{kind: opMem, reg: r.idx, size: size, imm: disp, name: text}, nil
}

var arity = map[string]int{
	"push": 1, "pop": 1, "idiv": 1, "jmp": 1, "je": 1, "jne": 1, "call": 1,
	"sete": 1, "setne": 1, "setl": 1, "setle": 1, "setg": 1, "setge": 1,
	"ret": 0, "cqo": 0, "nop": 0,
	"mov": 2, "movsxd": 2, "movzb": 2, "lea": 2, "add": 2, "sub": 2, "imul": 2, "cmp": 2,
}

func checkArity(in *instr) error {
	n, ok := arity[in.mnemonic]
	if !ok {
		return fmt.Errorf("unknown instruction on line %d: %s", in.lineNo, in.mnemonic)
	}
	if len(in.ops) != n {
		return fmt.Errorf("'%s' expects %d operands on line %d, got %d", in.mnemonic, n, in.lineNo, len(in.ops))
	}
	return nil
}
