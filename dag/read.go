// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Reading DAG functions from S-expressions.
//
//  (function name
//    (block 0 (succs 1)
//      (def a (load i32 (fiaddr (slot i32 0))))
//      (store (fiaddr (slot i32 1)) (add i32 a (imm i32 1))))
//    (block 1
//      (ret (vreg i32 0))))
//
// Operands are (imm <type> <n>), (reg <name>), (vreg <type> <n>),
// (slot <type> <n>), (bb <n>), (cc <name>), (global <name>), (none),
// a name bound by 'def', or an IR operation (<opcode> [<type>] <arg> ...).
// A 'def' binds a name without adding a statement; everything else in
// a block is a statement, in order.

package dag

import (
	"fmt"

	"github.com/s48/isel/target"
	"github.com/s48/isel/util"

	"tlog.app/go/errors"
)

func ReadFunctions(text string, tgt *target.TargetT) ([]*FunctionT, error) {
	sexps, err := util.ParseSExps(text)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	result := []*FunctionT{}
	for _, sexp := range sexps {
		fn, err := readFunction(sexp, tgt)
		if err != nil {
			return nil, err
		}
		result = append(result, fn)
	}
	return result, nil
}

type readerT struct {
	fn         *FunctionT
	bindings   map[string]NodeIdT
	vregs      map[int64]target.RegisterIdT
	statements util.SetT[NodeIdT]
}

func syntaxError(sexp *util.SExpT, format string, args ...any) error {
	return errors.New("line %d: %s: %s", sexp.Line, fmt.Sprintf(format, args...), sexp)
}

func readFunction(sexp *util.SExpT, tgt *target.TargetT) (*FunctionT, error) {
	if sexp.Head() != "function" || len(sexp.List) < 2 || sexp.List[1].Kind != util.SExpSymbol {
		return nil, syntaxError(sexp, "expected (function <name> ...)")
	}
	reader := &readerT{
		fn:         NewFunction(sexp.List[1].Symbol, tgt),
		bindings:   map[string]NodeIdT{},
		vregs:      map[int64]target.RegisterIdT{},
		statements: util.NewSet[NodeIdT](),
	}
	blockForms := sexp.List[2:]
	for range blockForms {
		reader.fn.AddBlock()
	}
	for i, form := range blockForms {
		if err := reader.readBlock(reader.fn.Blocks[i], form); err != nil {
			return nil, errors.Wrap(err, "function %s", reader.fn.Name)
		}
	}
	return reader.fn, nil
}

func (reader *readerT) readBlock(block *BlockT, sexp *util.SExpT) error {
	if sexp.Head() != "block" || len(sexp.List) < 2 ||
		sexp.List[1].Kind != util.SExpInt || sexp.List[1].Integer != int64(block.Id) {
		return syntaxError(sexp, "expected (block %d ...)", block.Id)
	}
	fn := reader.fn
	for _, item := range sexp.List[2:] {
		switch item.Head() {
		case "succs":
			for _, succ := range item.List[1:] {
				if succ.Kind != util.SExpInt || succ.Integer < 0 || int64(len(fn.Blocks)) <= succ.Integer {
					return syntaxError(item, "bad successor %s", succ)
				}
				fn.AddEdge(block, fn.Blocks[succ.Integer])
			}
		case "def":
			if len(item.List) != 3 || item.List[1].Kind != util.SExpSymbol {
				return syntaxError(item, "expected (def <name> <value>)")
			}
			value, err := reader.readValue(item.List[2])
			if err != nil {
				return err
			}
			reader.bindings[item.List[1].Symbol] = value
		default:
			value, err := reader.readValue(item)
			if err != nil {
				return err
			}
			if !fn.Pool.IsIR(value) {
				return syntaxError(item, "statement is not an operation")
			}
			if reader.statements.Contains(value) {
				return syntaxError(item, "repeated statement")
			}
			reader.statements.Add(value)
			fn.AddStatement(block, value)
		}
	}
	return nil
}

func (reader *readerT) readType(sexp *util.SExpT) (target.MVTypeT, error) {
	if sexp.Kind == util.SExpSymbol {
		if ty, ok := target.ParseMVType(sexp.Symbol); ok {
			return ty, nil
		}
	}
	return target.Void, syntaxError(sexp, "expected a type")
}

func (reader *readerT) readValue(sexp *util.SExpT) (NodeIdT, error) {
	pool := reader.fn.Pool
	tgt := reader.fn.Regs.Target
	switch sexp.Kind {
	case util.SExpSymbol:
		if value, found := reader.bindings[sexp.Symbol]; found {
			return value, nil
		}
		return NoNode, syntaxError(sexp, "unbound name")
	case util.SExpInt:
		return NoNode, syntaxError(sexp, "bare integer")
	}
	if len(sexp.List) == 0 {
		return NoNode, syntaxError(sexp, "empty list")
	}
	args := sexp.List[1:]
	oneArg := func() (*util.SExpT, error) {
		if len(args) != 1 {
			return nil, syntaxError(sexp, "expected one argument")
		}
		return args[0], nil
	}
	typedInt := func() (target.MVTypeT, int64, error) {
		if len(args) != 2 || args[1].Kind != util.SExpInt {
			return target.Void, 0, syntaxError(sexp, "expected <type> <integer>")
		}
		ty, err := reader.readType(args[0])
		return ty, args[1].Integer, err
	}

	switch head := sexp.Head(); head {
	case "imm":
		ty, value, err := typedInt()
		if err != nil {
			return NoNode, err
		}
		switch ty {
		case target.I8:
			return pool.ImmOf(ImmediateT{Kind: Int8, Int: value}), nil
		case target.I32:
			return pool.ImmOf(ImmediateT{Kind: Int32, Int: value}), nil
		case target.I64:
			return pool.ImmOf(ImmediateT{Kind: Int64, Int: value}), nil
		case target.F64:
			return pool.ImmOf(ImmediateT{Kind: F64, Float: float64(value)}), nil
		}
		return NoNode, syntaxError(sexp, "no immediates of type %s", ty)
	case "slot":
		ty, index, err := typedInt()
		if err != nil {
			return NoNode, err
		}
		return pool.SlotOf(int(index), ty), nil
	case "vreg":
		ty, n, err := typedInt()
		if err != nil {
			return NoNode, err
		}
		reg, found := reader.vregs[n]
		if !found {
			class := tgt.TypeClass(ty)
			if class == nil {
				return NoNode, syntaxError(sexp, "no register class for %s", ty)
			}
			reg = reader.fn.Regs.NewVirtReg(class)
			reader.vregs[n] = reg
		}
		return pool.Reg(reg), nil
	case "reg":
		arg, err := oneArg()
		if err != nil {
			return NoNode, err
		}
		reg := tgt.Register(arg.Symbol)
		if arg.Kind != util.SExpSymbol || reg == target.NoRegister {
			return NoNode, syntaxError(sexp, "unknown register")
		}
		return pool.Reg(reg), nil
	case "bb":
		arg, err := oneArg()
		if err != nil {
			return NoNode, err
		}
		if arg.Kind != util.SExpInt || arg.Integer < 0 || int64(len(reader.fn.Blocks)) <= arg.Integer {
			return NoNode, syntaxError(sexp, "bad block")
		}
		return pool.BlockRef(int(arg.Integer)), nil
	case "cc":
		arg, err := oneArg()
		if err != nil {
			return NoNode, err
		}
		cc, ok := parseCondCode(arg.Symbol)
		if arg.Kind != util.SExpSymbol || !ok {
			return NoNode, syntaxError(sexp, "unknown condition code")
		}
		return pool.CondOf(cc), nil
	case "global":
		arg, err := oneArg()
		if err != nil {
			return NoNode, err
		}
		if arg.Kind != util.SExpSymbol {
			return NoNode, syntaxError(sexp, "expected a symbol")
		}
		return pool.GlobalOf(arg.Symbol), nil
	case "none":
		return pool.None(), nil
	default:
		opcode, ok := parseIROpcode(head)
		if !ok {
			return NoNode, syntaxError(sexp, "unknown operation")
		}
		ty := target.Void
		if 0 < len(args) && args[0].Kind == util.SExpSymbol {
			if parsed, ok := target.ParseMVType(args[0].Symbol); ok {
				ty = parsed
				args = args[1:]
			}
		}
		operands := make([]NodeIdT, len(args))
		for i, arg := range args {
			operand, err := reader.readValue(arg)
			if err != nil {
				return NoNode, err
			}
			operands[i] = operand
		}
		return pool.IR(opcode, ty, operands...), nil
	}
}
