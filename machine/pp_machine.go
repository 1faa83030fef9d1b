// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package machine

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/tools/container/intsets"
)

func PpFunction(writer io.Writer, fn *FunctionT) {
	fmt.Fprintf(writer, "%s:\n", fn.Name)
	for _, block := range fn.Blocks {
		fmt.Fprintf(writer, "block %d", block.Id)
		if len(block.Preds) != 0 {
			fmt.Fprintf(writer, " preds")
			for _, pred := range SortedBlocks(block.Preds) {
				fmt.Fprintf(writer, " %d", pred.Id)
			}
		}
		fmt.Fprintf(writer, "\n")
		live := block.Liveness
		fmt.Fprintf(writer, "  ; in %s out %s def %s", fn.regSetString(&live.LiveIn),
			fn.regSetString(&live.LiveOut), fn.regSetString(&live.Def))
		if live.HasCall {
			fmt.Fprintf(writer, " call")
		}
		fmt.Fprintf(writer, "\n")
		for _, inst := range block.Insts {
			fmt.Fprintf(writer, "  %s\n", fn.InstString(inst))
		}
	}
}

func (fn *FunctionT) regSetString(set *intsets.Sparse) string {
	names := []string{}
	for _, reg := range Registers(set) {
		names = append(names, fn.Regs.Name(reg))
	}
	return "{" + strings.Join(names, " ") + "}"
}

func (fn *FunctionT) InstString(inst *InstT) string {
	var out strings.Builder
	for i, reg := range inst.Def {
		if i != 0 {
			out.WriteString(", ")
		}
		out.WriteString(fn.Regs.Name(reg))
	}
	if len(inst.Def) != 0 {
		out.WriteString(" = ")
	}
	out.WriteString(inst.Opcode.String())
	for i, operand := range inst.Operands {
		if i == 0 {
			out.WriteString(" ")
		} else {
			out.WriteString(", ")
		}
		out.WriteString(fn.operandString(operand))
	}
	if len(inst.ImpDef) != 0 {
		fmt.Fprintf(&out, " ; %d implicit defs", len(inst.ImpDef))
	}
	return out.String()
}

func (fn *FunctionT) operandString(operand OperandT) string {
	switch operand.Kind {
	case RegOperand:
		return fn.Regs.Name(operand.Reg)
	case ConstOperand:
		if operand.IsF64 {
			return fmt.Sprintf("$%g", operand.Float)
		}
		return fmt.Sprintf("$%d", operand.Const)
	case FrameIndexOperand:
		return fmt.Sprintf("fi#%d", operand.Slot)
	case MemOperand:
		if operand.Offset != 0 {
			return fmt.Sprintf("[%s+fi#%d%+d]", fn.Regs.Name(operand.Reg), operand.Slot, operand.Offset)
		}
		return fmt.Sprintf("[%s+fi#%d]", fn.Regs.Name(operand.Reg), operand.Slot)
	case BranchOperand:
		return fmt.Sprintf("block%d", operand.Block)
	case GlobalOperand:
		return operand.Global
	case CondOperand:
		return operand.Cond
	}
	return "<bad operand>"
}
