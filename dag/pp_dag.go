// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Printer for DAG functions.  The output uses the same S-expression
// syntax that ReadFunctions accepts, except that machine nodes are
// printed with their opcode and register class.

package dag

import (
	"fmt"
	"io"
	"strings"

	"github.com/s48/isel/target"
	"github.com/s48/isel/util"
)

func PpFunction(writer io.Writer, fn *FunctionT) {
	fmt.Fprintf(writer, "(function %s", fn.Name)
	for _, block := range fn.Blocks {
		fmt.Fprintf(writer, "\n  (block %d", block.Id)
		if len(block.Succs) != 0 {
			fmt.Fprintf(writer, " (succs")
			for _, succ := range util.Sorted(block.Succs) {
				fmt.Fprintf(writer, " %d", succ)
			}
			fmt.Fprintf(writer, ")")
		}
		for _, id := range fn.Statements(block) {
			fmt.Fprintf(writer, "\n    %s", fn.NodeString(id))
		}
		fmt.Fprintf(writer, ")")
	}
	fmt.Fprintf(writer, ")\n")
}

func (fn *FunctionT) NodeString(id NodeIdT) string {
	var out strings.Builder
	fn.writeNode(&out, id)
	return out.String()
}

func (fn *FunctionT) writeNode(out *strings.Builder, id NodeIdT) {
	writeArgs := func(args []NodeIdT) {
		for _, arg := range args {
			out.WriteString(" ")
			fn.writeNode(out, arg)
		}
		out.WriteString(")")
	}
	switch node := fn.Pool.Node(id).(type) {
	case *IRNodeT:
		fmt.Fprintf(out, "(%s", node.Opcode)
		if node.Type != target.Void {
			fmt.Fprintf(out, " %s", node.Type)
		}
		writeArgs(node.Args)
	case *MachineNodeT:
		fmt.Fprintf(out, "(%s", node.Opcode)
		if node.RegClass != nil {
			fmt.Fprintf(out, ":%s", node.RegClass.Name)
		} else if node.FixedDef != target.NoRegister {
			fmt.Fprintf(out, ":%s", fn.Regs.Name(node.FixedDef))
		}
		writeArgs(node.Args)
	case *OperandNodeT:
		switch node.Kind {
		case ImmOperand:
			fmt.Fprintf(out, "(imm %s)", node.Imm)
		case RegOperand:
			if node.Reg.IsVirtual() {
				fmt.Fprintf(out, "(vreg %s %s)", fn.Regs.Class(node.Reg), fn.Regs.Name(node.Reg))
			} else {
				fmt.Fprintf(out, "(reg %s)", fn.Regs.Name(node.Reg))
			}
		case SlotOperand:
			fmt.Fprintf(out, "(slot %s %d)", node.Slot.Type, node.Slot.Index)
		case BlockOperand:
			fmt.Fprintf(out, "(bb %d)", node.Block)
		case CondOperand:
			fmt.Fprintf(out, "(cc %s)", node.Cond)
		case MemOperand:
			out.WriteString("(mem ")
			fn.writeNode(out, node.Mem.Base)
			out.WriteString(" ")
			fn.writeNode(out, node.Mem.Slot)
			if node.Mem.Offset != 0 {
				fmt.Fprintf(out, " %d", node.Mem.Offset)
			}
			out.WriteString(")")
		case GlobalOperand:
			fmt.Fprintf(out, "(global %s)", node.Global)
		}
	case *NoneNodeT:
		out.WriteString("(none)")
	}
}
