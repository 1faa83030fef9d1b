// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Compile test files.
//  --dag <file>     Selects instructions for the functions in 'test/<file>.dag'
//                   and prints the machine code, liveness, and live intervals.
//  --func <name>    Only uses the named function.
//  --target <file>  Reads the target description from a YAML file instead
//                   of using the built-in x86-64 one.
//  --v <topics>     Enables debug logging for a comma-separated list of
//                   topics: isel, convert, liveness, matrix.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/s48/isel/dag"
	"github.com/s48/isel/isel"
	"github.com/s48/isel/liveness"
	"github.com/s48/isel/machine"
	"github.com/s48/isel/target"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

func main() {
	dagFilename := flag.String("dag", "", "DAG file")
	dagFunction := flag.String("func", "", "function name")
	targetFilename := flag.String("target", "", "target description")
	verbosity := flag.String("v", "", "debug topics")
	flag.Parse()

	tlog.SetVerbosity(*verbosity)

	if err := run(*dagFilename, *dagFunction, *targetFilename); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(dagFilename string, dagFunction string, targetFilename string) error {
	tgt := target.DefaultTarget()
	if targetFilename != "" {
		var err error
		tgt, err = target.ReadTarget(targetFilename)
		if err != nil {
			return err
		}
	}

	source := "test/" + dagFilename + ".dag"
	in, err := os.ReadFile(source)
	if err != nil {
		return errors.Wrap(err, "read %s", source)
	}
	fns, err := dag.ReadFunctions(string(in), tgt)
	if err != nil {
		return errors.Wrap(err, "%s", source)
	}

	selected := []*dag.FunctionT{}
	for _, fn := range fns {
		if dagFunction == "" || dagFunction == fn.Name {
			selected = append(selected, fn)
		}
	}
	if len(selected) == 0 {
		return errors.New("%s: no function named '%s'", source, dagFunction)
	}

	// Each function is compiled by its own goroutine, which owns all
	// of that function's data.
	outputs := make([]string, len(selected))
	group, ctx := errgroup.WithContext(context.Background())
	patterns := isel.X86Patterns(tgt)
	for i, fn := range selected {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			output, err := compile(fn, patterns)
			outputs[i] = output
			return err
		})
	}
	err = group.Wait()
	for _, output := range outputs {
		fmt.Print(output)
	}
	return err
}

// Consistency violations in the compiler are panics.  Here they are
// turned into errors so that the other functions' output still gets
// printed.
func compile(fn *dag.FunctionT, patterns []*isel.PatT) (output string, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = errors.New("%s: %v", fn.Name, x)
		}
	}()
	var out strings.Builder

	dag.PpFunction(&out, fn)
	isel.SelectFunction(fn, patterns)
	mfn := machine.Convert(fn)
	liveness.Analyze(mfn)
	matrix := liveness.BuildMatrix(mfn)
	liveness.ComputeSpillWeights(mfn, matrix)

	machine.PpFunction(&out, mfn)
	fmt.Fprintf(&out, " intervals, in allocation order:\n")
	for _, vreg := range liveness.AllocationOrder(matrix) {
		interval := matrix.Interval(vreg)
		fmt.Fprintf(&out, "  %s %s weight %.3g", mfn.Regs.Name(vreg), interval.Range, interval.SpillWeight)
		if !interval.IsSpillable {
			fmt.Fprintf(&out, " unspillable")
		}
		fmt.Fprintf(&out, "\n")
	}
	if problems := checkIntervals(mfn, matrix); len(problems) != 0 {
		return out.String(), errors.New("%s: %s", fn.Name, strings.Join(problems, "; "))
	}
	return out.String(), nil
}

// Every virtual register must be live just before each instruction
// that uses it.
func checkIntervals(fn *machine.FunctionT, matrix *liveness.LiveRegMatrixT) []string {
	problems := []string{}
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			pp := matrix.ProgramPoint(inst)
			for _, reg := range inst.UsedRegs() {
				if !reg.IsVirtual() {
					continue
				}
				interval := matrix.Interval(reg)
				if interval == nil || pp.Prev() == nil || !interval.Range.ContainsPoint(pp.Prev()) {
					problems = append(problems,
						fmt.Sprintf("%s is not live at %s (%s)", fn.Regs.Name(reg), pp, fn.InstString(inst)))
				}
			}
		}
	}
	return problems
}
