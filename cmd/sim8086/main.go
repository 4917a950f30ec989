// Command sim8086 disassembles and simulates 8086 instruction streams.
//
// Grounded on oisee-z80-optimizer/cmd/z80opt/main.go's cobra root-command +
// subcommand layout (one cobra.Command per verb, flags bound with
// Flags().*Var, RunE returning wrapped errors) and on
// IntuitionAmiga-IntuitionEngine/terminal_host.go's golang.org/x/term usage
// for interactive-terminal detection. Diagnostics go through log/slog
// rather than bare fmt.Fprintf to stderr, following debug_cpu_x86.go's
// separation of execution from the diagnostic/monitor layer — the core
// packages never log themselves, only this command does.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/intuitionamiga/sim8086/pkg/clocks"
	"github.com/intuitionamiga/sim8086/pkg/decoder"
	"github.com/intuitionamiga/sim8086/pkg/inst"
	"github.com/intuitionamiga/sim8086/pkg/output"
	"github.com/intuitionamiga/sim8086/pkg/sim"
	"github.com/intuitionamiga/sim8086/pkg/validate"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func main() {
	rootCmd := &cobra.Command{
		Use:   "sim8086",
		Short: "sim8086 — an 8086 instruction decoder and simulator",
	}

	var disasmOut string
	var noColor bool

	disasmCmd := &cobra.Command{
		Use:   "disasm <input-file>",
		Short: "Disassemble a raw 8086 instruction stream to NASM-compatible text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(args[0], disasmOut, noColor)
		},
	}
	disasmCmd.Flags().StringVarP(&disasmOut, "output", "o", "", "write disassembly to this file instead of stdout")
	disasmCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI highlighting even on an interactive terminal")

	var simOut string
	var traceFlag bool
	var procFlag string
	var limitFlag int

	simCmd := &cobra.Command{
		Use:   "sim <input-file>",
		Short: "Simulate a raw 8086 instruction stream and dump the register file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(args[0], simOut, traceFlag, procFlag, limitFlag)
		},
	}
	simCmd.Flags().StringVarP(&simOut, "output", "o", "", "write the trace/dump to this file instead of stdout")
	simCmd.Flags().BoolVar(&traceFlag, "trace", false, "interleave per-instruction disassembly with the register mutations it caused")
	simCmd.Flags().StringVar(&procFlag, "proc", "8086", "processor model for clock estimation: 8086 or 8088")
	simCmd.Flags().IntVar(&limitFlag, "limit", 1_000_000, "maximum instructions to execute before stopping")

	rootCmd.AddCommand(disasmCmd, simCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("sim8086 failed", "err", err)
		os.Exit(1)
	}
}

func openInput(path string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return buf, nil
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func runDisasm(inputPath, outputPath string, noColor bool) error {
	buf, err := openInput(inputPath)
	if err != nil {
		return err
	}
	w, closeW, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer closeW()

	// ANSI highlighting is only ever applied to an interactive stdout, never
	// to -o file output, so a NASM round-trip through -o stays byte-faithful.
	highlight := !noColor && outputPath == "" && term.IsTerminal(int(os.Stdout.Fd()))

	fmt.Fprintf(w, ";; %s disassembly ;;\n", filepath.Base(inputPath))
	fmt.Fprintln(w, "bits 16")

	src := decoder.NewByteSource(buf)
	d := decoder.NewDecoder()
	offset := 0
	failed := false
	for offset < len(buf) {
		i, n, err := d.Next(src, offset)
		if err != nil {
			logger.Error("decode failed", "offset", offset, "err", err)
			failed = true
			break
		}
		if i.Op == inst.Lock || i.Op == inst.Rep || i.Op == inst.Segment {
			offset += n
			continue
		}
		if ok, reason := validate.Instruction(i); !ok {
			logger.Error("invalid instruction", "offset", offset, "reason", reason)
			failed = true
			break
		}
		text := output.Format(i)
		if highlight {
			text = "\033[36m" + text + "\033[0m"
		}
		fmt.Fprintln(w, text)
		offset += n
	}
	if failed {
		os.Exit(1)
	}
	return nil
}

func runSim(inputPath, outputPath string, trace bool, procFlag string, limit int) error {
	buf, err := openInput(inputPath)
	if err != nil {
		return err
	}
	w, closeW, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer closeW()

	var proc clocks.ProcType
	switch procFlag {
	case "8086":
		proc = clocks.Proc8086
	case "8088":
		proc = clocks.Proc8088
	default:
		return fmt.Errorf("unknown -proc value %q: want 8086 or 8088", procFlag)
	}

	s := sim.New()
	s.LoadImage(buf)
	dec := decoder.NewDecoder()

	var steps int
	var fault sim.Fault
	var totalCycles uint32

	if trace {
		// The simulation pass and the line-printing passes run concurrently:
		// Run's callbacks push onto two 64-entry buffered channels as it
		// decodes/executes, one goroutine per channel drains and formats
		// them, and errgroup.Wait joins all three. A printing stall blocks
		// Run only once a channel's buffer is full.
		disasmCh := make(chan sim.DisasmTrace, 64)
		regCh := make(chan sim.RegisterMutation, 64)
		var g errgroup.Group

		s.Trace |= sim.TraceDisassembly | sim.TraceDataMutation
		s.OnDisasm = func(t sim.DisasmTrace) { disasmCh <- t }
		s.OnReg = func(m sim.RegisterMutation) { regCh <- m }

		g.Go(func() error {
			steps, fault = s.Run(dec, limit)
			close(disasmCh)
			close(regCh)
			return nil
		})
		g.Go(func() error {
			for t := range disasmCh {
				cycles, err := clocks.Estimate(inst.InstructionMetadata{Instr: t.Instr}, proc)
				if err == nil {
					totalCycles += cycles
				}
				fmt.Fprintf(w, "%06x  %-32s ; +%d cycles\n", t.Offset, output.Format(t.Instr), cycles)
			}
			return nil
		})
		g.Go(func() error {
			for m := range regCh {
				fmt.Fprintf(w, "        %s: %04x -> %04x\n", m.Access.Name(), m.OldWord, m.NewWord)
			}
			return nil
		})
		_ = g.Wait()
	} else {
		steps, fault = s.Run(dec, limit)
	}

	fmt.Fprintf(w, "executed %d instruction(s), stopped: %s\n", steps, fault)
	if trace {
		fmt.Fprintf(w, "estimated cycles: %d\n", totalCycles)
	}
	fmt.Fprintln(w, "registers:")
	dump := s.Dump()
	for _, name := range []string{"ax", "bx", "cx", "dx", "sp", "bp", "si", "di", "es", "cs", "ss", "ds", "ip", "flags"} {
		fmt.Fprintf(w, "  %-6s %04x\n", name, dump[name])
	}

	if fault == sim.FaultUnimplementedOp || fault == sim.FaultDecodeError {
		os.Exit(1)
	}
	return nil
}
