package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ki11erRabbit/rowan/api/classfile"
	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/linker"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <classfile.json>",
	Short: "Print a human-readable disassembly of a JSON class file's bytecode methods",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		cf, err := classfile.DecodeJSON(f)
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("decoding %s: %w", args[0], err)
		}
		if closeErr != nil {
			return closeErr
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "class %s\n", cf.Name)

		if len(cf.StaticInit) > 0 {
			fmt.Fprintln(out, "static_init:")
			if err := disasmBody(out, cf.StaticInit); err != nil {
				return err
			}
		}
		if err := disasmMethods(out, "own_methods", cf.OwnMethods); err != nil {
			return err
		}
		if err := disasmMethods(out, "static_methods", cf.StaticMethods); err != nil {
			return err
		}
		for _, ov := range cf.Overrides {
			if err := disasmMethods(out, fmt.Sprintf("overrides %s", ov.Ancestor), ov.Methods); err != nil {
				return err
			}
		}
		return nil
	},
}

func disasmMethods(out io.Writer, label string, methods []linker.RawMethod) error {
	for _, m := range methods {
		switch m.Location.Kind {
		case linker.LocationBytecode:
			fmt.Fprintf(out, "%s %s(%s) -> %s:\n", label, m.Name, argTypesString(m.ArgTypes), m.ReturnType)
			if err := disasmBody(out, m.Location.Bytes); err != nil {
				return err
			}
		case linker.LocationNative:
			fmt.Fprintf(out, "%s %s(%s) -> %s: native %q\n", label, m.Name, argTypesString(m.ArgTypes), m.ReturnType, m.Location.NativeExport)
		default:
			fmt.Fprintf(out, "%s %s(%s) -> %s: <blank>\n", label, m.Name, argTypesString(m.ArgTypes), m.ReturnType)
		}
	}
	return nil
}

func argTypesString(tags []bytecode.TypeTag) string {
	s := ""
	for i, t := range tags {
		if i > 0 {
			s += ", "
		}
		s += t.String()
	}
	return s
}

func disasmBody(out io.Writer, body []byte) error {
	ins, err := bytecode.DecodeAll(body)
	if err != nil {
		return fmt.Errorf("disasm: %w", err)
	}
	for i, in := range ins {
		fmt.Fprintf(out, "  %4d  %-20s %x\n", i, in.Op, in.Operands)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}
