// Package main provides the Kiln command line tool.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kiln-ml/kiln/internal/kmodel"
	"github.com/kiln-ml/kiln/runtime"
)

const version = "v0.1.0-dev"

func main() {
	root := &cobra.Command{
		Use:          "kiln",
		Short:        "Kiln model compiler tooling for embedded accelerators",
		SilenceUsage: true,
	}
	root.AddCommand(newVersionCmd(), newInspectCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Kiln %s\n", version)
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <model.kmodel>",
		Short: "Dump a compiled kmodel's header, tables and page layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			//nolint:gosec // G304: inspecting a user-named file is the point.
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			m, err := runtime.Load(f)
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			printModel(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

func printModel(out io.Writer, m *runtime.Model) {
	bold := color.New(color.Bold)
	bold.Fprintln(out, "Model header")
	fmt.Fprintf(out, "  version:       %d\n", m.Header.Version)
	fmt.Fprintf(out, "  target:        %d\n", m.Header.Target)
	fmt.Fprintf(out, "  flags:         %#x (paging: %v)\n", m.Header.Flags, m.Paged())
	fmt.Fprintf(out, "  constants:     %d B\n", m.Header.Constants)
	fmt.Fprintf(out, "  working mem:   %d B\n", m.Header.MainMem)
	fmt.Fprintf(out, "  nodes:         %d\n", m.Header.Nodes)

	bold.Fprintln(out, "Inputs")
	for i, rng := range m.Inputs {
		shape := m.InputShapes[i]
		fmt.Fprintf(out, "  [%d] space=%d dtype=%d offset=%d size=%d shape=%v\n",
			i, rng.MemoryType, rng.DataType, rng.Start, rng.Size, shape.Dims[:shape.Rank])
	}
	bold.Fprintln(out, "Outputs")
	for i, rng := range m.Outputs {
		fmt.Fprintf(out, "  [%d] space=%d dtype=%d offset=%d size=%d\n",
			i, rng.MemoryType, rng.DataType, rng.Start, rng.Size)
	}

	bold.Fprintln(out, "Node headers")
	for i, hdr := range m.NodeHeaders {
		fmt.Fprintf(out, "  [%d] opcode=%d body=%d B\n", i, hdr.OpCode, hdr.BodySize)
	}

	if !m.Paged() {
		return
	}
	bold.Fprintln(out, "Pages")
	fmt.Fprintf(out, "  body buffer: %d B (%d/%d pages)\n",
		m.PageTable.BodyBufferSize, m.PageTable.NumPages, m.PageTable.MaxPages)
	persistent := color.New(color.FgGreen)
	swap := color.New(color.FgYellow)
	for _, page := range m.Pages {
		c := persistent
		if page.Type == kmodel.PageSwap {
			c = swap
		}
		c.Fprintf(out, "  [%d] %-10s nodes %d-%d offset=%d size=%d B\n",
			page.Index, kmodel.PageTypeName(page.Type), page.Begin, page.End,
			page.OffsetBytes, page.SizeBytes)
	}
}
