// Command loxvm is the command-line front end for the Lox bytecode
// interpreter: run a script file, or start an interactive REPL when no
// file is given.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kristofer/loxvm/pkg/vm"
)

const version = "0.1.0"

// Exit codes, per the interpreter's external interface: 0 success, 64
// misuse of the command line, 65 a compile-time error, 70 a runtime error.
const (
	exitOK        = 0
	exitUsage     = 64
	exitCompile   = 65
	exitRuntime   = 70
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitUsage)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "loxvm [script]",
		Short:   "loxvm is a bytecode interpreter for Lox",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				runREPL()
				return nil
			}
			return runFile(args[0])
		},
	}
	root.AddCommand(newRunCmd(), newReplCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Run a Lox source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0])
		},
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runREPL()
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the loxvm version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("loxvm version %s\n", version)
		},
	}
}

// runFile reads, compiles, and runs a Lox source file, exiting with the
// status code the interpreter's external interface mandates: 65 for a
// compile error, 70 for a runtime error, 0 otherwise. A file that cannot
// be read exits with 64.
func runFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(exitUsage)
	}

	v := vm.New()
	runErr := v.Interpret(string(data))
	fmt.Print(v.TakeOutput())

	switch runErr.(type) {
	case nil:
		return nil
	case *vm.CompileErrors:
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(exitCompile)
	default:
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(exitRuntime)
	}
	return nil
}

// runREPL starts an interactive Read-Eval-Print Loop. A persistent VM
// means global state (variables, functions, classes) carries over
// between inputs; a runtime or compile error in one line is reported but
// does not end the session.
func runREPL() {
	fmt.Printf("loxvm %s\n", version)
	fmt.Println("Type Ctrl+D to exit.")

	v := vm.New()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		if err := v.Interpret(line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		fmt.Print(v.TakeOutput())
	}
}
