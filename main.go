// Command quartzc compiles Quartz source into bytecode and prints its
// disassembly.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quartzlang/quartz/codegen"
	"github.com/quartzlang/quartz/lexer"
	"github.com/quartzlang/quartz/parser"
	"github.com/quartzlang/quartz/repl"
)

const version = "0.1.0"

// printUsage displays custom usage information
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `Quartz Compiler v%s

USAGE:
    %s [OPTIONS]

DESCRIPTION:
    Quartz compiles Quartz source code to bytecode and prints the resulting
    IREP's disassembly. Without any flags, it starts an interactive console
    that disassembles each line (or block) of input as you type it.

OPTIONS:
    -f, --file <path>       Compile a Quartz script file
    -e, --eval <code>       Compile a Quartz expression and print its IREP
    -n, --no-optimize       Disable the peephole optimizer
    -v, --version           Show version information
    -h, --help              Show this help message

EXAMPLES:
    # Start interactive console
    %s

    # Compile a script file
    %s -f script.qz

    # Compile an expression
    %s -e "x = 1 + 2; x * 3"

`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	// Set custom usage function
	flag.Usage = printUsage

	// Define command-line flags
	fileFlag := flag.String("file", "", "Compile a Quartz script file")
	evalFlag := flag.String("eval", "", "Compile a Quartz expression and print its IREP")
	noOptFlag := flag.Bool("no-optimize", false, "Disable the peephole optimizer")
	versionFlag := flag.Bool("version", false, "Show version information")

	// Define short flag aliases
	flag.StringVar(fileFlag, "f", "", "Compile a Quartz script file")
	flag.StringVar(evalFlag, "e", "", "Compile a Quartz expression and print its IREP")
	flag.BoolVar(noOptFlag, "n", false, "Disable the peephole optimizer")
	flag.BoolVar(versionFlag, "v", false, "Show version information")

	// Parse command-line flags
	flag.Parse()

	// Show version information if requested
	if *versionFlag {
		fmt.Printf("Quartz compiler v%s\n", version)
		return
	}

	// Compile a file if specified
	if *fileFlag != "" {
		compileFile(*fileFlag, *noOptFlag)
		return
	}

	// Compile an expression if specified
	if *evalFlag != "" {
		compileSource(*evalFlag, *evalFlag, *noOptFlag)
		return
	}

	fmt.Println("Quartz disassembly console. Type Quartz code, Ctrl+D or Ctrl+C to exit.")

	// Start the console
	repl.Start(os.Stdin, os.Stdout)
}

// compileFile reads and compiles a Quartz script file, printing its
// disassembly.
func compileFile(filename string, noOptimize bool) {
	cleaned := filepath.Clean(filename)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		fmt.Printf("error resolving path: %s\n", err)
		os.Exit(1)
	}

	//nolint:gosec // path comes from a trusted CLI flag, not untrusted input
	content, err := os.ReadFile(absolute)
	if err != nil {
		fmt.Printf("error reading file: %s\n", err)
		os.Exit(1)
	}
	compileSource(string(content), filepath.Base(absolute), noOptimize)
}

// compileSource lexes, parses, and compiles src, printing the resulting
// IREP's disassembly (or the parse/codegen errors, to stderr).
func compileSource(src, filename string, noOptimize bool) {
	l := lexer.New(src, 0)
	p := parser.New(l)
	prog := p.ParseProgram()

	if errs := p.Errors(); len(errs) > 0 {
		printParserErrors(errs)
		os.Exit(1)
	}

	ir, err := codegen.Generate(prog, codegen.Options{Filename: filename, NoOptimize: noOptimize})
	if err != nil {
		fmt.Fprintf(os.Stderr, "codegen error: %s\n", err)
		os.Exit(1)
	}
	fmt.Print(ir.Disassemble())
}

// printParserErrors prints parser errors to stderr
func printParserErrors(errors []string) {
	_, _ = fmt.Fprintln(os.Stderr, "parse errors:")
	for _, msg := range errors {
		_, _ = fmt.Fprintln(os.Stderr, "\t"+msg)
	}
}
