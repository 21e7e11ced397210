// Command fwmerge merges firmware payloads into a single container and
// lists or verifies existing containers.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/vnykmshr/fwmerge/pkg/fwmerge"
)

// Exit statuses. Each format error kind has its own status.
const (
	exitOK              = 0
	exitFailure         = 1
	exitTruncated       = 2
	exitUnknownType     = 3
	exitChecksum        = 4
	exitPayloadTooLarge = 5
	exitTooLarge        = 6
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// styled is false when stdout is not a terminal.
var styled = term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec // G115: fd fits in int

func render(s lipgloss.Style, text string) string {
	if !styled {
		return text
	}
	return s.Render(text)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return exitFailure
	}

	// Classic flag form: fwmerge -o out -f sys.bin ...
	if strings.HasPrefix(args[0], "-") && !isHelp(args[0]) {
		return handleLegacy(args)
	}

	command := args[0]
	switch command {
	case "merge":
		return handleMerge(args[1:])
	case "list":
		return handleList(args[1:])
	case "inspect":
		return handleInspect(args[1:])
	case "version":
		fmt.Printf("fwmerge version %s\n", fwmerge.Version)
		return exitOK
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage(os.Stderr)
		return exitFailure
	}
}

func isHelp(arg string) bool {
	return arg == "-h" || arg == "--help"
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "fwmerge - Firmware Container Merge and Inspection Tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fwmerge <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  merge -o <out> [-f sys] [-u app] [-n net] [type=path ...]")
	fmt.Fprintln(w, "                                 Merge payloads into a container")
	fmt.Fprintln(w, "  list <container>               Verify and list container contents")
	fmt.Fprintln(w, "  inspect <container>            Verify and print contents as JSON")
	fmt.Fprintln(w, "  version                        Show version information")
	fmt.Fprintln(w, "  help                           Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -log-level <level>             debug, info, warn or error (default warn)")
	fmt.Fprintln(w, "  -max-size <bytes>              Largest container to load (default 64 MB, 0 = unlimited)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit status:")
	fmt.Fprintln(w, "  0 ok, 1 usage or I/O error, 2 truncated, 3 unknown segment type,")
	fmt.Fprintln(w, "  4 checksum mismatch, 5 payload too large, 6 container too large")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  fwmerge merge -o merged.bin -f system.bin -u app.bin -n network.bin")
	fmt.Fprintln(w, "  fwmerge merge -o merged.bin application=app.bin")
	fmt.Fprintln(w, "  fwmerge list merged.bin")
	fmt.Fprintln(w, "  fwmerge inspect merged.bin")
	fmt.Fprintln(w, "  fwmerge -l merged.bin")
}

// commonFlags holds flags shared by every command.
type commonFlags struct {
	logLevel string
	maxSize  int64
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	fs.Int64Var(&c.maxSize, "max-size", fwmerge.DefaultOptions().MaxContainerSize, "largest container to load in bytes (0 = unlimited)")
}

func (c *commonFlags) tool() (*fwmerge.Tool, error) {
	logger, err := fwmerge.NewStderrLogger(c.logLevel)
	if err != nil {
		return nil, err
	}

	opts := fwmerge.DefaultOptions()
	opts.MaxContainerSize = c.maxSize
	opts.Logger = logger
	return fwmerge.New(opts)
}

// mergeFlags holds the merge inputs under their single-letter flag names.
type mergeFlags struct {
	output string
	files  fwmerge.Files
}

func (m *mergeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&m.output, "o", "", "output of merge file")
	fs.StringVar(&m.files.System, "f", "", "system image binary file to be merged")
	fs.StringVar(&m.files.Application, "u", "", "application binary file to be merged")
	fs.StringVar(&m.files.Network, "n", "", "network information binary file to be merged")
}

func handleMerge(args []string) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	var common commonFlags
	var mf mergeFlags
	common.register(fs)
	mf.register(fs)
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	specs := append(mf.files.Specs(), fs.Args()...)
	if len(specs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one input file required")
		fmt.Fprintln(os.Stderr, "Usage: fwmerge merge -o <out> [-f sys] [-u app] [-n net] [type=path ...]")
		return exitFailure
	}
	if mf.output == "" {
		fmt.Fprintln(os.Stderr, "Error: please specify the output filename (-o)")
		return exitFailure
	}

	tool, err := common.tool()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	return runMerge(tool, mf.output, specs)
}

func runMerge(tool *fwmerge.Tool, output string, specs []string) int {
	result, err := tool.MergeSpecs(output, specs)
	if err != nil {
		return reportError("merge failed", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, render(titleStyle, "Merge Result"))
	fmt.Fprintln(w, "============")
	fmt.Fprintf(w, "Output:\t%s\n", result.Output)
	for _, d := range result.Segments {
		fmt.Fprintf(w, "Segment %d:\t%s, %s\n", d.Index+1, d.Type, sizeString(uint64(d.Length)))
	}
	fmt.Fprintf(w, "Total:\t%s\n", sizeString(result.Size))
	_ = w.Flush()

	fmt.Println("\n" + render(okStyle, "✓ Merge completed successfully"))
	return exitOK
}

func handleList(args []string) int {
	path, tool, code := parseContainerArgs("list", args)
	if tool == nil {
		return code
	}
	return runList(tool, path)
}

func runList(tool *fwmerge.Tool, path string) int {
	descs, code := loadContainer(tool, path)
	if descs == nil {
		return code
	}

	fmt.Println(render(titleStyle, "List files from "+path))
	fmt.Println()
	for _, d := range descs {
		fmt.Printf("------- File %d -------\n", d.Index+1)
		fmt.Printf("Type  : %s\n", d.Type)
		fmt.Printf("Size  : %s\n", sizeString(uint64(d.Length)))
		fmt.Printf("CRC   : 0x%04X %s\n", d.Checksum, render(okStyle, "OK"))
		fmt.Println(render(dimStyle, fmt.Sprintf("Offset: %d", d.Offset)))
		fmt.Println()
	}

	fmt.Println(render(okStyle, fmt.Sprintf("✓ %d segment(s) verified", len(descs))))
	return exitOK
}

func handleInspect(args []string) int {
	path, tool, code := parseContainerArgs("inspect", args)
	if tool == nil {
		return code
	}

	descs, code := loadContainer(tool, path)
	if descs == nil {
		return code
	}

	segments := make([]map[string]interface{}, 0, len(descs))
	var total uint64
	for _, d := range descs {
		segments = append(segments, map[string]interface{}{
			"index":     d.Index,
			"offset":    d.Offset,
			"type":      uint16(d.Type),
			"type_name": d.Type.String(),
			"length":    d.Length,
			"checksum":  fmt.Sprintf("0x%04x", d.Checksum),
			"valid":     d.Valid,
		})
		total += uint64(fwmerge.HeaderSize) + uint64(d.Length)
	}

	inspection := map[string]interface{}{
		"file":          path,
		"size":          total,
		"segment_count": len(descs),
		"segments":      segments,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(inspection); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func parseContainerArgs(command string, args []string) (string, *fwmerge.Tool, int) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return "", nil, exitFailure
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: container file required")
		fmt.Fprintf(os.Stderr, "Usage: fwmerge %s <container>\n", command)
		return "", nil, exitFailure
	}

	tool, err := common.tool()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return "", nil, exitFailure
	}

	return fs.Arg(0), tool, exitOK
}

// loadContainer verifies the container at path. Returns nil descriptors
// and the exit status on failure.
func loadContainer(tool *fwmerge.Tool, path string) ([]fwmerge.Descriptor, int) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: can't open %s: %v\n", path, err)
		return nil, exitFailure
	}
	if info.Size() == 0 {
		fmt.Fprintln(os.Stderr, render(errorStyle, "Error: file too small"))
		return nil, exitTruncated
	}

	descs, err := tool.ListFile(path)
	if err != nil {
		return nil, reportError("failed to verify file", err)
	}
	return descs, exitOK
}

// handleLegacy accepts the classic single-invocation flags:
// -l lists a container, and -f/-u/-n with -o merge into a new one.
func handleLegacy(args []string) int {
	fs := flag.NewFlagSet("fwmerge", flag.ContinueOnError)
	var common commonFlags
	var mf mergeFlags
	var listPath string
	common.register(fs)
	mf.register(fs)
	fs.StringVar(&listPath, "l", "", "list contents in a merged file")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	tool, err := common.tool()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	if listPath != "" {
		if code := runList(tool, listPath); code != exitOK {
			return code
		}
	}

	specs := mf.files.Specs()
	if len(specs) == 0 {
		if listPath == "" {
			printUsage(os.Stderr)
			return exitFailure
		}
		return exitOK
	}
	if mf.output == "" {
		fmt.Fprintln(os.Stderr, "Please specify the output filename")
		return exitFailure
	}
	return runMerge(tool, mf.output, specs)
}

// reportError prints err and returns the exit status for its kind.
func reportError(msg string, err error) int {
	fmt.Fprintln(os.Stderr, render(errorStyle, fmt.Sprintf("Error: %s: %v", msg, err)))
	if idx := fwmerge.SegmentIndex(err); idx >= 0 {
		fmt.Fprintf(os.Stderr, "Segment: %d\n", idx+1)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	kind, ok := fwmerge.Classify(err)
	if !ok {
		return exitOK
	}
	switch kind {
	case fwmerge.FailureTruncated:
		return exitTruncated
	case fwmerge.FailureUnknownType:
		return exitUnknownType
	case fwmerge.FailureChecksum:
		return exitChecksum
	case fwmerge.FailurePayloadTooLarge:
		return exitPayloadTooLarge
	case fwmerge.FailureTooLarge:
		return exitTooLarge
	default:
		return exitFailure
	}
}

func sizeString(n uint64) string {
	return fmt.Sprintf("%d bytes (%s)", n, humanize.Bytes(n))
}
