// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/engine"
	"github.com/pa-jail/pajail/internal/jaillaunch"
	"github.com/pa-jail/pajail/internal/mountplan"
	"github.com/pa-jail/pajail/internal/policy"
	"github.com/pa-jail/pajail/internal/supervisor"
	"github.com/pa-jail/pajail/lib/process"
	"github.com/pa-jail/pajail/lib/version"
)

func main() {
	if jaillaunch.IsReexecInvocation(os.Args) {
		os.Exit(enter(os.Args[2]))
	}

	code, err := dispatch(os.Args[1:])
	if err != nil {
		process.Fatal(err, code)
	}
	os.Exit(code)
}

// enter runs inside the freshly cloned namespaces, translating
// jaillaunch.Enter's *jaillaunch.ExitError into the process exit code
// it carries; any other error is a setup failure and always maps to
// the fatal/privilege exit code: setup errors are always fatal to the
// engine process, and never let the user program start.
func enter(configPath string) int {
	err := jaillaunch.Enter(configPath)
	if code, ok := jaillaunch.IsExitError(err); ok {
		return code
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return supervisor.ExitPrivilegeError
	}
	return supervisor.ExitSuccess
}

// dispatch parses the subcommand-first CLI and runs it,
// returning the process exit code and, for a usage or setup error, an
// error to report via process.Fatal.
func dispatch(argv []string) (int, error) {
	if len(argv) == 0 {
		printUsage(os.Stderr)
		return supervisor.ExitUsageOrFatal, fmt.Errorf("pa-jail: missing subcommand")
	}

	switch argv[0] {
	case "-H", "--help", "help":
		printUsage(os.Stdout)
		return supervisor.ExitSuccess, nil
	case "-V", "--version", "version":
		fmt.Println(version.Full())
		return supervisor.ExitSuccess, nil
	case "add":
		return runAdd(argv[1:])
	case "run":
		return runRun(argv[1:])
	case "mv":
		return runMv(argv[1:])
	case "rm":
		return runRm(argv[1:])
	default:
		printUsage(os.Stderr)
		return supervisor.ExitUsageOrFatal, fmt.Errorf("pa-jail: unknown subcommand %q", argv[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `usage: pa-jail <add|run|mv|rm> [options] ...

  add JAILDIR                       materialize a jail tree
  run JAILDIR USER [KEY=VAL…] COMMAND…
                                     materialize (if given a manifest) and run
  mv SOURCE DEST                    relocate a jail
  rm JAILDIR                        unmount and delete a jail

common flags: -n/--dry-run -V/--verbose -H/--help
add/run flags: -S/--skeleton DIR -f/--manifest-file FILE -F/--manifest TEXT
               -h/--chown-home -u/--chown-user DIR
run flags:     -p/--pid-file -P/--pid-contents -T/--timeout -I/--idle-timeout
               -i/--input -q/--quiet --event-source --ready[=STR]
               --onlcr/--no-onlcr --size WxH|none -t/--timing-file --fg/--bg
rm flags:      -f/--force --bg
`)
}

// populateFlags registers the flags shared by add and run.
type populateFlags struct {
	skeleton     string
	manifestFile []string
	manifestText []string
	chownHome    bool
	chownUser    []string
}

func (p *populateFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&p.skeleton, "skeleton", "S", "", "hard-link skeleton directory")
	fs.StringArrayVarP(&p.manifestFile, "manifest-file", "f", nil, "manifest file, - for stdin (stackable)")
	fs.StringArrayVarP(&p.manifestText, "manifest", "F", nil, "literal manifest text (stackable)")
	fs.BoolVarP(&p.chownHome, "chown-home", "h", false, "chown the owner's home tree to the owner")
	fs.StringArrayVarP(&p.chownUser, "chown-user", "u", nil, "chown DIR to the owner (stackable)")
}

// sources assembles the -f/-F occurrences into engine.ManifestSource
// values, each flag's occurrences in command-line order. pflag does not preserve
// interleaving order between two distinct flags, so -f entries are
// applied before -F entries: manifests that need one to override the
// other should repeat the same flag rather than relying on
// cross-flag ordering.
func (p *populateFlags) sources() []engine.ManifestSource {
	var out []engine.ManifestSource
	for _, f := range p.manifestFile {
		out = append(out, engine.ManifestSource{Kind: engine.ManifestFromFile, Value: f})
	}
	for _, t := range p.manifestText {
		out = append(out, engine.ManifestSource{Kind: engine.ManifestFromText, Value: t})
	}
	return out
}

func runAdd(argv []string) (int, error) {
	fs := pflag.NewFlagSet("add", pflag.ContinueOnError)
	dryRun := fs.BoolP("dry-run", "n", false, "")
	verbose := fs.BoolP("verbose", "V", false, "")
	var pop populateFlags
	pop.register(fs)
	if err := fs.Parse(argv); err != nil {
		return supervisor.ExitUsageOrFatal, err
	}
	if fs.NArg() != 1 && fs.NArg() != 2 {
		return supervisor.ExitUsageOrFatal, fmt.Errorf("add: expected JAILDIR [USER]")
	}
	jailDir := fs.Arg(0)

	oracle, log, err := loadPolicyAndLog(*verbose, *dryRun)
	if err != nil {
		return supervisor.ExitPrivilegeError, err
	}
	if result := oracle.Query(policy.Jail, jailDir, false); !result.Allowed {
		return supervisor.ExitUsageOrFatal, fmt.Errorf("add: %s not permitted: %s", jailDir, result.Reason)
	}
	if pop.skeleton != "" {
		if result := oracle.Query(policy.Skeleton, pop.skeleton, false); !result.Allowed {
			return supervisor.ExitUsageOrFatal, fmt.Errorf("add: skeleton %s not permitted: %s", pop.skeleton, result.Reason)
		}
	}

	// A chown target is only resolved when -h/-u actually needs one;
	// a bare `add JAILDIR` with neither never looks a user up, mirroring
	// the original's jailownerinfo::init being skipped unless a second
	// positional argument names USER.
	var owner jaillaunch.Identity
	if fs.NArg() == 2 {
		owner, err = jaillaunch.ResolveIdentity("", fs.Arg(1))
		if err != nil {
			return supervisor.ExitPrivilegeError, err
		}
	} else if pop.chownHome || len(pop.chownUser) > 0 {
		return supervisor.ExitUsageOrFatal, fmt.Errorf("add: -h/-u requires a USER argument")
	}

	table, err := mountplan.LoadProcMounts()
	if err != nil {
		return supervisor.ExitIOError, fmt.Errorf("load host mount table: %w", err)
	}

	_, err = engine.Populate(jailDir, engine.PopulateOptions{
		Skeleton:   pop.skeleton,
		Manifests:  pop.sources(),
		Stdin:      os.Stdin,
		ChownHome:  pop.chownHome,
		ChownUsers: pop.chownUser,
		DryRun:     *dryRun,
	}, owner, table, log)
	if err != nil {
		return supervisor.ExitIOError, err
	}
	return supervisor.ExitSuccess, nil
}

func runRun(argv []string) (int, error) {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	dryRun := fs.BoolP("dry-run", "n", false, "")
	verbose := fs.BoolP("verbose", "V", false, "")
	var pop populateFlags
	pop.register(fs)

	pidFile := fs.StringP("pid-file", "p", "", "")
	pidContents := fs.StringP("pid-contents", "P", "$$", "")
	timeoutSecs := fs.Float64P("timeout", "T", 0, "")
	idleTimeoutSecs := fs.Float64P("idle-timeout", "I", 0, "")
	inputPath := fs.StringP("input", "i", "", "")
	eventSource := fs.String("event-source", "", "")
	readyMarker := fs.String("ready", "", "write STR to stdout when ready")
	onlcr := fs.Bool("onlcr", true, "")
	noOnlcr := fs.Bool("no-onlcr", false, "")
	sizeStr := fs.String("size", "80x25", "")
	timingFile := fs.StringP("timing-file", "t", "", "")
	quiet := fs.BoolP("quiet", "q", false, "suppress the exit banner")
	fg := fs.Bool("fg", true, "")
	bg := fs.Bool("bg", false, "")
	fs.Lookup("ready").NoOptDefVal = "\n"

	if err := fs.Parse(argv); err != nil {
		return supervisor.ExitUsageOrFatal, err
	}
	if fs.NArg() < 2 {
		return supervisor.ExitUsageOrFatal, fmt.Errorf("run: expected JAILDIR USER [KEY=VAL…] COMMAND…")
	}
	jailDir := fs.Arg(0)
	owner := fs.Arg(1)
	rest := fs.Args()[2:]

	env, cmdArgv := jaillaunch.SplitEnvArgv(rest)
	if len(cmdArgv) == 0 {
		return supervisor.ExitUsageOrFatal, fmt.Errorf("run: expected a COMMAND after USER")
	}

	cols, rows, err := parseSize(*sizeStr)
	if err != nil {
		return supervisor.ExitUsageOrFatal, err
	}
	disableONLCR := *noOnlcr || !*onlcr

	oracle, log, err := loadPolicyAndLog(*verbose, *dryRun)
	if err != nil {
		return supervisor.ExitPrivilegeError, err
	}
	if result := oracle.Query(policy.Jail, jailDir, false); !result.Allowed {
		return supervisor.ExitUsageOrFatal, fmt.Errorf("run: %s not permitted: %s", jailDir, result.Reason)
	}
	if pop.skeleton != "" {
		if result := oracle.Query(policy.Skeleton, pop.skeleton, false); !result.Allowed {
			return supervisor.ExitUsageOrFatal, fmt.Errorf("run: skeleton %s not permitted: %s", pop.skeleton, result.Reason)
		}
	}

	var callerInput *os.File
	if *inputPath != "" {
		callerInput, err = openCallerInput(*inputPath)
		if err != nil {
			return supervisor.ExitIOError, err
		}
		defer callerInput.Close()
	}

	opts := engine.RunOptions{
		Populate: engine.PopulateOptions{
			Skeleton:   pop.skeleton,
			Manifests:  pop.sources(),
			Stdin:      os.Stdin,
			ChownHome:  pop.chownHome,
			ChownUsers: pop.chownUser,
			DryRun:     *dryRun,
		},
		Owner:             owner,
		Env:               env,
		Argv:              cmdArgv,
		Foreground:        *fg && !*bg,
		WindowCols:        cols,
		WindowRows:        rows,
		DisableONLCR:      disableONLCR,
		ReadyMarker:       *readyMarker,
		Quiet:             *quiet,
		Timeout:           secondsToDuration(*timeoutSecs),
		IdleTimeout:       secondsToDuration(*idleTimeoutSecs),
		EventSourceSocket: *eventSource,
		TimingFile:        *timingFile,
		PIDFile:           *pidFile,
		PIDContents:       *pidContents,
		CallerInput:       callerInput,
	}

	return engine.Run(jailDir, opts, log)
}

func runMv(argv []string) (int, error) {
	fs := pflag.NewFlagSet("mv", pflag.ContinueOnError)
	dryRun := fs.BoolP("dry-run", "n", false, "")
	verbose := fs.BoolP("verbose", "V", false, "")
	if err := fs.Parse(argv); err != nil {
		return supervisor.ExitUsageOrFatal, err
	}
	if fs.NArg() != 2 {
		return supervisor.ExitUsageOrFatal, fmt.Errorf("mv: expected SOURCE DEST")
	}

	oracle, log, err := loadPolicyAndLog(*verbose, *dryRun)
	if err != nil {
		return supervisor.ExitPrivilegeError, err
	}
	if err := engine.Move(oracle, fs.Arg(0), fs.Arg(1), *dryRun, log); err != nil {
		return supervisor.ExitUsageOrFatal, err
	}
	return supervisor.ExitSuccess, nil
}

func runRm(argv []string) (int, error) {
	fs := pflag.NewFlagSet("rm", pflag.ContinueOnError)
	dryRun := fs.BoolP("dry-run", "n", false, "")
	verbose := fs.BoolP("verbose", "V", false, "")
	force := fs.BoolP("force", "f", false, "")
	fs.Bool("bg", false, "background the removal (unsupported on this platform; accepted for compatibility)")
	if err := fs.Parse(argv); err != nil {
		return supervisor.ExitUsageOrFatal, err
	}
	if fs.NArg() != 1 {
		return supervisor.ExitUsageOrFatal, fmt.Errorf("rm: expected JAILDIR")
	}

	oracle, log, err := loadPolicyAndLog(*verbose, *dryRun)
	if err != nil {
		return supervisor.ExitPrivilegeError, err
	}
	if err := engine.Remove(oracle, fs.Arg(0), *force, *dryRun, log); err != nil {
		return supervisor.ExitUsageOrFatal, err
	}
	return supervisor.ExitSuccess, nil
}

// loadPolicyAndLog loads the administrator policy file and constructs
// the auditlog used across a subcommand's lifetime. Verbose output
// goes to stdout during a dry run (so `-n` output can be diffed
// against a real run's stderr trace) and to stderr otherwise.
func loadPolicyAndLog(verbose, dryRun bool) (*policy.Oracle, *auditlog.Log, error) {
	oracle, err := policy.Load(policy.DefaultConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", policy.DefaultConfigPath, err)
	}
	w := os.Stderr
	if dryRun {
		w = os.Stdout
	}
	return oracle, auditlog.New(w, verbose), nil
}

// parseSize parses the `--size WxH` or `--size none` flag. "none"
// disables the PTY resize ioctl entirely.
func parseSize(s string) (cols, rows uint16, err error) {
	if s == "none" {
		return 0, 0, nil
	}
	idx := strings.IndexByte(s, 'x')
	if idx <= 0 || idx == len(s)-1 {
		return 0, 0, fmt.Errorf("--size %s: expected WIDTHxHEIGHT or none", s)
	}
	w, err := strconv.ParseUint(s[:idx], 10, 16)
	if err != nil || w == 0 {
		return 0, 0, fmt.Errorf("--size %s: invalid width", s)
	}
	h, err := strconv.ParseUint(s[idx+1:], 10, 16)
	if err != nil || h == 0 {
		return 0, 0, fmt.Errorf("--size %s: invalid height", s)
	}
	return uint16(w), uint16(h), nil
}

// secondsToDuration converts a -T/-I flag value (fractional seconds,
// e.g. "0.5") to a time.Duration; zero means "no timeout".
func secondsToDuration(secs float64) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// openCallerInput opens path -i/--input rule: O_RDWR
// for a fifo (so the supervisor's own open doesn't race a writer that
// hasn't connected yet), O_RDONLY otherwise.
func openCallerInput(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	flag := os.O_RDONLY
	if info.Mode()&os.ModeNamedPipe != 0 {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
