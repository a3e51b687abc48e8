// cfcal converts CF-convention time values ("days since 1850-01-01" and
// friends) to calendar dates in the standard, 365-day and 360-day calendars.
//
// It runs one conversion from the command line or serves the conversions
// over HTTP, optionally converting batch files dropped into an inbox.
//
//	cfcal calendar -units "days since 1850-01-01" -calendar noleap 0 365 730
//	cfcal invcalendar -units "hours since 2000-01-01" "2000-01-02 06:00"
//	cfcal units "m/s"
//	cfcal convert degC K
//	cfcal serve
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ryan-winkler/cfcalendar/internal/batch"
	"github.com/ryan-winkler/cfcalendar/internal/calendar"
	"github.com/ryan-winkler/cfcalendar/internal/config"
	"github.com/ryan-winkler/cfcalendar/internal/units"
)

const version = "0.3.0"

// Exit codes.
const (
	exitOK       = 0
	exitConvert  = 1
	exitUsage    = 2
	exitInitFail = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app is what every command works with.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	units  *units.System
	conv   *calendar.Converter
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	// Priority: CLI flag > environment variable > default
	cfg := config.Load()
	fs := flag.NewFlagSet("cfcal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		flagPort      = fs.Int("port", 0, "Server port (default: 8095)")
		flagHost      = fs.String("host", "", "Bind address (default: 0.0.0.0)")
		flagUnitsPath = fs.String("units-path", "", "Units table (default: embedded)")
		flagCalendar  = fs.String("calendar", "", "Default calendar (default: standard)")
		flagLogDir    = fs.String("log-dir", "", "Also write logs to a rotated file in this directory")
		flagLogFormat = fs.String("log-format", "", "text or json")
		flagWatch     = fs.String("watch", "", "Inbox directory for batch files")
		flagOutput    = fs.String("output", "", "Directory for converted results")
		flagEnableTLS = fs.Bool("enable-tls", false, "Serve HTTPS with a self-signed certificate")
		flagVersion   = fs.Bool("version", false, "Print version and exit")
	)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: cfcal [flags] calendar|invcalendar|units|convert|serve [args]\n\nflags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if *flagVersion {
		fmt.Fprintln(stdout, "cfcal", version)
		return exitOK
	}

	if *flagPort > 0 {
		cfg.Port = *flagPort
	}
	if *flagHost != "" {
		cfg.Host = *flagHost
	}
	if *flagUnitsPath != "" {
		cfg.UnitsPath = *flagUnitsPath
	}
	if *flagCalendar != "" {
		cfg.Calendar = *flagCalendar
	}
	if *flagLogDir != "" {
		cfg.LogDir = *flagLogDir
	}
	if *flagLogFormat != "" {
		cfg.LogFormat = *flagLogFormat
	}
	if *flagWatch != "" {
		cfg.WatchDir = *flagWatch
	}
	if *flagOutput != "" {
		cfg.OutputDir = *flagOutput
	}
	if *flagEnableTLS {
		cfg.EnableTLS = true
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "cfcal: unknown command %q\n", rest[0])
		fs.Usage()
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "cfcal: config:", err)
		return exitInitFail
	}

	// The server logs to stdout; one-shot commands keep stdout for results.
	logOut := stderr
	if rest[0] == "serve" {
		logOut = stdout
	}
	logger, closer := newLogger(cfg, logOut)
	defer closer.Close()

	a := &app{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}
	if code := a.init(); code != exitOK {
		return code
	}
	return cmd(a, rest[1:])
}

var commands = map[string]func(*app, []string) int{
	"calendar":    (*app).calendar,
	"invcalendar": (*app).invcalendar,
	"units":       (*app).describe,
	"convert":     (*app).convert,
	"serve":       (*app).serve,
}

// newLogger builds the slog logger: w always, tee'd to a rotating file
// when a log directory is configured.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if cfg.LogDir != "" {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "cfcal.log"),
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), closer
	}
	return slog.New(slog.NewTextHandler(w, opts)), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (a *app) init() int {
	a.units = units.New()
	if err := a.units.Init(a.cfg.UnitsPath); err != nil {
		a.logger.Error("could not load units table", "path", a.cfg.UnitsPath, "code", units.Code(err), "error", err)
		return exitInitFail
	}
	a.conv = calendar.New(a.units, a.logger)
	if err := a.conv.Init(); err != nil {
		return exitInitFail
	}
	return exitOK
}

func (a *app) fail(err error) int {
	fmt.Fprintln(a.stderr, "cfcal:", err)
	if errors.Is(err, calendar.ErrUninitialized) || errors.Is(err, units.ErrNotInitialized) {
		return exitInitFail
	}
	return exitConvert
}

func (a *app) calendar(args []string) int {
	fs := flag.NewFlagSet("calendar", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	unitSpec := fs.String("units", "", "Time units, e.g. \"days since 1850-01-01\"")
	cal := fs.String("calendar", "", "Calendar (default: the configured one)")
	file := fs.String("file", "", "Read a batch file instead of values; - is stdin")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var job *batch.Job
	switch {
	case *file != "":
		var r io.Reader = os.Stdin
		if *file != "-" {
			f, err := os.Open(*file)
			if err != nil {
				return a.fail(err)
			}
			defer f.Close()
			r = f
		}
		var err error
		if job, err = batch.Parse(r); err != nil {
			return a.fail(err)
		}
		if *unitSpec != "" {
			job.Units = *unitSpec
		}
	default:
		if *unitSpec == "" || fs.NArg() == 0 {
			fmt.Fprintln(a.stderr, "usage: cfcal calendar -units UNITS [-calendar NAME] VALUE... | -file PATH")
			return exitUsage
		}
		job = &batch.Job{Units: *unitSpec}
		for _, s := range fs.Args() {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				fmt.Fprintf(a.stderr, "cfcal: bad value %q\n", s)
				return exitUsage
			}
			job.Values = append(job.Values, v)
		}
	}
	if *cal != "" {
		job.Calendar = *cal
	}

	dates, err := batch.Run(job, a.units, a.conv, a.cfg.Calendar)
	if err != nil {
		return a.fail(err)
	}
	if err := batch.WriteResult(a.stdout, job, dates); err != nil {
		return a.fail(err)
	}
	return exitOK
}

func (a *app) invcalendar(args []string) int {
	fs := flag.NewFlagSet("invcalendar", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	unitSpec := fs.String("units", "", "Time units, e.g. \"days since 1850-01-01\"")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *unitSpec == "" || fs.NArg() == 0 {
		fmt.Fprintln(a.stderr, "usage: cfcal invcalendar -units UNITS DATE...")
		return exitUsage
	}
	dates := make([]calendar.DateTime, fs.NArg())
	for i, s := range fs.Args() {
		dt, err := units.ParseDate(s)
		if err != nil {
			fmt.Fprintf(a.stderr, "cfcal: bad date %q: %v\n", s, err)
			return exitUsage
		}
		dates[i] = dt
	}
	u, err := a.units.Scan(*unitSpec)
	if err != nil {
		return a.fail(err)
	}
	values, err := a.conv.InvertAll(dates, u)
	if err != nil {
		return a.fail(err)
	}
	for i, v := range values {
		fmt.Fprintf(a.stdout, "%s\t%s\n", dates[i], strconv.FormatFloat(v, 'g', -1, 64))
	}
	return exitOK
}

func (a *app) describe(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.stderr, "usage: cfcal units SPEC")
		return exitUsage
	}
	u, err := a.units.Scan(args[0])
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "%s\n", u)
	if units.IsTime(u) && units.HasOrigin(u) {
		ref, _, err := a.conv.ReferenceDate(0, u)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.stdout, "reference %s\n", ref)
	}
	return exitOK
}

func (a *app) convert(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(a.stderr, "usage: cfcal convert FROM TO")
		return exitUsage
	}
	from, err := a.units.Scan(args[0])
	if err != nil {
		return a.fail(err)
	}
	to, err := a.units.Scan(args[1])
	if err != nil {
		return a.fail(err)
	}
	slope, intercept, err := a.units.Convert(from, to)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "slope %s\nintercept %s\n",
		strconv.FormatFloat(slope, 'g', -1, 64), strconv.FormatFloat(intercept, 'g', -1, 64))
	return exitOK
}
