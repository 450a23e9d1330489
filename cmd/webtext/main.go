package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"webtexter/internal/carrier"
	"webtexter/internal/config"
	"webtexter/internal/history"
	"webtexter/internal/report"
	"webtexter/internal/send"
	"webtexter/pkg/logx"
)

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosity) Set(s string) error {
	if s == "true" || s == "" {
		*v++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = verbosity(n)
	return nil
}

func (v *verbosity) IsBoolFlag() bool { return true }

type options struct {
	username string
	password string
	cfgPath  string
	carrier  string
	message  string
	split    bool
	verbose  verbosity
	args     []string
}

func parseFlags(args []string) (*options, error) {
	var o options
	fs := flag.NewFlagSet("webtext", flag.ContinueOnError)
	fs.StringVar(&o.username, "u", "", "account username (phone number)")
	fs.StringVar(&o.username, "username", "", "account username (phone number)")
	fs.StringVar(&o.password, "p", "", "account password or PIN")
	fs.StringVar(&o.password, "password", "", "account password or PIN")
	fs.StringVar(&o.cfgPath, "c", "", "config file path")
	fs.StringVar(&o.cfgPath, "config", "", "config file path")
	fs.StringVar(&o.carrier, "C", "", "carrier name")
	fs.StringVar(&o.carrier, "carrier", "", "carrier name")
	fs.StringVar(&o.message, "m", "", "message text (read from stdin if absent)")
	fs.StringVar(&o.message, "message", "", "message text (read from stdin if absent)")
	fs.BoolVar(&o.split, "s", false, "allow splitting long messages")
	fs.BoolVar(&o.split, "split", false, "allow splitting long messages")
	fs.Var(&o.verbose, "v", "increase log verbosity (repeatable)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: webtext [flags] <number|alias|group>...\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.args = fs.Args()
	return &o, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfgPath := opts.cfgPath
	if cfgPath == "" {
		cfgPath = config.Default()
	}
	cfg := &config.Config{}
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "webtext:", err)
			return 2
		}
	}
	config.ApplyEnv(cfg)
	overlayFlags(cfg, opts)

	log := logx.New(cfg.LogSettings(int(opts.verbose)))

	req, table, err := buildRequest(cfg, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "webtext:", err)
		return 2
	}

	histCfg, err := cfg.HistorySettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "webtext:", err)
		return 2
	}
	hist, err := history.Open(histCfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "webtext:", err)
		return 2
	}
	if hist != nil {
		defer hist.Close()
	}

	sendCfg, err := cfg.SendSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "webtext:", err)
		return 2
	}

	orch := send.New(sendCfg, log, hist)
	runRes, execErr := orch.Execute(ctx, *req, table)
	if execErr != nil {
		report.RenderAbort(os.Stderr, execErr)
	}
	if runRes != nil {
		report.Render(os.Stdout, runRes)
	}
	return report.ExitCode(runRes, execErr)
}

// overlayFlags applies command-line values over config-file values. Flags
// always win; -s can re-enable splitting that the config disabled.
func overlayFlags(cfg *config.Config, opts *options) {
	if opts.username != "" {
		cfg.Username = opts.username
	}
	if opts.password != "" {
		cfg.Password = opts.password
	}
	if opts.carrier != "" {
		cfg.Carrier = opts.carrier
	}
	if opts.split {
		cfg.NoSplit = false
	}
}

func buildRequest(cfg *config.Config, opts *options) (*send.Request, map[string][]string, error) {
	if len(opts.args) == 0 {
		return nil, nil, errors.New("no recipients given")
	}
	kind, err := carrier.ParseKind(cfg.Carrier)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Username == "" {
		return nil, nil, errors.New("no username: use -u or set it in the config")
	}

	password := cfg.Password
	if password == "" {
		password, err = promptPassword()
		if err != nil {
			return nil, nil, err
		}
	}

	body := opts.message
	if body == "" {
		body, err = readMessage()
		if err != nil {
			return nil, nil, err
		}
	}
	if strings.TrimSpace(body) == "" {
		return nil, nil, errors.New("empty message")
	}

	table, err := cfg.Table()
	if err != nil {
		return nil, nil, err
	}

	return &send.Request{
		Username:   cfg.Username,
		Password:   password,
		Carrier:    kind,
		Recipients: opts.args,
		Body:       body,
		AllowSplit: !cfg.NoSplit,
	}, table, nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password: use -p, the config file, or WEBTEXT_PASSWORD")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("empty password")
	}
	return string(raw), nil
}

// readMessage reads the message body from stdin, terminated by EOF or by a
// line holding a single ".".
func readMessage() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "Enter message, end with a line containing only \".\":")
	}
	var lines []string
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		if line == "." {
			break
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}
