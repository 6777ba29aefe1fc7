package menu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/home"
	"github.com/nerrad567/smarthome-core/internal/schedule"
	"github.com/nerrad567/smarthome-core/internal/user"
)

// DefaultPrompt is printed before each command when Options.Prompt is empty.
const DefaultPrompt = "> "

// maxLineLength bounds a single command line.
const maxLineLength = 64 * 1024

// errQuit ends Run without an error.
var errQuit = errors.New("menu: quit")

// Logger defines the logging interface used by the Menu.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds the collaborators of a Menu.
type Options struct {
	Devices   *device.Registry
	Homes     *home.Service
	Users     *user.Service
	Scheduler *schedule.Engine
	Prompt    string
	Logger    Logger
}

// Menu is a line-oriented command interpreter over the device registry,
// the home and user services and the scheduler.
type Menu struct {
	devices   *device.Registry
	homes     *home.Service
	users     *user.Service
	scheduler *schedule.Engine
	prompt    string
	logger    Logger

	commands map[string]command
}

type command struct {
	usage   string
	summary string
	run     func(ctx context.Context, w io.Writer, args []string) error
}

// New creates a Menu. Every collaborator except Logger is required.
func New(opts Options) (*Menu, error) {
	if opts.Devices == nil || opts.Homes == nil || opts.Users == nil || opts.Scheduler == nil {
		return nil, errors.New("menu: devices, homes, users and scheduler are required")
	}
	m := &Menu{
		devices:   opts.Devices,
		homes:     opts.Homes,
		users:     opts.Users,
		scheduler: opts.Scheduler,
		prompt:    opts.Prompt,
		logger:    opts.Logger,
	}
	if m.prompt == "" {
		m.prompt = DefaultPrompt
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	m.commands = m.commandTable()
	return m, nil
}

// Run reads commands from in until EOF, "quit" or ctx is cancelled, and
// writes prompts and results to out. A failing command prints an error
// line and the loop continues.
func (m *Menu) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	fmt.Fprintln(out, `Smart home ready. Type "help" for commands.`)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, m.prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading command: %w", err)
			}
			return nil
		}

		err := m.Execute(ctx, out, scanner.Text())
		if errors.Is(err, errQuit) {
			fmt.Fprintln(out, "bye")
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			m.logger.Debug("menu command failed", "line", scanner.Text(), "error", err)
		}
	}
}

// Execute runs a single command line. Blank lines are ignored.
func (m *Menu) Execute(ctx context.Context, out io.Writer, line string) error {
	tokens := tokenize(line)
	if len(tokens) == 0 {
		return nil
	}
	name := strings.ToLower(tokens[0])
	cmd, ok := m.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try \"help\")", tokens[0])
	}
	return cmd.run(ctx, out, tokens[1:])
}

func (m *Menu) help(_ context.Context, w io.Writer, _ []string) error {
	names := make([]string, 0, len(m.commands))
	for name, cmd := range m.commands {
		if cmd.summary != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	tw := newTable(w)
	for _, name := range names {
		cmd := m.commands[name]
		fmt.Fprintf(tw, "  %s\t%s\n", cmd.usage, cmd.summary)
	}
	return tw.Flush()
}

func usageError(usage string) error {
	return fmt.Errorf("usage: %s", usage)
}
