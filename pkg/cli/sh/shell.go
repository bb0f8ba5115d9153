package sh

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/mtkflash/pkg/board"
	"github.com/robotalks/mtkflash/pkg/flasher"
	fx "github.com/robotalks/mtkflash/pkg/framework"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool

	Shell   *ishell.Shell
	Config  *flasher.Config
	Board   *board.Board
	Flasher *flasher.Flasher
}

const (
	shellKey     = "$shell"
	closedPrompt = "[closed] > "

	interruptExitCode = 130
)

// ErrCommandExpected is returned by Run without commands when the shell is
// not interactive.
var ErrCommandExpected = errors.New("command expected")

var (
	// flags

	evalOnly bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&StatusCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *flasher.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		Shell:       ishell.New(),
		Config:      conf,
	}
	s.Shell.Set(shellKey, s)
	s.setPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires the board, opening it on demand.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if err := ShellFrom(c).Open(); err != nil {
			c.Err(err)
			return
		}
		fn(c)
	}
}

// Do runs fn with a context canceled on Ctrl-C.
func Do(fn func(ctx context.Context) error) error {
	ctx, cancel := fx.HandleSignals(context.Background(), interruptExitCode)
	defer cancel()
	return fn(ctx)
}

// Open opens the board and configures the pins. The session, and with it
// the retry count, lives until Close.
func (s *Shell) Open() error {
	if s.Board != nil {
		return nil
	}
	b, err := board.Open(s.Config)
	if err != nil {
		return err
	}
	f, err := b.NewFlasher()
	if err != nil {
		b.Close()
		return err
	}
	if err := b.Session.Pins.Configure(); err != nil {
		b.Close()
		return err
	}
	s.Board, s.Flasher = b, f
	s.setPrompt(fmt.Sprintf("[%s] > ", s.Config.Device))
	return nil
}

// Close releases the pins and closes the board.
func (s *Shell) Close() error {
	if s.Board == nil {
		return nil
	}
	var errs fx.AggregatedError
	errs.Add(s.Flasher.Release(), s.Board.Close())
	s.Board, s.Flasher = nil, nil
	s.setPrompt(closedPrompt)
	return errs.Aggregate()
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

// Run runs the shell. The board is always released before Run returns,
// so a failing command never leaves the target in bootloader mode.
func (s *Shell) Run(args ...string) error {
	var errs fx.AggregatedError
	switch {
	case len(args) > 0:
		errs.Add(s.Shell.Process(args...))
	case s.Interactive:
		s.Shell.Run()
	default:
		errs.Add(ErrCommandExpected)
	}
	errs.Add(s.Close())
	return errs.Aggregate()
}

var (
	// OpenCmd opens the board.
	OpenCmd = ishell.Cmd{
		Name: "open",
		Help: "open the serial device and configure the pins",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Open(); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd releases the board.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"release"},
		Help:    "release the bootstrap line and close the serial device",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Close(); err != nil {
				c.Err(err)
			}
		},
	}

	// StatusCmd prints the session counters.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "show the session state",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Board == nil {
				c.Println("closed")
				return
			}
			sess, ch := s.Board.Session, s.Board.Channel
			c.Printf("host:        %s\n", s.Board.HostID)
			c.Printf("device:      %s open=%v baud=%d\n", ch.DevicePath(), ch.IsOpen(), ch.Baud())
			c.Printf("state:       %s\n", s.Flasher.State())
			c.Printf("syncs:       %d\n", sess.SyncCount)
			c.Printf("noise:       %d\n", sess.ErrorCount)
			c.Printf("retries:     %d/%d\n", sess.RetryCount, s.Config.MaxRetries)
			c.Printf("bootloader:  %d\n", sess.BootloaderEntries)
			if s.Board.CapturePath != "" {
				c.Printf("capture:     %s\n", s.Board.CapturePath)
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	if err := New(flasher.NewConfig()).Run(flag.Args()...); err != nil {
		log.Fatalln(err)
	}
}
