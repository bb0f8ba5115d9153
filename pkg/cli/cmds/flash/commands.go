package flash

import (
	"context"
	"fmt"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/mtkflash/pkg/cli/sh"
	"github.com/robotalks/mtkflash/pkg/flasher"
)

func printResult(c *ishell.Context, res flasher.SegmentResult) {
	c.Printf("%-4s %-18s %-24s retries=%d %v\n", res.Segment.Name, res.Outcome, res.Phase, res.Retries, res.Duration)
	for _, w := range res.Warnings {
		c.Printf("     warning: %v\n", w)
	}
	if res.Err != nil {
		c.Printf("     error: %v\n", res.Err)
	}
}

var (
	// GpioInitCmd configures the control pins.
	GpioInitCmd = ishell.Cmd{
		Name: "gpio.init",
		Help: "configure reset and bootstrap pins as outputs",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if err := sh.ShellFrom(c).Board.Session.Pins.Configure(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// BootloaderCmd runs the bootloader entry sequence.
	BootloaderCmd = ishell.Cmd{
		Name:    "bootloader",
		Aliases: []string{"bl"},
		Help:    "reset the target into the ROM bootloader",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			if err := s.Board.Session.EnterBootloader(s.Config.SettleDelay); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// HandshakeCmd runs the low baud handshake.
	HandshakeCmd = ishell.Cmd{
		Name:    "handshake",
		Aliases: []string{"hs"},
		Help:    "[noise|silence]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			name := s.Config.Strategy
			if len(c.Args) > 0 {
				name = c.Args[0]
			}
			strategy, err := flasher.ParseStrategy(name)
			if err != nil {
				c.Err(err)
				return
			}
			configured, _ := flasher.ParseStrategy(s.Config.Strategy)
			s.Flasher.SetStrategy(strategy)
			defer s.Flasher.SetStrategy(configured)
			err = sh.Do(s.Flasher.Handshake)
			sess := s.Board.Session
			c.Printf("%s: syncs=%d noise=%d retries=%d\n", strategy, sess.SyncCount, sess.ErrorCount, sess.RetryCount)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// FlashCmd flashes one or all segments.
	FlashCmd = ishell.Cmd{
		Name: "flash",
		Help: "SEGMENT|all (ldr, n9, cm4)",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("SEGMENT required"))
				return
			}
			if c.Args[0] == "all" {
				var report *flasher.Report
				err := sh.Do(func(ctx context.Context) (err error) {
					report, err = s.Flasher.Run(ctx)
					return
				})
				for _, res := range report.Segments {
					printResult(c, res)
				}
				if err != nil {
					c.Err(err)
				}
				return
			}
			seg, ok := s.Config.SegmentByName(c.Args[0])
			if !ok {
				c.Err(fmt.Errorf("unknown segment %q", c.Args[0]))
				return
			}
			var res flasher.SegmentResult
			sh.Do(func(ctx context.Context) error {
				res = s.Flasher.FlashSegment(ctx, seg)
				return nil
			})
			printResult(c, res)
		}),
	}
)

func init() {
	sh.AddCmds(
		&GpioInitCmd,
		&BootloaderCmd,
		&HandshakeCmd,
		&FlashCmd,
	)
}
