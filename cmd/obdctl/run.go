package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/obdctl/internal/obd"
	"github.com/danmuck/obdctl/internal/obd/command"
	"github.com/danmuck/obdctl/internal/protocol"
	"github.com/spf13/cobra"
)

// runSettings are the per-call knobs shared by run, init and shell.
type runSettings struct {
	useCache bool
	delay    time.Duration
}

func (s runSettings) options() []obd.RunOption {
	return []obd.RunOption{obd.UseCache(s.useCache), obd.WithDelay(s.delay)}
}

func newRunCmd(a *app) *cobra.Command {
	var (
		cache  bool
		delay  time.Duration
		repeat int
	)
	cmd := &cobra.Command{
		Use:   "run <command>...",
		Short: "Run one or more commands and print the decoded replies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := runSettings{useCache: a.cfg.Run.UseCache, delay: a.cfg.Run.Delay}
			if cmd.Flags().Changed("cache") {
				settings.useCache = cache
			}
			if cmd.Flags().Changed("delay") {
				settings.delay = delay
			}
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			for i := 0; i < repeat; i++ {
				if err := runCommands(cmd.Context(), s.queue, args, settings, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cache, "cache", false, "reuse replies already received on this connection")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between sending and reading")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "run the command list this many times")
	return cmd
}

func newInitCmd(a *app) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Send the configured adapter init sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return runCommands(cmd.Context(), s.queue, a.cfg.Run.Init, runSettings{delay: delay}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 500*time.Millisecond, "pause after each init command (ATZ needs settling time)")
	return cmd
}

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive prompt; lines starting with ':' change settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			settings := runSettings{useCache: a.cfg.Run.UseCache, delay: a.cfg.Run.Delay}
			return runShell(cmd.Context(), s.queue, cmd.InOrStdin(), cmd.OutOrStdout(), &settings)
		},
	}
}

func runCommands(ctx context.Context, q *obd.Queue, texts []string, settings runSettings, out io.Writer) error {
	for _, text := range texts {
		cmd, err := command.Parse(text)
		if err != nil {
			return err
		}
		resp, err := q.Run(ctx, cmd, settings.options()...)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Text(), err)
		}
		printResponse(out, cmd, resp)
	}
	return nil
}

func printResponse(out io.Writer, cmd obd.Command, resp obd.Response) {
	value := resp.String()
	if value == "" {
		value = "<empty>"
	}
	fmt.Fprintf(out, "%s\t%s\t%dms\n", cmd.Text(), value, resp.Raw.ElapsedMillis())
}

var errQuit = errors.New("quit")

// runShell reads commands line by line until EOF or :quit. Command errors
// are printed and the shell keeps going; transport errors end it.
func runShell(ctx context.Context, q *obd.Queue, in io.Reader, out io.Writer, settings *runSettings) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "obd> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, ":"):
			err := applyDirective(q, line, settings, out)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		default:
			if err := runCommands(ctx, q, []string{line}, *settings, out); err != nil {
				if isTransportErr(err) || ctx.Err() != nil {
					return err
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		fmt.Fprint(out, "obd> ")
	}
	return scanner.Err()
}

func applyDirective(q *obd.Queue, line string, settings *runSettings, out io.Writer) error {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return fmt.Errorf("empty directive")
	}
	switch fields[0] {
	case "quit", "q", "exit":
		return errQuit
	case "cache":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return fmt.Errorf("usage: :cache on|off")
		}
		settings.useCache = fields[1] == "on"
		fmt.Fprintf(out, "cache %s\n", fields[1])
	case "delay":
		if len(fields) != 2 {
			return fmt.Errorf("usage: :delay <duration>")
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			return fmt.Errorf("parse delay: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("delay must not be negative")
		}
		settings.delay = d
		fmt.Fprintf(out, "delay %s\n", d)
	case "clear":
		q.Conn().ClearCache()
		fmt.Fprintln(out, "cache cleared")
	case "status":
		fmt.Fprintf(out, "cache=%t delay=%s cached=%d\n", settings.useCache, settings.delay, q.Conn().Cache().Len())
	default:
		return fmt.Errorf("unknown directive %q", fields[0])
	}
	return nil
}

func isTransportErr(err error) bool {
	return errors.Is(err, protocol.ErrWrite) ||
		errors.Is(err, protocol.ErrFlush) ||
		errors.Is(err, protocol.ErrRead)
}
