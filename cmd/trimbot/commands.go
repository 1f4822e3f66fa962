package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"trimbot/internal/engine"
	"trimbot/internal/telegram"
)

func newBotCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			if err := cfg.RequireTelegram(); err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			eng, err := engine.New(cfg, log, engine.NewMetrics(reg))
			if err != nil {
				return err
			}

			client, err := telegram.NewClient(cfg.Telegram, log)
			if err != nil {
				return err
			}
			bot := telegram.New(client, eng, cfg.Telegram, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info().Str("mode", cfg.Telegram.Mode).Msg("bot is running, press Ctrl-C to stop")
			runErr := bot.Run(ctx, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if cfg.Engine.Stats {
				eng.Stats().Print(os.Stderr)
			}
			return runErr
		},
	}
}

func newRewriteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite [text...]",
		Short: "Shorten the links in the given text, or in stdin line by line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			eng, err := engine.New(cfg, log, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(args) > 0 {
				out, _ := eng.Apply(ctx, strings.Join(args, " "))
				_, err = io.WriteString(cmd.OutOrStdout(), out+"\n")
			} else {
				err = run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), eng)
			}
			if cfg.Engine.Stats {
				eng.Stats().Print(os.Stderr)
			}
			return err
		},
	}
}

// Telegram caps messages at 4096 characters; stdin lines may be pasted
// exports, so allow far more.
const maxLineBytes = 10 << 20

type applier interface {
	Apply(ctx context.Context, text string) (string, bool)
}

func run(ctx context.Context, r io.Reader, w io.Writer, eng applier) error {
	scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	// Each line is one message, rewritten independently.
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, _ := eng.Apply(ctx, scanner.Text())
		if _, err := fmt.Fprintln(bw, out); err != nil {
			return errors.Wrapf(err, "write line %d", line)
		}
	}
	return errors.Wrap(scanner.Err(), "read messages")
}
