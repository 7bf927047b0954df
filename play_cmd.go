package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jasonshaw0/eng-final/internal/autoplay"
	"github.com/jasonshaw0/eng-final/internal/config"
)

var (
	dryRun bool

	playCmd = &cobra.Command{
		Use:   "play [DECK]",
		Short: "Narrate the deck slide by slide",
		Long: paragraph(fmt.Sprintf("\n%s audio for any slide that lacks it, then narrates every slide in order. "+
			"Press p, r, n, s or + to pause, resume, skip, stop or change speed, and q to quit. "+
			"When input is not a terminal, type one control letter per line.", keyword("Generates"))),
		Example: paragraph("narrate play\nnarrate play talk.yaml --rate 1.25\nnarrate play --dry-run"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runPlay,
	}
)

func init() {
	playCmd.Flags().BoolVar(&dryRun, "dry-run", false, "keep time without an audio device")
}

func deckArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// statusView receives the orchestrator's callbacks.
type statusView interface {
	Navigate(slide int)
	Update(s autoplay.State)
	Message(msg string)
}

func runPlay(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, deckArg(args))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	player, err := newPlayer(dryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	interactive := isTerminal(cmd.InOrStdin())

	var view statusView
	pv := &programView{}
	if interactive {
		view = pv
	} else {
		view = newStatusPrinter(out, a.deck, terminalWidth())
	}

	o, err := a.newOrchestrator(player, view.Navigate)
	if err != nil {
		_ = player.Close()
		return err
	}
	defer func() { _ = o.Close() }()
	o.OnStateChange(view.Update)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	var program *tea.Program
	if interactive {
		m := newPlayModel(o, func() error { return o.Start(ctx) }, a.deck, terminalWidth())
		program = tea.NewProgram(m,
			tea.WithContext(ctx),
			tea.WithInput(cmd.InOrStdin()),
			tea.WithOutput(out),
		)
		pv.p = program
	}

	if viper.ConfigFileUsed() != "" {
		config.Watch(viper.GetViper(), a.logger.WithPrefix("config"), func(c config.Config) {
			a.cred.Set(c.APIKey)
			if c.PlaybackRate != o.State().PlaybackRate {
				if err := o.ChangeSpeed(c.PlaybackRate); err != nil {
					view.Message(err.Error())
				}
			}
		})
	}

	quit := false
	if interactive {
		final, err := program.Run()
		o.Stop()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		if fm, ok := final.(playModel); ok {
			if fm.err != nil {
				return fm.err
			}
			quit = fm.quitting
		}
	} else {
		go readControls(ctx, cmd.InOrStdin(), o, cancel, view.Message)

		fmt.Fprintln(out, faintStyle.Render(controlsHelp))
		if err := o.Start(ctx); err != nil {
			return err
		}
	}

	st := o.State()
	if st.CurrentSlide == len(a.deck)-1 && ctx.Err() == nil && !quit {
		fmt.Fprintln(out, keyword("Finished."))
	}
	return nil
}
