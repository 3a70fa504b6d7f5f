package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailgoal/mailgoal/internal/app"
	"github.com/mailgoal/mailgoal/internal/config"
	"github.com/mailgoal/mailgoal/internal/content"
	"github.com/mailgoal/mailgoal/internal/logger"
	"github.com/mailgoal/mailgoal/internal/model"
	"github.com/mailgoal/mailgoal/internal/schedule"
	"github.com/mailgoal/mailgoal/internal/validation"
)

type previewOptions struct {
	name      string
	goal      string
	deadline  string
	tone      string
	frequency string
	format    string
	fallback  bool
}

func PreviewCmd() *cobra.Command {
	opts := previewOptions{}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a reminder without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Init(cfg.IsDevelopment(), cfg.SentryDSN, cfg.AppEnv)
			defer logger.Flush()

			ctx := context.Background()
			var backend content.Backend = content.NopBackend{}
			if !opts.fallback && opts.format != "prompt" {
				backend = app.NewContentBackend(ctx, cfg)
			}
			generator := content.NewGenerator(backend, content.WithTimeout(cfg.GenerationTimeout))
			today := schedule.NewPolicy(cfg.Location, cfg.FrequencyIntervals, cfg.StopAfterDeadline).Today(time.Now())

			return runPreview(ctx, os.Stdout, generator, opts, today)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "Test User", "Recipient name")
	cmd.Flags().StringVar(&opts.goal, "goal", "Launch my side project", "Goal text")
	cmd.Flags().StringVar(&opts.deadline, "deadline", "", "Deadline as YYYY-MM-DD or DD/MM/YYYY (default: 7 days from today)")
	cmd.Flags().StringVar(&opts.tone, "tone", model.ToneElon, "Persona: elon, jobs, sam, naval or future")
	cmd.Flags().StringVar(&opts.frequency, "frequency", model.FrequencyWeekly, "Reminder frequency")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output: text, html or prompt")
	cmd.Flags().BoolVar(&opts.fallback, "fallback", false, "Skip the generative backend and render the template")

	return cmd
}

func runPreview(ctx context.Context, w io.Writer, generator *content.Generator, opts previewOptions, today time.Time) error {
	deadline := today.AddDate(0, 0, 7)
	if opts.deadline != "" {
		value, err := validation.ParseDeadline(opts.deadline, today)
		if err != nil {
			return fmt.Errorf("--deadline: %w", err)
		}
		deadline, err = time.ParseInLocation(schedule.DateLayout, value, today.Location())
		if err != nil {
			return fmt.Errorf("--deadline: %w", err)
		}
	}

	goal := &model.Goal{
		ID:        "preview",
		Name:      opts.name,
		Goal:      opts.goal,
		Frequency: opts.frequency,
		Tone:      opts.tone,
	}
	snap := content.NewSnapshot(goal, deadline, today)

	if opts.format == "prompt" {
		_, err := fmt.Fprint(w, generator.Prompt(snap))
		return err
	}

	c := generator.Generate(ctx, snap)
	source := "template"
	if c.Generated {
		source = "generated"
	}

	switch opts.format {
	case "html":
		_, err := fmt.Fprintln(w, c.HTML)
		return err
	case "text":
		_, err := fmt.Fprintf(w, "Subject: %s\nSource: %s\n\n%s\n", c.Subject, source, c.Text)
		return err
	default:
		return fmt.Errorf("unknown --format %q", opts.format)
	}
}
