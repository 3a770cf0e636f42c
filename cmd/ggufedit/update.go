package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ggufedit/internal/editor"
	"github.com/samcharles93/ggufedit/internal/gguf"
	"github.com/samcharles93/ggufedit/internal/logger"
	"github.com/samcharles93/ggufedit/internal/request"
)

type updateParams struct {
	path    string
	sources request.Sources
	output  string
	dryRun  bool
	opts    editor.Options
}

func updateCmd() *cli.Command {
	var (
		settings updateSettings
		sources  request.Sources
		output   string
		dryRun   bool
	)

	return &cli.Command{
		Name:      "update",
		Usage:     "Change metadata values of a GGUF file",
		ArgsUsage: "<file.gguf>",
		Before:    setup,
		Flags: append(updateFlags(&settings),
			&cli.StringSliceFlag{
				Name:        "set",
				Aliases:     []string{"s"},
				Usage:       "key=value; the value is parsed as the key's existing type (repeatable)",
				Destination: &sources.Set,
			},
			&cli.StringFlag{
				Name:        "json",
				Usage:       `JSON object of updates, e.g. '{"general.name": "x", "n": {"type": "u16", "value": 7}}'`,
				Destination: &sources.JSON,
			},
			&cli.StringFlag{
				Name:        "request",
				Aliases:     []string{"r"},
				Usage:       "JSON or YAML file of updates",
				Destination: &sources.RequestFile,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Aliases:     []string{"n"},
				Usage:       "print the planned changes without writing",
				Destination: &dryRun,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "write the result to a new file instead of editing in place",
				Destination: &output,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: update takes exactly one file", 2)
			}
			applyUpdateConfig(cmd, appConfig, &settings)
			p := updateParams{
				path:    cmd.Args().First(),
				sources: sources,
				output:  output,
				dryRun:  dryRun,
				opts: editor.Options{
					NoInsert:     settings.noInsert,
					ForceRewrite: settings.forceRewrite,
					Backup:       settings.backup,
					BackupSuffix: settings.backupSuffix,
					Logger:       logger.FromContext(ctx),
				},
			}
			if err := runUpdate(ctx, stdout(cmd), p); err != nil {
				return fail(err)
			}
			return nil
		},
	}
}

func runUpdate(ctx context.Context, w io.Writer, p updateParams) error {
	updates, err := p.sources.Build()
	if err != nil {
		return err
	}

	sess, err := editor.Open(ctx, p.path, p.opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	plan, err := sess.Apply(ctx, updates)
	if err != nil {
		return err
	}
	if err := printPlan(w, plan); err != nil {
		return err
	}

	switch {
	case p.dryRun:
		_, err = fmt.Fprintln(w, "dry run: nothing written")
		return err
	case p.output != "":
		return sess.WriteTo(ctx, p.output)
	default:
		return sess.Commit(ctx)
	}
}

func printPlan(w io.Writer, p *editor.Plan) error {
	var errs []error
	printf := func(format string, args ...any) {
		_, err := fmt.Fprintf(w, format, args...)
		errs = append(errs, err)
	}
	for _, c := range p.Changes {
		switch {
		case c.Inserted:
			printf("%s: (new %s) %s\n", c.Key, c.New.Variant(), gguf.FormatValue(c.New, 8))
		case c.Unchanged:
			printf("%s: %s (unchanged)\n", c.Key, gguf.FormatValue(c.New, 8))
		default:
			printf("%s: %s -> %s\n", c.Key, gguf.FormatValue(c.Old, 8), gguf.FormatValue(c.New, 8))
		}
	}
	printf("mode=%s metadata=%d->%d data_offset=%d->%d delta=%+d size=%d->%d\n",
		p.Mode, p.OldMetadataSize, p.NewMetadataSize, p.OldDataOffset, p.NewDataOffset,
		p.Delta, p.OldSize, p.NewSize)
	return errors.Join(errs...)
}
