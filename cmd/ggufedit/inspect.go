package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ggufedit/internal/gguf"
	"github.com/samcharles93/ggufedit/internal/inspect"
	"github.com/samcharles93/ggufedit/internal/logger"
)

func inspectCmd() *cli.Command {
	var (
		opts     = inspect.DefaultOptions
		asJSON   bool
		tensors  int
		noTensors bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header, layout, metadata and tensors of a GGUF file",
		ArgsUsage: "<file.gguf>",
		Before:    setup,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
			&cli.IntFlag{Name: "array-limit", Usage: "limit elements listed per array (0 = no limit)", Value: opts.ArrayLimit, Destination: &opts.ArrayLimit},
			&cli.IntFlag{Name: "tensors", Usage: "limit tensor listing (-1 = no limit)", Value: 50, Destination: &tensors},
			&cli.BoolFlag{Name: "no-tensors", Usage: "skip the tensor listing", Destination: &noTensors},
			&cli.StringFlag{Name: "filter", Usage: "substring filter for keys and tensor names", Destination: &opts.Filter},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: inspect takes exactly one file", 2)
			}
			opts.TensorLimit = tensors
			if noTensors {
				opts.TensorLimit = 0
			}
			if err := runInspect(ctx, stdout(cmd), cmd.Args().First(), opts, asJSON); err != nil {
				return fail(err)
			}
			return nil
		},
	}
}

// runInspect decodes path without requiring it to pass validation, so a
// damaged layout can still be looked at. Validation problems are logged.
func runInspect(ctx context.Context, w io.Writer, path string, opts inspect.Options, asJSON bool) error {
	log := logger.FromContext(ctx)

	f, err := gguf.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := gguf.Validate(f); err != nil {
		log.Warn("file does not validate", "path", path, "err", err)
	}

	report := inspect.Build(f, opts)
	if !asJSON {
		return inspect.WriteText(w, report)
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
