package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ggufedit/internal/editor"
	"github.com/samcharles93/ggufedit/internal/logger"
)

func validateCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check the header and layout of GGUF files",
		ArgsUsage: "<file.gguf>...",
		Before:    setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return cli.Exit("error: validate needs at least one file", 2)
			}
			failed := 0
			for _, path := range cmd.Args().Slice() {
				if err := runValidate(ctx, stdout(cmd), path); err != nil {
					failed++
					logger.FromContext(ctx).Error("invalid file", "path", path, "stage", string(editor.StageOf(err)), "err", err)
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("error: %d of %d files failed validation", failed, cmd.Args().Len()), 1)
			}
			return nil
		},
	}
}

func runValidate(ctx context.Context, w io.Writer, path string) error {
	sess, err := editor.Open(ctx, path, editor.Options{Logger: logger.FromContext(ctx)})
	if err != nil {
		return err
	}
	defer sess.Close()

	f := sess.File()
	_, err = fmt.Fprintf(w, "ok: %s (version=%d tensors=%d kv=%d alignment=%d data_offset=%d)\n",
		path, f.Header.Version, f.Header.TensorCount, f.Header.KVCount, f.Alignment, f.DataOffset)
	return err
}
