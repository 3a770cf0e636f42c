package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ggufedit/internal/backup"
	"github.com/samcharles93/ggufedit/internal/fs"
	"github.com/samcharles93/ggufedit/internal/logger"
)

func backupCmd() *cli.Command {
	var (
		output string
		suffix string
	)

	return &cli.Command{
		Name:      "backup",
		Usage:     "Write a byte-identical copy of a file",
		ArgsUsage: "<file.gguf>",
		Before:    setup,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "backup path (default: <file><suffix>)",
				Destination: &output,
			},
			&cli.StringFlag{
				Name:        "backup-suffix",
				Usage:       "suffix used when --output is not given",
				Value:       backup.DefaultSuffix,
				Destination: &suffix,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: backup takes exactly one file", 2)
			}
			if appConfig.BackupSuffix != "" && !cmd.IsSet("backup-suffix") {
				suffix = appConfig.BackupSuffix
			}
			if err := runBackup(ctx, stdout(cmd), cmd.Args().First(), output, suffix); err != nil {
				return fail(err)
			}
			return nil
		},
	}
}

// runBackup copies src without decoding it; damaged files can be saved
// too.
func runBackup(ctx context.Context, w io.Writer, src, dst, suffix string) error {
	if dst == "" {
		dst = backup.Path(src, suffix)
	}
	n, err := backup.Copy(ctx, fs.Default, src, dst)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("backup written", "src", src, "dst", dst, "bytes", n)
	_, err = fmt.Fprintf(w, "%s -> %s (%d bytes)\n", src, dst, n)
	return err
}
