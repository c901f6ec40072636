package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/core"
)

// errNotDone reports a false result from a disk that swallows failures;
// the cause is in the warning log.
var errNotDone = errors.New("operation did not complete, see log for details")

var (
	listRecursive  bool
	listDirs       bool
	putVisibility  string
	tempURLExpires time.Duration
)

// withDisk wraps a file command: configuration, manager and the --disk
// driver are ready when fn runs.
func withDisk(fn func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		d, err := a.manager.Disk(diskName)
		if err != nil {
			return err
		}
		return fn(cmd.Context(), cmd, d, args)
	}
}

func check(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return errNotDone
	}
	return nil
}

func addFileCommands(root *cobra.Command) {
	lsCmd := &cobra.Command{
		Use:   "ls [directory]",
		Short: "List files (or directories with --dirs)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}

			var entries []string
			var err error
			switch {
			case listDirs && listRecursive:
				entries, err = d.AllDirectories(ctx, dir)
			case listDirs:
				entries, err = d.Directories(ctx, dir)
			case listRecursive:
				entries, err = d.AllFiles(ctx, dir)
			default:
				entries, err = d.Files(ctx, dir)
			}
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		}),
	}
	lsCmd.Flags().BoolVarP(&listRecursive, "recursive", "r", false, "Walk subdirectories")
	lsCmd.Flags().BoolVar(&listDirs, "dirs", false, "List directories instead of files")

	catCmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			r, err := d.ReadStream(ctx, args[0])
			if err != nil {
				return err
			}
			if r == nil {
				return errNotDone
			}
			defer r.Close()
			_, err = io.Copy(cmd.OutOrStdout(), r)
			return err
		}),
	}

	putCmd := &cobra.Command{
		Use:   "put <path> [local-file]",
		Short: "Store a local file, or stdin, at path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			var opts []core.Option
			if putVisibility != "" {
				opts = append(opts, backends.Visibility(putVisibility))
			}
			if len(args) == 2 {
				dir, name := path.Split(args[0])
				stored, err := d.PutFileAs(ctx, dir, core.NewFile(args[1]), name, opts...)
				if err != nil {
					return err
				}
				if stored == "" {
					return errNotDone
				}
				fmt.Fprintln(cmd.OutOrStdout(), stored)
				return nil
			}
			return check(d.WriteStream(ctx, args[0], cmd.InOrStdin(), opts...))
		}),
	}
	putCmd.Flags().StringVar(&putVisibility, "visibility", "", "public or private (disk default when empty)")

	rmCmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files",
		Args:  cobra.MinimumNArgs(1),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			return check(d.Delete(ctx, args...))
		}),
	}

	rmdirCmd := &cobra.Command{
		Use:   "rmdir <path>",
		Short: "Delete a directory and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			return check(d.DeleteDirectory(ctx, args[0]))
		}),
	}

	mkdirCmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory and its parents",
		Args:  cobra.ExactArgs(1),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			return check(d.MakeDirectory(ctx, args[0]))
		}),
	}

	cpCmd := &cobra.Command{
		Use:   "cp <from> <to>",
		Short: "Copy a file within the disk",
		Args:  cobra.ExactArgs(2),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			return check(d.Copy(ctx, args[0], args[1]))
		}),
	}

	mvCmd := &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Move a file within the disk",
		Args:  cobra.ExactArgs(2),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			return check(d.Move(ctx, args[0], args[1]))
		}),
	}

	statCmd := &cobra.Command{
		Use:   "stat <path>",
		Short: "Show size, type, modification time and visibility",
		Args:  cobra.ExactArgs(1),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			size, err := d.Size(ctx, args[0])
			if err != nil {
				return err
			}
			modified, err := d.LastModified(ctx, args[0])
			if err != nil {
				return err
			}
			mimeType, err := d.MimeType(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Size:          %d\n", size)
			fmt.Fprintf(out, "MIME type:     %s\n", mimeType)
			fmt.Fprintf(out, "Last modified: %s\n", modified.Format(time.RFC3339))
			if v, err := d.GetVisibility(ctx, args[0]); err == nil {
				fmt.Fprintf(out, "Visibility:    %s\n", v)
			}
			return nil
		}),
	}

	urlCmd := &cobra.Command{
		Use:   "url <path>",
		Short: "Print the public URL of a file",
		Args:  cobra.ExactArgs(1),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			u, err := d.URL(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		}),
	}

	tempURLCmd := &cobra.Command{
		Use:   "temp-url <path>",
		Short: "Print a URL that expires",
		Args:  cobra.ExactArgs(1),
		RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
			if tempURLExpires <= 0 {
				return fmt.Errorf("--expires must be positive")
			}
			u, err := d.TemporaryURL(ctx, args[0], time.Now().Add(tempURLExpires))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		}),
	}
	tempURLCmd.Flags().DurationVar(&tempURLExpires, "expires", time.Hour, "Lifetime of the URL")

	visibilityCmd := &cobra.Command{
		Use:   "visibility",
		Short: "Read or change file visibility",
	}
	visibilityCmd.AddCommand(
		&cobra.Command{
			Use:   "get <path>",
			Short: "Print public or private",
			Args:  cobra.ExactArgs(1),
			RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
				v, err := d.GetVisibility(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}),
		},
		&cobra.Command{
			Use:       "set <path> <public|private>",
			Short:     "Change the visibility of a file",
			Args:      cobra.ExactArgs(2),
			ValidArgs: []string{string(backends.Public), string(backends.Private)},
			RunE: withDisk(func(ctx context.Context, cmd *cobra.Command, d *core.Driver, args []string) error {
				switch backends.Visibility(args[1]) {
				case backends.Public, backends.Private:
				default:
					return fmt.Errorf("visibility must be public or private, got %q", args[1])
				}
				return check(d.SetVisibility(ctx, args[0], backends.Visibility(args[1])))
			}),
		},
	)

	root.AddCommand(lsCmd, catCmd, putCmd, rmCmd, rmdirCmd, mkdirCmd, cpCmd, mvCmd, statCmd, urlCmd, tempURLCmd, visibilityCmd)
}
