package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newAttachmentsCmd() *cobra.Command {
	var saveDir string

	cmd := &cobra.Command{
		Use:   "attachments UID",
		Short: "List a message's attachments, optionally saving them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); err == nil {
					err = cerr
				}
			}()

			ctx := cmd.Context()
			files, err := a.message(uid).Attachments(ctx)
			if err != nil {
				return err
			}

			if saveDir != "" {
				if err := os.MkdirAll(saveDir, 0o755); err != nil {
					return err
				}
			}

			views := make([]fileView, 0, len(files))
			for _, f := range files {
				v := fileOf(f)
				if saveDir != "" {
					data, err := f.Data(ctx)
					if err != nil {
						return fmt.Errorf("attachment %s: %w", f.Path(), err)
					}
					dest := filepath.Join(saveDir, filepath.Base(f.Filename()))
					if err := os.WriteFile(dest, data, 0o644); err != nil {
						return fmt.Errorf("save attachment: %w", err)
					}
					a.logger.Debug("attachment saved", "uid", uid, "path", f.Path(), "file", dest, "bytes", len(data))
					v.SavedTo = dest
				}
				views = append(views, v)
			}

			return render(a.out, a.cfg.Format, views, func(w io.Writer) error {
				for _, v := range views {
					fmt.Fprintf(w, "%-6s %-40s %-28s %8d", v.Path, v.Filename, v.MIMEType, v.Size)
					if v.SavedTo != "" {
						fmt.Fprintf(w, "  -> %s", v.SavedTo)
					}
					fmt.Fprintln(w)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&saveDir, "save", "", "Write attachment data into this directory")
	return cmd
}
