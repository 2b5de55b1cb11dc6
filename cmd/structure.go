package cmd

import (
	"io"

	"github.com/spf13/cobra"
)

func newStructureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "structure UID",
		Short: "Print a message's MIME part tree",
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

			root, err := a.message(uid).Structure(cmd.Context())
			if err != nil {
				return err
			}

			view := partOf(root)
			return render(a.out, a.cfg.Format, view, func(w io.Writer) error {
				writeTree(w, view, 0)
				return nil
			})
		},
	}
}
