package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/imap-reader/message"
)

func newListCmd() *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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
			uids, err := a.box.List(ctx, offset, limit)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}

			msgs := make([]*message.Message, 0, len(uids))
			for _, uid := range uids {
				ov, err := a.session.FetchOverview(ctx, uid)
				if err != nil {
					a.logger.Warn("overview unavailable", "uid", uid, "err", err)
					continue
				}
				msgs = append(msgs, message.FromOverview(a.session, ov, a.msgOpts))
			}

			msgs, err = a.filter.Apply(ctx, a.session, msgs)
			if err != nil {
				return err
			}

			views := make([]overviewView, 0, len(msgs))
			for _, m := range msgs {
				v, err := overviewOf(ctx, m)
				if err != nil {
					return err
				}
				views = append(views, v)
			}

			return render(a.out, a.cfg.Format, views, func(w io.Writer) error {
				for _, v := range views {
					fmt.Fprintf(w, "%6d  %s  %-30.30s  %s  [%s]\n", v.UID, v.Date.Format("2006-01-02 15:04"), v.From, v.Subject, strings.Join(v.Flags, " "))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Number of newest messages to skip")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of messages to list (0 lists all)")
	return cmd
}
