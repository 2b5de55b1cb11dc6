package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var subtype string

	cmd := &cobra.Command{
		Use:   "show UID",
		Short: "Print a message's header fields and text body",
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
			m := a.message(uid)

			ov, err := overviewOf(ctx, m)
			if err != nil {
				return err
			}
			body, ok, err := m.Body(ctx, subtype)
			if err != nil {
				return err
			}
			attachments, err := m.Attachments(ctx)
			if err != nil {
				return err
			}

			view := messageView{overviewView: ov, Subtype: subtype, HasBody: ok, Body: body}
			for _, f := range attachments {
				view.Attachments = append(view.Attachments, fileOf(f))
			}

			return render(a.out, a.cfg.Format, view, func(w io.Writer) error {
				fmt.Fprintf(w, "From:    %s\n", view.From)
				fmt.Fprintf(w, "To:      %s\n", view.To)
				fmt.Fprintf(w, "Date:    %s\n", view.Date.Format("Mon, 02 Jan 2006 15:04:05 -0700"))
				fmt.Fprintf(w, "Subject: %s\n", view.Subject)
				for _, f := range view.Attachments {
					fmt.Fprintf(w, "Attach:  %s (%s, %d bytes)\n", f.Filename, f.MIMEType, f.Size)
				}
				fmt.Fprintln(w)
				if !view.HasBody {
					fmt.Fprintln(w, "(no text body)")
					return nil
				}
				fmt.Fprintln(w, view.Body)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&subtype, "subtype", "plain", "Text subtype to render, e.g. plain or html")
	return cmd
}
