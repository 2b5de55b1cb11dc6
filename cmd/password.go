package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dhcgn/imap-reader/credential"
)

// storePassword is replaced in tests.
var storePassword = credential.Set

func newStorePasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "store-password",
		Short: "Save the IMAP password for --imap-user at --imap-host in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			user, err := flags.GetString("imap-user")
			if err != nil {
				return err
			}
			host, err := flags.GetString("imap-host")
			if err != nil {
				return err
			}
			if user == "" || host == "" {
				return fmt.Errorf("--imap-user and --imap-host are required")
			}

			pass, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if pass == "" {
				return fmt.Errorf("empty password")
			}

			key := credential.Key(user, host)
			if err := storePassword(key, pass); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored password for %s@%s\n", user, host)
			return nil
		},
	}
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		pass, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pass), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
