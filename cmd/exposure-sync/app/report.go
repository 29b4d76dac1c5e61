package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/proxtrace/exposure-sync/internal/tracing"
)

const maxAuthorizationLength = 4096

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report an infection and upload the keys rolled since onset",
	Long: `Report an infection to the backend. The keys rolled since --onset are
uploaded, padded with fake keys, and tracing stops.

The health authority code is read from the terminal without echo, or from
stdin when it is not a terminal. With --fake a request made only of fake keys
is sent and local state is left untouched.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("onset", "", "Date of symptom onset or positive test (2006-01-02)")
	reportCmd.Flags().Bool("fake", false, "Send a fake report")
}

func runReport(cmd *cobra.Command, args []string) error {
	fake, err := cmd.Flags().GetBool("fake")
	if err != nil {
		return fmt.Errorf("failed to get fake flag: %w", err)
	}
	onsetFlag, err := cmd.Flags().GetString("onset")
	if err != nil {
		return fmt.Errorf("failed to get onset flag: %w", err)
	}

	var onset time.Time
	if !fake {
		if onsetFlag == "" {
			return fmt.Errorf("--onset is required")
		}
		day, err := time.Parse(time.DateOnly, onsetFlag)
		if err != nil {
			return fmt.Errorf("invalid onset %q: %w", onsetFlag, err)
		}
		// dates are taken at noon UTC, as the status API does
		onset = day.Add(12 * time.Hour)
	}

	code, err := readAuthorization(cmd)
	if err != nil {
		return err
	}

	return withClient(func(ctx context.Context, client *tracing.Client) (any, error) {
		if fake {
			return nil, client.SendFakeInfectedRequest(ctx, code)
		}
		return nil, client.ReportInfected(ctx, onset, code)
	})(cmd, args)
}

// readAuthorization reads the health authority code, hiding it when typed on a terminal
func readAuthorization(cmd *cobra.Command) (string, error) {
	var raw []byte
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Authorization code: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		raw = b
	} else {
		b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxAuthorizationLength))
		if err != nil {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		raw = b
	}

	code := strings.TrimSpace(string(raw))
	if code == "" {
		return "", fmt.Errorf("authorization code cannot be empty")
	}
	return code, nil
}
