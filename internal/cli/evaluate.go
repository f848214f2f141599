package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gig-geni-service/internal/app"
	"gig-geni-service/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewEvaluateCmd prints the journey for a participant record read from a file.
func NewEvaluateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a participant record and print its journey",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return evaluate(in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "participant JSON file (default stdin)")
	return cmd
}

func evaluate(in io.Reader, out io.Writer) error {
	var p domain.Participant
	if err := json.NewDecoder(in).Decode(&p); err != nil {
		return fmt.Errorf("decode participant: %w", err)
	}
	view, err := app.NewJourneyService(nil, zap.NewNop()).View(p)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
