package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/RAG-HealthBot/internal/domain/medication"
)

// NormalizedName pairs a raw mention with its canonical form.
type NormalizedName struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
}

// NormalizedNames is printed by `normalize`.
type NormalizedNames []NormalizedName

func (n NormalizedNames) String() string {
	lines := make([]string, len(n))
	for i, x := range n {
		lines[i] = fmt.Sprintf("%s => %s", x.Raw, x.Normalized)
	}
	return strings.Join(lines, "\n")
}

func (n NormalizedNames) TableHeaders() []string { return []string{"RAW", "NORMALIZED"} }

func (n NormalizedNames) TableRows() [][]string {
	rows := make([][]string, len(n))
	for i, x := range n {
		rows[i] = []string{x.Raw, x.Normalized}
	}
	return rows
}

// NewNormalizeCmd creates the normalize command. It needs no backends.
func NewNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <name...>",
		Short: "Show the canonical form of medication names",
		Example: `  healthbot normalize "Losartan 50 mg once daily (lifelong)"
  healthbot normalize -o table "metformin 500mg" "sodium bicarbonate treatment"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make(NormalizedNames, len(args))
			for i, raw := range args {
				out[i] = NormalizedName{Raw: raw, Normalized: medication.Normalize(raw)}
			}
			return PrintResult(cmd, out)
		},
	}
}
