package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
)

// MedicationList is printed by `medications`.
type MedicationList []*report.Medication

func (l MedicationList) String() string {
	if len(l) == 0 {
		return "no medications"
	}
	names := make([]string, len(l))
	for i, m := range l {
		names[i] = m.Name
	}
	return strings.Join(names, "\n")
}

func (l MedicationList) TableHeaders() []string {
	return []string{"ID", "NAME", "RXNORM", "NDC"}
}

func (l MedicationList) TableRows() [][]string {
	rows := make([][]string, len(l))
	for i, m := range l {
		rows[i] = []string{strconv.FormatInt(m.ID, 10), m.Name, deref(m.RxNormCode), deref(m.NDCCode)}
	}
	return rows
}

// NewMedicationsCmd creates the medications command.
func NewMedicationsCmd(deps Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "medications",
		Short: "List the canonical medication catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(cmd, cc)
			defer cancel()

			meds, release, err := deps.OpenMedications(ctx, cc.Config, cc.Logger)
			if err != nil {
				return err
			}
			defer release()

			list, err := meds.List(ctx)
			if err != nil {
				return err
			}
			if list == nil {
				list = []*report.Medication{}
			}
			return PrintResult(cmd, MedicationList(list))
		},
	}
}
