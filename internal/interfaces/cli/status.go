package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/redis"
)

// JobView renders a job status record.
type JobView struct {
	*redis.Job
}

func (v JobView) MarshalJSON() ([]byte, error) {
	return jsonMarshal(v.Job)
}

func (v JobView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "job:     %s\n", v.ID)
	if v.FileName != "" {
		fmt.Fprintf(&sb, "file:    %s\n", v.FileName)
	}
	fmt.Fprintf(&sb, "status:  %s", v.Status)
	if v.Stage != "" {
		fmt.Fprintf(&sb, "\nstage:   %s", v.Stage)
	}
	if v.Error != "" {
		fmt.Fprintf(&sb, "\nerror:   %s", v.Error)
	}
	if !v.UpdatedAt.IsZero() {
		fmt.Fprintf(&sb, "\nupdated: %s", v.UpdatedAt.Format(time.RFC3339))
	}
	if len(v.Result) > 0 {
		fmt.Fprintf(&sb, "\nresult:  %s", v.Result)
	}
	return sb.String()
}

func (v JobView) TableHeaders() []string {
	return []string{"JOB", "STATUS", "STAGE", "ERROR"}
}

func (v JobView) TableRows() [][]string {
	return [][]string{{v.ID, string(v.Status), v.Stage, v.Error}}
}

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// NewStatusCmd creates the status command.
func NewStatusCmd(deps Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of an intake job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(cmd, cc)
			defer cancel()

			jobs, release, err := deps.OpenJobs(ctx, cc.Config, cc.Logger)
			if err != nil {
				return err
			}
			defer release()

			job, err := jobs.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, JobView{job})
		},
	}
}
