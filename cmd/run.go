package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/taskman/internal/logger"
	"github.com/maxkimambo/taskman/internal/taskmanager"
	"github.com/maxkimambo/taskman/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Run a workflow file",
	Long: `Run loads a YAML workflow and executes it. The command fails when any
task times out or finishes with a return code outside the workflow's
continue set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := workflow.Load(args[0])
		if err != nil {
			return err
		}
		rc, err := m.Go()
		if err != nil {
			return err
		}
		if rc != taskmanager.RCOkay {
			return fmt.Errorf("workflow %q finished with worst rc %d (%s)", m.Name(), rc, rc)
		}
		logger.L().WithField("workflow", m.Name()).Infof("workflow finished in %s", m.Duration().Round(time.Millisecond))
		return nil
	},
}
