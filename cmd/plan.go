package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/taskman/internal/utils"
	"github.com/maxkimambo/taskman/internal/workflow"
)

var planCmd = &cobra.Command{
	Use:   "plan <workflow.yaml>",
	Short: "Validate a workflow without running its commands",
	Long: `Plan loads a YAML workflow, prints its task graph and dry-runs it:
the graph is checked for missing references and cycles and traversed
wave by wave, but no command is executed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := workflow.Load(args[0])
		if err != nil {
			return err
		}

		table := utils.NewTable("TASK", "REQUIRES", "ACTIVE")
		for _, name := range m.TaskNames() {
			t, _ := m.Get(name)
			table.AddRow(t.Name(), strings.Join(t.Reqs(), ", "), fmt.Sprintf("%t", t.Active()))
		}
		cmd.Println(table.String())

		m.SetDryRun(true)
		if _, err := m.Go(); err != nil {
			return err
		}
		cmd.Printf("workflow %q is valid: %d task(s)\n", m.Name(), m.Size())
		return nil
	},
}
