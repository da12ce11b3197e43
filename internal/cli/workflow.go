package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для workflow.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	cmd.AddCommand(newWorkflowSaveCmd(clientFn, outputFn))

	return cmd
}

func newWorkflowSaveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a workflow with its action tree from a JSON file",
		Long: `Save a workflow with its action tree.

The file holds {"workflow": {...}, "actions": [...]}. Use "-" to read stdin.
The whole action tree is replaced; cycles are rejected by the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := readDefinition(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			out := outputFn()
			resp, err := clientFn().SaveWorkflow(definition)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow saved: %s", resp.Workflow.ID))
			out.Print(
				[]string{"ID", "NAME", "OBJ_TYPE", "ACTIVE", "ACTIONS"},
				[][]string{{
					resp.Workflow.ID, resp.Workflow.Name, resp.Workflow.ObjType,
					strconv.FormatBool(resp.Workflow.Active), strconv.Itoa(len(resp.Actions)),
				}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Workflow definition file (JSON, - for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readDefinition читает JSON-описание workflow из файла или stdin.
func readDefinition(file string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("workflow definition %s is not valid JSON", file)
	}
	return json.RawMessage(data), nil
}
