package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewEventCmd создаёт группу команд для событий сущностей.
func NewEventCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Notify workflows about entity events",
	}

	cmd.AddCommand(newEventNotifyCmd(clientFn, outputFn))

	return cmd
}

func newEventNotifyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req EventRequest

	cmd := &cobra.Command{
		Use:   "notify OBJ_TYPE ENTITY_ID EVENT",
		Short: "Report an entity event (create, update, delete)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ObjType = args[0]
			req.EntityID = args[1]
			req.Event = args[2]

			out := outputFn()
			resp, err := clientFn().NotifyEvent(req)
			if err != nil {
				return err
			}

			if resp.Handle != "" {
				out.Success(fmt.Sprintf("Event enqueued: %s", resp.Handle))
			} else {
				out.Success(fmt.Sprintf("Workflows started: %d", len(resp.InstanceIDs)))
			}

			out.Print(
				[]string{"INSTANCES", "HANDLE"},
				[][]string{{strings.Join(resp.InstanceIDs, ","), resp.Handle}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.UserID, "user-id", "", "Acting user ID (default: system user)")
	cmd.Flags().StringVar(&req.AccountID, "account-id", "", "Acting user account ID")
	cmd.Flags().BoolVar(&req.Async, "async", false, "Process the event on a worker instead of inline")
	return cmd
}
