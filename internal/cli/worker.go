package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewWorkerCmd создаёт группу команд для работы с worker и очередью.
func NewWorkerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run and enqueue background workers",
	}

	cmd.AddCommand(
		newWorkerListCmd(clientFn, outputFn),
		newWorkerRunCmd(clientFn, outputFn),
		newWorkerEnqueueCmd(clientFn, outputFn),
		newWorkerPurgeCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkerListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := clientFn().ListWorkers()
			if err != nil {
				return err
			}

			rows := make([][]string, len(names))
			for i, name := range names {
				rows[i] = []string{name}
			}
			outputFn().Print([]string{"NAME"}, rows, names)
			return nil
		},
	}
}

func newWorkerRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pf payloadFlags

	cmd := &cobra.Command{
		Use:   "run NAME",
		Short: "Run a worker synchronously, bypassing the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := pf.parse()
			if err != nil {
				return err
			}

			resp, err := clientFn().RunWorker(args[0], payload)
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"WORKER", "STATUS"},
				[][]string{{resp.Worker, resp.Status}},
				resp,
			)
			return nil
		},
	}

	pf.register(cmd)
	return cmd
}

func newWorkerEnqueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pf payloadFlags
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "enqueue NAME",
		Short: "Put a job on the worker queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := pf.parse()
			if err != nil {
				return err
			}
			if delay < 0 {
				return fmt.Errorf("--delay must not be negative")
			}

			out := outputFn()
			resp, err := clientFn().EnqueueJob(args[0], payload, delay)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job enqueued: %s", resp.Handle))
			out.Print(
				[]string{"HANDLE", "WORKER", "BACKEND"},
				[][]string{{resp.Handle, resp.Worker, resp.Backend}},
				resp,
			)
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().DurationVar(&delay, "delay", 0, "Delay before the job becomes available (e.g. 30s, 5m)")
	return cmd
}

func newWorkerPurgeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "purge NAME",
		Short: "Drop pending jobs of a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			resp, err := clientFn().PurgeJobs(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Purged %d job(s) of %s", resp.Purged, resp.Worker))
			out.Print(
				[]string{"WORKER", "PURGED"},
				[][]string{{resp.Worker, strconv.Itoa(resp.Purged)}},
				resp,
			)
			return nil
		},
	}
}

// payloadFlags — флаги --data KEY=VALUE и --payload JSON.
type payloadFlags struct {
	data []string
	raw  string
}

func (p *payloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&p.data, "data", nil, "Payload field as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&p.raw, "payload", "", "Payload as a JSON object")
}

// parse собирает payload. Поля --data перекрывают одноимённые поля --payload.
func (p *payloadFlags) parse() (map[string]any, error) {
	if p.raw == "" && len(p.data) == 0 {
		return nil, nil
	}

	payload := make(map[string]any)
	if p.raw != "" {
		if err := json.Unmarshal([]byte(p.raw), &payload); err != nil {
			return nil, fmt.Errorf("invalid --payload: %w", err)
		}
		if payload == nil {
			payload = make(map[string]any)
		}
	}

	for _, kv := range p.data {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid data format %q, expected KEY=VALUE", kv)
		}
		payload[parts[0]] = parts[1]
	}

	return payload, nil
}
