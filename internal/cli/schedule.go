package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для отложенных заданий.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled jobs",
	}

	cmd.AddCommand(
		newScheduleAtCmd(clientFn, outputFn),
		newScheduleEveryCmd(clientFn, outputFn),
		newScheduleCronCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleDueCmd(clientFn, outputFn),
		newScheduleDoneCmd(clientFn, outputFn),
	)

	return cmd
}

func newScheduleAtCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pf payloadFlags
	var at string
	var in time.Duration

	cmd := &cobra.Command{
		Use:   "at WORKER",
		Short: "Schedule a one-off job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := pf.parse()
			if err != nil {
				return err
			}

			var executeAt time.Time
			switch {
			case at != "" && in != 0:
				return fmt.Errorf("--time and --in are mutually exclusive")
			case at != "":
				executeAt, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --time %q, expected RFC3339", at)
				}
			case in > 0:
				executeAt = time.Now().Add(in)
			default:
				return fmt.Errorf("one of --time or --in is required")
			}

			return createScheduled(clientFn(), outputFn(), CreateScheduledJobRequest{
				WorkerName: args[0],
				Payload:    payload,
				ExecuteAt:  &executeAt,
			})
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVar(&at, "time", "", "Execution time (RFC3339)")
	cmd.Flags().DurationVar(&in, "in", 0, "Execute after this delay (e.g. 10m)")
	return cmd
}

func newScheduleEveryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pf payloadFlags
	var interval int
	var start string
	var end string
	var dayOfMonth int

	cmd := &cobra.Command{
		Use:   "every UNIT WORKER",
		Short: "Schedule a recurring job (UNIT: minute, hour, day, week, month, year)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := pf.parse()
			if err != nil {
				return err
			}

			req := CreateScheduledJobRequest{WorkerName: args[1], Payload: payload}

			// Без границ и дня месяца хватает короткой формы: первый запуск сейчас
			if start == "" && end == "" && dayOfMonth == 0 {
				req.RecurrenceType = args[0]
				req.Interval = interval
			} else {
				req.Recurrence = &Recurrence{
					Type:       args[0],
					Interval:   interval,
					DateStart:  start,
					DateEnd:    end,
					DayOfMonth: dayOfMonth,
				}
			}

			return createScheduled(clientFn(), outputFn(), req)
		},
	}

	pf.register(cmd)
	cmd.Flags().IntVar(&interval, "interval", 1, "Number of units between runs")
	cmd.Flags().StringVar(&start, "start", "", "First run (RFC3339), default now")
	cmd.Flags().StringVar(&end, "end", "", "No runs after this time (RFC3339)")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "Day of month for monthly recurrence")
	return cmd
}

func newScheduleCronCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pf payloadFlags
	var start string

	cmd := &cobra.Command{
		Use:   "cron EXPR WORKER",
		Short: "Schedule a job by cron expression",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := pf.parse()
			if err != nil {
				return err
			}

			return createScheduled(clientFn(), outputFn(), CreateScheduledJobRequest{
				WorkerName: args[1],
				Payload:    payload,
				Recurrence: &Recurrence{Type: "cron", Expr: args[0], DateStart: start},
			})
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVar(&start, "start", "", "Do not run before this time (RFC3339)")
	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show scheduled job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := clientFn().GetScheduledJob(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(scheduledJobHeaders, [][]string{scheduledJobRow(*job)}, job)
			return nil
		},
	}
}

func newScheduleDueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var asOf string
	var workerName string

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List jobs that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			var t time.Time
			if asOf != "" {
				var err error
				t, err = time.Parse(time.RFC3339, asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of %q, expected RFC3339", asOf)
				}
			}

			jobs, err := clientFn().DueJobs(t, workerName)
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = scheduledJobRow(j)
			}
			outputFn().Print(scheduledJobHeaders, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "Reference time (RFC3339), default server time")
	cmd.Flags().StringVar(&workerName, "worker", "", "Filter by worker name")
	return cmd
}

func newScheduleDoneCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "done ID",
		Short: "Mark a scheduled job as executed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			job, err := clientFn().MarkExecuted(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Scheduled job %s marked as executed", job.ID))
			out.Print(scheduledJobHeaders, [][]string{scheduledJobRow(*job)}, job)
			return nil
		},
	}
}

// createScheduled отправляет запрос и печатает созданное задание.
func createScheduled(client *Client, out *Output, req CreateScheduledJobRequest) error {
	job, err := client.CreateScheduledJob(req)
	if err != nil {
		return err
	}

	out.Success(fmt.Sprintf("Scheduled job created: %s", job.ID))
	out.Print(scheduledJobHeaders, [][]string{scheduledJobRow(*job)}, job)
	return nil
}
