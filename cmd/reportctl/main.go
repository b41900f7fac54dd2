// Command reportctl uploads financial reports and follows their analysis.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"financial-reporter/internal/reportclient"
	"financial-reporter/internal/reports"
)

type options struct {
	server   string
	token    string
	guestID  string
	userID   string
	interval time.Duration
	timeout  time.Duration
	json     bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "reportctl",
		Short:        "Upload financial reports and follow their analysis",
		SilenceUsage: true,
	}
	root.SetOut(out)
	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("REPORTS_API_URL", "http://localhost:8000"), "API base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("REPORTS_API_TOKEN"), "bearer token")
	flags.StringVar(&opts.guestID, "guest-id", "", "guest id sent when no token is set")
	flags.StringVar(&opts.userID, "user", "", "user id for uploads and listing")
	flags.BoolVar(&opts.json, "json", false, "print raw JSON")

	root.AddCommand(
		uploadCmd(opts),
		getCmd(opts),
		listCmd(opts),
		analyzeCmd(opts),
		waitCmd(opts),
	)
	return root
}

func (o *options) client() *reportclient.Client {
	c := reportclient.New(o.server)
	c.Token = o.token
	c.GuestID = o.guestID
	return c
}

func (o *options) pollFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&o.interval, "interval", reportclient.DefaultPollInterval, "poll interval")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 10*time.Minute, "give up after this long")
}

func (o *options) poll(cmd *cobra.Command, id string) error {
	out := cmd.OutOrStdout()
	last := ""
	report, err := o.client().Poll(cmd.Context(), id, reportclient.PollOptions{
		Interval: o.interval,
		Timeout:  o.timeout,
		OnUpdate: func(r reportclient.Report) {
			if r.Status != last && !o.json {
				fmt.Fprintf(out, "%s  %s\n", time.Now().Format(time.TimeOnly), r.Status)
				last = r.Status
			}
		},
	})
	if err != nil && report.ID == "" {
		return err
	}
	if printErr := o.print(out, report); printErr != nil {
		return printErr
	}
	return err
}

func uploadCmd(opts *options) *cobra.Command {
	var analyze, wait bool
	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.client().UploadFile(cmd.Context(), args[0], opts.userID)
			if err != nil {
				return err
			}
			if !analyze {
				return opts.print(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", report.ID)
			if err := opts.startAnalysis(cmd, report.ID); err != nil {
				return err
			}
			if !wait {
				return nil
			}
			return opts.poll(cmd, report.ID)
		},
	}
	cmd.Flags().BoolVar(&analyze, "analyze", false, "start analysis after upload")
	cmd.Flags().BoolVar(&wait, "wait", false, "with --analyze, wait for the analysis to finish")
	opts.pollFlags(cmd)
	return cmd
}

// startAnalysis retries analyze while extraction still holds the report.
func (o *options) startAnalysis(cmd *cobra.Command, id string) error {
	client := o.client()
	interval := o.interval
	if interval <= 0 {
		interval = reportclient.DefaultPollInterval
	}
	deadline := time.Now().Add(o.timeout)
	for {
		_, err := client.Analyze(cmd.Context(), id)
		var apiErr *reportclient.APIError
		if err == nil || !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || time.Now().After(deadline) {
			return err
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(interval):
		}
	}
}

func getCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), report)
		},
	}
}

func listCmd(opts *options) *cobra.Command {
	var status string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := opts.client().List(cmd.Context(), reportclient.ListOptions{
				UserID: opts.userID,
				Status: status,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, items)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tFILE\tUPLOADED")
			for _, r := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Status, r.FileName, r.UploadDate.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func analyzeCmd(opts *options) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "analyze <id>",
		Short: "Start analysis of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.startAnalysis(cmd, args[0]); err != nil {
				return err
			}
			if !wait {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], reports.StatusProcessing)
				return nil
			}
			return opts.poll(cmd, args[0])
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the analysis to finish")
	opts.pollFlags(cmd)
	return cmd
}

func waitCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Poll a report until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.poll(cmd, args[0])
		},
	}
	opts.pollFlags(cmd)
	return cmd
}

func (o *options) print(out io.Writer, r reportclient.Report) error {
	if o.json {
		return writeJSON(out, r)
	}
	fmt.Fprintf(out, "id:       %s\n", r.ID)
	fmt.Fprintf(out, "file:     %s (%d bytes)\n", r.FileName, r.FileSize)
	fmt.Fprintf(out, "status:   %s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(out, "error:    %s\n", r.Error)
	}
	if a := r.Analysis; a != nil {
		fmt.Fprintf(out, "summary:  %s\n", a.Summary)
		fmt.Fprintf(out, "sentiment: %s (%.2f)\n", a.Sentiment.Overall, a.Sentiment.Confidence)
		for _, p := range a.KeyPoints {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
