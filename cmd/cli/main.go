package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type apiClient struct {
	base string
	key  string
	hc   *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("API returned %s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("API returned %s", resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type monitor struct {
	ID          string   `json:"id"`
	VenueName   string   `json:"venue_name"`
	PartySize   int      `json:"party_size"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Times12     []string `json:"times_12"`
	Active      bool     `json:"active"`
	StatusLabel string   `json:"status_label"`
	StatusMsg   string   `json:"status_msg"`
	NextCheckIn string   `json:"next_check_in"`
}

func newRootCmd() *cobra.Command {
	client := &apiClient{hc: &http.Client{Timeout: 60 * time.Second}}

	root := &cobra.Command{
		Use:           "resymon",
		Short:         "Manage Resy availability monitors through the resymon API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&client.base, "api", envOr("API_BASE", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&client.key, "key", os.Getenv("RESYMON_API_KEY"), "API key (admin key for changes)")

	root.AddCommand(newAddCmd(client))
	root.AddCommand(newListCmd(client))
	root.AddCommand(newIDCmd(client, "remove", "Stop monitoring and forget a monitor", http.MethodDelete, ""))
	root.AddCommand(newIDCmd(client, "pause", "Pause polling for a monitor", http.MethodPost, "/pause"))
	root.AddCommand(newIDCmd(client, "resume", "Resume polling for a monitor", http.MethodPost, "/resume"))
	return root
}

func newAddCmd(client *apiClient) *cobra.Command {
	var (
		partySize int
		start     string
		end       string
		times     string
		onlyOne   bool
		keepGoing bool
	)
	c := &cobra.Command{
		Use:   "add <venue-url>",
		Short: "Start monitoring a venue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if end == "" {
				end = start
			}
			payload := map[string]any{
				"url":              args[0],
				"party_size":       partySize,
				"start_date":       start,
				"end_date":         end,
				"times":            splitCSV(times),
				"only_one_webhook": onlyOne,
				"stop_on_match":    !keepGoing,
			}
			var m monitor
			if err := client.do(cmd.Context(), http.MethodPost, "/api/monitors", payload, &m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s) status=%s: %s\n", m.VenueName, m.ID, m.StatusLabel, m.StatusMsg)
			return nil
		},
	}
	c.Flags().IntVar(&partySize, "party-size", 2, "party size")
	c.Flags().StringVar(&start, "start", time.Now().Format("2006-01-02"), "first date (YYYY-MM-DD)")
	c.Flags().StringVar(&end, "end", "", "last date (YYYY-MM-DD); defaults to --start")
	c.Flags().StringVar(&times, "times", "", `comma-separated times, e.g. "7:00 PM,19:30"`)
	c.Flags().BoolVar(&onlyOne, "only-one-webhook", false, "send a single notification for the monitor's lifetime")
	c.Flags().BoolVar(&keepGoing, "keep-polling", false, "keep polling after a match")
	_ = c.MarkFlagRequired("times")
	return c
}

func newListCmd(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ms []monitor
			if err := client.do(cmd.Context(), http.MethodGet, "/api/monitors", nil, &ms); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVENUE\tPARTY\tDATES\tTIMES\tSTATUS\tNEXT")
			for _, m := range ms {
				next := m.NextCheckIn
				if !m.Active {
					next = "paused"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s..%s\t%s\t%s\t%s\n",
					m.ID, m.VenueName, m.PartySize, m.StartDate, m.EndDate,
					strings.Join(m.Times12, ", "), m.StatusLabel, next)
			}
			return tw.Flush()
		},
	}
}

func newIDCmd(client *apiClient, use, short, method, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.do(cmd.Context(), method, "/api/monitors/"+args[0]+suffix, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", use)
			return nil
		},
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
