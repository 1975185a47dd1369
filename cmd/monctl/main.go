package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

const usage = `usage: monctl <command> [id]

commands:
  list            show every scheduled monitor
  get <id>        show one monitor
  check <id>      run a check now and print the outcome
  pause <id>      stop checking a monitor
  resume <id>     start checking it again
  remove <id>     unschedule and delete a monitor

env:
  API_BASE        control API base URL (default http://localhost:8080)
  MONCTL_API_KEY  key sent as X-API-Key; falls back to the first ADMIN_API_KEYS entry`

type monitorView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Target     string  `json:"target"`
	Interval   string  `json:"interval"`
	Status     string  `json:"status"`
	State      string  `json:"state"`
	Uptime     float64 `json:"uptime"`
	CheckCount int     `json:"check_count"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	api := strings.TrimRight(os.Getenv("API_BASE"), "/")
	if api == "" {
		api = "http://localhost:8080"
	}
	c := &client{base: api, key: apiKey(), http: &http.Client{Timeout: 2 * time.Minute}}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "list":
		err = c.list()
	case "get", "check", "pause", "resume", "remove":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		err = c.one(cmd, args[0])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func apiKey() string {
	if k := strings.TrimSpace(os.Getenv("MONCTL_API_KEY")); k != "" {
		return k
	}
	admin, _, _ := strings.Cut(os.Getenv("ADMIN_API_KEYS"), ",")
	return strings.TrimSpace(admin)
}

type client struct {
	base string
	key  string
	http *http.Client
}

func (c *client) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("API returned status: %s", resp.Status)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *client) list() error {
	var list []monitorView
	if err := c.do(http.MethodGet, "/api/monitors", &list); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tSTATE\tUPTIME\tINTERVAL\tTARGET")
	for _, m := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f%%\t%s\t%s\n", m.ID, m.Type, m.Status, m.State, m.Uptime, m.Interval, m.Target)
	}
	return tw.Flush()
}

func (c *client) one(cmd, id string) error {
	path := "/api/monitors/" + url.PathEscape(id)
	method := http.MethodPost
	switch cmd {
	case "get":
		method = http.MethodGet
	case "remove":
		method = http.MethodDelete
	default:
		path += "/" + cmd
	}

	var raw json.RawMessage
	if err := c.do(method, path, &raw); err != nil {
		return err
	}
	if cmd == "remove" {
		fmt.Println("Removed", id)
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return err
	}
	fmt.Println(pretty.String())
	return nil
}
