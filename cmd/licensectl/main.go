// Command licensectl is the operator CLI for the license service admin API.
//
// Usage:
//
//	licensectl create -client "Acme Corp" -months 3 [-notes "..."]
//	licensectl list [-status active] [-search acme]
//	licensectl get|revoke|reactivate|unbind|reset|delete -key <uuid>
//	licensectl extend -key <uuid> -months 2
//	licensectl whois -fingerprint <32 hex chars>
//	licensectl stats
//
// The service URL and admin token come from KEYGATE_URL and
// KEYGATE_ADMIN_TOKEN.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

type ctl struct {
	baseURL string
	token   string
	client  *http.Client
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	c := &ctl{
		baseURL: envOr("KEYGATE_URL", "http://localhost:8080"),
		token:   os.Getenv("KEYGATE_ADMIN_TOKEN"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	if c.token == "" {
		fatal("KEYGATE_ADMIN_TOKEN is required")
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "create":
		err = c.create(os.Args[2:])
	case "list":
		err = c.list(os.Args[2:])
	case "stats":
		err = c.request(http.MethodGet, "/api/admin/licenses/stats", nil)
	case "get":
		err = c.keyed(os.Args[2:], http.MethodGet, "")
	case "revoke", "reactivate", "unbind", "reset":
		err = c.keyed(os.Args[2:], http.MethodPost, "/"+cmd)
	case "delete":
		err = c.keyed(os.Args[2:], http.MethodDelete, "")
	case "extend":
		err = c.extend(os.Args[2:])
	case "whois":
		err = c.whois(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err.Error())
	}
}

func (c *ctl) create(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	client := fs.String("client", "", "client name (required)")
	months := fs.Int("months", 1, "duration in months")
	notes := fs.String("notes", "", "free-form notes")
	fs.Parse(args)

	if *client == "" {
		return fmt.Errorf("-client is required")
	}
	return c.request(http.MethodPost, "/api/admin/licenses", map[string]interface{}{
		"client_name":     *client,
		"duration_months": *months,
		"notes":           *notes,
	})
}

func (c *ctl) list(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "all", "all, active, expired, or revoked")
	search := fs.String("search", "", "match client name or key")
	fs.Parse(args)

	q := url.Values{}
	q.Set("status", *status)
	if *search != "" {
		q.Set("search", *search)
	}
	return c.request(http.MethodGet, "/api/admin/licenses?"+q.Encode(), nil)
}

func (c *ctl) extend(args []string) error {
	fs := flag.NewFlagSet("extend", flag.ExitOnError)
	key := fs.String("key", "", "license key (required)")
	months := fs.Int("months", 1, "additional months")
	fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("-key is required")
	}
	return c.request(http.MethodPost, "/api/admin/licenses/"+*key+"/extend", map[string]interface{}{
		"additional_months": *months,
	})
}

func (c *ctl) whois(args []string) error {
	fs := flag.NewFlagSet("whois", flag.ExitOnError)
	fp := fs.String("fingerprint", "", "machine fingerprint (required)")
	fs.Parse(args)

	if *fp == "" {
		return fmt.Errorf("-fingerprint is required")
	}
	return c.request(http.MethodGet, "/api/admin/licenses/by-fingerprint/"+url.PathEscape(*fp), nil)
}

func (c *ctl) keyed(args []string, method, suffix string) error {
	fs := flag.NewFlagSet("keyed", flag.ExitOnError)
	key := fs.String("key", "", "license key (required)")
	fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("-key is required")
	}
	return c.request(method, "/api/admin/licenses/"+*key+suffix, nil)
}

// request performs the API call and pretty-prints the JSON response. Error
// responses print too: problem details are more useful than a bare status.
func (c *ctl) request(method, path string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: licensectl <create|list|stats|get|whois|revoke|reactivate|extend|unbind|reset|delete> [flags]")
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "licensectl:", msg)
	os.Exit(1)
}
