// Package main is a post-deployment smoke test. It calls the public probe
// endpoints of a running server and exits non-zero when any of them does not
// answer 200.
//
//	go run ./cmd/test-api https://api.aragroup.com.au
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var paths = []string{"/health", "/ready", "/version"}

func main() {
	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = strings.TrimRight(os.Args[1], "/")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	failed := false
	for _, p := range paths {
		status, body, err := get(client, base+p)
		if err != nil {
			fmt.Printf("%-10s error: %v\n", p, err)
			failed = true
			continue
		}
		fmt.Printf("%-10s %d %s\n", p, status, strings.TrimSpace(body))
		if status != http.StatusOK {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func get(client *http.Client, url string) (int, string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}
