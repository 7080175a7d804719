// Command smoke drives a running server through ingestion, mapping and
// graph analysis and exits non-zero on the first failed step.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type step struct {
	name   string
	method string
	path   string
	body   any
	want   int
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	wait := flag.Duration("wait", 2*time.Second, "delay before the first request")
	flag.Parse()

	time.Sleep(*wait)
	fmt.Println("Starting smoke run...")

	run := fmt.Sprintf("smoke-%d", time.Now().Unix())
	day := func(d int) string {
		return time.Date(2024, 3, 1+d, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	event := func(n int, typ string) map[string]any {
		return map[string]any{
			"id":           fmt.Sprintf("%s-e%d", run, n),
			"event_type":   typ,
			"text":         "Northwind Capital invests in Acme Robotics",
			"timestamp":    day(n),
			"participants": []map[string]any{{"name": "Northwind Capital", "entity_type": "organization"}},
			"properties":   map[string]any{"domain": "business"},
			"confidence":   0.9,
		}
	}
	id := func(n int) string { return fmt.Sprintf("%s-e%d", run, n) }

	steps := []step{
		{"health", http.MethodGet, "/health", nil, http.StatusOK},
		{"add event 1", http.MethodPost, "/events", event(1, "investment"), http.StatusCreated},
		{"add event 2", http.MethodPost, "/events", event(2, "investment"), http.StatusCreated},
		{"add event 3 (learns a pattern)", http.MethodPost, "/events", event(3, "investment"), http.StatusCreated},
		{"get event", http.MethodGet, "/events/" + id(1), nil, http.StatusOK},
		{"relate events", http.MethodPost, "/relations", map[string]any{
			"relation_type": "causal", "source_event_id": id(1), "target_event_id": id(2),
			"confidence": 0.8, "strength": 0.7,
		}, http.StatusCreated},
		{"query patterns", http.MethodPost, "/patterns/query", map[string]any{"domain": "business"}, http.StatusOK},
		{"patterns of event 3", http.MethodGet, "/events/" + id(3) + "/patterns", nil, http.StatusOK},
		{"causal paths", http.MethodGet, "/graph/paths?type=causal&source=" + id(1) + "&target=" + id(2), nil, http.StatusOK},
		{"centrality", http.MethodGet, "/graph/centrality", nil, http.StatusOK},
		{"communities", http.MethodGet, "/graph/communities", nil, http.StatusOK},
		{"predictions", http.MethodGet, "/events/" + id(1) + "/predictions", nil, http.StatusOK},
		{"export", http.MethodGet, "/graph/export?kind=unified&format=json", nil, http.StatusOK},
		{"statistics", http.MethodGet, "/stats", nil, http.StatusOK},
	}

	for i, s := range steps {
		fmt.Printf("%d. %s...\n", i+1, s.name)
		if !sendRequest(*baseURL, s) {
			fmt.Printf("FAILED: %s\n", s.name)
			os.Exit(1)
		}
		fmt.Printf("PASSED: %s\n", s.name)
	}
	fmt.Println("Smoke run passed")
}

func sendRequest(baseURL string, s step) bool {
	var body io.Reader
	if s.body != nil {
		jsonBytes, err := json.Marshal(s.body)
		if err != nil {
			fmt.Printf("Error encoding request: %v\n", err)
			return false
		}
		body = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(s.method, baseURL+s.path, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != s.want {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	if len(respBody) > 300 {
		respBody = append(respBody[:300], "..."...)
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return true
}
