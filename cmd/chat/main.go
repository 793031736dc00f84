package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nidhogg/webpilot/internal/kvstore"
	"github.com/nidhogg/webpilot/internal/semcache"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "WebPilot server URL")
	user := flag.String("user", "cli-user", "User ID recorded with each task")
	flag.Parse()

	fmt.Println("WebPilot CLI Chat")
	fmt.Printf("Server: %s | User: %s\n", *server, *user)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /history, /stats")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if input == "/history" {
			fetchHistory(*server, *user)
			continue
		}
		if input == "/stats" {
			fetchStats(*server)
			continue
		}

		sendMessage(*server, *user, input)
	}
}

func fetchHistory(server, user string) {
	resp, err := http.Get(server + "/history/" + user)
	if err != nil {
		printError("Failed to fetch history: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var out struct {
		History []kvstore.HistoryEntry `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		printError("Failed to parse history: %v", err)
		return
	}
	if len(out.History) == 0 {
		fmt.Println("No history yet.")
		return
	}
	for _, h := range out.History {
		fmt.Printf("  \033[90m%s\033[0m %s\n    %s\n", h.Timestamp.Local().Format(time.DateTime), h.Task, h.Result)
	}
}

func fetchStats(server string) {
	resp, err := http.Get(server + "/cache/stats")
	if err != nil {
		printError("Failed to fetch cache stats: %v", err)
		return
	}
	defer resp.Body.Close()

	var s semcache.Stats
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		printError("Failed to parse cache stats: %v", err)
		return
	}
	fmt.Printf("Cache (%s): %d lookups, %d hits, %d misses, %d stored, %d errors, %d store failures\n",
		s.Backend, s.Lookups, s.Hits, s.Misses, s.Stores, s.Errors, s.Failures)
}

func sendMessage(server, user, content string) {
	body, _ := json.Marshal(map[string]string{
		"message": content,
		"user_id": user,
	})

	// Browser runs take minutes; cache hits return immediately.
	client := &http.Client{Timeout: 10 * time.Minute}
	start := time.Now()
	resp, err := client.Post(server+"/agent/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var msg struct {
		Message  string `json:"message"`
		Success  bool   `json:"success"`
		Error    string `json:"error"`
		CacheHit bool   `json:"cache_hit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	switch {
	case !msg.Success:
		printError("%s", msg.Message)
	case msg.CacheHit:
		fmt.Printf("\033[32m[cache %s]\033[0m %s\n", elapsed, msg.Message)
	default:
		fmt.Printf("\033[36m[agent %s]\033[0m %s\n", elapsed, msg.Message)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
