package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/agent"
	"github.com/nidhogg/webpilot/internal/browser"
	"github.com/nidhogg/webpilot/internal/config"
	"github.com/nidhogg/webpilot/internal/provider"
	"github.com/nidhogg/webpilot/internal/semcache"
)

func main() {
	cfgPath := flag.String("config", "configs/server.json", "Path to the server config")
	task := flag.String("task", config.DefaultTask, "Task to run through the agent and then the cache")
	iterations := flag.Int("n", 5, "Number of cache lookups to time")
	flag.Parse()

	if err := run(*cfgPath, *task, *iterations); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func run(cfgPath, task string, iterations int) error {
	_ = godotenv.Load()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx := context.Background()
	llm, err := provider.FromConfig(ctx, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	launcher := browser.NewChromeLauncher(browser.Config{
		Headless:     cfg.Browser.Headless,
		ExecPath:     cfg.Browser.ExecPath,
		UserAgent:    cfg.Browser.UserAgent,
		MaxPageChars: cfg.Browser.MaxPageChars,
	}, logger)
	dispatcher := agent.NewDispatcher(llm, launcher, cfg.Agent.MaxSteps, logger)

	cache, err := semcache.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("semantic cache: %w", err)
	}
	defer cache.Close()

	rule := strings.Repeat("=", 60)
	fmt.Println(rule)
	fmt.Println("CACHE vs AGENT SPEED BENCHMARK")
	fmt.Println(rule)

	fmt.Println("\nStep 1: running browser agent (to populate cache)...")
	fmt.Printf("   Task: %s\n", task)
	start := time.Now()
	res, err := dispatcher.Dispatch(ctx, task)
	agentTime := time.Since(start)
	if err != nil {
		return fmt.Errorf("agent execution failed, skipping cache test: %w", err)
	}
	fmt.Printf("   Completed in %.2f seconds (%d steps)\n", agentTime.Seconds(), len(res.Steps))
	if !cache.Store(ctx, task, res.String()) {
		return fmt.Errorf("could not store the agent result in the %s cache", cache.Stats().Backend)
	}

	fmt.Printf("\nStep 2: timing cache retrieval (%d times)...\n", iterations)
	var hits []time.Duration
	for i := 1; i <= iterations; i++ {
		start := time.Now()
		_, ok := cache.Lookup(ctx, task)
		d := time.Since(start)
		if !ok {
			fmt.Printf("   Hit %d: cache miss (skipped)\n", i)
			continue
		}
		hits = append(hits, d)
		fmt.Printf("   Hit %d: %.2fms\n", i, ms(d))
	}

	fmt.Println("\n" + rule)
	fmt.Println("RESULTS")
	fmt.Println(rule)
	if len(hits) == 0 {
		return errors.New("no cache results to compare")
	}
	var total time.Duration
	for _, d := range hits {
		total += d
	}
	avg := total / time.Duration(len(hits))
	fmt.Printf("\nAgent Execution Time:  %.2f seconds\n", agentTime.Seconds())
	fmt.Printf("Avg Cache Retrieval:   %.2fms\n", ms(avg))
	if avg > 0 {
		fmt.Printf("\nSpeedup:               %.0fx faster with cache\n", float64(agentTime)/float64(avg))
	}
	fmt.Printf("Time Saved Per Query:  %.2f seconds\n", (agentTime - avg).Seconds())
	fmt.Println("\n" + rule)
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
