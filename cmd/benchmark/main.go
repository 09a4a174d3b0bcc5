// Benchmark tool for replaying a transaction dataset against CreditGuard.
//
// Usage:
//
//	go run ./cmd/benchmark -file dataset.json -url http://localhost:8000
//
// This tool:
//  1. Reads a JSON (array of transactions) or CSV dataset, optionally labelled
//     with is_fraud
//  2. Sends each transaction to POST /evaluate from N concurrent workers
//  3. Reports the risk-level distribution and latency percentiles
//  4. For labelled data, compares verdicts with the labels (confusion matrix,
//     precision, recall, F1-score)
//
// All transactions of one user are sent by the same worker in dataset order,
// so velocity and travel rules see each user's sequence as recorded.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Record is one dataset row: the evaluation request plus an optional label.
type Record struct {
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Country   string  `json:"country"`
	Merchant  string  `json:"merchant"`
	Timestamp string  `json:"timestamp,omitempty"`
	IsFraud   *bool   `json:"is_fraud,omitempty"`
}

// EvaluateRequest is the CreditGuard API request format
type EvaluateRequest struct {
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Country   string  `json:"country"`
	Merchant  string  `json:"merchant"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// EvaluateResponse is the subset of the CreditGuard result the benchmark reads
type EvaluateResponse struct {
	EvaluationID   string `json:"evaluation_id"`
	RiskLevel      string `json:"risk_level"`
	TotalScore     int    `json:"total_score"`
	TriggeredRules []struct {
		RuleName string `json:"rule_name"`
	} `json:"triggered_rules"`
}

// Metrics tracks benchmark results
type Metrics struct {
	High   int64
	Medium int64
	Low    int64

	TruePositives  int64 // Fraud flagged
	FalsePositives int64 // Non-fraud flagged
	TrueNegatives  int64 // Non-fraud not flagged
	FalseNegatives int64 // Fraud not flagged (missed fraud!)
	Labelled       int64

	TotalProcessed int64
	TotalErrors    int64

	mu        sync.Mutex
	latencies []time.Duration
	ruleHits  map[string]int64
}

func main() {
	file := flag.String("file", "", "Path to a JSON or CSV dataset")
	baseURL := flag.String("url", "http://localhost:8000", "CreditGuard base URL")
	limit := flag.Int("limit", 0, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	flagLevel := flag.String("flag-level", "HIGH", "Lowest risk level counted as flagged (MEDIUM or HIGH)")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *file == "" {
		fmt.Println("Usage: benchmark -file dataset.json [-url http://localhost:8000]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *workers <= 0 {
		*workers = 1
	}
	level := strings.ToUpper(*flagLevel)
	if level != "HIGH" && level != "MEDIUM" {
		fmt.Printf("ERROR: -flag-level must be MEDIUM or HIGH, got %q\n", *flagLevel)
		os.Exit(1)
	}

	fmt.Println("CREDITGUARD BENCHMARK")
	fmt.Printf("\nDataset:     %s\n", *file)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Flag level:  %s\n", level)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: CreditGuard not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure CreditGuard is running:")
		fmt.Println("  go run ./cmd/creditguard serve")
		os.Exit(1)
	}
	fmt.Println("OK  CreditGuard is healthy")

	records, err := readDataset(*file, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read dataset: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("ERROR: dataset is empty")
		os.Exit(1)
	}
	fmt.Printf("OK  Loaded %d transactions\n", len(records))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(records, *baseURL, *workers, level, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readDataset(path string, limit int) ([]Record, error) {
	var (
		records []Record
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		records, err = readCSV(path)
	} else {
		records, err = readJSON(path)
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func readJSON(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single Record
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, err
		}
		return []Record{single}, nil
	}

	var records []Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// readCSV reads a header row naming user_id, amount, currency, country,
// merchant and optionally timestamp and is_fraud, in any order.
func readCSV(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"user_id", "amount", "currency", "country", "merchant"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	get := func(record []string, col string) string {
		i, ok := colIndex[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, _ := strconv.ParseFloat(get(row, "amount"), 64)
		rec := Record{
			UserID:    get(row, "user_id"),
			Amount:    amount,
			Currency:  get(row, "currency"),
			Country:   get(row, "country"),
			Merchant:  get(row, "merchant"),
			Timestamp: get(row, "timestamp"),
		}
		if label := get(row, "is_fraud"); label != "" {
			isFraud := label == "1" || strings.EqualFold(label, "true")
			rec.IsFraud = &isFraud
		}
		records = append(records, rec)
	}

	return records, nil
}

func workerFor(userID string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(workers))
}

func runBenchmark(records []Record, baseURL string, numWorkers int, flagLevel string, verbose bool) *Metrics {
	metrics := &Metrics{
		latencies: make([]time.Duration, 0, len(records)),
		ruleHits:  make(map[string]int64),
	}

	queues := make([]chan Record, numWorkers)
	var wg sync.WaitGroup

	for i := range queues {
		queues[i] = make(chan Record, 100)
		wg.Add(1)
		go func(work <-chan Record) {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for rec := range work {
				start := time.Now()
				result, err := evaluateTransaction(client, baseURL, rec)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", rec.UserID, err)
					}
					continue
				}

				metrics.record(elapsed, result)

				flagged := result.RiskLevel == "HIGH" || (flagLevel == "MEDIUM" && result.RiskLevel == "MEDIUM")
				if rec.IsFraud != nil {
					atomic.AddInt64(&metrics.Labelled, 1)
					actual := *rec.IsFraud
					switch {
					case flagged && actual:
						atomic.AddInt64(&metrics.TruePositives, 1)
					case flagged && !actual:
						atomic.AddInt64(&metrics.FalsePositives, 1)
					case !flagged && !actual:
						atomic.AddInt64(&metrics.TrueNegatives, 1)
					default:
						atomic.AddInt64(&metrics.FalseNegatives, 1)
					}
				}

				if verbose {
					fmt.Printf("%-12s | Amount: $%10.2f | %s | %-6s (%3d)\n",
						truncate(rec.UserID, 12),
						rec.Amount,
						rec.Country,
						result.RiskLevel,
						result.TotalScore,
					)
				}
			}
		}(queues[i])
	}

	for _, rec := range records {
		queues[workerFor(rec.UserID, numWorkers)] <- rec
	}
	for _, q := range queues {
		close(q)
	}

	wg.Wait()

	return metrics
}

func (m *Metrics) record(elapsed time.Duration, result *EvaluateResponse) {
	switch result.RiskLevel {
	case "HIGH":
		atomic.AddInt64(&m.High, 1)
	case "MEDIUM":
		atomic.AddInt64(&m.Medium, 1)
	default:
		atomic.AddInt64(&m.Low, 1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, elapsed)
	for _, r := range result.TriggeredRules {
		m.ruleHits[r.RuleName]++
	}
}

func evaluateTransaction(client *http.Client, baseURL string, rec Record) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		UserID:    rec.UserID,
		Amount:    rec.Amount,
		Currency:  rec.Currency,
		Country:   rec.Country,
		Merchant:  rec.Merchant,
		Timestamp: rec.Timestamp,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// percentile returns the nearest-rank percentile of sorted durations.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p/100*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	evaluated := m.High + m.Medium + m.Low
	pct := func(n int64) float64 {
		if evaluated == 0 {
			return 0
		}
		return 100 * float64(n) / float64(evaluated)
	}

	fmt.Printf("\nRISK DISTRIBUTION\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   HIGH:             %d (%.2f%%)\n", m.High, pct(m.High))
	fmt.Printf("   MEDIUM:           %d (%.2f%%)\n", m.Medium, pct(m.Medium))
	fmt.Printf("   LOW:              %d (%.2f%%)\n", m.Low, pct(m.Low))
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	if len(m.ruleHits) > 0 {
		names := make([]string, 0, len(m.ruleHits))
		for name := range m.ruleHits {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return m.ruleHits[names[i]] > m.ruleHits[names[j]] })

		fmt.Printf("\nRULE TRIGGERS\n")
		for _, name := range names {
			fmt.Printf("   %-24s %d\n", name, m.ruleHits[name])
		}
	}

	if m.Labelled > 0 {
		fmt.Printf("\nCONFUSION MATRIX (%d labelled)\n", m.Labelled)
		fmt.Println("                     Predicted")
		fmt.Println("                  FLAG      PASS")
		fmt.Printf("   Actual  F   %8d  %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
		fmt.Printf("          NF   %8d  %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

		precision := float64(0)
		if m.TruePositives+m.FalsePositives > 0 {
			precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
		}
		recall := float64(0)
		if m.TruePositives+m.FalseNegatives > 0 {
			recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
		}
		f1 := float64(0)
		if precision+recall > 0 {
			f1 = 2 * (precision * recall) / (precision + recall)
		}

		fmt.Printf("\nDETECTION METRICS\n")
		fmt.Printf("   Precision:  %.4f  (of flags, how many were actual fraud)\n", precision)
		fmt.Printf("   Recall:     %.4f  (of fraud, how many were flagged)\n", recall)
		fmt.Printf("   F1-Score:   %.4f\n", f1)
	}

	m.mu.Lock()
	latencies := append([]time.Duration(nil), m.latencies...)
	m.mu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if len(latencies) > 0 {
		fmt.Printf("   p50 Latency:      %v\n", percentile(latencies, 50).Round(time.Microsecond))
		fmt.Printf("   p95 Latency:      %v\n", percentile(latencies, 95).Round(time.Microsecond))
		fmt.Printf("   p99 Latency:      %v\n", percentile(latencies, 99).Round(time.Microsecond))
		fmt.Printf("   Throughput:       %.2f tx/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	fmt.Println()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
