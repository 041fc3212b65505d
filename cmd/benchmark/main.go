// Benchmark tool for measuring Harrier against labeled synthetic transactions.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/transactions.csv -url http://localhost:8080
//
// This tool:
//  1. Reads labeled transactions (transaction_id, from_account, to_account,
//     amount, timestamp, transaction_type, scenario, pattern_label)
//  2. Ingests them through POST /transactions in batches
//  3. Rescores every account through POST /risk/batch
//  4. Scores each labeled account and compares HIGH/CRITICAL with its label
//  5. Reports precision, recall, F1-score, and the confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledTransaction is one row of the benchmark CSV.
type LabeledTransaction struct {
	ID           string
	FromAccount  string
	ToAccount    string
	Amount       float64
	Timestamp    time.Time
	Type         string
	Scenario     string
	PatternLabel string
}

// transactionRequest mirrors the ingest payload of POST /transactions.
type transactionRequest struct {
	ID            string    `json:"id,omitempty"`
	FromAccount   string    `json:"fromAccount"`
	ToAccount     string    `json:"toAccount"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type,omitempty"`
	PatternLabel  string    `json:"patternLabel,omitempty"`
	ScenarioLabel string    `json:"scenarioLabel,omitempty"`
}

type ingestResponse struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
}

type riskResponse struct {
	AccountID string  `json:"accountId"`
	RiskScore float64 `json:"riskScore"`
	RiskLevel string  `json:"riskLevel"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Mule scored HIGH or CRITICAL
	FalsePositives int64 // Benign scored HIGH or CRITICAL
	TrueNegatives  int64 // Benign scored below HIGH
	FalseNegatives int64 // Mule scored below HIGH

	TotalAccounts int64
	TotalMules    int64
	TotalBenign   int64
	TotalErrors   int64

	Ingested         int
	ScoringTimeMs    int64
	RescoreDuration  time.Duration
	IngestDuration   time.Duration
	LevelHistogram   map[string]int64
	levelHistogramMu sync.Mutex
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled transaction CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	limit := flag.Int("limit", 0, "Maximum transactions to ingest (0 = all)")
	batchSize := flag.Int("batch", 500, "Transactions per ingest request")
	workers := flag.Int("workers", 10, "Number of concurrent scoring workers")
	benign := flag.String("benign", "normal,baseline", "Comma-separated labels counted as benign")
	verbose := flag.Bool("verbose", false, "Print each account result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/transactions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|          HARRIER BENCHMARK - Money-Mule Detection             |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Harrier URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Batch Size:  %d\n", *batchSize)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  go run ./cmd/harrier")
		os.Exit(1)
	}
	fmt.Println("OK Harrier is healthy")

	fmt.Printf("\nReading transactions from %s...\n", *csvPath)
	transactions, err := readCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK Loaded %d transactions\n", len(transactions))

	labels := accountLabels(transactions, splitLabels(*benign))
	mules := 0
	for _, mule := range labels {
		if mule {
			mules++
		}
	}
	fmt.Printf("  - Labeled accounts: %d\n", len(labels))
	fmt.Printf("  - Mule accounts:    %d\n", mules)

	client := &http.Client{Timeout: 5 * time.Minute}
	metrics := &Metrics{LevelHistogram: make(map[string]int64)}

	fmt.Printf("\nIngesting in batches of %d...\n", *batchSize)
	start := time.Now()
	metrics.Ingested, err = ingest(client, *baseURL, transactions, *batchSize)
	metrics.IngestDuration = time.Since(start)
	if err != nil {
		fmt.Printf("ERROR: Ingest failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Rescoring all accounts...")
	start = time.Now()
	if err := rescoreAll(client, *baseURL); err != nil {
		fmt.Printf("ERROR: Rescore failed: %v\n", err)
		os.Exit(1)
	}
	metrics.RescoreDuration = time.Since(start)

	fmt.Printf("Scoring %d labeled accounts with %d workers...\n", len(labels), *workers)
	start = time.Now()
	runBenchmark(client, *baseURL, labels, *workers, *verbose, metrics)
	printResults(metrics, time.Since(start))
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

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTime(v string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

func readCSV(path string, limit int) ([]LabeledTransaction, error) {
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
	for _, required := range []string{"from_account", "to_account", "amount", "timestamp"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var transactions []LabeledTransaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := strconv.ParseFloat(field(record, "amount"), 64)
		if err != nil {
			continue
		}
		ts, err := parseTime(field(record, "timestamp"))
		if err != nil {
			continue
		}

		transactions = append(transactions, LabeledTransaction{
			ID:           field(record, "transaction_id"),
			FromAccount:  field(record, "from_account"),
			ToAccount:    field(record, "to_account"),
			Amount:       amount,
			Timestamp:    ts,
			Type:         field(record, "transaction_type"),
			Scenario:     field(record, "scenario"),
			PatternLabel: field(record, "pattern_label"),
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func splitLabels(v string) map[string]bool {
	out := make(map[string]bool)
	for _, l := range strings.Split(v, ",") {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			out[l] = true
		}
	}
	return out
}

// accountLabels marks an account as a mule when any of its labeled
// transactions carries a non-benign pattern label.
func accountLabels(transactions []LabeledTransaction, benign map[string]bool) map[string]bool {
	labels := make(map[string]bool)
	for _, tx := range transactions {
		label := strings.ToLower(tx.PatternLabel)
		if label == "" {
			continue
		}
		mule := !benign[label]
		for _, acct := range []string{tx.FromAccount, tx.ToAccount} {
			labels[acct] = labels[acct] || mule
		}
	}
	return labels
}

func ingest(client *http.Client, baseURL string, transactions []LabeledTransaction, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	inserted := 0
	for start := 0; start < len(transactions); start += batchSize {
		end := min(start+batchSize, len(transactions))
		batch := make([]transactionRequest, 0, end-start)
		for _, tx := range transactions[start:end] {
			batch = append(batch, transactionRequest{
				ID:            tx.ID,
				FromAccount:   tx.FromAccount,
				ToAccount:     tx.ToAccount,
				Amount:        tx.Amount,
				Timestamp:     tx.Timestamp,
				Type:          tx.Type,
				PatternLabel:  tx.PatternLabel,
				ScenarioLabel: tx.Scenario,
			})
		}

		var result ingestResponse
		if err := postJSON(client, baseURL+"/transactions", map[string]any{"transactions": batch}, http.StatusAccepted, &result); err != nil {
			return inserted, fmt.Errorf("batch at %d: %w", start, err)
		}
		inserted += result.Inserted
	}
	return inserted, nil
}

func rescoreAll(client *http.Client, baseURL string) error {
	var result struct {
		Updated int `json:"updated"`
	}
	if err := postJSON(client, baseURL+"/risk/batch", map[string]any{}, http.StatusOK, &result); err != nil {
		return err
	}
	fmt.Printf("OK Rescored %d accounts\n", result.Updated)
	return nil
}

func postJSON(client *http.Client, target string, payload any, want int, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := client.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runBenchmark(client *http.Client, baseURL string, labels map[string]bool, numWorkers int, verbose bool, metrics *Metrics) {
	accounts := make([]string, 0, len(labels))
	for acct := range labels {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)

	work := make(chan string, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for acct := range work {
				start := time.Now()
				result, err := scoreAccount(client, baseURL, acct)
				atomic.AddInt64(&metrics.ScoringTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalAccounts, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", acct, err)
					}
					continue
				}

				actual := labels[acct]
				if actual {
					atomic.AddInt64(&metrics.TotalMules, 1)
				} else {
					atomic.AddInt64(&metrics.TotalBenign, 1)
				}

				predicted := result.RiskLevel == "HIGH" || result.RiskLevel == "CRITICAL"
				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				metrics.levelHistogramMu.Lock()
				metrics.LevelHistogram[result.RiskLevel]++
				metrics.levelHistogramMu.Unlock()

				if verbose {
					status := "ok"
					if predicted != actual {
						status = "XX"
					}
					fmt.Printf("%s %-16s | Mule: %-5v | Score: %6.2f | Level: %s\n",
						status, acct, actual, result.RiskScore, result.RiskLevel)
				}
			}
		}()
	}

	for _, acct := range accounts {
		work <- acct
	}
	close(work)

	wg.Wait()
}

func scoreAccount(client *http.Client, baseURL, accountID string) (*riskResponse, error) {
	resp, err := client.Get(baseURL + "/accounts/" + url.PathEscape(accountID) + "/risk")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result riskResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      BENCHMARK RESULTS                        |")
	fmt.Println("+---------------------------------------------------------------+")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Transactions Ingested: %d\n", m.Ingested)
	fmt.Printf("   Accounts Scored:       %d\n", m.TotalAccounts)
	fmt.Printf("   Mule Accounts:         %d\n", m.TotalMules)
	fmt.Printf("   Benign Accounts:       %d\n", m.TotalBenign)
	fmt.Printf("   Errors:                %d\n", m.TotalErrors)

	fmt.Printf("\nRISK LEVELS\n")
	for _, level := range []string{"CRITICAL", "HIGH", "MEDIUM", "LOW"} {
		fmt.Printf("   %-9s %d\n", level+":", m.LevelHistogram[level])
	}

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  HIGH+       <HIGH")
	fmt.Println("              +----------+----------+")
	fmt.Printf("   Actual  M  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              +----------+----------+")
	fmt.Printf("           B  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              +----------+----------+")

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

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged accounts, how many were mules)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of mules, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Ingest:           %v\n", m.IngestDuration.Round(time.Millisecond))
	fmt.Printf("   Batch Rescore:    %v\n", m.RescoreDuration.Round(time.Millisecond))
	fmt.Printf("   Scoring:          %v\n", duration.Round(time.Millisecond))
	if m.TotalAccounts > 0 {
		avgMs := float64(m.ScoringTimeMs) / float64(m.TotalAccounts)
		fmt.Printf("   Avg Latency:      %.2f ms/account\n", avgMs)
	}

	fmt.Println()
}
