// Command loadgen drives an in-process API with concurrent uploads and
// queries and reports latency percentiles plus a conservation check.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
	httpserver "github.com/iago/contact-distributor/internal/http"
	"github.com/iago/contact-distributor/internal/http/handlers"
	"github.com/iago/contact-distributor/internal/ingest"
	"github.com/iago/contact-distributor/internal/repository"
	"github.com/iago/contact-distributor/internal/roster"
	"github.com/iago/contact-distributor/internal/service"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type conservationResult struct {
	Distributions   int  `json:"distributions"`
	StoredContacts  int  `json:"stored_contacts"`
	AgentContacts   int  `json:"agent_contacts"`
	MaxAgentSpread  int  `json:"max_agent_spread_per_distribution"`
	ContactsBalance bool `json:"contacts_balance"`
}

type runResult struct {
	GeneratedAtUTC string             `json:"generated_at_utc"`
	Environment    string             `json:"environment"`
	Results        []scenarioResult   `json:"results"`
	Conservation   conservationResult `json:"conservation"`
	SLOEvaluation  map[string]bool    `json:"slo_evaluation"`
}

type loadEnv struct {
	server *httptest.Server
	agents []domain.AgentRef
	cancel context.CancelFunc
}

func main() {
	uploadsTotal := flag.Int("uploads-total", 60, "total upload requests")
	uploadsConcurrency := flag.Int("uploads-concurrency", 8, "concurrency for upload requests")
	rowsPerUpload := flag.Int("rows", 500, "contact rows per uploaded file")
	agentCount := flag.Int("agents", 7, "active agents in the roster")
	listTotal := flag.Int("list-total", 200, "total list requests")
	listConcurrency := flag.Int("list-concurrency", 16, "concurrency for list requests")
	outputPath := flag.String("output", "", "optional path to persist results JSON")
	flag.Parse()

	env, err := startLoadEnvironment(*agentCount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start load environment: %v\n", err)
		os.Exit(1)
	}
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: time.Minute}
	file := buildCSV(*rowsPerUpload)

	uploads := runScenario("uploads_queued", *uploadsTotal, *uploadsConcurrency, func(index int) error {
		return upload(client, env.server.URL, fmt.Sprintf("load-%d.csv", index), file)
	})

	lists := runScenario("distributions_list", *listTotal, *listConcurrency, func(int) error {
		return get(client, env.server.URL+"/v1/distributions", nil)
	})

	conservation, err := checkConservation(client, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conservation check failed: %v\n", err)
		os.Exit(1)
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        []scenarioResult{uploads, lists},
		Conservation:   conservation,
		SLOEvaluation: map[string]bool{
			"upload_p95_le_5000ms":     uploads.P95MS <= 5000,
			"list_p95_le_500ms":        lists.P95MS <= 500,
			"every_upload_distributed": uploads.Errors == 0,
			"contacts_conserved":       conservation.ContactsBalance,
			"round_robin_spread_le_1":  conservation.MaxAgentSpread <= 1,
		},
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal report: %v\n", err)
		os.Exit(1)
	}
	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output file: %v\n", err)
			os.Exit(1)
		}
	}
	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

// startLoadEnvironment queues uploads at the gate so every request is
// expected to succeed.
func startLoadEnvironment(agentCount int) (*loadEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	agents := make([]domain.AgentRef, 0, agentCount)
	for i := 0; i < agentCount; i++ {
		agents = append(agents, domain.AgentRef{ID: fmt.Sprintf("agent-%02d", i), Name: fmt.Sprintf("Agent %02d", i)})
	}
	staticRoster, err := roster.NewStaticRoster(agents)
	if err != nil {
		cancel()
		return nil, err
	}

	parser := ingest.NewParser(ingest.DefaultMaxBytes)
	distributions := service.NewDistributionService(service.DistributionDependencies{
		Parser:     parser,
		Roster:     staticRoster,
		Store:      repository.NewMemoryDistributionStore(),
		Logger:     logger,
		GatePolicy: service.GatePolicyWait,
		GateWait:   time.Minute,
	})
	router := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            handlers.NewAPI(distributions, parser.MaxBytes(), logger),
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	return &loadEnv{server: httptest.NewServer(router), agents: agents, cancel: cancel}, nil
}

func buildCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("FirstName,Phone,Notes\n")
	for i := 0; i < rows; i++ {
		if i%50 == 49 {
			// one invalid phone every fifty rows keeps the row error path warm
			fmt.Fprintf(&b, "Lead %d,12,bad\n", i)
			continue
		}
		fmt.Fprintf(&b, "Lead %d,+55 11 9%08d,batch\n", i, i)
	}
	return []byte(b.String())
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	indexes := make(chan int, total)
	samples := make(chan sample, total)
	for i := 0; i < total; i++ {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexes {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0}
				if err != nil {
					s.err = err.Error()
				}
				samples <- s
			}
		}()
	}
	wg.Wait()
	close(samples)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range samples {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	throughput := 0.0
	if elapsed := time.Since(startedAt).Seconds(); elapsed > 0 {
		throughput = float64(total) / elapsed
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func upload(client *http.Client, baseURL, filename string, data []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, baseURL+"/v1/distributions", &body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return do(client, request, http.StatusCreated, nil)
}

func get(client *http.Client, url string, result any) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	return do(client, request, http.StatusOK, result)
}

func do(client *http.Client, request *http.Request, expectedStatus int, result any) error {
	request.Header.Set("Accept", "application/json")
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	if result == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	return json.NewDecoder(response.Body).Decode(result)
}

// checkConservation compares stored distributions with the per-agent view
// and measures how evenly each distribution was spread.
func checkConservation(client *http.Client, env *loadEnv) (conservationResult, error) {
	var listed struct {
		Distributions []domain.Distribution `json:"distributions"`
	}
	if err := get(client, env.server.URL+"/v1/distributions", &listed); err != nil {
		return conservationResult{}, fmt.Errorf("list distributions: %w", err)
	}

	result := conservationResult{Distributions: len(listed.Distributions)}
	perDistribution := make(map[string]map[string]int, len(listed.Distributions))
	for _, distribution := range listed.Distributions {
		result.StoredContacts += distribution.TotalContacts
		perDistribution[distribution.ID] = make(map[string]int, len(env.agents))
	}

	for _, agent := range env.agents {
		var page struct {
			Contacts []domain.Contact `json:"contacts"`
		}
		if err := get(client, env.server.URL+"/v1/agents/"+agent.ID+"/contacts", &page); err != nil {
			return conservationResult{}, fmt.Errorf("list contacts for %s: %w", agent.ID, err)
		}
		result.AgentContacts += len(page.Contacts)
		for _, contact := range page.Contacts {
			if counts, ok := perDistribution[contact.DistributionID]; ok {
				counts[agent.ID]++
			}
		}
	}

	for _, counts := range perDistribution {
		low, high := math.MaxInt, 0
		for _, agent := range env.agents {
			n := counts[agent.ID]
			low = min(low, n)
			high = max(high, n)
		}
		result.MaxAgentSpread = max(result.MaxAgentSpread, high-low)
	}
	result.ContactsBalance = result.StoredContacts == result.AgentContacts
	return result, nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	rank = max(0, min(rank, len(values)-1))
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
