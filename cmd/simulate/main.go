// Command simulate drives a running engine over HTTP: several simulated
// devices award XP to a shared set of users, then the tool verifies that
// ledger totals and the leaderboard converged on the expected sums.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultUsers    = 20
	defaultDevices  = 4
	defaultAwards   = 50
	defaultTimeout  = 10 * time.Second
	defaultRunLimit = 5 * time.Minute
	awardAmount     = 10
)

type awardRequest struct {
	UserID  string `json:"user_id"`
	Amount  int64  `json:"amount"`
	Kind    string `json:"kind"`
	EventID string `json:"event_id"`
}

type stateResponse struct {
	UserID    string `json:"user_id"`
	CurrentXP int64  `json:"current_xp"`
	Level     int    `json:"level"`
}

type entryResponse struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	CurrentXP int64  `json:"current_xp"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "base URL of the engine")
		users   = flag.Int("users", defaultUsers, "number of simulated users")
		devices = flag.Int("devices", defaultDevices, "concurrent devices per user population")
		awards  = flag.Int("awards", defaultAwards, "awards per device")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	client := &http.Client{Timeout: *timeout}

	fmt.Printf("driving %d devices x %d awards over %d users at %s\n", *devices, *awards, *users, *baseURL)

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, *devices)
	for d := 0; d < *devices; d++ {
		wg.Add(1)
		go func(device int) {
			defer wg.Done()
			if err := runDevice(ctx, client, *baseURL, device, *users, *awards); err != nil {
				errs <- err
			}
		}(d)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		fmt.Fprintln(os.Stderr, "device failed:", err)
		os.Exit(1)
	}
	fmt.Printf("submitted %d awards in %s\n", *devices**awards, time.Since(start).Round(time.Millisecond))

	if err := verify(ctx, client, *baseURL, *users, *devices, *awards); err != nil {
		fmt.Fprintln(os.Stderr, "verification failed:", err)
		os.Exit(1)
	}
	fmt.Println("converged: every ledger total and leaderboard entry matches")
}

// runDevice submits its share of awards round-robin across the users.
func runDevice(ctx context.Context, client *http.Client, baseURL string, device, users, awards int) error {
	for i := 0; i < awards; i++ {
		req := awardRequest{
			UserID:  userID(i % users),
			Amount:  awardAmount,
			Kind:    "simulated",
			EventID: uuid.NewString(),
		}
		if err := postAward(ctx, client, baseURL, req); err != nil {
			return fmt.Errorf("device %d award %d: %w", device, i, err)
		}
	}
	return nil
}

func postAward(ctx context.Context, client *http.Client, baseURL string, reqBody awardRequest) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/awards", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// verify checks each user's ledger total and the leaderboard against the
// amounts the devices submitted.
func verify(ctx context.Context, client *http.Client, baseURL string, users, devices, awards int) error {
	expected := make(map[string]int64, users)
	for d := 0; d < devices; d++ {
		for i := 0; i < awards; i++ {
			expected[userID(i%users)] += awardAmount
		}
	}

	for id, want := range expected {
		var st stateResponse
		if err := getJSON(ctx, client, baseURL+"/state/"+id, &st); err != nil {
			return err
		}
		if st.CurrentXP != want {
			return fmt.Errorf("user %s: ledger has %d xp, want %d", id, st.CurrentXP, want)
		}
	}

	var entries []entryResponse
	if err := getJSON(ctx, client, baseURL+"/leaderboard", &entries); err != nil {
		return err
	}
	for _, e := range entries {
		want, ok := expected[e.UserID]
		if !ok {
			continue
		}
		if e.CurrentXP != want {
			return fmt.Errorf("user %s: leaderboard has %d xp, want %d", e.UserID, e.CurrentXP, want)
		}
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func userID(n int) string {
	return fmt.Sprintf("sim-user-%03d", n)
}
