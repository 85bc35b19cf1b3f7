package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Spec-DY/Drone-Panel/internal/dashboard"
	"github.com/Spec-DY/Drone-Panel/internal/model"
	"github.com/Spec-DY/Drone-Panel/internal/query"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Telemetry server base URL")
	interval := flag.Duration("interval", 2*time.Second, "Polling interval")
	limit := flag.Int("limit", 100, "Number of latest samples requested per poll")
	once := flag.Bool("once", false, "Print one snapshot and exit")

	flag.Parse()

	endpoint, err := latestURL(*server, *limit)
	if err != nil {
		log.Fatalf("invalid -server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		res, err := fetch(ctx, client, endpoint)
		if err != nil {
			log.Printf("poll failed: %v", err)
		} else {
			render(os.Stdout, res, dashboard.NewestPerDevice(res.Data), time.Now())
		}

		if *once {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func latestURL(base string, limit int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", base)
	}
	u = u.JoinPath("/api/telemetry")
	u.RawQuery = url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	return u.String(), nil
}

func fetch(ctx context.Context, client *http.Client, endpoint string) (query.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return query.Result{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return query.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return query.Result{}, fmt.Errorf("unexpected status %s: %s", resp.Status, body)
	}

	var res query.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return query.Result{}, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}

func render(w io.Writer, res query.Result, newest []model.StoredRecord, now time.Time) {
	fmt.Fprintf(w, "%s: %s samples, %s devices\n",
		now.Format(time.TimeOnly), humanize.Comma(int64(res.Count)), humanize.Comma(int64(len(newest))))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tSEEN\tLAT\tLON\tALT\tSPEED\tHEADING")
	for _, r := range newest {
		fmt.Fprintf(tw, "%s\t%s\t%.5f\t%.5f\t%.1fm\t%.1fm/s\t%.0f°\n",
			r.DeviceID,
			humanize.RelTime(time.UnixMilli(r.Timestamp), now, "ago", "from now"),
			r.Latitude, r.Longitude, r.GroundDistance, r.Speed, r.FlightDirection)
	}
	_ = tw.Flush()
}
