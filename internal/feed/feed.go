// Package feed handles feed downloading, snapshot persistence, and
// detection of newly appeared entries.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"feedhub/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Differ downloads feeds and computes which entries are new since the
// previous snapshot.
type Differ struct {
	client    HTTPClient
	snapshots *SnapshotStore
	timeout   time.Duration
}

// NewDiffer creates a Differ. Every fetch is bounded by timeout.
func NewDiffer(client HTTPClient, snapshots *SnapshotStore, timeout time.Duration) *Differ {
	return &Differ{
		client:    client,
		snapshots: snapshots,
		timeout:   timeout,
	}
}

// Entry is a feed entry that appeared since the previous snapshot.
type Entry struct {
	Title     string
	Link      string
	Published string
	Content   string
}

// Result holds the outcome of diffing a topic's feed.
type Result struct {
	Title   string
	Entries []Entry
}

// Diff fetches the feed at url, replaces the stored snapshot with the
// fetched state, and returns the entries not present in the previous
// snapshot. It returns (nil, nil) when nothing is new, including on the
// very first fetch of a topic: without a prior snapshot every entry
// would count as new and subscribers would be flooded with the backlog.
func (d *Differ) Diff(ctx context.Context, url string) (*Result, error) {
	parsed, err := d.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	key := model.EncodeKey(url)
	prior, err := d.snapshots.Load(key)
	if err != nil {
		return nil, err
	}

	// The snapshot must always reflect the last seen state, even when
	// the diff below comes up empty.
	if err := d.snapshots.Save(key, toSnapshot(parsed)); err != nil {
		return nil, err
	}

	if prior == nil {
		return nil, nil
	}

	seen := prior.Links()
	var fresh []Entry
	for _, item := range parsed.Items {
		link := itemLink(item)
		if seen[link] {
			continue
		}
		fresh = append(fresh, Entry{
			Title:     item.Title,
			Link:      link,
			Published: item.Published,
			Content:   item.Content,
		})
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	return &Result{Title: parsed.Title, Entries: fresh}, nil
}

func (d *Differ) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "feedhub/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	parsed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return parsed, nil
}

func toSnapshot(parsed *gofeed.Feed) *Snapshot {
	snap := &Snapshot{Title: parsed.Title}
	for _, item := range parsed.Items {
		snap.Entries = append(snap.Entries, SnapshotEntry{
			Title:     item.Title,
			Link:      itemLink(item),
			Published: item.Published,
		})
	}
	return snap
}

// itemLink returns the entry's primary link, falling back to its GUID
// for feeds that omit links entirely.
func itemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	if len(item.Links) > 0 {
		return item.Links[0]
	}
	return item.GUID
}
