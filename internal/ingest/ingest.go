package ingest

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/store"
)

// Feed is one RSS/Atom source in the feeds file.
type Feed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Language string `yaml:"language"`
}

type feedsFile struct {
	Feeds []Feed `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file.
func LoadFeeds(path string) ([]Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read feeds file %s", path)
	}
	var f feedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse feeds file %s", path)
	}
	if len(f.Feeds) == 0 {
		return nil, eris.Errorf("ingest: feeds file %s lists no feeds", path)
	}
	return f.Feeds, nil
}

// Stats counts the outcome of one ingestion run.
type Stats struct {
	Fetched  int
	Inserted int
	Skipped  int
}

// Ingester pulls items from configured feeds and records them as raw
// events. Re-running over the same window is safe: events are keyed by
// URL digest and conflicting inserts are ignored.
type Ingester struct {
	store  store.Store
	parser *gofeed.Parser
	cfg    *config.IngestConfig
}

// New builds an Ingester.
func New(st store.Store, cfg *config.IngestConfig) *Ingester {
	return &Ingester{store: st, parser: gofeed.NewParser(), cfg: cfg}
}

// Run ingests all feeds, keeping items published within the configured
// window. A feed that fails to parse is logged and skipped; the run
// continues with the remaining feeds.
func (in *Ingester) Run(ctx context.Context, feeds []Feed) (Stats, error) {
	run, err := in.store.CreateRun(ctx, model.RunKindIngest)
	if err != nil {
		return Stats{}, err
	}

	hours := in.cfg.Hours
	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	var stats Stats
	for _, feed := range feeds {
		n, err := in.ingestFeed(ctx, feed, cutoff, &stats)
		if err != nil {
			zap.L().Warn("feed ingestion failed",
				zap.String("feed", feed.URL), zap.Error(err))
			continue
		}
		zap.L().Debug("feed ingested",
			zap.String("feed", feedName(feed)), zap.Int("items", n))
	}

	counts := map[string]int{
		"fetched":  stats.Fetched,
		"inserted": stats.Inserted,
		"skipped":  stats.Skipped,
	}
	if err := in.store.FinishRun(ctx, run.ID, model.RunStatusComplete, counts, ""); err != nil {
		zap.L().Warn("finish run", zap.String("run", run.ID), zap.Error(err))
	}

	zap.L().Info("ingestion complete",
		zap.Int("fetched", stats.Fetched),
		zap.Int("inserted", stats.Inserted),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

func (in *Ingester) ingestFeed(ctx context.Context, feed Feed, cutoff time.Time, stats *Stats) (int, error) {
	parsed, err := in.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: parse feed %s", feed.URL)
	}

	maxPerFeed := in.cfg.MaxPerFeed
	if maxPerFeed <= 0 {
		maxPerFeed = 50
	}

	name := feedName(feed)
	taken := 0
	for _, item := range parsed.Items {
		if taken >= maxPerFeed {
			break
		}
		ev, ok := eventFromItem(item, name, feed.Language, cutoff)
		if !ok {
			continue
		}
		taken++
		stats.Fetched++

		inserted, err := in.store.InsertRawEvent(ctx, ev)
		if err != nil {
			return taken, err
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Skipped++
		}
	}
	return taken, nil
}

func eventFromItem(item *gofeed.Item, origin, language string, cutoff time.Time) (*model.RawEvent, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return nil, false
	}

	published := time.Now().UTC()
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}
	if published.Before(cutoff) {
		return nil, false
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	return &model.RawEvent{
		ID:          model.EventID(link),
		URL:         link,
		Title:       title,
		Body:        stripHTML(body),
		PublishedAt: published,
		Language:    language,
		Origin:      origin,
	}, true
}

func feedName(feed Feed) string {
	if feed.Name != "" {
		return feed.Name
	}
	u, err := url.Parse(feed.URL)
	if err != nil {
		return feed.URL
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "rss.", "feeds.", "news."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

func stripHTML(text string) string {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(entityReplacer.Replace(b.String())), " ")
}
