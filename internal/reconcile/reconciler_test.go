package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
	"github.com/bharatsindha/icon-media-web-crawler/internal/keyword"
	"github.com/bharatsindha/icon-media-web-crawler/internal/rules"
	"github.com/bharatsindha/icon-media-web-crawler/internal/storage/memory"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, hosts ...string) (*memory.Store, *fixedClock, []crawler.Domain) {
	t.Helper()
	store := memory.NewStore()
	_, err := store.AddDomains(context.Background(), hosts, t0)
	require.NoError(t, err)
	domains := make([]crawler.Domain, 0, len(hosts))
	for _, host := range hosts {
		d, err := store.GetDomainByHost(context.Background(), host)
		require.NoError(t, err)
		domains = append(domains, d)
	}
	return store, &fixedClock{now: t0}, domains
}

func newReconciler(t *testing.T, store crawler.KeywordStore, clock crawler.Clock) *Reconciler {
	t.Helper()
	filter, err := keyword.NewFilter(rules.Default().Exclusions)
	require.NoError(t, err)
	return New(store, filter, clock, zap.NewNop())
}

const (
	homeURL    = "https://acme.com/"
	listingURL = "https://acme.com/services"
	detailURL  = "https://acme.com/services/cloud-migration"
)

func sampleCandidates() []crawler.Candidate {
	return []crawler.Candidate{
		{Text: "Web Design", SourceURL: homeURL, Role: crawler.RoleMenu, Confidence: crawler.MenuConfidence},
		{Text: "Privacy Policy", SourceURL: homeURL, Role: crawler.RoleMenu, Confidence: crawler.MenuConfidence},
		{Text: "Cloud Migration Consulting", SourceURL: detailURL, Method: crawler.MethodJSONLD, Confidence: 1.0, Role: crawler.RoleServiceDetail},
		{Text: "cloud  migration consulting", SourceURL: detailURL, Method: crawler.MethodH1, Confidence: 0.95, Role: crawler.RoleServiceDetail},
		{Text: "Web Design", SourceURL: listingURL, Method: crawler.MethodServiceCard, Confidence: 0.80, Role: crawler.RoleServiceListing},
	}
}

func TestCommitCreatesKeywordsAndLinks(t *testing.T) {
	t.Parallel()

	store, clock, domains := newFixture(t, "acme.com")
	r := newReconciler(t, store, clock)

	res, err := r.Commit(context.Background(), domains[0], "job-1", sampleCandidates())
	require.NoError(t, err)
	require.Equal(t, Result{NewKeywords: 2, NewLinks: 3, Observed: 4, Discarded: 1}, res)

	web, ok := store.Keyword("web design")
	require.True(t, ok)
	require.Equal(t, "Web Design", web.Keyword)
	require.Equal(t, int64(1), web.UniqueDomainsCount)
	require.Equal(t, int64(2), web.TotalOccurrences)
	require.Equal(t, t0, web.FirstSeen)

	cloud, ok := store.Keyword("cloud migration consulting")
	require.True(t, ok)
	require.Equal(t, "Cloud Migration Consulting", cloud.Keyword)
	require.Equal(t, int64(2), cloud.TotalOccurrences)

	_, ok = store.Keyword("privacy policy")
	require.False(t, ok)

	links := store.Links(domains[0].ID)
	require.Len(t, links, 3)
	byKey := make(map[crawler.LinkKey]crawler.DomainKeywordLink, len(links))
	for _, l := range links {
		byKey[l.Key()] = l
	}

	detail := byKey[crawler.LinkKey{DomainID: domains[0].ID, KeywordID: cloud.ID, Role: crawler.RoleServiceDetail}]
	require.Equal(t, int64(2), detail.TotalFrequency)
	require.Equal(t, int64(1), detail.PageCount)
	require.InDelta(t, 0.975, detail.AvgScore, 1e-9)
	require.InDelta(t, 1.0, detail.MaxScore, 1e-9)
	require.Equal(t, crawler.MethodJSONLD, detail.Method)
	require.Equal(t, detailURL, detail.SourceURL)

	menu := byKey[crawler.LinkKey{DomainID: domains[0].ID, KeywordID: web.ID, Role: crawler.RoleMenu}]
	require.Equal(t, int64(1), menu.TotalFrequency)
	require.InDelta(t, 1.0, menu.AvgScore, 1e-9)
	require.Empty(t, menu.SourceURL)
	require.Empty(t, menu.Method)

	listing := byKey[crawler.LinkKey{DomainID: domains[0].ID, KeywordID: web.ID, Role: crawler.RoleServiceListing}]
	require.Equal(t, crawler.MethodServiceCard, listing.Method)
	require.InDelta(t, 0.8, listing.ConfidenceScore, 1e-9)
}

func TestCommitTwiceGrowsFrequencyButNotDomains(t *testing.T) {
	t.Parallel()

	store, clock, domains := newFixture(t, "acme.com")
	r := newReconciler(t, store, clock)

	_, err := r.Commit(context.Background(), domains[0], "job-1", sampleCandidates())
	require.NoError(t, err)
	clock.now = t0.Add(24 * time.Hour)
	res, err := r.Commit(context.Background(), domains[0], "job-2", sampleCandidates())
	require.NoError(t, err)
	require.Equal(t, Result{NewKeywords: 0, NewLinks: 0, Observed: 4, Discarded: 1}, res)

	cloud, ok := store.Keyword("cloud migration consulting")
	require.True(t, ok)
	require.Equal(t, int64(1), cloud.UniqueDomainsCount)
	require.Equal(t, int64(4), cloud.TotalOccurrences)
	require.Equal(t, t0, cloud.FirstSeen)
	require.Equal(t, clock.now, cloud.LastSeen)

	for _, l := range store.Links(domains[0].ID) {
		if l.KeywordID != cloud.ID {
			continue
		}
		require.Equal(t, int64(4), l.TotalFrequency)
		require.Equal(t, int64(2), l.PageCount)
		require.Equal(t, t0, l.FirstSeen)
		require.Equal(t, clock.now, l.LastSeen)
	}
}

func TestCommitCountsDistinctDomains(t *testing.T) {
	t.Parallel()

	store, clock, domains := newFixture(t, "acme.com", "globex.com")
	r := newReconciler(t, store, clock)

	candidate := []crawler.Candidate{{Text: "Data Engineering", Role: crawler.RoleMenu, Confidence: 1}}
	res, err := r.Commit(context.Background(), domains[0], "job-1", candidate)
	require.NoError(t, err)
	require.Equal(t, 1, res.NewKeywords)

	res, err = r.Commit(context.Background(), domains[1], "job-2", candidate)
	require.NoError(t, err)
	require.Equal(t, 0, res.NewKeywords)
	require.Equal(t, 1, res.NewLinks)

	kw, ok := store.Keyword("data engineering")
	require.True(t, ok)
	require.Equal(t, int64(2), kw.UniqueDomainsCount)
	require.Equal(t, int64(2), kw.TotalOccurrences)
}

func TestCommitProvenanceFollowsBestRecentObservation(t *testing.T) {
	t.Parallel()

	store, clock, domains := newFixture(t, "acme.com")
	r := newReconciler(t, store, clock)
	ctx := context.Background()

	commit := func(url string, method crawler.ExtractionMethod) {
		_, err := r.Commit(ctx, domains[0], "job", []crawler.Candidate{{
			Text: "Security Audit", SourceURL: url, Method: method,
			Confidence: method.Confidence(), Role: crawler.RoleServiceDetail,
		}})
		require.NoError(t, err)
	}
	commit("https://acme.com/services/a", crawler.MethodH1)
	commit("https://acme.com/services/b", crawler.MethodH1)
	commit("https://acme.com/services/c", crawler.MethodMeta)

	links := store.Links(domains[0].ID)
	require.Len(t, links, 1)
	require.Equal(t, "https://acme.com/services/b", links[0].SourceURL)
	require.Equal(t, crawler.MethodH1, links[0].Method)
	require.InDelta(t, 0.95, links[0].MaxScore, 1e-9)
	require.InDelta(t, (0.95+0.95+0.85)/3, links[0].AvgScore, 1e-9)
	require.Equal(t, int64(3), links[0].PageCount)
}

var errBoom = errors.New("boom")

type failingStore struct {
	*memory.Store
	failAfter int
}

func (f *failingStore) WithinTx(ctx context.Context, fn func(crawler.KeywordTx) error) error {
	return f.Store.WithinTx(ctx, func(tx crawler.KeywordTx) error {
		return fn(&failingTx{KeywordTx: tx, remaining: f.failAfter})
	})
}

type failingTx struct {
	crawler.KeywordTx
	remaining int
}

func (t *failingTx) IncrementKeywordCounts(ctx context.Context, keywordID, occurrences, newDomains int64) error {
	if t.remaining == 0 {
		return errBoom
	}
	t.remaining--
	return t.KeywordTx.IncrementKeywordCounts(ctx, keywordID, occurrences, newDomains)
}

func TestCommitRollsBackOnError(t *testing.T) {
	t.Parallel()

	store, clock, domains := newFixture(t, "acme.com")
	r := newReconciler(t, &failingStore{Store: store, failAfter: 2}, clock)

	res, err := r.Commit(context.Background(), domains[0], "job-1", sampleCandidates())
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, Result{}, res)

	_, ok := store.Keyword("web design")
	require.False(t, ok)
	require.Empty(t, store.Links(domains[0].ID))
}

func TestCommitCancelledContext(t *testing.T) {
	t.Parallel()

	store, clock, domains := newFixture(t, "acme.com")
	r := newReconciler(t, store, clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Commit(ctx, domains[0], "job-1", sampleCandidates())
	require.ErrorIs(t, err, context.Canceled)
}

func TestMergeLinkMenuCarriesNoProvenance(t *testing.T) {
	t.Parallel()

	link := mergeLink(crawler.DomainKeywordLink{}, crawler.Candidate{
		Text: "Branding", SourceURL: homeURL, Role: crawler.RoleMenu, Confidence: 0.2,
	}, t0, true)
	require.InDelta(t, crawler.MenuConfidence, link.MaxScore, 1e-9)
	require.InDelta(t, crawler.MenuConfidence, link.AvgScore, 1e-9)
	require.Empty(t, link.SourceURL)
	require.Equal(t, int64(1), link.PageCount)
	require.Equal(t, t0, link.LastSeen)
}
