package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/extract"
	"github.com/caldera-labs/plume/feed"
	"github.com/caldera-labs/plume/httpclient"
	"github.com/caldera-labs/plume/ingest"
	"github.com/caldera-labs/plume/llm"
	"github.com/caldera-labs/plume/queue"
	"github.com/caldera-labs/plume/store"
)

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
<title>Example Feed</title>
<link>https://example.invalid</link>
<item>
<title>A Real Headline About Go Testing</title>
<link>https://example.invalid/articles/one</link>
<guid>article-one</guid>
<description>&lt;p&gt;This article is long enough to clear the garbage-content heuristic used before calling the summarizer, so it should reach the upstream chat completion endpoint during this integration test. Padding this paragraph a little further ensures the plain-text length comfortably exceeds the configured minimum threshold.&lt;/p&gt;</description>
</item>
</channel>
</rss>`

func chatCompletionResponse(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{
				"message": map[string]interface{}{
					"content": `{"summary_pt":"Resumo do artigo.","one_line_summary":"Resumo curto.","translated_title":"Titulo","tags":["go","testing"]}`,
				},
				"finish_reason": "stop",
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal fake chat response: %v", err)
	}
	return body
}

// TestIngestAndSummarizePipeline exercises the full path from a feed
// fetch through deduplicated post insertion to a persisted AI summary:
// fetch -> ingest -> enqueue -> worker tick -> summary row.
func TestIngestAndSummarizePipeline(t *testing.T) {
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer feedServer.Close()

	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionResponse(t))
	}))
	defer llmServer.Close()

	ctx := context.Background()
	st, err := store.Open(ctx, t.TempDir()+"/plume.db", zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	feedID, err := st.CreateFeed(ctx, &store.Feed{Title: "example.invalid", SourceURL: feedServer.URL})
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}
	f, err := st.GetFeed(ctx, feedID)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}

	pool := httpclient.NewPool()
	fetcher := feed.NewFetcher(pool, zerolog.Nop())
	ingestor := ingest.NewIngestor(fetcher, st, zerolog.Nop())

	result := ingestor.IngestFeed(ctx, f)
	if result.New != 1 {
		t.Fatalf("expected 1 new post, got %+v", result)
	}

	extractor := extract.NewExtractor(pool, nil, zerolog.Nop(), "curl_chrome124_test_binary_does_not_exist")
	llmClient := llm.NewClient(pool, st, zerolog.Nop(), llmServer.URL, "test-model", 1000, 5*time.Second, []string{"test-key"}, 0)
	worker := queue.NewWorker(st, extractor, llmClient, "prompts.yaml", "pt", 5*time.Minute, zerolog.Nop())

	outcome, err := worker.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if outcome != queue.OutcomeSummarized {
		t.Fatalf("expected worker to summarize the enqueued entry, got outcome=%v", outcome)
	}

	posts, err := st.ListPostsByFeed(ctx, feedID, 10)
	if err != nil {
		t.Fatalf("ListPostsByFeed: %v", err)
	}
	if len(posts) != 1 || posts[0].ContentHash == nil {
		t.Fatalf("expected one post with a content hash, got %+v", posts)
	}

	summary, err := st.GetSummaryByHash(ctx, *posts[0].ContentHash)
	if err != nil {
		t.Fatalf("GetSummaryByHash: %v", err)
	}
	if summary.SummaryText == "" {
		t.Fatal("expected a non-empty persisted summary")
	}

	depth, err := st.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected queue to be drained, depth=%d", depth)
	}
}
