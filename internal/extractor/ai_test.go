package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

type fakeCompletion struct {
	replies map[string]string
	err     error
	prompts []string
}

func (f *fakeCompletion) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	for key, reply := range f.replies {
		if strings.Contains(prompt, key) {
			return reply, nil
		}
	}
	return `{"no_match": true}`, nil
}

type fakePageFetcher struct {
	pages map[string]string
	errs  map[string]error
}

func (f *fakePageFetcher) Fetch(_ context.Context, url string) (string, error) {
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	body, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("unexpected fetch: %s", url)
	}
	return body, nil
}

func sourcePage(paths ...string) string {
	out := "<html><body>"
	for _, p := range paths {
		out += fmt.Sprintf(`<a href="%s">link</a>`, p)
	}
	return out + "</body></html>"
}

func TestAIAssistedExtract(t *testing.T) {
	t.Parallel()

	src := awsSource()
	pageURL := "https://aws.amazon.com/architecture/serverless/"
	fetcher := &fakePageFetcher{pages: map[string]string{
		pageURL: "<html><body><h1>Serverless Web App</h1><p>About serverless.</p></body></html>",
	}}
	client := &fakeCompletion{replies: map[string]string{
		"serverless": `{"title": "Serverless Web App", "description": "A serverless reference.",
			"provider": "aws", "tags": ["serverless", "lambda"],
			"resources": ["Lambda", "API Gateway"], "relationships": ["uses DynamoDB"]}`,
	}}

	ai := NewAIAssisted(client, fetcher, testClock, 10, nil)
	records, err := ai.Extract(context.Background(), sourcePage("/architecture/serverless/"), src)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "Serverless Web App", rec.Name)
	require.Equal(t, scraper.RecordTypePattern, rec.Type)
	require.Equal(t, "A serverless reference.", rec.Description)
	require.Equal(t, pageURL, rec.Link)
	require.Equal(t, []string{"serverless", "lambda"}, rec.Tags)
	require.Equal(t, "aws", rec.Metadata["provider"])
	require.Equal(t, "Lambda, API Gateway", rec.Metadata["resources"])
	require.Equal(t, "uses DynamoDB", rec.Metadata["relationships"])
	require.NotEmpty(t, rec.Metadata[scraper.MetadataScrapedAt])
}

func TestAIAssistedSkipsNoMatchAndBadReplies(t *testing.T) {
	t.Parallel()

	src := awsSource()
	fetcher := &fakePageFetcher{pages: map[string]string{
		"https://aws.amazon.com/architecture/good/":    "<body>good page</body>",
		"https://aws.amazon.com/architecture/nomatch/": "<body>blog post</body>",
		"https://aws.amazon.com/architecture/garbled/": "<body>garbled</body>",
	}}
	client := &fakeCompletion{replies: map[string]string{
		"good page": `{"title": "Good"}`,
		"garbled":   `this is not json`,
	}}

	ai := NewAIAssisted(client, fetcher, testClock, 10, nil)
	records, err := ai.Extract(
		context.Background(),
		sourcePage("/architecture/good/", "/architecture/nomatch/", "/architecture/garbled/"),
		src,
	)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Good", records[0].Name)
}

func TestAIAssistedSkipsFetchFailures(t *testing.T) {
	t.Parallel()

	src := awsSource()
	fetcher := &fakePageFetcher{
		pages: map[string]string{
			"https://aws.amazon.com/architecture/ok/": "<body>ok page</body>",
		},
		errs: map[string]error{
			"https://aws.amazon.com/architecture/down/": errors.New("connection refused"),
		},
	}
	client := &fakeCompletion{replies: map[string]string{
		"ok page": `{"title": "OK"}`,
	}}

	ai := NewAIAssisted(client, fetcher, testClock, 10, nil)
	records, err := ai.Extract(
		context.Background(),
		sourcePage("/architecture/down/", "/architecture/ok/"),
		src,
	)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "OK", records[0].Name)
}

func TestAIAssistedNoLinks(t *testing.T) {
	t.Parallel()

	ai := NewAIAssisted(&fakeCompletion{}, &fakePageFetcher{}, testClock, 10, nil)
	records, err := ai.Extract(context.Background(), "<body></body>", awsSource())
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestAIAssistedRespectsMaxPages(t *testing.T) {
	t.Parallel()

	fetcher := &fakePageFetcher{pages: map[string]string{
		"https://aws.amazon.com/architecture/a/": "<body>page a</body>",
		"https://aws.amazon.com/architecture/b/": "<body>page b</body>",
	}}
	client := &fakeCompletion{}

	ai := NewAIAssisted(client, fetcher, testClock, 2, nil)
	_, err := ai.Extract(
		context.Background(),
		sourcePage("/architecture/a/", "/architecture/b/", "/architecture/c/"),
		awsSource(),
	)
	require.NoError(t, err)
	require.Len(t, client.prompts, 2)
}
