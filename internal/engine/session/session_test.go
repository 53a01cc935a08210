package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/yelptap/internal/config"
	"github.com/rendis/yelptap/internal/engine/output"
	"github.com/rendis/yelptap/internal/engine/scraper"
	"github.com/rendis/yelptap/internal/engine/storage"
	"github.com/rendis/yelptap/internal/model"
)

func fakeSite() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="toggle__09f24__fZMQ4">
				<a class="css-19v1rkv">Home Slice</a>
				<span class="css-gutk1c">4.6</span>
				<span class="css-chan6m">(2301 reviews)</span>
				<a class="css-1jrzyc" href="/biz/home-slice">more</a>
			</div>
		</body></html>`)
	})
	mux.HandleFunc("/biz/home-slice", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body>
			<p class="css-1p9ibgf"><a class="css-1idmmu3" href="/biz_redir?url=https%3A%2F%2Fhomeslicepizza.com%2F">site</a></p>
		</body></html>`)
	})
	return httptest.NewServer(mux)
}

func testParams(t *testing.T, base string, withDB bool) model.SearchParams {
	dir := t.TempDir()
	p := model.SearchParams{
		Query:       model.SearchQuery{Category: "pizza", Location: "Austin, TX"},
		BaseURL:     base,
		Concurrency: 2,
		Output:      filepath.Join(dir, "out", "yelp_data.json"),
	}
	if withDB {
		p.DBPath = filepath.Join(dir, "yelp.db")
	}
	return p
}

func TestSession_RunWritesJSONAndStore(t *testing.T) {
	srv := fakeSite()
	defer srv.Close()

	s, err := Open(testParams(t, srv.URL, true), config.Default())
	require.NoError(t, err)

	stats, err := s.Run(context.Background(), &scraper.RunOptions{SuppressStderr: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.RecordsEmitted.Load())
	require.NoError(t, s.Close())

	recs, err := output.LoadJSON(s.Params.Output)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Home Slice", recs[0].Name)
	require.Equal(t, 2301, recs[0].NumReviews)
	require.Equal(t, "homeslicepizza.com", recs[0].Website)

	store, err := storage.NewStore(s.Params.DBPath)
	require.NoError(t, err)
	defer store.Close()
	stored, err := store.LoadRecords(s.RunID)
	require.NoError(t, err)
	require.Equal(t, recs, stored)

	logData, err := os.ReadFile(s.LogPath)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(s.LogPath, "yelp_data.log"))
	require.Contains(t, string(logData), "parsed_record")
	require.Contains(t, string(logData), s.RunID)
}

func TestSession_WithoutDBStillHasRunID(t *testing.T) {
	s, err := Open(testParams(t, "https://www.yelp.com", false), config.Default())
	require.NoError(t, err)
	defer s.Close()

	require.Nil(t, s.Store)
	require.NotEmpty(t, s.RunID)
}

type fakeUploader struct {
	files []string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, runID, filePath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.files = append(f.files, filePath)
	return "s3://bucket/" + runID + "/" + filepath.Base(filePath), nil
}

func TestSession_Publish(t *testing.T) {
	s, err := Open(testParams(t, "https://www.yelp.com", true), config.Default())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Finish())

	up := &fakeUploader{}
	uris, err := s.publishWith(context.Background(), up)
	require.NoError(t, err)
	require.Equal(t, []string{s.Params.Output, s.Params.DBPath}, up.files)
	require.Equal(t, "s3://bucket/"+s.RunID+"/yelp_data.json", uris[0])

	_, err = s.publishWith(context.Background(), &fakeUploader{err: errors.New("denied")})
	require.ErrorContains(t, err, "denied")
}

func TestSession_PublishWithoutBucketIsNoop(t *testing.T) {
	s, err := Open(testParams(t, "https://www.yelp.com", false), config.Default())
	require.NoError(t, err)
	defer s.Close()

	uris, err := s.Publish(context.Background())
	require.NoError(t, err)
	require.Empty(t, uris)
}
