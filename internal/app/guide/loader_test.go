package guide

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"epg/internal/app/epg"
	"epg/internal/app/xmltv"
	"epg/internal/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guideDoc = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="ch1"><display-name>Channel 1</display-name></channel>
  <channel id="ch2"><display-name>Channel 2</display-name></channel>
  <channel id="ch9"><display-name>Channel-test</display-name></channel>
  <programme start="20240101000000 +0000" stop="20240101010000 +0000" channel="ch1"><title>Morning News</title></programme>
  <programme start="20240101010000 +0000" stop="20240101020000 +0000" channel="ch1"><title>Drama</title></programme>
  <programme start="20240101000000 +0000" stop="20240101010000 +0000" channel="ch2"><title>Anime</title></programme>
  <programme start="20240101000000 +0000" stop="bad" channel="ch2"><title>Broken</title></programme>
  <programme start="20240101000000 +0000" stop="20240101010000 +0000" channel="ch3"><title>Undeclared</title></programme>
  <programme start="20240101000000 +0000" stop="20240101010000 +0000" channel="ch9"><title>Test Show</title></programme>
</tv>`

const replacementDoc = `<tv>
  <channel id="ch1"><display-name>Channel 1</display-name></channel>
  <programme start="20240101000000 +0000" stop="20240101010000 +0000" channel="ch1"><title>Evening Movie</title></programme>
</tv>`

const morningMs = int64(1704067200000) // 2024-01-01 00:00:00 UTC

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func gzipData(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	_, err := gzipWriter.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, gzipWriter.Close())
	return buf.Bytes()
}

func TestLoadFile(t *testing.T) {
	m := metrics.New()
	loader := NewLoader(epg.NewStore(), Options{}, m)

	result, err := loader.Load(context.Background(), writeFile(t, "epg.xml", []byte(guideDoc)))
	require.NoError(t, err)

	assert.Equal(t, 3, result.ChannelCount)
	assert.Equal(t, 5, result.ProgramCount)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.SkippedByReason[xmltv.SkipInvalidStop])
	assert.Same(t, result, loader.LastResult())

	store := loader.Store()
	assert.Equal(t, []string{"ch1", "ch2", "ch3", "ch9"}, store.GetChannelIDs())
	// 仅被节目引用的频道使用频道ID作为名称
	assert.Equal(t, "ch3", store.GetChannelName("ch3"))

	now := store.GetNow("ch1", morningMs+30*60*1000)
	require.NotNil(t, now)
	assert.Equal(t, "Morning News", now.Title)
	assert.Len(t, store.SearchPrograms("news", nil, 0), 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("success")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ProgramsIngested))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Channels))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProgramsSkipped.WithLabelValues(string(xmltv.SkipInvalidStop))))
}

func TestLoadExcludeRule(t *testing.T) {
	loader := NewLoader(epg.NewStore(), Options{ChExcludeRule: regexp.MustCompile(`^.+?(テスト|-test)$`)}, nil)

	result, err := loader.Load(context.Background(), writeFile(t, "epg.xml", []byte(guideDoc)))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Excluded)
	assert.False(t, loader.Store().HasChannel("ch9"))
	assert.Empty(t, loader.Store().SearchPrograms("test", nil, 0))
}

func TestLoadRemovesStaleChannels(t *testing.T) {
	loader := NewLoader(epg.NewStore(), Options{}, nil)

	_, err := loader.Load(context.Background(), writeFile(t, "epg.xml", []byte(guideDoc)))
	require.NoError(t, err)

	result, err := loader.Load(context.Background(), writeFile(t, "epg.xml", []byte(replacementDoc)))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Removed)
	store := loader.Store()
	assert.Equal(t, []string{"ch1"}, store.GetChannelIDs())
	assert.Empty(t, store.SearchPrograms("news", nil, 0))
	assert.Empty(t, store.SearchPrograms("anime", nil, 0))
	assert.Len(t, store.SearchPrograms("movie", nil, 0), 1)
}

func TestLoadGzipFile(t *testing.T) {
	loader := NewLoader(epg.NewStore(), Options{}, nil)

	result, err := loader.Load(context.Background(), writeFile(t, "epg.xml.gz", gzipData(t, guideDoc)))
	require.NoError(t, err)
	assert.Equal(t, 5, result.ProgramCount)
}

func TestLoadRemote(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/epg.xml":
			_, _ = w.Write([]byte(guideDoc))
		case "/epg.xml.gz":
			_, _ = w.Write(gzipData(t, guideDoc))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	loader := NewLoader(epg.NewStore(), Options{Headers: map[string]string{"User-Agent": "epg-test"}}, nil)

	result, err := loader.Load(context.Background(), server.URL+"/epg.xml")
	require.NoError(t, err)
	assert.Equal(t, 5, result.ProgramCount)
	assert.Equal(t, "epg-test", userAgent)

	result, err = loader.Load(context.Background(), server.URL+"/epg.xml.gz")
	require.NoError(t, err)
	assert.Equal(t, 5, result.ProgramCount)

	_, err = loader.Load(context.Background(), server.URL+"/missing.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, "error", FailureStatus(err))
}

func TestLoadTooLarge(t *testing.T) {
	doc := []byte(guideDoc)
	limit := int64(len(doc) - 1)

	t.Run("file", func(t *testing.T) {
		m := metrics.New()
		loader := NewLoader(epg.NewStore(), Options{MaxSizeBytes: limit}, m)

		_, err := loader.Load(context.Background(), writeFile(t, "epg.xml", doc))
		require.ErrorIs(t, err, xmltv.ErrDocumentTooLarge)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("too_large")))
		assert.Nil(t, loader.LastResult())
	})

	t.Run("content length", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
			_, _ = w.Write(doc)
		}))
		defer server.Close()

		loader := NewLoader(epg.NewStore(), Options{MaxSizeBytes: limit}, nil)
		_, err := loader.Load(context.Background(), server.URL)
		require.ErrorIs(t, err, xmltv.ErrDocumentTooLarge)
	})

	t.Run("gzip stream", func(t *testing.T) {
		compressed := gzipData(t, guideDoc)
		require.Less(t, int64(len(compressed)), limit)

		loader := NewLoader(epg.NewStore(), Options{MaxSizeBytes: limit}, nil)
		_, err := loader.Load(context.Background(), writeFile(t, "epg.xml.gz", compressed))
		require.ErrorIs(t, err, xmltv.ErrDocumentTooLarge)

		var tooLarge *xmltv.DocumentTooLargeError
		require.ErrorAs(t, err, &tooLarge)
		assert.Equal(t, int64(-1), tooLarge.Size)
	})
}

func TestLoadMalformedKeepsStore(t *testing.T) {
	m := metrics.New()
	loader := NewLoader(epg.NewStore(), Options{}, m)

	_, err := loader.Load(context.Background(), writeFile(t, "epg.xml", []byte(guideDoc)))
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), writeFile(t, "bad.xml", []byte("<html></html>")))
	require.ErrorIs(t, err, xmltv.ErrMalformedDocument)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("malformed")))

	// 加载失败时保留原有的节目单
	assert.Len(t, loader.Store().GetChannelIDs(), 4)
}

func TestLoadCanceled(t *testing.T) {
	loader := NewLoader(epg.NewStore(), Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, writeFile(t, "epg.xml", []byte(guideDoc)))
	require.Error(t, err)
	assert.Equal(t, "canceled", FailureStatus(err))
	assert.Empty(t, loader.Store().GetChannelIDs())
}

func TestLoadSuperseded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(guideDoc))
	}))
	defer server.Close()
	defer close(release)

	loader := NewLoader(epg.NewStore(), Options{}, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), server.URL)
		errCh <- err
	}()
	<-started

	_, err := loader.Load(context.Background(), writeFile(t, "epg.xml", []byte(replacementDoc)))
	require.NoError(t, err)

	err = <-errCh
	require.ErrorIs(t, err, ErrLoadSuperseded)
	assert.Equal(t, "canceled", FailureStatus(err))
	// 被取代的加载不会写入索引
	assert.Equal(t, []string{"ch1"}, loader.Store().GetChannelIDs())
}

func largeGuideDoc(channels int) string {
	var sb strings.Builder
	sb.WriteString("<tv>\n")
	for i := 0; i < channels; i++ {
		fmt.Fprintf(&sb, `<programme start="20240101000000 +0000" stop="20240101010000 +0000" channel="ch%05d"><title>Show %d</title></programme>`+"\n", i, i)
	}
	sb.WriteString("</tv>\n")
	return sb.String()
}

func TestClearDuringPublish(t *testing.T) {
	m := metrics.New()
	loader := NewLoader(epg.NewStore(), Options{}, m)
	path := writeFile(t, "epg.xml", []byte(largeGuideDoc(20000)))

	errCh := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), path)
		errCh <- err
	}()

	// 第一个频道出现时，加载已进入发布阶段
	require.Eventually(t, func() bool {
		return loader.Store().Stats().Channels > 0
	}, 10*time.Second, time.Millisecond)
	loader.Clear()
	<-errCh

	// 清空在发布完成之后执行，索引不会残留部分频道
	assert.Equal(t, epg.Stats{}, loader.Store().Stats())
	assert.Nil(t, loader.LastResult())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Channels))
}

func TestClearCancelsPendingLoad(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(guideDoc))
	}))
	defer server.Close()
	defer close(release)

	m := metrics.New()
	loader := NewLoader(epg.NewStore(), Options{}, m)
	_, err := loader.Load(context.Background(), writeFile(t, "epg.xml", []byte(replacementDoc)))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), server.URL)
		errCh <- err
	}()
	<-started

	loader.Clear()

	err = <-errCh
	require.ErrorIs(t, err, ErrGuideCleared)
	assert.Equal(t, "canceled", FailureStatus(err))
	assert.Empty(t, loader.Store().GetChannelIDs())
	assert.Nil(t, loader.LastResult())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("canceled")))
}
