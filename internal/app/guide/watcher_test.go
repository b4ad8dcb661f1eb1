package guide

import (
	"context"
	"os"
	"testing"
	"time"

	"epg/internal/app/epg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "epg.xml", []byte(guideDoc))
	loader := NewLoader(epg.NewStore(), Options{}, nil)
	_, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Watch(ctx, loader, path, 50*time.Millisecond))

	require.NoError(t, os.WriteFile(path, []byte(replacementDoc), 0o644))

	assert.Eventually(t, func() bool {
		ids := loader.Store().GetChannelIDs()
		return len(ids) == 1 && ids[0] == "ch1"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, loader.Store().SearchPrograms("movie", nil, 0), 1)
}

func TestWatchMissingDirectory(t *testing.T) {
	loader := NewLoader(epg.NewStore(), Options{}, nil)

	err := Watch(context.Background(), loader, "/nonexistent/dir/epg.xml", 0)
	assert.Error(t, err)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("http://example.com/epg.xml"))
	assert.True(t, IsRemote("https://example.com/epg.xml.gz"))
	assert.False(t, IsRemote("/var/lib/epg/epg.xml"))
	assert.False(t, IsRemote("epg.xml"))
}
