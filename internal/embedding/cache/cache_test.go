package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	embedded []string
}

func (c *countingEmbedder) Name() string { return "counting" }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.embedded = append(c.embedded, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func TestEmbedder_ServesRepeatsFromMemory(t *testing.T) {
	next := &countingEmbedder{}
	mem := NewMemory()
	e := New(next, mem, nil)
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	second, err := e.Embed(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "bb", "ccc"}, next.embedded)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, []float32{3, 1}, second[1])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, 3, mem.Len())

	q, err := e.EmbedQuery(ctx, "ccc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1}, q)
	assert.Len(t, next.embedded, 3)
	assert.Equal(t, "counting", e.Name())
}

func TestKey_SeparatesModels(t *testing.T) {
	assert.Equal(t, Key("m", "text"), Key("m", "text"))
	assert.NotEqual(t, Key("m1", "text"), Key("m2", "text"))
	assert.Len(t, Key("m", "text"), 64)
}

func TestEmbedder_UnreachableRedisFallsThrough(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	next := &countingEmbedder{}
	e := New(next, NewRedisWithClient(client, "", time.Minute), nil)

	vecs, err := e.Embed(context.Background(), []string{"x", "yy"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}}, vecs)
	assert.Equal(t, []string{"x", "yy"}, next.embedded)
}

func TestNewRedis_FailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewRedis(ctx, RedisOptions{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
