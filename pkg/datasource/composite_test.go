package datasource

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavegate/gateway/pkg/gatewayerr"
)

type fakeTier struct {
	name string
	data *ContiguousData
	err  error
}

func (f *fakeTier) Name() string { return f.name }

func (f *fakeTier) Fetch(_ context.Context, _ Request) (*ContiguousData, error) {
	return f.data, f.err
}

func TestCompositeTriesNextTierOnFailure(t *testing.T) {
	want := &ContiguousData{Stream: io.NopCloser(strings.NewReader("hi")), Size: 2}
	c := NewComposite([]Tier{
		&fakeTier{name: "cache", err: gatewayerr.New(gatewayerr.KindNotFound, "miss")},
		&fakeTier{name: "s3", data: want},
	}, nil)

	got, err := c.Fetch(context.Background(), Request{ID: "abc"})
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestCompositeStopsOnClientDisconnect(t *testing.T) {
	c := NewComposite([]Tier{
		&fakeTier{name: "cache", err: gatewayerr.New(gatewayerr.KindClientDisconnect, "gone")},
		&fakeTier{name: "s3", data: &ContiguousData{}},
	}, nil)

	_, err := c.Fetch(context.Background(), Request{ID: "abc"})
	require.Error(t, err)
	assert.True(t, gatewayerr.Is(err, gatewayerr.KindClientDisconnect))
}

func TestCompositeAggregatesOnTotalFailure(t *testing.T) {
	c := NewComposite([]Tier{
		&fakeTier{name: "cache", err: gatewayerr.New(gatewayerr.KindNotFound, "miss")},
		&fakeTier{name: "s3", err: gatewayerr.New(gatewayerr.KindUpstreamTransient, "down")},
	}, nil)

	_, err := c.Fetch(context.Background(), Request{ID: "abc"})
	require.Error(t, err)
	assert.True(t, gatewayerr.Is(err, gatewayerr.KindNotFound))
}
