package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copier_bridge/internal/models"
)

type fakeRegistry struct {
	calls  [][]string
	labels map[string]models.Labels
	err    error
}

func (f *fakeRegistry) ResolveLabels(_ context.Context, names []string) (map[string]models.Labels, error) {
	f.calls = append(f.calls, names)
	if f.err != nil {
		return nil, f.err
	}

	out := make(map[string]models.Labels)
	for _, n := range names {
		if l, ok := f.labels[n]; ok {
			out[n] = l
		}
	}

	return out, nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestResolveDedupesNames(t *testing.T) {
	reg := &fakeRegistry{labels: map[string]models.Labels{
		"A1": {ClientName: "Acme", AgencyName: "North"},
	}}

	labels, err := New(reg, discard).Resolve(context.Background(), []string{"A1", " A1 ", "", "B2"})
	require.NoError(t, err)

	require.Len(t, reg.calls, 1)
	assert.Equal(t, []string{"A1", "B2"}, reg.calls[0])
	assert.Equal(t, map[string]models.Labels{"A1": {ClientName: "Acme", AgencyName: "North"}}, labels)

	assert.Equal(t, models.Labels{}, LabelsFor(labels, "B2"))
	assert.Equal(t, "Acme", LabelsFor(labels, "A1").ClientName)
}

func TestResolveEmptyInputSkipsRegistry(t *testing.T) {
	reg := &fakeRegistry{}

	labels, err := New(reg, discard).Resolve(context.Background(), []string{" "})
	require.NoError(t, err)
	assert.Empty(t, labels)
	assert.Empty(t, reg.calls)
}

func TestResolvePropagatesRegistryError(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("connection refused")}

	_, err := New(reg, discard).Resolve(context.Background(), []string{"A1"})
	assert.Error(t, err)
}
