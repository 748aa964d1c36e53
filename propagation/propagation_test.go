package propagation

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/spanz"
	otelprop "go.opentelemetry.io/otel/propagation"
)

func sampleContext() *spanz.SpanContext {
	sc := spanz.NewSpanContext("4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7", "", "tx-1", true)
	sc.SetBaggageItem("tenant", "acme")
	sc.SetBaggageItem("user", "42")
	return sc
}

func TestTextMapRoundTrip(t *testing.T) {
	t.Parallel()

	p := NewTextMap()
	carrier := map[string]string{}
	require.NoError(t, p.Inject(sampleContext(), carrier))

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", carrier["x-spanz-trace-id"])
	assert.Equal(t, "acme", carrier["x-spanz-baggage-tenant"])

	got, err := p.Extract(carrier)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", got.TraceID)
	assert.Equal(t, "00f067aa0ba902b7", got.SpanID)
	assert.Equal(t, "tx-1", got.TransactionID)
	assert.True(t, got.Sampled)
	assert.Equal(t, map[string]string{"tenant": "acme", "user": "42"}, got.Baggage())
}

func TestTextMapIsCaseSensitive(t *testing.T) {
	t.Parallel()

	got, err := NewTextMap().Extract(map[string]string{"X-Spanz-Trace-Id": "abc"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExtractWithoutTrace(t *testing.T) {
	t.Parallel()

	got, err := NewTextMap().Extract(otelprop.MapCarrier{"other": "value"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnsampledSurvivesPropagation(t *testing.T) {
	t.Parallel()

	p := NewTextMap()
	carrier := otelprop.MapCarrier{}
	require.NoError(t, p.Inject(spanz.NewSpanContext("t", "s", "", "", false), carrier))

	got, err := p.Extract(carrier)
	require.NoError(t, err)
	assert.False(t, got.Sampled)
	_, ok := carrier["x-spanz-transaction-id"]
	assert.False(t, ok, "empty transaction id is not written")
}

func TestHTTPHeadersRoundTrip(t *testing.T) {
	t.Parallel()

	p := NewHTTPHeaders()
	header := http.Header{}
	sc := sampleContext()
	sc.SetBaggageItem("Region", "eu")
	require.NoError(t, p.Inject(sc, header))

	assert.Equal(t, "tx-1", header.Get("X-Spanz-Transaction-Id"))

	got, err := p.Extract(header)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sc.TraceID, got.TraceID)
	assert.Equal(t, sc.SpanID, got.SpanID)
	assert.Equal(t, "tx-1", got.TransactionID)
	assert.Equal(t, map[string]string{"tenant": "acme", "user": "42", "region": "eu"}, got.Baggage())
}

func TestHTTPHeadersFromPlainMap(t *testing.T) {
	t.Parallel()

	carrier := map[string]string{
		"X-SPANZ-TRACE-ID":      "trace",
		"X-Spanz-Span-Id":       "span",
		"X-Spanz-Baggage-Color": "red",
	}
	got, err := NewHTTPHeaders().Extract(carrier)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "trace", got.TraceID)
	assert.Equal(t, "span", got.SpanID)
	v, _ := got.BaggageItem("color")
	assert.Equal(t, "red", v)
}

func TestCustomKeys(t *testing.T) {
	t.Parallel()

	p := NewTextMap(WithKeys(Keys{TraceID: "trace", BaggagePrefix: "bg."}))
	assert.Equal(t, "trace", p.Keys().TraceID)
	assert.Equal(t, DefaultKeys.SpanID, p.Keys().SpanID)

	carrier := map[string]string{}
	require.NoError(t, p.Inject(sampleContext(), carrier))
	assert.Equal(t, "acme", carrier["bg.tenant"])
	assert.NotEmpty(t, carrier["trace"])
}

func TestInvalidCarrier(t *testing.T) {
	t.Parallel()

	p := NewTextMap()
	assert.ErrorIs(t, p.Inject(sampleContext(), "nope"), spanz.ErrInvalidCarrier)
	_, err := p.Extract(42)
	assert.ErrorIs(t, err, spanz.ErrInvalidCarrier)
	var nilMap map[string]string
	assert.ErrorIs(t, p.Inject(sampleContext(), nilMap), spanz.ErrInvalidCarrier)
	assert.ErrorIs(t, p.Inject(nil, map[string]string{}), spanz.ErrNilSpanContext)
}

func TestTracerIntegration(t *testing.T) {
	t.Parallel()

	tracer := spanz.New(
		spanz.WithPropagator(spanz.TextMap, NewTextMap()),
		spanz.WithPropagator(spanz.HTTPHeaders, NewHTTPHeaders()),
	)
	defer tracer.Destroy()

	_, client := tracer.StartSpan(context.Background(), "client")
	client.Context().SetBaggageItem("tenant", "acme")

	header := http.Header{}
	require.NoError(t, tracer.Inject(client.Context(), spanz.HTTPHeaders, header))

	remote, err := tracer.Extract(spanz.HTTPHeaders, header)
	require.NoError(t, err)

	_, server := tracer.StartSpan(context.Background(), "server", spanz.ChildOfContext(remote))
	assert.Equal(t, client.Context().TraceID, server.Context().TraceID)
	assert.Equal(t, client.Context().SpanID, server.Context().ParentID)
	v, _ := server.Context().BaggageItem("tenant")
	assert.Equal(t, "acme", v)
}
