package typedjson

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

type item struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type record struct {
	base
	Title    string            `json:"title"`
	Note     *string           `json:"note,omitempty"`
	Hidden   string            `json:"-"`
	Items    []item            `json:"items"`
	Labels   map[string]string `json:"labels,omitempty"`
	Expires  *time.Time        `json:"expires"`
	internal string
}

func TestEncodeAnnotatesDatesAndBigInts(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	rec := record{
		base:     base{ID: "r1", CreatedAt: created},
		Title:    "hello",
		Hidden:   "secret",
		Items:    []item{{Name: "small", Size: 10}, {Name: "huge", Size: 1 << 60}},
		internal: "x",
	}

	env, err := Encode(rec)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(env.JSON, &got))
	assert.Equal(t, "r1", got["id"])
	assert.Equal(t, "2024-03-01T15:30:00.000Z", got["createdAt"])
	assert.NotContains(t, got, "note")
	assert.NotContains(t, got, "Hidden")
	assert.NotContains(t, got, "internal")
	assert.NotContains(t, got, "labels")
	assert.Nil(t, got["expires"])

	items := got["items"].([]any)
	assert.Equal(t, float64(10), items[0].(map[string]any)["size"])
	assert.Equal(t, "1152921504606846976", items[1].(map[string]any)["size"])

	require.NotNil(t, env.Meta)
	assert.Equal(t, map[string][]string{
		"createdAt":    {TypeDate},
		"items.1.size": {TypeBigInt},
	}, env.Meta.Values)
}

func TestEncodePlainValuesHaveNoMeta(t *testing.T) {
	env, err := Encode(map[string]any{"ok": true, "n": 3})
	require.NoError(t, err)
	assert.Nil(t, env.Meta)
	assert.JSONEq(t, `{"ok":true,"n":3}`, string(env.JSON))

	env, err = Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(env.JSON))
}

func TestEncodeRootDate(t *testing.T) {
	env, err := Encode(time.Date(2020, 1, 2, 3, 4, 5, 6e6, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, `"2020-01-02T03:04:05.006Z"`, string(env.JSON))
	assert.Equal(t, map[string][]string{"": {TypeDate}}, env.Meta.Values)
}

func TestEncodeEscapesDottedKeys(t *testing.T) {
	env, err := Encode(map[string]time.Time{"a.b": time.Unix(0, 0)})
	require.NoError(t, err)
	assert.Contains(t, env.Meta.Values, `a\.b`)

	raw, err := Decode(&env)
	require.NoError(t, err)
	var got map[string]time.Time
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.True(t, got["a.b"].Equal(time.Unix(0, 0)))
}

func TestEncodeRejectsUnsupportedValues(t *testing.T) {
	_, err := Encode(map[string]any{"fn": func() {}})
	assert.Error(t, err)
}

func TestRoundTripPreservesTypes(t *testing.T) {
	type payload struct {
		When  time.Time `json:"when"`
		Count int64     `json:"count"`
	}
	in := payload{When: time.Date(2023, 7, 4, 9, 0, 0, 0, time.UTC), Count: -(1 << 62)}

	env, err := Encode(in)
	require.NoError(t, err)

	wire, err := json.Marshal(env)
	require.NoError(t, err)
	var received Envelope
	require.NoError(t, json.Unmarshal(wire, &received))

	raw, err := Decode(&received)
	require.NoError(t, err)
	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, in.When.Equal(out.When))
	assert.Equal(t, in.Count, out.Count)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		env     *Envelope
		want    string
		wantErr bool
	}{
		{name: "nil envelope", env: nil, want: ""},
		{name: "no meta", env: &Envelope{JSON: json.RawMessage(`{"a":1}`)}, want: `{"a":1}`},
		{
			name: "date normalized to utc",
			env: &Envelope{
				JSON: json.RawMessage(`{"at":"2024-01-01T10:00:00-02:00"}`),
				Meta: &Meta{Values: map[string][]string{"at": {TypeDate}}},
			},
			want: `{"at":"2024-01-01T12:00:00Z"}`,
		},
		{
			name: "bigint becomes number",
			env: &Envelope{
				JSON: json.RawMessage(`{"list":["9007199254740993"]}`),
				Meta: &Meta{Values: map[string][]string{"list.0": {TypeBigInt}}},
			},
			want: `{"list":[9007199254740993]}`,
		},
		{
			name: "invalid date",
			env: &Envelope{
				JSON: json.RawMessage(`{"at":"yesterday"}`),
				Meta: &Meta{Values: map[string][]string{"at": {TypeDate}}},
			},
			wantErr: true,
		},
		{
			name: "missing path",
			env: &Envelope{
				JSON: json.RawMessage(`{}`),
				Meta: &Meta{Values: map[string][]string{"at": {TypeDate}}},
			},
			wantErr: true,
		},
		{
			name: "unknown annotation",
			env: &Envelope{
				JSON: json.RawMessage(`{"s":"x"}`),
				Meta: &Meta{Values: map[string][]string{"s": {"regexp"}}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Decode(tt.env)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, raw)
				return
			}
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestSplitPath(t *testing.T) {
	assert.Nil(t, splitPath(""))
	assert.Equal(t, []string{"a", "b", "0"}, splitPath("a.b.0"))
	assert.Equal(t, []string{"a.b", "c"}, splitPath(`a\.b.c`))
}
