package proto

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandEncoding(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"run", Run(), `{"command":"RUN"}`},
		{"hold", Hold(), `{"command":"HOLD"}`},
		{"step", Step(), `{"command":"STEP"}`},
		{"progress", Progress(1500), `{"command":"PROGRESS","millis":1500}`},
		{"progress zero", Progress(0), `{"command":"PROGRESS","millis":0}`},
		{"rate", Rate(2.5), `{"command":"RATE","rate":2.5}`},
		{"status", Status(), `{"command":"STATUS"}`},
		{"model tree", ModelTreeRequest(), `{"command":"MODEL_TREE"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.cmd.Validate())
			data, err := json.Marshal(tt.cmd)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestCommandValidate(t *testing.T) {
	assert.Error(t, Command{Name: "EXPLODE"}.Validate())
	assert.Error(t, Command{Name: CommandProgress}.Validate())
	assert.Error(t, Progress(-1).Validate())
	assert.Error(t, Command{Name: CommandRate}.Validate())
}

func TestCommandNaNRateDoesNotMarshal(t *testing.T) {
	_, err := json.Marshal(Rate(math.NaN()))
	assert.Error(t, err)
}

func TestParseCommandName(t *testing.T) {
	name, err := ParseCommandName("model_tree")
	require.NoError(t, err)
	assert.Equal(t, CommandModelTree, name)

	_, err = ParseCommandName("toggle")
	assert.Error(t, err)
}

func TestDecodeValueKeepsOrderAndNumbers(t *testing.T) {
	v, err := DecodeValue([]byte(`{"z": 1, "a": 2.0, "m": [true, null, "s", {"k": 1e3}]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())

	z, _ := obj.Get("z")
	assert.Equal(t, json.Number("1"), z)
	assert.False(t, IsFloatNumber(z.(json.Number)))

	a, _ := obj.Get("a")
	assert.True(t, IsFloatNumber(a.(json.Number)))

	m, _ := obj.Get("m")
	arr := m.([]any)
	require.Len(t, arr, 4)
	assert.Equal(t, true, arr[0])
	assert.Nil(t, arr[1])
	assert.Equal(t, "s", arr[2])
	inner := arr[3].(Object)
	k, _ := inner.Get("k")
	assert.True(t, IsFloatNumber(k.(json.Number)))
}

func TestDecodeValueRejectsInvalid(t *testing.T) {
	for _, in := range []string{``, `{`, `{"a" 1}`, `[1,]`, `{} {}`, `nope`} {
		_, err := DecodeValue([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidJSON, "input %q", in)
	}
}

func TestObjectMarshalKeepsOrder(t *testing.T) {
	v, err := DecodeValue([]byte(`{"b":1,"a":{"d":[1,2],"c":"x"}}`))
	require.NoError(t, err)
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":{"d":[1,2],"c":"x"}}`, string(data))
}

func TestDecodeModelTree(t *testing.T) {
	tree, err := DecodeModelTree([]byte(`{
		"Satellite": [
			{"Power": [{"voltage": []}, {"current": []}]},
			{"Thermal": []}
		],
		"GroundStation": []
	}`))
	require.NoError(t, err)
	require.Len(t, tree.Roots, 2)

	sat := tree.Roots[0]
	assert.Equal(t, "Satellite", sat.Name)
	assert.Equal(t, Branch, sat.Kind)
	require.Len(t, sat.Children, 2)
	assert.Equal(t, "Power", sat.Children[0].Name)
	assert.Equal(t, Branch, sat.Children[0].Kind)
	assert.Equal(t, []string{"voltage", "current"}, []string{sat.Children[0].Children[0].Name, sat.Children[0].Children[1].Name})
	assert.Equal(t, Leaf, sat.Children[1].Kind)

	assert.Equal(t, "GroundStation", tree.Roots[1].Name)
	assert.Equal(t, Leaf, tree.Roots[1].Kind)
}

func TestDecodeModelTreeLeafRules(t *testing.T) {
	tree, err := DecodeModelTree([]byte(`{"a": {}, "b": {"x": []}, "c": null, "d": [1, "two"]}`))
	require.NoError(t, err)
	require.Len(t, tree.Roots, 4)
	assert.Equal(t, Leaf, tree.Roots[0].Kind)
	assert.Equal(t, Leaf, tree.Roots[1].Kind)
	assert.Equal(t, Leaf, tree.Roots[2].Kind)
	assert.Equal(t, Branch, tree.Roots[3].Kind)
	assert.Empty(t, tree.Roots[3].Children)
}

func TestDecodeModelTreeMergesSiblingsAcrossElements(t *testing.T) {
	tree, err := DecodeModelTree([]byte(`{"a": [{"b": []}, {"x": []}, {"b": [{"c": []}]}]}`))
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1)

	a := tree.Roots[0]
	require.Len(t, a.Children, 2)
	assert.Equal(t, "b", a.Children[0].Name)
	assert.Equal(t, Branch, a.Children[0].Kind)
	require.Len(t, a.Children[0].Children, 1)
	assert.Equal(t, "c", a.Children[0].Children[0].Name)
	assert.Equal(t, "x", a.Children[1].Name)
}

func TestDecodeModelTreeRejectsScalars(t *testing.T) {
	_, err := DecodeModelTree([]byte(`42`))
	assert.Error(t, err)
}

func TestModelTreeValueRoundTrip(t *testing.T) {
	in := `{"A":[{"B":[{"C":[]}]},{"D":[]}],"E":[]}`
	tree, err := DecodeModelTree([]byte(in))
	require.NoError(t, err)
	data, err := json.Marshal(tree.Value())
	require.NoError(t, err)
	assert.JSONEq(t, in, string(data))
}
