package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novahub/nova-gateway/internal/capability"
)

func TestRegisterBuiltins(t *testing.T) {
	registry := capability.NewRegistry()
	require.NoError(t, RegisterBuiltins(registry))

	for _, name := range []string{"weather", "calculator", "convert", "pick", "uuid", "time", "joke"} {
		assert.NotNil(t, registry.Resolve(name), name)
	}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"2+3", 5},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"2^10", 1024},
		{"2^3^2", 512},
		{"-5 + 3", -2},
		{"10 % 3", 1},
		{"1.5 * 2 =", 3},
	}
	for _, tc := range cases {
		got, err := Evaluate(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.InDelta(t, tc.want, got, 1e-9, tc.expr)
	}
}

func TestEvaluateErrors(t *testing.T) {
	for _, expr := range []string{"", "2+", "(2+3", "1/0", "abc", "2 3"} {
		_, err := Evaluate(expr)
		assert.Error(t, err, expr)
	}
}

func TestCalculatorDescriptor(t *testing.T) {
	d := calculatorDescriptor()

	out, err := d.Text(context.Background(), "6*7", "u1")
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	out, err = d.Structured(context.Background(), "u1", map[string]any{"expression": "1/4"})
	require.NoError(t, err)
	assert.Equal(t, "0.25", out)
}

func TestConvertUnits(t *testing.T) {
	v, err := convertUnits(10, "km", "mi")
	require.NoError(t, err)
	assert.InDelta(t, 6.2137, v, 0.001)

	v, err = convertUnits(100, "c", "f")
	require.NoError(t, err)
	assert.InDelta(t, 212, v, 1e-9)

	_, err = convertUnits(1, "kg", "m")
	assert.Error(t, err)

	_, err = convertUnits(1, "furlong", "m")
	assert.Error(t, err)
}

func TestConvertDescriptor(t *testing.T) {
	d := convertDescriptor()

	out, err := d.Structured(context.Background(), "u1", map[string]any{
		"value": "2.5", "from": "kg", "to": "lb",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "2.5 kg")
	assert.Contains(t, out, "lb")
}

func TestPickDescriptor(t *testing.T) {
	d := pickDescriptor()

	out, err := d.Text(context.Background(), "pizza or sushi or tacos", "u1")
	require.NoError(t, err)
	assert.Contains(t, []string{"I pick: pizza", "I pick: sushi", "I pick: tacos"}, out)

	_, err = d.Text(context.Background(), "pizza", "u1")
	assert.Error(t, err)
}

func TestTimeDescriptor(t *testing.T) {
	d := timeDescriptor()

	out, err := d.Structured(context.Background(), "u1", map[string]any{"timezone": "UTC"})
	require.NoError(t, err)
	assert.Contains(t, out, "UTC")

	_, err = d.Structured(context.Background(), "u1", map[string]any{"timezone": "Nowhere/Atlantis"})
	assert.Error(t, err)
}

func TestUUIDDescriptor(t *testing.T) {
	d := uuidDescriptor()

	first, err := d.Text(context.Background(), "", "u1")
	require.NoError(t, err)
	second, err := d.Text(context.Background(), "", "u1")
	require.NoError(t, err)
	assert.Len(t, first, 36)
	assert.NotEqual(t, first, second)
}
