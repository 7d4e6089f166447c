package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldRoundTrips(t *testing.T) {
	cases := []string{
		"I", "J", "Z", "B", "C", "S", "F", "D",
		"Ljava/lang/String;",
		"[I",
		"[[Ljava/lang/Object;",
	}

	for _, d := range cases {
		f, err := ParseField(d)
		require.NoError(t, err, d)
		assert.Equal(t, d, f.String(), "round trip for %q", d)
	}
}

func TestParseMethodRoundTrips(t *testing.T) {
	cases := []string{
		"()V",
		"(I)V",
		"(Ljava/lang/String;I)Ljava/lang/Object;",
		"([I[Ljava/lang/String;)V",
	}

	for _, d := range cases {
		m, err := ParseMethod(d)
		require.NoError(t, err, d)
		assert.Equal(t, d, m.String(), "round trip for %q", d)
	}
}

func TestParseMethodArgSlots(t *testing.T) {
	m, err := ParseMethod("(IJD)V")
	require.NoError(t, err)
	assert.Equal(t, 5, m.ArgSlots()) // I=1, J=2, D=2
}

func TestParseFieldRejectsMalformed(t *testing.T) {
	_, err := ParseField("Ljava/lang/String")
	assert.Error(t, err)

	_, err = ParseField("Q")
	assert.Error(t, err)

	_, err = ParseField("")
	assert.Error(t, err)
}

func TestArrayElementDescriptor(t *testing.T) {
	f, err := ParseField("[[I")
	require.NoError(t, err)
	require.True(t, f.IsArray())

	elem := f.ElementDescriptor()
	assert.Equal(t, "[I", elem.String())

	elem2 := elem.ElementDescriptor()
	assert.Equal(t, "I", elem2.String())
	assert.True(t, elem2.IsBase())
}
