package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const rawProof = `{
  "proof_parameters": {"stark": {"fri": {}}},
  "public_input": {
    "layout": "recursive",
    "memory_segments": {
      "program": {"begin_addr": 1, "stop_ptr": 5},
      "execution": {"begin_addr": 10, "stop_ptr": 20},
      "output": {"begin_addr": 20, "stop_ptr": 23}
    },
    "public_memory": [
      {"address": 1, "value": "0x40780017fff7fff", "page": 0},
      {"address": 2, "value": "0x1", "page": 0},
      {"address": 20, "value": "0xa", "page": 0},
      {"address": 21, "value": "0xb", "page": 0},
      {"address": 22, "value": "0xc", "page": 0},
      {"address": 30, "value": "0x99", "page": 1}
    ]
  }
}`

const normalizedProof = `{
  "public_input": {
    "segments": [
      {"begin_addr": 1, "stop_ptr": 5},
      {"begin_addr": 10, "stop_ptr": 20},
      {"begin_addr": 20, "stop_ptr": 22}
    ],
    "main_page": [
      {"address": 1, "value": "7"},
      {"address": 20, "value": "300"},
      {"address": 21, "value": 12}
    ]
  }
}`

func TestStarkProofParser_RawLayout(t *testing.T) {
	out, err := NewStarkProofParser().ParseOutput(rawProof)
	require.NoError(t, err)
	require.Equal(t, []string{"0xa", "0xb", "0xc"}, feltStrings(out))
}

func TestStarkProofParser_NormalizedLayout(t *testing.T) {
	out, err := NewStarkProofParser().ParseOutput(normalizedProof)
	require.NoError(t, err)
	require.Equal(t, []string{"0x12c", "0xc"}, feltStrings(out))
}

func TestStarkProofParser_EmptyOutput(t *testing.T) {
	proof := `{"public_input":{"segments":[{},{},{"begin_addr":5,"stop_ptr":5}],"main_page":[{"value":"1"}]}}`
	out, err := NewStarkProofParser().ParseOutput(proof)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestStarkProofParser_Errors(t *testing.T) {
	tests := map[string]string{
		"not json":          `not a proof`,
		"no public input":   `{"proof":{}}`,
		"missing segment":   `{"public_input":{"segments":[{},{}],"main_page":[]}}`,
		"inverted segment":  `{"public_input":{"segments":[{},{},{"begin_addr":9,"stop_ptr":5}],"main_page":[]}}`,
		"output too long":   `{"public_input":{"segments":[{},{},{"begin_addr":0,"stop_ptr":3}],"main_page":[{"value":"1"}]}}`,
		"huge segment":      `{"public_input":{"segments":[{},{},{"begin_addr":0,"stop_ptr":9223372036854775808}],"main_page":[{"value":"1"}]}}`,
		"bad cell value":    `{"public_input":{"segments":[{},{},{"begin_addr":0,"stop_ptr":1}],"main_page":[{"value":"xyz"}]}}`,
		"missing cell":      `{"public_input":{"segments":[{},{},{"begin_addr":0,"stop_ptr":1}],"main_page":[{"address":1}]}}`,
		"no memory":         `{"public_input":{"segments":[{},{},{"begin_addr":0,"stop_ptr":1}]}}`,
		"missing begin":     `{"public_input":{"segments":[{},{},{"stop_ptr":1}],"main_page":[]}}`,
	}
	for name, proof := range tests {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = NewStarkProofParser().ParseOutput(proof) })
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}
