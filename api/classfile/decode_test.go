package classfile_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/api/classfile"
	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/linker"
)

func encodedReturnI32(v int32) string {
	var out []byte
	out = bytecode.EncodeConst(out, bytecode.ConstI32, uint64(uint32(v)), 4)
	out = bytecode.Encode(out, bytecode.Instruction{Op: bytecode.ReturnValue})
	return hex.EncodeToString(out)
}

func TestDecodeJSONBuildsStaticMethodClassFile(t *testing.T) {
	body := encodedReturnI32(9)
	doc := `{
		"name": "Main",
		"static_methods": [
			{"name": "main", "return_type": "i32", "body": "` + body + `"}
		]
	}`

	cf, err := classfile.DecodeJSON(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Main", cf.Name)
	require.Len(t, cf.StaticMethods, 1)
	assert.Equal(t, "main", cf.StaticMethods[0].Name)
	assert.Equal(t, bytecode.I32, cf.StaticMethods[0].ReturnType)
	assert.Equal(t, linker.LocationBytecode, cf.StaticMethods[0].Location.Kind)
	assert.NotEmpty(t, cf.StaticMethods[0].Location.Bytes)
}

func TestDecodeJSONNativeMethodLocation(t *testing.T) {
	doc := `{
		"name": "Sys",
		"native_library_base": "native/sys",
		"own_methods": [
			{"name": "write", "arg_types": ["str"], "return_type": "void", "native_export": "Sys::write"}
		]
	}`

	cf, err := classfile.DecodeJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, cf.OwnMethods, 1)
	assert.Equal(t, linker.LocationNative, cf.OwnMethods[0].Location.Kind)
	assert.Equal(t, "Sys::write", cf.OwnMethods[0].Location.NativeExport)
	assert.Equal(t, []bytecode.TypeTag{bytecode.TStr}, cf.OwnMethods[0].ArgTypes)
}

func TestDecodeJSONUnknownTypeTagErrors(t *testing.T) {
	doc := `{"name": "Bad", "own_methods": [{"name": "m", "return_type": "not-a-type"}]}`
	_, err := classfile.DecodeJSON(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestDecodeJSONMalformedHexErrors(t *testing.T) {
	doc := `{"name": "Bad", "own_methods": [{"name": "m", "return_type": "void", "body": "zz"}]}`
	_, err := classfile.DecodeJSON(strings.NewReader(doc))
	assert.Error(t, err)
}
