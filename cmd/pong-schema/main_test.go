package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilledoj/pongroom/protocol"
)

func TestBuildSchema(t *testing.T) {
	schema := buildSchema()
	msgs := protocol.Messages()
	require.Len(t, schema.OneOf, len(msgs))
	require.Len(t, schema.Definitions, len(msgs))

	for _, msg := range msgs {
		def, ok := schema.Definitions[msg.MessageType()]
		require.True(t, ok, "missing definition for %s", msg.MessageType())
		assert.Equal(t, msg.MessageType(), def.Title)
		assert.Empty(t, def.Version)
	}
	assert.Equal(t, "#/$defs/"+protocol.TypePositionUpdate, schema.OneOf[len(msgs)-1].Ref)
}

func TestWriteSchema(t *testing.T) {
	data, err := json.Marshal(buildSchema())
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "schema", "protocol.json")
	require.NoError(t, writeSchema(out, data))

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(written, &decoded))
	assert.Contains(t, decoded, "$defs")
	_, err = os.Stat(out + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
