package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/chilledoj/pongroom/protocol"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema (stdout if empty)")
	flag.Parse()

	data, err := json.MarshalIndent(buildSchema(), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal schema: %v\n", err)
		os.Exit(1)
	}
	data = append(data, '\n')

	if outPath == "" {
		os.Stdout.Write(data)
		return
	}
	if err := writeSchema(outPath, data); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

// buildSchema describes the payload of every wire message. Each frame is an
// envelope {"type": <message type>, "payload": <payload>}; payloads are
// listed under $defs by message type.
func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "pongroom wire protocol",
		Description: "Payloads of the messages exchanged between the host and its participants.",
		Definitions: jsonschema.Definitions{},
	}
	for _, msg := range protocol.Messages() {
		payload := reflector.Reflect(msg)
		payload.Version = ""
		payload.Title = msg.MessageType()
		root.Definitions[msg.MessageType()] = payload
		root.OneOf = append(root.OneOf, &jsonschema.Schema{Ref: "#/$defs/" + msg.MessageType()})
	}
	return root
}

func writeSchema(outPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
