package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"

	"lane-siege/server/internal/bus"
)

// eventschema emits the JSON schema for the battle event envelope and every
// payload type, for rendering and analytics clients consuming the feed.
func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "output path for the JSON schema")
	flag.Parse()

	if outPath == "" {
		log.Fatal("eventschema: missing -out path")
	}

	schema, err := buildSchema()
	if err != nil {
		log.Fatalf("eventschema: %v", err)
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("eventschema: marshal schema: %v", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		log.Fatalf("eventschema: create output dir: %v", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		log.Fatalf("eventschema: write schema: %v", err)
	}
}

func buildSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}

	envelope := reflector.ReflectFromType(reflect.TypeOf(bus.Event{}))
	if envelope == nil {
		return nil, fmt.Errorf("failed to reflect event envelope")
	}
	envelope.Version = ""
	envelope.Title = "Battle Event"
	envelope.Description = "Envelope carried by every battle feed message."

	payloads := []any{
		bus.ProjectileFiredPayload{},
		bus.ProjectileCollisionPayload{},
		bus.ProjectileHitCastlePayload{},
		bus.OrbDestroyedPayload{},
		bus.CastleShieldHitPayload{},
		bus.CastlePrimaryHitPayload{},
	}
	definitions := jsonschema.Definitions{}
	for _, payload := range payloads {
		t := reflect.TypeOf(payload)
		payloadSchema := reflector.ReflectFromType(t)
		if payloadSchema == nil {
			return nil, fmt.Errorf("failed to reflect payload %s", t.Name())
		}
		payloadSchema.Version = ""
		definitions[t.Name()] = payloadSchema
	}
	envelope.Definitions = definitions

	return envelope, nil
}
