package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	joinSchema := compile("join.schema.json")
	joinAckSchema := compile("join_ack.schema.json")
	joinRejectSchema := compile("join_reject.schema.json")
	directionSchema := compile("direction.schema.json")
	snapshotSchema := compile("snapshot.schema.json")

	var join any
	_ = json.Unmarshal([]byte(`{
	  "type":"JOIN",
	  "protocol_version":"1.0",
	  "name":"viper",
	  "color":"#00C800",
	  "capabilities":{"cells_rle":true}
	}`), &join)
	validate(joinSchema, join)

	var ack any
	_ = json.Unmarshal([]byte(`{
	  "type":"JOIN_ACK",
	  "protocol_version":"1.0",
	  "snake_id":"S1",
	  "grid_width":50,
	  "grid_height":25,
	  "tick_interval_ms":71,
	  "start_length":3,
	  "edge_policy":"wall",
	  "color":"#00FF00"
	}`), &ack)
	validate(joinAckSchema, ack)

	var reject any
	_ = json.Unmarshal([]byte(`{
	  "type":"JOIN_REJECT",
	  "protocol_version":"1.0",
	  "code":"E_SERVER_FULL",
	  "reason":"session limit reached"
	}`), &reject)
	validate(joinRejectSchema, reject)

	var dir any
	_ = json.Unmarshal([]byte(`{
	  "type":"DIRECTION",
	  "protocol_version":"1.0",
	  "heading":"left"
	}`), &dir)
	validate(directionSchema, dir)

	var snap any
	_ = json.Unmarshal([]byte(`{
	  "type":"SNAPSHOT",
	  "protocol_version":"1.0",
	  "tick":42,
	  "snakes":[{
	    "id":"S1","name":"viper",
	    "segments":[[5,4],[5,5],[5,6]],
	    "color":"#00FF00","alive":true,"score":3
	  }],
	  "apples":[{"cell":[10,12],"growth":1}],
	  "cells_rle":"AAE="
	}`), &snap)
	validate(snapshotSchema, snap)
}

func TestSchemas_RejectBadSamples(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "direction.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var bad any
	_ = json.Unmarshal([]byte(`{
	  "type":"DIRECTION",
	  "protocol_version":"1.0",
	  "heading":"diagonal"
	}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatal("expected validation failure for bad heading")
	}
}
