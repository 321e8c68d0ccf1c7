package store

import (
	"encoding/json"
	"testing"
)

func TestSchemaValidate(t *testing.T) {
	valid := testSchema()
	if err := valid.Validate(); err != nil {
		t.Fatalf("Valid schema rejected: %v", err)
	}

	bad := []Schema{
		{},
		{Collections: []Collection{{Name: "", KeyPath: "id"}}},
		{Collections: []Collection{{Name: "a", KeyPath: ""}}},
		{Collections: []Collection{{Name: QueueCollection, KeyPath: "id"}}},
		{Collections: []Collection{
			{Name: "a", KeyPath: "id"},
			{Name: "a", KeyPath: "id"},
		}},
		{Collections: []Collection{
			{Name: "a", KeyPath: "id", Indexes: []Index{{Name: "", Field: "x"}}},
		}},
	}
	for i, schema := range bad {
		if err := schema.Validate(); err == nil {
			t.Fatalf("Schema %d should be rejected", i)
		}
	}
}

func TestDocumentField(t *testing.T) {
	doc := json.RawMessage(`{"id":"p1","count":3,"ratio":1.5,"flag":true,"nested":{"x":1},"null":null}`)

	if v, ok := documentField("id", doc); !ok || v != "p1" {
		t.Fatalf("Expected p1, got %q (%v)", v, ok)
	}
	if v, ok := documentField("count", doc); !ok || v != "3" {
		t.Fatalf("Expected 3, got %q (%v)", v, ok)
	}
	if v, ok := documentField("ratio", doc); !ok || v != "1.5" {
		t.Fatalf("Expected 1.5, got %q (%v)", v, ok)
	}
	if v, ok := documentField("flag", doc); !ok || v != "true" {
		t.Fatalf("Expected true, got %q (%v)", v, ok)
	}
	if _, ok := documentField("nested", doc); ok {
		t.Fatal("Nested objects are not index values")
	}
	if _, ok := documentField("null", doc); ok {
		t.Fatal("Null is not an index value")
	}
	if _, ok := documentField("missing", doc); ok {
		t.Fatal("Missing field should not be found")
	}
}

func TestDocumentKey(t *testing.T) {
	if _, err := documentKey("id", json.RawMessage(`{"name":"x"}`)); err == nil {
		t.Fatal("Expected error for missing key field")
	}
	key, err := documentKey("id", json.RawMessage(`{"id":"p1"}`))
	if err != nil {
		t.Fatalf("documentKey failed: %v", err)
	}
	if key != "p1" {
		t.Fatalf("Expected p1, got %q", key)
	}
}
