package openapi_test

import (
	"encoding/json"
	"testing"

	"github.com/kirill555101/paperclip/pkg/openapi"
)

func TestAddOperation(t *testing.T) {
	spec := &openapi.Spec{}
	get := &openapi.Operation{Summary: "get"}
	put := &openapi.Operation{Summary: "put"}

	spec.AddOperation("/items/{id}", "GET", get)
	spec.AddOperation("/items/{id}", "PUT", put)
	spec.AddOperation("/items/{id}", "PATCH", &openapi.Operation{})

	item := spec.Paths["/items/{id}"]
	if item.Get != get || item.Put != put {
		t.Errorf("PathItem = %+v", item)
	}
	if item.Post != nil || item.Delete != nil {
		t.Error("unsupported method should be ignored")
	}
}

func TestComponents(t *testing.T) {
	c := openapi.NewComponents()
	if c.Schemas["ErrorResponse"] == nil {
		t.Fatal("ErrorResponse schema missing")
	}
	for _, name := range []string{"BadRequest", "NotFound", "PayloadTooLarge", "BadGateway"} {
		if c.Responses[name] == nil {
			t.Errorf("response %s missing", name)
		}
	}

	c.AddSchemas(map[string]*openapi.Schema{"Thing": {Type: "object"}})
	if c.Schemas["Thing"] == nil || c.Schemas["ErrorResponse"] == nil {
		t.Error("AddSchemas should merge")
	}
}

func TestMarshalJSON(t *testing.T) {
	spec := &openapi.Spec{
		OpenAPI: "3.1.0",
		Info:    &openapi.Info{Title: "t", Version: "v"},
		Paths:   map[string]*openapi.PathItem{},
	}
	spec.AddOperation("/files/{id}", "GET", &openapi.Operation{
		Parameters: []*openapi.Parameter{openapi.PathParam("id", "uuid", "File ID")},
		Responses:  map[int]*openapi.Response{404: openapi.ResponseRef("NotFound")},
	})

	data, err := openapi.MarshalJSON(spec)
	if err != nil {
		t.Fatal(err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	op := doc["paths"].(map[string]any)["/files/{id}"].(map[string]any)["get"].(map[string]any)
	ref := op["responses"].(map[string]any)["404"].(map[string]any)["$ref"]
	if ref != "#/components/responses/NotFound" {
		t.Errorf("404 $ref = %v", ref)
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("TEST_OPENAPI_TITLE", "Files")

	cfg := &openapi.Config{}
	if err := cfg.Finalize(&openapi.ConfigEnv{Title: "TEST_OPENAPI_TITLE"}); err != nil {
		t.Fatal(err)
	}
	info := cfg.Info("1.2.3")
	if info.Title != "Files" || info.Version != "1.2.3" || info.Description == "" {
		t.Errorf("Info() = %+v", info)
	}
}
