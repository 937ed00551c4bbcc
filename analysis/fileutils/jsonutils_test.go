package fileutils

import (
	"errors"
	"io"
	"strings"
	"testing"
)

type topicDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDecodeModelJSON_Direct(t *testing.T) {
	t.Parallel()

	var doc topicDoc
	if err := DecodeModelJSON(`{"name":"work","count":3}`, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Name != "work" || doc.Count != 3 {
		t.Fatalf("doc=%+v", doc)
	}
}

func TestDecodeModelJSON_Fenced(t *testing.T) {
	t.Parallel()

	out := "```json\n{\"name\": \"family\", \"count\": 2}\n```"
	var doc topicDoc
	if err := DecodeModelJSON(out, &doc); err != nil {
		t.Fatalf("decode fenced: %v", err)
	}
	if doc.Name != "family" || doc.Count != 2 {
		t.Fatalf("doc=%+v", doc)
	}
}

func TestDecodeModelJSON_FencedArray(t *testing.T) {
	t.Parallel()

	// Arrays only survive the fence path; brace extraction never finds them.
	out := "```\n[1, 2, 3]\n```"
	var nums []int
	if err := DecodeModelJSON(out, &nums); err != nil {
		t.Fatalf("decode fenced array: %v", err)
	}
	if len(nums) != 3 || nums[0] != 1 || nums[2] != 3 {
		t.Fatalf("nums=%v", nums)
	}
}

func TestDecodeModelJSON_ProseWrapped(t *testing.T) {
	t.Parallel()

	out := `Here is the summary you asked for: {"name":"health","count":5} Hope that helps!`
	var doc topicDoc
	if err := DecodeModelJSON(out, &doc); err != nil {
		t.Fatalf("decode prose: %v", err)
	}
	if doc.Name != "health" || doc.Count != 5 {
		t.Fatalf("doc=%+v", doc)
	}
}

func TestDecodeModelJSON_Empty(t *testing.T) {
	t.Parallel()

	var doc topicDoc
	if err := DecodeModelJSON("   \n  ", &doc); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDecodeModelJSON_NoObject(t *testing.T) {
	t.Parallel()

	var doc topicDoc
	err := DecodeModelJSON("I could not produce any structured output.", &doc)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "no JSON object found") {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeModelJSON_BadExtractedObject(t *testing.T) {
	t.Parallel()

	var doc topicDoc
	err := DecodeModelJSON(`note: {"name": unquoted} end`, &doc)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "failed to unmarshal extracted JSON") {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeModelJSON_TruncatedObject(t *testing.T) {
	t.Parallel()

	// A cut-off payload has no closing brace, so extraction finds nothing.
	var doc topicDoc
	err := DecodeModelJSON(`{"name":"work","cou`, &doc)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "no JSON object found") {
		t.Fatalf("err=%v", err)
	}
}
