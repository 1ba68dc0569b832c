package msgparse

import "testing"

func TestParseParamsBasic(t *testing.T) {
	params := parseParams(`charset="us-ascii"; boundary=frontier`)
	v, ok := paramValue(params, "charset")
	if !ok || v != "us-ascii" {
		t.Errorf("charset = %q, %v", v, ok)
	}
	v, ok = paramValue(params, "BOUNDARY")
	if !ok || v != "frontier" {
		t.Errorf("boundary = %q, %v", v, ok)
	}
}

func TestParseParamsContinuation(t *testing.T) {
	params := parseParams(`title*0="Part one, "; title*1="and part two"`)
	v, ok := paramValue(params, "title")
	if !ok || v != "Part one, and part two" {
		t.Errorf("title = %q, %v", v, ok)
	}
}

func TestParseParamsExtendedMarksName(t *testing.T) {
	params := parseParams(`filename*0*=UTF-8''%e2%82%ac; filename*1=" rates.pdf"`)
	var got *Param
	for i := range params {
		if params[i].Name == "FILENAME*" {
			got = &params[i]
		}
	}
	if got == nil {
		t.Fatalf("expected FILENAME* param, got %+v", params)
	}
	if got.Value != "UTF-8''%e2%82%ac rates.pdf" {
		t.Errorf("value = %q", got.Value)
	}
}

func TestParseParamsQuotedSemicolon(t *testing.T) {
	params := parseParams(`name="a; b"; other=c`)
	v, ok := paramValue(params, "name")
	if !ok || v != "a; b" {
		t.Errorf("name = %q, %v", v, ok)
	}
	v, ok = paramValue(params, "other")
	if !ok || v != "c" {
		t.Errorf("other = %q, %v", v, ok)
	}
}

func TestParseParamsEmpty(t *testing.T) {
	params := parseParams("")
	if len(params) != 0 {
		t.Errorf("got %d params, want 0", len(params))
	}
}

func TestParamValueMissing(t *testing.T) {
	params := parseParams("a=b")
	if _, ok := paramValue(params, "missing"); ok {
		t.Errorf("expected ok=false for missing param")
	}
}
