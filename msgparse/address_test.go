package msgparse

import "testing"

func TestParseAddressSimple(t *testing.T) {
	a, err := ParseAddress("Barry Gibbs <bg@example.com>")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.Name != "Barry Gibbs" || a.Addr != "bg@example.com" {
		t.Errorf("got %+v", a)
	}
}

func TestParseAddressBare(t *testing.T) {
	a, err := ParseAddress("bg@example.com")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.Name != "" || a.Addr != "bg@example.com" {
		t.Errorf("got %+v", a)
	}
}

func TestParseAddressQuotedName(t *testing.T) {
	a, err := ParseAddress(`"Gibbs, Barry" <bg@example.com>`)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.Name != "Gibbs, Barry" || a.Addr != "bg@example.com" {
		t.Errorf("got %+v", a)
	}
}

func TestParseAddressListMultiple(t *testing.T) {
	list, err := ParseAddressList("a@example.com, Bee <b@example.com>")
	if err != nil {
		t.Fatalf("ParseAddressList: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d addresses, want 2", len(list))
	}
	if list[0].Addr != "a@example.com" {
		t.Errorf("list[0] = %+v", list[0])
	}
	if list[1].Name != "Bee" || list[1].Addr != "b@example.com" {
		t.Errorf("list[1] = %+v", list[1])
	}
}

func TestParseAddressListGroup(t *testing.T) {
	list, err := ParseAddressList("undisclosed-recipients:;")
	if err != nil {
		t.Fatalf("ParseAddressList: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("got %d addresses, want 0", len(list))
	}
}

func TestParseAddressEncodedName(t *testing.T) {
	a, err := ParseAddress("=?UTF-8?B?QmFycnk=?= <bg@example.com>")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.Name != "Barry" {
		t.Errorf("Name = %q, want Barry", a.Name)
	}
}

func TestFormatAddress(t *testing.T) {
	a := &Address{Name: "Barry Gibbs", Addr: "bg@example.com"}
	if got, want := FormatAddress(a), `"Barry Gibbs" <bg@example.com>`; got != want {
		t.Errorf("FormatAddress = %q, want %q", got, want)
	}
}

func TestFormatAddressNoName(t *testing.T) {
	a := &Address{Addr: "bg@example.com"}
	if got, want := FormatAddress(a), "<bg@example.com>"; got != want {
		t.Errorf("FormatAddress = %q, want %q", got, want)
	}
}

func TestEncodeAddressSpecQuotesLocalPart(t *testing.T) {
	if got, want := EncodeAddressSpec("a b@example.com"), `<"a b"@example.com>`; got != want {
		t.Errorf("EncodeAddressSpec = %q, want %q", got, want)
	}
}

func TestParseReference(t *testing.T) {
	got, err := ParseReference("<abc123@example.com>")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if got != "<abc123@example.com>" {
		t.Errorf("got %q", got)
	}
}

func TestParseReferences(t *testing.T) {
	refs, err := ParseReferences("<a@example.com> <b@example.com>")
	if err != nil {
		t.Fatalf("ParseReferences: %v", err)
	}
	if len(refs) != 2 || refs[0] != "<a@example.com>" || refs[1] != "<b@example.com>" {
		t.Errorf("got %v", refs)
	}
}

func TestParseAddressInvalid(t *testing.T) {
	cases := []string{
		"",
		"<unclosed@example.com",
		"no-at-sign",
	}
	for _, c := range cases {
		if _, err := ParseAddress(c); err == nil {
			t.Errorf("ParseAddress(%q): expected error", c)
		}
	}
}
