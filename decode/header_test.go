package decode

import (
	"errors"
	"testing"
)

func TestHeader(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		target string
		want   string
	}{
		{name: "base64 word", in: "=?UTF-8?B?SGVsbG8=?=", target: "UTF-8", want: "Hello"},
		{name: "plain text", in: "Quarterly report", target: "UTF-8", want: "Quarterly report"},
		{name: "q word latin1", in: "=?ISO-8859-1?Q?Caf=E9?= menu", target: "UTF-8", want: "Café menu"},
		{name: "windows-1251 word", in: "=?windows-1251?B?z/Do4uXy?=", target: "UTF-8", want: "Привет"},
		{name: "adjacent words joined", in: "=?UTF-8?Q?Hel?= =?UTF-8?Q?lo?=", target: "UTF-8", want: "Hello"},
		{name: "mixed segments", in: "Re: =?UTF-8?B?0J/RgNC40LLQtdGCINC80LjRgA==?= (2)", target: "utf-8", want: "Re: Привет мир (2)"},
		{name: "unknown charset kept", in: "=?x-klingon?Q?qapla?=", target: "UTF-8", want: "=?x-klingon?Q?qapla?="},
		{name: "empty", in: "", target: "UTF-8", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Header(tt.in, tt.target); got != tt.want {
				t.Errorf("Header(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHeader_NonUTF8Target(t *testing.T) {
	got := Header("=?UTF-8?Q?Caf=C3=A9?=", "ISO-8859-1")
	if got != "Caf\xe9" {
		t.Errorf("Header() = %q, want %q", got, "Caf\xe9")
	}
}

func TestCharset(t *testing.T) {
	cp1251 := []byte{0xcf, 0xf0, 0xe8, 0xe2, 0xe5, 0xf2}

	got, err := Charset(cp1251, "windows-1251", "UTF-8")
	if err != nil {
		t.Fatalf("Charset() error = %v", err)
	}
	if string(got) != "Привет" {
		t.Errorf("Charset() = %q, want %q", got, "Привет")
	}

	got, err = Charset(cp1251, "cp1251", "utf-8")
	if err != nil {
		t.Fatalf("Charset(cp1251 alias) error = %v", err)
	}
	if string(got) != "Привет" {
		t.Errorf("Charset(cp1251 alias) = %q, want %q", got, "Привет")
	}
}

func TestCharset_SameCharsetUntouched(t *testing.T) {
	in := []byte("already \xff fine")
	got, err := Charset(in, "utf8", "UTF-8")
	if err != nil {
		t.Fatalf("Charset() error = %v", err)
	}
	if string(got) != string(in) {
		t.Errorf("Charset() = %q, want input unchanged", got)
	}
}

func TestCharset_UnknownSource(t *testing.T) {
	in := []byte("opaque")
	got, err := Charset(in, "x-unknown-charset", "UTF-8")
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("Charset() error = %v, want ErrDecodeFailure", err)
	}
	if string(got) != "opaque" {
		t.Errorf("Charset() = %q, want input returned", got)
	}
}

func TestCharset_ToLatin1(t *testing.T) {
	got, err := Charset([]byte("Café"), "UTF-8", "ISO-8859-1")
	if err != nil {
		t.Fatalf("Charset() error = %v", err)
	}
	if string(got) != "Caf\xe9" {
		t.Errorf("Charset() = %q, want %q", got, "Caf\xe9")
	}
}

func TestKnownCharset(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"", true},
		{"utf8", true},
		{"ISO-8859-1", true},
		{"windows-1252", true},
		{"no-such-charset", false},
	}
	for _, tt := range tests {
		if got := KnownCharset(tt.name); got != tt.want {
			t.Errorf("KnownCharset(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
