package pgarray

import (
	"errors"
	"slices"
	"testing"
)

// TestEncode はEncode関数を検証する。
func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{name: "nilは空配列になること", values: nil, want: "{}"},
		{name: "単純な要素は引用符なしで連結されること", values: []string{"admin", "ops"}, want: "{admin,ops}"},
		{name: "数値文字列はそのまま出力されること", values: []string{"1", "42"}, want: "{1,42}"},
		{name: "カンマを含む要素は引用符で囲まれること", values: []string{"a,b"}, want: `{"a,b"}`},
		{name: "ブラケットはそのまま出力されること", values: []string{"[x]"}, want: "{[x]}"},
		{name: "ブレースを含む要素は引用符で囲まれること", values: []string{"{x}"}, want: `{"{x}"}`},
		{name: "二重引用符とバックスラッシュはエスケープされること", values: []string{`say "hi"\`}, want: `{"say \"hi\"\\"}`},
		{name: "空文字列は引用符付きで保持されること", values: []string{""}, want: `{""}`},
		{name: "NULLという文字列は引用符で囲まれること", values: []string{"null"}, want: `{"null"}`},
		{name: "空白を含む要素は引用符で囲まれること", values: []string{"role a"}, want: `{"role a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Encode(tt.values); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestDecode はDecode関数を検証する。
func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		literal string
		want    []string
	}{
		{name: "空配列は空スライスになること", literal: "{}", want: []string{}},
		{name: "空白だけの配列は空スライスになること", literal: "{  }", want: []string{}},
		{name: "引用符なし要素を読めること", literal: "{admin,ops}", want: []string{"admin", "ops"}},
		{name: "JSON由来の引用符付き要素を読めること", literal: `{"admin","ops"}`, want: []string{"admin", "ops"}},
		{name: "要素前後の空白は除去されること", literal: "{ a , b }", want: []string{"a", "b"}},
		{name: "引用符内のカンマは要素の一部になること", literal: `{"a,b",c}`, want: []string{"a,b", "c"}},
		{name: "エスケープを復元できること", literal: `{"say \"hi\"\\"}`, want: []string{`say "hi"\`}},
		{name: "引用符付き空文字列を読めること", literal: `{"",x}`, want: []string{"", "x"}},
		{name: "ブラケットを含む要素を読めること", literal: "{[x],y]}", want: []string{"[x]", "y]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode(tt.literal)
			if err != nil {
				t.Fatalf("Decode(%q)でエラーが発生: %v", tt.literal, err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Decode(%q) = %q, want %q", tt.literal, got, tt.want)
			}
		})
	}
}

// TestDecodeErrors は不正な配列リテラルがエラーになることを検証する。
func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		literal string
		wantErr error
	}{
		{name: "ブレースがない場合", literal: "admin,ops", wantErr: ErrMalformed},
		{name: "ブラケット区切りの場合", literal: `["admin"]`, wantErr: ErrMalformed},
		{name: "引用符が閉じていない場合", literal: `{"admin}`, wantErr: ErrMalformed},
		{name: "空要素がある場合", literal: "{a,,b}", wantErr: ErrMalformed},
		{name: "多次元配列の場合", literal: "{{a},{b}}", wantErr: ErrMalformed},
		{name: "閉じ引用符の後に文字がある場合", literal: `{"a"b}`, wantErr: ErrMalformed},
		{name: "NULL要素がある場合", literal: "{a,NULL}", wantErr: ErrNullElement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.literal); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode(%q) error = %v, want %v", tt.literal, err, tt.wantErr)
			}
		})
	}
}

// TestRoundTrip はエンコードした値を元に戻せることを検証する。
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	values := []string{"admin", "a,b", `q"uote`, `back\slash`, "{brace}", "[bracket]", "", "NULL", " padded "}
	got, err := Decode(Encode(values))
	if err != nil {
		t.Fatalf("Decode()でエラーが発生: %v", err)
	}
	if !slices.Equal(got, values) {
		t.Errorf("往復結果 = %q, want %q", got, values)
	}
}
